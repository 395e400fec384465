/*
Package config loads the volstore configuration from defaults, an optional YAML
file, and the environment.

# Precedence

	CLI flags            (highest, applied by cmd/volstore)
	environment          (RUNPOD_*, VOLSTORE_*, AWS_MAX_ATTEMPTS, AWS_RETRY_MODE)
	YAML file            (VOLSTORE_CONFIG or --config)
	compiled-in defaults (lowest)

A .env file in the working directory is read first and never overrides
variables that are already set.

# Storage credentials

StorageConfig is the credential bundle for one network volume. The endpoint is
never configured directly; it is derived from the datacenter code:

	EUR-IS-1  https://s3api-eur-is-1.runpod.io/
	EU-RO-1   https://s3api-eu-ro-1.runpod.io/
	EU-CZ-1   https://s3api-eu-cz-1.runpod.io/
	US-KS-2   https://s3api-us-ks-2.runpod.io/

Codes are matched case-insensitively. An unknown code is an INVALID_CONFIG
error; a blank credential is MISSING_CONFIG.

Configuration.Validate does not require storage credentials, so a worker
without a remote volume can still resolve artifacts locally. Callers that need
the remote tier call StorageConfig.Validate.

# Example

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if err := cfg.Storage.Validate(); err != nil {
		log.Warn().Err(err).Msg("remote storage disabled")
	}
*/
package config
