/*
Package s3 is the AWS SDK driver for a network volume exposed through an
S3-compatible endpoint.

# Construction

New validates the credential bundle, derives the endpoint from the datacenter
code, and configures the SDK with static credentials, path-style addressing,
the configured retry budget and a single HTTP client timeout. It then issues a
HEAD on the bucket so bad credentials or a missing volume fail at startup:

	client, err := s3.New(ctx, cfg.Storage,
		s3.WithLogger(log),
		s3.WithMetrics(collector),
	)

NewWithAPI wraps any API implementation and skips the health check; tests use it
with an in-memory fake.

# Keys

Every method takes logical keys. The configured key prefix is prepended before a
request and stripped from listing results.

# Transfers

Uploads and downloads go through the SDK transfer manager, which splits large
objects into parts and moves them in parallel. Downloads are written to a
temporary file next to the destination and renamed on success.

# Errors

SDK errors are translated into *errors.VolstoreError:

	NoSuchKey, NotFound, 404        OBJECT_NOT_FOUND (BUCKET_NOT_FOUND on HeadBucket)
	NoSuchBucket                    BUCKET_NOT_FOUND
	AccessDenied, 403               ACCESS_DENIED
	InvalidAccessKeyId, 401         AUTHENTICATION_FAILED
	SlowDown, 429                   THROTTLED
	5xx                             SERVICE_UNAVAILABLE
	deadline exceeded               OPERATION_TIMEOUT
	retryable connection errors     NETWORK_ERROR

Exists turns OBJECT_NOT_FOUND into (false, nil).
*/
package s3
