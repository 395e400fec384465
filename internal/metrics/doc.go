/*
Package metrics exports storage and resolution metrics through Prometheus.

A Collector owns a private registry, so several collectors can coexist in one
process (tests do this). It implements types.MetricsCollector and is handed to
the storage drivers and the resolver:

	collector, err := metrics.NewCollector(metrics.DefaultConfig())
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, cfg.Storage, logger, collector)

Exported families (namespace "volstore" by default):

	storage_operations_total{driver,operation,status}
	storage_operation_duration_seconds{driver,operation}
	storage_transfer_bytes_total{driver,operation}
	storage_errors_total{driver,operation,code}
	resolutions_total{source,status}
	resolution_duration_seconds{source}

Handler serves the registry; the HTTP API mounts it at /metrics. Snapshot
and Uptime back the API's /v1/metrics/summary view.
*/
package metrics
