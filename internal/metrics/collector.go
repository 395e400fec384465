package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

// Collector records storage operations and artifact resolutions in a private
// Prometheus registry.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	operationCounter   *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	transferBytes      *prometheus.CounterVec
	errorCounter       *prometheus.CounterVec
	resolutionCounter  *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec

	operations map[string]*OperationMetrics
	started    time.Time
}

var _ types.MetricsCollector = (*Collector)(nil)

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`
}

// OperationMetrics is the running summary of one driver operation.
type OperationMetrics struct {
	Driver        string        `json:"driver"`
	Operation     string        `json:"operation"`
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	TotalBytes    int64         `json:"total_bytes"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastOperation time.Time     `json:"last_operation"`
}

// DefaultConfig returns an enabled collector configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Namespace: "volstore",
		Labels:    make(map[string]string),
	}
}

// NewCollector creates a new metrics collector. A nil config uses
// DefaultConfig; a disabled config yields a collector that records nothing.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	c := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		operations: make(map[string]*OperationMetrics),
		started:    time.Now(),
	}
	c.initMetrics()

	if err := c.registerMetrics(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternalError, "failed to register metrics", err).
			WithComponent("metrics")
	}
	return c, nil
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// RecordOperation records one driver call.
func (c *Collector) RecordOperation(driver, operation string, duration time.Duration, bytes int64, err error) {
	if !c.config.Enabled {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	c.mu.Lock()
	key := driver + "/" + operation
	m, ok := c.operations[key]
	if !ok {
		m = &OperationMetrics{Driver: driver, Operation: operation}
		c.operations[key] = m
	}
	m.Count++
	m.TotalBytes += bytes
	m.TotalDuration += duration
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	m.LastOperation = time.Now()
	if err != nil {
		m.Errors++
	}
	c.mu.Unlock()

	c.operationCounter.WithLabelValues(driver, operation, status).Inc()
	c.operationDuration.WithLabelValues(driver, operation).Observe(duration.Seconds())
	if bytes > 0 {
		c.transferBytes.WithLabelValues(driver, operation).Add(float64(bytes))
	}
	if err != nil {
		c.errorCounter.WithLabelValues(driver, operation, string(errors.CodeOf(err))).Inc()
	}
}

// RecordResolution records which source satisfied (or failed to satisfy) an
// artifact lookup.
func (c *Collector) RecordResolution(source string, success bool, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	status := "success"
	if !success {
		status = "error"
	}
	c.resolutionCounter.WithLabelValues(source, status).Inc()
	c.resolutionDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// Snapshot returns the per-operation summaries sorted by driver and operation.
func (c *Collector) Snapshot() []OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]OperationMetrics, 0, len(c.operations))
	for _, m := range c.operations {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Driver != out[j].Driver {
			return out[i].Driver < out[j].Driver
		}
		return out[i].Operation < out[j].Operation
	})
	return out
}

// Uptime returns the time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (c *Collector) initMetrics() {
	ns, sub, labels := c.config.Namespace, c.config.Subsystem, prometheus.Labels(c.config.Labels)

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "storage_operations_total",
			Help:        "Total number of storage operations",
			ConstLabels: labels,
		},
		[]string{"driver", "operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "storage_operation_duration_seconds",
			Help:        "Duration of storage operations in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.005, 2, 18), // 5ms to ~11m
			ConstLabels: labels,
		},
		[]string{"driver", "operation"},
	)

	c.transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "storage_transfer_bytes_total",
			Help:        "Bytes moved by uploads and downloads",
			ConstLabels: labels,
		},
		[]string{"driver", "operation"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "storage_errors_total",
			Help:        "Storage errors by code",
			ConstLabels: labels,
		},
		[]string{"driver", "operation", "code"},
	)

	c.resolutionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "resolutions_total",
			Help:        "Artifact resolution attempts by source",
			ConstLabels: labels,
		},
		[]string{"source", "status"},
	)

	c.resolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "resolution_duration_seconds",
			Help:        "Duration of artifact resolution attempts in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 12),
			ConstLabels: labels,
		},
		[]string{"source"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.transferBytes,
		c.errorCounter,
		c.resolutionCounter,
		c.resolutionDuration,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}
