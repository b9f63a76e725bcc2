package metrics

import "github.com/bitechdev/ModelSpec/pkg/config"

// Config holds configuration for the metrics provider
type Config struct {
	Enabled bool

	// Namespace is an optional prefix for all metric names
	Namespace string

	// HTTPRequestBuckets defines histogram buckets for HTTP request duration (in seconds)
	HTTPRequestBuckets []float64

	// QueryBuckets defines histogram buckets for select, count and exists queries (in seconds)
	QueryBuckets []float64
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	c := &Config{Enabled: true, Namespace: "modelspec"}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills in any missing values with defaults
func (c *Config) ApplyDefaults() {
	// HTTP requests typically take longer than DB queries
	if len(c.HTTPRequestBuckets) == 0 {
		c.HTTPRequestBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	}
	if len(c.QueryBuckets) == 0 {
		c.QueryBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	}
}

// NewProviderFromConfig returns a Prometheus provider when metrics are enabled, else a no-op one.
func NewProviderFromConfig(cfg config.MetricsConfig) Provider {
	if !cfg.Enabled {
		return &NoOpProvider{}
	}
	return NewPrometheusProvider(&Config{Enabled: true, Namespace: cfg.Namespace})
}
