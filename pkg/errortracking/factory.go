package errortracking

import (
	"fmt"
	"strings"

	"github.com/bitechdev/ModelSpec/pkg/config"
)

// NewProviderFromConfig returns a Sentry provider when tracking is enabled and
// configured for it, else a no-op one. A zero sample rate means sample everything.
func NewProviderFromConfig(cfg config.ErrorTrackingConfig) (Provider, error) {
	if !cfg.Enabled {
		return NewNoOpProvider(), nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "noop", "":
		return NewNoOpProvider(), nil
	case "sentry":
	default:
		return nil, fmt.Errorf("unknown error tracking provider: %s", cfg.Provider)
	}

	if cfg.DSN == "" {
		return nil, fmt.Errorf("sentry DSN is required when error tracking is enabled")
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return nil, fmt.Errorf("sample_rate must be between 0 and 1, got %v", cfg.SampleRate)
	}
	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 1
	}
	environment := cfg.Environment
	if environment == "" {
		environment = "development"
	}
	return NewSentryProvider(SentryConfig{
		DSN:              cfg.DSN,
		Environment:      environment,
		Release:          cfg.Release,
		Debug:            cfg.Debug,
		SampleRate:       sampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
	})
}
