package errortracking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/ModelSpec/pkg/config"
)

func TestNoOpProvider(t *testing.T) {
	provider := NewNoOpProvider()

	assert.NotPanics(t, func() {
		provider.CaptureError(context.Background(), errors.New("boom"), SeverityError, nil)
		provider.CaptureMessage(context.Background(), "message", SeverityWarning, nil)
		provider.CapturePanic(context.Background(), "panic!", []byte("stack"), nil)
	})
	assert.True(t, provider.Flush(5))
	assert.NoError(t, provider.Close())
}

func TestConvertSeverity(t *testing.T) {
	assert.Equal(t, "warning", string(convertSeverity(SeverityWarning)))
	assert.Equal(t, "info", string(convertSeverity(SeverityInfo)))
	assert.Equal(t, "debug", string(convertSeverity(SeverityDebug)))
	assert.Equal(t, "error", string(convertSeverity(Severity("unknown"))))
}

func TestNewProviderFromConfig(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		p, err := NewProviderFromConfig(config.ErrorTrackingConfig{Enabled: false, Provider: "sentry"})
		require.NoError(t, err)
		assert.IsType(t, &NoOpProvider{}, p)
	})

	t.Run("sentry without dsn", func(t *testing.T) {
		_, err := NewProviderFromConfig(config.ErrorTrackingConfig{Enabled: true, Provider: "sentry"})
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewProviderFromConfig(config.ErrorTrackingConfig{Enabled: true, Provider: "rollbar"})
		assert.Error(t, err)
	})

	t.Run("noop", func(t *testing.T) {
		p, err := NewProviderFromConfig(config.ErrorTrackingConfig{Enabled: true, Provider: " NoOp "})
		require.NoError(t, err)
		assert.IsType(t, &NoOpProvider{}, p)
	})

	t.Run("sample rate out of range", func(t *testing.T) {
		_, err := NewProviderFromConfig(config.ErrorTrackingConfig{
			Enabled:    true,
			Provider:   "Sentry",
			DSN:        "https://key@example.invalid/1",
			SampleRate: 1.5,
		})
		assert.ErrorContains(t, err, "sample_rate")
	})
}

func TestNewEventPromotesTags(t *testing.T) {
	event := newEvent(convertSeverity(SeverityError), "save failed", map[string]interface{}{
		"model":     "project",
		"operation": "update",
		"status":    500,
		"path":      "/projects/1",
	})

	assert.Equal(t, "save failed", event.Message)
	assert.Equal(t, "project", event.Tags["model"])
	assert.Equal(t, "update", event.Tags["operation"])
	assert.Equal(t, "500", event.Tags["status"])
	assert.Equal(t, "/projects/1", event.Extra["path"])
	assert.NotContains(t, event.Extra, "model")
}

var (
	_ Provider = (*NoOpProvider)(nil)
	_ Provider = (*SentryProvider)(nil)
)
