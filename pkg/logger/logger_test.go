package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bitechdev/ModelSpec/pkg/config"
	"github.com/bitechdev/ModelSpec/pkg/errortracking"
)

type recordingTracker struct {
	errortracking.NoOpProvider
	messages []string
	panics   []map[string]interface{}
	errors   []error
}

func (r *recordingTracker) CaptureMessage(_ context.Context, message string, _ errortracking.Severity, _ map[string]interface{}) {
	r.messages = append(r.messages, message)
}

func (r *recordingTracker) CapturePanic(_ context.Context, _ interface{}, _ []byte, extra map[string]interface{}) {
	r.panics = append(r.panics, extra)
}

func (r *recordingTracker) CaptureError(_ context.Context, err error, _ errortracking.Severity, _ map[string]interface{}) {
	r.errors = append(r.errors, err)
}

func observe(t *testing.T) (*observer.ObservedLogs, *recordingTracker) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	tracker := &recordingTracker{}
	Use(zap.New(core))
	InitErrorTracking(tracker)
	t.Cleanup(func() {
		Use(nil)
		InitErrorTracking(nil)
	})
	return logs, tracker
}

func TestLevelsAndTracking(t *testing.T) {
	logs, tracker := observe(t)

	Debug("joined %s", "users")
	Info("listening on %d", 8080)
	Warn("ignoring %s", "bogus")
	Error("failed %s", "save")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "listening on 8080", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Contains(t, entries[3].ContextMap(), "process_id")

	assert.Equal(t, []string{"ignoring bogus", "failed save"}, tracker.messages)
}

func TestHandlePanic(t *testing.T) {
	logs, tracker := observe(t)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = HandlePanic("projects.show", r)
			}
		}()
		panic("nil map")
	}()

	require.EqualError(t, err, "panic in projects.show: nil map")
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	require.Len(t, tracker.panics, 1)
	assert.Equal(t, "projects.show", tracker.panics[0]["method"])
}

func TestCatchPanicCallback(t *testing.T) {
	_, tracker := observe(t)

	var got any
	func() {
		defer CatchPanicCallback("worker", func(err any) { got = err })
		panic("stop")
	}()

	assert.Equal(t, "stop", got)
	require.Len(t, tracker.panics, 1)
	assert.Equal(t, "worker", tracker.panics[0]["location"])
}

func TestCaptureError(t *testing.T) {
	_, tracker := observe(t)

	CaptureError(context.Background(), nil, nil)
	CaptureError(context.Background(), errors.New("db down"), map[string]interface{}{"model": "project"})

	require.Len(t, tracker.errors, 1)
	assert.EqualError(t, tracker.errors[0], "db down")
}

func TestConfigure(t *testing.T) {
	t.Cleanup(func() { Use(nil) })

	assert.Error(t, Configure(config.LoggerConfig{Level: "loud"}))
	require.NoError(t, Configure(config.LoggerConfig{Dev: true, Level: "warn", Path: t.TempDir() + "/modelspec.log"}))
	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.WarnLevel))
}
