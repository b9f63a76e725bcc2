package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bitechdev/ModelSpec/pkg/config"
	"github.com/bitechdev/ModelSpec/pkg/errortracking"
)

var Logger *zap.SugaredLogger
var errorTracker errortracking.Provider

// Init installs a console logger, development flavored when dev is set.
func Init(dev bool) {
	if err := Configure(config.LoggerConfig{Dev: dev}); err != nil {
		log.Print(err)
	}
}

// Configure builds the logger from configuration. Path, when set, replaces
// stderr as the output; Level overrides the flavor's default level.
func Configure(cfg config.LoggerConfig) error {
	zcfg := zap.NewProductionConfig()
	if cfg.Dev {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Path != "" {
		zcfg.OutputPaths = []string{cfg.Path}
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	built, err := zcfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	Use(built)
	Info("ModelSpec logger initialized")
	return nil
}

// Use swaps in an already built logger, e.g. one observed by tests.
func Use(l *zap.Logger) {
	if l == nil {
		Logger = nil
		return
	}
	Logger = l.Sugar()
}

// InitErrorTracking installs the provider that receives warnings, errors and panics.
func InitErrorTracking(provider errortracking.Provider) {
	errorTracker = provider
	if errorTracker != nil {
		Info("Error tracking initialized")
	}
}

func GetErrorTracker() errortracking.Provider {
	return errorTracker
}

// CloseErrorTracking flushes pending events and closes the provider.
func CloseErrorTracking() error {
	if errorTracker == nil {
		return nil
	}
	errorTracker.Flush(5)
	return errorTracker.Close()
}

func emit(level zapcore.Level, message string) {
	if Logger == nil {
		log.Print(message)
		return
	}
	Logger.Logw(level, message, "process_id", os.Getpid())
}

func track(severity errortracking.Severity, message string) {
	if errorTracker == nil {
		return
	}
	errorTracker.CaptureMessage(context.Background(), message, severity, map[string]interface{}{
		"process_id": os.Getpid(),
	})
}

func Debug(template string, args ...interface{}) {
	emit(zapcore.DebugLevel, fmt.Sprintf(template, args...))
}

func Info(template string, args ...interface{}) {
	emit(zapcore.InfoLevel, fmt.Sprintf(template, args...))
}

// Warn logs and forwards the message to the error tracker.
func Warn(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	emit(zapcore.WarnLevel, message)
	track(errortracking.SeverityWarning, message)
}

// Error logs and forwards the message to the error tracker.
func Error(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	emit(zapcore.ErrorLevel, message)
	track(errortracking.SeverityError, message)
}

// CaptureError forwards err to the error tracker with request-level context.
func CaptureError(ctx context.Context, err error, extra map[string]interface{}) {
	if err == nil || errorTracker == nil {
		return
	}
	errorTracker.CaptureError(ctx, err, errortracking.SeverityError, extra)
}

// CatchPanicCallback recovers a panic, reports it and hands it to cb.
// It must be deferred directly.
func CatchPanicCallback(location string, cb func(err any)) {
	r := recover()
	if r == nil {
		return
	}
	reportPanic("location", location, r)
	if cb != nil {
		cb(r)
	}
}

func CatchPanic(location string) {
	CatchPanicCallback(location, nil)
}

// HandlePanic logs a recovered panic and returns it as an error.
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err = logger.HandlePanic("mutation.Update", r)
//	    }
//	}()
func HandlePanic(methodName string, r any) error {
	reportPanic("method", methodName, r)
	return fmt.Errorf("panic in %s: %v", methodName, r)
}

func reportPanic(key, where string, r any) {
	stack := debug.Stack()
	emit(zapcore.ErrorLevel, fmt.Sprintf("Panic in %s: %v\nStack trace:\n%s", where, r, stack))
	if errorTracker != nil {
		errorTracker.CapturePanic(context.Background(), r, stack, map[string]interface{}{
			key:          where,
			"process_id": os.Getpid(),
		})
	}
}
