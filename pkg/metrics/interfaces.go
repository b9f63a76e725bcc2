package metrics

import (
	"net/http"
	"time"

	"github.com/bitechdev/ModelSpec/pkg/logger"
)

// Provider defines the interface for metric collection
type Provider interface {
	// RecordHTTPRequest records metrics for an HTTP request
	RecordHTTPRequest(method, path, status string, duration time.Duration)

	// IncRequestsInFlight increments the in-flight requests counter
	IncRequestsInFlight()

	// DecRequestsInFlight decrements the in-flight requests counter
	DecRequestsInFlight()

	// RecordQuery records one select, count or exists query against table
	RecordQuery(table, kind string, duration time.Duration, err error)

	// RecordMutation records the outcome status of a create, update, patch or destroy
	RecordMutation(model, operation, status string)

	// RecordCacheHit records a cache hit
	RecordCacheHit(provider string)

	// RecordCacheMiss records a cache miss
	RecordCacheMiss(provider string)

	// RecordPanic records a panic recovered outside the request handler
	RecordPanic(location string)

	// Handler returns an HTTP handler for exposing metrics (e.g., /metrics endpoint)
	Handler() http.Handler
}

var globalProvider Provider

// SetProvider sets the global metrics provider
func SetProvider(p Provider) {
	globalProvider = p
}

// GetProvider returns the current metrics provider, a no-op one if none is set
func GetProvider() Provider {
	if globalProvider == nil {
		return &NoOpProvider{}
	}
	return globalProvider
}

// TimeQuery runs fn and records it as a kind query against table on the
// current provider.
func TimeQuery(table, kind string, fn func() error) error {
	start := time.Now()
	err := fn()
	GetProvider().RecordQuery(table, kind, time.Since(start), err)
	return err
}

// NoOpProvider is a no-op implementation of Provider
type NoOpProvider struct{}

func (n *NoOpProvider) RecordHTTPRequest(method, path, status string, duration time.Duration) {}
func (n *NoOpProvider) IncRequestsInFlight()                                                  {}
func (n *NoOpProvider) DecRequestsInFlight()                                                  {}
func (n *NoOpProvider) RecordQuery(table, kind string, duration time.Duration, err error) {}
func (n *NoOpProvider) RecordMutation(model, operation, status string) {}
func (n *NoOpProvider) RecordCacheHit(provider string)                 {}
func (n *NoOpProvider) RecordCacheMiss(provider string)                {}
func (n *NoOpProvider) RecordPanic(location string)                    {}
func (n *NoOpProvider) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Metrics provider not configured"))
		if err != nil {
			logger.Warn("Failed to write. %v", err)
		}
	})
}
