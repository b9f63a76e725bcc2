package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/metrics"
)

type mockMetricsProvider struct {
	metrics.NoOpProvider
	panicRecorded bool
	location      string
}

func (m *mockMetricsProvider) RecordPanic(location string) {
	m.panicRecorded = true
	m.location = location
}

func TestPanicRecovery(t *testing.T) {
	logger.Init(true)

	mockProvider := &mockMetricsProvider{}
	originalProvider := metrics.GetProvider()
	metrics.SetProvider(mockProvider)
	defer metrics.SetProvider(originalProvider)

	t.Run("recovers from panic and returns 500", func(t *testing.T) {
		h := PanicRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("something went terribly wrong")
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/projects", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		assert.Equal(t, "Internal error", gjson.Get(rr.Body.String(), "errors.0.error").String())
		assert.NotContains(t, rr.Body.String(), "terribly", "panic details stay in the logs")
		assert.True(t, mockProvider.panicRecorded)
		assert.Equal(t, panicMiddlewareMethodName, mockProvider.location)
	})

	t.Run("passes through without panic", func(t *testing.T) {
		mockProvider.panicRecorded = false
		h := PanicRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusTeapot, rr.Code)
		assert.False(t, mockProvider.panicRecorded)
	})
}

func TestChain(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
