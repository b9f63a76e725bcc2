package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/ModelSpec/pkg/config"
)

func TestPrometheusProviderRecords(t *testing.T) {
	p := NewPrometheusProvider(&Config{Namespace: "test"})

	p.RecordMutation("books", "create", "ok")
	p.RecordMutation("books", "create", "ok")
	p.RecordMutation("books", "destroy", "bad_request")
	p.RecordQuery("books", "count", time.Millisecond, nil)
	p.RecordQuery("books", "count", time.Millisecond, errors.New("boom"))
	p.RecordCacheHit("memory")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.mutationTotal.WithLabelValues("books", "create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.mutationTotal.WithLabelValues("books", "destroy", "bad_request")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.queryTotal.WithLabelValues("books", "count", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cacheHits.WithLabelValues("memory")))
}

func TestProvidersUseSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusProvider(nil)
		NewPrometheusProvider(nil)
	})
}

func TestHandlerExposesRequests(t *testing.T) {
	p := NewPrometheusProvider(&Config{Namespace: "mw"})
	p.IncRequestsInFlight()
	p.RecordHTTPRequest("GET", "books", "418", time.Millisecond)
	p.DecRequestsInFlight()

	assert.Equal(t, 1.0, testutil.ToFloat64(p.requestTotal.WithLabelValues("GET", "books", "418")))

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "mw_http_requests_total"))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.requestsInFlight))
}

func TestNewProviderFromConfig(t *testing.T) {
	_, noop := NewProviderFromConfig(config.MetricsConfig{}).(*NoOpProvider)
	assert.True(t, noop)
	_, prom := NewProviderFromConfig(config.MetricsConfig{Enabled: true, Namespace: "x"}).(*PrometheusProvider)
	assert.True(t, prom)
}

func TestGetProviderDefaultsToNoOp(t *testing.T) {
	SetProvider(nil)
	_, ok := GetProvider().(*NoOpProvider)
	assert.True(t, ok)
}

func TestTimeQuery(t *testing.T) {
	p := NewPrometheusProvider(&Config{Namespace: "tq"})
	SetProvider(p)
	t.Cleanup(func() { SetProvider(nil) })

	require.NoError(t, TimeQuery("books", "select", func() error { return nil }))
	err := TimeQuery("books", "exists", func() error { return errors.New("gone") })

	assert.EqualError(t, err, "gone")
	assert.Equal(t, 1.0, testutil.ToFloat64(p.queryTotal.WithLabelValues("books", "select", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.queryTotal.WithLabelValues("books", "exists", "error")))
}
