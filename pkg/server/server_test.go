package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/ModelSpec/pkg/config"
)

func TestTrackRequests(t *testing.T) {
	release := make(chan struct{})
	srv, err := NewGracefulServer(Config{
		Addr: ":0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
			w.WriteHeader(http.StatusOK)
		}),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/projects", nil))
		}()
	}
	assert.Eventually(t, func() bool { return srv.InFlightRequests() == 3 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int64(0), srv.InFlightRequests())

	srv.isShuttingDown.Store(true)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/projects", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRecoversPanics(t *testing.T) {
	srv, err := NewGracefulServer(Config{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, int64(0), srv.InFlightRequests())
}

func TestNewGracefulServerRequiresHandler(t *testing.T) {
	_, err := NewGracefulServer(Config{})
	assert.Error(t, err)
}

func TestHealthCheckHandler(t *testing.T) {
	srv, err := NewGracefulServer(Config{Handler: http.NotFoundHandler()})
	require.NoError(t, err)

	healthy := true
	h := srv.HealthCheckHandler(map[string]HealthCheck{
		"database": func(context.Context) error {
			if !healthy {
				return errors.New("connection refused")
			}
			return nil
		},
		"cache.redis": func(context.Context) error { return nil },
	})

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy","checks":{"cache.redis":"ok","database":"ok"}}`, rr.Body.String())

	healthy = false
	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"cache.redis":"ok","database":"connection refused"}}`, rr.Body.String())

	srv.isShuttingDown.Store(true)
	rr = httptest.NewRecorder()
	srv.HealthCheckHandler(nil)(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"shutting_down"}`, rr.Body.String())
}

func TestServeAndShutdown(t *testing.T) {
	srv, err := NewGracefulServer(FromConfig(config.ServerConfig{ShutdownTimeout: 2 * time.Second},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "ok")
		})))
	require.NoError(t, err)

	var closed bool
	srv.OnShutdown(func(context.Context) error {
		closed = true
		return nil
	})
	srv.OnShutdown(func(context.Context) error { return errors.New("flush failed") })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		assert.EqualError(t, err, "flush failed")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	srv.Wait()
	assert.True(t, closed)
	assert.True(t, srv.IsShuttingDown())
	assert.NoError(t, srv.Shutdown(context.Background()), "second shutdown is a no-op")
}
