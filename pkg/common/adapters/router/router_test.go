package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/ModelSpec/pkg/common"
)

func echoID(w common.ResponseWriter, r common.Request) {
	w.SetHeader("X-Id", r.PathParam("id"))
	w.WriteHeader(http.StatusNoContent)
}

func TestMuxAdapter(t *testing.T) {
	adapter := NewMuxAdapterDefault()
	adapter.HandleFunc("/projects/{id:[0-9]+}", echoID).Methods(http.MethodGet).Name("project")
	adapter.HandleFunc("/projects", echoID).Methods(http.MethodGet).Name("projects")

	rec := httptest.NewRecorder()
	adapter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/42", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("X-Id"))

	rec = httptest.NewRecorder()
	adapter.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects/42", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	path, ok := adapter.ResolveRoute("project", map[string]string{"id": "7", "page": "2"})
	require.True(t, ok)
	assert.Equal(t, "/projects/7?page=2", path)

	path, ok = adapter.ResolveRoute("projects", nil)
	require.True(t, ok)
	assert.Equal(t, "/projects", path)

	_, ok = adapter.ResolveRoute("project", map[string]string{"id": "abc"})
	assert.False(t, ok, "regex mismatch")
	_, ok = adapter.ResolveRoute("project", nil)
	assert.False(t, ok, "missing param")
	_, ok = adapter.ResolveRoute("unknown", nil)
	assert.False(t, ok)
}

func TestBunRouterAdapter(t *testing.T) {
	adapter := NewBunRouterAdapterDefault()
	adapter.HandleFunc("/projects/{id}", echoID).Methods(http.MethodGet, http.MethodDelete).Name("project")

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := httptest.NewRecorder()
		adapter.ServeHTTP(rec, httptest.NewRequest(method, "/projects/42", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code, method)
		assert.Equal(t, "42", rec.Header().Get("X-Id"), method)
	}

	path, ok := adapter.ResolveRoute("project", map[string]string{"id": "7", "page": "2"})
	require.True(t, ok)
	assert.Equal(t, "/projects/7?page=2", path)

	_, ok = adapter.ResolveRoute("projects", nil)
	assert.False(t, ok)
}

func TestToBunPattern(t *testing.T) {
	assert.Equal(t, "/api/:entity/:id", toBunPattern("/api/{entity}/{id:[0-9]+}"))
	assert.Equal(t, "/plain", toBunPattern("/plain"))
}
