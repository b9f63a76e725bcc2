package common

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapHTTPRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/projects/7?sort_by=title&page=2&page=3", strings.NewReader(`{"title":"x"}`))
	r.Header.Set("X-Api", "1")

	w, req := WrapHTTPRequest(rec, r, map[string]string{"id": "7"})

	assert.Equal(t, http.MethodPost, req.Method())
	assert.Equal(t, "/projects/7?sort_by=title&page=2&page=3", req.URL())
	assert.Equal(t, "1", req.Header("X-Api"))
	assert.Equal(t, "7", req.PathParam("id"))
	assert.Equal(t, map[string]string{"sort_by": "title", "page": "2"}, req.AllQueryParams())

	body, err := req.Body()
	require.NoError(t, err)
	again, err := req.Body()
	require.NoError(t, err)
	assert.Equal(t, `{"title":"x"}`, string(body))
	assert.Equal(t, body, again)

	w.SetHeader("Location", "/projects/7")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte("{}"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/projects/7", rec.Header().Get("Location"))
	assert.Equal(t, rec, w.UnderlyingResponseWriter())
}
