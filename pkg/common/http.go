package common

import (
	"io"
	"net/http"
)

// Request is the read side of one HTTP exchange as handlers see it.
type Request interface {
	Method() string
	URL() string
	Header(key string) string
	// Body reads the request body once; later calls return the same bytes.
	Body() ([]byte, error)
	PathParam(key string) string
	// AllQueryParams returns the first value of every query parameter.
	AllQueryParams() map[string]string
	UnderlyingRequest() *http.Request
}

// ResponseWriter is the write side of one HTTP exchange.
type ResponseWriter interface {
	SetHeader(key, value string)
	WriteHeader(statusCode int)
	Write(data []byte) (int, error)
	UnderlyingResponseWriter() http.ResponseWriter
}

// HTTPHandlerFunc type for HTTP handlers
type HTTPHandlerFunc func(ResponseWriter, Request)

// WrapHTTPRequest adapts a net/http exchange. Routers pass the path
// parameters they extracted.
func WrapHTTPRequest(w http.ResponseWriter, r *http.Request, pathParams map[string]string) (ResponseWriter, Request) {
	return httpResponse{w}, &httpRequest{r: r, vars: pathParams}
}

type httpResponse struct {
	w http.ResponseWriter
}

func (h httpResponse) SetHeader(key, value string)    { h.w.Header().Set(key, value) }
func (h httpResponse) WriteHeader(statusCode int)     { h.w.WriteHeader(statusCode) }
func (h httpResponse) Write(data []byte) (int, error) { return h.w.Write(data) }

func (h httpResponse) UnderlyingResponseWriter() http.ResponseWriter {
	return h.w
}

type httpRequest struct {
	r    *http.Request
	vars map[string]string
	body []byte
	read bool
}

func (h *httpRequest) Method() string           { return h.r.Method }
func (h *httpRequest) URL() string              { return h.r.URL.String() }
func (h *httpRequest) Header(key string) string { return h.r.Header.Get(key) }
func (h *httpRequest) PathParam(key string) string {
	return h.vars[key]
}

func (h *httpRequest) Body() ([]byte, error) {
	if h.read || h.r.Body == nil {
		return h.body, nil
	}
	defer h.r.Body.Close()
	body, err := io.ReadAll(h.r.Body)
	if err != nil {
		return nil, err
	}
	h.body, h.read = body, true
	return body, nil
}

func (h *httpRequest) AllQueryParams() map[string]string {
	values := h.r.URL.Query()
	params := make(map[string]string, len(values))
	for key, v := range values {
		if len(v) > 0 {
			params[key] = v[0]
		}
	}
	return params
}

func (h *httpRequest) UnderlyingRequest() *http.Request {
	return h.r
}
