package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/links"
	"github.com/bitechdev/ModelSpec/pkg/logger"
)

// MuxAdapter adapts Gorilla Mux to work with our Router interface.
// It also resolves named routes for link assembly.
type MuxAdapter struct {
	router *mux.Router
}

// NewMuxAdapter creates a new Mux adapter
func NewMuxAdapter(router *mux.Router) *MuxAdapter {
	return &MuxAdapter{router: router}
}

// NewMuxAdapterDefault creates a new Mux adapter with a fresh router
func NewMuxAdapterDefault() *MuxAdapter {
	return NewMuxAdapter(mux.NewRouter())
}

func (m *MuxAdapter) HandleFunc(pattern string, handler common.HTTPHandlerFunc) common.RouteRegistration {
	route := m.router.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		respAdapter, reqAdapter := common.WrapHTTPRequest(w, r, mux.Vars(r))
		handler(respAdapter, reqAdapter)
	})
	return &MuxRouteRegistration{route: route}
}

// ServeHTTP lets the adapter be mounted as an http.Handler
func (m *MuxAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

// GetMuxRouter returns the underlying mux router for direct access
func (m *MuxAdapter) GetMuxRouter() *mux.Router {
	return m.router
}

// ResolveRoute builds the path of a named route. Parameters the route does
// not declare are appended as a query string.
func (m *MuxAdapter) ResolveRoute(name string, pathParams map[string]string) (string, bool) {
	route := m.router.Get(name)
	if route == nil {
		return "", false
	}
	names, err := route.GetVarNames()
	if err != nil {
		logger.Warn("Route %s has no usable template: %v", name, err)
		return "", false
	}
	used := make(map[string]bool, len(names))
	pairs := make([]string, 0, len(names)*2)
	for _, n := range names {
		value, ok := pathParams[n]
		if !ok {
			return "", false
		}
		used[n] = true
		pairs = append(pairs, n, value)
	}
	u, err := route.URLPath(pairs...)
	if err != nil {
		logger.Debug("Cannot build route %s: %v", name, err)
		return "", false
	}
	return u.EscapedPath() + links.Query(pathParams, used), true
}

// MuxRouteRegistration implements RouteRegistration for Mux
type MuxRouteRegistration struct {
	route *mux.Route
}

func (m *MuxRouteRegistration) Methods(methods ...string) common.RouteRegistration {
	m.route.Methods(methods...)
	return m
}

func (m *MuxRouteRegistration) Name(name string) common.RouteRegistration {
	m.route.Name(name)
	return m
}
