package router

import (
	"net/http"
	"strings"
	"sync"

	"github.com/uptrace/bunrouter"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/links"
)

// BunRouterAdapter adapts uptrace/bunrouter to work with our Router interface.
// bunrouter has no named routes, so names are kept here against the
// registered {param} patterns.
type BunRouterAdapter struct {
	router *bunrouter.Router

	mu    sync.RWMutex
	names map[string]string
}

// NewBunRouterAdapter creates a new bunrouter adapter
func NewBunRouterAdapter(router *bunrouter.Router) *BunRouterAdapter {
	return &BunRouterAdapter{router: router, names: make(map[string]string)}
}

// NewBunRouterAdapterDefault creates a new bunrouter adapter with default router
func NewBunRouterAdapterDefault() *BunRouterAdapter {
	return NewBunRouterAdapter(bunrouter.New())
}

func (b *BunRouterAdapter) HandleFunc(pattern string, handler common.HTTPHandlerFunc) common.RouteRegistration {
	return &BunRouterRegistration{
		adapter: b,
		pattern: pattern,
		handler: handler,
	}
}

// ServeHTTP lets the adapter be mounted as an http.Handler
func (b *BunRouterAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

// GetBunRouter returns the underlying bunrouter for direct access
func (b *BunRouterAdapter) GetBunRouter() *bunrouter.Router {
	return b.router
}

func (b *BunRouterAdapter) ResolveRoute(name string, pathParams map[string]string) (string, bool) {
	b.mu.RLock()
	pattern, ok := b.names[name]
	b.mu.RUnlock()
	if !ok {
		return "", false
	}
	return links.Expand(pattern, pathParams)
}

// BunRouterRegistration implements RouteRegistration for bunrouter
type BunRouterRegistration struct {
	adapter *BunRouterAdapter
	pattern string
	handler common.HTTPHandlerFunc
}

func (b *BunRouterRegistration) Methods(methods ...string) common.RouteRegistration {
	// bunrouter handles methods differently - we'll register for each method
	path := toBunPattern(b.pattern)
	for _, method := range methods {
		b.adapter.router.Handle(method, path, func(w http.ResponseWriter, req bunrouter.Request) error {
			respAdapter, reqAdapter := common.WrapHTTPRequest(w, req.Request, req.Params().Map())
			b.handler(respAdapter, reqAdapter)
			return nil
		})
	}
	return b
}

func (b *BunRouterRegistration) Name(name string) common.RouteRegistration {
	b.adapter.mu.Lock()
	b.adapter.names[name] = b.pattern
	b.adapter.mu.Unlock()
	return b
}

// toBunPattern rewrites {param} and {param:regex} segments as :param.
func toBunPattern(pattern string) string {
	var sb strings.Builder
	rest := pattern
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		name := rest[start+1 : start+end]
		if i := strings.IndexByte(name, ':'); i >= 0 {
			name = name[:i]
		}
		sb.WriteString(rest[:start])
		sb.WriteString(":" + name)
		rest = rest[start+end+1:]
	}
}
