// Package modelspec exposes registered models over HTTP.
//
// Each model registered under a collection name gets two routes:
//
//	GET    /{collection}       index: filter, sort and paginate from query parameters
//	POST   /{collection}       create
//	GET    /{collection}/{id}  show
//	PUT    /{collection}/{id}  update
//	PATCH  /{collection}/{id}  patch: only the fields present in the body
//	DELETE /{collection}/{id}  destroy: soft when the model carries a deleted marker
//
// The collection route is named after the collection and the object route
// after its singular, so links can be resolved from route names.
//
// # Usage Example
//
//	handler := modelspec.NewHandlerWithBun(db, modelspec.DefaultOptions(), nil)
//	handler.RegisterModel("projects", Project{}, modelspec.DefaultModelOptions())
//
//	muxRouter := mux.NewRouter()
//	modelspec.SetupMuxRoutes(muxRouter, handler)
//
//	// GET /projects?status=open&budget=>1000&sort_by=-created_at&page=2
package modelspec

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/uptrace/bun"
	"github.com/uptrace/bunrouter"
	"gorm.io/gorm"

	"github.com/bitechdev/ModelSpec/pkg/cache"
	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/common/adapters/database"
	"github.com/bitechdev/ModelSpec/pkg/common/adapters/router"
)

// NewHandlerWithGORM creates a new Handler with GORM adapter
func NewHandlerWithGORM(db *gorm.DB, opts Options, counts *cache.CountCache) *Handler {
	return NewHandler(database.NewGormAdapter(db), opts, counts)
}

// NewHandlerWithBun creates a new Handler with Bun adapter
func NewHandlerWithBun(db *bun.DB, opts Options, counts *cache.CountCache) *Handler {
	return NewHandler(database.NewBunAdapter(db), opts, counts)
}

// SetupRoutes registers the routes of every model registered so far.
// Models registered afterwards are not routed.
func SetupRoutes(r common.Router, h *Handler) {
	for _, name := range h.registry.Names() {
		ent, ok := h.entity(name)
		if !ok {
			continue
		}
		collection := h.opts.Prefix + "/" + name
		r.HandleFunc(collection, h.route(name, map[string]common.Operation{
			http.MethodGet:  common.OperationIndex,
			http.MethodPost: common.OperationCreate,
		})).Methods(http.MethodGet, http.MethodPost).Name(name)

		r.HandleFunc(collection+"/{id}", h.route(name, map[string]common.Operation{
			http.MethodGet:    common.OperationShow,
			http.MethodPut:    common.OperationUpdate,
			http.MethodPatch:  common.OperationPatch,
			http.MethodDelete: common.OperationDestroy,
		})).Methods(http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete).Name(ent.objectRoute)
	}
}

func (h *Handler) route(name string, ops map[string]common.Operation) common.HTTPHandlerFunc {
	return func(w common.ResponseWriter, r common.Request) {
		op, ok := ops[r.Method()]
		if !ok {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Handle(w, r, name, op)
	}
}

// SetupMuxRoutes routes every registered model on muxRouter and resolves
// links through its named routes.
func SetupMuxRoutes(muxRouter *mux.Router, h *Handler) *router.MuxAdapter {
	adapter := router.NewMuxAdapter(muxRouter)
	SetupRoutes(adapter, h)
	h.SetRouteResolver(adapter)
	return adapter
}

// SetupBunRouterRoutes routes every registered model on bunRouter.
func SetupBunRouterRoutes(bunRouter *bunrouter.Router, h *Handler) *router.BunRouterAdapter {
	adapter := router.NewBunRouterAdapter(bunRouter)
	SetupRoutes(adapter, h)
	h.SetRouteResolver(adapter)
	return adapter
}
