package modelspec

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/jinzhu/inflection"

	"github.com/bitechdev/ModelSpec/pkg/apierror"
	"github.com/bitechdev/ModelSpec/pkg/cache"
	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/links"
	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/metadata"
	"github.com/bitechdev/ModelSpec/pkg/metrics"
	"github.com/bitechdev/ModelSpec/pkg/modelregistry"
	"github.com/bitechdev/ModelSpec/pkg/mutation"
	"github.com/bitechdev/ModelSpec/pkg/pagination"
	"github.com/bitechdev/ModelSpec/pkg/params"
	"github.com/bitechdev/ModelSpec/pkg/query"
	"github.com/bitechdev/ModelSpec/pkg/reflection"
	"github.com/bitechdev/ModelSpec/pkg/tracing"
)

// entity is one registered model and its route names.
type entity struct {
	name        string
	objectRoute string
	model       *metadata.Model
	opts        ModelOptions
}

// Handler serves index, show, create, update, patch and destroy for registered models.
type Handler struct {
	db        common.Database
	registry  *modelregistry.DefaultModelRegistry
	meta      *metadata.Registry
	opts      Options
	paginator *pagination.Paginator
	pipeline  *mutation.Pipeline
	links     *links.Assembler

	mu       sync.RWMutex
	entities map[string]*entity
}

// NewHandler creates a handler over db. counts may be nil to disable total caching.
func NewHandler(db common.Database, opts Options, counts *cache.CountCache) *Handler {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = pagination.DefaultPageSize
	}
	return &Handler{
		db:        db,
		registry:  modelregistry.NewModelRegistry(),
		meta:      metadata.Default(),
		opts:      opts,
		paginator: pagination.New(opts.DefaultPageSize, opts.MaxPageSize, counts),
		pipeline:  mutation.New(mutation.NewDBStore(db), counts),
		links:     links.New(nil),
		entities:  make(map[string]*entity),
	}
}

// SetRouteResolver sets the resolver links are built with. Call it before serving.
func (h *Handler) SetRouteResolver(resolver common.RouteResolver) {
	h.links.Resolver = resolver
}

// Registry returns the entity registry.
func (h *Handler) Registry() *modelregistry.DefaultModelRegistry {
	return h.registry
}

// Metadata returns the attribute metadata registry models are built with.
func (h *Handler) Metadata() *metadata.Registry {
	return h.meta
}

// RegisterModel exposes model under name. The zero Rules allow every operation.
func (h *Handler) RegisterModel(name string, model interface{}, opts ModelOptions) error {
	opts.Rules = opts.Rules.OrDefault()
	m, err := h.meta.Get(model)
	if err != nil {
		return fmt.Errorf("registering %s: %w", name, err)
	}
	if err := h.registry.RegisterModelWithRules(name, model, opts.Rules); err != nil {
		return err
	}
	objectRoute := opts.ObjectRoute
	if objectRoute == "" {
		objectRoute = objectRouteName(name)
	}

	h.mu.Lock()
	h.entities[name] = &entity{
		name:        name,
		objectRoute: objectRoute,
		model:       m,
		opts:        opts,
	}
	h.mu.Unlock()
	logger.Info("Registered model %s as %s", m.Name, name)
	return nil
}

func objectRouteName(collection string) string {
	if singular := inflection.Singular(collection); singular != collection {
		return singular
	}
	return collection + "_item"
}

func (h *Handler) entity(name string) (*entity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entities[name]
	return e, ok
}

// exchange is the state of one request while it is handled.
type exchange struct {
	ctx context.Context
	w   common.ResponseWriter
	r   common.Request
	rc  *common.RequestContext
	ent *entity
	id  string

	status int
	result common.Status
}

// Handle serves op on the entity registered as name. Every fault is
// contained here and rendered as an error response.
func (h *Handler) Handle(w common.ResponseWriter, r common.Request, name string, op common.Operation) {
	start := time.Now()
	provider := metrics.GetProvider()
	provider.IncRequestsInFlight()
	defer provider.DecRequestsInFlight()

	ctx, end := tracing.StartOperation(r.UnderlyingRequest().Context(), name, string(op))
	ex := &exchange{ctx: ctx, w: w, r: r, id: r.PathParam(links.IDParam)}

	var fault error
	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			fault = logger.HandlePanic("modelspec.Handle", rec)
			h.sendInternal(ex, fault, string(stack))
		}
		end(string(ex.result), fault)
		provider.RecordHTTPRequest(r.Method(), name, strconv.Itoa(ex.status), time.Since(start))
	}()

	if err := h.dispatch(ex, name, op); err != nil {
		if apierror.Classify(err) == nil {
			fault = err
		}
		h.sendError(ex, err)
	}
}

func (h *Handler) dispatch(ex *exchange, name string, op common.Operation) error {
	ent, ok := h.entity(name)
	if !ok {
		return apierror.NotFound()
	}
	rules, err := h.registry.GetModelRules(name)
	if err != nil {
		return apierror.NotFound()
	}
	ex.ent = ent
	ex.rc = h.requestContext(ex.r, ent, rules, op, ex.id)

	if !rules.VisibleTo(ex.rc.Elevated()) {
		logger.Debug("Masking admin-only %s from non-elevated principal", name)
		return apierror.NotFound()
	}
	if !rules.Allows(op) {
		return apierror.NotImplemented()
	}
	if op.IsWrite() && h.opts.Principal != nil && ex.rc.Principal == nil {
		return apierror.Unauthorized()
	}

	switch op {
	case common.OperationIndex:
		return h.index(ex)
	case common.OperationShow:
		return h.show(ex)
	case common.OperationCreate:
		return h.create(ex)
	case common.OperationUpdate, common.OperationPatch:
		return h.update(ex, op)
	case common.OperationDestroy:
		return h.destroy(ex)
	}
	return apierror.NotImplemented()
}

func (h *Handler) builder(ex *exchange) *query.Builder {
	b := query.NewBuilder(ex.ent.model, ex.rc, h.opts.DefaultTimeZone)
	b.Ownership = h.opts.Ownership
	b.IDAttribute = ex.ent.opts.IDAttribute
	b.Driver = h.db.DriverName()
	return b
}

func (h *Handler) index(ex *exchange) error {
	ent, rc := ex.ent, ex.rc
	raw := ex.r.AllQueryParams()
	filters := params.ParseFilters(ent.model, raw, rc)
	sorts := params.ParseSorts(ent.model, raw["sort_by"], rc)

	rows := ent.model.NewSlice()
	scope, err := h.builder(ex).Collection(h.db.NewSelect().Model(rows), filters.Predicates, sorts.Specs)
	if err != nil {
		return err
	}
	if len(scope.ResultFilters) > 0 || len(scope.ResultSorts) > 0 {
		logger.Debug("%s: %d filters and %d sorts have no column and were not applied to the query",
			ent.name, len(scope.ResultFilters), len(scope.ResultSorts))
	}

	// Cached totals are invalidated per root table only, so joined queries always count.
	var fingerprint string
	if !scope.HasJoins() {
		fingerprint = countFingerprint(rc, filters, sorts)
	}

	page, size := h.paginator.PageRequest(raw, rc)
	res, err := h.paginator.Paginate(ex.ctx, scope.Query, pagination.Request{
		Page:        page,
		PageSize:    size,
		Route:       rc.Route,
		Table:       ent.model.Table,
		Fingerprint: fingerprint,
	})
	if err != nil {
		return err
	}
	if err := metrics.TimeQuery(ent.model.Table, "select", func() error { return res.Query.ScanModel(ex.ctx) }); err != nil {
		return fmt.Errorf("loading %s: %w", ent.name, err)
	}

	items := reflect.ValueOf(rows).Elem()
	data := make([]map[string]interface{}, 0, items.Len())
	for i := 0; i < items.Len(); i++ {
		obj := items.Index(i).Interface()
		rendered := ent.model.Render(obj, rc)
		if objLinks := h.links.Object(h.links.ObjectRouteName(rc), res.ObjectParams, objectID(ent.model, ent.opts.IDAttribute, obj)); objLinks != nil {
			rendered["links"] = objLinks
		}
		data = append(data, rendered)
	}

	ex.w.SetHeader(pagination.TotalCountHeader, strconv.Itoa(res.State.TotalCount))
	h.sendJSON(ex, http.StatusOK, collectionEnvelope{
		Data:      data,
		Count:     res.State.TotalCount,
		Page:      res.State.Page,
		PageSize:  res.State.PageSize,
		PageCount: res.State.PageCount,
		Links:     h.links.Collection(rc, res.CollectionRoute, res.Links),
	})
	return nil
}

func countFingerprint(rc *common.RequestContext, filters params.FilterSet, sorts params.SortSet) string {
	var principal interface{}
	if rc.Principal != nil {
		principal = []interface{}{rc.Principal.ID, rc.Principal.Elevated}
	}
	return cache.Fingerprint(rc.Model, filters.Predicates, sorts.Specs, principal, rc.AdminContent, rc.SkipOwnership, rc.Scope)
}

func (h *Handler) show(ex *exchange) error {
	obj, err := h.load(ex)
	if err != nil {
		return err
	}
	h.sendJSON(ex, http.StatusOK, objectEnvelope{
		Data:  ex.ent.model.Render(obj, ex.rc),
		Links: h.links.Links(ex.rc, nil),
	})
	return nil
}

// load fetches the object addressed by the id path parameter.
func (h *Handler) load(ex *exchange) (interface{}, error) {
	ent := ex.ent
	if ent.opts.IDAttribute == "" && !validID(ex.id) {
		logger.Debug("Rejecting %s id %q", ent.name, ex.id)
		return nil, apierror.NotFound()
	}
	rows := ent.model.NewSlice()
	scope, err := h.builder(ex).Object(ex.ctx, func() common.SelectQuery {
		return h.db.NewSelect().Model(rows)
	}, ex.id)
	if err != nil {
		return nil, err
	}
	if err := metrics.TimeQuery(ent.model.Table, "select", func() error { return scope.Query.Limit(1).ScanModel(ex.ctx) }); err != nil {
		return nil, fmt.Errorf("loading %s %s: %w", ent.name, ex.id, err)
	}
	items := reflect.ValueOf(rows).Elem()
	if items.Len() == 0 {
		return nil, apierror.NotFound()
	}
	return items.Index(0).Interface(), nil
}

// target loads the object a mutation applies to; a missing object is
// reported by the pipeline as a nil target.
func (h *Handler) target(ex *exchange) (interface{}, error) {
	obj, err := h.load(ex)
	if e, ok := apierror.As(err); ok && e.Kind == apierror.KindNotFound {
		return nil, nil
	}
	return obj, err
}

func (h *Handler) create(ex *exchange) error {
	body, err := ex.r.Body()
	if err != nil {
		logger.Warn("Failed to read request body: %v", err)
		return apierror.BadPayload(ex.rc.Format)
	}
	out := h.pipeline.Create(ex.ctx, mutation.Request{Ctx: ex.rc, Model: ex.ent.model, Body: body})
	if !out.OK() {
		return outcomeError(out)
	}
	self := h.objectRoute(ex, objectID(out.Model, ex.ent.opts.IDAttribute, out.Object))
	objLinks := h.links.Links(ex.rc, &self)
	if route, ok := objLinks.Get(links.RelSelf); ok && route.Href != "" {
		ex.w.SetHeader("Location", route.Href)
	}
	h.sendJSON(ex, http.StatusCreated, objectEnvelope{
		Data:  out.Model.Render(out.Object, ex.rc),
		Links: objLinks,
	})
	return nil
}

func (h *Handler) update(ex *exchange, op common.Operation) error {
	target, err := h.target(ex)
	if err != nil {
		return err
	}
	body, err := ex.r.Body()
	if err != nil {
		logger.Warn("Failed to read request body: %v", err)
		return apierror.BadPayload(ex.rc.Format)
	}
	out := h.pipeline.Update(ex.ctx, mutation.Request{
		Ctx:       ex.rc,
		Model:     ex.ent.model,
		Body:      body,
		Target:    target,
		Operation: op,
	})
	if !out.OK() {
		return outcomeError(out)
	}
	h.sendJSON(ex, http.StatusOK, objectEnvelope{
		Data:  out.Model.Render(out.Object, ex.rc),
		Links: h.links.Links(ex.rc, nil),
	})
	return nil
}

func (h *Handler) destroy(ex *exchange) error {
	target, err := h.target(ex)
	if err != nil {
		return err
	}
	out := h.pipeline.Destroy(ex.ctx, mutation.Request{Ctx: ex.rc, Model: ex.ent.model, Target: target})
	if !out.OK() {
		return outcomeError(out)
	}
	h.sendJSON(ex, http.StatusOK, objectEnvelope{
		Data:  ex.ent.model.Render(out.Object, ex.rc),
		Links: h.links.Links(ex.rc, nil),
	})
	return nil
}

func outcomeError(out *mutation.Outcome) error {
	return &apierror.Error{Kind: out.Kind, Entries: out.Errors}
}

// objectID is the value objects are addressed by: idAttr's column, else the primary key.
func objectID(model *metadata.Model, idAttr string, obj interface{}) interface{} {
	column := model.PrimaryKey
	if idAttr != "" {
		if attr, ok := model.Lookup(idAttr); ok && attr.QueryColumn() != "" {
			column = attr.QueryColumn()
		}
	}
	id, _ := reflection.GetFieldByColumn(obj, column)
	return id
}

func (h *Handler) objectRoute(ex *exchange, id interface{}) common.Route {
	route := common.Route{Name: ex.ent.objectRoute, Params: map[string]string{}}
	return route.WithParam(links.IDParam, fmt.Sprint(id))
}
