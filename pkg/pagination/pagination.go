// Package pagination computes page bookkeeping and navigation links for
// collection queries.
package pagination

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bitechdev/ModelSpec/pkg/cache"
	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/metrics"
	"github.com/bitechdev/ModelSpec/pkg/tracing"
)

const (
	DefaultPageSize = 100

	ParamPage     = "page"
	ParamPageSize = "page_size"

	// TotalCountHeader carries State.TotalCount in responses.
	TotalCountHeader = "X-Total-Count"
)

// State is the bookkeeping of one paginated collection request.
type State struct {
	TotalCount int `json:"total_count"`
	PageSize   int `json:"page_size"`
	Page       int `json:"page"`
	PageCount  int `json:"page_count"`
	Offset     int `json:"offset"`
}

// NewState clamps page to [1, PageCount]. There is always at least one page.
func NewState(total, page, size int) State {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	count := (total + size - 1) / size
	if count < 1 {
		count = 1
	}
	if page > count {
		page = count
	}
	return State{
		TotalCount: total,
		PageSize:   size,
		Page:       page,
		PageCount:  count,
		Offset:     (page - 1) * size,
	}
}

// Paginated reports whether the total exceeds one page.
func (s State) Paginated() bool {
	return s.TotalCount > s.PageSize
}

// Request describes one paginate call.
type Request struct {
	Page     int
	PageSize int
	// Route is the current collection route; its params are the request params.
	Route common.Route
	// Table and Fingerprint key the cached total; an empty Fingerprint disables caching.
	Table       string
	Fingerprint string
}

// Result is the narrowed query plus everything needed to render the page.
type Result struct {
	Query common.SelectQuery
	State State
	// Links holds next, prev, first and last, in that order, when paginated.
	Links *common.LinkSet
	// CollectionRoute is Route without page, or with the clamped page when paginated.
	CollectionRoute common.Route
	// ObjectParams are the request params minus page and page_size.
	ObjectParams map[string]string
}

// Paginator narrows collection queries to one page.
type Paginator struct {
	DefaultPageSize int
	// MaxPageSize clamps requested sizes; 0 means unbounded.
	MaxPageSize int
	// Counts caches totals when set.
	Counts *cache.CountCache
}

// New returns a Paginator with the given default and max page size.
func New(defaultSize, maxSize int, counts *cache.CountCache) *Paginator {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	return &Paginator{DefaultPageSize: defaultSize, MaxPageSize: maxSize, Counts: counts}
}

// PageRequest reads page and page_size from params. Context overrides win;
// a missing, unparsable or non-positive size uses the default.
func (p *Paginator) PageRequest(params map[string]string, ctx *common.RequestContext) (int, int) {
	page := atoiOr(params[ParamPage], 1)
	size := atoiOr(params[ParamPageSize], 0)
	if ctx != nil {
		if ctx.Page > 0 {
			page = ctx.Page
		}
		if ctx.PageSize > 0 {
			size = ctx.PageSize
		}
	}
	if size <= 0 {
		size = p.DefaultPageSize
		if size <= 0 {
			size = DefaultPageSize
		}
	}
	if p.MaxPageSize > 0 && size > p.MaxPageSize {
		size = p.MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	return page, size
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Paginate counts q once, clamps the page and, only when the total exceeds
// one page, applies limit and offset and builds the navigation links.
func (p *Paginator) Paginate(ctx context.Context, q common.SelectQuery, req Request) (*Result, error) {
	total, err := p.total(ctx, q, req)
	if err != nil {
		return nil, err
	}

	state := NewState(total, req.Page, req.PageSize)
	res := &Result{
		Query:           q,
		State:           state,
		Links:           common.NewLinkSet(),
		CollectionRoute: without(req.Route, ParamPage),
		ObjectParams:    without(req.Route, ParamPage, ParamPageSize).Params,
	}

	if !state.Paginated() {
		return res, nil
	}

	res.CollectionRoute = res.CollectionRoute.WithParam(ParamPage, strconv.Itoa(state.Page))
	res.Links = NavLinks(res.CollectionRoute, state)
	res.Query = q.Limit(state.PageSize).Offset(state.Offset)
	return res, nil
}

func (p *Paginator) total(ctx context.Context, q common.SelectQuery, req Request) (int, error) {
	useCache := p.Counts != nil && req.Fingerprint != ""
	if useCache {
		if n, ok := p.Counts.Get(ctx, req.Table, req.Fingerprint); ok {
			logger.Debug("Using cached total %d for %s", n, req.Table)
			tracing.AddEvent(ctx, "count.cached", attribute.String("table", req.Table), attribute.Int("total", n))
			return n, nil
		}
	}
	var n int
	err := metrics.TimeQuery(req.Table, "count", func() (err error) {
		n, err = q.Count(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", req.Table, err)
	}
	if useCache {
		p.Counts.Set(ctx, req.Table, req.Fingerprint, n)
	}
	return n, nil
}

// NavLinks returns next, prev, first and last links for route. next is
// omitted on the last page and prev on the first.
func NavLinks(route common.Route, state State) *common.LinkSet {
	links := common.NewLinkSet()
	if state.Page < state.PageCount {
		links.Set("next", route.WithParam(ParamPage, strconv.Itoa(state.Page+1)))
	}
	if state.Page > 1 {
		links.Set("prev", route.WithParam(ParamPage, strconv.Itoa(state.Page-1)))
	}
	links.Set("first", route.WithParam(ParamPage, "1"))
	links.Set("last", route.WithParam(ParamPage, strconv.Itoa(state.PageCount)))
	return links
}

func without(r common.Route, keys ...string) common.Route {
	params := make(map[string]string, len(r.Params))
	for k, v := range r.Params {
		params[k] = v
	}
	for _, k := range keys {
		delete(params, k)
	}
	r.Params = params
	r.Href = ""
	return r
}
