// Package links assembles the hyperlink descriptors attached to responses.
package links

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/tidwall/sjson"

	"github.com/bitechdev/ModelSpec/pkg/common"
)

const (
	RelSelf = "self"

	// IDParam is the path parameter object routes are addressed by.
	IDParam = "id"
)

// Assembler builds link sets. Without a Resolver routes are emitted by name only.
type Assembler struct {
	Resolver common.RouteResolver
}

func New(resolver common.RouteResolver) *Assembler {
	return &Assembler{Resolver: resolver}
}

// Links returns self, defaulting to the current route, merged with the
// caller supplied links. Caller links win over self.
func (a *Assembler) Links(ctx *common.RequestContext, self *common.Route) *common.LinkSet {
	links := common.NewLinkSet()
	switch {
	case self != nil:
		links.Set(RelSelf, a.resolve(*self))
	case ctx != nil && ctx.Route.Name != "":
		links.Set(RelSelf, a.resolve(ctx.Route))
	}
	if ctx != nil {
		a.merge(links, ctx.Links)
	}
	return links
}

// Collection links a collection response: self is the collection route,
// then nav (pagination) links, then the caller's links, which win.
func (a *Assembler) Collection(ctx *common.RequestContext, collection common.Route, nav *common.LinkSet) *common.LinkSet {
	links := common.NewLinkSet()
	links.Set(RelSelf, a.resolve(collection))
	a.merge(links, nav)
	if ctx != nil {
		a.merge(links, ctx.Links)
	}
	return links
}

func (a *Assembler) merge(dst, src *common.LinkSet) {
	for _, rel := range src.Keys() {
		route, _ := src.Get(rel)
		dst.Set(rel, a.resolve(route))
	}
}

// ObjectRouteName picks the per-object route of a collection: the explicit
// object route, else the singular of the current route when it resolves,
// else the default object route.
func (a *Assembler) ObjectRouteName(ctx *common.RequestContext) string {
	if ctx == nil {
		return ""
	}
	if ctx.ObjectRoute != "" {
		return ctx.ObjectRoute
	}
	if ctx.Route.Name != "" && a.Resolver != nil {
		singular := inflection.Singular(ctx.Route.Name)
		if singular != ctx.Route.Name {
			if _, ok := a.Resolver.ResolveRoute(singular, map[string]string{IDParam: "0"}); ok {
				return singular
			}
		}
	}
	return ctx.DefaultObjectRoute
}

// Object returns the self link of one object under routeName with params
// and the object's id. It returns nil when routeName is empty.
func (a *Assembler) Object(routeName string, params map[string]string, id interface{}) *common.LinkSet {
	if routeName == "" {
		return nil
	}
	route := common.Route{Name: routeName, Params: params}
	if id != nil {
		route = route.WithParam(IDParam, fmt.Sprint(id))
	}
	links := common.NewLinkSet()
	links.Set(RelSelf, a.resolve(route))
	return links
}

func (a *Assembler) resolve(r common.Route) common.Route {
	if a == nil || a.Resolver == nil || r.Href != "" {
		return r
	}
	if href, ok := a.Resolver.ResolveRoute(r.Name, r.Params); ok {
		r.Href = href
	}
	return r
}

// Inject sets doc.links to links. doc must be a JSON object.
func Inject(doc []byte, links *common.LinkSet) ([]byte, error) {
	if links == nil || links.Len() == 0 {
		return doc, nil
	}
	raw, err := json.Marshal(links)
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(doc, "links", raw)
}

// StaticResolver resolves route names against a fixed table of path
// patterns using {param} placeholders. Params not used by the pattern are
// appended as a query string.
type StaticResolver map[string]string

func (s StaticResolver) ResolveRoute(name string, params map[string]string) (string, bool) {
	pattern, ok := s[name]
	if !ok {
		return "", false
	}
	return Expand(pattern, params)
}

// Expand fills the {param} placeholders of pattern. It fails when a
// placeholder has no value.
func Expand(pattern string, params map[string]string) (string, bool) {
	used := make(map[string]bool)
	var b strings.Builder
	rest := pattern
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		name := rest[start+1 : start+end]
		if i := strings.IndexByte(name, ':'); i >= 0 {
			name = name[:i]
		}
		value, ok := params[name]
		if !ok {
			return "", false
		}
		used[name] = true
		b.WriteString(rest[:start])
		b.WriteString(url.PathEscape(value))
		rest = rest[start+end+1:]
	}
	return b.String() + Query(params, used), true
}

// Query encodes params not in skip as a sorted query string with a leading '?'.
func Query(params map[string]string, skip map[string]bool) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	values := url.Values{}
	for _, k := range keys {
		values.Set(k, params[k])
	}
	return "?" + values.Encode()
}
