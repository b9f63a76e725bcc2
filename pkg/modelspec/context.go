package modelspec

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/links"
	"github.com/bitechdev/ModelSpec/pkg/modelregistry"
	"github.com/bitechdev/ModelSpec/pkg/mutation"
	"github.com/bitechdev/ModelSpec/pkg/pagination"
)

// ParamAdmin requests privileged content for elevated principals.
const ParamAdmin = "admin"

// requestContext records everything recognized about r. The result is not
// modified once handling starts.
func (h *Handler) requestContext(r common.Request, ent *entity, rules modelregistry.ModelRules, op common.Operation, id string) *common.RequestContext {
	query := r.AllQueryParams()

	var principal *common.Principal
	if h.opts.Principal != nil {
		principal = h.opts.Principal(r.UnderlyingRequest())
	}

	route := common.Route{Name: ent.name, Params: query}
	if id != "" {
		objectParams := make(map[string]string, len(query))
		for k, v := range query {
			if k != pagination.ParamPage && k != pagination.ParamPageSize {
				objectParams[k] = v
			}
		}
		route = common.Route{Name: ent.objectRoute, Params: objectParams}.WithParam(links.IDParam, id)
	}

	return &common.RequestContext{
		Model:              ent.name,
		Action:             string(op),
		Operation:          op,
		Principal:          principal,
		AdminContent:       truthy(query[ParamAdmin]),
		SkipOwnership:      rules.SkipOwnership,
		Scope:              ent.opts.Scope,
		Route:              route,
		ObjectRoute:        ent.opts.ObjectRoute,
		DefaultObjectRoute: ent.objectRoute,
		Links:              ent.opts.Links,
		Format:             mutation.NormalizeFormat(r.Header("Content-Type")),
		RootElement:        ent.opts.RootElement,
	}
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	}
	return false
}

// validID accepts numeric and UUID object ids.
func validID(id string) bool {
	if id == "" {
		return false
	}
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}
