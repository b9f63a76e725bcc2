package modelspec

import (
	"net/http"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/config"
	"github.com/bitechdev/ModelSpec/pkg/modelregistry"
	"github.com/bitechdev/ModelSpec/pkg/pagination"
	"github.com/bitechdev/ModelSpec/pkg/query"
)

// PrincipalFunc resolves the acting principal of a request, nil when anonymous.
type PrincipalFunc func(r *http.Request) *common.Principal

// Options are the handler-wide settings. They are fixed once the handler is built.
type Options struct {
	// Prefix is prepended to every entity route, e.g. "/api".
	Prefix          string
	DefaultPageSize int
	// MaxPageSize clamps page_size; 0 leaves it unbounded.
	MaxPageSize     int
	DefaultTimeZone string
	// Production withholds fault details from internal error responses.
	Production bool
	// Headers are set on every response.
	Headers   map[string]string
	Ownership query.Ownership
	Principal PrincipalFunc
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		DefaultPageSize: pagination.DefaultPageSize,
		DefaultTimeZone: query.FallbackTimeZone,
	}
}

// OptionsFromConfig builds Options from the modelspec configuration section.
func OptionsFromConfig(cfg config.ModelSpecConfig) Options {
	opts := DefaultOptions()
	if cfg.DefaultPageSize > 0 {
		opts.DefaultPageSize = cfg.DefaultPageSize
	}
	if cfg.MaxPageSize > 0 {
		opts.MaxPageSize = cfg.MaxPageSize
	}
	if cfg.DefaultTimeZone != "" {
		opts.DefaultTimeZone = cfg.DefaultTimeZone
	}
	opts.Production = cfg.IsProduction()
	opts.Ownership = query.Ownership{
		UserIDColumn:    cfg.UserIDColumn,
		UserAssociation: cfg.UserAssociation,
	}
	return opts
}

// ModelOptions configure one registered entity.
type ModelOptions struct {
	Rules modelregistry.ModelRules
	// ObjectRoute names the per-object route. Empty derives it from the
	// collection name.
	ObjectRoute string
	// IDAttribute addresses objects by another attribute than the primary key.
	IDAttribute string
	// RootElement wraps XML and YAML bodies; defaults to the snake_case model name.
	RootElement string
	// Scope is a static equality narrowing applied to every query on the entity.
	Scope map[string]interface{}
	// Links are merged into every response for the entity.
	Links *common.LinkSet
}

// DefaultModelOptions allow every operation with ownership enforced.
func DefaultModelOptions() ModelOptions {
	return ModelOptions{Rules: modelregistry.DefaultModelRules()}
}
