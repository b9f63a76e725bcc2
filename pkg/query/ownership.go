package query

import (
	"errors"
	"sort"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/reflection"
)

var ErrNoOwnershipPath = errors.New("Unable to filter results by user; no 'user_id' column or 'user' association found!")

// Ownership configures how rows are tied to the acting principal.
type Ownership struct {
	// UserIDColumn is checked first, default "user_id".
	UserIDColumn string
	// UserAssociation is joined when the column is absent, default "user".
	UserAssociation string
	// Required makes a missing ownership path an error instead of a no-op.
	Required bool
}

func (o Ownership) withDefaults() Ownership {
	if o.UserIDColumn == "" {
		o.UserIDColumn = "user_id"
	}
	if o.UserAssociation == "" {
		o.UserAssociation = "user"
	}
	return o
}

// ShouldScope decides whether ownership narrowing applies. Scoping is skipped
// on explicit opt-out, or for elevated principals who either request admin
// content or already narrowed the query by a foreign key.
func ShouldScope(ctx *common.RequestContext, filteredByForeignKey bool) bool {
	if ctx != nil && ctx.SkipOwnership {
		return false
	}
	if ctx.Elevated() && (ctx.AdminContent || filteredByForeignKey) {
		return false
	}
	return true
}

// ApplyOwnership narrows the scope to rows owned by the principal when
// ShouldScope allows it.
func (s *Scope) ApplyOwnership(o Ownership) error {
	if !ShouldScope(s.ctx, s.FilteredByForeignKey()) {
		return nil
	}
	return s.ScopeToPrincipal(o)
}

// ScopeToPrincipal narrows by the user id column, or through the user
// association when the model has no such column. Without a principal no row matches.
func (s *Scope) ScopeToPrincipal(o Ownership) error {
	o = o.withDefaults()

	var principalID interface{}
	if s.ctx != nil && s.ctx.Principal != nil {
		principalID = s.ctx.Principal.ID
	}

	if s.Model.HasColumn(o.UserIDColumn) {
		if principalID == nil {
			s.Where("1 = 0")
			return nil
		}
		s.WhereEqual(o.UserIDColumn, principalID)
		return nil
	}

	if field, ok := s.Model.Association(o.UserAssociation); ok &&
		(field.Relation.Type == reflection.RelationBelongsTo || field.Relation.Type == reflection.RelationHasOne) {
		alias, user, err := s.joinPath([]string{o.UserAssociation})
		if err != nil {
			return err
		}
		if principalID == nil {
			s.Where("1 = 0")
			return nil
		}
		s.Where(Qualify(alias, user.PrimaryKey)+" = ?", principalID)
		return nil
	}

	if o.Required {
		return ErrNoOwnershipPath
	}
	logger.Debug("No ownership path on %s, leaving query unscoped", s.Model.Name)
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
