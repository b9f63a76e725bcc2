package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkSetOrderAndJSON(t *testing.T) {
	links := NewLinkSet()
	links.Set("self", Route{Name: "project", Params: map[string]string{"id": "1"}})
	links.Set("next", Route{Name: "projects", Params: map[string]string{"page": "2"}})
	links.Set("prev", Route{Name: "projects"})
	links.Set("self", Route{Name: "project", Href: "/projects/1"})
	links.Delete("prev")
	links.Delete("missing")

	assert.Equal(t, []string{"self", "next"}, links.Keys())
	assert.Equal(t, 2, links.Len())
	self, ok := links.Get("self")
	require.True(t, ok)
	assert.Equal(t, "/projects/1", self.Href)

	data, err := json.Marshal(links)
	require.NoError(t, err)
	assert.Equal(t, `{"self":{"route":"project","href":"/projects/1"},"next":{"route":"projects","params":{"page":"2"}}}`, string(data))
}

func TestLinkSetMergeAndNil(t *testing.T) {
	var empty *LinkSet
	assert.Equal(t, 0, empty.Len())
	assert.False(t, empty.Has("self"))
	assert.Nil(t, empty.Keys())
	data, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	base := NewLinkSet()
	base.Set("self", Route{Name: "a"})
	extra := NewLinkSet()
	extra.Set("docs", Route{Name: "docs"})
	extra.Set("self", Route{Name: "b"})
	base.Merge(extra)
	base.Merge(nil)

	assert.Equal(t, []string{"self", "docs"}, base.Keys())
	self, _ := base.Get("self")
	assert.Equal(t, "b", self.Name)
}

func TestRouteWithParamCopies(t *testing.T) {
	r := Route{Name: "projects", Params: map[string]string{"sort_by": "title"}}
	paged := r.WithParam("page", "3")

	assert.Equal(t, map[string]string{"sort_by": "title", "page": "3"}, paged.Params)
	assert.NotContains(t, r.Params, "page")
}

func TestOperations(t *testing.T) {
	assert.Equal(t, OperationCreate, OperationFromAction("create_batch"))
	assert.Equal(t, OperationDestroy, OperationFromAction("Delete"))
	assert.Equal(t, OperationPatch, OperationFromAction("patch"))
	assert.Equal(t, Operation(""), OperationFromAction("publish"))

	assert.True(t, OperationPatch.IsWrite())
	assert.False(t, OperationShow.IsWrite())

	rc := &RequestContext{Action: "update_all"}
	assert.Equal(t, OperationUpdate, rc.ResolvedOperation())
	rc.Operation = OperationPatch
	assert.Equal(t, OperationPatch, rc.ResolvedOperation())

	var none *RequestContext
	assert.Equal(t, Operation(""), none.ResolvedOperation())
	assert.False(t, none.Elevated())
	assert.True(t, (&RequestContext{Principal: &Principal{Elevated: true}}).Elevated())
}

func TestPredicateKeys(t *testing.T) {
	p := FilterPredicate{Path: []string{"owner", "team"}, Key: "name", Operator: OpEqual}
	assert.Equal(t, "owner.team.name", p.FullKey())
	assert.Equal(t, "title", SortSpec{Key: "title"}.FullKey())
	assert.Equal(t, "DESC", DirectionDesc.SQL())
	assert.Equal(t, "ASC", DirectionDefault.SQL())
}
