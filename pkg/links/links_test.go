package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/bitechdev/ModelSpec/pkg/common"
)

var routes = StaticResolver{
	"books": "/books",
	"book":  "/books/{id}",
	"shelf": "/shelves/{id:[0-9]+}",
}

func TestExpand(t *testing.T) {
	href, ok := routes.ResolveRoute("book", map[string]string{"id": "7", "genre": "sf"})
	require.True(t, ok)
	assert.Equal(t, "/books/7?genre=sf", href)

	href, ok = routes.ResolveRoute("shelf", map[string]string{"id": "3"})
	require.True(t, ok)
	assert.Equal(t, "/shelves/3", href)

	_, ok = routes.ResolveRoute("book", nil)
	assert.False(t, ok)
	_, ok = routes.ResolveRoute("missing", nil)
	assert.False(t, ok)
}

func TestLinksSelfAndCallerLinks(t *testing.T) {
	a := New(routes)
	caller := common.NewLinkSet()
	caller.Set("author", common.Route{Name: "book", Params: map[string]string{"id": "1"}})
	ctx := &common.RequestContext{Route: common.Route{Name: "books"}, Links: caller}

	links := a.Links(ctx, nil)
	assert.Equal(t, []string{"self", "author"}, links.Keys())
	self, _ := links.Get("self")
	assert.Equal(t, "/books", self.Href)
	author, _ := links.Get("author")
	assert.Equal(t, "/books/1", author.Href)
}

func TestCollectionIncludesNavLinks(t *testing.T) {
	a := New(routes)
	nav := common.NewLinkSet()
	nav.Set("next", common.Route{Name: "books", Params: map[string]string{"page": "2"}})
	ctx := &common.RequestContext{Route: common.Route{Name: "books"}}

	links := a.Collection(ctx, common.Route{Name: "books", Params: map[string]string{"page": "1"}}, nav)
	assert.Equal(t, []string{"self", "next"}, links.Keys())
	next, _ := links.Get("next")
	assert.Equal(t, "/books?page=2", next.Href)
}

func TestCollectionCallerLinksWin(t *testing.T) {
	a := New(routes)
	nav := common.NewLinkSet()
	nav.Set("next", common.Route{Name: "books", Params: map[string]string{"page": "2"}})
	nav.Set("last", common.Route{Name: "books", Params: map[string]string{"page": "9"}})
	caller := common.NewLinkSet()
	caller.Set("next", common.Route{Name: "shelf", Params: map[string]string{"id": "4"}})
	ctx := &common.RequestContext{Route: common.Route{Name: "books"}, Links: caller}

	links := a.Collection(ctx, common.Route{Name: "books"}, nav)
	assert.Equal(t, []string{"self", "next", "last"}, links.Keys())
	next, _ := links.Get("next")
	assert.Equal(t, "/shelves/4", next.Href)
	last, _ := links.Get("last")
	assert.Equal(t, "/books?page=9", last.Href)
}

func TestObjectRouteName(t *testing.T) {
	a := New(routes)
	tests := []struct {
		name string
		ctx  *common.RequestContext
		want string
	}{
		{"explicit", &common.RequestContext{Route: common.Route{Name: "books"}, ObjectRoute: "volume"}, "volume"},
		{"singularized", &common.RequestContext{Route: common.Route{Name: "books"}}, "book"},
		{"singular unknown", &common.RequestContext{Route: common.Route{Name: "magazines"}, DefaultObjectRoute: "item"}, "item"},
		{"nil context", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.ObjectRouteName(tt.ctx))
		})
	}
}

func TestObjectAndInject(t *testing.T) {
	a := New(routes)
	links := a.Object("book", map[string]string{"genre": "sf"}, 42)
	self, ok := links.Get("self")
	require.True(t, ok)
	assert.Equal(t, "/books/42?genre=sf", self.Href)
	assert.Nil(t, a.Object("", nil, 1))

	doc, err := Inject([]byte(`{"id":42}`), links)
	require.NoError(t, err)
	assert.Equal(t, "/books/42?genre=sf", gjson.GetBytes(doc, "links.self.href").String())
	assert.Equal(t, "book", gjson.GetBytes(doc, "links.self.route").String())

	same, err := Inject([]byte(`{"id":1}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(same))
}
