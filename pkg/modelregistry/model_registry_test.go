package modelregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/ModelSpec/pkg/common"
)

type testWidget struct {
	ID   int64
	Name string
}

func TestRegisterModel(t *testing.T) {
	r := NewModelRegistry()

	require.NoError(t, r.RegisterModel("widgets", &testWidget{}))
	require.Error(t, r.RegisterModel("widgets", testWidget{}), "duplicate names are rejected")

	model, err := r.GetModel("widgets")
	require.NoError(t, err)
	assert.IsType(t, testWidget{}, model)

	rules, err := r.GetModelRules("widgets")
	require.NoError(t, err)
	assert.Equal(t, DefaultModelRules(), rules)
}

func TestRegisterModelValidation(t *testing.T) {
	r := NewModelRegistry()

	assert.Error(t, r.RegisterModel("", testWidget{}))
	assert.Error(t, r.RegisterModel("nil", nil))
	assert.Error(t, r.RegisterModel("int", 5))
	assert.NoError(t, r.RegisterModel("slice", []*testWidget{}))

	_, err := r.GetModel("missing")
	assert.Error(t, err)
	_, err = r.GetModelRules("missing")
	assert.Error(t, err)
	assert.Error(t, r.SetModelRules("missing", ModelRules{}))
}

func TestSetModelRules(t *testing.T) {
	r := NewModelRegistry()
	require.NoError(t, r.RegisterModelWithRules("audits", testWidget{}, ModelRules{CanRead: true, AdminOnly: true}))

	rules, err := r.GetModelRules("audits")
	require.NoError(t, err)
	assert.False(t, rules.VisibleTo(false))
	assert.True(t, rules.VisibleTo(true))

	require.NoError(t, r.SetModelRules("audits", DefaultModelRules()))
	rules, _ = r.GetModelRules("audits")
	assert.True(t, rules.VisibleTo(false))
	model, err := r.GetModel("audits")
	require.NoError(t, err)
	assert.IsType(t, testWidget{}, model, "prototype survives a rules change")
}

func TestRulesAllows(t *testing.T) {
	readOnly := ModelRules{CanRead: true}
	assert.True(t, readOnly.Allows(common.OperationIndex))
	assert.True(t, readOnly.Allows(common.OperationShow))
	assert.False(t, readOnly.Allows(common.OperationCreate))
	assert.False(t, readOnly.Allows(common.OperationPatch))
	assert.Equal(t, []common.Operation{common.OperationIndex, common.OperationShow}, readOnly.Operations())

	assert.Equal(t, DefaultModelRules(), ModelRules{}.OrDefault())
	assert.Equal(t, readOnly, readOnly.OrDefault())
	assert.Len(t, DefaultModelRules().Operations(), 6)
	assert.False(t, DefaultModelRules().Allows(common.Operation("bogus")))
}

func TestNames(t *testing.T) {
	r := NewModelRegistry()
	require.NoError(t, r.RegisterModel("zeta", testWidget{}))
	require.NoError(t, r.RegisterModel("alpha", testWidget{}))
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}
