package reflection

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type testOwner struct {
	bun.BaseModel `bun:"table:owners"`

	ID   int64  `bun:"id,pk,autoincrement" json:"id"`
	Name string `bun:"name" json:"name"`
}

type testWidget struct {
	bun.BaseModel `bun:"table:widgets"`

	ID        int64         `bun:"id,pk,autoincrement" json:"id"`
	Name      string        `bun:"name" json:"name"`
	Price     float64       `bun:"price" json:"price"`
	Deleted   bool          `bun:"deleted" json:"deleted"`
	OwnerID   int64         `bun:"owner_id" json:"owner_id"`
	Owner     *testOwner    `bun:"rel:belongs-to,join:owner_id=id" json:"owner,omitempty"`
	Parts     []*testPart   `bun:"rel:has-many,join:id=widget_id" json:"parts,omitempty"`
	MadeAt    time.Time     `bun:"made_at" json:"made_at"`
	Serial    uuid.UUID     `bun:"serial,type:uuid" json:"serial"`
	Weight    sql.NullInt64 `bun:"weight" json:"weight"`
	Computed  string        `bun:"computed,scanonly" json:"computed"`
	Ignored   string        `bun:"-" json:"-"`
	unexposed string
}

type testPart struct {
	ID       int64 `gorm:"column:id;primaryKey"`
	WidgetID int64 `gorm:"column:widget_id"`
}

type gormTicket struct {
	ID         uint      `gorm:"primaryKey"`
	ReporterID uint      `gorm:"column:reporter_id"`
	Reporter   *gormUser `gorm:"foreignKey:ReporterID"`
	Comments   []gormComment
}

type gormUser struct {
	ID uint `gorm:"primaryKey"`
}

type gormComment struct {
	ID           uint `gorm:"primaryKey"`
	GormTicketID uint
}

func (gormTicket) TableName() string { return "tickets" }

func TestTableName(t *testing.T) {
	assert.Equal(t, "widgets", TableName(testWidget{}))
	assert.Equal(t, "widgets", TableName(&testWidget{}))
	assert.Equal(t, "widgets", TableName([]testWidget{}))
	assert.Equal(t, "tickets", TableName(gormTicket{}))
	assert.Equal(t, "gorm_users", TableName(gormUser{}))
	assert.Equal(t, "", TableName(42))
}

func TestFields(t *testing.T) {
	fields := Fields(testWidget{})
	byName := map[string]Field{}
	for _, f := range fields {
		byName[f.Name] = f
	}

	assert.NotContains(t, byName, "Ignored")
	assert.NotContains(t, byName, "unexposed")
	assert.NotContains(t, byName, "BaseModel")

	assert.True(t, byName["ID"].PrimaryKey)
	assert.Equal(t, KindInteger, byName["ID"].Kind)
	assert.Equal(t, KindFloat, byName["Price"].Kind)
	assert.Equal(t, KindBool, byName["Deleted"].Kind)
	assert.Equal(t, KindTime, byName["MadeAt"].Kind)
	assert.Equal(t, KindUUID, byName["Serial"].Kind)
	assert.Equal(t, KindInteger, byName["Weight"].Kind)
	assert.True(t, byName["Computed"].ReadOnly)

	owner := byName["Owner"]
	require.NotNil(t, owner.Relation)
	assert.Equal(t, RelationBelongsTo, owner.Relation.Type)
	assert.Equal(t, "owner_id", owner.Relation.BaseColumn)
	assert.Equal(t, "id", owner.Relation.RelatedColumn)
	assert.Equal(t, reflect.TypeOf(testOwner{}), owner.Relation.Model)

	parts := byName["Parts"]
	require.NotNil(t, parts.Relation)
	assert.Equal(t, RelationHasMany, parts.Relation.Type)
	assert.Equal(t, "widget_id", parts.Relation.RelatedColumn)
}

func TestGormRelations(t *testing.T) {
	byName := map[string]Field{}
	for _, f := range Fields(gormTicket{}) {
		byName[f.Name] = f
	}

	reporter := byName["Reporter"]
	require.NotNil(t, reporter.Relation)
	assert.Equal(t, RelationBelongsTo, reporter.Relation.Type)
	assert.Equal(t, "reporter_id", reporter.Relation.BaseColumn)

	comments := byName["Comments"]
	require.NotNil(t, comments.Relation)
	assert.Equal(t, RelationHasMany, comments.Relation.Type)
	assert.Equal(t, "gorm_ticket_id", comments.Relation.RelatedColumn)

	assert.Equal(t, "id", GetPrimaryKeyName(gormTicket{}))
}

func TestFieldAccess(t *testing.T) {
	w := &testWidget{ID: 7, Name: "bolt"}

	assert.Equal(t, "id", GetPrimaryKeyName(w))
	assert.Equal(t, int64(7), GetPrimaryKeyValue(w))

	v, ok := GetFieldByColumn(w, "name")
	require.True(t, ok)
	assert.Equal(t, "bolt", v)

	_, ok = GetFieldByColumn(w, "missing")
	assert.False(t, ok)

	require.NoError(t, SetFieldByColumn(w, "price", "12.5"))
	assert.Equal(t, 12.5, w.Price)

	require.NoError(t, SetFieldByColumn(w, "owner_id", float64(3)))
	assert.Equal(t, int64(3), w.OwnerID)

	require.NoError(t, SetFieldByColumn(w, "deleted", "true"))
	assert.True(t, w.Deleted)

	require.NoError(t, SetFieldByColumn(w, "serial", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", w.Serial.String())

	require.NoError(t, SetFieldByColumn(w, "weight", float64(40)))
	assert.Equal(t, sql.NullInt64{Int64: 40, Valid: true}, w.Weight)

	require.NoError(t, SetFieldByColumn(w, "made_at", "2024-03-01T10:00:00Z"))
	assert.Equal(t, 2024, w.MadeAt.Year())

	err := SetFieldByColumn(w, "owner_id", 1.5)
	require.Error(t, err)
	var fe *FieldError
	assert.ErrorAs(t, err, &fe)

	assert.Error(t, SetFieldByColumn(w, "nope", 1))
	assert.Error(t, SetFieldByColumn(*w, "name", "x"))
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"OwnerID":    "owner_id",
		"Name":       "name",
		"HTTPServer": "http_server",
		"madeAt":     "made_at",
		"Item2Name":  "item2_name",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ToSnakeCase(in))
		})
	}
}
