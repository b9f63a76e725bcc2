package main

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"gorm.io/gorm"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/modelregistry"
	"github.com/bitechdev/ModelSpec/pkg/modelspec"
)

type User struct {
	bun.BaseModel `bun:"table:users" gorm:"-"`

	ID       int64  `bun:"id,pk,autoincrement" gorm:"column:id;primaryKey" json:"id" api:",filter,sort"`
	Name     string `bun:"name" gorm:"column:name" json:"name" api:",filter,sort,write"`
	Email    string `bun:"email" gorm:"column:email" json:"email" api:",filter,write"`
	TimeZone string `bun:"time_zone" gorm:"column:time_zone" json:"time_zone" api:",write"`
}

func (User) TableName() string { return "users" }

type Project struct {
	bun.BaseModel `bun:"table:projects" gorm:"-"`

	ID        int64     `bun:"id,pk,autoincrement" gorm:"column:id;primaryKey" json:"id" api:",filter,sort"`
	UserID    int64     `bun:"user_id" gorm:"column:user_id" json:"user_id" api:",filter,create"`
	Title     string    `bun:"title" gorm:"column:title" json:"title" api:",filter,sort,write"`
	Budget    float64   `bun:"budget" gorm:"column:budget" json:"budget" api:",filter,sort,write"`
	StartsOn  time.Time `bun:"starts_on,nullzero" gorm:"column:starts_on" json:"starts_on" api:",filter,sort,desc,write"`
	Deleted   bool      `bun:"deleted" gorm:"column:deleted" json:"deleted"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:current_timestamp" gorm:"column:created_at;autoCreateTime" json:"created_at" api:",sort,desc"`

	User *User `bun:"rel:belongs-to,join:user_id=id" gorm:"foreignKey:UserID" json:"user,omitempty" api:",filter,sort"`
}

func (Project) TableName() string { return "projects" }

type Task struct {
	bun.BaseModel `bun:"table:tasks" gorm:"-"`

	ID        int64  `bun:"id,pk,autoincrement" gorm:"column:id;primaryKey" json:"id" api:",filter,sort"`
	ProjectID int64  `bun:"project_id" gorm:"column:project_id" json:"project_id" api:",filter,create"`
	UserID    int64  `bun:"user_id" gorm:"column:user_id" json:"user_id" api:",filter,create"`
	Title     string `bun:"title" gorm:"column:title" json:"title" api:",filter,sort,write"`
	Done      bool   `bun:"done" gorm:"column:done" json:"done" api:",filter,sort,write"`
	Priority  int    `bun:"priority" gorm:"column:priority" json:"priority" api:",filter,sort,desc,write"`

	Project *Project `bun:"rel:belongs-to,join:project_id=id" gorm:"foreignKey:ProjectID" json:"project,omitempty" api:",filter,sort"`
}

func (Task) TableName() string { return "tasks" }

// registerModels exposes the demo entities. users is admin-only and read-only.
func registerModels(h *modelspec.Handler) error {
	users := modelspec.DefaultModelOptions()
	users.Rules = modelregistry.ModelRules{CanRead: true, AdminOnly: true, SkipOwnership: true}

	entities := []struct {
		name  string
		model interface{}
		opts  modelspec.ModelOptions
	}{
		{"users", User{}, users},
		{"projects", Project{}, modelspec.DefaultModelOptions()},
		{"tasks", Task{}, modelspec.DefaultModelOptions()},
	}
	for _, e := range entities {
		if err := h.RegisterModel(e.name, e.model, e.opts); err != nil {
			return fmt.Errorf("register %s: %w", e.name, err)
		}
	}
	return nil
}

// foreignKeyIndexes back the ownership and association joins.
var foreignKeyIndexes = []struct{ name, table, column string }{
	{"idx_projects_user_id", "projects", "user_id"},
	{"idx_tasks_project_id", "tasks", "project_id"},
	{"idx_tasks_user_id", "tasks", "user_id"},
}

// migrate creates the demo tables and their indexes when they do not exist.
func migrate(ctx context.Context, db common.Database) error {
	switch native := db.GetUnderlyingDB().(type) {
	case *bun.DB:
		for _, model := range []interface{}{(*User)(nil), (*Project)(nil), (*Task)(nil)} {
			if _, err := native.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return err
			}
		}
	case *gorm.DB:
		if err := native.WithContext(ctx).AutoMigrate(&User{}, &Project{}, &Task{}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cannot migrate %T", db.GetUnderlyingDB())
	}
	for _, idx := range foreignKeyIndexes {
		if _, err := db.Exec(ctx, createIndexSQL(db.DriverName(), idx.name, idx.table, idx.column)); err != nil {
			return fmt.Errorf("creating index %s: %w", idx.name, err)
		}
	}
	return nil
}

// createIndexSQL returns an idempotent CREATE INDEX for driver. SQL Server
// has no IF NOT EXISTS for indexes.
func createIndexSQL(driver, name, table, column string) string {
	if driver == "mssql" {
		return fmt.Sprintf(`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = '%s') CREATE INDEX %s ON %s (%s)`,
			name, name, table, column)
	}
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`, name, table, column)
}
