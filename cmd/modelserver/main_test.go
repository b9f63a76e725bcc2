package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderPrincipal(t *testing.T) {
	req := httptest.NewRequest("GET", "/projects", nil)
	assert.Nil(t, headerPrincipal(req))
	assert.Equal(t, "", userKey(req))

	req.Header.Set("X-User-Id", "42")
	p := headerPrincipal(req)
	assert.Equal(t, int64(42), p.ID)
	assert.False(t, p.Elevated)
	assert.Equal(t, "user:42", userKey(req))

	req.Header.Set("X-User-Id", "3fa85f64-5717-4562-b3fc-2c963f66afa6")
	req.Header.Set("X-User-Role", "Admin")
	req.Header.Set("X-Time-Zone", "Europe/Amsterdam")
	p = headerPrincipal(req)
	assert.Equal(t, "3fa85f64-5717-4562-b3fc-2c963f66afa6", p.ID)
	assert.True(t, p.Elevated)
	assert.Equal(t, "Europe/Amsterdam", p.TimeZone)
}

func TestCreateIndexSQL(t *testing.T) {
	assert.Equal(t, "CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks (user_id)",
		createIndexSQL("sqlite", "idx_tasks_user_id", "tasks", "user_id"))
	assert.Equal(t, "IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'idx_tasks_user_id') CREATE INDEX idx_tasks_user_id ON tasks (user_id)",
		createIndexSQL("mssql", "idx_tasks_user_id", "tasks", "user_id"))
}
