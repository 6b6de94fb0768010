package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateMessage(t *testing.T) {
	assert.True(t, isDuplicateMessage("Database record `activity:a1` already exists"))
	assert.True(t, isDuplicateMessage("Database index `idx_unlock_user_badge` already contains ['u1', 'first_steps']"))
	assert.False(t, isDuplicateMessage("Parse error: unexpected token"))
}

func TestSurrealDB_NotConnected(t *testing.T) {
	db := NewSurrealDB(Config{Host: "localhost", Port: "8000"})
	ctx := context.Background()

	assert.ErrorIs(t, db.Ping(ctx), ErrConnection)
	_, err := db.Query(ctx, "RETURN 1", nil)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, db.Execute(ctx, "RETURN 1", nil), ErrConnection)
	assert.NoError(t, db.Close())
}
