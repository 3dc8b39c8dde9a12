package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dsn := SQLiteDSN(filepath.Join(t.TempDir(), "schema.db"))

	db, err := Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// second open re-runs the schema against existing tables
	db, err = Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(1) FROM roles`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Driver("oracle"), "")
	assert.Error(t, err)
}

func TestIsUniqueViolation_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, SQLiteDSN(filepath.Join(t.TempDir(), "uniq.db")))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `INSERT INTO roles (name, description) VALUES ('ADMIN', 'dup')`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	// a foreign-key failure is a constraint error but not a uniqueness one
	_, err = db.ExecContext(ctx, `INSERT INTO user_roles (user_id, role_name) VALUES ('nobody', 'ADMIN')`)
	require.Error(t, err)
	assert.False(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(nil))
}
