package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/autoshop-identity/internal/config"
)

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "identity.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var one int
	require.NoError(t, db.QueryRow("SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.DBConfig{Driver: "oracle"})
	require.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	dsn := mysqlDSN(config.DBConfig{User: "app", Pass: "pw", Host: "db", Port: "3306", Name: "identity"})
	assert.Contains(t, dsn, "app:pw@tcp(db:3306)/identity")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestEnsureSchema_SQLiteIsIdempotent(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "identity.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, EnsureSchema(t.Context(), db, "sqlite"))
	require.NoError(t, EnsureSchema(t.Context(), db, "sqlite"))

	var n int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('principals','sessions')").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestEnsureSchema_UnknownDriver(t *testing.T) {
	assert.Error(t, EnsureSchema(t.Context(), nil, "oracle"))
}
