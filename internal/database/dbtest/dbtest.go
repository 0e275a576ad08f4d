// Package dbtest opens throwaway SQLite databases with the identity schema
// applied, for tests in other packages.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/iliyamo/autoshop-identity/internal/config"
	"github.com/iliyamo/autoshop-identity/internal/database"
)

// Open returns a database in t.TempDir(); it is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DBConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "identity.db"),
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.EnsureSchema(t.Context(), db, "sqlite"); err != nil {
		t.Fatalf("applying schema: %v", err)
	}
	return db
}
