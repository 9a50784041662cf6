package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"github.com/stretchr/testify/require"
)

// OpenSQLite opens a SQLite database stored under t.TempDir().
//
// The pool holds a single connection so statements on one database never
// contend for SQLite's write lock. The database is closed when the test
// completes.
//
// Parameters:
//   - t: The testing context
//   - name: Database file name without extension
//
// Returns:
//   - *sql.DB: An open database
func OpenSQLite(t *testing.T, name string) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	require.NoError(t, err, "failed to open sqlite database")

	db.SetMaxOpenConns(1)
	require.NoError(t, db.Ping(), "failed to ping sqlite database")

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}
