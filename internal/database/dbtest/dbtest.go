// Package dbtest opens throwaway migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nickmous/beanstash/internal/config"
	"github.com/nickmous/beanstash/internal/database"
)

var seq atomic.Int64

// New returns a private in-memory SQLite database with every migration
// applied. It is closed when the test ends.
func New(t testing.TB) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:dbtest_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := database.Open(config.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, config.DriverSQLite))
	return db
}
