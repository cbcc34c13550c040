// Package driver selects and opens the store.Store implementation
// named by a Configuration's database_file, without the sqlite and
// postgres packages needing to depend on each other.
package driver

import (
	"context"
	"net/url"
	"strings"

	"github.com/maremma/maremma/internal/store"
	"github.com/maremma/maremma/internal/store/postgres"
	"github.com/maremma/maremma/internal/store/sqlite"
)

// Open selects a Store implementation from a database_file value: a
// "postgres://" DSN selects the pgx backend (internal/store/postgres);
// anything else — including the literal ":memory:", which
// modernc.org/sqlite treats as a transient in-memory database — is
// opened as an embedded SQLite file (internal/store/sqlite). The pure
// in-process map-backed implementation in internal/store/memory is
// constructed directly by tests that want a Store with no real
// database at all; it is never reachable through Open.
func Open(ctx context.Context, databaseFile string) (store.Store, error) {
	if isPostgresDSN(databaseFile) {
		return postgres.Open(ctx, databaseFile)
	}
	return sqlite.Open(ctx, databaseFile)
}

func isPostgresDSN(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Scheme, "postgres")
}
