// Package migrations applies maremma's schema migrations via
// github.com/pressly/goose/v3, embedding the SQL files so the binary
// carries its own schema and needs no separate migration step at
// deploy time.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/maremma/maremma/internal/merrors"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// Dialect names the goose dialect to migrate against.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// Up applies every pending migration embedded under sql/, in filename
// order, against db.
func Up(ctx context.Context, db *sql.DB, dialect Dialect) error {
	goose.SetBaseFS(sqlFiles)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("%w: set dialect %s: %v", merrors.ErrConfiguration, dialect, err)
	}
	if err := goose.UpContext(ctx, db, "sql"); err != nil {
		return fmt.Errorf("%w: apply migrations: %v", merrors.ErrSQL, err)
	}
	return nil
}
