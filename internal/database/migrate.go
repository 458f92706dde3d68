package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func newMigrator(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectMySQL, db, fsys)
}

// Migrate applies every embedded migration that is not yet recorded in the
// goose version table, in version order.  It returns the names of the
// migrations applied by this call.
func Migrate(ctx context.Context, db *sql.DB) ([]string, error) {
	p, err := newMigrator(db)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	results, err := p.Up(ctx)
	done := make([]string, 0, len(results))
	for _, r := range results {
		if r.Error == nil {
			done = append(done, strings.TrimSuffix(path.Base(r.Source.Path), ".sql"))
		}
	}
	if err != nil {
		return done, fmt.Errorf("migrate: %w", err)
	}
	return done, nil
}
