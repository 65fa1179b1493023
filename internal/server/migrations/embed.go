// Package migrations embeds the goose schema migrations, one directory per
// SQL dialect.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// Directory names inside Migrations.
const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)

//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS

// Up applies the migrations in dir to db. Each call gets its own goose
// provider, so concurrent callers with different dialects do not share
// goose's package-level settings.
func Up(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	fsys, err := fs.Sub(Migrations, dir)
	if err != nil {
		return fmt.Errorf("migrations dir %q: %w", dir, err)
	}

	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	_, err = p.Up(ctx)
	return err
}
