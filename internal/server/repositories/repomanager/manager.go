// Package repomanager vends dialect-specific repository implementations and
// runs the matching schema migrations via goose.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gainsborouo/ta-source/internal/dbx"
	"github.com/gainsborouo/ta-source/internal/server/migrations"
	"github.com/gainsborouo/ta-source/internal/server/repositories/courses"
	"github.com/gainsborouo/ta-source/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Courses(db dbx.DBTX) courses.Repository
}

// migrateUp is a seam for testing migrations.Up.
var migrateUp = migrations.Up

// sqlOpen is a seam for testing sql.Open.
var sqlOpen = sql.Open

// New returns the RepositoryManager for a database/sql driver name
// ("pgx" or "sqlite").
func New(driver string) (RepositoryManager, error) {
	switch driver {
	case DriverPostgres:
		return NewPostgresRepositoryManager(), nil
	case DriverSQLite:
		return NewSQLiteRepositoryManager(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open opens a pool for driver/dsn and verifies it with a ping.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

func runMigrations(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	return migrateUp(ctx, db, dialect, dir)
}
