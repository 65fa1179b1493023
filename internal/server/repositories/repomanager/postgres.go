package repomanager

import (
	"context"
	"database/sql"

	"github.com/gainsborouo/ta-source/internal/dbx"
	"github.com/gainsborouo/ta-source/internal/server/migrations"
	"github.com/gainsborouo/ta-source/internal/server/repositories/courses"
	"github.com/gainsborouo/ta-source/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// DriverPostgres is the database/sql name registered by pgx's stdlib.
const DriverPostgres = "pgx"

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// Courses returns a courses.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Courses(db dbx.DBTX) courses.Repository {
	return courses.NewPostgresRepository(db)
}

// RunMigrations applies the embedded PostgreSQL migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return runMigrations(ctx, db, goose.DialectPostgres, migrations.PostgresDir)
}

func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
