package repomanager

import (
	"context"
	"database/sql"

	"github.com/gainsborouo/ta-source/internal/dbx"
	"github.com/gainsborouo/ta-source/internal/server/migrations"
	"github.com/gainsborouo/ta-source/internal/server/repositories/courses"
	"github.com/gainsborouo/ta-source/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DriverSQLite is the database/sql name registered by modernc.org/sqlite.
const DriverSQLite = "sqlite"

// SQLiteRepositoryManager vends SQLite-backed repositories. It suits
// single-node deployments and tests.
type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Courses(db dbx.DBTX) courses.Repository {
	return courses.NewSQLiteRepository(db)
}

// RunMigrations applies the embedded SQLite migrations.
func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return runMigrations(ctx, db, goose.DialectSQLite3, migrations.SQLiteDir)
}

func NewSQLiteRepositoryManager() RepositoryManager {
	return &SQLiteRepositoryManager{}
}
