package users

import (
	"context"
	"fmt"

	"github.com/gainsborouo/ta-source/internal/dbx"
	"github.com/gainsborouo/ta-source/internal/server/models"
)

// SQLiteRepository implements Repository for single-node deployments.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `select username, password, email, local, admin from users where username = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *SQLiteRepository) CreateIfAbsent(ctx context.Context, user *models.User) (bool, error) {
	query := `insert into users (username, password, email, local, admin)
			values (?, ?, ?, ?, ?)
			on conflict(username) do nothing`

	res, err := r.db.ExecContext(ctx, query,
		user.Username, user.PasswordHash, nullableEmail(user.Email), user.IsLocal, user.IsAdmin)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return inserted(res)
}
