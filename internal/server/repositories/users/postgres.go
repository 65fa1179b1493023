package users

import (
	"context"
	"fmt"

	"github.com/gainsborouo/ta-source/internal/dbx"
	"github.com/gainsborouo/ta-source/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query :=
		`SELECT username, password, email, local, admin FROM users
		 WHERE username = $1
		 `

	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, user *models.User) (bool, error) {
	query :=
		`INSERT INTO users (username, password, email, local, admin)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (username) DO NOTHING
		 `

	res, err := r.db.ExecContext(ctx, query,
		user.Username, user.PasswordHash, nullableEmail(user.Email), user.IsLocal, user.IsAdmin)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return inserted(res)
}
