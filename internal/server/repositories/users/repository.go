// Package users stores user accounts. Implementations exist for PostgreSQL
// and SQLite; both bind to a dbx.DBTX so they work inside or outside a
// transaction.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/gainsborouo/ta-source/internal/server/models"
)

type Repository interface {
	// GetByUsername returns common.ErrorNotFound when no such user exists.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// CreateIfAbsent inserts user unless the username is already taken, in
	// which case the stored row is left untouched. It reports whether this
	// call inserted the row. Concurrent callers for the same username never
	// see a duplicate-key error.
	CreateIfAbsent(ctx context.Context, user *models.User) (bool, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var email sql.NullString

	err := row.Scan(&user.Username, &user.PasswordHash, &email, &user.IsLocal, &user.IsAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.Email = email.String
	return user, nil
}

func nullableEmail(email string) sql.NullString {
	return sql.NullString{String: email, Valid: email != ""}
}

func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}
