package courses

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

func (r *PostgresRepository) List(ctx context.Context) ([]models.Course, error) {
	query :=
		`SELECT id, name FROM courses
		 ORDER BY id
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanCourses(rows)
}
