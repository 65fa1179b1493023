package courses

import (
	"context"
	"fmt"

	"github.com/gainsborouo/ta-source/internal/dbx"
	"github.com/gainsborouo/ta-source/internal/server/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Course, error) {
	rows, err := r.db.QueryContext(ctx, `select id, name from courses order by id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanCourses(rows)
}
