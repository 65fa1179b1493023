// Package courses reads course metadata.
package courses

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gainsborouo/ta-source/internal/server/models"
)

type Repository interface {
	// List returns every course ordered by id. An empty table yields an
	// empty slice, not an error.
	List(ctx context.Context) ([]models.Course, error)
}

func scanCourses(rows *sql.Rows) ([]models.Course, error) {
	defer rows.Close()

	result := []models.Course{}
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
