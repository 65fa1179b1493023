package courses

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gainsborouo/ta-source/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listQuery = `(?s)^SELECT\s+id,\s*name\s+FROM\s+courses\s+ORDER\s+BY\s+id\s*$`

func TestPostgresList(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(listQuery).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).
			AddRow("CS101", "Intro to Programming").
			AddRow("CS202", "Operating Systems"))

	got, err := NewPostgresRepository(db).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Course{
		{ID: "CS101", Name: "Intro to Programming"},
		{ID: "CS202", Name: "Operating Systems"},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresList_Empty(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(listQuery).WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	got, err := NewPostgresRepository(db).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPostgresList_Errors(t *testing.T) {
	t.Run("query", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(listQuery).WillReturnError(errors.New("db down"))

		_, err = NewPostgresRepository(db).List(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db error: db down")
	})

	t.Run("row", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(listQuery).WillReturnRows(
			sqlmock.NewRows([]string{"id", "name"}).
				AddRow("CS101", "x").
				RowError(0, errors.New("broken row")))

		_, err = NewPostgresRepository(db).List(context.Background())
		require.Error(t, err)
	})
}
