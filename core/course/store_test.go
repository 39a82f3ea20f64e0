package course

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func TestUpdateCurriculumStoresRecomputedTotals(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := sqlx.NewDb(sqlDB, "postgres")

	c := sample()
	c.ID = "c1"
	c.Version = 4
	c.TotalLectures = 99
	c.TotalDuration = 1

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET curriculum = $2")).
		WithArgs("c1", sqlmock.AnyArg(), 4, 510, sqlmock.AnyArg(), 4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, UpdateCurriculum(context.Background(), db, c, time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOwns(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := sqlx.NewDb(sqlDB, "postgres")

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := Owns(context.Background(), db, "u1", "c1")
	require.NoError(t, err)
	require.True(t, ok)
}
