package tax

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	s := Store{DB: sqlx.NewDb(sqlDB, "postgres")}

	mock.ExpectQuery("FROM tax_rates").
		WithArgs("US", "CA").
		WillReturnRows(sqlmock.NewRows([]string{"rate_bp"}).AddRow(725))
	mock.ExpectQuery("FROM tax_rates").
		WithArgs("ZZ", "").
		WillReturnRows(sqlmock.NewRows([]string{"rate_bp"}))

	got, err := s.Resolve(context.Background(), order.Address{Country: "us", Region: "ca"}, 18000)
	require.NoError(t, err)
	require.EqualValues(t, 1305, got)

	got, err = s.Resolve(context.Background(), order.Address{Country: "ZZ"}, 18000)
	require.NoError(t, err)
	require.Zero(t, got)

	got, err = s.Resolve(context.Background(), order.Address{}, 18000)
	require.NoError(t, err)
	require.Zero(t, got)

	require.NoError(t, mock.ExpectationsWereMet())
}
