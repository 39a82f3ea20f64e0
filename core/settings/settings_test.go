package settings

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		commission, fee int64
		ok              bool
	}{
		{1200, 290, true},
		{0, 0, true},
		{6000, 3999, true},
		{6000, 4500, false},
		{6000, 4000, false},
		{-1, 100, false},
	}

	for _, tt := range tests {
		c := CommissionConfig{PlatformCommission: rate(tt.commission), ProcessingFee: rate(tt.fee)}
		if err := c.Validate(); (err == nil) != tt.ok {
			t.Errorf("%d bp + %d bp: got %v", tt.commission, tt.fee, err)
		}
	}
}

func TestSaveRejectsBeforeWriting(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := sqlx.NewDb(sqlDB, "postgres")

	_, err = Save(context.Background(), db, CommissionConfig{PlatformCommission: 6000, ProcessingFee: 4500})
	require.ErrorIs(t, err, ErrCommissionTooHigh)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAppendsVersion(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := sqlx.NewDb(sqlDB, "postgres")

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO commission_configs")).
		WithArgs(int64(1200), int64(290), sqlmock.AnyArg(), now).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))

	c, err := Save(context.Background(), db, CommissionConfig{PlatformCommission: 1200, ProcessingFee: 290, CreatedBy: "a1", CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentNotConfigured(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := sqlx.NewDb(sqlDB, "postgres")

	mock.ExpectQuery("FROM commission_configs ORDER BY version DESC LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	_, err = Current(context.Background(), db)
	require.ErrorIs(t, err, database.ErrNotFound)
}

func rate(bp int64) money.Rate { return money.Rate(bp) }
