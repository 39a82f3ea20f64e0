package product

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return sqlx.NewDb(sqlDB, "postgres"), mock
}

func TestFetchDecodesJSONColumns(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"product_id", "seller_id", "seller_name", "name", "description", "image_url", "price", "quantity",
		"has_variants", "variants", "customizations", "add_ons", "status", "rejection_reason", "created_at", "updated_at", "version",
	}).AddRow(
		"p1", "s1", "Clay Co", "Mug", "Stoneware", "", 10000, 0,
		true, []byte(`[{"id":"v1","attributes":{"size":"L"},"price":12000,"stock":4,"sku":"MUG-L"}]`), []byte(`[]`),
		[]byte(`[{"id":"box","name":"Gift box","price":1500,"active":true}]`), "active", "", now, now, 3,
	)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE product_id = $1")).
		WithArgs("p1").
		WillReturnRows(rows)

	p, err := Fetch(context.Background(), db, "p1")
	require.NoError(t, err)
	assert.Equal(t, Active, p.Status)
	assert.Equal(t, 4, p.Available())
	require.Len(t, p.AddOns, 1)
	assert.True(t, p.AddOns[0].Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchNotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE product_id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"product_id"}))

	_, err := Fetch(context.Background(), db, "nope")
	require.ErrorIs(t, err, database.ErrNotFound)
}

func TestUpdateStatusDetectsConcurrentChange(t *testing.T) {
	db, mock := newMock(t)
	p := Product{ID: "p1", Status: Active, Version: 2}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET status = $2")).
		WithArgs("p1", "active", "", sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := UpdateStatus(context.Background(), db, p, time.Now())
	require.ErrorIs(t, err, database.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
