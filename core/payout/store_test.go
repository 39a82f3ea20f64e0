package payout

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return sqlx.NewDb(sqlDB, "postgres"), mock
}

var lineCols = []string{
	"order_id", "order_number", "payment_status", "status", "platform_commission_bp", "processing_fee_bp",
	"position", "title", "seller_id", "seller_name", "unit_price", "quantity", "payout_status",
}

func pending() *sqlmock.Rows {
	return sqlmock.NewRows(lineCols).
		AddRow("o1", "CM-000001", "paid", "confirmed", int64(1200), int64(290), 0, "Mug", "s1", "Ana", int64(100000), 1, "pending").
		AddRow("o1", "CM-000001", "paid", "confirmed", int64(1200), int64(290), 1, "Bowl", "s2", "Ben", int64(50000), 1, "pending").
		AddRow("o2", "CM-000002", "paid", "confirmed", int64(1200), int64(290), 0, "Pin", "s3", "Cy", int64(500), 1, "pending")
}

func TestIssueBatches(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE OF i").WillReturnRows(pending())
	mock.ExpectExec("INSERT INTO payout_batches").
		WithArgs(sqlmock.AnyArg(), "s1", "Ana", int64(85100), 1, "issued", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE order_items SET payout_status = 'included'").
		WithArgs("o1", 0, sqlmock.AnyArg(), int64(85100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payout_batches").
		WithArgs(sqlmock.AnyArg(), "s2", "Ben", int64(42550), 1, "issued", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE order_items SET payout_status = 'included'").
		WithArgs("o1", 1, sqlmock.AnyArg(), int64(42550)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// s3 is owed 4.25 and stays below the minimum.
	bs, err := IssueBatches(context.Background(), db, 1000, time.Now())
	require.NoError(t, err)
	require.Len(t, bs, 2)
	require.Equal(t, "s1", bs[0].SellerID)
	require.Equal(t, BatchIssued, bs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueBatchesRollsBackMidBatch(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE OF i").WillReturnRows(pending())
	mock.ExpectExec("INSERT INTO payout_batches").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE order_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payout_batches").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE order_items").WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	bs, err := IssueBatches(context.Background(), db, 1000, time.Now())
	require.Error(t, err)
	require.Nil(t, bs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueBatchesRollsBackWhenLineMoved(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE OF i").WillReturnRows(pending())
	mock.ExpectExec("INSERT INTO payout_batches").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE order_items").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := IssueBatches(context.Background(), db, 1000, time.Now())
	require.ErrorContains(t, err, "no longer pending")
	require.NoError(t, mock.ExpectationsWereMet())
}

var batchCols = []string{"batch_id", "seller_id", "seller_name", "amount", "line_count", "status", "transfer_ref", "created_at", "paid_at"}

func TestConfirmBatch(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM payout_batches WHERE batch_id = \\$1 FOR UPDATE").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(batchCols).AddRow("b1", "s1", "Ana", int64(85100), 1, "issued", "", time.Now(), nil))
	mock.ExpectExec("UPDATE order_items SET payout_status = 'paid'").
		WithArgs("b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE payout_batches SET status = 'paid'").
		WithArgs("b1", "WIRE-778", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b, err := ConfirmBatch(context.Background(), db, "b1", "WIRE-778", time.Now())
	require.NoError(t, err)
	require.Equal(t, BatchPaid, b.Status)
	require.NotNil(t, b.PaidAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmBatchTwice(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM payout_batches").
		WillReturnRows(sqlmock.NewRows(batchCols).AddRow("b1", "s1", "Ana", int64(85100), 1, "paid", "WIRE-778", time.Now(), time.Now()))
	mock.ExpectRollback()

	_, err := ConfirmBatch(context.Background(), db, "b1", "", time.Now())
	require.ErrorIs(t, err, ErrBatchNotIssued)
}

func reverseRow(status string, batch any, net int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"payout_status", "payout_batch_id", "seller_net"}).AddRow(status, batch, net)
}

func TestReverseIncludedLineReducesBatch(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT payout_status").WithArgs("o1", 0).WillReturnRows(reverseRow("included", "b1", 85100))
	mock.ExpectExec("UPDATE payout_batches SET amount = amount - \\$2").
		WithArgs("b1", int64(85100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE order_items SET payout_status = 'refunded'").
		WithArgs("o1", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, Reverser{}.ReverseLine(context.Background(), db, "o1", 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReversePendingLine(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT payout_status").WillReturnRows(reverseRow("pending", nil, 0))
	mock.ExpectExec("UPDATE order_items SET payout_status = 'refunded'").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, Reverser{}.ReverseLine(context.Background(), db, "o1", 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReversePaidLine(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT payout_status").WillReturnRows(reverseRow("paid", "b1", 85100))

	err := Reverser{}.ReverseLine(context.Background(), db, "o1", 0)
	require.ErrorIs(t, err, ErrLineAlreadyPaid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReverseLineOfTransferredBatch(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT payout_status").WillReturnRows(reverseRow("included", "b1", 85100))
	mock.ExpectExec("UPDATE payout_batches").WillReturnResult(sqlmock.NewResult(0, 0))

	err := Reverser{}.ReverseLine(context.Background(), db, "o1", 0)
	require.ErrorIs(t, err, ErrLineAlreadyPaid)
}

func TestPreviewSkipsCancelledOrders(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("o.status NOT IN ('cancelled', 'refunded')")).WillReturnRows(
		sqlmock.NewRows(lineCols).
			AddRow("o1", "CM-000001", "paid", "confirmed", int64(1200), int64(290), 0, "Mug", "s1", "Ana", int64(100000), 1, "pending").
			AddRow("o2", "CM-000002", "paid", "cancelled", int64(1200), int64(290), 0, "Bowl", "s1", "Ana", int64(50000), 1, "pending"))

	got, err := Preview(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Lines, 1)
	require.Equal(t, "o1", got[0].Lines[0].OrderID)
	require.NoError(t, mock.ExpectationsWereMet())
}
