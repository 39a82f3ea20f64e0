package order

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Sequence hands out order numbers. Values are never reused, even when the
// transaction that drew them rolls back.
type Sequence interface {
	Next(ctx context.Context, db sqlx.QueryerContext) (int64, error)
}

// PGSequence draws numbers from the order_number_seq Postgres sequence.
type PGSequence struct{}

func (PGSequence) Next(ctx context.Context, db sqlx.QueryerContext) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, db, &n, `SELECT nextval('order_number_seq')`); err != nil {
		return 0, fmt.Errorf("drawing order number: %w", err)
	}
	return n, nil
}

func FormatNumber(n int64) string {
	return fmt.Sprintf("CM-%06d", n)
}
