package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/irsalhamdi/craft-market/random"
	"github.com/irsalhamdi/craft-market/validate"
	"github.com/jmoiron/sqlx"
)

type BatchStatus string

const (
	BatchIssued BatchStatus = "issued"
	BatchPaid   BatchStatus = "paid"
)

type Batch struct {
	ID          string       `json:"id"`
	SellerID    string       `json:"sellerId"`
	SellerName  string       `json:"sellerName"`
	Amount      money.Amount `json:"amount"`
	LineCount   int          `json:"lineCount"`
	Status      BatchStatus  `json:"status"`
	TransferRef string       `json:"transferRef,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	PaidAt      *time.Time   `json:"paidAt,omitempty"`
	Lines       []LineRef    `json:"lines,omitempty"`
}

type dbBatch struct {
	ID          string       `db:"batch_id"`
	SellerID    string       `db:"seller_id"`
	SellerName  string       `db:"seller_name"`
	Amount      int64        `db:"amount"`
	LineCount   int          `db:"line_count"`
	Status      string       `db:"status"`
	TransferRef string       `db:"transfer_ref"`
	CreatedAt   time.Time    `db:"created_at"`
	PaidAt      sql.NullTime `db:"paid_at"`
}

func (d dbBatch) toBatch() Batch {
	b := Batch{
		ID:          d.ID,
		SellerID:    d.SellerID,
		SellerName:  d.SellerName,
		Amount:      money.Amount(d.Amount),
		LineCount:   d.LineCount,
		Status:      BatchStatus(d.Status),
		TransferRef: d.TransferRef,
		CreatedAt:   d.CreatedAt,
	}
	if d.PaidAt.Valid {
		t := d.PaidAt.Time
		b.PaidAt = &t
	}
	return b
}

// dbLine is a pending order line joined with the rates of its order.
type dbLine struct {
	OrderID       string `db:"order_id"`
	OrderNumber   string `db:"order_number"`
	PaymentStatus string `db:"payment_status"`
	Status        string `db:"status"`
	PlatformBP    int64  `db:"platform_commission_bp"`
	ProcessingBP  int64  `db:"processing_fee_bp"`
	Position      int    `db:"position"`
	Title         string `db:"title"`
	SellerID      string `db:"seller_id"`
	SellerName    string `db:"seller_name"`
	UnitPrice     int64  `db:"unit_price"`
	Quantity      int    `db:"quantity"`
	PayoutStatus  string `db:"payout_status"`
}

// ordersOf rebuilds orders from joined line rows, keeping row order.
func ordersOf(ds []dbLine) []order.Order {
	var out []order.Order
	idx := make(map[string]int)

	for _, d := range ds {
		i, ok := idx[d.OrderID]
		if !ok {
			out = append(out, order.Order{
				ID:                 d.OrderID,
				Number:             d.OrderNumber,
				PaymentStatus:      order.PaymentStatus(d.PaymentStatus),
				Status:             order.Status(d.Status),
				PlatformCommission: money.Rate(d.PlatformBP),
				ProcessingFee:      money.Rate(d.ProcessingBP),
			})
			i = len(out) - 1
			idx[d.OrderID] = i
		}
		out[i].Items = append(out[i].Items, order.Item{
			Line: order.Line{
				Title:      d.Title,
				SellerID:   d.SellerID,
				SellerName: d.SellerName,
				UnitPrice:  money.Amount(d.UnitPrice),
				Quantity:   d.Quantity,
			},
			Position:     d.Position,
			PayoutStatus: order.PayoutStatus(d.PayoutStatus),
		})
	}
	return out
}

const pendingLines = `
	SELECT o.order_id, o.order_number, o.payment_status, o.status, o.platform_commission_bp, o.processing_fee_bp,
		i.position, i.title, i.seller_id, i.seller_name, i.unit_price, i.quantity, i.payout_status
	FROM order_items i
	JOIN orders o ON o.order_id = i.order_id
	WHERE i.payout_status = 'pending' AND o.payment_status IN ('paid', 'partially_refunded')
		AND o.status NOT IN ('cancelled', 'refunded')
	ORDER BY o.created_at, i.order_id, i.position`

// Preview computes what every seller is owed right now without changing
// anything.
func Preview(ctx context.Context, db sqlx.QueryerContext) ([]SellerPayout, error) {
	var ds []dbLine
	if err := sqlx.SelectContext(ctx, db, &ds, pendingLines); err != nil {
		return nil, fmt.Errorf("selecting pending lines: %w", err)
	}
	return ComputePayout(ordersOf(ds)), nil
}

// IssueBatches creates one batch per seller whose pending net reaches
// minimum and moves its lines to included. The whole run is one transaction:
// either every batch is issued or none is.
func IssueBatches(ctx context.Context, db *sqlx.DB, minimum money.Amount, now time.Time) ([]Batch, error) {
	var batches []Batch

	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		var ds []dbLine
		if err := sqlx.SelectContext(ctx, tx, &ds, pendingLines+` FOR UPDATE OF i`); err != nil {
			return fmt.Errorf("locking pending lines: %w", err)
		}

		for _, sp := range ComputePayout(ordersOf(ds)) {
			if sp.SellerNet < minimum || sp.SellerNet <= 0 {
				continue
			}

			b := Batch{
				ID:         validate.GenerateID(),
				SellerID:   sp.SellerID,
				SellerName: sp.SellerName,
				Amount:     sp.SellerNet,
				LineCount:  len(sp.Lines),
				Status:     BatchIssued,
				CreatedAt:  now,
			}
			if err := insertBatch(ctx, tx, b); err != nil {
				return err
			}

			for _, l := range sp.Lines {
				if err := include(ctx, tx, b.ID, l); err != nil {
					return err
				}
				l.BatchID = b.ID
				l.Status = order.PayoutIncluded
				b.Lines = append(b.Lines, l)
			}
			batches = append(batches, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if batches == nil {
		batches = []Batch{}
	}
	return batches, nil
}

func insertBatch(ctx context.Context, tx sqlx.ExtContext, b Batch) error {
	const q = `
	INSERT INTO payout_batches (batch_id, seller_id, seller_name, amount, line_count, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.ExecContext(ctx, q, b.ID, b.SellerID, b.SellerName, int64(b.Amount), b.LineCount, string(b.Status), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting payout batch for seller[%s]: %w", b.SellerID, err)
	}
	return nil
}

func include(ctx context.Context, tx sqlx.ExtContext, batchID string, l LineRef) error {
	const q = `
	UPDATE order_items SET payout_status = 'included', payout_batch_id = $3, seller_net = $4
	WHERE order_id = $1 AND position = $2 AND payout_status = 'pending'`

	res, err := tx.ExecContext(ctx, q, l.OrderID, l.Position, batchID, int64(l.Share.SellerNet))
	if err != nil {
		return fmt.Errorf("including order[%s] line %d: %w", l.OrderID, l.Position, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("including order[%s] line %d: %w", l.OrderID, l.Position, err)
	}
	if n != 1 {
		return fmt.Errorf("including order[%s] line %d: line is no longer pending", l.OrderID, l.Position)
	}
	return nil
}

const batchColumns = `batch_id, seller_id, seller_name, amount, line_count, status, transfer_ref, created_at, paid_at`

// ConfirmBatch records the transfer of an issued batch and marks its lines
// paid. An empty reference gets a generated one.
func ConfirmBatch(ctx context.Context, db *sqlx.DB, batchID, transferRef string, now time.Time) (Batch, error) {
	if transferRef == "" {
		ref, err := random.Code("TRF", 12)
		if err != nil {
			return Batch{}, fmt.Errorf("generating transfer reference: %w", err)
		}
		transferRef = ref
	}

	var out Batch
	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		b, err := fetchBatch(ctx, tx, batchID, true)
		if err != nil {
			return err
		}
		if b.Status != BatchIssued {
			return fmt.Errorf("batch[%s] is %s: %w", batchID, b.Status, ErrBatchNotIssued)
		}

		const ql = `UPDATE order_items SET payout_status = 'paid' WHERE payout_batch_id = $1 AND payout_status = 'included'`
		if _, err := tx.ExecContext(ctx, ql, batchID); err != nil {
			return fmt.Errorf("paying lines of batch[%s]: %w", batchID, err)
		}

		const qb = `UPDATE payout_batches SET status = 'paid', transfer_ref = $2, paid_at = $3 WHERE batch_id = $1`
		if _, err := tx.ExecContext(ctx, qb, batchID, transferRef, now); err != nil {
			return fmt.Errorf("confirming batch[%s]: %w", batchID, err)
		}

		b.Status = BatchPaid
		b.TransferRef = transferRef
		b.PaidAt = &now
		out = b
		return nil
	})

	return out, err
}

func fetchBatch(ctx context.Context, db sqlx.QueryerContext, id string, lock bool) (Batch, error) {
	q := `SELECT ` + batchColumns + ` FROM payout_batches WHERE batch_id = $1`
	if lock {
		q += ` FOR UPDATE`
	}

	var d dbBatch
	if err := sqlx.GetContext(ctx, db, &d, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Batch{}, database.ErrNotFound
		}
		return Batch{}, fmt.Errorf("selecting batch[%s]: %w", id, err)
	}
	return d.toBatch(), nil
}

type dbBatchLine struct {
	OrderID      string `db:"order_id"`
	OrderNumber  string `db:"order_number"`
	Position     int    `db:"position"`
	Title        string `db:"title"`
	UnitPrice    int64  `db:"unit_price"`
	Quantity     int    `db:"quantity"`
	SellerNet    int64  `db:"seller_net"`
	PayoutStatus string `db:"payout_status"`
}

// FetchBatch returns a batch with every line it ever included, refunded
// ones too.
func FetchBatch(ctx context.Context, db sqlx.QueryerContext, id string) (Batch, error) {
	b, err := fetchBatch(ctx, db, id, false)
	if err != nil {
		return Batch{}, err
	}

	const q = `
	SELECT i.order_id, o.order_number, i.position, i.title, i.unit_price, i.quantity, i.seller_net, i.payout_status
	FROM order_items i JOIN orders o ON o.order_id = i.order_id
	WHERE i.payout_batch_id = $1
	ORDER BY o.created_at, i.position`

	var ds []dbBatchLine
	if err := sqlx.SelectContext(ctx, db, &ds, q, id); err != nil {
		return Batch{}, fmt.Errorf("selecting lines of batch[%s]: %w", id, err)
	}

	b.Lines = make([]LineRef, 0, len(ds))
	for _, d := range ds {
		b.Lines = append(b.Lines, LineRef{
			OrderID:  d.OrderID,
			Number:   d.OrderNumber,
			Position: d.Position,
			Title:    d.Title,
			Share: Share{
				Gross:     money.Amount(d.UnitPrice).Mul(d.Quantity),
				SellerNet: money.Amount(d.SellerNet),
			},
			BatchID: id,
			Status:  order.PayoutStatus(d.PayoutStatus),
		})
	}
	return b, nil
}

// ListBatches returns batches newest first, optionally for one seller.
func ListBatches(ctx context.Context, db sqlx.QueryerContext, sellerID string, limit, offset int) ([]Batch, error) {
	q := `SELECT ` + batchColumns + ` FROM payout_batches
	WHERE ($1 = '' OR seller_id::text = $1)
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3`

	var ds []dbBatch
	if err := sqlx.SelectContext(ctx, db, &ds, q, sellerID, limit, offset); err != nil {
		return nil, fmt.Errorf("selecting payout batches: %w", err)
	}

	bs := make([]Batch, 0, len(ds))
	for _, d := range ds {
		bs = append(bs, d.toBatch())
	}
	return bs, nil
}

// Reverser takes refunded lines out of settlement. It runs inside the
// refund transaction of the order.
type Reverser struct{}

func (Reverser) ReverseLine(ctx context.Context, tx sqlx.ExtContext, orderID string, position int) error {
	var cur struct {
		Status    string         `db:"payout_status"`
		BatchID   sql.NullString `db:"payout_batch_id"`
		SellerNet int64          `db:"seller_net"`
	}
	const qs = `SELECT payout_status, payout_batch_id, seller_net FROM order_items WHERE order_id = $1 AND position = $2 FOR UPDATE`
	if err := sqlx.GetContext(ctx, tx, &cur, qs, orderID, position); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order[%s] line %d: %w", orderID, position, order.ErrNoSuchLine)
		}
		return fmt.Errorf("selecting order[%s] line %d: %w", orderID, position, err)
	}

	switch order.PayoutStatus(cur.Status) {
	case order.PayoutPaid:
		return fmt.Errorf("order[%s] line %d: %w", orderID, position, ErrLineAlreadyPaid)
	case order.PayoutRefunded:
		return fmt.Errorf("order[%s] line %d: %w", orderID, position, order.ErrAlreadyRefunded)
	case order.PayoutIncluded:
		const qb = `
		UPDATE payout_batches SET amount = amount - $2, line_count = line_count - 1
		WHERE batch_id = $1 AND status = 'issued'`
		res, err := tx.ExecContext(ctx, qb, cur.BatchID.String, cur.SellerNet)
		if err != nil {
			return fmt.Errorf("reducing batch[%s]: %w", cur.BatchID.String, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reducing batch[%s]: %w", cur.BatchID.String, err)
		}
		if n != 1 {
			return fmt.Errorf("order[%s] line %d batch already transferred: %w", orderID, position, ErrLineAlreadyPaid)
		}
	}

	const qu = `UPDATE order_items SET payout_status = 'refunded' WHERE order_id = $1 AND position = $2`
	if _, err := tx.ExecContext(ctx, qu, orderID, position); err != nil {
		return fmt.Errorf("refunding order[%s] line %d: %w", orderID, position, err)
	}
	return nil
}
