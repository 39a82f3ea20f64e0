package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/irsalhamdi/craft-market/core/pricing"
	"github.com/irsalhamdi/craft-market/core/settings"
	"github.com/irsalhamdi/craft-market/core/workshop"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	numberConstraint  = "orders_order_number_key"
	maxNumberAttempts = 5
)

type dbOrder struct {
	ID                 string                 `db:"order_id"`
	Number             string                 `db:"order_number"`
	BuyerID            string                 `db:"buyer_id"`
	Currency           string                 `db:"currency"`
	Subtotal           int64                  `db:"subtotal"`
	Shipping           int64                  `db:"shipping"`
	Discount           int64                  `db:"discount"`
	Tax                int64                  `db:"tax"`
	Total              int64                  `db:"total"`
	PromoCode          string                 `db:"promo_code"`
	ShippingAddress    database.JSON[Address] `db:"shipping_address"`
	PaymentStatus      string                 `db:"payment_status"`
	Status             string                 `db:"status"`
	Provider           string                 `db:"provider"`
	ProviderID         sql.NullString         `db:"provider_id"`
	CommissionVersion  sql.NullInt64          `db:"commission_version"`
	PlatformCommission int64                  `db:"platform_commission_bp"`
	ProcessingFee      int64                  `db:"processing_fee_bp"`
	CreatedAt          time.Time              `db:"created_at"`
	UpdatedAt          time.Time              `db:"updated_at"`
}

func toDBOrder(o Order) dbOrder {
	return dbOrder{
		ID:                 o.ID,
		Number:             o.Number,
		BuyerID:            o.BuyerID,
		Currency:           o.Currency,
		Subtotal:           int64(o.Subtotal),
		Shipping:           int64(o.Shipping),
		Discount:           int64(o.Discount),
		Tax:                int64(o.Tax),
		Total:              int64(o.Total),
		PromoCode:          o.PromoCode,
		ShippingAddress:    database.NewJSON(o.ShippingAddress),
		PaymentStatus:      string(o.PaymentStatus),
		Status:             string(o.Status),
		Provider:           o.Provider,
		ProviderID:         sql.NullString{String: o.ProviderID, Valid: o.ProviderID != ""},
		CommissionVersion:  sql.NullInt64{Int64: int64(o.CommissionVersion), Valid: o.CommissionVersion != 0},
		PlatformCommission: int64(o.PlatformCommission),
		ProcessingFee:      int64(o.ProcessingFee),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func (d dbOrder) toOrder() Order {
	return Order{
		ID:                 d.ID,
		Number:             d.Number,
		BuyerID:            d.BuyerID,
		Currency:           d.Currency,
		Subtotal:           money.Amount(d.Subtotal),
		Shipping:           money.Amount(d.Shipping),
		Discount:           money.Amount(d.Discount),
		Tax:                money.Amount(d.Tax),
		Total:              money.Amount(d.Total),
		PromoCode:          d.PromoCode,
		ShippingAddress:    d.ShippingAddress.V,
		PaymentStatus:      PaymentStatus(d.PaymentStatus),
		Status:             Status(d.Status),
		Provider:           d.Provider,
		ProviderID:         d.ProviderID.String,
		CommissionVersion:  int(d.CommissionVersion.Int64),
		PlatformCommission: money.Rate(d.PlatformCommission),
		ProcessingFee:      money.Rate(d.ProcessingFee),
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

type dbItem struct {
	OrderID       string                         `db:"order_id"`
	Position      int                            `db:"position"`
	ItemType      string                         `db:"item_type"`
	ItemID        string                         `db:"item_id"`
	VariantID     string                         `db:"variant_id"`
	Choices       database.JSON[pricing.Choices] `db:"choices"`
	Title         string                         `db:"title"`
	SellerID      string                         `db:"seller_id"`
	SellerName    string                         `db:"seller_name"`
	UnitPrice     int64                          `db:"unit_price"`
	Quantity      int                            `db:"quantity"`
	PayoutStatus  string                         `db:"payout_status"`
	PayoutBatchID sql.NullString                 `db:"payout_batch_id"`
	SellerNet     int64                          `db:"seller_net"`
}

func (d dbItem) toItem() Item {
	return Item{
		Line: Line{
			ItemType:   ItemType(d.ItemType),
			ItemID:     d.ItemID,
			VariantID:  d.VariantID,
			Choices:    d.Choices.V,
			Title:      d.Title,
			SellerID:   d.SellerID,
			SellerName: d.SellerName,
			UnitPrice:  money.Amount(d.UnitPrice),
			Quantity:   d.Quantity,
		},
		Position:      d.Position,
		PayoutStatus:  PayoutStatus(d.PayoutStatus),
		PayoutBatchID: d.PayoutBatchID.String,
		SellerNet:     money.Amount(d.SellerNet),
	}
}

type dbTracking struct {
	Kind      string    `db:"kind"`
	Status    string    `db:"status"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

const orderColumns = `order_id, order_number, buyer_id, currency, subtotal, shipping, discount, tax, total,
	promo_code, shipping_address, payment_status, status, provider, provider_id, commission_version,
	platform_commission_bp, processing_fee_bp, created_at, updated_at`

const itemColumns = `order_id, position, item_type, item_id, variant_id, choices, title, seller_id, seller_name,
	unit_price, quantity, payout_status, payout_batch_id, seller_net`

// Create numbers and stores a new order with its items and first tracking
// event, and reserves its workshop seats. When the drawn number collides with
// an existing order the whole insert is retried with a fresh number.
func Create(ctx context.Context, db *sqlx.DB, seq Sequence, o Order) (Order, error) {
	if len(o.TrackingHistory) == 0 {
		o.track(KindPayment, string(o.PaymentStatus), "order placed", o.CreatedAt)
	}

	for attempt := 1; ; attempt++ {
		numbered := o
		err := database.Transaction(db, func(tx sqlx.ExtContext) error {
			n, err := seq.Next(ctx, tx)
			if err != nil {
				return err
			}
			numbered.Number = FormatNumber(n)

			if err := insert(ctx, tx, numbered); err != nil {
				return err
			}
			return applySeats(ctx, tx, SeatChanges(Order{}, numbered))
		})
		if err == nil {
			return numbered, nil
		}

		if c, ok := database.UniqueConstraint(err); !ok || c != numberConstraint || attempt == maxNumberAttempts {
			return Order{}, fmt.Errorf("creating order for buyer[%s]: %w", o.BuyerID, err)
		}
	}
}

func insert(ctx context.Context, tx sqlx.ExtContext, o Order) error {
	const qo = `
	INSERT INTO orders (order_id, order_number, buyer_id, currency, subtotal, shipping, discount, tax, total,
		promo_code, shipping_address, payment_status, status, provider, provider_id, commission_version,
		platform_commission_bp, processing_fee_bp, created_at, updated_at)
	VALUES (:order_id, :order_number, :buyer_id, :currency, :subtotal, :shipping, :discount, :tax, :total,
		:promo_code, :shipping_address, :payment_status, :status, :provider, :provider_id, :commission_version,
		:platform_commission_bp, :processing_fee_bp, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, tx, qo, toDBOrder(o)); err != nil {
		return fmt.Errorf("inserting order[%s]: %w", o.ID, err)
	}

	const qi = `
	INSERT INTO order_items (order_id, position, item_type, item_id, variant_id, choices, title, seller_id, seller_name,
		unit_price, quantity, payout_status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	for _, it := range o.Items {
		_, err := tx.ExecContext(ctx, qi, o.ID, it.Position, string(it.ItemType), it.ItemID, it.VariantID,
			database.NewJSON(it.Choices), it.Title, it.SellerID, it.SellerName, int64(it.UnitPrice), it.Quantity,
			string(it.PayoutStatus))
		if err != nil {
			return fmt.Errorf("inserting item %d of order[%s]: %w", it.Position, o.ID, err)
		}
	}

	return insertTracking(ctx, tx, o.ID, o.TrackingHistory)
}

func insertTracking(ctx context.Context, tx sqlx.ExecerContext, orderID string, evs []TrackingEvent) error {
	const q = `INSERT INTO order_tracking (order_id, kind, status, message, created_at) VALUES ($1, $2, $3, $4, $5)`

	for _, ev := range evs {
		if _, err := tx.ExecContext(ctx, q, orderID, ev.Kind, ev.Status, ev.Message, ev.At); err != nil {
			return fmt.Errorf("tracking order[%s]: %w", orderID, err)
		}
	}
	return nil
}

// applySeats reserves and releases workshop seats in workshop id order so
// concurrent orders lock rows consistently.
func applySeats(ctx context.Context, tx sqlx.ExecerContext, delta map[string]int) error {
	ids := make([]string, 0, len(delta))
	for id := range delta {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := delta[id]
		var err error
		if n > 0 {
			err = workshop.Reserve(ctx, tx, id, n)
		} else {
			err = workshop.Release(ctx, tx, id, -n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// save persists the state of after and the tracking events it gained since
// before, and moves workshop seats accordingly.
func save(ctx context.Context, tx sqlx.ExtContext, before, after Order) error {
	if err := saveState(ctx, tx, before, after); err != nil {
		return err
	}
	return applySeats(ctx, tx, SeatChanges(before, after))
}

func saveState(ctx context.Context, tx sqlx.ExtContext, before, after Order) error {
	const q = `
	UPDATE orders SET payment_status = $2, status = $3, commission_version = $4,
		platform_commission_bp = $5, processing_fee_bp = $6, updated_at = $7
	WHERE order_id = $1`

	d := toDBOrder(after)
	_, err := tx.ExecContext(ctx, q, d.ID, d.PaymentStatus, d.Status, d.CommissionVersion,
		d.PlatformCommission, d.ProcessingFee, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating order[%s]: %w", after.ID, err)
	}

	return insertTracking(ctx, tx, after.ID, after.TrackingHistory[len(before.TrackingHistory):])
}

func Fetch(ctx context.Context, db sqlx.QueryerContext, id string) (Order, error) {
	return fetchWhere(ctx, db, "order_id = $1", id, false)
}

func FetchByProvider(ctx context.Context, db sqlx.QueryerContext, providerID string) (Order, error) {
	return fetchWhere(ctx, db, "provider_id = $1", providerID, false)
}

func fetchWhere(ctx context.Context, db sqlx.QueryerContext, where string, arg any, lock bool) (Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where
	if lock {
		q += ` FOR UPDATE`
	}

	var d dbOrder
	if err := sqlx.GetContext(ctx, db, &d, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, database.ErrNotFound
		}
		return Order{}, fmt.Errorf("selecting order where %s: %w", where, err)
	}
	o := d.toOrder()

	items, err := fetchItems(ctx, db, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]

	var ts []dbTracking
	const qt = `SELECT kind, status, message, created_at FROM order_tracking WHERE order_id = $1 ORDER BY tracking_id`
	if err := sqlx.SelectContext(ctx, db, &ts, qt, o.ID); err != nil {
		return Order{}, fmt.Errorf("selecting tracking of order[%s]: %w", o.ID, err)
	}
	o.TrackingHistory = make([]TrackingEvent, len(ts))
	for i, t := range ts {
		o.TrackingHistory[i] = TrackingEvent{Kind: t.Kind, Status: t.Status, Message: t.Message, At: t.CreatedAt}
	}

	return o, nil
}

func fetchItems(ctx context.Context, db sqlx.QueryerContext, orderIDs []string) (map[string][]Item, error) {
	q := `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	var ds []dbItem
	if err := sqlx.SelectContext(ctx, db, &ds, q, pq.Array(orderIDs)); err != nil {
		return nil, fmt.Errorf("selecting order items: %w", err)
	}

	items := make(map[string][]Item, len(orderIDs))
	for _, d := range ds {
		items[d.OrderID] = append(items[d.OrderID], d.toItem())
	}
	return items, nil
}

// List returns orders newest first with their items. Empty filters match
// everything.
func List(ctx context.Context, db sqlx.QueryerContext, buyerID string, status Status, limit, offset int) ([]Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders
	WHERE ($1 = '' OR buyer_id::text = $1) AND ($2 = '' OR status = $2)
	ORDER BY created_at DESC
	LIMIT $3 OFFSET $4`

	var ds []dbOrder
	if err := sqlx.SelectContext(ctx, db, &ds, q, buyerID, string(status), limit, offset); err != nil {
		return nil, fmt.Errorf("selecting orders: %w", err)
	}
	return withItems(ctx, db, ds)
}

func withItems(ctx context.Context, db sqlx.QueryerContext, ds []dbOrder) ([]Order, error) {
	if len(ds) == 0 {
		return []Order{}, nil
	}

	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	items, err := fetchItems(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	ords := make([]Order, len(ds))
	for i, d := range ds {
		ords[i] = d.toOrder()
		ords[i].Items = items[d.ID]
	}
	return ords, nil
}

// AttachProvider binds an order to the checkout created at the payment
// provider.
func AttachProvider(ctx context.Context, db sqlx.ExtContext, id, provider, providerID string) error {
	const q = `UPDATE orders SET provider = $2, provider_id = $3 WHERE order_id = $1 AND provider_id IS NULL`

	res, err := db.ExecContext(ctx, q, id, provider, providerID)
	if err != nil {
		return fmt.Errorf("attaching %s payment[%s] to order[%s]: %w", provider, providerID, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attaching %s payment[%s] to order[%s]: %w", provider, providerID, id, err)
	}
	return database.AffectedOne(n)
}

// ApplyPayment applies a provider notification to the order bound to
// providerID. A notification already applied for the same status returns
// ErrDuplicatePayment and changes nothing. Becoming paid pins the current
// commission configuration on the order, empties the buyer's cart and
// redeems the promo code.
//
// A capture is always recorded. Lines that can no longer be honoured, every
// line of a cancelled order or workshop lines whose seats were resold after a
// failed payment, are refunded in the same transaction and never reach a
// payout.
func ApplyPayment(ctx context.Context, db *sqlx.DB, providerID, paymentID string, to PaymentStatus, now time.Time) (Order, error) {
	var out Order

	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		const qe = `
		INSERT INTO payment_events (provider_id, status, payment_id, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`

		res, err := tx.ExecContext(ctx, qe, providerID, string(to), paymentID, now)
		if err != nil {
			return fmt.Errorf("recording payment event: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("recording payment event: %w", err)
		} else if n == 0 {
			return ErrDuplicatePayment
		}

		before, err := fetchWhere(ctx, tx, "provider_id = $1", providerID, true)
		if err != nil {
			return err
		}
		if before.PaymentStatus == to {
			return ErrDuplicatePayment
		}

		after := before.clone()
		if err := after.SetPayment(to, paymentMessage(to, paymentID), now); err != nil {
			return err
		}

		// Seats released by a failed payment are taken back here, line by
		// line, instead of through save.
		reseated := before.PaymentStatus == PaymentFailed && after.PaymentStatus == PaymentPaid
		if reseated {
			full, err := reseat(ctx, tx, after)
			if err != nil {
				return err
			}
			if len(full) > 0 {
				if err := after.RefundLines(full, "workshop full, refund due", now); err != nil {
					return err
				}
			}
		}

		if to == PaymentPaid {
			cfg, err := settings.Current(ctx, tx)
			if err != nil {
				return fmt.Errorf("loading commission config: %w", err)
			}
			after.CommissionVersion = cfg.Version
			after.PlatformCommission = cfg.PlatformCommission
			after.ProcessingFee = cfg.ProcessingFee
		}

		if to == PaymentPaid && after.Settleable() {
			if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, after.BuyerID); err != nil {
				return fmt.Errorf("emptying cart of user[%s]: %w", after.BuyerID, err)
			}

			if after.PromoCode != "" {
				if _, err := tx.ExecContext(ctx, `UPDATE promo_codes SET uses = uses + 1 WHERE code = $1`, after.PromoCode); err != nil {
					return fmt.Errorf("redeeming promo[%s]: %w", after.PromoCode, err)
				}
			}
		}

		if err := saveRefundedLines(ctx, tx, before, after); err != nil {
			return err
		}

		if reseated {
			err = saveState(ctx, tx, before, after)
		} else {
			err = save(ctx, tx, before, after)
		}
		if err != nil {
			return err
		}
		out = after
		return nil
	})

	return out, err
}

// reseat reserves again the workshop seats of o and returns the positions of
// the lines whose workshop has no room left.
func reseat(ctx context.Context, tx sqlx.ExecerContext, o Order) ([]int, error) {
	var ws []Item
	for _, it := range o.Items {
		if it.ItemType == ItemWorkshop && it.PayoutStatus != PayoutRefunded {
			ws = append(ws, it)
		}
	}
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].ItemID < ws[j].ItemID })

	var full []int
	for _, it := range ws {
		err := workshop.Reserve(ctx, tx, it.ItemID, it.Quantity)
		switch {
		case errors.Is(err, workshop.ErrCapacityExceeded):
			full = append(full, it.Position)
		case err != nil:
			return nil, err
		}
	}
	sort.Ints(full)
	return full, nil
}

// saveRefundedLines records lines refunded without ever being settled.
func saveRefundedLines(ctx context.Context, tx sqlx.ExecerContext, before, after Order) error {
	const q = `
	UPDATE order_items SET payout_status = 'refunded'
	WHERE order_id = $1 AND position = $2 AND payout_status = 'pending'`

	for i, it := range after.Items {
		if it.PayoutStatus != PayoutRefunded || before.Items[i].PayoutStatus == PayoutRefunded {
			continue
		}

		res, err := tx.ExecContext(ctx, q, after.ID, it.Position)
		if err != nil {
			return fmt.Errorf("refunding order[%s] line %d: %w", after.ID, it.Position, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("refunding order[%s] line %d: %w", after.ID, it.Position, err)
		}
		if err := database.AffectedOne(n); err != nil {
			return fmt.Errorf("order[%s] line %d is not pending: %w", after.ID, it.Position, err)
		}
	}
	return nil
}

func paymentMessage(to PaymentStatus, paymentID string) string {
	switch to {
	case PaymentPaid:
		return "payment " + paymentID + " captured"
	case PaymentFailed:
		return "payment failed"
	}
	return "payment " + string(to)
}

// UpdateFulfillment moves the fulfillment status. Cancelling releases the
// order's workshop seats.
func UpdateFulfillment(ctx context.Context, db *sqlx.DB, id string, to Status, msg string, now time.Time) (Order, error) {
	var out Order

	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		before, err := fetchWhere(ctx, tx, "order_id = $1", id, true)
		if err != nil {
			return err
		}

		after := before.clone()
		if to == Refunded {
			return fmt.Errorf("order[%s]: refunds go through the refund operation: %w", id, ErrNotRefundable)
		}
		if err := after.SetFulfillment(to, msg, now); err != nil {
			return err
		}

		if err := save(ctx, tx, before, after); err != nil {
			return err
		}
		out = after
		return nil
	})

	return out, err
}

// LineReverser undoes the settlement side of a refunded line inside the
// refund transaction.
type LineReverser interface {
	ReverseLine(ctx context.Context, tx sqlx.ExtContext, orderID string, position int) error
}

// Refund refunds the given lines of an order, or every remaining line when
// positions is empty. The payment status becomes refunded once no line is
// left, partially refunded otherwise.
func Refund(ctx context.Context, db *sqlx.DB, rev LineReverser, id string, positions []int, now time.Time) (Order, money.Amount, error) {
	var (
		out      Order
		refunded money.Amount
	)

	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		before, err := fetchWhere(ctx, tx, "order_id = $1", id, true)
		if err != nil {
			return err
		}
		if !before.Refundable() {
			return fmt.Errorf("order[%s] payment is %s: %w", id, before.PaymentStatus, ErrNotRefundable)
		}

		after := before.clone()
		if len(positions) == 0 {
			positions = after.unrefunded()
		}

		for _, p := range positions {
			i := indexOf(after.Items, p)
			if i < 0 {
				return fmt.Errorf("order[%s] line %d: %w", id, p, ErrNoSuchLine)
			}
			if after.Items[i].PayoutStatus == PayoutRefunded {
				return fmt.Errorf("order[%s] line %d: %w", id, p, ErrAlreadyRefunded)
			}
			if err := rev.ReverseLine(ctx, tx, id, p); err != nil {
				return err
			}
			refunded += after.Items[i].Gross()
		}

		if err := after.RefundLines(positions, "refunded "+refunded.String(), now); err != nil {
			return err
		}

		if err := save(ctx, tx, before, after); err != nil {
			return err
		}
		out = after
		return nil
	})

	return out, refunded, err
}

func indexOf(items []Item, position int) int {
	for i, it := range items {
		if it.Position == position {
			return i
		}
	}
	return -1
}
