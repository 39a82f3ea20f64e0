package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/irsalhamdi/craft-market/core/pricing"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/jmoiron/sqlx"
)

type dbItem struct {
	ID             string                           `db:"cart_item_id"`
	UserID         string                           `db:"user_id"`
	ItemType       string                           `db:"item_type"`
	ItemID         string                           `db:"item_id"`
	VariantID      string                           `db:"variant_id"`
	Customizations database.JSON[map[string]string] `db:"customizations"`
	AddOnIDs       database.JSON[[]string]          `db:"add_on_ids"`
	Quantity       int                              `db:"quantity"`
	CreatedAt      time.Time                        `db:"created_at"`
	UpdatedAt      time.Time                        `db:"updated_at"`
}

func toDB(it Item) dbItem {
	customs := it.Selection.Customizations
	if customs == nil {
		customs = map[string]string{}
	}
	addOns := it.Selection.AddOnIDs
	if addOns == nil {
		addOns = []string{}
	}

	return dbItem{
		ID:             it.ID,
		UserID:         it.UserID,
		ItemType:       string(it.ItemType),
		ItemID:         it.ItemID,
		VariantID:      it.Selection.VariantID,
		Customizations: database.NewJSON(customs),
		AddOnIDs:       database.NewJSON(addOns),
		Quantity:       it.Quantity,
		CreatedAt:      it.CreatedAt,
		UpdatedAt:      it.UpdatedAt,
	}
}

func (d dbItem) toItem() Item {
	return Item{
		ID:       d.ID,
		UserID:   d.UserID,
		ItemType: order.ItemType(d.ItemType),
		ItemID:   d.ItemID,
		Selection: pricing.Selection{
			VariantID:      d.VariantID,
			Customizations: d.Customizations.V,
			AddOnIDs:       d.AddOnIDs.V,
		},
		Quantity:  d.Quantity,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

const columns = `cart_item_id, user_id, item_type, item_id, variant_id, customizations, add_on_ids, quantity, created_at, updated_at`

func FetchItems(ctx context.Context, db sqlx.QueryerContext, userID string) ([]Item, error) {
	var ds []dbItem
	q := `SELECT ` + columns + ` FROM cart_items WHERE user_id = $1 ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, db, &ds, q, userID); err != nil {
		return nil, fmt.Errorf("selecting cart of user[%s]: %w", userID, err)
	}

	items := make([]Item, 0, len(ds))
	for _, d := range ds {
		items = append(items, d.toItem())
	}
	return items, nil
}

func FetchItem(ctx context.Context, db sqlx.QueryerContext, userID, id string) (Item, error) {
	var d dbItem
	q := `SELECT ` + columns + ` FROM cart_items WHERE user_id = $1 AND cart_item_id = $2`
	if err := sqlx.GetContext(ctx, db, &d, q, userID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, database.ErrNotFound
		}
		return Item{}, fmt.Errorf("selecting cart item[%s]: %w", id, err)
	}
	return d.toItem(), nil
}

// CreateItem adds a line. A course can only sit in a cart once.
func CreateItem(ctx context.Context, db sqlx.ExtContext, it Item) error {
	if it.ItemType == order.ItemCourse {
		var n int
		const qc = `SELECT count(*) FROM cart_items WHERE user_id = $1 AND item_type = 'course' AND item_id = $2`
		if err := sqlx.GetContext(ctx, db, &n, qc, it.UserID, it.ItemID); err != nil {
			return fmt.Errorf("checking cart of user[%s]: %w", it.UserID, err)
		}
		if n > 0 {
			return ErrAlreadyInCart
		}
	}

	const q = `
	INSERT INTO cart_items (cart_item_id, user_id, item_type, item_id, variant_id, customizations, add_on_ids, quantity, created_at, updated_at)
	VALUES (:cart_item_id, :user_id, :item_type, :item_id, :variant_id, :customizations, :add_on_ids, :quantity, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, toDB(it)); err != nil {
		return fmt.Errorf("inserting cart item: %w", err)
	}
	return nil
}

func UpdateQuantity(ctx context.Context, db sqlx.ExtContext, userID, id string, qty int, now time.Time) error {
	const q = `UPDATE cart_items SET quantity = $3, updated_at = $4 WHERE user_id = $1 AND cart_item_id = $2`

	res, err := db.ExecContext(ctx, q, userID, id, qty, now)
	if err != nil {
		return fmt.Errorf("updating cart item[%s]: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating cart item[%s]: %w", id, err)
	}
	return database.AffectedOne(n)
}

func DeleteItem(ctx context.Context, db sqlx.ExtContext, userID, id string) error {
	const q = `DELETE FROM cart_items WHERE user_id = $1 AND cart_item_id = $2`

	res, err := db.ExecContext(ctx, q, userID, id)
	if err != nil {
		return fmt.Errorf("deleting cart item[%s]: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting cart item[%s]: %w", id, err)
	}
	return database.AffectedOne(n)
}

func Delete(ctx context.Context, db sqlx.ExtContext, userID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting cart of user[%s]: %w", userID, err)
	}
	return nil
}
