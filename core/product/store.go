package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/core/pricing"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/jmoiron/sqlx"
)

type dbProduct struct {
	ID              string                                 `db:"product_id"`
	SellerID        string                                 `db:"seller_id"`
	SellerName      string                                 `db:"seller_name"`
	Name            string                                 `db:"name"`
	Description     string                                 `db:"description"`
	ImageURL        string                                 `db:"image_url"`
	Price           int64                                  `db:"price"`
	Quantity        int                                    `db:"quantity"`
	HasVariants     bool                                   `db:"has_variants"`
	Variants        database.JSON[[]pricing.Variant]       `db:"variants"`
	Customizations  database.JSON[[]pricing.Customization] `db:"customizations"`
	AddOns          database.JSON[[]pricing.AddOn]         `db:"add_ons"`
	Status          string                                 `db:"status"`
	RejectionReason string                                 `db:"rejection_reason"`
	CreatedAt       time.Time                              `db:"created_at"`
	UpdatedAt       time.Time                              `db:"updated_at"`
	Version         int                                    `db:"version"`
}

func toDB(p Product) dbProduct {
	return dbProduct{
		ID:              p.ID,
		SellerID:        p.SellerID,
		SellerName:      p.SellerName,
		Name:            p.Name,
		Description:     p.Description,
		ImageURL:        p.ImageURL,
		Price:           int64(p.Price),
		Quantity:        p.Quantity,
		HasVariants:     p.HasVariants,
		Variants:        database.NewJSON(nonNil(p.Variants)),
		Customizations:  database.NewJSON(nonNil(p.Customizations)),
		AddOns:          database.NewJSON(nonNil(p.AddOns)),
		Status:          string(p.Status),
		RejectionReason: p.RejectionReason,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
		Version:         p.Version,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (d dbProduct) toProduct() Product {
	return Product{
		ID:              d.ID,
		SellerID:        d.SellerID,
		SellerName:      d.SellerName,
		Name:            d.Name,
		Description:     d.Description,
		ImageURL:        d.ImageURL,
		Price:           money.Amount(d.Price),
		Quantity:        d.Quantity,
		HasVariants:     d.HasVariants,
		Variants:        d.Variants.V,
		Customizations:  d.Customizations.V,
		AddOns:          d.AddOns.V,
		Status:          Status(d.Status),
		RejectionReason: d.RejectionReason,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		Version:         d.Version,
	}
}

const columns = `product_id, seller_id, seller_name, name, description, image_url, price, quantity,
	has_variants, variants, customizations, add_ons, status, rejection_reason, created_at, updated_at, version`

func Create(ctx context.Context, db sqlx.ExtContext, p Product) error {
	const q = `
	INSERT INTO products (product_id, seller_id, seller_name, name, description, image_url, price, quantity,
		has_variants, variants, customizations, add_ons, status, rejection_reason, created_at, updated_at, version)
	VALUES (:product_id, :seller_id, :seller_name, :name, :description, :image_url, :price, :quantity,
		:has_variants, :variants, :customizations, :add_ons, :status, :rejection_reason, :created_at, :updated_at, :version)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, toDB(p)); err != nil {
		return fmt.Errorf("inserting product[%s]: %w", p.ID, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.QueryerContext, id string) (Product, error) {
	var d dbProduct
	q := `SELECT ` + columns + ` FROM products WHERE product_id = $1`
	if err := sqlx.GetContext(ctx, db, &d, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, database.ErrNotFound
		}
		return Product{}, fmt.Errorf("selecting product[%s]: %w", id, err)
	}
	return d.toProduct(), nil
}

// List returns products in a status, newest first. An empty seller id lists
// every seller.
func List(ctx context.Context, db sqlx.QueryerContext, status Status, sellerID string, limit, offset int) ([]Product, error) {
	q := `SELECT ` + columns + ` FROM products
	WHERE ($1 = '' OR status = $1) AND ($2 = '' OR seller_id::text = $2)
	ORDER BY created_at DESC
	LIMIT $3 OFFSET $4`

	var ds []dbProduct
	if err := sqlx.SelectContext(ctx, db, &ds, q, string(status), sellerID, limit, offset); err != nil {
		return nil, fmt.Errorf("selecting products: %w", err)
	}

	ps := make([]Product, 0, len(ds))
	for _, d := range ds {
		ps = append(ps, d.toProduct())
	}
	return ps, nil
}

// UpdateStatus persists a lifecycle transition guarded by the version the
// caller read, so two moderators cannot both decide.
func UpdateStatus(ctx context.Context, db sqlx.ExtContext, p Product, now time.Time) error {
	const q = `
	UPDATE products SET status = $2, rejection_reason = $3, updated_at = $4, version = version + 1
	WHERE product_id = $1 AND version = $5`

	res, err := db.ExecContext(ctx, q, p.ID, string(p.Status), p.RejectionReason, now, p.Version)
	if err != nil {
		return fmt.Errorf("updating status of product[%s]: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating status of product[%s]: %w", p.ID, err)
	}
	return database.AffectedOne(n)
}
