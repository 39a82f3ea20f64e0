// Package tax resolves the sales tax of an order from per country and
// region rates.
package tax

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/jmoiron/sqlx"
)

// Rate applies to a country, or to one region of it when Region is set.
type Rate struct {
	Country string     `json:"country" db:"country" validate:"required,iso3166_1_alpha2"`
	Region  string     `json:"region" db:"region"`
	Rate    money.Rate `json:"rate" db:"rate_bp"`
}

// Defaults seeds a fresh installation.
var Defaults = []Rate{
	{Country: "US", Rate: 0},
	{Country: "US", Region: "CA", Rate: 725},
	{Country: "US", Region: "NY", Rate: 400},
	{Country: "US", Region: "TX", Rate: 625},
	{Country: "GB", Rate: 2000},
	{Country: "DE", Rate: 1900},
	{Country: "FR", Rate: 2000},
	{Country: "PT", Rate: 2300},
	{Country: "ID", Rate: 1100},
}

// Store resolves tax from the tax_rates table. An address without a known
// country is not taxed.
type Store struct {
	DB sqlx.QueryerContext
}

func (s Store) Resolve(ctx context.Context, addr order.Address, taxable money.Amount) (money.Amount, error) {
	if addr.Country == "" || taxable <= 0 {
		return 0, nil
	}

	r, err := Lookup(ctx, s.DB, addr.Country, addr.Region)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return r.Of(taxable), nil
}

// Lookup prefers the region rate and falls back to the country rate.
func Lookup(ctx context.Context, db sqlx.QueryerContext, country, region string) (money.Rate, error) {
	const q = `
	SELECT rate_bp FROM tax_rates
	WHERE country = $1 AND region IN ($2, '')
	ORDER BY region DESC
	LIMIT 1`

	var bp int64
	err := sqlx.GetContext(ctx, db, &bp, q, strings.ToUpper(country), strings.ToUpper(region))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return 0, fmt.Errorf("selecting tax rate for %s/%s: %w", country, region, err)
	}
	return money.Rate(bp), nil
}

func Put(ctx context.Context, db sqlx.ExtContext, r Rate) error {
	const q = `
	INSERT INTO tax_rates (country, region, rate_bp) VALUES ($1, $2, $3)
	ON CONFLICT (country, region) DO UPDATE SET rate_bp = EXCLUDED.rate_bp`

	if _, err := db.ExecContext(ctx, q, strings.ToUpper(r.Country), strings.ToUpper(r.Region), int64(r.Rate)); err != nil {
		return fmt.Errorf("storing tax rate %s/%s: %w", r.Country, r.Region, err)
	}
	return nil
}

func List(ctx context.Context, db sqlx.QueryerContext) ([]Rate, error) {
	rs := []Rate{}
	if err := sqlx.SelectContext(ctx, db, &rs, `SELECT country, region, rate_bp FROM tax_rates ORDER BY country, region`); err != nil {
		return nil, fmt.Errorf("selecting tax rates: %w", err)
	}
	return rs, nil
}
