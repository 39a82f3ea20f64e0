// Package promo validates promotion codes and prices their discount.
package promo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/jmoiron/sqlx"
)

// ErrInvalid is shared with the order package so checkout can report it.
var ErrInvalid = order.ErrInvalidPromo

type Kind string

const (
	Percent Kind = "percent"
	Fixed   Kind = "fixed"
)

// Code is a promotion. Value is in basis points for percent codes and in
// minor units for fixed ones. MaxUses of zero means unlimited.
type Code struct {
	Code        string       `json:"code" db:"code"`
	Kind        Kind         `json:"kind" db:"kind"`
	Value       int64        `json:"value" db:"value"`
	MinSubtotal money.Amount `json:"minSubtotal" db:"min_subtotal"`
	MaxUses     int          `json:"maxUses" db:"max_uses"`
	Uses        int          `json:"uses" db:"uses"`
	Active      bool         `json:"active" db:"active"`
	ExpiresAt   *time.Time   `json:"expiresAt,omitempty" db:"expires_at"`
}

// Discount returns what c takes off subtotal at now, never more than the
// subtotal itself.
func (c Code) Discount(subtotal money.Amount, now time.Time) (money.Amount, error) {
	switch {
	case !c.Active:
		return 0, fmt.Errorf("%s is inactive: %w", c.Code, ErrInvalid)
	case c.ExpiresAt != nil && !now.Before(*c.ExpiresAt):
		return 0, fmt.Errorf("%s expired: %w", c.Code, ErrInvalid)
	case c.MaxUses > 0 && c.Uses >= c.MaxUses:
		return 0, fmt.Errorf("%s is used up: %w", c.Code, ErrInvalid)
	case subtotal < c.MinSubtotal:
		return 0, fmt.Errorf("%s needs a subtotal of %s: %w", c.Code, c.MinSubtotal, ErrInvalid)
	}

	var d money.Amount
	switch c.Kind {
	case Percent:
		d = money.Rate(c.Value).Of(subtotal)
	case Fixed:
		d = money.Amount(c.Value)
	default:
		return 0, fmt.Errorf("%s has unknown kind %q: %w", c.Code, c.Kind, ErrInvalid)
	}
	return money.Min(d, subtotal), nil
}

type CodeNew struct {
	Code        string       `json:"code" validate:"omitempty,alphanum,max=32"`
	Kind        Kind         `json:"kind" validate:"required,oneof=percent fixed"`
	Value       int64        `json:"value" validate:"gt=0"`
	MinSubtotal money.Amount `json:"minSubtotal" validate:"gte=0"`
	MaxUses     int          `json:"maxUses" validate:"gte=0"`
	ExpiresAt   *time.Time   `json:"expiresAt"`
}

// Store validates codes against the promo_codes table.
type Store struct {
	DB  sqlx.QueryerContext
	Now func() time.Time
}

func (s Store) Validate(ctx context.Context, code string, lines []order.Line) (money.Amount, error) {
	c, err := Fetch(ctx, s.DB, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s: %w", code, ErrInvalid)
		}
		return 0, err
	}

	var subtotal money.Amount
	for _, l := range lines {
		subtotal += l.Gross()
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return c.Discount(subtotal, now())
}

const columns = `code, kind, value, min_subtotal, max_uses, uses, active, expires_at`

// Fetch returns sql.ErrNoRows for an unknown code.
func Fetch(ctx context.Context, db sqlx.QueryerContext, code string) (Code, error) {
	var c Code
	if err := sqlx.GetContext(ctx, db, &c, `SELECT `+columns+` FROM promo_codes WHERE code = $1`, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Code{}, err
		}
		return Code{}, fmt.Errorf("selecting promo[%s]: %w", code, err)
	}
	return c, nil
}

func Create(ctx context.Context, db sqlx.ExtContext, c Code) error {
	const q = `
	INSERT INTO promo_codes (code, kind, value, min_subtotal, max_uses, uses, active, expires_at)
	VALUES (:code, :kind, :value, :min_subtotal, :max_uses, :uses, :active, :expires_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("inserting promo[%s]: %w", c.Code, err)
	}
	return nil
}

func List(ctx context.Context, db sqlx.QueryerContext) ([]Code, error) {
	cs := []Code{}
	if err := sqlx.SelectContext(ctx, db, &cs, `SELECT `+columns+` FROM promo_codes ORDER BY code`); err != nil {
		return nil, fmt.Errorf("selecting promos: %w", err)
	}
	return cs, nil
}

func SetActive(ctx context.Context, db sqlx.ExtContext, code string, active bool) error {
	res, err := db.ExecContext(ctx, `UPDATE promo_codes SET active = $2 WHERE code = $1`, code, active)
	if err != nil {
		return fmt.Errorf("updating promo[%s]: %w", code, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating promo[%s]: %w", code, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
