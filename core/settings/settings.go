// Package settings keeps the versioned commission configuration. A saved
// configuration is never edited; every change becomes a new version so orders
// can refer to the rates that applied when they were paid.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/jmoiron/sqlx"
)

var ErrCommissionTooHigh = errors.New("commission and processing fee must add up to less than 100%")

type CommissionConfig struct {
	Version            int        `json:"version"`
	PlatformCommission money.Rate `json:"platformCommission"`
	ProcessingFee      money.Rate `json:"processingFee"`
	CreatedBy          string     `json:"createdBy,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

func (c CommissionConfig) Validate() error {
	if c.PlatformCommission < 0 || c.ProcessingFee < 0 {
		return money.ErrInvalidRate
	}
	if c.PlatformCommission+c.ProcessingFee >= money.BasisPoints {
		return fmt.Errorf("%s%% + %s%%: %w", c.PlatformCommission, c.ProcessingFee, ErrCommissionTooHigh)
	}
	return nil
}

type CommissionUp struct {
	PlatformCommission money.Rate `json:"platformCommission"`
	ProcessingFee      money.Rate `json:"processingFee"`
}

type dbConfig struct {
	Version    int            `db:"version"`
	Commission int64          `db:"platform_commission_bp"`
	Fee        int64          `db:"processing_fee_bp"`
	CreatedBy  sql.NullString `db:"created_by"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (d dbConfig) toConfig() CommissionConfig {
	return CommissionConfig{
		Version:            d.Version,
		PlatformCommission: money.Rate(d.Commission),
		ProcessingFee:      money.Rate(d.Fee),
		CreatedBy:          d.CreatedBy.String,
		CreatedAt:          d.CreatedAt,
	}
}

// Save validates c and stores it as the next version.
func Save(ctx context.Context, db sqlx.ExtContext, c CommissionConfig) (CommissionConfig, error) {
	if err := c.Validate(); err != nil {
		return CommissionConfig{}, err
	}

	const q = `
	INSERT INTO commission_configs (platform_commission_bp, processing_fee_bp, created_by, created_at)
	VALUES ($1, $2, $3, $4)
	RETURNING version`

	createdBy := sql.NullString{String: c.CreatedBy, Valid: c.CreatedBy != ""}
	if err := sqlx.GetContext(ctx, db, &c.Version, q, int64(c.PlatformCommission), int64(c.ProcessingFee), createdBy, c.CreatedAt); err != nil {
		return CommissionConfig{}, fmt.Errorf("inserting commission config: %w", err)
	}
	return c, nil
}

// Current returns the highest version. database.ErrNotFound means nothing
// was ever configured.
func Current(ctx context.Context, db sqlx.QueryerContext) (CommissionConfig, error) {
	const q = `
	SELECT version, platform_commission_bp, processing_fee_bp, created_by, created_at
	FROM commission_configs ORDER BY version DESC LIMIT 1`

	var d dbConfig
	if err := sqlx.GetContext(ctx, db, &d, q); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommissionConfig{}, database.ErrNotFound
		}
		return CommissionConfig{}, fmt.Errorf("selecting commission config: %w", err)
	}
	return d.toConfig(), nil
}

func History(ctx context.Context, db sqlx.QueryerContext) ([]CommissionConfig, error) {
	const q = `
	SELECT version, platform_commission_bp, processing_fee_bp, created_by, created_at
	FROM commission_configs ORDER BY version DESC`

	var ds []dbConfig
	if err := sqlx.SelectContext(ctx, db, &ds, q); err != nil {
		return nil, fmt.Errorf("selecting commission configs: %w", err)
	}

	cs := make([]CommissionConfig, 0, len(ds))
	for _, d := range ds {
		cs = append(cs, d.toConfig())
	}
	return cs, nil
}
