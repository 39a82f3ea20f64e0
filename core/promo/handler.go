package promo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/random"
	"github.com/irsalhamdi/craft-market/validate"
	"github.com/jmoiron/sqlx"
)

// HandleCreate stores a promo. Without a code one is generated.
func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var cn CodeNew
		if err := web.Decode(w, r, &cn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(cn); err != nil {
			return weberr.InvalidInput(err)
		}
		if cn.Kind == Percent && cn.Value > 10000 {
			return weberr.InvalidInput(errors.New("a percent promo cannot exceed 100%"))
		}

		code := validate.NormalizeCode(cn.Code)
		if code == "" {
			var err error
			if code, err = random.Code("PROMO", 8); err != nil {
				return err
			}
		}

		c := Code{
			Code:        code,
			Kind:        cn.Kind,
			Value:       cn.Value,
			MinSubtotal: cn.MinSubtotal,
			MaxUses:     cn.MaxUses,
			Active:      true,
			ExpiresAt:   cn.ExpiresAt,
		}

		if err := Create(ctx, db, c); err != nil {
			if database.IsUniqueViolation(err) {
				return weberr.Conflict(fmt.Errorf("promo %s already exists", code))
			}
			return err
		}

		return web.Respond(ctx, w, c, http.StatusCreated)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		cs, err := List(ctx, db)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, cs, http.StatusOK)
	}
}

func HandleDeactivate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		code := validate.NormalizeCode(web.Param(r, "code"))

		if err := SetActive(ctx, db, code, false); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NotFound(fmt.Errorf("promo %s not found", code))
			}
			return err
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
