package settings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

func HandleShowCommission(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		c, err := Current(ctx, db)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(errors.New("no commission configured yet"))
			}
			return err
		}
		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

func HandleCommissionHistory(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		cs, err := History(ctx, db)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, cs, http.StatusOK)
	}
}

func HandleSaveCommission(log logrus.FieldLogger, db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var up CommissionUp
		if err := web.Decode(w, r, &up); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		c, err := Save(ctx, db, CommissionConfig{
			PlatformCommission: up.PlatformCommission,
			ProcessingFee:      up.ProcessingFee,
			CreatedBy:          clm.UserID,
			CreatedAt:          time.Now().UTC(),
		})
		if err != nil {
			if errors.Is(err, ErrCommissionTooHigh) || errors.Is(err, money.ErrInvalidRate) {
				return weberr.InvalidInput(err)
			}
			return err
		}

		log.WithFields(logrus.Fields{
			"version":    c.Version,
			"commission": c.PlatformCommission.String(),
			"fee":        c.ProcessingFee.String(),
			"by":         clm.UserID,
		}).Info("commission config saved")

		return web.Respond(ctx, w, c, http.StatusCreated)
	}
}
