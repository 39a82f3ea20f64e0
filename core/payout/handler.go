package payout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/craft-market/api/background"
	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/events"
	"github.com/irsalhamdi/craft-market/metrics"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/irsalhamdi/craft-market/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

func HandlePreview(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		sps, err := Preview(ctx, db)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, sps, http.StatusOK)
	}
}

// HandleIssue issues batches for every seller owed at least minimum.
func HandleIssue(log logrus.FieldLogger, db *sqlx.DB, minimum money.Amount, bg *background.Background, pub events.Publisher) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		bs, err := IssueBatches(ctx, db, minimum, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("issuing payout batches: %w", err)
		}

		for _, b := range bs {
			metrics.RecordPayoutBatch(int64(b.Amount))
			publish(bg, pub, events.PayoutIssued, b)
			log.WithFields(logrus.Fields{
				"batch":  b.ID,
				"seller": b.SellerID,
				"amount": b.Amount.String(),
				"lines":  b.LineCount,
			}).Info("payout batch issued")
		}

		return web.Respond(ctx, w, bs, http.StatusCreated)
	}
}

type Confirmation struct {
	TransferRef string `json:"transferRef" validate:"omitempty,max=64"`
}

func HandleConfirm(log logrus.FieldLogger, db *sqlx.DB, bg *background.Background, pub events.Publisher) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		var c Confirmation
		if r.ContentLength != 0 {
			if err := web.Decode(w, r, &c); err != nil {
				return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
			}
		}
		if err := validate.Check(c); err != nil {
			return weberr.InvalidInput(err)
		}

		b, err := ConfirmBatch(ctx, db, id, c.TransferRef, time.Now().UTC())
		if err != nil {
			switch {
			case errors.Is(err, database.ErrNotFound):
				return weberr.NotFound(err)
			case errors.Is(err, ErrBatchNotIssued):
				return weberr.Conflict(err)
			}
			return fmt.Errorf("confirming batch[%s]: %w", id, err)
		}

		publish(bg, pub, events.PayoutPaid, b)
		log.WithFields(logrus.Fields{"batch": b.ID, "ref": b.TransferRef}).Info("payout batch paid")

		return web.Respond(ctx, w, b, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		b, err := FetchBatch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}
		return web.Respond(ctx, w, b, http.StatusOK)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		pg := web.ParsePage(r)

		bs, err := ListBatches(ctx, db, r.URL.Query().Get("seller"), pg.Limit, pg.Offset)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, bs, http.StatusOK)
	}
}

func publish(bg *background.Background, pub events.Publisher, typ string, b Batch) {
	bg.Go("publish "+typ, func(ctx context.Context) error {
		evt, err := events.New(typ, b)
		if err != nil {
			return err
		}
		return pub.Publish(ctx, evt)
	})
}
