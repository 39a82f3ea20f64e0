package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/craft-market/api/background"
	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/core/fsm"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/events"
	"github.com/irsalhamdi/craft-market/metrics"
	"github.com/irsalhamdi/craft-market/validate"
	"github.com/jmoiron/sqlx"
)

// publish sends evt after the response, outside the request lifetime.
func publish(bg *background.Background, pub events.Publisher, typ string, o Order) {
	bg.Go("publish "+typ, func(ctx context.Context) error {
		evt, err := events.New(typ, o)
		if err != nil {
			return err
		}
		return pub.Publish(ctx, evt)
	})
}

func fetchOwned(ctx context.Context, db *sqlx.DB, r *http.Request) (Order, error) {
	id := web.Param(r, "id")
	if err := validate.CheckID(id); err != nil {
		return Order{}, weberr.InvalidInput(err)
	}

	o, err := Fetch(ctx, db, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Order{}, weberr.NotFound(err)
		}
		return Order{}, fmt.Errorf("fetching order[%s]: %w", id, err)
	}

	if !claims.IsUser(ctx, o.BuyerID) && !claims.Can(ctx, claims.PermManageOrders) {
		return Order{}, weberr.NotFound(fmt.Errorf("order[%s] belongs to another buyer", id))
	}
	return o, nil
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		o, err := fetchOwned(ctx, db, r)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, o, http.StatusOK)
	}
}

func HandleListMine(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}
		pg := web.ParsePage(r)

		ords, err := List(ctx, db, clm.UserID, "", pg.Limit, pg.Offset)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, ords, http.StatusOK)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		pg := web.ParsePage(r)
		q := r.URL.Query()

		ords, err := List(ctx, db, q.Get("buyer"), Status(q.Get("status")), pg.Limit, pg.Offset)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, ords, http.StatusOK)
	}
}

type FulfillmentUp struct {
	Status  Status `json:"status" validate:"required,oneof=confirmed processing shipped delivered cancelled"`
	Message string `json:"message" validate:"max=500"`
}

func HandleUpdateFulfillment(db *sqlx.DB, bg *background.Background, pub events.Publisher) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		var up FulfillmentUp
		if err := web.Decode(w, r, &up); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(up); err != nil {
			return weberr.InvalidInput(err)
		}

		msg := up.Message
		if msg == "" {
			msg = "order " + string(up.Status)
		}

		o, err := UpdateFulfillment(ctx, db, id, up.Status, msg, time.Now().UTC())
		metrics.RecordOrderOperation("fulfillment", err == nil)
		if err != nil {
			return mapStateError(id, err)
		}

		publish(bg, pub, events.OrderStatus, o)
		return web.Respond(ctx, w, o, http.StatusOK)
	}
}

type RefundReq struct {
	// Positions of the lines to refund. Empty refunds every remaining line.
	Positions []int `json:"positions"`
}

func HandleRefund(db *sqlx.DB, rev LineReverser, bg *background.Background, pub events.Publisher) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		var req RefundReq
		if err := web.Decode(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		o, amount, err := Refund(ctx, db, rev, id, req.Positions, time.Now().UTC())
		metrics.RecordOrderOperation("refund", err == nil)
		if err != nil {
			return mapStateError(id, err)
		}

		publish(bg, pub, events.OrderRefunded, o)

		resp := struct {
			Order    Order  `json:"order"`
			Refunded string `json:"refunded"`
		}{o, amount.String()}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

// mapStateError turns order state errors into client errors.
func mapStateError(id string, err error) error {
	order := weberr.WithFields(map[string]any{"order_id": id})
	switch {
	case errors.Is(err, ErrLineAlreadyPaid), errors.Is(err, ErrCancelPaid):
		return weberr.Conflict(err, order)
	case errors.Is(err, database.ErrNotFound):
		return weberr.NotFound(fmt.Errorf("order[%s]: %w", id, err), order)
	case errors.Is(err, fsm.ErrInvalidTransition),
		errors.Is(err, ErrNotRefundable),
		errors.Is(err, ErrAlreadyRefunded),
		errors.Is(err, ErrNoSuchLine):
		return weberr.Unprocessable(err, order)
	}
	return err
}
