package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/irsalhamdi/craft-market/validate"
	"github.com/jmoiron/sqlx"
)

// ViewLine is a cart item with its current price, or the reason it cannot be
// bought anymore.
type ViewLine struct {
	Item
	Line    *order.Line `json:"line,omitempty"`
	Problem string      `json:"problem,omitempty"`
}

type View struct {
	Items    []ViewLine   `json:"items"`
	Subtotal money.Amount `json:"subtotal"`
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		items, err := FetchItems(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		v := View{Items: make([]ViewLine, 0, len(items))}
		for _, it := range items {
			vl := ViewLine{Item: it}
			l, err := Price(ctx, db, it)
			switch {
			case err == nil:
				vl.Line = &l
				v.Subtotal += l.Gross()
			case errors.Is(err, order.ErrLineUnavailable):
				vl.Problem = err.Error()
			default:
				return err
			}
			v.Items = append(v.Items, vl)
		}

		return web.Respond(ctx, w, v, http.StatusOK)
	}
}

func HandlePutItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var ni ItemNew
		if err := web.Decode(w, r, &ni); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(ni); err != nil {
			return weberr.InvalidInput(err)
		}
		ni = ni.normalize()

		now := time.Now().UTC()
		it := Item{
			ID:        validate.GenerateID(),
			UserID:    clm.UserID,
			ItemType:  ni.ItemType,
			ItemID:    ni.ItemID,
			Selection: ni.Selection,
			Quantity:  ni.Quantity,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if _, err := Price(ctx, db, it); err != nil {
			if errors.Is(err, order.ErrLineUnavailable) {
				return weberr.Unprocessable(err)
			}
			return err
		}

		if err := CreateItem(ctx, db, it); err != nil {
			if errors.Is(err, ErrAlreadyInCart) {
				return weberr.Conflict(err)
			}
			return err
		}

		return web.Respond(ctx, w, it, http.StatusCreated)
	}
}

func HandleUpdateItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		var up ItemUp
		if err := web.Decode(w, r, &up); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(up); err != nil {
			return weberr.InvalidInput(err)
		}

		it, err := FetchItem(ctx, db, clm.UserID, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}
		if it.ItemType == order.ItemCourse && up.Quantity != 1 {
			return weberr.InvalidInput(errors.New("a course is bought once"))
		}

		it.Quantity = up.Quantity
		it.UpdatedAt = time.Now().UTC()
		if _, err := Price(ctx, db, it); err != nil {
			if errors.Is(err, order.ErrLineUnavailable) {
				return weberr.Unprocessable(err)
			}
			return err
		}

		if err := UpdateQuantity(ctx, db, clm.UserID, id, it.Quantity, it.UpdatedAt); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, it, http.StatusOK)
	}
}

func HandleDeleteItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		if err := DeleteItem(ctx, db, clm.UserID, id); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleClear(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		if err := Delete(ctx, db, clm.UserID); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
