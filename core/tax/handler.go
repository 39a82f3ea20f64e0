package tax

import (
	"context"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/irsalhamdi/craft-market/validate"
	"github.com/jmoiron/sqlx"
)

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		rs, err := List(ctx, db)
		if err != nil {
			return err
		}
		return web.Respond(ctx, w, rs, http.StatusOK)
	}
}

func HandlePut(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var rt Rate
		if err := web.Decode(w, r, &rt); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(rt); err != nil {
			return weberr.InvalidInput(err)
		}
		if rt.Rate < 0 || rt.Rate >= money.BasisPoints {
			return weberr.InvalidInput(money.ErrInvalidRate)
		}

		if err := Put(ctx, db, rt); err != nil {
			return err
		}
		return web.Respond(ctx, w, rt, http.StatusOK)
	}
}
