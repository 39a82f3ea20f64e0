package workshop

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/core/user"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/validate"
	"github.com/jmoiron/sqlx"
)

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var nw WorkshopNew
		if err := web.Decode(w, r, &nw); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(nw); err != nil {
			return weberr.InvalidInput(err)
		}

		host, err := user.RequireApprovedKYC(ctx, db, clm.UserID)
		if err != nil {
			if errors.Is(err, user.ErrKYCNotApproved) {
				return weberr.Forbidden(err)
			}
			return fmt.Errorf("checking host[%s]: %w", clm.UserID, err)
		}

		now := time.Now().UTC()
		ws, err := Build(nw, validate.GenerateID(), host.ID, host.Name, now)
		if err != nil {
			return weberr.InvalidInput(err)
		}
		if !ws.StartsAt.After(now) {
			return weberr.InvalidInput(errors.New("a workshop must start in the future"))
		}

		if err := Create(ctx, db, ws); err != nil {
			return fmt.Errorf("creating workshop: %w", err)
		}

		return web.Respond(ctx, w, ws, http.StatusCreated)
	}
}

// HandleShow hides the meeting url from everyone but the host and admins.
func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		ws, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching workshop[%s]: %w", id, err)
		}

		if !claims.IsUser(ctx, ws.HostID) && !claims.IsAdmin(ctx) {
			ws.MeetingURL = ""
		}

		return web.Respond(ctx, w, ws, http.StatusOK)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		pg := web.ParsePage(r)

		ws, err := ListUpcoming(ctx, db, time.Now().UTC(), pg.Limit, pg.Offset)
		if err != nil {
			return err
		}
		for i := range ws {
			ws[i].MeetingURL = ""
		}

		return web.Respond(ctx, w, ws, http.StatusOK)
	}
}
