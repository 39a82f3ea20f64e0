package product

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/core/fsm"
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

		var np ProductNew
		if err := web.Decode(w, r, &np); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(np); err != nil {
			return weberr.InvalidInput(err)
		}

		seller, err := user.RequireApprovedKYC(ctx, db, clm.UserID)
		if err != nil {
			if errors.Is(err, user.ErrKYCNotApproved) {
				return weberr.Forbidden(err)
			}
			return fmt.Errorf("checking seller[%s]: %w", clm.UserID, err)
		}

		p, err := Build(np, validate.GenerateID(), seller.ID, seller.Name, validate.GenerateID, time.Now().UTC())
		if err != nil {
			return weberr.InvalidInput(err)
		}

		if err := Create(ctx, db, p); err != nil {
			return fmt.Errorf("creating product: %w", err)
		}

		return web.Respond(ctx, w, p, http.StatusCreated)
	}
}

// HandleShow returns active products to anyone; drafts and moderated entries
// only to their seller and admins.
func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		p, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching product[%s]: %w", id, err)
		}

		if p.Status != Active && p.Status != Sold && !claims.IsUser(ctx, p.SellerID) && !claims.IsAdmin(ctx) {
			return weberr.NotFound(fmt.Errorf("product[%s] is %s", id, p.Status))
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		pg := web.ParsePage(r)

		ps, err := List(ctx, db, Active, r.URL.Query().Get("seller"), pg.Limit, pg.Offset)
		if err != nil {
			return fmt.Errorf("listing products: %w", err)
		}

		return web.Respond(ctx, w, ps, http.StatusOK)
	}
}

// HandleListModeration lists products by status for the moderation queue,
// pending by default.
func HandleListModeration(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		pg := web.ParsePage(r)

		status := Status(r.URL.Query().Get("status"))
		if status == "" {
			status = Pending
		}

		ps, err := List(ctx, db, status, "", pg.Limit, pg.Offset)
		if err != nil {
			return fmt.Errorf("listing %s products: %w", status, err)
		}

		return web.Respond(ctx, w, ps, http.StatusOK)
	}
}

func HandleListMine(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}
		pg := web.ParsePage(r)

		ps, err := List(ctx, db, Status(r.URL.Query().Get("status")), clm.UserID, pg.Limit, pg.Offset)
		if err != nil {
			return fmt.Errorf("listing products of seller[%s]: %w", clm.UserID, err)
		}

		return web.Respond(ctx, w, ps, http.StatusOK)
	}
}

// HandleSubmit sends a draft or rejected product to moderation. Archive goes
// through the same handler with a different target.
func HandleSubmit(db *sqlx.DB) web.Handler {
	return handleOwnerTransition(db, Pending)
}

func HandleArchive(db *sqlx.DB) web.Handler {
	return handleOwnerTransition(db, Archived)
}

func handleOwnerTransition(db *sqlx.DB, to Status) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		p, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching product[%s]: %w", id, err)
		}

		if p.SellerID != clm.UserID && clm.Role != claims.RoleAdmin {
			return weberr.Forbidden(errors.New("only the seller can change this product"))
		}

		if to == Pending {
			if _, err := user.RequireApprovedKYC(ctx, db, p.SellerID); err != nil {
				if errors.Is(err, user.ErrKYCNotApproved) {
					return weberr.Forbidden(err)
				}
				return fmt.Errorf("checking seller[%s]: %w", p.SellerID, err)
			}
		}

		return transition(ctx, w, db, p, to, "")
	}
}

func HandleReview(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		var rv Review
		if err := web.Decode(w, r, &rv); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		p, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching product[%s]: %w", id, err)
		}

		to := Active
		if !rv.Approve {
			to = Rejected
		}

		return transition(ctx, w, db, p, to, rv.Reason)
	}
}

func transition(ctx context.Context, w http.ResponseWriter, db *sqlx.DB, p Product, to Status, reason string) error {
	if err := p.Transition(to, reason); err != nil {
		if errors.Is(err, fsm.ErrInvalidTransition) || errors.Is(err, ErrReasonRequired) {
			return weberr.Unprocessable(err)
		}
		return err
	}

	if err := UpdateStatus(ctx, db, p, time.Now().UTC()); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return weberr.Conflict(fmt.Errorf("product[%s] changed concurrently, reload and retry", p.ID))
		}
		return fmt.Errorf("moving product[%s] to %s: %w", p.ID, to, err)
	}

	p.Version++
	return web.Respond(ctx, w, p, http.StatusOK)
}
