package user

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
	"github.com/irsalhamdi/craft-market/validate"
	"github.com/jmoiron/sqlx"
)

func HandleShowCurrent(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		u, err := Fetch(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching current user[%s]: %w", clm.UserID, err)
		}

		return web.Respond(ctx, w, u, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		if !claims.IsAdmin(ctx) && !claims.IsUser(ctx, id) {
			return weberr.Forbidden(errors.New("only the account owner or an admin can read it"))
		}

		u, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching user[%s]: %w", id, err)
		}

		return web.Respond(ctx, w, u, http.StatusOK)
	}
}

// HandleCreate lets a super admin open accounts of any role, including other
// admins with a narrower admin role.
func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}
		if clm.AdminRole != claims.AdminSuper {
			return weberr.Forbidden(errors.New("only super admins create accounts"))
		}

		var nu UserNew
		if err := web.Decode(w, r, &nu); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		u, err := Build(nu, time.Now().UTC())
		if err != nil {
			return weberr.InvalidInput(err)
		}

		if err := Create(ctx, db, u); err != nil {
			if errors.Is(err, ErrEmailTaken) {
				return weberr.Conflict(err)
			}
			return fmt.Errorf("creating user: %w", err)
		}

		return web.Respond(ctx, w, u, http.StatusCreated)
	}
}

// Build validates a new account and hashes its password.
func Build(nu UserNew, now time.Time) (User, error) {
	if err := validate.Check(nu); err != nil {
		return User{}, err
	}
	if err := nu.CheckRole(); err != nil {
		return User{}, err
	}

	hash, err := HashPassword(nu.Password)
	if err != nil {
		return User{}, err
	}

	return User{
		ID:           validate.GenerateID(),
		Name:         nu.Name,
		Email:        nu.Email,
		Role:         nu.Role,
		AdminRole:    nu.AdminRole,
		Permissions:  nu.Permissions,
		PasswordHash: hash,
		KYC:          KYC{Status: KYCNone},
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}, nil
}

func HandleSubmitKYC(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var ks KYCSubmit
		if err := web.Decode(w, r, &ks); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(ks); err != nil {
			return weberr.InvalidInput(err)
		}

		u, err := Fetch(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching user[%s]: %w", clm.UserID, err)
		}

		if u.Role != claims.RoleStudio {
			return weberr.Forbidden(errors.New("only studios submit kyc"))
		}
		if u.KYC.Status == KYCApproved || u.KYC.Status == KYCSubmitted {
			return weberr.Conflict(fmt.Errorf("kyc already %s", u.KYC.Status))
		}

		k := KYC{Status: KYCSubmitted, DocumentURL: ks.DocumentURL}
		if err := UpdateKYC(ctx, db, u.ID, k, time.Now().UTC()); err != nil {
			return fmt.Errorf("submitting kyc: %w", err)
		}

		return web.Respond(ctx, w, k, http.StatusOK)
	}
}

func HandleReviewKYC(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.InvalidInput(err)
		}

		var rv KYCReview
		if err := web.Decode(w, r, &rv); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		u, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching user[%s]: %w", id, err)
		}

		now := time.Now().UTC()
		k, err := u.KYC.Review(rv, now)
		if err != nil {
			return weberr.Unprocessable(err)
		}

		if err := UpdateKYC(ctx, db, u.ID, k, now); err != nil {
			return fmt.Errorf("reviewing kyc of user[%s]: %w", u.ID, err)
		}

		return web.Respond(ctx, w, k, http.StatusOK)
	}
}
