package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/core/user"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/random"
	"github.com/jmoiron/sqlx"
)

type Signup struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     claims.Role `json:"role"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignup opens buyer and studio accounts. Admin accounts are created
// by a super admin or by cmd/admin.
func HandleSignup(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var s Signup
		if err := web.Decode(w, r, &s); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if s.Role == "" {
			s.Role = claims.RoleBuyer
		}
		if s.Role == claims.RoleAdmin {
			return weberr.Forbidden(errors.New("admin accounts cannot sign up"))
		}

		u, err := user.Build(user.UserNew{
			Name:     s.Name,
			Email:    s.Email,
			Password: s.Password,
			Role:     s.Role,
		}, time.Now().UTC())
		if err != nil {
			return weberr.InvalidInput(err)
		}

		if err := user.Create(ctx, db, u); err != nil {
			if errors.Is(err, user.ErrEmailTaken) {
				return weberr.Conflict(err)
			}
			return fmt.Errorf("signing up: %w", err)
		}

		if err := session.RenewToken(ctx); err != nil {
			return fmt.Errorf("renewing session token: %w", err)
		}
		putClaims(ctx, session, u.Claims())

		return web.Respond(ctx, w, u, http.StatusCreated)
	}
}

func HandleLogin(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var cred Credentials
		if err := web.Decode(w, r, &cred); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		u, err := user.FetchByEmail(ctx, db, cred.Email)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotAuthorized(user.ErrBadCredentials)
			}
			return fmt.Errorf("logging in: %w", err)
		}

		if err := u.CheckPassword(cred.Password); err != nil {
			return weberr.NotAuthorized(err)
		}

		if err := session.RenewToken(ctx); err != nil {
			return fmt.Errorf("renewing session token: %w", err)
		}
		putClaims(ctx, session, u.Claims())

		return web.Respond(ctx, w, u, http.StatusOK)
	}
}

func HandleLogout(session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := session.Destroy(ctx); err != nil {
			return fmt.Errorf("destroying session: %w", err)
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleOauthLogin(session *scs.SessionManager, provs map[string]Provider) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		name := web.Param(r, "provider")
		prov, ok := provs[name]
		if !ok {
			return weberr.NotFound(fmt.Errorf("oauth provider %q is not configured", name))
		}

		state, err := random.StringSecure(32)
		if err != nil {
			return fmt.Errorf("generating oauth state: %w", err)
		}
		nonce, err := random.StringSecure(32)
		if err != nil {
			return fmt.Errorf("generating oauth nonce: %w", err)
		}
		session.Put(ctx, oauthStateKey, state)
		session.Put(ctx, oauthNonceKey, nonce)

		http.Redirect(w, r, prov.oauth.AuthCodeURL(state, oidc.Nonce(nonce)), http.StatusFound)
		return nil
	}
}

// HandleOauthCallback completes the provider login and redirects to the
// storefront. Unknown verified emails get a buyer account.
func HandleOauthCallback(db *sqlx.DB, session *scs.SessionManager, provs map[string]Provider, redirectURL string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		name := web.Param(r, "provider")
		prov, ok := provs[name]
		if !ok {
			return weberr.NotFound(fmt.Errorf("oauth provider %q is not configured", name))
		}

		state := session.PopString(ctx, oauthStateKey)
		nonce := session.PopString(ctx, oauthNonceKey)
		q := r.URL.Query()
		if state == "" || q.Get("state") != state {
			return weberr.BadRequest(errors.New("oauth state does not match"))
		}
		if e := q.Get("error"); e != "" {
			return weberr.NotAuthorized(fmt.Errorf("provider refused the login: %s", e))
		}

		ic, err := prov.identify(ctx, q.Get("code"), nonce)
		if err != nil {
			return weberr.NotAuthorized(err)
		}
		if ic.Email == "" || !ic.EmailVerified {
			return weberr.Forbidden(errors.New("provider did not return a verified email"))
		}

		u, err := oauthUser(ctx, db, ic, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("oauth login with %s: %w", name, err)
		}

		if err := session.RenewToken(ctx); err != nil {
			return fmt.Errorf("renewing session token: %w", err)
		}
		putClaims(ctx, session, u.Claims())

		http.Redirect(w, r, redirectURL, http.StatusFound)
		return nil
	}
}
