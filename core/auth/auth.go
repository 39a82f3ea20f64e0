package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/core/claims"
)

const (
	userIDKey      = "user_id"
	nameKey        = "name"
	roleKey        = "role"
	adminRoleKey   = "admin_role"
	permissionsKey = "permissions"
)

func putClaims(ctx context.Context, session *scs.SessionManager, c claims.Claims) {
	perms := make([]string, 0, len(c.Permissions))
	for _, p := range c.Permissions {
		perms = append(perms, string(p))
	}

	session.Put(ctx, userIDKey, c.UserID)
	session.Put(ctx, nameKey, c.Name)
	session.Put(ctx, roleKey, string(c.Role))
	session.Put(ctx, adminRoleKey, string(c.AdminRole))
	session.Put(ctx, permissionsKey, strings.Join(perms, ","))
}

// SessionUser reports the id of the user logged in to the request session.
func SessionUser(session *scs.SessionManager) func(context.Context) string {
	return func(ctx context.Context) string {
		return session.GetString(ctx, userIDKey)
	}
}

func sessionClaims(ctx context.Context, session *scs.SessionManager) (claims.Claims, bool) {
	id := session.GetString(ctx, userIDKey)
	if id == "" {
		return claims.Claims{}, false
	}

	var perms []claims.Permission
	if raw := session.GetString(ctx, permissionsKey); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			perms = append(perms, claims.Permission(p))
		}
	}

	return claims.Claims{
		UserID:      id,
		Name:        session.GetString(ctx, nameKey),
		Role:        claims.Role(session.GetString(ctx, roleKey)),
		AdminRole:   claims.AdminRole(session.GetString(ctx, adminRoleKey)),
		Permissions: perms,
	}, true
}

// Authenticate rejects requests without a logged in session and stores the
// session claims in the context.
func Authenticate(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			c, ok := sessionClaims(ctx, session)
			if !ok {
				return weberr.NotAuthorized(errors.New("no user logged in"))
			}

			ctx = claims.Set(ctx, c)
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

func requireRole(session *scs.SessionManager, roles ...claims.Role) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			c, ok := sessionClaims(ctx, session)
			if !ok {
				return weberr.NotAuthorized(errors.New("no user logged in"))
			}

			for _, role := range roles {
				if c.Role == role {
					ctx = claims.Set(ctx, c)
					return handler(ctx, w, r)
				}
			}

			return weberr.Forbidden(errors.New("role " + string(c.Role) + " cannot access this resource"))
		}
		return h
	}
	return m
}

func Admin(session *scs.SessionManager) web.Middleware {
	return requireRole(session, claims.RoleAdmin)
}

// Studio admits sellers, and admins acting on their behalf.
func Studio(session *scs.SessionManager) web.Middleware {
	return requireRole(session, claims.RoleStudio, claims.RoleAdmin)
}

// Permission admits admins that hold perm.
func Permission(session *scs.SessionManager, perm claims.Permission) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			c, ok := sessionClaims(ctx, session)
			if !ok {
				return weberr.NotAuthorized(errors.New("no user logged in"))
			}

			if !c.Can(perm) {
				return weberr.Forbidden(errors.New("missing permission " + string(perm)))
			}

			ctx = claims.Set(ctx, c)
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
