package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/core/claims"
)

// run loads a fresh session, logs c in when non nil and sends a request
// through the middleware built by mw. It returns the resulting HTTP status.
func run(t *testing.T, c *claims.Claims, mw func(*scs.SessionManager) web.Middleware) (int, claims.Claims) {
	t.Helper()

	session := scs.New()
	ctx, err := session.Load(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		putClaims(ctx, session, *c)
	}

	var seen claims.Claims
	h := mw(session)(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		seen, _ = claims.Get(ctx)
		return nil
	})

	err = h(ctx, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err == nil {
		return http.StatusOK, seen
	}

	_, status, ok := weberr.Response(err)
	if !ok {
		t.Fatalf("middleware returned an undecorated error: %v", err)
	}
	return status, seen
}

func TestAuthenticate(t *testing.T) {
	status, _ := run(t, nil, Authenticate)
	if status != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d", status)
	}

	c := claims.Claims{UserID: "u1", Name: "Ana", Role: claims.RoleBuyer}
	status, seen := run(t, &c, Authenticate)
	if status != http.StatusOK || seen.UserID != "u1" || seen.Role != claims.RoleBuyer {
		t.Fatalf("status = %d, claims = %+v", status, seen)
	}
}

func TestStudio(t *testing.T) {
	buyer := claims.Claims{UserID: "u1", Role: claims.RoleBuyer}
	if status, _ := run(t, &buyer, Studio); status != http.StatusForbidden {
		t.Fatalf("buyer: status = %d", status)
	}

	studio := claims.Claims{UserID: "s1", Role: claims.RoleStudio}
	if status, _ := run(t, &studio, Studio); status != http.StatusOK {
		t.Fatalf("studio: status = %d", status)
	}
}

func TestPermission(t *testing.T) {
	payouts := func(s *scs.SessionManager) web.Middleware {
		return Permission(s, claims.PermManagePayouts)
	}

	support := claims.Claims{UserID: "a1", Role: claims.RoleAdmin, AdminRole: claims.AdminSupport}
	if status, _ := run(t, &support, payouts); status != http.StatusForbidden {
		t.Fatalf("support: status = %d", status)
	}

	granted := claims.Claims{
		UserID:      "a2",
		Role:        claims.RoleAdmin,
		AdminRole:   claims.AdminSupport,
		Permissions: []claims.Permission{claims.PermManagePayouts, claims.PermReviewKYC},
	}
	status, seen := run(t, &granted, payouts)
	if status != http.StatusOK {
		t.Fatalf("granted: status = %d", status)
	}
	if len(seen.Permissions) != 2 {
		t.Fatalf("permissions lost in the session round trip: %v", seen.Permissions)
	}
}
