package claims

import (
	"context"
	"errors"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleStudio Role = "studio"
	RoleAdmin  Role = "admin"
)

// AdminRole narrows what an admin may do in the back office.
type AdminRole string

const (
	AdminSuper      AdminRole = "super"
	AdminOperations AdminRole = "operations"
	AdminContent    AdminRole = "content"
	AdminSEO        AdminRole = "seo"
	AdminFinance    AdminRole = "finance"
	AdminSupport    AdminRole = "support"
)

func (r AdminRole) Valid() bool {
	_, ok := defaultPermissions[r]
	return ok || r == AdminSuper
}

type Permission string

const (
	PermModerateProducts Permission = "products:moderate"
	PermManageOrders     Permission = "orders:manage"
	PermRefundOrders     Permission = "orders:refund"
	PermPaymentSettings  Permission = "settings:payments"
	PermManagePayouts    Permission = "payouts:manage"
	PermReviewKYC        Permission = "kyc:review"
	PermManageContent    Permission = "content:manage"
	PermManagePromos     Permission = "promos:manage"
)

var defaultPermissions = map[AdminRole][]Permission{
	AdminOperations: {PermManageOrders, PermModerateProducts, PermReviewKYC},
	AdminContent:    {PermModerateProducts, PermManageContent},
	AdminSEO:        {PermManageContent},
	AdminFinance:    {PermPaymentSettings, PermManagePayouts, PermRefundOrders, PermManagePromos},
	AdminSupport:    {PermManageOrders},
}

type Claims struct {
	UserID      string
	Name        string
	Role        Role
	AdminRole   AdminRole
	Permissions []Permission
}

// Can reports whether the claims grant perm. Super admins hold every
// permission; other admins hold their role defaults plus explicit grants.
func (c Claims) Can(perm Permission) bool {
	if c.Role != RoleAdmin {
		return false
	}
	if c.AdminRole == AdminSuper {
		return true
	}
	for _, p := range defaultPermissions[c.AdminRole] {
		if p == perm {
			return true
		}
	}
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type ctxKey int

const claimsKey ctxKey = 1

func Set(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func Get(ctx context.Context) (Claims, error) {
	v, ok := ctx.Value(claimsKey).(Claims)
	if !ok {
		return Claims{}, errors.New("claim value missing from context")
	}
	return v, nil
}

func IsAdmin(ctx context.Context) bool {
	c, err := Get(ctx)
	if err != nil {
		return false
	}

	return c.Role == RoleAdmin
}

func IsStudio(ctx context.Context) bool {
	c, err := Get(ctx)
	if err != nil {
		return false
	}

	return c.Role == RoleStudio
}

func IsUser(ctx context.Context, id string) bool {
	c, err := Get(ctx)
	if err != nil {
		return false
	}

	return c.UserID == id
}

func Can(ctx context.Context, perm Permission) bool {
	c, err := Get(ctx)
	if err != nil {
		return false
	}

	return c.Can(perm)
}
