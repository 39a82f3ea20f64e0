package user

import (
	"errors"
	"time"

	"github.com/irsalhamdi/craft-market/core/claims"
)

var (
	ErrKYCNotApproved = errors.New("studio identity verification (KYC) is not approved")
	ErrKYCState       = errors.New("kyc is not awaiting review")
	ErrEmailTaken     = errors.New("email already registered")
)

type KYCStatus string

const (
	KYCNone      KYCStatus = "none"
	KYCSubmitted KYCStatus = "submitted"
	KYCApproved  KYCStatus = "approved"
	KYCRejected  KYCStatus = "rejected"
)

// KYC is the verification a studio must pass before publishing paid content.
type KYC struct {
	Status          KYCStatus  `json:"status"`
	DocumentURL     string     `json:"documentUrl,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
}

type User struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	Role         claims.Role         `json:"role"`
	AdminRole    claims.AdminRole    `json:"adminRole,omitempty"`
	Permissions  []claims.Permission `json:"permissions,omitempty"`
	PasswordHash []byte              `json:"-"`
	KYC          KYC                 `json:"kyc"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
	Version      int                 `json:"-"`
}

func (u User) Claims() claims.Claims {
	return claims.Claims{
		UserID:      u.ID,
		Name:        u.Name,
		Role:        u.Role,
		AdminRole:   u.AdminRole,
		Permissions: u.Permissions,
	}
}

// CanPublish reports whether the user may publish paid catalog entries.
func (u User) CanPublish() error {
	if u.Role == claims.RoleAdmin {
		return nil
	}
	if u.Role != claims.RoleStudio || u.KYC.Status != KYCApproved {
		return ErrKYCNotApproved
	}
	return nil
}

type UserNew struct {
	Name        string              `json:"name" validate:"required"`
	Email       string              `json:"email" validate:"required,email"`
	Password    string              `json:"password" validate:"required,min=8"`
	Role        claims.Role         `json:"role" validate:"required,oneof=buyer studio admin"`
	AdminRole   claims.AdminRole    `json:"adminRole" validate:"omitempty,oneof=super operations content seo finance support"`
	Permissions []claims.Permission `json:"permissions"`
}

var ErrAdminRole = errors.New("admins need a valid admin role")

// CheckRole validates the role combination of a new account.
func (n UserNew) CheckRole() error {
	if n.Role == claims.RoleAdmin && !n.AdminRole.Valid() {
		return ErrAdminRole
	}
	if n.Role != claims.RoleAdmin && (n.AdminRole != "" || len(n.Permissions) > 0) {
		return ErrAdminRole
	}
	return nil
}

type KYCSubmit struct {
	DocumentURL string `json:"documentUrl" validate:"required,url"`
}

type KYCReview struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

var ErrRejectionReason = errors.New("a rejection needs a reason")

// Review applies an admin decision to a submitted KYC.
func (k KYC) Review(rv KYCReview, now time.Time) (KYC, error) {
	if k.Status != KYCSubmitted {
		return k, ErrKYCState
	}
	if !rv.Approve && rv.Reason == "" {
		return k, ErrRejectionReason
	}

	k.ReviewedAt = &now
	if rv.Approve {
		k.Status = KYCApproved
		k.RejectionReason = ""
	} else {
		k.Status = KYCRejected
		k.RejectionReason = rv.Reason
	}
	return k, nil
}
