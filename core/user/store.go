package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type dbUser struct {
	ID                 string         `db:"user_id"`
	Name               string         `db:"name"`
	Email              string         `db:"email"`
	Role               string         `db:"role"`
	AdminRole          string         `db:"admin_role"`
	Permissions        pq.StringArray `db:"permissions"`
	PasswordHash       []byte         `db:"password_hash"`
	KYCStatus          string         `db:"kyc_status"`
	KYCDocumentURL     string         `db:"kyc_document_url"`
	KYCRejectionReason string         `db:"kyc_rejection_reason"`
	KYCReviewedAt      *time.Time     `db:"kyc_reviewed_at"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
	Version            int            `db:"version"`
}

func toDB(u User) dbUser {
	perms := make(pq.StringArray, 0, len(u.Permissions))
	for _, p := range u.Permissions {
		perms = append(perms, string(p))
	}

	return dbUser{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Role:               string(u.Role),
		AdminRole:          string(u.AdminRole),
		Permissions:        perms,
		PasswordHash:       u.PasswordHash,
		KYCStatus:          string(u.KYC.Status),
		KYCDocumentURL:     u.KYC.DocumentURL,
		KYCRejectionReason: u.KYC.RejectionReason,
		KYCReviewedAt:      u.KYC.ReviewedAt,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
		Version:            u.Version,
	}
}

func (d dbUser) toUser() User {
	perms := make([]claims.Permission, 0, len(d.Permissions))
	for _, p := range d.Permissions {
		perms = append(perms, claims.Permission(p))
	}

	return User{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		Role:         claims.Role(d.Role),
		AdminRole:    claims.AdminRole(d.AdminRole),
		Permissions:  perms,
		PasswordHash: d.PasswordHash,
		KYC: KYC{
			Status:          KYCStatus(d.KYCStatus),
			DocumentURL:     d.KYCDocumentURL,
			RejectionReason: d.KYCRejectionReason,
			ReviewedAt:      d.KYCReviewedAt,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Version:   d.Version,
	}
}

const columns = `user_id, name, email, role, admin_role, permissions, password_hash,
	kyc_status, kyc_document_url, kyc_rejection_reason, kyc_reviewed_at, created_at, updated_at, version`

func Create(ctx context.Context, db sqlx.ExtContext, u User) error {
	const q = `
	INSERT INTO users (user_id, name, email, role, admin_role, permissions, password_hash,
		kyc_status, kyc_document_url, kyc_rejection_reason, kyc_reviewed_at, created_at, updated_at, version)
	VALUES (:user_id, :name, :email, :role, :admin_role, :permissions, :password_hash,
		:kyc_status, :kyc_document_url, :kyc_rejection_reason, :kyc_reviewed_at, :created_at, :updated_at, :version)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, toDB(u)); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting user[%s]: %w", u.ID, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.QueryerContext, id string) (User, error) {
	var d dbUser
	q := `SELECT ` + columns + ` FROM users WHERE user_id = $1`
	if err := sqlx.GetContext(ctx, db, &d, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, database.ErrNotFound
		}
		return User{}, fmt.Errorf("selecting user[%s]: %w", id, err)
	}
	return d.toUser(), nil
}

func FetchByEmail(ctx context.Context, db sqlx.QueryerContext, email string) (User, error) {
	var d dbUser
	q := `SELECT ` + columns + ` FROM users WHERE email = $1`
	if err := sqlx.GetContext(ctx, db, &d, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, database.ErrNotFound
		}
		return User{}, fmt.Errorf("selecting user by email: %w", err)
	}
	return d.toUser(), nil
}

func UpdateKYC(ctx context.Context, db sqlx.ExtContext, id string, k KYC, now time.Time) error {
	const q = `
	UPDATE users SET
		kyc_status = $2, kyc_document_url = $3, kyc_rejection_reason = $4, kyc_reviewed_at = $5,
		updated_at = $6, version = version + 1
	WHERE user_id = $1`

	res, err := db.ExecContext(ctx, q, id, string(k.Status), k.DocumentURL, k.RejectionReason, k.ReviewedAt, now)
	if err != nil {
		return fmt.Errorf("updating kyc of user[%s]: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating kyc of user[%s]: %w", id, err)
	}
	return database.AffectedOne(n)
}

// RequireApprovedKYC is the publication gate for studios, checked where paid
// content is created.
func RequireApprovedKYC(ctx context.Context, db sqlx.QueryerContext, id string) (User, error) {
	u, err := Fetch(ctx, db, id)
	if err != nil {
		return User{}, err
	}
	if err := u.CanPublish(); err != nil {
		return User{}, err
	}
	return u, nil
}
