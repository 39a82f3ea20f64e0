package user

import (
	"errors"
	"testing"
	"time"

	"github.com/irsalhamdi/craft-market/core/claims"
)

func TestCanPublish(t *testing.T) {
	tests := []struct {
		name string
		u    User
		want error
	}{
		{"approved studio", User{Role: claims.RoleStudio, KYC: KYC{Status: KYCApproved}}, nil},
		{"submitted studio", User{Role: claims.RoleStudio, KYC: KYC{Status: KYCSubmitted}}, ErrKYCNotApproved},
		{"rejected studio", User{Role: claims.RoleStudio, KYC: KYC{Status: KYCRejected}}, ErrKYCNotApproved},
		{"buyer", User{Role: claims.RoleBuyer, KYC: KYC{Status: KYCApproved}}, ErrKYCNotApproved},
		{"admin", User{Role: claims.RoleAdmin}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.u.CanPublish(); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestKYCReview(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	submitted := KYC{Status: KYCSubmitted, DocumentURL: "https://docs.example.com/id.pdf"}

	k, err := submitted.Review(KYCReview{Approve: true}, now)
	if err != nil {
		t.Fatal(err)
	}
	if k.Status != KYCApproved || k.ReviewedAt == nil || !k.ReviewedAt.Equal(now) {
		t.Fatalf("unexpected kyc %+v", k)
	}

	if _, err := submitted.Review(KYCReview{}, now); !errors.Is(err, ErrRejectionReason) {
		t.Fatalf("rejection without reason: %v", err)
	}

	k, err = submitted.Review(KYCReview{Reason: "blurry scan"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if k.Status != KYCRejected || k.RejectionReason != "blurry scan" {
		t.Fatalf("unexpected kyc %+v", k)
	}

	if _, err := (KYC{Status: KYCNone}).Review(KYCReview{Approve: true}, now); !errors.Is(err, ErrKYCState) {
		t.Fatalf("review of unsubmitted kyc: %v", err)
	}
}

func TestBuild(t *testing.T) {
	now := time.Now().UTC()

	u, err := Build(UserNew{Name: "Ana", Email: "ana@clay.studio", Password: "secret-pass", Role: claims.RoleStudio}, now)
	if err != nil {
		t.Fatal(err)
	}
	if u.KYC.Status != KYCNone || u.Version != 1 {
		t.Fatalf("unexpected user %+v", u)
	}
	if err := u.CheckPassword("secret-pass"); err != nil {
		t.Fatal(err)
	}
	if err := u.CheckPassword("nope"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("got %v", err)
	}

	_, err = Build(UserNew{Name: "Root", Email: "root@craft.io", Password: "secret-pass", Role: claims.RoleAdmin}, now)
	if !errors.Is(err, ErrAdminRole) {
		t.Fatalf("admin without admin role: %v", err)
	}

	_, err = Build(UserNew{Name: "Bo", Email: "bo@craft.io", Password: "secret-pass", Role: claims.RoleBuyer, AdminRole: claims.AdminFinance}, now)
	if !errors.Is(err, ErrAdminRole) {
		t.Fatalf("buyer with admin role: %v", err)
	}
}
