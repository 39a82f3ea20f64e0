package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/core/user"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/random"
	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"
)

const (
	oauthStateKey = "oauth_state"
	oauthNonceKey = "oauth_nonce"
)

type ProviderConfig struct {
	Name        string
	Client      string
	Secret      string
	URL         string
	RedirectURL string
}

// Provider is an OpenID Connect issuer buyers can log in with.
type Provider struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// MakeProviders runs discovery for every configured issuer. Entries without
// a client id are skipped so a deployment can run with password login only.
func MakeProviders(ctx context.Context, cfgs []ProviderConfig) (map[string]Provider, error) {
	provs := make(map[string]Provider, len(cfgs))
	for _, c := range cfgs {
		if c.Client == "" {
			continue
		}

		p, err := oidc.NewProvider(ctx, c.URL)
		if err != nil {
			return nil, fmt.Errorf("discovering provider %s: %w", c.Name, err)
		}

		provs[c.Name] = Provider{
			oauth: &oauth2.Config{
				ClientID:     c.Client,
				ClientSecret: c.Secret,
				Endpoint:     p.Endpoint(),
				RedirectURL:  c.RedirectURL,
				Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			},
			verifier: p.Verifier(&oidc.Config{ClientID: c.Client}),
		}
	}
	return provs, nil
}

type idClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// identify exchanges the authorization code and returns the verified
// identity carried by the id token.
func (p Provider) identify(ctx context.Context, code, nonce string) (idClaims, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return idClaims{}, fmt.Errorf("exchanging code: %w", err)
	}

	raw, ok := tok.Extra("id_token").(string)
	if !ok {
		return idClaims{}, errors.New("token response carries no id_token")
	}

	idt, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return idClaims{}, fmt.Errorf("verifying id token: %w", err)
	}
	if idt.Nonce != nonce {
		return idClaims{}, errors.New("id token nonce mismatch")
	}

	var ic idClaims
	if err := idt.Claims(&ic); err != nil {
		return idClaims{}, fmt.Errorf("decoding id token claims: %w", err)
	}
	return ic, nil
}

// oauthUser returns the account registered under the email, opening a buyer
// account with an unusable random password on first login.
func oauthUser(ctx context.Context, db sqlx.ExtContext, ic idClaims, now time.Time) (user.User, error) {
	u, err := user.FetchByEmail(ctx, db, ic.Email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return user.User{}, err
	}

	pw, err := random.StringSecure(32)
	if err != nil {
		return user.User{}, fmt.Errorf("generating password: %w", err)
	}

	name := ic.Name
	if name == "" {
		name = ic.Email
	}
	u, err = user.Build(user.UserNew{
		Name:     name,
		Email:    ic.Email,
		Password: pw,
		Role:     claims.RoleBuyer,
	}, now)
	if err != nil {
		return user.User{}, err
	}

	if err := user.Create(ctx, db, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return user.FetchByEmail(ctx, db, ic.Email)
		}
		return user.User{}, err
	}
	return u, nil
}
