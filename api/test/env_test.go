package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/craft-market/api"
	"github.com/irsalhamdi/craft-market/api/background"
	"github.com/irsalhamdi/craft-market/config"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/irsalhamdi/craft-market/core/user"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/events"
	"github.com/irsalhamdi/craft-market/rate"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
)

type TestEnv struct {
	*httptest.Server
	DB            *sqlx.DB
	Events        *events.Recorder
	Background    *background.Background
	AdminEmail    string
	AdminPass     string
	SellerEmail   string
	SellerPass    string
	UserEmail     string
	UserPass      string
	WebhookSecret string
	Paypal        *mockPaypal
	Stripe        *mockStripe
}

// NewTestEnv starts a throwaway postgres in docker, migrates it, seeds one
// account per role and serves the API against mocked payment providers.
// The test is skipped when docker is not reachable.
func NewTestEnv(t *testing.T, name string) (*TestEnv, error) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "14-alpine",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_DB=" + name,
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, fmt.Errorf("starting postgres: %w", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(res); err != nil {
			t.Logf("purging postgres: %v", err)
		}
	})

	dbCfg := config.DB{
		User:         "postgres",
		Password:     "postgres",
		Host:         res.GetHostPort("5432/tcp"),
		Name:         name,
		MaxIdleConns: 2,
		DisableTLS:   true,
	}

	var db *sqlx.DB
	err = pool.Retry(func() error {
		var err error
		db, err = database.Open(dbCfg)
		if err != nil {
			return err
		}
		return database.StatusCheck(context.Background(), db)
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for postgres: %w", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(database.DSN(dbCfg)); err != nil {
		return nil, err
	}

	env := &TestEnv{
		DB:            db,
		Events:        &events.Recorder{},
		AdminEmail:    "admin@craft.test",
		AdminPass:     "admin-password",
		SellerEmail:   "studio@craft.test",
		SellerPass:    "studio-password",
		UserEmail:     "buyer@craft.test",
		UserPass:      "buyer-password",
		WebhookSecret: "whsec_test",
		Paypal:        &mockPaypal{},
		Stripe:        &mockStripe{},
	}

	if err := env.seedUsers(); err != nil {
		return nil, err
	}

	ppSrv := httptest.NewServer(env.Paypal.handle())
	t.Cleanup(ppSrv.Close)
	stSrv := httptest.NewServer(env.Stripe.handle())
	t.Cleanup(stSrv.Close)

	pp, err := paypal.NewClient("client", "secret", ppSrv.URL)
	if err != nil {
		return nil, fmt.Errorf("building paypal client: %w", err)
	}

	stripeCfg := config.Stripe{
		APISecret:     "sk_test_123",
		WebhookSecret: env.WebhookSecret,
		SuccessURL:    "http://localhost/success",
		CancelURL:     "http://localhost/cancel",
		URL:           stSrv.URL,
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	env.Background = background.New(log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		env.Background.Shutdown(ctx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mux := api.APIMux(api.APIConfig{
		Log:        log,
		DB:         db,
		Session:    scs.New(),
		Background: env.Background,
		Events:     env.Events,
		Paypal:     pp,
		Stripe:     order.NewStripeClient(stripeCfg),
		StripeCfg:  stripeCfg,
		Checkout: config.Checkout{
			Currency:     "usd",
			FlatShipping: 500,
			FreeShipping: 10000,
		},
		Payout:          config.Payout{MinimumAmount: 1000},
		LoginLimiter:    rate.NewLimiter(ctx, 1000, time.Minute, rate.Every(time.Millisecond)),
		CheckoutLimiter: rate.NewLimiter(ctx, 1000, time.Minute, rate.Every(time.Millisecond)),
	})

	env.Server = httptest.NewServer(mux)
	t.Cleanup(env.Server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	env.Server.Client().Jar = jar

	return env, nil
}

func (env *TestEnv) seedUsers() error {
	ctx := context.Background()
	now := time.Now().UTC()

	accounts := []user.UserNew{
		{Name: "Admin", Email: env.AdminEmail, Password: env.AdminPass, Role: claims.RoleAdmin, AdminRole: claims.AdminSuper},
		{Name: "Clay Studio", Email: env.SellerEmail, Password: env.SellerPass, Role: claims.RoleStudio},
		{Name: "Buyer", Email: env.UserEmail, Password: env.UserPass, Role: claims.RoleBuyer},
	}

	for _, nu := range accounts {
		u, err := user.Build(nu, now)
		if err != nil {
			return fmt.Errorf("building %s: %w", nu.Email, err)
		}
		if err := user.Create(ctx, env.DB, u); err != nil {
			return fmt.Errorf("creating %s: %w", nu.Email, err)
		}

		if u.Role == claims.RoleStudio {
			kyc := user.KYC{Status: user.KYCApproved, DocumentURL: "https://docs.craft.test/id.pdf", ReviewedAt: &now}
			if err := user.UpdateKYC(ctx, env.DB, u.ID, kyc, now); err != nil {
				return fmt.Errorf("approving %s: %w", nu.Email, err)
			}
		}
	}
	return nil
}

func Login(s *httptest.Server, email, password string) error {
	b, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}

	w, err := s.Client().Post(s.URL+"/auth/login", "application/json", bytes.NewBuffer(b))
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		return fmt.Errorf("login as %s: status code %s", email, w.Status)
	}
	return nil
}

func Logout(s *httptest.Server) error {
	w, err := s.Client().Post(s.URL+"/auth/logout", "application/json", nil)
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent && w.StatusCode != http.StatusOK {
		return fmt.Errorf("logout: status code %s", w.Status)
	}
	return nil
}

// do sends body as JSON and decodes a JSON answer into out when out is not
// nil. It fails the test when the status differs from want.
func (env *TestEnv) do(t *testing.T, method, path string, body, out any, want int) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewBuffer(b)
	}

	r, err := http.NewRequest(method, env.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	w, err := env.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != want {
		msg, _ := io.ReadAll(w.Body)
		t.Fatalf("%s %s: status code %s, want %d: %s", method, path, w.Status, want, msg)
	}

	if out != nil {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", method, path, err)
		}
	}
}
