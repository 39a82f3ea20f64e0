package api

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/irsalhamdi/craft-market/api/background"
	"github.com/irsalhamdi/craft-market/api/middleware"
	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/config"
	"github.com/irsalhamdi/craft-market/core/auth"
	"github.com/irsalhamdi/craft-market/core/cart"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/core/course"
	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/irsalhamdi/craft-market/core/payout"
	"github.com/irsalhamdi/craft-market/core/product"
	"github.com/irsalhamdi/craft-market/core/promo"
	"github.com/irsalhamdi/craft-market/core/settings"
	"github.com/irsalhamdi/craft-market/core/shipping"
	"github.com/irsalhamdi/craft-market/core/tax"
	"github.com/irsalhamdi/craft-market/core/user"
	"github.com/irsalhamdi/craft-market/core/workshop"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/events"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/irsalhamdi/craft-market/rate"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

type APIConfig struct {
	CorsOrigin       string
	Log              logrus.FieldLogger
	DB               *sqlx.DB
	Session          *scs.SessionManager
	Background       *background.Background
	Events           events.Publisher
	Paypal           *paypal.Client
	Stripe           *stripecl.API
	StripeCfg        config.Stripe
	Checkout         config.Checkout
	Payout           config.Payout
	Providers        map[string]auth.Provider
	LoginRedirectURL string
	LoginLimiter     *rate.Limiter
	CheckoutLimiter  *rate.Limiter
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Metrics())
	a.mw = append(a.mw, middleware.Logger(cfg.Log, auth.SessionUser(cfg.Session)))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := auth.Authenticate(cfg.Session)
	admin := auth.Admin(cfg.Session)
	studio := auth.Studio(cfg.Session)
	can := func(p claims.Permission) web.Middleware {
		return auth.Permission(cfg.Session, p)
	}

	loginLimit := rate.Middleware(cfg.LoginLimiter, rate.RemoteAddr)
	checkoutLimit := rate.Middleware(cfg.CheckoutLimiter, userKey)

	a.Router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	a.Handle(http.MethodGet, "/health", handleHealth(cfg.DB))

	a.Handle(http.MethodPost, "/auth/signup", auth.HandleSignup(cfg.DB, cfg.Session), loginLimit)
	a.Handle(http.MethodPost, "/auth/login", auth.HandleLogin(cfg.DB, cfg.Session), loginLimit)
	a.Handle(http.MethodPost, "/auth/logout", auth.HandleLogout(cfg.Session))
	a.Handle(http.MethodGet, "/auth/oauth-login/{provider}", auth.HandleOauthLogin(cfg.Session, cfg.Providers), loginLimit)
	a.Handle(http.MethodGet, "/auth/oauth-callback/{provider}", auth.HandleOauthCallback(cfg.DB, cfg.Session, cfg.Providers, cfg.LoginRedirectURL))

	a.Handle(http.MethodGet, "/users/current", user.HandleShowCurrent(cfg.DB), authen)
	a.Handle(http.MethodPut, "/users/current/kyc", user.HandleSubmitKYC(cfg.DB), studio)
	a.Handle(http.MethodGet, "/users/{id}", user.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodPost, "/users", user.HandleCreate(cfg.DB), admin)
	a.Handle(http.MethodPut, "/users/{id}/kyc", user.HandleReviewKYC(cfg.DB), can(claims.PermReviewKYC))

	a.Handle(http.MethodGet, "/products/mine", product.HandleListMine(cfg.DB), studio)
	a.Handle(http.MethodGet, "/products/moderation", product.HandleListModeration(cfg.DB), can(claims.PermModerateProducts))
	a.Handle(http.MethodGet, "/products/{id}", product.HandleShow(cfg.DB))
	a.Handle(http.MethodGet, "/products", product.HandleList(cfg.DB))
	a.Handle(http.MethodPost, "/products", product.HandleCreate(cfg.DB), studio)
	a.Handle(http.MethodPost, "/products/{id}/submit", product.HandleSubmit(cfg.DB), studio)
	a.Handle(http.MethodPost, "/products/{id}/archive", product.HandleArchive(cfg.DB), studio)
	a.Handle(http.MethodPost, "/products/{id}/review", product.HandleReview(cfg.DB), can(claims.PermModerateProducts))

	a.Handle(http.MethodGet, "/courses/owned", course.HandleListOwned(cfg.DB), authen)
	a.Handle(http.MethodGet, "/courses/{id}", course.HandleShow(cfg.DB))
	a.Handle(http.MethodGet, "/courses", course.HandleList(cfg.DB))
	a.Handle(http.MethodPost, "/courses", course.HandleCreate(cfg.DB), studio)
	a.Handle(http.MethodPut, "/courses/{id}/curriculum", course.HandleUpdateCurriculum(cfg.DB), studio)
	a.Handle(http.MethodPost, "/courses/{id}/curriculum/move", course.HandleMoveLesson(cfg.DB), studio)

	a.Handle(http.MethodGet, "/workshops/{id}", workshop.HandleShow(cfg.DB))
	a.Handle(http.MethodGet, "/workshops", workshop.HandleList(cfg.DB))
	a.Handle(http.MethodPost, "/workshops", workshop.HandleCreate(cfg.DB), studio)

	a.Handle(http.MethodGet, "/cart", cart.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodDelete, "/cart", cart.HandleClear(cfg.DB), authen)
	a.Handle(http.MethodPost, "/cart/items", cart.HandlePutItem(cfg.DB), authen)
	a.Handle(http.MethodPut, "/cart/items/{id}", cart.HandleUpdateItem(cfg.DB), authen)
	a.Handle(http.MethodDelete, "/cart/items/{id}", cart.HandleDeleteItem(cfg.DB), authen)

	co := order.Checkout{
		Log:  cfg.Log,
		DB:   cfg.DB,
		Cart: cart.Source{DB: cfg.DB},
		Builder: order.Builder{
			Promo: promo.Store{DB: cfg.DB},
			Tax:   tax.Store{DB: cfg.DB},
			Shipping: shipping.Flat{
				Fee:       money.Amount(cfg.Checkout.FlatShipping),
				FreeAbove: money.Amount(cfg.Checkout.FreeShipping),
			},
			Currency: cfg.Checkout.Currency,
		},
		Sequence:   order.PGSequence{},
		Background: cfg.Background,
		Events:     cfg.Events,
	}

	a.Handle(http.MethodPost, "/orders/paypal", order.HandlePaypalCheckout(co, cfg.Paypal), authen, checkoutLimit)
	a.Handle(http.MethodPost, "/orders/paypal/{id}/capture", order.HandlePaypalCapture(co, cfg.Paypal), authen)
	a.Handle(http.MethodPost, "/orders/stripe", order.HandleStripeCheckout(co, cfg.Stripe, cfg.StripeCfg), authen, checkoutLimit)
	a.Handle(http.MethodPost, "/orders/stripe/webhook", order.HandleStripeWebhook(co, cfg.StripeCfg))

	a.Handle(http.MethodGet, "/orders/mine", order.HandleListMine(cfg.DB), authen)
	a.Handle(http.MethodGet, "/orders/{id}", order.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodGet, "/orders", order.HandleList(cfg.DB), can(claims.PermManageOrders))
	a.Handle(http.MethodPut, "/orders/{id}/fulfillment", order.HandleUpdateFulfillment(cfg.DB, cfg.Background, cfg.Events), can(claims.PermManageOrders))
	a.Handle(http.MethodPost, "/orders/{id}/refund", order.HandleRefund(cfg.DB, payout.Reverser{}, cfg.Background, cfg.Events), can(claims.PermRefundOrders))

	a.Handle(http.MethodGet, "/payouts/preview", payout.HandlePreview(cfg.DB), can(claims.PermManagePayouts))
	a.Handle(http.MethodGet, "/payouts", payout.HandleList(cfg.DB), can(claims.PermManagePayouts))
	a.Handle(http.MethodPost, "/payouts", payout.HandleIssue(cfg.Log, cfg.DB, money.Amount(cfg.Payout.MinimumAmount), cfg.Background, cfg.Events), can(claims.PermManagePayouts))
	a.Handle(http.MethodGet, "/payouts/{id}", payout.HandleShow(cfg.DB), can(claims.PermManagePayouts))
	a.Handle(http.MethodPost, "/payouts/{id}/confirm", payout.HandleConfirm(cfg.Log, cfg.DB, cfg.Background, cfg.Events), can(claims.PermManagePayouts))

	a.Handle(http.MethodGet, "/settings/commission", settings.HandleShowCommission(cfg.DB), admin)
	a.Handle(http.MethodGet, "/settings/commission/history", settings.HandleCommissionHistory(cfg.DB), admin)
	a.Handle(http.MethodPut, "/settings/commission", settings.HandleSaveCommission(cfg.Log, cfg.DB), can(claims.PermPaymentSettings))

	a.Handle(http.MethodGet, "/settings/tax-rates", tax.HandleList(cfg.DB), admin)
	a.Handle(http.MethodPut, "/settings/tax-rates", tax.HandlePut(cfg.DB), can(claims.PermPaymentSettings))

	a.Handle(http.MethodGet, "/promos", promo.HandleList(cfg.DB), can(claims.PermManagePromos))
	a.Handle(http.MethodPost, "/promos", promo.HandleCreate(cfg.DB), can(claims.PermManagePromos))
	a.Handle(http.MethodDelete, "/promos/{code}", promo.HandleDeactivate(cfg.DB), can(claims.PermManagePromos))

	return cfg.Session.LoadAndSave(a.Router)
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}

func handleHealth(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := database.StatusCheck(ctx, db); err != nil {
			return weberr.NewError(err, "database not ready", http.StatusServiceUnavailable)
		}
		return web.Respond(ctx, w, map[string]string{"status": "ok"}, http.StatusOK)
	}
}

// userKey limits per signed in buyer, falling back to the client address.
func userKey(ctx context.Context, r *http.Request) string {
	if clm, err := claims.Get(ctx); err == nil {
		return "user:" + clm.UserID
	}
	return rate.RemoteAddr(ctx, r)
}
