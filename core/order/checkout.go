package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/irsalhamdi/craft-market/api/background"
	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/irsalhamdi/craft-market/config"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/core/fsm"
	"github.com/irsalhamdi/craft-market/core/workshop"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/irsalhamdi/craft-market/events"
	"github.com/irsalhamdi/craft-market/metrics"
	"github.com/irsalhamdi/craft-market/validate"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

const (
	ProviderStripe = "stripe"
	ProviderPaypal = "paypal"
)

var ErrAddressRequired = errors.New("a shipping address is required for physical items")

// CartSource turns a buyer's cart into priced lines.
type CartSource interface {
	Lines(ctx context.Context, userID string) ([]Line, error)
}

// Checkout groups what every checkout handler needs.
type Checkout struct {
	Log        logrus.FieldLogger
	DB         *sqlx.DB
	Cart       CartSource
	Builder    Builder
	Sequence   Sequence
	Background *background.Background
	Events     events.Publisher
}

type CheckoutNew struct {
	PromoCode       string  `json:"promoCode"`
	ShippingAddress Address `json:"shippingAddress"`
}

// place builds and stores an order from the buyer's cart.
func (c Checkout) place(ctx context.Context, w http.ResponseWriter, r *http.Request) (Order, error) {
	clm, err := claims.Get(ctx)
	if err != nil {
		return Order{}, weberr.NotAuthorized(errors.New("user not authenticated"))
	}

	var cn CheckoutNew
	if r.ContentLength != 0 {
		if err := web.Decode(w, r, &cn); err != nil {
			return Order{}, weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
	}
	if err := validate.Check(cn.ShippingAddress); err != nil {
		return Order{}, weberr.InvalidInput(err)
	}

	lines, err := c.Cart.Lines(ctx, clm.UserID)
	if err != nil {
		if errors.Is(err, ErrLineUnavailable) {
			return Order{}, weberr.Unprocessable(err)
		}
		return Order{}, fmt.Errorf("pricing cart of user[%s]: %w", clm.UserID, err)
	}

	for _, l := range lines {
		if l.ItemType.Physical() && cn.ShippingAddress.Line1 == "" {
			return Order{}, weberr.InvalidInput(ErrAddressRequired)
		}
	}

	o, err := c.Builder.Build(ctx, clm.UserID, validate.NormalizeCode(cn.PromoCode), cn.ShippingAddress, lines)
	if err != nil {
		if errors.Is(err, ErrEmptyOrder) {
			return Order{}, weberr.Unprocessable(errors.New("no items to checkout"))
		}
		if errors.Is(err, ErrInvalidPromo) {
			return Order{}, weberr.InvalidInput(err)
		}
		return Order{}, err
	}

	now := time.Now().UTC()
	o.ID = validate.GenerateID()
	o.CreatedAt = now
	o.UpdatedAt = now

	o, err = Create(ctx, c.DB, c.Sequence, o)
	metrics.RecordOrderOperation("create", err == nil)
	if err != nil {
		if errors.Is(err, workshop.ErrCapacityExceeded) {
			return Order{}, weberr.Conflict(err)
		}
		return Order{}, err
	}

	c.Log.WithFields(logrus.Fields{
		"order": o.Number,
		"buyer": o.BuyerID,
		"total": o.Total.String(),
		"items": len(o.Items),
	}).Info("order placed")

	return o, nil
}

// bind attaches the provider checkout to the order. When no checkout could
// be opened the order is cancelled so its seats go back on sale.
func (c Checkout) bind(ctx context.Context, o *Order, provider, providerID string, openErr error) error {
	if openErr == nil {
		openErr = AttachProvider(ctx, c.DB, o.ID, provider, providerID)
	}
	if openErr != nil {
		if _, err := UpdateFulfillment(ctx, c.DB, o.ID, Cancelled, provider+" checkout could not be opened", time.Now().UTC()); err != nil {
			c.Log.WithError(err).WithField("order", o.Number).Error("cancelling order without checkout")
		}
		return fmt.Errorf("opening %s checkout for order[%s]: %w", provider, o.ID, openErr)
	}

	o.Provider = provider
	o.ProviderID = providerID
	publish(c.Background, c.Events, events.OrderCreated, *o)
	return nil
}

// NewStripeClient builds a client for the configured key. A non empty URL
// points the API backend elsewhere, e.g. at stripe-mock.
func NewStripeClient(cfg config.Stripe) *stripecl.API {
	var backends *stripe.Backends
	if cfg.URL != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL: stripe.String(cfg.URL),
			}),
		}
	}

	strp := &stripecl.API{}
	strp.Init(cfg.APISecret, backends)
	return strp
}

type checkoutResp struct {
	Order       Order  `json:"order"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	ProviderID  string `json:"providerId"`
}

func HandleStripeCheckout(c Checkout, strp *stripecl.API, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		o, err := c.place(ctx, w, r)
		if err != nil {
			return err
		}

		params := &stripe.CheckoutSessionParams{
			SuccessURL:        stripe.String(cfg.SuccessURL),
			CancelURL:         stripe.String(cfg.CancelURL),
			Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
			ClientReferenceID: stripe.String(o.ID),
			LineItems:         stripeLines(o),
		}

		s, err := strp.CheckoutSessions.New(params)
		var sid string
		if err == nil {
			sid = s.ID
		}
		if err := c.bind(ctx, &o, ProviderStripe, sid, err); err != nil {
			return err
		}

		return web.Respond(ctx, w, checkoutResp{Order: o, RedirectURL: s.URL, ProviderID: s.ID}, http.StatusCreated)
	}
}

// stripeLines lists every item with shipping and tax as extra lines. A
// discounted order is sent as a single line for its total, since checkout
// lines cannot be negative.
func stripeLines(o Order) []*stripe.CheckoutSessionLineItemParams {
	line := func(name string, amount int64, qty int) *stripe.CheckoutSessionLineItemParams {
		return &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(qty)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(o.Currency),
				UnitAmount: stripe.Int64(amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		}
	}

	if o.Discount > 0 {
		return []*stripe.CheckoutSessionLineItemParams{line("Order "+o.Number, int64(o.Total), 1)}
	}

	li := make([]*stripe.CheckoutSessionLineItemParams, 0, len(o.Items)+2)
	for _, it := range o.Items {
		li = append(li, line(it.Title, int64(it.UnitPrice), it.Quantity))
	}
	if o.Shipping > 0 {
		li = append(li, line("Shipping", int64(o.Shipping), 1))
	}
	if o.Tax > 0 {
		li = append(li, line("Tax", int64(o.Tax), 1))
	}
	return li
}

// HandleStripeWebhook applies signed checkout session events. Repeated
// deliveries are acknowledged without effect.
func HandleStripeWebhook(c Checkout, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, cfg.WebhookSecret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		var session stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &session); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
		}

		var to PaymentStatus
		switch event.Type {
		case "checkout.session.completed":
			if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
				return web.Respond(ctx, w, nil, http.StatusNoContent)
			}
			to = PaymentPaid
		case "checkout.session.async_payment_succeeded":
			to = PaymentPaid
		case "checkout.session.async_payment_failed", "checkout.session.expired":
			to = PaymentFailed
		default:
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		var paymentID string
		if session.PaymentIntent != nil {
			paymentID = session.PaymentIntent.ID
		}

		if err := c.apply(ctx, ProviderStripe, session.ID, paymentID, to); err != nil {
			return err
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// apply records a payment notification and publishes its outcome.
func (c Checkout) apply(ctx context.Context, provider, providerID, paymentID string, to PaymentStatus) error {
	log := c.Log.WithFields(logrus.Fields{"provider": provider, "provider_id": providerID, "status": to})

	o, err := ApplyPayment(ctx, c.DB, providerID, paymentID, to, time.Now().UTC())
	switch {
	case errors.Is(err, ErrDuplicatePayment):
		metrics.RecordDuplicateWebhook(provider)
		log.Info("payment notification already applied")
		return nil
	case errors.Is(err, fsm.ErrInvalidTransition):
		log.WithError(err).Warn("payment notification ignored")
		return nil
	case errors.Is(err, database.ErrNotFound):
		return weberr.NotFound(fmt.Errorf("no order bound to %s payment[%s]", provider, providerID))
	case err != nil:
		metrics.RecordOrderOperation("payment", false)
		return fmt.Errorf("applying %s payment[%s]: %w", provider, providerID, err)
	}

	metrics.RecordOrderOperation("payment", true)
	log = log.WithField("order", o.Number)

	typ := events.OrderPaid
	switch {
	case to == PaymentFailed:
		typ = events.OrderFailed
	case o.PaymentStatus != PaymentPaid:
		typ = events.OrderRefunded
		log.WithFields(logrus.Fields{
			"payment_status": o.PaymentStatus,
			"fulfillment":    o.Status,
		}).Warn("payment captured for lines that cannot be delivered, refund due")
	}

	log.Info("payment applied")
	publish(c.Background, c.Events, typ, o)
	return nil
}

func HandlePaypalCheckout(c Checkout, pp *paypal.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		o, err := c.place(ctx, w, r)
		if err != nil {
			return err
		}

		ppo, err := pp.CreateOrder(ctx, "CAPTURE", paypalUnits(o), nil, &paypal.ApplicationContext{})
		var pid string
		if err == nil {
			pid = ppo.ID
		}
		if err := c.bind(ctx, &o, ProviderPaypal, pid, err); err != nil {
			return err
		}

		var approve string
		for _, l := range ppo.Links {
			if l.Rel == "approve" {
				approve = l.Href
			}
		}

		return web.Respond(ctx, w, checkoutResp{Order: o, RedirectURL: approve, ProviderID: ppo.ID}, http.StatusCreated)
	}
}

func paypalUnits(o Order) []paypal.PurchaseUnitRequest {
	cur := strings.ToUpper(o.Currency)
	m := func(a fmt.Stringer) *paypal.Money {
		return &paypal.Money{Currency: cur, Value: a.String()}
	}

	items := make([]paypal.Item, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, paypal.Item{
			Quantity:   strconv.Itoa(it.Quantity),
			Name:       it.Title,
			UnitAmount: m(it.UnitPrice),
		})
	}

	return []paypal.PurchaseUnitRequest{{
		ReferenceID: o.ID,
		InvoiceID:   o.Number,
		Items:       items,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: cur,
			Value:    o.Total.String(),
			Breakdown: &paypal.PurchaseUnitAmountBreakdown{
				ItemTotal: m(o.Subtotal),
				Shipping:  m(o.Shipping),
				TaxTotal:  m(o.Tax),
				Discount:  m(o.Discount),
			},
		},
	}}
}

// HandlePaypalCapture captures an approved PayPal order of the current
// buyer and applies the result.
func HandlePaypalCapture(c Checkout, pp *paypal.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		providerID := web.Param(r, "id")

		o, err := FetchByProvider(ctx, c.DB, providerID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching the order bound to payment[%s]: %w", providerID, err)
		}
		if !claims.IsUser(ctx, o.BuyerID) {
			return weberr.NotFound(fmt.Errorf("payment[%s] belongs to another buyer", providerID))
		}

		resp, err := pp.CaptureOrder(ctx, providerID, paypal.CaptureOrderRequest{})
		if err != nil {
			return fmt.Errorf("capturing paypal order[%s]: %w", providerID, err)
		}

		to := PaymentPaid
		if resp.Status != "COMPLETED" {
			c.Log.WithFields(logrus.Fields{"provider_id": providerID, "paypal_status": resp.Status}).Warn("paypal capture not completed")
			to = PaymentFailed
		}

		if err := c.apply(ctx, ProviderPaypal, providerID, resp.ID, to); err != nil {
			return err
		}

		o, err = Fetch(ctx, c.DB, o.ID)
		if err != nil {
			return fmt.Errorf("reloading order[%s]: %w", o.ID, err)
		}
		return web.Respond(ctx, w, o, http.StatusOK)
	}
}
