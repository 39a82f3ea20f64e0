package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/plutov/paypal/v4"
	mock "github.com/stripe/stripe-mock/param"
)

var providerSeq atomic.Int64

// expectation is what the next checkout sent to a provider must carry.
type expectation struct {
	mu    sync.Mutex
	lines int
	total money.Amount
}

func (e *expectation) expect(lines int, total money.Amount) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = lines
	e.total = total
}

func (e *expectation) matches(lines int, total money.Amount) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines == lines && e.total == total
}

type mockPaypal struct {
	expectation
}

func (m *mockPaypal) handle() http.Handler {
	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var pu struct {
			Units []paypal.PurchaseUnitRequest `json:"purchase_units"`
		}
		if err := json.NewDecoder(r.Body).Decode(&pu); err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		if len(pu.Units) != 1 || pu.Units[0].Amount == nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		tot, err := money.ParseAmount(pu.Units[0].Amount.Value)
		if err != nil || !m.matches(len(pu.Units[0].Items), tot) {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		id := fmt.Sprintf("paypal-%d", providerSeq.Add(1))
		ord := paypal.Order{
			ID:    id,
			Links: []paypal.Link{{Rel: "approve", Href: "https://paypal.test/approve/" + id}},
		}
		web.Respond(context.Background(), w, ord, 200)
	})

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ord := paypal.CaptureOrderResponse{ID: "capture-" + mux.Vars(r)["id"], Status: "COMPLETED"}
		web.Respond(context.Background(), w, ord, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v2/checkout/orders", checkout).Methods("POST")
	r.Handle("/v2/checkout/orders/{id}/capture", capture).Methods("POST")
	return r
}

type mockStripe struct {
	expectation
}

func (m *mockStripe) handle() http.Handler {
	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			web.Respond(context.Background(), w, err, 400)
			return
		}
		lines, ok := params["line_items"].(map[string]any)
		if !ok {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		var tot money.Amount
		for _, li := range lines {
			it := li.(map[string]any)

			qty, err := strconv.Atoi(it["quantity"].(string))
			if err != nil {
				web.Respond(context.Background(), w, err, 400)
				return
			}

			pd := it["price_data"].(map[string]any)
			amount, err := strconv.ParseInt(pd["unit_amount"].(string), 10, 64)
			if err != nil {
				web.Respond(context.Background(), w, err, 400)
				return
			}

			tot += money.Amount(amount).Mul(qty)
		}

		if !m.matches(len(lines), tot) {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		id := fmt.Sprintf("cs_test_%d", providerSeq.Add(1))
		sess := map[string]any{"id": id, "object": "checkout.session", "url": "https://stripe.test/pay/" + id}
		web.Respond(context.Background(), w, sess, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/checkout/sessions", checkout).Methods("POST")
	return r
}
