// Package payout splits paid order lines into platform commission,
// processing fee and seller net, and settles seller nets in batches.
//
// Every line is split with the commission rates pinned on its order when it
// was paid, never with the configuration in effect at payout time. A line
// moves pending -> included when a batch is issued and included -> paid when
// the transfer is confirmed. Refunding an included line takes it out of its
// batch; refunding a paid line is refused.
package payout

import (
	"errors"
	"sort"

	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/irsalhamdi/craft-market/money"
)

var (
	// ErrLineAlreadyPaid is returned when a refund reaches a line whose net
	// was already transferred to the seller.
	ErrLineAlreadyPaid = order.ErrLineAlreadyPaid

	ErrBatchNotIssued = errors.New("payout batch is not awaiting transfer")
)

// Rates are the percentages taken from a line before the seller is paid.
type Rates struct {
	Platform   money.Rate `json:"platform"`
	Processing money.Rate `json:"processing"`
}

// RatesOf returns the rates pinned on an order when it was paid.
func RatesOf(o order.Order) Rates {
	return Rates{Platform: o.PlatformCommission, Processing: o.ProcessingFee}
}

// Share is the split of one line's gross. Platform, Processing and SellerNet
// always add up to Gross.
type Share struct {
	Gross      money.Amount `json:"gross"`
	Platform   money.Amount `json:"platform"`
	Processing money.Amount `json:"processing"`
	SellerNet  money.Amount `json:"sellerNet"`
}

func (s *Share) add(o Share) {
	s.Gross += o.Gross
	s.Platform += o.Platform
	s.Processing += o.Processing
	s.SellerNet += o.SellerNet
}

// Split divides gross. Each rate is rounded on its own and the seller
// receives the remainder.
func Split(gross money.Amount, r Rates) Share {
	platform := r.Platform.Of(gross)
	processing := r.Processing.Of(gross)

	return Share{
		Gross:      gross,
		Platform:   platform,
		Processing: processing,
		SellerNet:  gross - platform - processing,
	}
}

// LineRef points at one order line inside a seller payout.
type LineRef struct {
	OrderID  string             `json:"orderId"`
	Number   string             `json:"number"`
	Position int                `json:"position"`
	Title    string             `json:"title"`
	Share    Share              `json:"share"`
	BatchID  string             `json:"batchId,omitempty"`
	Status   order.PayoutStatus `json:"status"`
}

// SellerPayout is what one seller is owed across orders.
type SellerPayout struct {
	SellerID   string `json:"sellerId"`
	SellerName string `json:"sellerName"`
	Share
	Lines []LineRef `json:"lines"`
}

// Eligible reports whether an order's pending lines can be paid out.
// Partially refunded orders keep their remaining lines payable, cancelled
// or refunded ones never do.
func Eligible(o order.Order) bool {
	return o.Settleable()
}

// ComputePayout groups the pending lines of paid orders by seller. Sellers
// are returned by id and lines in order of appearance.
func ComputePayout(orders []order.Order) []SellerPayout {
	bySeller := make(map[string]*SellerPayout)

	for _, o := range orders {
		if !Eligible(o) {
			continue
		}
		rates := RatesOf(o)

		for _, it := range o.Items {
			if it.PayoutStatus != order.PayoutPending {
				continue
			}

			sp, ok := bySeller[it.SellerID]
			if !ok {
				sp = &SellerPayout{SellerID: it.SellerID, SellerName: it.SellerName, Lines: []LineRef{}}
				bySeller[it.SellerID] = sp
			}

			sh := Split(it.Gross(), rates)
			sp.add(sh)
			sp.Lines = append(sp.Lines, LineRef{
				OrderID:  o.ID,
				Number:   o.Number,
				Position: it.Position,
				Title:    it.Title,
				Share:    sh,
				Status:   it.PayoutStatus,
			})
		}
	}

	out := make([]SellerPayout, 0, len(bySeller))
	for _, sp := range bySeller {
		out = append(out, *sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SellerID < out[j].SellerID })
	return out
}
