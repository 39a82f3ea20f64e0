package order

import (
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/core/fsm"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentRefunded          PaymentStatus = "refunded"
)

// Status is the fulfillment status of an order.
type Status string

const (
	Pending    Status = "pending"
	Confirmed  Status = "confirmed"
	Processing Status = "processing"
	Shipped    Status = "shipped"
	Delivered  Status = "delivered"
	Cancelled  Status = "cancelled"
	Refunded   Status = "refunded"
)

var paymentFlow = fsm.Table[PaymentStatus]{
	PaymentPending:           {PaymentPaid, PaymentFailed},
	PaymentFailed:            {PaymentPending, PaymentPaid},
	PaymentPaid:              {PaymentPartiallyRefunded, PaymentRefunded},
	PaymentPartiallyRefunded: {PaymentPartiallyRefunded, PaymentRefunded},
}

var fulfillmentFlow = fsm.Table[Status]{
	Pending:    {Confirmed, Cancelled},
	Confirmed:  {Processing, Shipped, Cancelled, Refunded},
	Processing: {Shipped, Cancelled, Refunded},
	Shipped:    {Delivered, Refunded},
	Delivered:  {Refunded},
	Cancelled:  {Refunded},
}

const (
	KindPayment     = "payment"
	KindFulfillment = "fulfillment"
)

// TrackingEvent is one entry of the append only order history.
type TrackingEvent struct {
	Kind    string    `json:"kind"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func (o *Order) track(kind, status, msg string, at time.Time) {
	o.TrackingHistory = append(o.TrackingHistory, TrackingEvent{
		Kind:    kind,
		Status:  status,
		Message: msg,
		At:      at,
	})
	o.UpdatedAt = at
}

// SetPayment moves the payment status. Becoming paid confirms a pending
// fulfillment and a full refund refunds the fulfillment. Money captured for
// an order that was cancelled meanwhile is owed back to the buyer, so every
// line is refunded at once.
func (o *Order) SetPayment(to PaymentStatus, msg string, at time.Time) error {
	if err := paymentFlow.Check(o.PaymentStatus, to); err != nil {
		return fmt.Errorf("order[%s] payment: %w", o.ID, err)
	}

	o.PaymentStatus = to
	o.track(KindPayment, string(to), msg, at)

	switch to {
	case PaymentPaid:
		switch o.Status {
		case Pending:
			return o.SetFulfillment(Confirmed, "payment received", at)
		case Cancelled:
			return o.RefundLines(nil, "paid after cancellation, refund due", at)
		}
	case PaymentRefunded:
		if fulfillmentFlow.Can(o.Status, Refunded) {
			return o.SetFulfillment(Refunded, "order refunded", at)
		}
	}
	return nil
}

// SetFulfillment moves the fulfillment status. An order holding captured
// money cannot simply be cancelled: it has to be refunded.
func (o *Order) SetFulfillment(to Status, msg string, at time.Time) error {
	if err := fulfillmentFlow.Check(o.Status, to); err != nil {
		return fmt.Errorf("order[%s] fulfillment: %w", o.ID, err)
	}
	if to == Cancelled && o.Refundable() {
		return fmt.Errorf("order[%s] payment is %s: %w", o.ID, o.PaymentStatus, ErrCancelPaid)
	}

	o.Status = to
	o.track(KindFulfillment, string(to), msg, at)
	return nil
}

// RefundLines marks the lines at positions refunded, every remaining line
// when positions is empty, and moves the payment to refunded or partially
// refunded. Settlement of the lines is the caller's concern.
func (o *Order) RefundLines(positions []int, msg string, at time.Time) error {
	if len(positions) == 0 {
		positions = o.unrefunded()
	}

	for _, p := range positions {
		i := indexOf(o.Items, p)
		if i < 0 {
			return fmt.Errorf("order[%s] line %d: %w", o.ID, p, ErrNoSuchLine)
		}
		if o.Items[i].PayoutStatus == PayoutRefunded {
			return fmt.Errorf("order[%s] line %d: %w", o.ID, p, ErrAlreadyRefunded)
		}
		o.Items[i].PayoutStatus = PayoutRefunded
	}

	to := PaymentRefunded
	for _, it := range o.Items {
		if it.PayoutStatus != PayoutRefunded {
			to = PaymentPartiallyRefunded
			break
		}
	}
	return o.SetPayment(to, msg, at)
}

func (o Order) unrefunded() []int {
	var ps []int
	for _, it := range o.Items {
		if it.PayoutStatus != PayoutRefunded {
			ps = append(ps, it.Position)
		}
	}
	return ps
}

// Settleable reports whether the pending lines of the order may be paid out
// to sellers.
func (o Order) Settleable() bool {
	return o.Refundable() && o.Status != Cancelled && o.Status != Refunded
}

// Refundable reports whether lines of the order can still be refunded.
func (o Order) Refundable() bool {
	return o.PaymentStatus == PaymentPaid || o.PaymentStatus == PaymentPartiallyRefunded
}

// holdsSeats reports whether the order keeps its workshop seats.
func (o Order) holdsSeats() bool {
	return o.PaymentStatus != PaymentFailed && o.Status != Cancelled && o.Status != Refunded
}

// Seats returns the workshop seats the order currently holds, by workshop.
func (o Order) Seats() map[string]int {
	seats := make(map[string]int)
	if !o.holdsSeats() {
		return seats
	}
	for _, it := range o.Items {
		if it.ItemType == ItemWorkshop && it.PayoutStatus != PayoutRefunded {
			seats[it.ItemID] += it.Quantity
		}
	}
	return seats
}

// SeatChanges returns, per workshop, the seats to reserve (positive) or
// release (negative) to go from before to after.
func SeatChanges(before, after Order) map[string]int {
	b, a := before.Seats(), after.Seats()

	delta := make(map[string]int)
	for id, n := range a {
		if d := n - b[id]; d != 0 {
			delta[id] = d
		}
	}
	for id, n := range b {
		if _, ok := a[id]; !ok {
			delta[id] = -n
		}
	}
	return delta
}
