// Package order turns checked out cart lines into orders, numbers them and
// drives their payment and fulfillment state machines.
package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/core/pricing"
	"github.com/irsalhamdi/craft-market/money"
)

var (
	ErrEmptyOrder       = errors.New("order has no items")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrDuplicatePayment = errors.New("payment notification already applied")
	ErrNotRefundable    = errors.New("order is not in a refundable state")
	ErrAlreadyRefunded  = errors.New("line already refunded")
	ErrNoSuchLine       = errors.New("order has no such line")
	ErrLineAlreadyPaid  = errors.New("line was already paid out to the seller")
	ErrLineUnavailable  = errors.New("cart line can no longer be bought")
	ErrInvalidPromo     = errors.New("promo code is not valid")
	ErrCancelPaid       = errors.New("a paid order is cancelled by refunding it")
)

type ItemType string

const (
	ItemProduct  ItemType = "product"
	ItemCourse   ItemType = "course"
	ItemWorkshop ItemType = "workshop"
)

// Physical reports whether the item has to be shipped.
func (t ItemType) Physical() bool {
	return t == ItemProduct
}

// PayoutStatus tracks a line through seller settlement.
type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutIncluded PayoutStatus = "included"
	PayoutPaid     PayoutStatus = "paid"
	PayoutRefunded PayoutStatus = "refunded"
)

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country" validate:"omitempty,iso3166_1_alpha2"`
}

// Line is a priced cart line ready to become an order item. Seller fields
// are copied so later profile edits do not change past orders.
type Line struct {
	ItemType   ItemType        `json:"itemType"`
	ItemID     string          `json:"itemId"`
	VariantID  string          `json:"variantId,omitempty"`
	Choices    pricing.Choices `json:"choices"`
	Title      string          `json:"title"`
	SellerID   string          `json:"sellerId"`
	SellerName string          `json:"sellerName"`
	UnitPrice  money.Amount    `json:"unitPrice"`
	Quantity   int             `json:"quantity"`
}

func (l Line) Gross() money.Amount {
	return l.UnitPrice.Mul(l.Quantity)
}

type Item struct {
	Line
	Position      int          `json:"position"`
	PayoutStatus  PayoutStatus `json:"payoutStatus"`
	PayoutBatchID string       `json:"payoutBatchId,omitempty"`
	SellerNet     money.Amount `json:"sellerNet"`
}

type Order struct {
	ID                 string          `json:"id"`
	Number             string          `json:"number"`
	BuyerID            string          `json:"buyerId"`
	Currency           string          `json:"currency"`
	Items              []Item          `json:"items"`
	Subtotal           money.Amount    `json:"subtotal"`
	Shipping           money.Amount    `json:"shipping"`
	Discount           money.Amount    `json:"discount"`
	Tax                money.Amount    `json:"tax"`
	Total              money.Amount    `json:"total"`
	PromoCode          string          `json:"promoCode,omitempty"`
	ShippingAddress    Address         `json:"shippingAddress"`
	PaymentStatus      PaymentStatus   `json:"paymentStatus"`
	Status             Status          `json:"status"`
	Provider           string          `json:"provider,omitempty"`
	ProviderID         string          `json:"providerId,omitempty"`
	CommissionVersion  int             `json:"commissionVersion,omitempty"`
	PlatformCommission money.Rate      `json:"platformCommission"`
	ProcessingFee      money.Rate      `json:"processingFee"`
	TrackingHistory    []TrackingEvent `json:"trackingHistory"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// BuildOrder prices lines into a pending order. The discount is clamped to
// the subtotal so the total never goes below shipping plus tax.
func BuildOrder(lines []Line, discount, shipping, tax money.Amount) (Order, error) {
	if len(lines) == 0 {
		return Order{}, ErrEmptyOrder
	}

	items := make([]Item, len(lines))
	var subtotal money.Amount
	for i, l := range lines {
		if l.Quantity <= 0 {
			return Order{}, fmt.Errorf("line %d (%s): %w", i, l.Title, ErrInvalidQuantity)
		}
		subtotal += l.Gross()
		items[i] = Item{Line: l, Position: i, PayoutStatus: PayoutPending}
	}

	if discount < 0 {
		discount = 0
	}
	discount = money.Min(discount, subtotal)

	return Order{
		Items:         items,
		Subtotal:      subtotal,
		Shipping:      shipping,
		Discount:      discount,
		Tax:           tax,
		Total:         subtotal - discount + shipping + tax,
		PaymentStatus: PaymentPending,
		Status:        Pending,
	}, nil
}

// Lines returns the order items as plain lines.
func (o Order) Lines() []Line {
	ls := make([]Line, len(o.Items))
	for i, it := range o.Items {
		ls[i] = it.Line
	}
	return ls
}

func (o Order) clone() Order {
	o.Items = append([]Item(nil), o.Items...)
	o.TrackingHistory = append([]TrackingEvent(nil), o.TrackingHistory...)
	return o
}
