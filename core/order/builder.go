package order

import (
	"context"
	"fmt"

	"github.com/irsalhamdi/craft-market/money"
)

// PromoValidator prices a promotion code against the lines being bought.
type PromoValidator interface {
	Validate(ctx context.Context, code string, lines []Line) (money.Amount, error)
}

// TaxResolver returns the tax owed on a discounted subtotal shipped to addr.
type TaxResolver interface {
	Resolve(ctx context.Context, addr Address, taxable money.Amount) (money.Amount, error)
}

type ShippingPolicy interface {
	Quote(lines []Line, subtotal money.Amount) money.Amount
}

// Builder prices an order with its collaborators.
type Builder struct {
	Promo    PromoValidator
	Tax      TaxResolver
	Shipping ShippingPolicy
	Currency string
}

func (b Builder) Build(ctx context.Context, buyerID, promoCode string, addr Address, lines []Line) (Order, error) {
	if len(lines) == 0 {
		return Order{}, ErrEmptyOrder
	}

	var subtotal money.Amount
	for _, l := range lines {
		subtotal += l.Gross()
	}

	var discount money.Amount
	if promoCode != "" {
		d, err := b.Promo.Validate(ctx, promoCode, lines)
		if err != nil {
			return Order{}, fmt.Errorf("promo %s: %w", promoCode, err)
		}
		discount = money.Min(d, subtotal)
	}

	shipping := b.Shipping.Quote(lines, subtotal)

	tax, err := b.Tax.Resolve(ctx, addr, subtotal-discount)
	if err != nil {
		return Order{}, fmt.Errorf("resolving tax: %w", err)
	}

	o, err := BuildOrder(lines, discount, shipping, tax)
	if err != nil {
		return Order{}, err
	}

	o.BuyerID = buyerID
	o.PromoCode = promoCode
	o.ShippingAddress = addr
	o.Currency = b.Currency
	return o, nil
}
