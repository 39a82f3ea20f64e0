// Package cart keeps each buyer's pending selections and prices them into
// order lines at checkout.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/core/course"
	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/irsalhamdi/craft-market/core/pricing"
	"github.com/irsalhamdi/craft-market/core/product"
	"github.com/irsalhamdi/craft-market/core/workshop"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/jmoiron/sqlx"
)

var (
	ErrAlreadyOwned   = errors.New("course already owned")
	ErrAlreadyInCart  = errors.New("course already in cart")
	ErrWorkshopPassed = errors.New("workshop already started")
	ErrNotEnoughSeats = errors.New("not enough seats left")
)

type Item struct {
	ID        string            `json:"id"`
	UserID    string            `json:"-"`
	ItemType  order.ItemType    `json:"itemType"`
	ItemID    string            `json:"itemId"`
	Selection pricing.Selection `json:"selection"`
	Quantity  int               `json:"quantity"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type ItemNew struct {
	ItemType  order.ItemType    `json:"itemType" validate:"required,oneof=product course workshop"`
	ItemID    string            `json:"itemId" validate:"required,uuid4"`
	Selection pricing.Selection `json:"selection"`
	Quantity  int               `json:"quantity" validate:"gte=0,lte=100"`
}

type ItemUp struct {
	Quantity int `json:"quantity" validate:"gte=1,lte=100"`
}

// normalize applies the per type quantity rules: courses are bought once,
// everything else defaults to one unit.
func (n ItemNew) normalize() ItemNew {
	if n.ItemType == order.ItemCourse || n.Quantity == 0 {
		n.Quantity = 1
	}
	if n.ItemType != order.ItemProduct {
		n.Selection = pricing.Selection{}
	}
	return n
}

// Price resolves an item against the catalog into an order line. Any reason
// the item cannot be bought as selected wraps order.ErrLineUnavailable.
func Price(ctx context.Context, db sqlx.QueryerContext, it Item) (order.Line, error) {
	l, err := price(ctx, db, it)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) ||
			errors.Is(err, product.ErrNotPurchasable) ||
			errors.Is(err, product.ErrOutOfStock) ||
			errors.Is(err, pricing.ErrAddOnUnavailable) ||
			errors.Is(err, pricing.ErrVariantUnavailable) ||
			errors.Is(err, pricing.ErrMissingCustomization) ||
			errors.Is(err, pricing.ErrInvalidChoice) ||
			errors.Is(err, pricing.ErrNegativePrice) ||
			errors.Is(err, ErrAlreadyOwned) ||
			errors.Is(err, ErrWorkshopPassed) ||
			errors.Is(err, ErrNotEnoughSeats) {
			return order.Line{}, fmt.Errorf("%w: %s[%s]: %v", order.ErrLineUnavailable, it.ItemType, it.ItemID, err)
		}
		return order.Line{}, err
	}
	return l, nil
}

func price(ctx context.Context, db sqlx.QueryerContext, it Item) (order.Line, error) {
	switch it.ItemType {
	case order.ItemProduct:
		p, err := product.Fetch(ctx, db, it.ItemID)
		if err != nil {
			return order.Line{}, err
		}
		unit, choices, err := p.Quote(it.Selection, it.Quantity)
		if err != nil {
			return order.Line{}, err
		}
		return order.Line{
			ItemType:   it.ItemType,
			ItemID:     p.ID,
			VariantID:  it.Selection.VariantID,
			Choices:    choices,
			Title:      p.Name,
			SellerID:   p.SellerID,
			SellerName: p.SellerName,
			UnitPrice:  unit,
			Quantity:   it.Quantity,
		}, nil

	case order.ItemCourse:
		c, err := course.Fetch(ctx, db, it.ItemID)
		if err != nil {
			return order.Line{}, err
		}
		owned, err := course.Owns(ctx, db, it.UserID, c.ID)
		if err != nil {
			return order.Line{}, err
		}
		if owned {
			return order.Line{}, ErrAlreadyOwned
		}
		return order.Line{
			ItemType:   it.ItemType,
			ItemID:     c.ID,
			Title:      c.Name,
			SellerID:   c.InstructorID,
			SellerName: c.InstructorName,
			UnitPrice:  c.Price,
			Quantity:   1,
		}, nil

	case order.ItemWorkshop:
		w, err := workshop.Fetch(ctx, db, it.ItemID)
		if err != nil {
			return order.Line{}, err
		}
		if !w.StartsAt.After(time.Now()) {
			return order.Line{}, ErrWorkshopPassed
		}
		if w.SeatsLeft() < it.Quantity {
			return order.Line{}, ErrNotEnoughSeats
		}
		return order.Line{
			ItemType:   it.ItemType,
			ItemID:     w.ID,
			Title:      w.Name,
			SellerID:   w.HostID,
			SellerName: w.HostName,
			UnitPrice:  w.Price,
			Quantity:   it.Quantity,
		}, nil
	}

	return order.Line{}, fmt.Errorf("unknown item type %q", it.ItemType)
}

// Source prices carts for checkout.
type Source struct {
	DB *sqlx.DB
}

func (s Source) Lines(ctx context.Context, userID string) ([]order.Line, error) {
	items, err := FetchItems(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	lines := make([]order.Line, 0, len(items))
	for _, it := range items {
		l, err := Price(ctx, s.DB, it)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}
