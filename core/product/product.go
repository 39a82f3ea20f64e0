package product

import (
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/craft-market/core/fsm"
	"github.com/irsalhamdi/craft-market/core/pricing"
	"github.com/irsalhamdi/craft-market/money"
)

var (
	ErrNotPurchasable = errors.New("product is not on sale")
	ErrOutOfStock     = errors.New("not enough stock")
	ErrReasonRequired = errors.New("a rejection needs a reason")
)

type Status string

const (
	Draft    Status = "draft"
	Pending  Status = "pending"
	Active   Status = "active"
	Rejected Status = "rejected"
	Sold     Status = "sold"
	Archived Status = "archived"
)

var transitions = fsm.Table[Status]{
	Draft:    {Pending, Archived},
	Pending:  {Active, Rejected},
	Rejected: {Pending, Archived},
	Active:   {Sold, Archived},
	Sold:     {Archived, Active},
}

type Product struct {
	ID              string                  `json:"id"`
	SellerID        string                  `json:"sellerId"`
	SellerName      string                  `json:"sellerName"`
	Name            string                  `json:"name"`
	Description     string                  `json:"description"`
	ImageURL        string                  `json:"imageUrl"`
	Price           money.Amount            `json:"price"`
	Quantity        int                     `json:"quantity"`
	HasVariants     bool                    `json:"hasVariants"`
	Variants        []pricing.Variant       `json:"variants"`
	Customizations  []pricing.Customization `json:"customizations"`
	AddOns          []pricing.AddOn         `json:"addOns"`
	Status          Status                  `json:"status"`
	RejectionReason string                  `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
	Version         int                     `json:"-"`
}

// Available is the sellable quantity. With variants the global quantity is
// ignored and the best stocked variant decides.
func (p Product) Available() int {
	if !p.HasVariants {
		return p.Quantity
	}

	max := 0
	for _, v := range p.Variants {
		if v.Stock > max {
			max = v.Stock
		}
	}
	return max
}

// Transition moves the product through its moderation lifecycle. Only a
// rejection keeps a reason.
func (p *Product) Transition(to Status, reason string) error {
	if err := transitions.Check(p.Status, to); err != nil {
		return err
	}
	if to == Rejected && reason == "" {
		return ErrReasonRequired
	}

	p.Status = to
	p.RejectionReason = ""
	if to == Rejected {
		p.RejectionReason = reason
	}
	return nil
}

// Quote prices qty units of the product for a buyer selection and checks
// that they can be sold. The resolved choices are returned with the price.
func (p Product) Quote(sel pricing.Selection, qty int) (money.Amount, pricing.Choices, error) {
	var none pricing.Choices
	if p.Status != Active {
		return 0, none, fmt.Errorf("product[%s]: %w", p.ID, ErrNotPurchasable)
	}

	var variant *pricing.Variant
	if p.HasVariants {
		v, err := pricing.FindVariant(p.Variants, sel.VariantID)
		if err != nil {
			return 0, none, err
		}
		if v == nil {
			return 0, none, fmt.Errorf("product[%s] needs a variant: %w", p.ID, pricing.ErrVariantUnavailable)
		}
		if v.Stock < qty {
			return 0, none, fmt.Errorf("variant[%s]: %w", v.ID, ErrOutOfStock)
		}
		variant = v
	} else if p.Quantity < qty {
		return 0, none, fmt.Errorf("product[%s]: %w", p.ID, ErrOutOfStock)
	}

	choices, err := pricing.ResolveCustomizations(p.Customizations, sel.Customizations)
	if err != nil {
		return 0, none, err
	}

	unit, err := pricing.ComputeLinePrice(p.Price, variant, choices, sel.AddOnIDs, p.AddOns)
	if err != nil {
		return 0, none, err
	}

	addOns, err := pricing.ResolveAddOns(sel.AddOnIDs, p.AddOns)
	if err != nil {
		return 0, none, err
	}
	return unit, pricing.Choices{Customizations: choices, AddOns: addOns}, nil
}

type ProductNew struct {
	Name           string                  `json:"name" validate:"required"`
	Description    string                  `json:"description" validate:"required"`
	ImageURL       string                  `json:"imageUrl" validate:"omitempty,url"`
	Price          money.Amount            `json:"price" validate:"gte=0"`
	Quantity       int                     `json:"quantity" validate:"gte=0"`
	HasVariants    bool                    `json:"hasVariants"`
	Variants       []VariantNew            `json:"variants" validate:"dive"`
	Customizations []pricing.Customization `json:"customizations"`
	AddOns         []pricing.AddOn         `json:"addOns"`
}

var ErrVariantsRequired = errors.New("a product with variants needs at least one variant")

// Build turns a validated ProductNew into a draft owned by the seller.
func Build(np ProductNew, id, sellerID, sellerName string, newID func() string, now time.Time) (Product, error) {
	if np.HasVariants && len(np.Variants) == 0 {
		return Product{}, ErrVariantsRequired
	}

	variants := make([]pricing.Variant, len(np.Variants))
	for i, v := range np.Variants {
		variants[i] = pricing.Variant{
			ID:         newID(),
			Attributes: v.Attributes,
			Price:      v.Price,
			Stock:      v.Stock,
			SKU:        v.SKU,
		}
	}

	customs := append([]pricing.Customization(nil), np.Customizations...)
	for i := range customs {
		if customs[i].ID == "" {
			customs[i].ID = newID()
		}
	}

	addOns := append([]pricing.AddOn(nil), np.AddOns...)
	for i := range addOns {
		if addOns[i].ID == "" {
			addOns[i].ID = newID()
		}
	}

	return Product{
		ID:             id,
		SellerID:       sellerID,
		SellerName:     sellerName,
		Name:           np.Name,
		Description:    np.Description,
		ImageURL:       np.ImageURL,
		Price:          np.Price,
		Quantity:       np.Quantity,
		HasVariants:    np.HasVariants,
		Variants:       variants,
		Customizations: customs,
		AddOns:         addOns,
		Status:         Draft,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}, nil
}

type VariantNew struct {
	Attributes map[string]string `json:"attributes" validate:"required"`
	Price      money.Amount      `json:"price" validate:"gte=0"`
	Stock      int               `json:"stock" validate:"gte=0"`
	SKU        string            `json:"sku" validate:"required,sku"`
}

type Review struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}
