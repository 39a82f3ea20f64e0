// Package pricing composes the unit price of a cart line from a catalog
// entry's base price, the chosen variant, buyer customizations and add-ons.
//
// A selected variant replaces the base price. Customization modifiers and
// active add-ons are added on top. Everything is in money.Amount minor units.
package pricing

import (
	"errors"
	"fmt"

	"github.com/irsalhamdi/craft-market/money"
)

var (
	ErrAddOnUnavailable     = errors.New("add-on is not available")
	ErrVariantUnavailable   = errors.New("variant is not available")
	ErrMissingCustomization = errors.New("required customization missing")
	ErrInvalidChoice        = errors.New("customization choice is not one of the options")
	ErrNegativePrice        = errors.New("line price cannot be negative")
)

// Variant is one attribute combination of a product with its own price point.
type Variant struct {
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes"`
	Price      money.Amount      `json:"price"`
	Stock      int               `json:"stock"`
	SKU        string            `json:"sku"`
}

type CustomizationKind string

const (
	CustomText   CustomizationKind = "text"
	CustomImage  CustomizationKind = "image"
	CustomColor  CustomizationKind = "color"
	CustomSelect CustomizationKind = "select"
)

// Option is one choice of a select customization. Its modifier overrides the
// customization's own modifier.
type Option struct {
	Value         string       `json:"value"`
	PriceModifier money.Amount `json:"priceModifier"`
}

// Customization is buyer provided input a product accepts.
type Customization struct {
	ID            string            `json:"id"`
	Label         string            `json:"label"`
	Kind          CustomizationKind `json:"kind"`
	Required      bool              `json:"required"`
	Options       []Option          `json:"options,omitempty"`
	PriceModifier money.Amount      `json:"priceModifier"`
}

// CustomizationChoice is a resolved buyer selection with the modifier it adds.
type CustomizationChoice struct {
	CustomizationID string       `json:"customizationId"`
	Value           string       `json:"value"`
	PriceModifier   money.Amount `json:"priceModifier"`
}

type AddOn struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Price  money.Amount `json:"price"`
	Active bool         `json:"active"`
}

// ComputeLinePrice returns the unit price of a line.
func ComputeLinePrice(base money.Amount, variant *Variant, choices []CustomizationChoice, addOnIDs []string, catalog []AddOn) (money.Amount, error) {
	price := base
	if variant != nil {
		price = variant.Price
	}

	for _, c := range choices {
		price += c.PriceModifier
	}

	addOns, err := ResolveAddOns(addOnIDs, catalog)
	if err != nil {
		return 0, err
	}
	for _, a := range addOns {
		price += a.Price
	}

	if price < 0 {
		return 0, ErrNegativePrice
	}

	return price, nil
}

// ResolveAddOns looks up the picked add-ons in the catalog. A duplicated id
// is kept once.
func ResolveAddOns(ids []string, catalog []AddOn) ([]AddOn, error) {
	out := make([]AddOn, 0, len(ids))
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		a, ok := findAddOn(catalog, id)
		if !ok || !a.Active {
			return nil, fmt.Errorf("add-on[%s]: %w", id, ErrAddOnUnavailable)
		}
		out = append(out, a)
	}
	return out, nil
}

func findAddOn(catalog []AddOn, id string) (AddOn, bool) {
	for _, a := range catalog {
		if a.ID == id {
			return a, true
		}
	}
	return AddOn{}, false
}

// FindVariant resolves a variant id. An empty id means no variant.
func FindVariant(variants []Variant, id string) (*Variant, error) {
	if id == "" {
		return nil, nil
	}
	for i := range variants {
		if variants[i].ID == id {
			return &variants[i], nil
		}
	}
	return nil, fmt.Errorf("variant[%s]: %w", id, ErrVariantUnavailable)
}

// ResolveCustomizations checks buyer input against a product's customization
// definitions and returns the choices with their price modifiers. Selections
// for unknown customizations are ignored.
func ResolveCustomizations(defs []Customization, selections map[string]string) ([]CustomizationChoice, error) {
	choices := make([]CustomizationChoice, 0, len(selections))

	for _, d := range defs {
		v, ok := selections[d.ID]
		if !ok || v == "" {
			if d.Required {
				return nil, fmt.Errorf("%s: %w", d.Label, ErrMissingCustomization)
			}
			continue
		}

		mod := d.PriceModifier
		if d.Kind == CustomSelect {
			opt, ok := findOption(d.Options, v)
			if !ok {
				return nil, fmt.Errorf("%s=%q: %w", d.Label, v, ErrInvalidChoice)
			}
			mod = opt.PriceModifier
		}

		choices = append(choices, CustomizationChoice{
			CustomizationID: d.ID,
			Value:           v,
			PriceModifier:   mod,
		})
	}

	return choices, nil
}

func findOption(opts []Option, v string) (Option, bool) {
	for _, o := range opts {
		if o.Value == v {
			return o, true
		}
	}
	return Option{}, false
}

// Choices is a resolved selection as it is kept on an order line, with the
// modifiers and add-on prices charged at checkout.
type Choices struct {
	Customizations []CustomizationChoice `json:"customizations,omitempty"`
	AddOns         []AddOn               `json:"addOns,omitempty"`
}

// Selection is what a buyer picked for one cart line.
type Selection struct {
	VariantID      string            `json:"variantId,omitempty"`
	Customizations map[string]string `json:"customizations,omitempty"`
	AddOnIDs       []string          `json:"addOnIds,omitempty"`
}
