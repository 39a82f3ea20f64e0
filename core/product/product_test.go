package product

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/irsalhamdi/craft-market/core/fsm"
	"github.com/irsalhamdi/craft-market/core/pricing"
)

func TestAvailable(t *testing.T) {
	p := Product{Quantity: 7}
	if got := p.Available(); got != 7 {
		t.Fatalf("without variants: %d", got)
	}

	p = Product{
		Quantity:    99,
		HasVariants: true,
		Variants:    []pricing.Variant{{Stock: 2}, {Stock: 5}, {Stock: 0}},
	}
	if got := p.Available(); got != 5 {
		t.Fatalf("with variants: got %d, want 5 (global quantity ignored)", got)
	}
}

func TestLifecycle(t *testing.T) {
	p := Product{Status: Draft}

	steps := []struct {
		to     Status
		reason string
	}{
		{Pending, ""},
		{Rejected, "photos are blurry"},
		{Pending, ""},
		{Active, ""},
		{Sold, ""},
		{Archived, ""},
	}
	for _, s := range steps {
		if err := p.Transition(s.to, s.reason); err != nil {
			t.Fatalf("-> %s: %v", s.to, err)
		}
		if s.to == Rejected && p.RejectionReason != s.reason {
			t.Fatalf("rejection reason not kept: %q", p.RejectionReason)
		}
		if s.to != Rejected && p.RejectionReason != "" {
			t.Fatalf("reason not cleared on %s", s.to)
		}
	}

	if err := p.Transition(Active, ""); !errors.Is(err, fsm.ErrInvalidTransition) {
		t.Fatalf("archived -> active: %v", err)
	}

	q := Product{Status: Pending}
	if err := q.Transition(Rejected, ""); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("reject without reason: %v", err)
	}
	if q.Status != Pending {
		t.Fatal("failed transition must not change the status")
	}

	d := Product{Status: Draft}
	if err := d.Transition(Active, ""); !errors.Is(err, fsm.ErrInvalidTransition) {
		t.Fatalf("draft skipped moderation: %v", err)
	}
}

func mug() Product {
	return Product{
		ID:          "p1",
		Status:      Active,
		Price:       10000,
		HasVariants: true,
		Variants: []pricing.Variant{
			{ID: "small", Price: 9000, Stock: 1},
			{ID: "large", Price: 12000, Stock: 4},
		},
		Customizations: []pricing.Customization{
			{ID: "engrave", Label: "Engraving", Kind: pricing.CustomText, PriceModifier: 1000},
		},
		AddOns: []pricing.AddOn{{ID: "box", Price: 1500, Active: true}},
	}
}

func TestQuote(t *testing.T) {
	p := mug()

	got, choices, err := p.Quote(pricing.Selection{
		VariantID:      "large",
		Customizations: map[string]string{"engrave": "Mia"},
		AddOnIDs:       []string{"box", "box"},
	}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != 14500 {
		t.Fatalf("unit price = %d, want 14500", got)
	}
	if len(choices.Customizations) != 1 || choices.Customizations[0].Value != "Mia" {
		t.Fatalf("customizations not kept: %+v", choices.Customizations)
	}
	if len(choices.AddOns) != 1 || choices.AddOns[0].ID != "box" || choices.AddOns[0].Price != 1500 {
		t.Fatalf("add-ons not kept: %+v", choices.AddOns)
	}

	if _, _, err := p.Quote(pricing.Selection{VariantID: "small"}, 2); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("over stock: %v", err)
	}
	if _, _, err := p.Quote(pricing.Selection{}, 1); !errors.Is(err, pricing.ErrVariantUnavailable) {
		t.Fatalf("missing variant: %v", err)
	}

	p.Status = Pending
	if _, _, err := p.Quote(pricing.Selection{VariantID: "large"}, 1); !errors.Is(err, ErrNotPurchasable) {
		t.Fatalf("pending product sold: %v", err)
	}
}

func TestBuild(t *testing.T) {
	n := 0
	newID := func() string { n++; return fmt.Sprintf("id-%d", n) }
	now := time.Now().UTC()

	_, err := Build(ProductNew{Name: "Vase", Description: "d", HasVariants: true}, "p", "s", "Clay Co", newID, now)
	if !errors.Is(err, ErrVariantsRequired) {
		t.Fatalf("variants flag without variants: %v", err)
	}

	p, err := Build(ProductNew{
		Name:        "Vase",
		Description: "Hand thrown",
		HasVariants: true,
		Variants:    []VariantNew{{Attributes: map[string]string{"size": "L"}, Price: 4000, Stock: 3, SKU: "VASE-L"}},
		AddOns:      []pricing.AddOn{{Name: "Gift box", Price: 500, Active: true}},
	}, "p", "s", "Clay Co", newID, now)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != Draft || p.Variants[0].ID == "" || p.AddOns[0].ID == "" {
		t.Fatalf("unexpected product %+v", p)
	}
}
