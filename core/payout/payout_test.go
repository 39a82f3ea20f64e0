package payout

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/irsalhamdi/craft-market/money"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var standard = Rates{Platform: 1200, Processing: 290}

func TestSplit(t *testing.T) {
	got := Split(100000, standard)

	want := Share{Gross: 100000, Platform: 12000, Processing: 2900, SellerNet: 85100}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("split mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "851.00", got.SellerNet.String())
	assert.Equal(t, "120.00", got.Platform.String())
	assert.Equal(t, "29.00", got.Processing.String())
}

func TestSplitRoundsEachShare(t *testing.T) {
	// 12% of 17 cents is 2.04, 2.9% is 0.493.
	got := Split(17, standard)
	assert.Equal(t, money.Amount(2), got.Platform)
	assert.Equal(t, money.Amount(0), got.Processing)
	assert.Equal(t, money.Amount(15), got.SellerNet)
}

func TestSplitConserves(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("net + platform + processing = gross", prop.ForAll(
		func(gross int64, platform, processing int64) bool {
			s := Split(money.Amount(gross), Rates{Platform: money.Rate(platform), Processing: money.Rate(processing)})
			return s.SellerNet+s.Platform+s.Processing == s.Gross && s.SellerNet >= 0
		},
		gen.Int64Range(0, 100_000_000),
		gen.Int64Range(0, 4999),
		gen.Int64Range(0, 4999),
	))

	properties.TestingRun(t)
}

func line(pos int, seller string, price money.Amount, qty int, st order.PayoutStatus) order.Item {
	return order.Item{
		Line: order.Line{
			ItemType:   order.ItemProduct,
			Title:      "Item",
			SellerID:   seller,
			SellerName: "Seller " + seller,
			UnitPrice:  price,
			Quantity:   qty,
		},
		Position:     pos,
		PayoutStatus: st,
	}
}

func TestComputePayout(t *testing.T) {
	orders := []order.Order{
		{
			ID:                 "o1",
			PaymentStatus:      order.PaymentPaid,
			PlatformCommission: 1200,
			ProcessingFee:      290,
			Items: []order.Item{
				line(0, "s2", 50000, 2, order.PayoutPending),
				line(1, "s1", 10000, 1, order.PayoutPending),
				line(2, "s1", 10000, 1, order.PayoutIncluded),
			},
		},
		{
			// pinned at an older configuration
			ID:                 "o2",
			PaymentStatus:      order.PaymentPartiallyRefunded,
			PlatformCommission: 1000,
			ProcessingFee:      0,
			Items: []order.Item{
				line(0, "s1", 10000, 1, order.PayoutPending),
				line(1, "s1", 10000, 1, order.PayoutRefunded),
			},
		},
		{
			ID:            "o3",
			PaymentStatus: order.PaymentPending,
			Items:         []order.Item{line(0, "s1", 99999, 1, order.PayoutPending)},
		},
		{
			ID:            "o4",
			PaymentStatus: order.PaymentRefunded,
			Items:         []order.Item{line(0, "s1", 99999, 1, order.PayoutPending)},
		},
	}

	got := ComputePayout(orders)
	require.Len(t, got, 2)

	s1 := got[0]
	assert.Equal(t, "s1", s1.SellerID)
	require.Len(t, s1.Lines, 2)
	assert.Equal(t, money.Amount(20000), s1.Gross)
	assert.Equal(t, money.Amount(8510+9000), s1.SellerNet)
	assert.Equal(t, money.Amount(1200+1000), s1.Platform)

	s2 := got[1]
	assert.Equal(t, "s2", s2.SellerID)
	assert.Equal(t, money.Amount(85100), s2.SellerNet)
	assert.Equal(t, s2.Gross, s2.SellerNet+s2.Platform+s2.Processing)
}

func TestComputePayoutEmpty(t *testing.T) {
	assert.Empty(t, ComputePayout(nil))
}

func TestComputePayoutSkipsCancelledOrders(t *testing.T) {
	build := func() order.Order {
		o, err := order.BuildOrder([]order.Line{{
			ItemType:   order.ItemProduct,
			ItemID:     "p1",
			Title:      "Vase",
			SellerID:   "s1",
			SellerName: "Ana",
			UnitPrice:  100000,
			Quantity:   1,
		}}, 0, 0, 0)
		require.NoError(t, err)
		o.PlatformCommission, o.ProcessingFee = standard.Platform, standard.Processing
		return o
	}
	now := time.Now()

	// cancelled while the checkout was open, captured afterwards
	late := build()
	require.NoError(t, late.SetFulfillment(order.Cancelled, "", now))
	require.NoError(t, late.SetPayment(order.PaymentPaid, "", now))

	// paid, then an attempt to cancel instead of refunding
	paid := build()
	require.NoError(t, paid.SetPayment(order.PaymentPaid, "", now))
	require.ErrorIs(t, paid.SetFulfillment(order.Cancelled, "", now), order.ErrCancelPaid)

	got := ComputePayout([]order.Order{late})
	assert.Empty(t, got)
	assert.False(t, Eligible(late))

	got = ComputePayout([]order.Order{paid})
	require.Len(t, got, 1)
	assert.Equal(t, money.Amount(85100), got[0].SellerNet)

	// a status row left behind by older data is still never paid out
	stale := paid
	stale.Status = order.Cancelled
	assert.Empty(t, ComputePayout([]order.Order{stale}))
}
