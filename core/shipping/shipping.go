// Package shipping prices delivery of physical items.
package shipping

import (
	"github.com/irsalhamdi/craft-market/core/order"
	"github.com/irsalhamdi/craft-market/money"
)

// Flat charges Fee once per order holding physical items. Orders whose
// physical subtotal reaches FreeAbove ship free; zero disables the threshold.
// Courses and workshops never ship.
type Flat struct {
	Fee       money.Amount
	FreeAbove money.Amount
}

func (f Flat) Quote(lines []order.Line, _ money.Amount) money.Amount {
	var physical money.Amount
	hasPhysical := false
	for _, l := range lines {
		if l.ItemType.Physical() {
			hasPhysical = true
			physical += l.Gross()
		}
	}

	if !hasPhysical {
		return 0
	}
	if f.FreeAbove > 0 && physical >= f.FreeAbove {
		return 0
	}
	return f.Fee
}
