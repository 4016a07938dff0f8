package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// STOCK & AVAILABILITY - Pure functions over a chain snapshot
// =============================================================================

// TotalAvailable is what could be consumed from p's date until the next purchase.
func TotalAvailable(p Purchase) decimal.Decimal {
	return p.Remaining.Add(p.Quantity)
}

// CurrentStock is the total available at the newest purchase, or zero for an
// empty chain.
func CurrentStock(c *Chain) decimal.Decimal {
	newest, ok := c.Newest()
	if !ok {
		return decimal.Zero
	}
	return TotalAvailable(newest)
}
