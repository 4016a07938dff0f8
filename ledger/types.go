/*
Package ledger provides the supply purchase ledger and consumption-period
reconciliation engine.

PURPOSE:
  Every raw-material supply (flour, corn, oil, ...) owns a chain of purchase
  events. Each purchase records how much of the previous purchase's stock was
  still left when it was bought ("remaining"). Consumption is never stored:
  it is always derived from two adjacent purchases.

KEY CONCEPTS IN THIS FILE (types.go):
  - Supply:   A catalog raw material with a unit of measure
  - Supplier: A vendor purchases are made from
  - Purchase: One buying event, the atomic ledger entry
  - IDs:      Type-safe identifiers

DESIGN PRINCIPLES:
  1. Derived, not stored: stock and consumption are computed from the chain
  2. Precision: decimal.Decimal for every quantity and price
  3. Type Safety: distinct ID types for supplies, suppliers and purchases
  4. No cascading rewrites: editing history never silently rewrites neighbours

USAGE:
  engine := ledger.NewEngine(store, lock.NewKeyed(), logger)
  supply, _ := engine.CreateSupply(ctx, ledger.CreateSupplyInput{...})
  p, err := engine.AddPurchase(ctx, ledger.PurchaseInput{SupplyID: supply.ID, ...})

SEE ALSO:
  - chain.go:     Chronological navigation (predecessor/successor)
  - validator.go: Carry-forward invariants
  - period.go:    Consumption periods
  - engine.go:    Public operations
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SupplyID string
type SupplierID string
type PurchaseID string

// =============================================================================
// CATALOG
// =============================================================================

// Supplier is a vendor supplies are bought from.
type Supplier struct {
	ID        SupplierID
	Name      string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Supply is a raw material tracked for purchasing and stock.
type Supply struct {
	ID                SupplyID
	Name              string
	DefaultSupplierID SupplierID
	Unit              string // kilos, litres, pieces, ...
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// =============================================================================
// PURCHASE - The ledger entry
// =============================================================================

// Purchase is one buying event for a supply.
//
// Remaining is the quantity still unconsumed from the previous purchase's
// availability when this purchase was recorded. The oldest purchase of a
// chain always has Remaining == 0.
type Purchase struct {
	ID         PurchaseID
	SupplyID   SupplyID
	SupplierID SupplierID

	// Date is the calendar purchase date. Seq breaks ties between purchases
	// on the same date: it is assigned at insert and never changes.
	Date Date
	Seq  int64

	Quantity   decimal.Decimal
	Unit       string
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	Remaining  decimal.Decimal
	Notes      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// before reports whether p sorts chronologically before other.
func (p Purchase) before(other Purchase) bool {
	if !p.Date.Equal(other.Date) {
		return p.Date.Before(other.Date)
	}
	return p.Seq < other.Seq
}
