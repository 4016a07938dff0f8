/*
validator.go - Consumption validator (carry-forward invariants)

PURPOSE:
  Accepts a candidate purchase (new or an edit) and either returns the exact
  record to persist or a *ValidationError. Nothing here writes; the engine
  persists only what Validate returns.

RULES:
  1. Neighbours are recomputed on the chain as it will be AFTER the edit.
     A back-dated edit can change who is whose predecessor.
  2. No predecessor (candidate is/will be the oldest): Remaining is forced
     to zero, whatever was submitted.
  3. Predecessor Q exists: Remaining must be submitted, >= 0, and
     <= Q.Remaining + Q.Quantity.
  4. Successors are NOT rewritten. Their stored Remaining stays as recorded
     and is checked against the new availability the next time they are
     edited. Editing history never silently rewrites downstream records.

FIELD RULES:
  quantity > 0, unit_price >= 0, total_price >= 0 (defaults to
  quantity * unit_price), supplier, unit and date required.

EXAMPLE:
  chain: [{2025-03-01 qty=100 rem=0}]
  candidate {2025-03-08 qty=50 rem=150} -> exceeds_available (bound 100)
  candidate {2025-03-08 qty=50 rem=30}  -> accepted
*/
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PurchaseInput is a new or edited purchase as submitted by a caller.
type PurchaseInput struct {
	SupplyID   SupplyID
	SupplierID SupplierID
	Date       Date
	Quantity   decimal.Decimal
	Unit       string
	UnitPrice  decimal.Decimal
	TotalPrice *decimal.Decimal // nil: quantity * unit_price
	Remaining  *decimal.Decimal // required unless the purchase is the oldest
	Notes      string
}

// ConsumptionValidator enforces the carry-forward invariants.
type ConsumptionValidator struct{}

// Validate returns the purchase to persist for in. base carries the identity
// of the record (ID, SupplyID, Seq, CreatedAt); chain is the supply's current
// chain, which may or may not contain base.
func (ConsumptionValidator) Validate(chain *Chain, base Purchase, in PurchaseInput) (Purchase, error) {
	verr := validateFields(in)

	p := base
	p.SupplierID = in.SupplierID
	p.Date = in.Date
	p.Quantity = in.Quantity
	p.Unit = in.Unit
	p.UnitPrice = in.UnitPrice
	p.TotalPrice = in.Quantity.Mul(in.UnitPrice)
	if in.TotalPrice != nil {
		p.TotalPrice = *in.TotalPrice
	}
	p.Notes = in.Notes

	if in.Date.IsZero() {
		// cannot be positioned
		return Purchase{}, verr
	}

	q, hasPred := chain.With(p).Predecessor(p)
	if !hasPred {
		p.Remaining = decimal.Zero
	} else if in.Remaining == nil {
		bound := TotalAvailable(q)
		verr.Add(FieldError{
			Field:   "remaining",
			Code:    CodeRequired,
			Message: fmt.Sprintf("remaining is required, cannot exceed %s", bound.String()),
			Bound:   &bound,
		})
	} else {
		if fe := checkCarryForward(q, *in.Remaining); fe != nil {
			verr.Add(*fe)
		}
		p.Remaining = *in.Remaining
	}

	if err := verr.OrNil(); err != nil {
		return Purchase{}, err
	}
	return p, nil
}

func validateFields(in PurchaseInput) *ValidationError {
	verr := &ValidationError{}
	if in.SupplierID == "" {
		verr.Add(FieldError{Field: "supplier_id", Code: CodeRequired, Message: "supplier is required"})
	}
	if in.Date.IsZero() {
		verr.Add(FieldError{Field: "purchase_date", Code: CodeRequired, Message: "purchase date is required"})
	}
	if in.Unit == "" {
		verr.Add(FieldError{Field: "unit", Code: CodeRequired, Message: "unit is required"})
	}
	if !in.Quantity.IsPositive() {
		verr.Add(FieldError{
			Field:   "quantity",
			Code:    CodeNotPositive,
			Message: "quantity must be greater than 0",
			Value:   in.Quantity.String(),
		})
	}
	if in.UnitPrice.IsNegative() {
		verr.Add(FieldError{
			Field:   "unit_price",
			Code:    CodeNegative,
			Message: "unit price cannot be negative",
			Value:   in.UnitPrice.String(),
		})
	}
	if in.TotalPrice != nil && in.TotalPrice.IsNegative() {
		verr.Add(FieldError{
			Field:   "total_price",
			Code:    CodeNegative,
			Message: "total price cannot be negative",
			Value:   in.TotalPrice.String(),
		})
	}
	return verr
}

// checkCarryForward checks remaining against the predecessor's availability.
func checkCarryForward(pred Purchase, remaining decimal.Decimal) *FieldError {
	if remaining.IsNegative() {
		return &FieldError{
			Field:   "remaining",
			Code:    CodeNegative,
			Message: "remaining cannot be negative",
			Value:   remaining.String(),
		}
	}
	bound := TotalAvailable(pred)
	if remaining.GreaterThan(bound) {
		return &FieldError{
			Field:   "remaining",
			Code:    CodeExceedsAvailable,
			Message: fmt.Sprintf("remaining exceeds what was available, cannot exceed %s", bound.String()),
			Value:   remaining.String(),
			Bound:   &bound,
		}
	}
	return nil
}
