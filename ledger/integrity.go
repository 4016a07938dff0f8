package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// INTEGRITY REPORT - Read-only audit of stored chains
// =============================================================================
//
// Deleting a purchase never revalidates its neighbours, and editing a
// purchase never rewrites its successor. Both can leave a stored Remaining
// above its (new) predecessor's availability. CheckChain reports those
// records; it never repairs them.

type ViolationKind string

const (
	ViolationOldestRemaining   ViolationKind = "oldest_remaining_not_zero"
	ViolationNegativeRemaining ViolationKind = "negative_remaining"
	ViolationExceedsAvailable  ViolationKind = "exceeds_available"
)

// Violation is one purchase breaking a chain invariant.
type Violation struct {
	Kind        ViolationKind
	Purchase    Purchase
	Predecessor *Purchase
	// Bound is the predecessor's availability (zero for the oldest purchase).
	Bound decimal.Decimal
}

// CheckChain lists every invariant violation in chronological order.
func CheckChain(c *Chain) []Violation {
	var out []Violation
	for i := 0; i < c.Len(); i++ {
		p := c.At(i)
		if i == 0 {
			if !p.Remaining.IsZero() {
				out = append(out, Violation{Kind: ViolationOldestRemaining, Purchase: p, Bound: decimal.Zero})
			}
			continue
		}
		q := c.At(i - 1)
		fe := checkCarryForward(q, p.Remaining)
		if fe == nil {
			continue
		}
		kind := ViolationExceedsAvailable
		if fe.Code == CodeNegative {
			kind = ViolationNegativeRemaining
		}
		out = append(out, Violation{Kind: kind, Purchase: p, Predecessor: &q, Bound: TotalAvailable(q)})
	}
	return out
}
