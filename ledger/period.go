/*
period.go - Consumption periods derived from a purchase chain

PURPOSE:
  A period is the span between two chronologically adjacent purchases
  Q (opens it) and P (closes it):

    TotalAvailable = Q.Remaining + Q.Quantity
    Consumed       = TotalAvailable - P.Remaining
    RemainingAtEnd = P.Remaining

  Periods are never stored. A chain of n purchases yields n-1 periods; a
  chain with fewer than two purchases yields none.

LAZINESS:
  PeriodCursor computes one period per Next() call from the chain snapshot.
  It is finite and restartable (Reset), so a paginated list only derives
  the periods it returns.

CONSISTENCY:
  Consumed + RemainingAtEnd == TotalAvailable holds exactly for every
  period. A negative Consumed is never clamped: it means a stored
  Remaining breaks the carry-forward bound (see integrity.go).
*/
package ledger

import "github.com/shopspring/decimal"

// Period is the consumption derived between two adjacent purchases.
type Period struct {
	StartDate Date
	EndDate   Date

	// Purchase opens the period, Closing ends it.
	Purchase Purchase
	Closing  Purchase

	TotalAvailable decimal.Decimal
	Consumed       decimal.Decimal
	RemainingAtEnd decimal.Decimal

	// IsCurrent marks the period between the two newest purchases.
	IsCurrent bool
}

// PeriodBetween derives the period opened by q and closed by p.
func PeriodBetween(q, p Purchase) Period {
	available := TotalAvailable(q)
	return Period{
		StartDate:      q.Date,
		EndDate:        p.Date,
		Purchase:       q,
		Closing:        p,
		TotalAvailable: available,
		Consumed:       available.Sub(p.Remaining),
		RemainingAtEnd: p.Remaining,
	}
}

// Days returns the length of the period in days.
func (p Period) Days() int { return DaysBetween(p.StartDate, p.EndDate) }

// IsConsistent is false when the stored chain breaks the carry-forward bound.
func (p Period) IsConsistent() bool { return !p.Consumed.IsNegative() }

// =============================================================================
// PERIOD CURSOR - Lazy, finite, restartable sequence
// =============================================================================

type Order int

const (
	OldestFirst Order = iota
	NewestFirst
)

// PeriodCursor walks the periods of a chain in the given order.
type PeriodCursor struct {
	chain *Chain
	order Order
	pos   int
}

// Periods returns a cursor over the chain's periods.
func Periods(c *Chain, order Order) *PeriodCursor {
	return &PeriodCursor{chain: c, order: order}
}

// PeriodCount is the number of periods a chain yields.
func PeriodCount(c *Chain) int {
	if c.Len() < 2 {
		return 0
	}
	return c.Len() - 1
}

// Len returns the total number of periods, regardless of position.
func (pc *PeriodCursor) Len() int { return PeriodCount(pc.chain) }

// Next derives the next period.
func (pc *PeriodCursor) Next() (Period, bool) {
	n := pc.Len()
	if pc.pos >= n {
		return Period{}, false
	}
	k := pc.pos
	if pc.order == NewestFirst {
		k = n - 1 - pc.pos
	}
	pc.pos++

	period := PeriodBetween(pc.chain.At(k), pc.chain.At(k+1))
	period.IsCurrent = k == n-1
	return period, true
}

// Skip advances the cursor by n periods without deriving them.
func (pc *PeriodCursor) Skip(n int) {
	if n <= 0 {
		return
	}
	pc.pos += n
	if pc.pos > pc.Len() {
		pc.pos = pc.Len()
	}
}

// Reset restarts the cursor from the first period.
func (pc *PeriodCursor) Reset() { pc.pos = 0 }

// AllPeriods derives every period of the chain.
func AllPeriods(c *Chain, order Order) []Period {
	cursor := Periods(c, order)
	out := make([]Period, 0, cursor.Len())
	for {
		p, ok := cursor.Next()
		if !ok {
			return out
		}
		out = append(out, p)
	}
}
