/*
chain.go - Chronological navigation over one supply's purchases

PURPOSE:
  A Chain is a sorted index over a supply's purchases keyed by
  (purchase date, seq). Validation and period derivation both need
  "the purchase immediately before/after this one", and that must come
  from the chronological order, never from ids: a user may back-date an
  entry long after later purchases were recorded.

COMPLEXITY:
  Predecessor/Successor use binary search: O(log n).
  With/Without return a new chain (copy-on-write): O(n).

CANDIDATES:
  Predecessor and Successor accept purchases that are not in the chain yet.
  The validator positions a candidate with them before anything is written:

    next := chain.Without(p.ID).With(p)
    q, ok := next.Predecessor(p)

SEE ALSO:
  - validator.go: Uses Predecessor on the post-edit chain
  - period.go:    Walks adjacent pairs
*/
package ledger

import (
	"sort"
)

// Chain is an immutable, chronologically sorted view of one supply's purchases.
type Chain struct {
	supplyID  SupplyID
	purchases []Purchase // oldest first
}

// NewChain sorts a copy of purchases by (date, seq).
func NewChain(supplyID SupplyID, purchases []Purchase) *Chain {
	sorted := make([]Purchase, len(purchases))
	copy(sorted, purchases)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].before(sorted[j])
	})
	return &Chain{supplyID: supplyID, purchases: sorted}
}

func (c *Chain) SupplyID() SupplyID { return c.supplyID }
func (c *Chain) Len() int           { return len(c.purchases) }
func (c *Chain) IsEmpty() bool      { return len(c.purchases) == 0 }

// At returns the i-th purchase, oldest first.
func (c *Chain) At(i int) Purchase { return c.purchases[i] }

// Oldest returns the chronologically first purchase.
func (c *Chain) Oldest() (Purchase, bool) {
	if c.IsEmpty() {
		return Purchase{}, false
	}
	return c.purchases[0], true
}

// Newest returns the chronologically last purchase.
func (c *Chain) Newest() (Purchase, bool) {
	if c.IsEmpty() {
		return Purchase{}, false
	}
	return c.purchases[len(c.purchases)-1], true
}

// Chronological returns the purchases oldest first.
func (c *Chain) Chronological() []Purchase {
	out := make([]Purchase, len(c.purchases))
	copy(out, c.purchases)
	return out
}

// NewestFirst returns the purchases in display order.
func (c *Chain) NewestFirst() []Purchase {
	n := len(c.purchases)
	out := make([]Purchase, n)
	for i, p := range c.purchases {
		out[n-1-i] = p
	}
	return out
}

// NextSeq returns a sequence number greater than any in the chain.
func (c *Chain) NextSeq() int64 {
	var max int64
	for _, p := range c.purchases {
		if p.Seq > max {
			max = p.Seq
		}
	}
	return max + 1
}

// Find returns the purchase with the given id.
func (c *Chain) Find(id PurchaseID) (Purchase, bool) {
	if i := c.indexOf(id); i >= 0 {
		return c.purchases[i], true
	}
	return Purchase{}, false
}

// Predecessor returns the purchase immediately before p in chronological order.
// p itself is skipped if it is part of the chain.
func (c *Chain) Predecessor(p Purchase) (Purchase, bool) {
	// first index not before p
	i := sort.Search(len(c.purchases), func(i int) bool {
		return !c.purchases[i].before(p)
	})
	for j := i - 1; j >= 0; j-- {
		if c.purchases[j].ID != p.ID {
			return c.purchases[j], true
		}
	}
	return Purchase{}, false
}

// Successor returns the purchase immediately after p in chronological order.
func (c *Chain) Successor(p Purchase) (Purchase, bool) {
	// first index strictly after p
	i := sort.Search(len(c.purchases), func(i int) bool {
		return p.before(c.purchases[i])
	})
	for j := i; j < len(c.purchases); j++ {
		if c.purchases[j].ID != p.ID {
			return c.purchases[j], true
		}
	}
	return Purchase{}, false
}

// With returns a new chain containing p at its chronological position.
// An existing purchase with the same id is replaced.
func (c *Chain) With(p Purchase) *Chain {
	base := c
	if c.indexOf(p.ID) >= 0 {
		base = c.Without(p.ID)
	}
	i := sort.Search(len(base.purchases), func(i int) bool {
		return p.before(base.purchases[i])
	})
	out := make([]Purchase, 0, len(base.purchases)+1)
	out = append(out, base.purchases[:i]...)
	out = append(out, p)
	out = append(out, base.purchases[i:]...)
	return &Chain{supplyID: c.supplyID, purchases: out}
}

// Without returns a new chain without the purchase with the given id.
func (c *Chain) Without(id PurchaseID) *Chain {
	i := c.indexOf(id)
	if i < 0 {
		return c
	}
	out := make([]Purchase, 0, len(c.purchases)-1)
	out = append(out, c.purchases[:i]...)
	out = append(out, c.purchases[i+1:]...)
	return &Chain{supplyID: c.supplyID, purchases: out}
}

func (c *Chain) indexOf(id PurchaseID) int {
	for i, p := range c.purchases {
		if p.ID == id {
			return i
		}
	}
	return -1
}
