package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/supply-ledger/ledger"
)

func TestPageLimits_Normalize(t *testing.T) {
	limits := ledger.DefaultPageLimits

	tests := []struct {
		name                  string
		offset, limit         int
		wantOffset, wantLimit int
	}{
		{"defaults", 0, 0, 0, 15},
		{"negative offset", -4, 10, 0, 10},
		{"negative limit", 5, -1, 5, 15},
		{"above max", 0, 1000, 0, 100},
		{"in range", 30, 20, 30, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, limit := limits.Normalize(tt.offset, tt.limit)
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}

func longChain(n int) *ledger.Chain {
	purchases := make([]ledger.Purchase, n)
	for i := range purchases {
		rem := "5"
		if i == 0 {
			rem = "0"
		}
		purchases[i] = purchase(string(rune('a'+i)), int64(i+1), day(7*i), "10", rem)
	}
	return ledger.NewChain("flour", purchases)
}

func TestPeriodPage(t *testing.T) {
	// GIVEN: 6 purchases -> 5 periods
	// WHEN: Asking for offset 1, limit 2
	// THEN: The 2nd and 3rd newest periods, total 5

	page := ledger.PeriodPage(longChain(6), 1, 2)

	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, ledger.PurchaseID("d"), page.Items[0].Purchase.ID)
	assert.Equal(t, ledger.PurchaseID("c"), page.Items[1].Purchase.ID)
	assert.True(t, page.HasMore())
}

func TestPeriodPage_EmptyChain(t *testing.T) {
	page := ledger.PeriodPage(ledger.NewChain("flour", nil), 0, 15)

	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore())
}

func TestPeriodPage_OffsetPastEnd(t *testing.T) {
	page := ledger.PeriodPage(longChain(3), 10, 5)

	assert.Equal(t, 2, page.Total)
	assert.Empty(t, page.Items)
}

func TestPurchasePage(t *testing.T) {
	page := ledger.PurchasePage(longChain(4), 0, 3)

	assert.Equal(t, 4, page.Total)
	assert.Equal(t, []ledger.PurchaseID{"d", "c", "b"}, ids(page.Items))
	assert.True(t, page.HasMore())

	last := ledger.PurchasePage(longChain(4), 3, 3)
	assert.Equal(t, []ledger.PurchaseID{"a"}, ids(last.Items))
	assert.False(t, last.HasMore())
}

func TestPages_NegativeOffsetStartsAtNewest(t *testing.T) {
	// GIVEN: A chain of 4 purchases
	// WHEN: Paging with a negative offset (no Normalize in between)
	// THEN: Both pages start at the newest entry instead of panicking

	purchases := ledger.PurchasePage(longChain(4), -1, 2)
	assert.Equal(t, 0, purchases.Offset)
	assert.Equal(t, []ledger.PurchaseID{"d", "c"}, ids(purchases.Items))

	periods := ledger.PeriodPage(longChain(4), -3, 1)
	assert.Equal(t, 0, periods.Offset)
	assert.Len(t, periods.Items, 1)
	assert.Equal(t, ledger.PurchaseID("c"), periods.Items[0].Purchase.ID)

	assert.Empty(t, ledger.PurchasePage(longChain(4), 0, -5).Items)
}
