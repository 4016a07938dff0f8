package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/supply-ledger/ledger"
	"github.com/warp/supply-ledger/ledger/store"
	"github.com/warp/supply-ledger/lock"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	engine   *ledger.Engine
	store    *store.Memory
	supplier *ledger.Supplier
	supply   *ledger.Supply
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newFixture(t *testing.T, opts ...ledger.Option) *fixture {
	t.Helper()
	mem := store.NewMemory()
	return newFixtureWith(t, mem, mem, lock.NewKeyed(), opts...)
}

func newFixtureWith(t *testing.T, mem *store.Memory, st ledger.TxStore, locker ledger.ChainLocker, opts ...ledger.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	engine := ledger.NewEngine(st, locker, discardLogger(), opts...)

	supplier, err := engine.CreateSupplier(ctx, ledger.SupplierInput{Name: "Northern Mill"})
	require.NoError(t, err)
	supply, err := engine.CreateSupply(ctx, ledger.SupplyInput{Name: "Flour", DefaultSupplierID: supplier.ID, Unit: "kg"})
	require.NoError(t, err)

	return &fixture{engine: engine, store: mem, supplier: supplier, supply: supply}
}

// buy adds a purchase on day n. remaining "" is not submitted.
func (f *fixture) buy(t *testing.T, n int, qty, remaining string) (*ledger.Purchase, error) {
	t.Helper()
	in := ledger.PurchaseInput{
		SupplyID:  f.supply.ID,
		Date:      day(n),
		Quantity:  dec(qty),
		Unit:      "kg",
		UnitPrice: dec("1"),
	}
	if remaining != "" {
		in.Remaining = decPtr(remaining)
	}
	return f.engine.AddPurchase(context.Background(), in)
}

func (f *fixture) mustBuy(t *testing.T, n int, qty, remaining string) *ledger.Purchase {
	t.Helper()
	p, err := f.buy(t, n, qty, remaining)
	require.NoError(t, err)
	return p
}

func editInput(p *ledger.Purchase, qty, remaining string) ledger.PurchaseInput {
	in := ledger.PurchaseInput{
		SupplierID: p.SupplierID,
		Date:       p.Date,
		Quantity:   dec(qty),
		Unit:       p.Unit,
		UnitPrice:  p.UnitPrice,
	}
	if remaining != "" {
		in.Remaining = decPtr(remaining)
	}
	return in
}

// =============================================================================
// CARRY-FORWARD SCENARIOS
// =============================================================================

func TestEngine_RejectedPurchase_WritesNothing(t *testing.T) {
	// GIVEN: One purchase {quantity 100, remaining 0}
	// WHEN: A second purchase claims remaining 150
	// THEN: ValidationError, chain unchanged, stock still 100

	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, 0, "100", "")

	_, err := f.buy(t, 7, "50", "150")

	assert.ErrorIs(t, err, ledger.ErrValidation)
	chain, err := f.engine.Chain(ctx, f.supply.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.Len())

	stock, err := f.engine.CurrentStock(ctx, f.supply.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", stock.String())
}

func TestEngine_AcceptedPurchase_DerivesPeriod(t *testing.T) {
	// GIVEN: One purchase {quantity 100, remaining 0}
	// WHEN: A second purchase {quantity 50, remaining 30}
	// THEN: Accepted, one period consuming 70, stock 80

	f := newFixture(t)
	ctx := context.Background()
	first := f.mustBuy(t, 0, "100", "")
	second := f.mustBuy(t, 7, "50", "30")

	page, err := f.engine.ListPeriods(ctx, f.supply.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Total)

	period := page.Items[0]
	assert.Equal(t, first.ID, period.Purchase.ID)
	assert.Equal(t, second.ID, period.Closing.ID)
	assert.Equal(t, "70", period.Consumed.String())
	assert.True(t, period.IsCurrent)

	stock, err := f.engine.CurrentStock(ctx, f.supply.ID)
	require.NoError(t, err)
	assert.Equal(t, "80", stock.String())
}

func TestEngine_FirstPurchase_RemainingZero(t *testing.T) {
	f := newFixture(t)

	p := f.mustBuy(t, 0, "100", "25")

	assert.True(t, p.Remaining.IsZero())
	assert.Equal(t, int64(1), p.Seq)
	assert.Equal(t, f.supplier.ID, p.SupplierID, "defaults to the supply's supplier")
}

func TestEngine_EmptyChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stock, err := f.engine.CurrentStock(ctx, f.supply.ID)
	require.NoError(t, err)
	assert.True(t, stock.IsZero())

	periods, err := f.engine.ListPeriods(ctx, f.supply.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, periods.Items)
	assert.Equal(t, 0, periods.Total)

	purchases, err := f.engine.ListPurchases(ctx, f.supply.ID, 0, 10)
	require.NoError(t, err)
	assert.NotNil(t, purchases.Items)
	assert.Empty(t, purchases.Items)
}

func TestEngine_Stock(t *testing.T) {
	// GIVEN: {100} on day 0 and {50, remaining 30} on day 7
	// WHEN: Reading the stock level
	// THEN: 80 kg as of day 7 over 2 purchases

	f := newFixture(t)
	f.mustBuy(t, 0, "100", "")
	f.mustBuy(t, 7, "50", "30")

	level, err := f.engine.Stock(context.Background(), f.supply.ID)
	require.NoError(t, err)
	assert.True(t, dec("80").Equal(level.Quantity))
	assert.Equal(t, day(7), level.AsOf)
	assert.Equal(t, 2, level.Purchases)
	assert.Equal(t, "kg", level.Supply.Unit)

	empty, err := f.engine.Stock(context.Background(), f.supply.ID+"-none")
	assert.Nil(t, empty)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestEngine_ClockAndIDGenerator(t *testing.T) {
	// GIVEN: A fixed clock and a counting id generator
	// WHEN: Creating the catalog, adding a purchase, then editing it later
	// THEN: Ids come from the generator and timestamps from the clock

	now := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
	var n int
	f := newFixture(t,
		ledger.WithClock(func() time.Time { return now }),
		ledger.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	assert.Equal(t, ledger.SupplierID("id-1"), f.supplier.ID)
	assert.Equal(t, ledger.SupplyID("id-2"), f.supply.ID)
	assert.Equal(t, now, f.supply.CreatedAt)

	p := f.mustBuy(t, 0, "100", "")
	assert.Equal(t, ledger.PurchaseID("id-3"), p.ID)
	assert.Equal(t, now, p.CreatedAt)

	created := now
	now = now.Add(2 * time.Hour)
	edited, err := f.engine.UpdatePurchase(context.Background(), p.ID, editInput(p, "120", ""))
	require.NoError(t, err)
	assert.Equal(t, created, edited.CreatedAt)
	assert.Equal(t, now, edited.UpdatedAt)
}

func TestEngine_SinglePurchase_NoPeriods(t *testing.T) {
	f := newFixture(t)
	f.mustBuy(t, 0, "100", "")

	periods, err := f.engine.ListPeriods(context.Background(), f.supply.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, periods.Items)
}

func TestEngine_BackDatedInsert(t *testing.T) {
	// GIVEN: Purchases on day 7 {100} and day 14 {50, rem 60}
	// WHEN: A purchase dated day 0 {20} is added
	// THEN: It becomes the oldest with remaining 0. The former oldest keeps
	//       its stored 0 until it is edited, and then needs a remaining
	//       bounded by the new predecessor.

	f := newFixture(t)
	ctx := context.Background()
	formerOldest := f.mustBuy(t, 7, "100", "")
	f.mustBuy(t, 14, "50", "60")

	early := f.mustBuy(t, 0, "20", "5")
	assert.True(t, early.Remaining.IsZero())

	chain, err := f.engine.Chain(ctx, f.supply.ID)
	require.NoError(t, err)
	oldest, _ := chain.Oldest()
	assert.Equal(t, early.ID, oldest.ID)

	stored, err := f.engine.GetPurchase(ctx, formerOldest.ID)
	require.NoError(t, err)
	assert.True(t, stored.Remaining.IsZero(), "not rewritten by the back-dated insert")

	// next edit: remaining is now required and bounded by 20
	_, err = f.engine.UpdatePurchase(ctx, formerOldest.ID, editInput(formerOldest, "100", ""))
	fe := requireFieldError(t, err, "remaining")
	assert.Equal(t, ledger.CodeRequired, fe.Code)

	_, err = f.engine.UpdatePurchase(ctx, formerOldest.ID, editInput(formerOldest, "100", "25"))
	fe = requireFieldError(t, err, "remaining")
	assert.Equal(t, "20", fe.Bound.String())

	updated, err := f.engine.UpdatePurchase(ctx, formerOldest.ID, editInput(formerOldest, "100", "15"))
	require.NoError(t, err)
	assert.Equal(t, "15", updated.Remaining.String())
	assert.Equal(t, formerOldest.Seq, updated.Seq, "seq never changes")
}

func TestEngine_SameDayPurchases_KeepInsertionOrder(t *testing.T) {
	f := newFixture(t)
	morning := f.mustBuy(t, 0, "10", "")
	evening := f.mustBuy(t, 0, "10", "4")

	assert.Greater(t, evening.Seq, morning.Seq)

	page, err := f.engine.ListPurchases(context.Background(), f.supply.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []ledger.PurchaseID{evening.ID, morning.ID}, ids(page.Items))
}

// =============================================================================
// EDITS AND DELETES
// =============================================================================

func TestEngine_Update_DoesNotRewriteSuccessor(t *testing.T) {
	// GIVEN: a{100} -> b{50, rem 80} -> c{10, rem 100}
	// WHEN: b's quantity drops to 10 (available 90)
	// THEN: c keeps remaining 100 and the integrity report flags it

	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, 0, "100", "")
	b := f.mustBuy(t, 7, "50", "80")
	c := f.mustBuy(t, 14, "10", "100")

	_, err := f.engine.UpdatePurchase(ctx, b.ID, editInput(b, "10", "80"))
	require.NoError(t, err)

	stored, err := f.engine.GetPurchase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", stored.Remaining.String())

	violations, err := f.engine.CheckChain(ctx, f.supply.ID)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, c.ID, violations[0].Purchase.ID)
	assert.Equal(t, "90", violations[0].Bound.String())

	// c is revalidated on its next edit
	_, err = f.engine.UpdatePurchase(ctx, c.ID, editInput(c, "10", "100"))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestEngine_Delete_IsUnconditional(t *testing.T) {
	// GIVEN: a{10} -> b{40, rem 4} -> c{10, rem 30}
	// WHEN: b is deleted
	// THEN: Delete succeeds; c now exceeds a's availability (10)

	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, 0, "10", "")
	b := f.mustBuy(t, 7, "40", "4")
	c := f.mustBuy(t, 14, "10", "30")

	require.NoError(t, f.engine.DeletePurchase(ctx, b.ID))

	_, err := f.engine.GetPurchase(ctx, b.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	violations, err := f.engine.CheckChain(ctx, f.supply.ID)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, ledger.ViolationExceedsAvailable, violations[0].Kind)
	assert.Equal(t, c.ID, violations[0].Purchase.ID)

	periods, err := f.engine.ListPeriods(ctx, f.supply.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, periods.Items, 1)
	assert.Equal(t, "-20", periods.Items[0].Consumed.String())
}

func TestEngine_Update_CannotMoveSupply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustBuy(t, 0, "10", "")

	other, err := f.engine.CreateSupply(ctx, ledger.SupplyInput{Name: "Corn", DefaultSupplierID: f.supplier.ID, Unit: "kg"})
	require.NoError(t, err)

	in := editInput(p, "10", "")
	in.SupplyID = other.ID
	_, err = f.engine.UpdatePurchase(ctx, p.ID, in)

	fe := requireFieldError(t, err, "supply_id")
	assert.Equal(t, ledger.CodeImmutable, fe.Code)
}

func TestEngine_Update_KeepsSupplierWhenOmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	farm, err := f.engine.CreateSupplier(ctx, ledger.SupplierInput{Name: "Valley Farms"})
	require.NoError(t, err)

	in := ledger.PurchaseInput{
		SupplyID: f.supply.ID, SupplierID: farm.ID, Date: day(0),
		Quantity: dec("10"), Unit: "kg", UnitPrice: dec("1"),
	}
	p, err := f.engine.AddPurchase(ctx, in)
	require.NoError(t, err)

	edit := editInput(p, "12", "")
	edit.SupplierID = ""
	updated, err := f.engine.UpdatePurchase(ctx, p.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, farm.ID, updated.SupplierID)
}

// =============================================================================
// NOT FOUND
// =============================================================================

func TestEngine_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AddPurchase(ctx, ledger.PurchaseInput{
		SupplyID: "ghost", Date: day(0), Quantity: dec("1"), Unit: "kg",
	})
	var nfErr *ledger.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "supply", nfErr.Resource)

	_, err = f.engine.AddPurchase(ctx, ledger.PurchaseInput{
		SupplyID: f.supply.ID, SupplierID: "ghost", Date: day(0), Quantity: dec("1"), Unit: "kg",
	})
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "supplier", nfErr.Resource)

	_, err = f.engine.UpdatePurchase(ctx, "ghost", ledger.PurchaseInput{})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	assert.ErrorIs(t, f.engine.DeletePurchase(ctx, "ghost"), ledger.ErrNotFound)
	assert.ErrorIs(t, f.engine.DeleteSupply(ctx, "ghost"), ledger.ErrNotFound)

	_, err = f.engine.CurrentStock(ctx, "ghost")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.engine.ListPeriods(ctx, "ghost", 0, 10)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.engine.CreateSupply(ctx, ledger.SupplyInput{Name: "Oil", DefaultSupplierID: "ghost", Unit: "L"})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestEngine_AddPurchase_RequiresSupply(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.AddPurchase(context.Background(), ledger.PurchaseInput{})

	fe := requireFieldError(t, err, "supply_id")
	assert.Equal(t, ledger.CodeRequired, fe.Code)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestEngine_SupplyLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.mustBuy(t, 0, "10", "")

	updated, err := f.engine.UpdateSupply(ctx, f.supply.ID, ledger.SupplyInput{
		Name: " Rye Flour ", DefaultSupplierID: f.supplier.ID, Unit: "kg",
	})
	require.NoError(t, err)
	assert.Equal(t, "Rye Flour", updated.Name)
	assert.Equal(t, f.supply.CreatedAt, updated.CreatedAt)

	require.NoError(t, f.engine.DeleteSupply(ctx, f.supply.ID))

	_, err = f.engine.GetPurchase(ctx, p.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound, "purchases are deleted with their supply")

	supplies, err := f.engine.ListSupplies(ctx)
	require.NoError(t, err)
	assert.Empty(t, supplies)
}

func TestEngine_CreateSupply_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateSupply(context.Background(), ledger.SupplyInput{})

	var vErr *ledger.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Fields, 3)
}

func TestEngine_CreateSupplier_RequiresName(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateSupplier(context.Background(), ledger.SupplierInput{Name: "  "})
	requireFieldError(t, err, "name")
}

// =============================================================================
// PAGINATION
// =============================================================================

func TestEngine_ListPurchases_ClampsLimit(t *testing.T) {
	f := newFixture(t, ledger.WithPageLimits(ledger.PageLimits{Default: 2, Max: 3}))
	ctx := context.Background()

	f.mustBuy(t, 0, "10", "")
	for i := 1; i < 5; i++ {
		f.mustBuy(t, i, "10", "5")
	}

	page, err := f.engine.ListPurchases(ctx, f.supply.ID, -1, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 0, page.Offset)
	assert.Equal(t, 5, page.Total)

	page, err = f.engine.ListPurchases(ctx, f.supply.ID, 0, 50)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, 3, page.Limit)

	periods, err := f.engine.ListPeriods(ctx, f.supply.ID, 3, 50)
	require.NoError(t, err)
	assert.Len(t, periods.Items, 1)
	assert.Equal(t, 4, periods.Total)
	assert.False(t, periods.HasMore())
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestEngine_ConcurrentAdds_AreSerialized(t *testing.T) {
	// GIVEN: 20 writers adding to the same chain at once
	// THEN: Every purchase gets a distinct seq and the chain stays valid

	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, 0, "100", "")

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.buy(t, 1, "1", "0")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	chain, err := f.engine.Chain(ctx, f.supply.ID)
	require.NoError(t, err)
	assert.Equal(t, writers+1, chain.Len())

	seen := make(map[int64]bool)
	for _, p := range chain.Chronological() {
		assert.False(t, seen[p.Seq], "duplicate seq %d", p.Seq)
		seen[p.Seq] = true
	}
	assert.Empty(t, ledger.CheckChain(chain))
}

// =============================================================================
// FAILURES
// =============================================================================

type failingStore struct {
	*store.Memory
	err error
}

func (s *failingStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return s.Memory.WithTx(ctx, func(st ledger.Store) error {
		return fn(failingView{Store: st, err: s.err})
	})
}

type failingView struct {
	ledger.Store
	err error
}

func (v failingView) InsertPurchase(context.Context, ledger.Purchase) error { return v.err }

func TestEngine_StorageFailure_IsWrappedAndRolledBack(t *testing.T) {
	mem := store.NewMemory()
	diskFull := errors.New("disk full")
	f := newFixtureWith(t, mem, &failingStore{Memory: mem, err: diskFull}, lock.NewKeyed())

	_, err := f.buy(t, 0, "10", "")

	assert.ErrorIs(t, err, ledger.ErrStorage)
	assert.ErrorIs(t, err, diskFull)
	var sErr *ledger.StorageError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "add_purchase", sErr.Op)

	chain, err := mem.LoadChain(context.Background(), f.supply.ID)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

type busyLocker struct{}

func (busyLocker) Lock(_ context.Context, key string) (func(), error) {
	return nil, fmt.Errorf("%w: %s", ledger.ErrLockNotObtained, key)
}

func TestEngine_LockNotObtained(t *testing.T) {
	mem := store.NewMemory()
	f := newFixtureWith(t, mem, mem, busyLocker{})

	_, err := f.buy(t, 0, "10", "")

	assert.ErrorIs(t, err, ledger.ErrLockNotObtained)
	chain, err := mem.LoadChain(context.Background(), f.supply.ID)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestEngine_LockWaitHonoursContext(t *testing.T) {
	locker := lock.NewKeyed()
	mem := store.NewMemory()
	f := newFixtureWith(t, mem, mem, locker)

	unlock, err := locker.Lock(context.Background(), "supply:"+string(f.supply.ID))
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.engine.AddPurchase(ctx, ledger.PurchaseInput{
		SupplyID: f.supply.ID, Date: day(0), Quantity: dec("1"), Unit: "kg",
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_Reset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, 0, "10", "")

	require.NoError(t, f.engine.Reset(ctx))

	suppliers, err := f.engine.ListSuppliers(ctx)
	require.NoError(t, err)
	assert.Empty(t, suppliers)
}

// plainStore hides every method but ledger.TxStore.
type plainStore struct {
	ledger.TxStore
}

func TestEngine_Reset_Unsupported(t *testing.T) {
	mem := store.NewMemory()
	f := newFixtureWith(t, mem, plainStore{TxStore: mem}, lock.NewKeyed())

	err := f.engine.Reset(context.Background())
	assert.ErrorIs(t, err, ledger.ErrStorage)
}
