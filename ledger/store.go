/*
store.go - Persistence interface for supplies, suppliers and purchases

PURPOSE:
  Defines the interface between the engine and the relational store.
  The engine owns every rule; a Store only persists and loads rows.

KEY INTERFACES:
  Store:       Catalog + purchase persistence
  TxStore:     Atomic validate-then-write (WithTx)
  ChainLocker: Serializes mutations of one supply's chain

NOT FOUND CONVENTION:
  Get* methods return (nil, nil) for a missing row. The engine turns that
  into a *NotFoundError. Errors returned by a Store are always storage
  failures.

ATOMICITY:
  Each purchase mutation runs as:

    locker.Lock(supply) -> WithTx(load chain, validate, write) -> unlock

  so two edits of the same chain can never both validate against the same
  stale snapshot. Different supplies use different locks.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - ledger/store/memory.go: In-memory for tests and development

SEE ALSO:
  - engine.go: The only caller
  - lock/:     ChainLocker implementations
*/
package ledger

import "context"

// Store persists the catalog and the purchase chains.
type Store interface {
	// Suppliers
	SaveSupplier(ctx context.Context, s Supplier) error
	GetSupplier(ctx context.Context, id SupplierID) (*Supplier, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)

	// Supplies. SaveSupply inserts or updates by id.
	SaveSupply(ctx context.Context, s Supply) error
	GetSupply(ctx context.Context, id SupplyID) (*Supply, error)
	ListSupplies(ctx context.Context) ([]Supply, error)
	// DeleteSupply removes the supply and all of its purchases.
	DeleteSupply(ctx context.Context, id SupplyID) error

	// Purchases
	InsertPurchase(ctx context.Context, p Purchase) error
	UpdatePurchase(ctx context.Context, p Purchase) error
	DeletePurchase(ctx context.Context, id PurchaseID) error
	GetPurchase(ctx context.Context, id PurchaseID) (*Purchase, error)

	// LoadChain returns every purchase of a supply ordered by (date, seq) ascending.
	LoadChain(ctx context.Context, supplyID SupplyID) ([]Purchase, error)

	// ListPurchases returns one page ordered by (date, seq) descending and the
	// total number of purchases of the supply.
	ListPurchases(ctx context.Context, supplyID SupplyID, offset, limit int) ([]Purchase, int, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Resetter is implemented by stores that can be wiped (demo scenarios).
type Resetter interface {
	Reset(ctx context.Context) error
}

// ChainLocker serializes chain mutations per key.
type ChainLocker interface {
	// Lock blocks until key is held or ctx is done. The returned func
	// releases the lock.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
