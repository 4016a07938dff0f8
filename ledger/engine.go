/*
engine.go - Public operations of the supply purchase ledger

PURPOSE:
  Engine is the only way to mutate a purchase chain. Every mutation is:

    1. Lock the supply's chain (ChainLocker)
    2. Open a store transaction
    3. Load the chain, validate the candidate against it
    4. Write, commit, unlock

  Reads (stock, purchase and period pages, integrity) take no chain lock.

ERRORS:
  Every returned error is one of:
    *ValidationError (ErrValidation) - user-correctable, nothing written
    *NotFoundError   (ErrNotFound)   - missing supply/purchase/supplier
    *StorageError    (ErrStorage)    - logged, transaction rolled back
  plus ErrLockNotObtained / context errors while waiting for a lock.

DELETES:
  DeletePurchase is unconditional: neighbours are not revalidated. Use
  CheckChain to list purchases a delete left out of bounds.

SEE ALSO:
  - validator.go: Carry-forward rules
  - period.go:    Period derivation
  - store.go:     Store/TxStore/ChainLocker
*/
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Engine runs validated operations against a TxStore.
type Engine struct {
	store     TxStore
	locker    ChainLocker
	log       *logrus.Logger
	validator ConsumptionValidator
	limits    PageLimits
	now       func() time.Time
	newID     func() string
}

type Option func(*Engine)

// WithPageLimits overrides the default/max page sizes.
func WithPageLimits(l PageLimits) Option { return func(e *Engine) { e.limits = l } }

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDGenerator overrides id generation.
func WithIDGenerator(gen func() string) Option { return func(e *Engine) { e.newID = gen } }

func NewEngine(store TxStore, locker ChainLocker, log *logrus.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		locker: locker,
		log:    log,
		limits: DefaultPageLimits,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Limits returns the page limits in use.
func (e *Engine) Limits() PageLimits { return e.limits }

// =============================================================================
// SUPPLIERS
// =============================================================================

type SupplierInput struct {
	Name  string
	Notes string
}

func (e *Engine) CreateSupplier(ctx context.Context, in SupplierInput) (*Supplier, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewFieldError("name", CodeRequired, "name is required")
	}

	now := e.now()
	s := Supplier{ID: SupplierID(e.newID()), Name: name, Notes: in.Notes, CreatedAt: now, UpdatedAt: now}
	if err := e.store.SaveSupplier(ctx, s); err != nil {
		return nil, e.storageErr("create_supplier", err, logrus.Fields{"supplier_id": s.ID})
	}
	return &s, nil
}

func (e *Engine) GetSupplier(ctx context.Context, id SupplierID) (*Supplier, error) {
	return e.requireSupplier(ctx, e.store, id, "id")
}

func (e *Engine) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	suppliers, err := e.store.ListSuppliers(ctx)
	if err != nil {
		return nil, e.storageErr("list_suppliers", err, nil)
	}
	return suppliers, nil
}

// =============================================================================
// SUPPLIES
// =============================================================================

type SupplyInput struct {
	Name              string
	DefaultSupplierID SupplierID
	Unit              string
}

func (in SupplyInput) validate() *ValidationError {
	verr := &ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		verr.Add(FieldError{Field: "name", Code: CodeRequired, Message: "name is required"})
	}
	if in.DefaultSupplierID == "" {
		verr.Add(FieldError{Field: "default_supplier_id", Code: CodeRequired, Message: "default supplier is required"})
	}
	if strings.TrimSpace(in.Unit) == "" {
		verr.Add(FieldError{Field: "unit", Code: CodeRequired, Message: "unit is required"})
	}
	return verr
}

// CreateSupply registers a new supply with an empty chain.
func (e *Engine) CreateSupply(ctx context.Context, in SupplyInput) (*Supply, error) {
	if err := in.validate().OrNil(); err != nil {
		return nil, err
	}

	now := e.now()
	s := Supply{
		ID:                SupplyID(e.newID()),
		Name:              strings.TrimSpace(in.Name),
		DefaultSupplierID: in.DefaultSupplierID,
		Unit:              strings.TrimSpace(in.Unit),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := e.store.WithTx(ctx, func(st Store) error {
		if _, err := e.requireSupplier(ctx, st, in.DefaultSupplierID, "default_supplier_id"); err != nil {
			return err
		}
		if err := st.SaveSupply(ctx, s); err != nil {
			return e.storageErr("create_supply", err, logrus.Fields{"supply_id": s.ID})
		}
		return nil
	})
	if err != nil {
		return nil, e.txErr("create_supply", err)
	}

	e.log.WithFields(logrus.Fields{"module": "ledger", "supply_id": s.ID, "name": s.Name}).Debug("supply created")
	return &s, nil
}

// UpdateSupply renames a supply or changes its default supplier/unit.
func (e *Engine) UpdateSupply(ctx context.Context, id SupplyID, in SupplyInput) (*Supply, error) {
	if err := in.validate().OrNil(); err != nil {
		return nil, err
	}

	var updated Supply
	err := e.store.WithTx(ctx, func(st Store) error {
		s, err := e.requireSupply(ctx, st, id)
		if err != nil {
			return err
		}
		if _, err := e.requireSupplier(ctx, st, in.DefaultSupplierID, "default_supplier_id"); err != nil {
			return err
		}
		s.Name = strings.TrimSpace(in.Name)
		s.DefaultSupplierID = in.DefaultSupplierID
		s.Unit = strings.TrimSpace(in.Unit)
		s.UpdatedAt = e.now()
		if err := st.SaveSupply(ctx, *s); err != nil {
			return e.storageErr("update_supply", err, logrus.Fields{"supply_id": id})
		}
		updated = *s
		return nil
	})
	if err != nil {
		return nil, e.txErr("update_supply", err)
	}
	return &updated, nil
}

// DeleteSupply removes the supply and all of its purchases.
func (e *Engine) DeleteSupply(ctx context.Context, id SupplyID) error {
	unlock, err := e.lockChain(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	err = e.store.WithTx(ctx, func(st Store) error {
		if _, err := e.requireSupply(ctx, st, id); err != nil {
			return err
		}
		if err := st.DeleteSupply(ctx, id); err != nil {
			return e.storageErr("delete_supply", err, logrus.Fields{"supply_id": id})
		}
		return nil
	})
	return e.txErr("delete_supply", err)
}

func (e *Engine) GetSupply(ctx context.Context, id SupplyID) (*Supply, error) {
	return e.requireSupply(ctx, e.store, id)
}

func (e *Engine) ListSupplies(ctx context.Context) ([]Supply, error) {
	supplies, err := e.store.ListSupplies(ctx)
	if err != nil {
		return nil, e.storageErr("list_supplies", err, nil)
	}
	return supplies, nil
}

// =============================================================================
// PURCHASES - Validated chain mutations
// =============================================================================

// AddPurchase validates in against the supply's chain and appends it.
// An empty SupplierID means the supply's default supplier.
// A purchase dated before every existing one becomes the new oldest and its
// remaining is forced to zero.
func (e *Engine) AddPurchase(ctx context.Context, in PurchaseInput) (*Purchase, error) {
	if in.SupplyID == "" {
		return nil, NewFieldError("supply_id", CodeRequired, "supply is required")
	}

	unlock, err := e.lockChain(ctx, in.SupplyID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var saved Purchase
	err = e.store.WithTx(ctx, func(st Store) error {
		supply, err := e.requireSupply(ctx, st, in.SupplyID)
		if err != nil {
			return err
		}
		if in.SupplierID == "" {
			in.SupplierID = supply.DefaultSupplierID
		}
		if _, err := e.requireSupplier(ctx, st, in.SupplierID, "supplier_id"); err != nil {
			return err
		}
		chain, err := e.loadChain(ctx, st, in.SupplyID)
		if err != nil {
			return err
		}

		now := e.now()
		base := Purchase{
			ID:        PurchaseID(e.newID()),
			SupplyID:  in.SupplyID,
			Seq:       chain.NextSeq(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		p, err := e.validator.Validate(chain, base, in)
		if err != nil {
			return err
		}
		if err := st.InsertPurchase(ctx, p); err != nil {
			return e.storageErr("add_purchase", err, logrus.Fields{"supply_id": in.SupplyID, "purchase_id": p.ID})
		}
		saved = p
		return nil
	})
	if err != nil {
		return nil, e.txErr("add_purchase", err)
	}

	e.logMutation("purchase added", saved)
	return &saved, nil
}

// UpdatePurchase edits a purchase anywhere in its chain. The purchase keeps
// its supply and seq. An empty SupplierID keeps the current supplier.
// Successors are not rewritten.
func (e *Engine) UpdatePurchase(ctx context.Context, id PurchaseID, in PurchaseInput) (*Purchase, error) {
	current, err := e.requirePurchase(ctx, e.store, id)
	if err != nil {
		return nil, err
	}
	if in.SupplyID != "" && in.SupplyID != current.SupplyID {
		return nil, NewFieldError("supply_id", CodeImmutable, "a purchase cannot move to another supply")
	}
	in.SupplyID = current.SupplyID

	unlock, err := e.lockChain(ctx, current.SupplyID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var saved Purchase
	err = e.store.WithTx(ctx, func(st Store) error {
		// reload under the lock: the purchase may have been deleted meanwhile
		base, err := e.requirePurchase(ctx, st, id)
		if err != nil {
			return err
		}
		if in.SupplierID == "" {
			in.SupplierID = base.SupplierID
		}
		if _, err := e.requireSupplier(ctx, st, in.SupplierID, "supplier_id"); err != nil {
			return err
		}
		chain, err := e.loadChain(ctx, st, base.SupplyID)
		if err != nil {
			return err
		}

		base.UpdatedAt = e.now()
		p, err := e.validator.Validate(chain, *base, in)
		if err != nil {
			return err
		}
		if err := st.UpdatePurchase(ctx, p); err != nil {
			return e.storageErr("update_purchase", err, logrus.Fields{"supply_id": p.SupplyID, "purchase_id": p.ID})
		}
		saved = p
		return nil
	})
	if err != nil {
		return nil, e.txErr("update_purchase", err)
	}

	e.logMutation("purchase updated", saved)
	return &saved, nil
}

// DeletePurchase removes a purchase unconditionally. Neighbours keep their
// stored remaining even if it now exceeds the new predecessor's availability.
func (e *Engine) DeletePurchase(ctx context.Context, id PurchaseID) error {
	current, err := e.requirePurchase(ctx, e.store, id)
	if err != nil {
		return err
	}

	unlock, err := e.lockChain(ctx, current.SupplyID)
	if err != nil {
		return err
	}
	defer unlock()

	err = e.store.WithTx(ctx, func(st Store) error {
		if _, err := e.requirePurchase(ctx, st, id); err != nil {
			return err
		}
		if err := st.DeletePurchase(ctx, id); err != nil {
			return e.storageErr("delete_purchase", err, logrus.Fields{"supply_id": current.SupplyID, "purchase_id": id})
		}
		return nil
	})
	if err != nil {
		return e.txErr("delete_purchase", err)
	}

	e.logMutation("purchase deleted", *current)
	return nil
}

func (e *Engine) GetPurchase(ctx context.Context, id PurchaseID) (*Purchase, error) {
	return e.requirePurchase(ctx, e.store, id)
}

// =============================================================================
// READ SIDE - Stock, pages, integrity
// =============================================================================

// Chain loads the supply's chain snapshot.
func (e *Engine) Chain(ctx context.Context, supplyID SupplyID) (*Chain, error) {
	if _, err := e.requireSupply(ctx, e.store, supplyID); err != nil {
		return nil, err
	}
	return e.loadChain(ctx, e.store, supplyID)
}

// StockLevel is the current stock of one supply.
type StockLevel struct {
	Supply   Supply
	Quantity decimal.Decimal
	// AsOf is the date of the newest purchase, zero when there is none.
	AsOf      Date
	Purchases int
}

// Stock loads the supply and its chain once and derives the current stock.
func (e *Engine) Stock(ctx context.Context, supplyID SupplyID) (*StockLevel, error) {
	supply, err := e.requireSupply(ctx, e.store, supplyID)
	if err != nil {
		return nil, err
	}
	chain, err := e.loadChain(ctx, e.store, supplyID)
	if err != nil {
		return nil, err
	}

	level := &StockLevel{Supply: *supply, Quantity: CurrentStock(chain), Purchases: chain.Len()}
	if newest, ok := chain.Newest(); ok {
		level.AsOf = newest.Date
	}
	return level, nil
}

// CurrentStock is the total available at the newest purchase; zero if none.
func (e *Engine) CurrentStock(ctx context.Context, supplyID SupplyID) (decimal.Decimal, error) {
	level, err := e.Stock(ctx, supplyID)
	if err != nil {
		return decimal.Zero, err
	}
	return level.Quantity, nil
}

// ListPurchases returns purchase history newest first.
func (e *Engine) ListPurchases(ctx context.Context, supplyID SupplyID, offset, limit int) (Page[Purchase], error) {
	if _, err := e.requireSupply(ctx, e.store, supplyID); err != nil {
		return Page[Purchase]{}, err
	}
	offset, limit = e.limits.Normalize(offset, limit)

	items, total, err := e.store.ListPurchases(ctx, supplyID, offset, limit)
	if err != nil {
		return Page[Purchase]{}, e.storageErr("list_purchases", err, logrus.Fields{"supply_id": supplyID})
	}
	if items == nil {
		items = []Purchase{}
	}
	return Page[Purchase]{Items: items, Total: total, Offset: offset, Limit: limit}, nil
}

// ListPeriods returns derived consumption periods newest first.
func (e *Engine) ListPeriods(ctx context.Context, supplyID SupplyID, offset, limit int) (Page[Period], error) {
	chain, err := e.Chain(ctx, supplyID)
	if err != nil {
		return Page[Period]{}, err
	}
	offset, limit = e.limits.Normalize(offset, limit)
	return PeriodPage(chain, offset, limit), nil
}

// CheckChain reports stored invariant violations of the supply's chain.
func (e *Engine) CheckChain(ctx context.Context, supplyID SupplyID) ([]Violation, error) {
	chain, err := e.Chain(ctx, supplyID)
	if err != nil {
		return nil, err
	}
	return CheckChain(chain), nil
}

// Reset wipes the store when it supports it.
func (e *Engine) Reset(ctx context.Context) error {
	r, ok := e.store.(Resetter)
	if !ok {
		return &StorageError{Op: "reset", Err: errors.New("store does not support reset")}
	}
	if err := r.Reset(ctx); err != nil {
		return e.storageErr("reset", err, nil)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) lockChain(ctx context.Context, supplyID SupplyID) (func(), error) {
	unlock, err := e.locker.Lock(ctx, "supply:"+string(supplyID))
	if err != nil {
		e.log.WithFields(logrus.Fields{"module": "ledger", "supply_id": supplyID}).Warn("chain lock failed: " + err.Error())
		return nil, err
	}
	return unlock, nil
}

func (e *Engine) loadChain(ctx context.Context, st Store, supplyID SupplyID) (*Chain, error) {
	purchases, err := st.LoadChain(ctx, supplyID)
	if err != nil {
		return nil, e.storageErr("load_chain", err, logrus.Fields{"supply_id": supplyID})
	}
	return NewChain(supplyID, purchases), nil
}

func (e *Engine) requireSupply(ctx context.Context, st Store, id SupplyID) (*Supply, error) {
	s, err := st.GetSupply(ctx, id)
	if err != nil {
		return nil, e.storageErr("get_supply", err, logrus.Fields{"supply_id": id})
	}
	if s == nil {
		return nil, &NotFoundError{Resource: "supply", ID: string(id)}
	}
	return s, nil
}

func (e *Engine) requireSupplier(ctx context.Context, st Store, id SupplierID, field string) (*Supplier, error) {
	s, err := st.GetSupplier(ctx, id)
	if err != nil {
		return nil, e.storageErr("get_supplier", err, logrus.Fields{"supplier_id": id, "field": field})
	}
	if s == nil {
		return nil, &NotFoundError{Resource: "supplier", ID: string(id)}
	}
	return s, nil
}

func (e *Engine) requirePurchase(ctx context.Context, st Store, id PurchaseID) (*Purchase, error) {
	p, err := st.GetPurchase(ctx, id)
	if err != nil {
		return nil, e.storageErr("get_purchase", err, logrus.Fields{"purchase_id": id})
	}
	if p == nil {
		return nil, &NotFoundError{Resource: "purchase", ID: string(id)}
	}
	return p, nil
}

// storageErr logs a store failure and wraps it.
func (e *Engine) storageErr(op string, err error, fields logrus.Fields) error {
	entry := e.log.WithFields(logrus.Fields{"module": "ledger", "op": op})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Error(err.Error())
	return &StorageError{Op: op, Err: err}
}

// txErr passes typed errors through and wraps anything else (commit failures).
func (e *Engine) txErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsNotFound(err) || IsStorage(err) {
		return err
	}
	return e.storageErr(op, err, nil)
}

func (e *Engine) logMutation(msg string, p Purchase) {
	e.log.WithFields(logrus.Fields{
		"module":      "ledger",
		"supply_id":   p.SupplyID,
		"purchase_id": p.ID,
		"date":        p.Date.String(),
		"quantity":    p.Quantity.String(),
		"remaining":   p.Remaining.String(),
	}).Debug(msg)
}
