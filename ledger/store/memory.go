// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/supply-ledger/ledger"
)

var (
	_ ledger.TxStore  = (*Memory)(nil)
	_ ledger.Resetter = (*Memory)(nil)
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps each supply's purchases in a slice sorted by (date, seq).
type Memory struct {
	mu        sync.RWMutex
	suppliers map[ledger.SupplierID]ledger.Supplier
	supplies  map[ledger.SupplyID]ledger.Supply
	chains    map[ledger.SupplyID][]ledger.Purchase
	index     map[ledger.PurchaseID]ledger.SupplyID
}

func NewMemory() *Memory {
	m := &Memory{}
	m.clear()
	return m
}

func (m *Memory) clear() {
	m.suppliers = make(map[ledger.SupplierID]ledger.Supplier)
	m.supplies = make(map[ledger.SupplyID]ledger.Supply)
	m.chains = make(map[ledger.SupplyID][]ledger.Purchase)
	m.index = make(map[ledger.PurchaseID]ledger.SupplyID)
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
	return nil
}

// WithTx runs fn against the store while holding the write lock.
// A snapshot taken before fn is restored if fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&memoryView{m: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// =============================================================================
// ledger.Store - each method locks, then delegates to the *Locked variant
// =============================================================================

func (m *Memory) SaveSupplier(_ context.Context, s ledger.Supplier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppliers[s.ID] = s
	return nil
}

func (m *Memory) GetSupplier(_ context.Context, id ledger.SupplierID) (*ledger.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSupplierLocked(id), nil
}

func (m *Memory) ListSuppliers(_ context.Context) ([]ledger.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSuppliersLocked(), nil
}

func (m *Memory) SaveSupply(_ context.Context, s ledger.Supply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supplies[s.ID] = s
	return nil
}

func (m *Memory) GetSupply(_ context.Context, id ledger.SupplyID) (*ledger.Supply, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSupplyLocked(id), nil
}

func (m *Memory) ListSupplies(_ context.Context) ([]ledger.Supply, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSuppliesLocked(), nil
}

func (m *Memory) DeleteSupply(_ context.Context, id ledger.SupplyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteSupplyLocked(id)
	return nil
}

func (m *Memory) InsertPurchase(_ context.Context, p ledger.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(p)
}

func (m *Memory) UpdatePurchase(_ context.Context, p ledger.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(p)
}

func (m *Memory) DeletePurchase(_ context.Context, id ledger.PurchaseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletePurchaseLocked(id)
	return nil
}

func (m *Memory) GetPurchase(_ context.Context, id ledger.PurchaseID) (*ledger.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPurchaseLocked(id), nil
}

func (m *Memory) LoadChain(_ context.Context, supplyID ledger.SupplyID) ([]ledger.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadChainLocked(supplyID), nil
}

func (m *Memory) ListPurchases(_ context.Context, supplyID ledger.SupplyID, offset, limit int) ([]ledger.Purchase, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	page := ledger.PurchasePage(ledger.NewChain(supplyID, m.chains[supplyID]), offset, limit)
	return page.Items, page.Total, nil
}

// =============================================================================
// LOCKED HELPERS
// =============================================================================

func (m *Memory) getSupplierLocked(id ledger.SupplierID) *ledger.Supplier {
	s, ok := m.suppliers[id]
	if !ok {
		return nil
	}
	return &s
}

func (m *Memory) listSuppliersLocked() []ledger.Supplier {
	out := make([]ledger.Supplier, 0, len(m.suppliers))
	for _, s := range m.suppliers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Memory) getSupplyLocked(id ledger.SupplyID) *ledger.Supply {
	s, ok := m.supplies[id]
	if !ok {
		return nil
	}
	return &s
}

func (m *Memory) listSuppliesLocked() []ledger.Supply {
	out := make([]ledger.Supply, 0, len(m.supplies))
	for _, s := range m.supplies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Memory) deleteSupplyLocked(id ledger.SupplyID) {
	for _, p := range m.chains[id] {
		delete(m.index, p.ID)
	}
	delete(m.chains, id)
	delete(m.supplies, id)
}

func (m *Memory) insertLocked(p ledger.Purchase) error {
	if _, exists := m.index[p.ID]; exists {
		return fmt.Errorf("purchase %s already exists", p.ID)
	}
	txs := m.chains[p.SupplyID]

	// Binary search for insertion point
	i := sort.Search(len(txs), func(i int) bool {
		return after(txs[i], p)
	})

	txs = append(txs, ledger.Purchase{})
	copy(txs[i+1:], txs[i:])
	txs[i] = p
	m.chains[p.SupplyID] = txs
	m.index[p.ID] = p.SupplyID
	return nil
}

func (m *Memory) updateLocked(p ledger.Purchase) error {
	if _, exists := m.index[p.ID]; !exists {
		return fmt.Errorf("purchase %s does not exist", p.ID)
	}
	m.deletePurchaseLocked(p.ID)
	return m.insertLocked(p)
}

func (m *Memory) deletePurchaseLocked(id ledger.PurchaseID) {
	supplyID, ok := m.index[id]
	if !ok {
		return
	}
	txs := m.chains[supplyID]
	for i, p := range txs {
		if p.ID == id {
			m.chains[supplyID] = append(txs[:i:i], txs[i+1:]...)
			break
		}
	}
	delete(m.index, id)
}

func (m *Memory) getPurchaseLocked(id ledger.PurchaseID) *ledger.Purchase {
	supplyID, ok := m.index[id]
	if !ok {
		return nil
	}
	for _, p := range m.chains[supplyID] {
		if p.ID == id {
			return &p
		}
	}
	return nil
}

func (m *Memory) loadChainLocked(supplyID ledger.SupplyID) []ledger.Purchase {
	result := make([]ledger.Purchase, len(m.chains[supplyID]))
	copy(result, m.chains[supplyID])
	return result
}

// after reports whether a sorts strictly after b by (date, seq).
func after(a, b ledger.Purchase) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.Seq > b.Seq
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback on error
// =============================================================================

type memorySnapshot struct {
	suppliers map[ledger.SupplierID]ledger.Supplier
	supplies  map[ledger.SupplyID]ledger.Supply
	chains    map[ledger.SupplyID][]ledger.Purchase
	index     map[ledger.PurchaseID]ledger.SupplyID
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		suppliers: make(map[ledger.SupplierID]ledger.Supplier, len(m.suppliers)),
		supplies:  make(map[ledger.SupplyID]ledger.Supply, len(m.supplies)),
		chains:    make(map[ledger.SupplyID][]ledger.Purchase, len(m.chains)),
		index:     make(map[ledger.PurchaseID]ledger.SupplyID, len(m.index)),
	}
	for k, v := range m.suppliers {
		s.suppliers[k] = v
	}
	for k, v := range m.supplies {
		s.supplies[k] = v
	}
	for k, v := range m.chains {
		s.chains[k] = append([]ledger.Purchase{}, v...)
	}
	for k, v := range m.index {
		s.index[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.suppliers = s.suppliers
	m.supplies = s.supplies
	m.chains = s.chains
	m.index = s.index
}

// memoryView is the ledger.Store handed to WithTx callbacks. The parent's
// write lock is already held.
type memoryView struct {
	m *Memory
}

func (v *memoryView) SaveSupplier(_ context.Context, s ledger.Supplier) error {
	v.m.suppliers[s.ID] = s
	return nil
}

func (v *memoryView) GetSupplier(_ context.Context, id ledger.SupplierID) (*ledger.Supplier, error) {
	return v.m.getSupplierLocked(id), nil
}

func (v *memoryView) ListSuppliers(_ context.Context) ([]ledger.Supplier, error) {
	return v.m.listSuppliersLocked(), nil
}

func (v *memoryView) SaveSupply(_ context.Context, s ledger.Supply) error {
	v.m.supplies[s.ID] = s
	return nil
}

func (v *memoryView) GetSupply(_ context.Context, id ledger.SupplyID) (*ledger.Supply, error) {
	return v.m.getSupplyLocked(id), nil
}

func (v *memoryView) ListSupplies(_ context.Context) ([]ledger.Supply, error) {
	return v.m.listSuppliesLocked(), nil
}

func (v *memoryView) DeleteSupply(_ context.Context, id ledger.SupplyID) error {
	v.m.deleteSupplyLocked(id)
	return nil
}

func (v *memoryView) InsertPurchase(_ context.Context, p ledger.Purchase) error {
	return v.m.insertLocked(p)
}

func (v *memoryView) UpdatePurchase(_ context.Context, p ledger.Purchase) error {
	return v.m.updateLocked(p)
}

func (v *memoryView) DeletePurchase(_ context.Context, id ledger.PurchaseID) error {
	v.m.deletePurchaseLocked(id)
	return nil
}

func (v *memoryView) GetPurchase(_ context.Context, id ledger.PurchaseID) (*ledger.Purchase, error) {
	return v.m.getPurchaseLocked(id), nil
}

func (v *memoryView) LoadChain(_ context.Context, supplyID ledger.SupplyID) ([]ledger.Purchase, error) {
	return v.m.loadChainLocked(supplyID), nil
}

func (v *memoryView) ListPurchases(_ context.Context, supplyID ledger.SupplyID, offset, limit int) ([]ledger.Purchase, int, error) {
	page := ledger.PurchasePage(ledger.NewChain(supplyID, v.m.chains[supplyID]), offset, limit)
	return page.Items, page.Total, nil
}
