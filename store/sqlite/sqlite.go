/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists suppliers, supplies and purchase chains. In production the same
  schema maps onto PostgreSQL with minor dialect differences.

KEY TABLES:
  suppliers: Vendors
  supplies:  Raw materials (name, default supplier, unit)
  purchases: The ledger. One row per purchase, carrying `remaining`.

  There is deliberately no consumption table: consumption is derived from
  adjacent purchases on read and can never drift from the ledger.

ORDERING:
  A chain is ordered by (purchase_date, seq). seq is unique per supply and
  assigned by the engine at insert, so same-day purchases keep insertion
  order. Dates are stored as YYYY-MM-DD text and sort lexically.

DECIMALS:
  Quantities and prices are stored as decimal strings, never REAL.

INDEXES:
  - idx_purchases_supply_chain: chain loads and pages (hot path)
  - UNIQUE(supply_id, seq):     same-day tie-breaker stays total

CONCURRENCY:
  One connection (SQLite has a single writer anyway). WithTx holds a mutex
  for the duration of the transaction; the engine additionally serializes
  mutations per supply with a ChainLocker.

USAGE:
  store, err := sqlite.New("./data/supplies.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store, lock.NewKeyed(), logger)

SEE ALSO:
  - ledger/store.go:        Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/supply-ledger/ledger"
)

var (
	_ ledger.TxStore  = (*Store)(nil)
	_ ledger.Resetter = (*Store)(nil)
)

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate record")

// Store implements ledger.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
	mu sync.Mutex
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS supplies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		default_supplier_id TEXT NOT NULL REFERENCES suppliers(id),
		unit TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Purchases (the ledger)
	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		supply_id TEXT NOT NULL REFERENCES supplies(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		supplier_id TEXT NOT NULL REFERENCES suppliers(id),
		purchase_date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		total_price TEXT NOT NULL,
		remaining TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(supply_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_supply_chain
		ON purchases(supply_id, purchase_date, seq);
	CREATE INDEX IF NOT EXISTS idx_purchases_supplier
		ON purchases(supplier_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// DeleteSupply removes a supply and its purchases atomically.
func (s *Store) DeleteSupply(ctx context.Context, id ledger.SupplyID) error {
	return s.WithTx(ctx, func(st ledger.Store) error {
		return st.DeleteSupply(ctx, id)
	})
}

// Reset deletes all data (demo scenarios only).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"purchases", "supplies", "suppliers"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// QUERIES - ledger.Store over a *sql.DB or a *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

// =============================================================================
// SUPPLIERS
// =============================================================================

func (r *queries) SaveSupplier(ctx context.Context, s ledger.Supplier) error {
	query := `
		INSERT INTO suppliers (id, name, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`
	_, err := r.q.ExecContext(ctx, query,
		s.ID, s.Name, s.Notes, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save supplier: %w", err)
	}
	return nil
}

func (r *queries) GetSupplier(ctx context.Context, id ledger.SupplierID) (*ledger.Supplier, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT id, name, notes, created_at, updated_at FROM suppliers WHERE id = ?`, id)

	s, err := scanSupplier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get supplier: %w", err)
	}
	return s, nil
}

func (r *queries) ListSuppliers(ctx context.Context) ([]ledger.Supplier, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, notes, created_at, updated_at FROM suppliers ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	defer rows.Close()

	out := []ledger.Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan supplier: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// =============================================================================
// SUPPLIES
// =============================================================================

func (r *queries) SaveSupply(ctx context.Context, s ledger.Supply) error {
	query := `
		INSERT INTO supplies (id, name, default_supplier_id, unit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			default_supplier_id = excluded.default_supplier_id,
			unit = excluded.unit,
			updated_at = excluded.updated_at
	`
	_, err := r.q.ExecContext(ctx, query,
		s.ID, s.Name, s.DefaultSupplierID, s.Unit, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save supply: %w", err)
	}
	return nil
}

func (r *queries) GetSupply(ctx context.Context, id ledger.SupplyID) (*ledger.Supply, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, name, default_supplier_id, unit, created_at, updated_at
		FROM supplies WHERE id = ?`, id)

	s, err := scanSupply(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get supply: %w", err)
	}
	return s, nil
}

func (r *queries) ListSupplies(ctx context.Context) ([]ledger.Supply, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, default_supplier_id, unit, created_at, updated_at
		FROM supplies ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list supplies: %w", err)
	}
	defer rows.Close()

	out := []ledger.Supply{}
	for rows.Next() {
		s, err := scanSupply(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan supply: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// DeleteSupply removes purchases explicitly so the delete does not depend
// on the foreign_keys pragma.
func (r *queries) DeleteSupply(ctx context.Context, id ledger.SupplyID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM purchases WHERE supply_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete purchases of supply: %w", err)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM supplies WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete supply: %w", err)
	}
	return nil
}

// =============================================================================
// PURCHASES
// =============================================================================

const purchaseColumns = `
	id, supply_id, seq, supplier_id, purchase_date, quantity, unit,
	unit_price, total_price, remaining, notes, created_at, updated_at`

func (r *queries) InsertPurchase(ctx context.Context, p ledger.Purchase) error {
	query := `INSERT INTO purchases (` + purchaseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.q.ExecContext(ctx, query,
		p.ID,
		p.SupplyID,
		p.Seq,
		p.SupplierID,
		p.Date.String(),
		p.Quantity.String(),
		p.Unit,
		p.UnitPrice.String(),
		p.TotalPrice.String(),
		p.Remaining.String(),
		p.Notes,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("purchase %s: %w", p.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

// UpdatePurchase rewrites the editable columns. supply_id, seq and
// created_at never change.
func (r *queries) UpdatePurchase(ctx context.Context, p ledger.Purchase) error {
	query := `
		UPDATE purchases SET
			supplier_id = ?, purchase_date = ?, quantity = ?, unit = ?,
			unit_price = ?, total_price = ?, remaining = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.q.ExecContext(ctx, query,
		p.SupplierID,
		p.Date.String(),
		p.Quantity.String(),
		p.Unit,
		p.UnitPrice.String(),
		p.TotalPrice.String(),
		p.Remaining.String(),
		p.Notes,
		formatTime(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update purchase: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update purchase %s: %w", p.ID, sql.ErrNoRows)
	}
	return nil
}

func (r *queries) DeletePurchase(ctx context.Context, id ledger.PurchaseID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM purchases WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete purchase: %w", err)
	}
	return nil
}

func (r *queries) GetPurchase(ctx context.Context, id ledger.PurchaseID) (*ledger.Purchase, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id)

	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return p, nil
}

// LoadChain returns a supply's purchases oldest first.
func (r *queries) LoadChain(ctx context.Context, supplyID ledger.SupplyID) ([]ledger.Purchase, error) {
	query := `SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE supply_id = ?
		ORDER BY purchase_date ASC, seq ASC`

	return r.queryPurchases(ctx, query, supplyID)
}

// ListPurchases returns one page newest first plus the total count.
func (r *queries) ListPurchases(ctx context.Context, supplyID ledger.SupplyID, offset, limit int) ([]ledger.Purchase, int, error) {
	var total int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purchases WHERE supply_id = ?`, supplyID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count purchases: %w", err)
	}

	query := `SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE supply_id = ?
		ORDER BY purchase_date DESC, seq DESC
		LIMIT ? OFFSET ?`

	purchases, err := r.queryPurchases(ctx, query, supplyID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return purchases, total, nil
}

func (r *queries) queryPurchases(ctx context.Context, query string, args ...any) ([]ledger.Purchase, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	out := []ledger.Purchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanSupplier(row scanner) (*ledger.Supplier, error) {
	var (
		s                    ledger.Supplier
		createdAt, updatedAt string
	)
	err := row.Scan(&s.ID, &s.Name, &s.Notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if s.CreatedAt, s.UpdatedAt, err = parseTimestamps(createdAt, updatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", s.ID, err)
	}
	return &s, nil
}

func scanSupply(row scanner) (*ledger.Supply, error) {
	var (
		s                    ledger.Supply
		createdAt, updatedAt string
	)
	err := row.Scan(&s.ID, &s.Name, &s.DefaultSupplierID, &s.Unit, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if s.CreatedAt, s.UpdatedAt, err = parseTimestamps(createdAt, updatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", s.ID, err)
	}
	return &s, nil
}

func scanPurchase(row scanner) (*ledger.Purchase, error) {
	var (
		p                                          ledger.Purchase
		date, quantity, unitPrice, total, remaining string
		createdAt, updatedAt                        string
	)
	err := row.Scan(
		&p.ID, &p.SupplyID, &p.Seq, &p.SupplierID, &date, &quantity, &p.Unit,
		&unitPrice, &total, &remaining, &p.Notes, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.Date, err = ledger.ParseDate(date); err != nil {
		return nil, fmt.Errorf("purchase %s: bad purchase_date %q: %w", p.ID, date, err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.Quantity, quantity},
		{&p.UnitPrice, unitPrice},
		{&p.TotalPrice, total},
		{&p.Remaining, remaining},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("purchase %s: bad decimal %q: %w", p.ID, f.src, err)
		}
	}
	if p.CreatedAt, p.UpdatedAt, err = parseTimestamps(createdAt, updatedAt); err != nil {
		return nil, fmt.Errorf("purchase %s: %w", p.ID, err)
	}
	return &p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamps(createdAt, updatedAt string) (time.Time, time.Time, error) {
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad updated_at %q: %w", updatedAt, err)
	}
	return created, updated, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
