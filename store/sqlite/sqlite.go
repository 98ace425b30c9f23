/*
Package sqlite provides the SQLite-backed implementation of inventory.TxStore.

PURPOSE:
  Persists parts, the inventory ledger, payables, expenses and the audit
  log. The same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements touch inventory_transactions
  - Corrections happen via reversal entries only

COUNTER INVARIANTS:
  Part counters are updated through a single conditional UPDATE
  (WHERE on_hand_qty + delta >= 0), with CHECK constraints as the final
  backstop. A counter can never be observed negative.

IDEMPOTENCY:
  idempotency_key carries a unique partial index, so key uniqueness is
  enforced by the database itself: two concurrent retries of the same
  request collapse to one row and the loser gets
  inventory.ErrDuplicateIdempotencyKey.

CONCURRENCY:
  WithTx serializes writers with a mutex around a database transaction.
  With PostgreSQL, row locking (SELECT ... FOR UPDATE) would take over
  that role.

WAL MODE:
  SQLite is opened with WAL so readers don't block behind the writer.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - inventory/store.go: Interface definitions
  - inventory/engine.go: Higher-level mutation engine using this store
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/kush1999-h/signature-auto-care-sub000/inventory"
)

// timeLayout is fixed-width UTC so lexicographic order on stored strings
// matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements inventory.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The driver would otherwise hand transactions their own connection;
	// a single connection keeps them behind our mutex instead.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
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

func (s *Store) migrate() error {
	schema := `
	-- Parts (stock-keeping units)
	CREATE TABLE IF NOT EXISTS parts (
		id TEXT PRIMARY KEY,
		sku TEXT NOT NULL UNIQUE,
		barcode TEXT UNIQUE,
		part_name TEXT NOT NULL,
		description TEXT,
		category TEXT,
		vendor_name TEXT,
		unit TEXT,
		reorder_level INTEGER,
		purchase_price TEXT NOT NULL DEFAULT '0',
		selling_price TEXT NOT NULL DEFAULT '0',
		avg_cost TEXT NOT NULL DEFAULT '0',
		on_hand_qty INTEGER NOT NULL DEFAULT 0 CHECK (on_hand_qty >= 0),
		reserved_qty INTEGER NOT NULL DEFAULT 0 CHECK (reserved_qty >= 0),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_parts_name ON parts(part_name);

	-- Inventory transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS inventory_transactions (
		id TEXT PRIMARY KEY,
		tx_type TEXT NOT NULL,
		part_id TEXT NOT NULL REFERENCES parts(id),
		qty_change INTEGER NOT NULL CHECK (qty_change != 0),
		unit_cost TEXT NOT NULL,
		unit_price TEXT,
		payment_method TEXT,
		vendor_name TEXT,
		reference_type TEXT,
		reference_id TEXT,
		performed_by_employee_id TEXT NOT NULL,
		performed_by_name TEXT,
		performed_by_role TEXT,
		idempotency_key TEXT,
		reverses_transaction_id TEXT,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_part_created
		ON inventory_transactions(part_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON inventory_transactions(reference_type, reference_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_type
		ON inventory_transactions(tx_type);

	-- CRITICAL: idempotency-key uniqueness lives in the database, not in
	-- application-level check-then-insert.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_idempotency_key
		ON inventory_transactions(idempotency_key)
		WHERE idempotency_key IS NOT NULL;

	-- Payables (open vendor liabilities)
	CREATE TABLE IF NOT EXISTS payables (
		id TEXT PRIMARY KEY,
		category TEXT,
		amount TEXT NOT NULL,
		qty INTEGER NOT NULL,
		unit_cost TEXT NOT NULL,
		part_id TEXT,
		transaction_id TEXT,
		vendor_name TEXT,
		status TEXT NOT NULL DEFAULT 'OPEN',
		purchase_date TEXT NOT NULL,
		due_date TEXT,
		paid_at TEXT,
		created_by_employee_id TEXT,
		created_by_name TEXT,
		created_by_role TEXT,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payables_status_date
		ON payables(status, purchase_date DESC);

	-- Expenses (cash outlays)
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		category TEXT,
		amount TEXT NOT NULL,
		expense_date TEXT NOT NULL,
		note TEXT,
		is_deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(expense_date DESC);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT,
		actor_employee_id TEXT,
		actor_name TEXT,
		actor_role TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_entries(entity_type, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// PARTS
// =============================================================================

func (s *Store) CreatePart(ctx context.Context, p *inventory.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPart(ctx, s.db, p)
}

func createPart(ctx context.Context, q dbtx, p *inventory.Part) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO parts
		(id, sku, barcode, part_name, description, category, vendor_name, unit,
		 reorder_level, purchase_price, selling_price, avg_cost,
		 on_hand_qty, reserved_qty, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SKU, nullString(p.Barcode), p.PartName,
		nullString(p.Description), nullString(p.Category), nullString(p.VendorName), nullString(p.Unit),
		nullInt(p.ReorderLevel),
		p.PurchasePrice.String(), p.SellingPrice.String(), p.AvgCost.String(),
		p.OnHandQty, p.ReservedQty,
		p.CreatedAt.UTC().Format(timeLayout), p.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return inventory.ErrDuplicateSKU
		}
		return fmt.Errorf("failed to create part: %w", err)
	}
	return nil
}

const partColumns = `id, sku, barcode, part_name, description, category, vendor_name, unit,
	reorder_level, purchase_price, selling_price, avg_cost,
	on_hand_qty, reserved_qty, created_at, updated_at`

func (s *Store) GetPart(ctx context.Context, id inventory.PartID) (*inventory.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPart(ctx, s.db, id)
}

func getPart(ctx context.Context, q dbtx, id inventory.PartID) (*inventory.Part, error) {
	row := q.QueryRowContext(ctx, `SELECT `+partColumns+` FROM parts WHERE id = ?`, id)
	p, err := scanPart(row)
	if err == sql.ErrNoRows {
		return nil, inventory.ErrPartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load part: %w", err)
	}
	return p, nil
}

func scanPart(row rowScanner) (*inventory.Part, error) {
	var (
		p                                    inventory.Part
		barcode, description, category       sql.NullString
		vendorName, unit                     sql.NullString
		reorderLevel                         sql.NullInt64
		purchasePrice, sellingPrice, avgCost string
		createdAt, updatedAt                 string
	)
	err := row.Scan(
		&p.ID, &p.SKU, &barcode, &p.PartName, &description, &category, &vendorName, &unit,
		&reorderLevel, &purchasePrice, &sellingPrice, &avgCost,
		&p.OnHandQty, &p.ReservedQty, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Barcode = barcode.String
	p.Description = description.String
	p.Category = category.String
	p.VendorName = vendorName.String
	p.Unit = unit.String
	if reorderLevel.Valid {
		level := int(reorderLevel.Int64)
		p.ReorderLevel = &level
	}
	p.PurchasePrice = parseDecimal(purchasePrice)
	p.SellingPrice = parseDecimal(sellingPrice)
	p.AvgCost = parseDecimal(avgCost)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (s *Store) ListParts(ctx context.Context, f inventory.PartFilter) ([]inventory.Part, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listParts(ctx, s.db, f)
}

func listParts(ctx context.Context, q dbtx, f inventory.PartFilter) ([]inventory.Part, int, error) {
	where := ""
	var args []any
	if f.Search != "" {
		where = `WHERE part_name LIKE ? OR sku LIKE ? OR barcode LIKE ?`
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM parts `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count parts: %w", err)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	if limit > 500 {
		limit = 500
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := q.QueryContext(ctx,
		`SELECT `+partColumns+` FROM parts `+where+` ORDER BY part_name LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query parts: %w", err)
	}
	defer rows.Close()

	var parts []inventory.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, 0, err
		}
		parts = append(parts, *p)
	}
	return parts, total, rows.Err()
}

func (s *Store) ListLowStock(ctx context.Context) ([]inventory.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLowStock(ctx, s.db)
}

func listLowStock(ctx context.Context, q dbtx) ([]inventory.Part, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+partColumns+` FROM parts
		WHERE reorder_level IS NOT NULL AND on_hand_qty < reorder_level
		ORDER BY part_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock: %w", err)
	}
	defer rows.Close()

	var parts []inventory.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, *p)
	}
	return parts, rows.Err()
}

func (s *Store) UpdatePartCounters(ctx context.Context, id inventory.PartID, upd inventory.PartUpdate) (*inventory.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePartCounters(ctx, s.db, id, upd)
}

// updatePartCounters applies the delta through one conditional UPDATE: the
// WHERE clause keeps both counters non-negative, so a stale availability
// check upstream cannot drive stock below zero.
func updatePartCounters(ctx context.Context, q dbtx, id inventory.PartID, upd inventory.PartUpdate) (*inventory.Part, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE parts SET
			on_hand_qty = on_hand_qty + ?,
			reserved_qty = reserved_qty + ?,
			avg_cost = COALESCE(?, avg_cost),
			purchase_price = COALESCE(?, purchase_price),
			selling_price = COALESCE(?, selling_price),
			updated_at = ?
		WHERE id = ?
		  AND on_hand_qty + ? >= 0
		  AND reserved_qty + ? >= 0`,
		upd.OnHandDelta, upd.ReservedDelta,
		nullDecimal(upd.AvgCost), nullDecimal(upd.PurchasePrice), nullDecimal(upd.SellingPrice),
		time.Now().UTC().Format(timeLayout),
		id, upd.OnHandDelta, upd.ReservedDelta,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update part counters: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var count int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM parts WHERE id = ?`, id).Scan(&count); err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, inventory.ErrPartNotFound
		}
		return nil, inventory.ErrInvariantViolation
	}
	return getPart(ctx, q, id)
}

// =============================================================================
// LEDGER (append-only)
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx *inventory.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func appendTransaction(ctx context.Context, q dbtx, tx *inventory.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO inventory_transactions
		(id, tx_type, part_id, qty_change, unit_cost, unit_price, payment_method,
		 vendor_name, reference_type, reference_id,
		 performed_by_employee_id, performed_by_name, performed_by_role,
		 idempotency_key, reverses_transaction_id, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Type, tx.PartID, tx.QtyChange,
		tx.UnitCost.String(), nullDecimal(tx.UnitPrice),
		nullString(string(tx.PaymentMethod)), nullString(tx.VendorName),
		nullString(string(tx.Reference.Kind)), nullString(tx.Reference.ID),
		tx.PerformedBy.EmployeeID, nullString(tx.PerformedBy.Name), nullString(tx.PerformedBy.Role),
		nullString(tx.IdempotencyKey), nullString(string(tx.ReversesTransactionID)),
		nullString(tx.Notes), tx.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return inventory.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

const transactionColumns = `id, tx_type, part_id, qty_change, unit_cost, unit_price,
	payment_method, vendor_name, reference_type, reference_id,
	performed_by_employee_id, performed_by_name, performed_by_role,
	idempotency_key, reverses_transaction_id, notes, created_at`

func (s *Store) GetTransaction(ctx context.Context, id inventory.TransactionID) (*inventory.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, q dbtx, id inventory.TransactionID) (*inventory.Transaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM inventory_transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, inventory.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*inventory.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findTransactionByKey(ctx, s.db, key)
}

func findTransactionByKey(ctx context.Context, q dbtx, key string) (*inventory.Transaction, error) {
	if key == "" {
		return nil, nil
	}
	row := q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM inventory_transactions WHERE idempotency_key = ?`, key)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return tx, nil
}

func scanTransaction(row rowScanner) (*inventory.Transaction, error) {
	var (
		tx                                inventory.Transaction
		unitCost                          string
		unitPrice                         sql.NullString
		paymentMethod, vendorName         sql.NullString
		referenceType, referenceID        sql.NullString
		performedByName, performedByRole  sql.NullString
		idempotencyKey, reversesID, notes sql.NullString
		createdAt                         string
	)
	err := row.Scan(
		&tx.ID, &tx.Type, &tx.PartID, &tx.QtyChange, &unitCost, &unitPrice,
		&paymentMethod, &vendorName, &referenceType, &referenceID,
		&tx.PerformedBy.EmployeeID, &performedByName, &performedByRole,
		&idempotencyKey, &reversesID, &notes, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	tx.UnitCost = parseDecimal(unitCost)
	if unitPrice.Valid {
		price := parseDecimal(unitPrice.String)
		tx.UnitPrice = &price
	}
	tx.PaymentMethod = inventory.PaymentMethod(paymentMethod.String)
	tx.VendorName = vendorName.String
	tx.Reference = inventory.Reference{
		Kind: inventory.ReferenceKind(referenceType.String),
		ID:   referenceID.String,
	}
	tx.PerformedBy.Name = performedByName.String
	tx.PerformedBy.Role = performedByRole.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.ReversesTransactionID = inventory.TransactionID(reversesID.String)
	tx.Notes = notes.String
	tx.CreatedAt = parseTime(createdAt)
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, f inventory.TransactionFilter) ([]inventory.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, f)
}

func listTransactions(ctx context.Context, q dbtx, f inventory.TransactionFilter) ([]inventory.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if f.PartID != "" {
		conds = append(conds, "part_id = ?")
		args = append(args, f.PartID)
	}
	if f.Type != "" {
		conds = append(conds, "tx_type = ?")
		args = append(args, f.Type)
	}
	if f.PaymentMethod != "" {
		conds = append(conds, "payment_method = ?")
		args = append(args, string(f.PaymentMethod))
	}
	if !f.Reference.IsZero() {
		conds = append(conds, "reference_type = ?", "reference_id = ?")
		args = append(args, string(f.Reference.Kind), f.Reference.ID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.To.UTC().Format(timeLayout))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM inventory_transactions
		`+where+`
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []inventory.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// PAYABLES
// =============================================================================

func (s *Store) CreatePayable(ctx context.Context, p *inventory.Payable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPayable(ctx, s.db, p)
}

func createPayable(ctx context.Context, q dbtx, p *inventory.Payable) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payables
		(id, category, amount, qty, unit_cost, part_id, transaction_id, vendor_name,
		 status, purchase_date, due_date, paid_at,
		 created_by_employee_id, created_by_name, created_by_role, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, nullString(p.Category), p.Amount.String(), p.Qty, p.UnitCost.String(),
		nullString(string(p.PartID)), nullString(string(p.TransactionID)), nullString(p.VendorName),
		p.Status, p.PurchaseDate.UTC().Format(timeLayout),
		nullTime(p.DueDate), nullTime(p.PaidAt),
		nullString(p.CreatedBy.EmployeeID), nullString(p.CreatedBy.Name), nullString(p.CreatedBy.Role),
		nullString(p.Note),
	)
	if err != nil {
		return fmt.Errorf("failed to create payable: %w", err)
	}
	return nil
}

const payableColumns = `id, category, amount, qty, unit_cost, part_id, transaction_id,
	vendor_name, status, purchase_date, due_date, paid_at,
	created_by_employee_id, created_by_name, created_by_role, note`

func (s *Store) GetPayable(ctx context.Context, id inventory.PayableID) (*inventory.Payable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPayable(ctx, s.db, id)
}

func getPayable(ctx context.Context, q dbtx, id inventory.PayableID) (*inventory.Payable, error) {
	row := q.QueryRowContext(ctx, `SELECT `+payableColumns+` FROM payables WHERE id = ?`, id)
	p, err := scanPayable(row)
	if err == sql.ErrNoRows {
		return nil, inventory.ErrPayableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payable: %w", err)
	}
	return p, nil
}

func scanPayable(row rowScanner) (*inventory.Payable, error) {
	var (
		p                          inventory.Payable
		category, partID, trxID    sql.NullString
		vendorName, note           sql.NullString
		amount, unitCost           string
		purchaseDate               string
		dueDate, paidAt            sql.NullString
		createdByID, createdByName sql.NullString
		createdByRole              sql.NullString
	)
	err := row.Scan(
		&p.ID, &category, &amount, &p.Qty, &unitCost, &partID, &trxID,
		&vendorName, &p.Status, &purchaseDate, &dueDate, &paidAt,
		&createdByID, &createdByName, &createdByRole, &note,
	)
	if err != nil {
		return nil, err
	}
	p.Category = category.String
	p.Amount = parseDecimal(amount)
	p.UnitCost = parseDecimal(unitCost)
	p.PartID = inventory.PartID(partID.String)
	p.TransactionID = inventory.TransactionID(trxID.String)
	p.VendorName = vendorName.String
	p.PurchaseDate = parseTime(purchaseDate)
	if dueDate.Valid {
		due := parseTime(dueDate.String)
		p.DueDate = &due
	}
	if paidAt.Valid {
		at := parseTime(paidAt.String)
		p.PaidAt = &at
	}
	p.CreatedBy = inventory.Actor{
		EmployeeID: createdByID.String,
		Name:       createdByName.String,
		Role:       createdByRole.String,
	}
	p.Note = note.String
	return &p, nil
}

func (s *Store) ListPayables(ctx context.Context, f inventory.PayableFilter) ([]inventory.Payable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPayables(ctx, s.db, f)
}

func listPayables(ctx context.Context, q dbtx, f inventory.PayableFilter) ([]inventory.Payable, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Vendor != "" {
		conds = append(conds, "vendor_name LIKE ?")
		args = append(args, "%"+f.Vendor+"%")
	}
	if f.PartID != "" {
		conds = append(conds, "part_id = ?")
		args = append(args, f.PartID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "purchase_date >= ?")
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "purchase_date <= ?")
		args = append(args, f.To.UTC().Format(timeLayout))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, `
		SELECT `+payableColumns+` FROM payables
		`+where+`
		ORDER BY purchase_date DESC, rowid DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payables: %w", err)
	}
	defer rows.Close()

	var payables []inventory.Payable
	for rows.Next() {
		p, err := scanPayable(rows)
		if err != nil {
			return nil, err
		}
		payables = append(payables, *p)
	}
	return payables, rows.Err()
}

func (s *Store) MarkPayablePaid(ctx context.Context, id inventory.PayableID, paidAt time.Time) (*inventory.Payable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markPayablePaid(ctx, s.db, id, paidAt)
}

// markPayablePaid flips OPEN -> PAID with a conditional UPDATE so the
// transition happens exactly once even under concurrent settlement.
func markPayablePaid(ctx context.Context, q dbtx, id inventory.PayableID, paidAt time.Time) (*inventory.Payable, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE payables SET status = ?, paid_at = ?
		WHERE id = ? AND status = ?`,
		inventory.PayablePaid, paidAt.UTC().Format(timeLayout), id, inventory.PayableOpen,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to settle payable: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var count int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM payables WHERE id = ?`, id).Scan(&count); err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, inventory.ErrPayableNotFound
		}
		return nil, inventory.ErrAlreadyPaid
	}
	return getPayable(ctx, q, id)
}

// =============================================================================
// EXPENSES
// =============================================================================

func (s *Store) CreateExpense(ctx context.Context, e *inventory.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createExpense(ctx, s.db, e)
}

func createExpense(ctx context.Context, q dbtx, e *inventory.Expense) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO expenses (id, category, amount, expense_date, note, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, nullString(e.Category), e.Amount.String(),
		e.ExpenseDate.UTC().Format(timeLayout), nullString(e.Note), boolToInt(e.IsDeleted),
	)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

func (s *Store) ListExpenses(ctx context.Context, f inventory.ExpenseFilter) ([]inventory.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listExpenses(ctx, s.db, f)
}

func listExpenses(ctx context.Context, q dbtx, f inventory.ExpenseFilter) ([]inventory.Expense, error) {
	conds := []string{"is_deleted = 0"}
	var args []any
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if !f.From.IsZero() {
		conds = append(conds, "expense_date >= ?")
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "expense_date <= ?")
		args = append(args, f.To.UTC().Format(timeLayout))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, `
		SELECT id, category, amount, expense_date, note, is_deleted FROM expenses
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY expense_date DESC, rowid DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []inventory.Expense
	for rows.Next() {
		var (
			e              inventory.Expense
			category, note sql.NullString
			amount, date   string
			deleted        int
		)
		if err := rows.Scan(&e.ID, &category, &amount, &date, &note, &deleted); err != nil {
			return nil, err
		}
		e.Category = category.String
		e.Amount = parseDecimal(amount)
		e.ExpenseDate = parseTime(date)
		e.Note = note.String
		e.IsDeleted = deleted != 0
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry inventory.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAudit(ctx, s.db, entry)
}

func appendAudit(ctx context.Context, q dbtx, entry inventory.AuditEntry) error {
	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_entries
		(id, timestamp, action, entity_type, entity_id,
		 actor_employee_id, actor_name, actor_role, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UTC().Format(timeLayout), entry.Action,
		entry.EntityType, nullString(entry.EntityID),
		nullString(entry.Actor.EmployeeID), nullString(entry.Actor.Name), nullString(entry.Actor.Role),
		string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, f inventory.AuditFilter) ([]inventory.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAudit(ctx, s.db, f)
}

func listAudit(ctx context.Context, q dbtx, f inventory.AuditFilter) ([]inventory.AuditEntry, error) {
	var (
		conds []string
		args  []any
	)
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if f.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.ActorID != "" {
		conds = append(conds, "actor_employee_id = ?")
		args = append(args, f.ActorID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.To.UTC().Format(timeLayout))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, `
		SELECT id, timestamp, action, entity_type, entity_id,
		       actor_employee_id, actor_name, actor_role, payload_json
		FROM audit_entries `+where+`
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []inventory.AuditEntry
	for rows.Next() {
		var (
			e                    inventory.AuditEntry
			ts                   string
			entityID, actorID    sql.NullString
			actorName, actorRole sql.NullString
			payloadJSON          sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Action, &e.EntityType, &entityID,
			&actorID, &actorName, &actorRole, &payloadJSON); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		e.EntityID = entityID.String
		e.Actor = inventory.Actor{
			EmployeeID: actorID.String,
			Name:       actorName.String,
			Role:       actorRole.String,
		}
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction. The store mutex is held
// for the duration, so concurrent mutations against the same data serialize
// instead of racing their availability checks.
func (s *Store) WithTx(ctx context.Context, fn func(store inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every Store method against the open *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreatePart(ctx context.Context, p *inventory.Part) error {
	return createPart(ctx, ts.tx, p)
}
func (ts *txStore) GetPart(ctx context.Context, id inventory.PartID) (*inventory.Part, error) {
	return getPart(ctx, ts.tx, id)
}
func (ts *txStore) ListParts(ctx context.Context, f inventory.PartFilter) ([]inventory.Part, int, error) {
	return listParts(ctx, ts.tx, f)
}
func (ts *txStore) ListLowStock(ctx context.Context) ([]inventory.Part, error) {
	return listLowStock(ctx, ts.tx)
}
func (ts *txStore) UpdatePartCounters(ctx context.Context, id inventory.PartID, upd inventory.PartUpdate) (*inventory.Part, error) {
	return updatePartCounters(ctx, ts.tx, id, upd)
}
func (ts *txStore) AppendTransaction(ctx context.Context, tx *inventory.Transaction) error {
	return appendTransaction(ctx, ts.tx, tx)
}
func (ts *txStore) GetTransaction(ctx context.Context, id inventory.TransactionID) (*inventory.Transaction, error) {
	return getTransaction(ctx, ts.tx, id)
}
func (ts *txStore) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*inventory.Transaction, error) {
	return findTransactionByKey(ctx, ts.tx, key)
}
func (ts *txStore) ListTransactions(ctx context.Context, f inventory.TransactionFilter) ([]inventory.Transaction, error) {
	return listTransactions(ctx, ts.tx, f)
}
func (ts *txStore) CreatePayable(ctx context.Context, p *inventory.Payable) error {
	return createPayable(ctx, ts.tx, p)
}
func (ts *txStore) GetPayable(ctx context.Context, id inventory.PayableID) (*inventory.Payable, error) {
	return getPayable(ctx, ts.tx, id)
}
func (ts *txStore) ListPayables(ctx context.Context, f inventory.PayableFilter) ([]inventory.Payable, error) {
	return listPayables(ctx, ts.tx, f)
}
func (ts *txStore) MarkPayablePaid(ctx context.Context, id inventory.PayableID, paidAt time.Time) (*inventory.Payable, error) {
	return markPayablePaid(ctx, ts.tx, id, paidAt)
}
func (ts *txStore) CreateExpense(ctx context.Context, e *inventory.Expense) error {
	return createExpense(ctx, ts.tx, e)
}
func (ts *txStore) ListExpenses(ctx context.Context, f inventory.ExpenseFilter) ([]inventory.Expense, error) {
	return listExpenses(ctx, ts.tx, f)
}
func (ts *txStore) AppendAudit(ctx context.Context, entry inventory.AuditEntry) error {
	return appendAudit(ctx, ts.tx, entry)
}
func (ts *txStore) ListAudit(ctx context.Context, f inventory.AuditFilter) ([]inventory.AuditEntry, error) {
	return listAudit(ctx, ts.tx, f)
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by external tooling may use plain RFC3339.
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
