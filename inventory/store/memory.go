// Package store provides an in-memory inventory.TxStore for tests and dev.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kush1999-h/signature-auto-care-sub000/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds everything in maps and slices behind one RWMutex. Ledger
// order is insertion order, which matches creation time.
type Memory struct {
	mu           sync.RWMutex
	parts        map[inventory.PartID]inventory.Part
	transactions []inventory.Transaction
	idempotency  map[string]inventory.TransactionID
	payables     map[inventory.PayableID]inventory.Payable
	payableOrder []inventory.PayableID
	expenses     []inventory.Expense
	audits       []inventory.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		parts:       make(map[inventory.PartID]inventory.Part),
		idempotency: make(map[string]inventory.TransactionID),
		payables:    make(map[inventory.PayableID]inventory.Payable),
	}
}

// -----------------------------------------------------------------------------
// Parts
// -----------------------------------------------------------------------------

func (m *Memory) CreatePart(_ context.Context, p *inventory.Part) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPartLocked(p)
}

func (m *Memory) createPartLocked(p *inventory.Part) error {
	for _, existing := range m.parts {
		if existing.SKU == p.SKU {
			return inventory.ErrDuplicateSKU
		}
		if p.Barcode != "" && existing.Barcode == p.Barcode {
			return inventory.ErrDuplicateSKU
		}
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.parts[p.ID] = clonePart(*p)
	return nil
}

func (m *Memory) GetPart(_ context.Context, id inventory.PartID) (*inventory.Part, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPartLocked(id)
}

func (m *Memory) getPartLocked(id inventory.PartID) (*inventory.Part, error) {
	p, ok := m.parts[id]
	if !ok {
		return nil, inventory.ErrPartNotFound
	}
	out := clonePart(p)
	return &out, nil
}

func (m *Memory) ListParts(_ context.Context, f inventory.PartFilter) ([]inventory.Part, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPartsLocked(f)
}

func (m *Memory) listPartsLocked(f inventory.PartFilter) ([]inventory.Part, int, error) {
	search := strings.ToLower(f.Search)
	var matched []inventory.Part
	for _, p := range m.parts {
		if search != "" &&
			!strings.Contains(strings.ToLower(p.PartName), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) &&
			!strings.Contains(strings.ToLower(p.Barcode), search) {
			continue
		}
		matched = append(matched, clonePart(p))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].PartName < matched[j].PartName })

	total := len(matched)
	page, limit := normalizePage(f.Page, f.Limit)
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *Memory) ListLowStock(_ context.Context) ([]inventory.Part, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLowStockLocked()
}

func (m *Memory) listLowStockLocked() ([]inventory.Part, error) {
	var low []inventory.Part
	for _, p := range m.parts {
		if p.ReorderLevel != nil && p.OnHandQty < *p.ReorderLevel {
			low = append(low, clonePart(p))
		}
	}
	sort.Slice(low, func(i, j int) bool { return low[i].PartName < low[j].PartName })
	return low, nil
}

func (m *Memory) UpdatePartCounters(_ context.Context, id inventory.PartID, upd inventory.PartUpdate) (*inventory.Part, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePartCountersLocked(id, upd)
}

func (m *Memory) updatePartCountersLocked(id inventory.PartID, upd inventory.PartUpdate) (*inventory.Part, error) {
	p, ok := m.parts[id]
	if !ok {
		return nil, inventory.ErrPartNotFound
	}
	if p.OnHandQty+upd.OnHandDelta < 0 || p.ReservedQty+upd.ReservedDelta < 0 {
		return nil, inventory.ErrInvariantViolation
	}
	p.OnHandQty += upd.OnHandDelta
	p.ReservedQty += upd.ReservedDelta
	if upd.AvgCost != nil {
		p.AvgCost = *upd.AvgCost
	}
	if upd.PurchasePrice != nil {
		p.PurchasePrice = *upd.PurchasePrice
	}
	if upd.SellingPrice != nil {
		p.SellingPrice = *upd.SellingPrice
	}
	p.UpdatedAt = time.Now().UTC()
	m.parts[id] = p
	out := clonePart(p)
	return &out, nil
}

// -----------------------------------------------------------------------------
// Ledger (append-only)
// -----------------------------------------------------------------------------

func (m *Memory) AppendTransaction(_ context.Context, tx *inventory.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendTransactionLocked(tx)
}

func (m *Memory) appendTransactionLocked(tx *inventory.Transaction) error {
	if tx.IdempotencyKey != "" {
		if _, exists := m.idempotency[tx.IdempotencyKey]; exists {
			return inventory.ErrDuplicateIdempotencyKey
		}
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	m.transactions = append(m.transactions, cloneTransaction(*tx))
	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = tx.ID
	}
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id inventory.TransactionID) (*inventory.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransactionLocked(id)
}

func (m *Memory) getTransactionLocked(id inventory.TransactionID) (*inventory.Transaction, error) {
	for i := range m.transactions {
		if m.transactions[i].ID == id {
			out := cloneTransaction(m.transactions[i])
			return &out, nil
		}
	}
	return nil, inventory.ErrTransactionNotFound
}

func (m *Memory) FindTransactionByIdempotencyKey(_ context.Context, key string) (*inventory.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findByKeyLocked(key)
}

func (m *Memory) findByKeyLocked(key string) (*inventory.Transaction, error) {
	id, ok := m.idempotency[key]
	if !ok {
		return nil, nil
	}
	tx, err := m.getTransactionLocked(id)
	if err != nil {
		return nil, nil
	}
	return tx, nil
}

func (m *Memory) ListTransactions(_ context.Context, f inventory.TransactionFilter) ([]inventory.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransactionsLocked(f)
}

func (m *Memory) listTransactionsLocked(f inventory.TransactionFilter) ([]inventory.Transaction, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var out []inventory.Transaction
	// Newest first: walk the ledger backwards.
	for i := len(m.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		tx := m.transactions[i]
		if f.PartID != "" && tx.PartID != f.PartID {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.PaymentMethod != "" && tx.PaymentMethod != f.PaymentMethod {
			continue
		}
		if !f.Reference.IsZero() && tx.Reference != f.Reference {
			continue
		}
		if !f.From.IsZero() && tx.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && tx.CreatedAt.After(f.To) {
			continue
		}
		out = append(out, cloneTransaction(tx))
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Financial records
// -----------------------------------------------------------------------------

func (m *Memory) CreatePayable(_ context.Context, p *inventory.Payable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPayableLocked(p)
}

func (m *Memory) createPayableLocked(p *inventory.Payable) error {
	m.payables[p.ID] = clonePayable(*p)
	m.payableOrder = append(m.payableOrder, p.ID)
	return nil
}

func (m *Memory) GetPayable(_ context.Context, id inventory.PayableID) (*inventory.Payable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPayableLocked(id)
}

func (m *Memory) getPayableLocked(id inventory.PayableID) (*inventory.Payable, error) {
	p, ok := m.payables[id]
	if !ok {
		return nil, inventory.ErrPayableNotFound
	}
	out := clonePayable(p)
	return &out, nil
}

func (m *Memory) ListPayables(_ context.Context, f inventory.PayableFilter) ([]inventory.Payable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPayablesLocked(f)
}

func (m *Memory) listPayablesLocked(f inventory.PayableFilter) ([]inventory.Payable, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	vendor := strings.ToLower(f.Vendor)
	var out []inventory.Payable
	for i := len(m.payableOrder) - 1; i >= 0 && len(out) < limit; i-- {
		p := m.payables[m.payableOrder[i]]
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if vendor != "" && !strings.Contains(strings.ToLower(p.VendorName), vendor) {
			continue
		}
		if f.PartID != "" && p.PartID != f.PartID {
			continue
		}
		if !f.From.IsZero() && p.PurchaseDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && p.PurchaseDate.After(f.To) {
			continue
		}
		out = append(out, clonePayable(p))
	}
	return out, nil
}

func (m *Memory) MarkPayablePaid(_ context.Context, id inventory.PayableID, paidAt time.Time) (*inventory.Payable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markPayablePaidLocked(id, paidAt)
}

func (m *Memory) markPayablePaidLocked(id inventory.PayableID, paidAt time.Time) (*inventory.Payable, error) {
	p, ok := m.payables[id]
	if !ok {
		return nil, inventory.ErrPayableNotFound
	}
	if p.Status == inventory.PayablePaid {
		return nil, inventory.ErrAlreadyPaid
	}
	p.Status = inventory.PayablePaid
	at := paidAt
	p.PaidAt = &at
	m.payables[id] = p
	out := clonePayable(p)
	return &out, nil
}

func (m *Memory) CreateExpense(_ context.Context, e *inventory.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createExpenseLocked(e)
}

func (m *Memory) createExpenseLocked(e *inventory.Expense) error {
	m.expenses = append(m.expenses, *e)
	return nil
}

func (m *Memory) ListExpenses(_ context.Context, f inventory.ExpenseFilter) ([]inventory.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listExpensesLocked(f)
}

func (m *Memory) listExpensesLocked(f inventory.ExpenseFilter) ([]inventory.Expense, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	var out []inventory.Expense
	for i := len(m.expenses) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.expenses[i]
		if e.IsDeleted {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if !f.From.IsZero() && e.ExpenseDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.ExpenseDate.After(f.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Audit log
// -----------------------------------------------------------------------------

func (m *Memory) AppendAudit(_ context.Context, entry inventory.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(entry)
}

func (m *Memory) appendAuditLocked(entry inventory.AuditEntry) error {
	m.audits = append(m.audits, entry)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, f inventory.AuditFilter) ([]inventory.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAuditLocked(f)
}

func (m *Memory) listAuditLocked(f inventory.AuditFilter) ([]inventory.AuditEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	var out []inventory.AuditEntry
	for i := len(m.audits) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.audits[i]
		if f.Action != "" && a.Action != f.Action {
			continue
		}
		if f.EntityType != "" && a.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && a.EntityID != f.EntityID {
			continue
		}
		if f.ActorID != "" && a.Actor.EmployeeID != f.ActorID {
			continue
		}
		if !f.From.IsZero() && a.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.Timestamp.After(f.To) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support. WithTx holds the write
// lock for the whole mutation, so concurrent mutations serialize; rollback
// is simulated with a snapshot + restore.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) WithTx(_ context.Context, fn func(inventory.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	parts        map[inventory.PartID]inventory.Part
	transactions []inventory.Transaction
	idempotency  map[string]inventory.TransactionID
	payables     map[inventory.PayableID]inventory.Payable
	payableOrder []inventory.PayableID
	expenses     []inventory.Expense
	audits       []inventory.AuditEntry
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		parts:        make(map[inventory.PartID]inventory.Part, len(tm.parts)),
		idempotency:  make(map[string]inventory.TransactionID, len(tm.idempotency)),
		payables:     make(map[inventory.PayableID]inventory.Payable, len(tm.payables)),
		transactions: append([]inventory.Transaction(nil), tm.transactions...),
		payableOrder: append([]inventory.PayableID(nil), tm.payableOrder...),
		expenses:     append([]inventory.Expense(nil), tm.expenses...),
		audits:       append([]inventory.AuditEntry(nil), tm.audits...),
	}
	for k, v := range tm.parts {
		s.parts[k] = v
	}
	for k, v := range tm.idempotency {
		s.idempotency[k] = v
	}
	for k, v := range tm.payables {
		s.payables[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.parts = s.parts
	tm.transactions = s.transactions
	tm.idempotency = s.idempotency
	tm.payables = s.payables
	tm.payableOrder = s.payableOrder
	tm.expenses = s.expenses
	tm.audits = s.audits
}

// txMemoryView runs against the parent while the WithTx lock is held, so
// it must use the *Locked methods directly.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) CreatePart(_ context.Context, p *inventory.Part) error {
	return tv.parent.createPartLocked(p)
}
func (tv *txMemoryView) GetPart(_ context.Context, id inventory.PartID) (*inventory.Part, error) {
	return tv.parent.getPartLocked(id)
}
func (tv *txMemoryView) ListParts(_ context.Context, f inventory.PartFilter) ([]inventory.Part, int, error) {
	return tv.parent.listPartsLocked(f)
}
func (tv *txMemoryView) ListLowStock(_ context.Context) ([]inventory.Part, error) {
	return tv.parent.listLowStockLocked()
}
func (tv *txMemoryView) UpdatePartCounters(_ context.Context, id inventory.PartID, upd inventory.PartUpdate) (*inventory.Part, error) {
	return tv.parent.updatePartCountersLocked(id, upd)
}
func (tv *txMemoryView) AppendTransaction(_ context.Context, tx *inventory.Transaction) error {
	return tv.parent.appendTransactionLocked(tx)
}
func (tv *txMemoryView) GetTransaction(_ context.Context, id inventory.TransactionID) (*inventory.Transaction, error) {
	return tv.parent.getTransactionLocked(id)
}
func (tv *txMemoryView) FindTransactionByIdempotencyKey(_ context.Context, key string) (*inventory.Transaction, error) {
	return tv.parent.findByKeyLocked(key)
}
func (tv *txMemoryView) ListTransactions(_ context.Context, f inventory.TransactionFilter) ([]inventory.Transaction, error) {
	return tv.parent.listTransactionsLocked(f)
}
func (tv *txMemoryView) CreatePayable(_ context.Context, p *inventory.Payable) error {
	return tv.parent.createPayableLocked(p)
}
func (tv *txMemoryView) GetPayable(_ context.Context, id inventory.PayableID) (*inventory.Payable, error) {
	return tv.parent.getPayableLocked(id)
}
func (tv *txMemoryView) ListPayables(_ context.Context, f inventory.PayableFilter) ([]inventory.Payable, error) {
	return tv.parent.listPayablesLocked(f)
}
func (tv *txMemoryView) MarkPayablePaid(_ context.Context, id inventory.PayableID, paidAt time.Time) (*inventory.Payable, error) {
	return tv.parent.markPayablePaidLocked(id, paidAt)
}
func (tv *txMemoryView) CreateExpense(_ context.Context, e *inventory.Expense) error {
	return tv.parent.createExpenseLocked(e)
}
func (tv *txMemoryView) ListExpenses(_ context.Context, f inventory.ExpenseFilter) ([]inventory.Expense, error) {
	return tv.parent.listExpensesLocked(f)
}
func (tv *txMemoryView) AppendAudit(_ context.Context, entry inventory.AuditEntry) error {
	return tv.parent.appendAuditLocked(entry)
}
func (tv *txMemoryView) ListAudit(_ context.Context, f inventory.AuditFilter) ([]inventory.AuditEntry, error) {
	return tv.parent.listAuditLocked(f)
}

// -----------------------------------------------------------------------------
// Copy helpers - callers must never alias internal state
// -----------------------------------------------------------------------------

func clonePart(p inventory.Part) inventory.Part {
	if p.ReorderLevel != nil {
		level := *p.ReorderLevel
		p.ReorderLevel = &level
	}
	return p
}

func cloneTransaction(tx inventory.Transaction) inventory.Transaction {
	if tx.UnitPrice != nil {
		price := *tx.UnitPrice
		tx.UnitPrice = &price
	}
	return tx
}

func clonePayable(p inventory.Payable) inventory.Payable {
	if p.DueDate != nil {
		due := *p.DueDate
		p.DueDate = &due
	}
	if p.PaidAt != nil {
		at := *p.PaidAt
		p.PaidAt = &at
	}
	return p
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 500 {
		limit = 500
	}
	return page, limit
}
