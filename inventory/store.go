/*
store.go - Persistence interfaces for the inventory core

PURPOSE:
  Defines the contract between the engine and the database. The ledger side
  is strictly append-only; part counters are updated through a conditional
  delta so the storage layer itself is the last line of defense for the
  non-negativity invariant.

APPEND-ONLY CONTRACT:
  - AppendTransaction is the ONLY ledger write. No Update, No Delete. Ever.
  - Corrections are expressed as reversal entries.

IDEMPOTENCY:
  AppendTransaction must enforce idempotency-key uniqueness at the storage
  layer (unique index / constraint), not by check-then-insert. Two
  concurrent retries of the same client request must collapse to one entry.

ATOMICITY:
  TxStore.WithTx scopes one logical mutation: the part counter update, the
  ledger append, financial side effects and the audit record either all
  commit or none do. Implementations must serialize conflicting writers so
  availability checks never run against stale counters.

IMPLEMENTATIONS:
  - store/sqlite:         production SQLite store
  - inventory/store:      in-memory store for tests/dev

SEE ALSO:
  - engine.go: The only caller of the write paths
*/
package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PART COUNTER UPDATES
// =============================================================================

// PartUpdate describes one conditional mutation of a part's counters and
// price snapshots. Deltas apply to the counters; pointer fields are set
// only when non-nil.
type PartUpdate struct {
	OnHandDelta   int
	ReservedDelta int

	AvgCost       *decimal.Decimal
	PurchasePrice *decimal.Decimal
	SellingPrice  *decimal.Decimal
}

// =============================================================================
// QUERY FILTERS
// =============================================================================

// PartFilter narrows part listings. Search matches name, SKU or barcode.
type PartFilter struct {
	Search string
	Page   int // 1-based; defaults to 1
	Limit  int // defaults to 200, capped at 500
}

// TransactionFilter narrows ledger queries. Zero values are ignored.
type TransactionFilter struct {
	PartID        PartID
	Type          TransactionType
	PaymentMethod PaymentMethod
	Reference     Reference
	From          time.Time
	To            time.Time
	Limit         int // defaults to 100
}

// PayableFilter narrows payable listings.
type PayableFilter struct {
	Status PayableStatus
	Vendor string // substring match
	PartID PartID
	From   time.Time
	To     time.Time
	Limit  int // defaults to 200, capped at 1000
}

// ExpenseFilter narrows expense listings. Soft-deleted rows are excluded.
type ExpenseFilter struct {
	Category string
	From     time.Time
	To       time.Time
	Limit    int
}

// =============================================================================
// STORE - Persistence contract
// =============================================================================

// Store handles persistence for parts, the ledger, payables, expenses and
// the audit log. The ledger portion is append-only.
type Store interface {
	// --- Parts ---

	// CreatePart inserts a new part. Fails with ErrDuplicateSKU when the
	// SKU or barcode is taken.
	CreatePart(ctx context.Context, p *Part) error

	// GetPart returns a part or ErrPartNotFound.
	GetPart(ctx context.Context, id PartID) (*Part, error)

	// ListParts returns a page of parts plus the total match count.
	ListParts(ctx context.Context, f PartFilter) ([]Part, int, error)

	// ListLowStock returns parts whose on-hand count is below their
	// reorder level. Parts without a reorder level are skipped.
	ListLowStock(ctx context.Context) ([]Part, error)

	// UpdatePartCounters applies a conditional delta. It fails with
	// ErrInvariantViolation if either counter would go negative, and
	// ErrPartNotFound if the part does not exist. Returns the updated part.
	UpdatePartCounters(ctx context.Context, id PartID, upd PartUpdate) (*Part, error)

	// --- Ledger (append-only) ---

	// AppendTransaction persists a ledger entry. Fails with
	// ErrDuplicateIdempotencyKey when the key already exists. This is the
	// only ledger write.
	AppendTransaction(ctx context.Context, tx *Transaction) error

	// GetTransaction returns an entry or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// FindTransactionByIdempotencyKey returns the entry recorded under the
	// key, or nil when the key is unused.
	FindTransactionByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)

	// ListTransactions returns entries newest first.
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)

	// --- Financial records ---

	CreatePayable(ctx context.Context, p *Payable) error
	GetPayable(ctx context.Context, id PayableID) (*Payable, error)
	ListPayables(ctx context.Context, f PayableFilter) ([]Payable, error)

	// MarkPayablePaid flips status OPEN -> PAID. Fails with ErrAlreadyPaid
	// when the payable is already settled, ErrPayableNotFound when absent.
	MarkPayablePaid(ctx context.Context, id PayableID, paidAt time.Time) (*Payable, error)

	CreateExpense(ctx context.Context, e *Expense) error
	ListExpenses(ctx context.Context, f ExpenseFilter) ([]Expense, error)

	// --- Audit log (append-only) ---

	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// TxStore wraps Store with transaction support. The engine runs every
// mutation inside WithTx; implementations must make concurrent WithTx
// calls against the same data serializable.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back and the error is returned unchanged.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Who did what, when
// =============================================================================

type AuditAction string

const (
	AuditReceive     AuditAction = "INVENTORY_RECEIVE"
	AuditAdjust      AuditAction = "INVENTORY_ADJUST"
	AuditIssue       AuditAction = "ISSUE_PART_TO_WORK_ORDER"
	AuditCounterSale AuditAction = "COUNTER_SALE"
	AuditReturn      AuditAction = "INVENTORY_RETURN"
	AuditReversal    AuditAction = "INVENTORY_REVERSAL"
	AuditReserve     AuditAction = "INVENTORY_RESERVE"
	AuditRelease     AuditAction = "INVENTORY_RELEASE"
	AuditExpense     AuditAction = "EXPENSE_CREATE"
	AuditPayable     AuditAction = "PAYABLE_CREATE"
	AuditSettle      AuditAction = "PAYABLE_SETTLE"
)

// AuditEntry records one action against one entity. Separate from the
// ledger: the ledger explains stock, the audit log explains people.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	Action     AuditAction
	EntityType string // "Part", "Payable", "Expense", "Invoice"
	EntityID   string
	Actor      Actor
	Payload    map[string]any
}

// AuditFilter narrows audit queries. Zero values are ignored.
type AuditFilter struct {
	Action     AuditAction
	EntityType string
	EntityID   string
	ActorID    string
	From       time.Time
	To         time.Time
	Limit      int
}
