/*
Package inventory provides the core inventory ledger and stock engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking parts
  stock in the shop: on-hand counters, an append-only transaction ledger,
  weighted average cost, and the financial side effects of receiving stock
  (cash expenses vs. open payables).

KEY CONCEPTS IN THIS FILE (types.go):
  - Part: A stock-keeping unit with quantity counters and unit economics
  - Transaction: An immutable ledger entry recording one stock movement
  - Payable / Expense: Financial records driven by RECEIVE events
  - Reference: Tagged link from a ledger entry to its originating document
  - Actor: The employee performing a mutation (explicit, never ambient)

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never modified, only reversed
  2. Precision: decimal.Decimal for all money fields, no float drift
  3. Integer stock: quantities are ints; fractional stock is unrepresentable
  4. Auditability: Every mutation carries actor, reference, idempotency key

SEE ALSO:
  - engine.go: The transactional stock mutation engine
  - finance.go: Expense/payable dispatch on RECEIVE and settlement
  - store.go: Persistence interfaces
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PartID string
type TransactionID string
type PayableID string
type ExpenseID string

// Actor identifies the employee performing a mutation. It is passed
// explicitly into every engine call so the core stays testable without a
// request context. Name and Role are denormalized snapshots.
type Actor struct {
	EmployeeID string
	Name       string
	Role       string
}

// =============================================================================
// PART - Stock-keeping unit
// =============================================================================

// Part is a stock-keeping unit. Counters are mutated exclusively by the
// engine; OnHandQty and ReservedQty never go negative.
type Part struct {
	ID      PartID
	SKU     string // unique, required
	Barcode string // unique when present

	PartName    string
	Description string
	Category    string
	VendorName  string
	Unit        string

	// ReorderLevel is nil when the part has no low-stock threshold.
	ReorderLevel *int

	// Unit economics. AvgCost is a weighted moving average updated only
	// by RECEIVE events.
	PurchasePrice decimal.Decimal
	SellingPrice  decimal.Decimal
	AvgCost       decimal.Decimal

	OnHandQty   int // authoritative physical count
	ReservedQty int // earmarked for work orders, not yet removed

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailableQty is on-hand minus reserved: the sellable/issuable quantity.
// Derived, never persisted.
func (p *Part) AvailableQty() int {
	return p.OnHandQty - p.ReservedQty
}

// NextAvgCost computes the weighted moving average cost after receiving
// qty units at unitCost into a part currently holding onHand units at
// avgCost. When nothing was on hand, the new average is the unit cost.
func NextAvgCost(onHand int, avgCost decimal.Decimal, qty int, unitCost decimal.Decimal) decimal.Decimal {
	newQty := onHand + qty
	if newQty <= 0 {
		return decimal.Zero
	}
	if onHand <= 0 {
		return unitCost
	}
	held := avgCost.Mul(decimal.NewFromInt(int64(onHand)))
	incoming := unitCost.Mul(decimal.NewFromInt(int64(qty)))
	return held.Add(incoming).Div(decimal.NewFromInt(int64(newQty)))
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

type TransactionType string

const (
	TxReceive          TransactionType = "RECEIVE"
	TxIssueToWorkOrder TransactionType = "ISSUE_TO_WORK_ORDER"
	TxCounterSale      TransactionType = "COUNTER_SALE"
	TxAdjustment       TransactionType = "ADJUSTMENT"
	TxReturn           TransactionType = "RETURN"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentCredit PaymentMethod = "CREDIT"
)

// ReferenceKind enumerates the document kinds a ledger entry may point at.
type ReferenceKind string

const (
	RefWorkOrder   ReferenceKind = "WORK_ORDER"
	RefInvoice     ReferenceKind = "INVOICE"
	RefCounterSale ReferenceKind = "COUNTER_SALE"
	RefAdjustment  ReferenceKind = "ADJUSTMENT"
	RefPurchase    ReferenceKind = "PURCHASE"
)

// Reference is a tagged link to the document that caused a stock movement.
// Using a struct instead of two bare strings keeps invalid kinds out of
// the ledger.
type Reference struct {
	Kind ReferenceKind
	ID   string
}

func (r Reference) IsZero() bool { return r.Kind == "" && r.ID == "" }

// Transaction is one immutable ledger entry. The ledger is append-only:
// corrections are expressed as new entries with ReversesTransactionID set,
// never as edits.
type Transaction struct {
	ID     TransactionID
	Type   TransactionType
	PartID PartID

	// QtyChange is signed: positive inbound (RECEIVE, RETURN), negative
	// outbound (ISSUE, COUNTER_SALE), either direction for ADJUSTMENT.
	// Always a non-zero integer.
	QtyChange int

	// UnitCost is the cost basis at the time of the event. For outbound
	// entries this snapshots the part's average cost.
	UnitCost decimal.Decimal

	// UnitPrice is the customer-facing price at the time of the event.
	// Nil for events with no sale component.
	UnitPrice *decimal.Decimal

	PaymentMethod PaymentMethod // RECEIVE only: CASH or CREDIT
	VendorName    string
	Reference     Reference

	PerformedBy Actor

	// IdempotencyKey deduplicates externally retried requests. Unique
	// across the ledger when present.
	IdempotencyKey string

	// ReversesTransactionID links a compensating entry to the entry it
	// negates.
	ReversesTransactionID TransactionID

	Notes     string
	CreatedAt time.Time
}

// IsInbound reports whether the entry adds stock.
func (t *Transaction) IsInbound() bool { return t.QtyChange > 0 }

// =============================================================================
// PAYABLE - Open liability from a credit purchase
// =============================================================================

type PayableStatus string

const (
	PayableOpen PayableStatus = "OPEN"
	PayablePaid PayableStatus = "PAID"
)

// Payable is an open liability created when stock is received on credit.
// Status moves OPEN -> PAID exactly once, via settlement.
type Payable struct {
	ID       PayableID
	Category string
	Amount   decimal.Decimal // qty * unitCost
	Qty      int
	UnitCost decimal.Decimal

	PartID        PartID
	TransactionID TransactionID // the originating RECEIVE ledger entry
	VendorName    string

	Status       PayableStatus
	PurchaseDate time.Time
	DueDate      *time.Time
	PaidAt       *time.Time

	CreatedBy Actor
	Note      string
}

// =============================================================================
// EXPENSE - Cash outlay record
// =============================================================================

// Expense records a cash outlay. The ledger core only ever creates these:
// on CASH receives and on payable settlement. IsDeleted is a soft-delete
// flag owned by out-of-scope expense management flows.
type Expense struct {
	ID          ExpenseID
	Category    string
	Amount      decimal.Decimal
	ExpenseDate time.Time
	Note        string
	IsDeleted   bool
}
