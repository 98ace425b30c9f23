/*
engine.go - The transactional stock mutation engine

PURPOSE:
  Single entry point for every stock-affecting operation: receive, adjust,
  issue to work order, counter sale, return, reversal, and work-order
  reservations. Each mutation is one atomic unit: validate against current
  counters, update the part, append one ledger entry, post financial side
  effects, record the audit trail. Either everything commits or nothing does.

STATE MACHINE (per mutation request):
  VALIDATED -> APPLIED -> FINANCIAL_POSTED -> COMMITTED
  or REJECTED at any validation step. Callers never observe partial state.

CONCURRENCY:
  Every mutation runs inside TxStore.WithTx. Store implementations
  serialize conflicting writers, so two concurrent mutations on the same
  part cannot both pass an availability check against stale counters. The
  conditional counter update (UpdatePartCounters) is the backstop: if a
  counter would still go negative, the whole mutation rolls back with
  ErrInvariantViolation.

IDEMPOTENCY:
  When a request carries an idempotency key that is already recorded on a
  prior ledger entry, the engine returns the prior entry (with the current
  part snapshot) instead of re-applying. The storage layer's unique index
  closes the race between two concurrent retries: the loser of the insert
  race gets ErrDuplicateIdempotencyKey and replays the winner's result.

  CALLER CONTRACT: the key must be stable across retries of one logical
  attempt. A client that regenerates the key per retry defeats the guard.

SEE ALSO:
  - finance.go: Expense/payable dispatch
  - store.go: Persistence contract the engine drives
*/
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Engine coordinates all stock mutations. It is safe for concurrent use.
type Engine struct {
	store   TxStore
	finance *financeDispatcher
	log     logrus.FieldLogger

	// Injectable for deterministic tests.
	now   func() time.Time
	newID func() string
}

// NewEngine creates an engine over the given store.
func NewEngine(store TxStore, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := func() time.Time { return time.Now().UTC() }
	e := &Engine{
		store: store,
		log:   log,
		now:   now,
		newID: uuid.NewString,
	}
	e.finance = &financeDispatcher{now: e.timestamp, newID: e.id}
	return e
}

func (e *Engine) timestamp() time.Time { return e.now() }
func (e *Engine) id() string           { return e.newID() }

// MutationResult is returned by single-part mutations.
type MutationResult struct {
	Part        *Part
	Transaction *Transaction

	// Expense/Payable are set for RECEIVE (one of them) and nil otherwise.
	Expense *Expense
	Payable *Payable

	// Replayed is true when the result comes from a prior entry recorded
	// under the same idempotency key; no state was changed by this call.
	Replayed bool
}

// =============================================================================
// RECEIVE
// =============================================================================

// ReceiveRequest describes a stock receipt from a vendor.
type ReceiveRequest struct {
	PartID         PartID
	Qty            int
	UnitCost       decimal.Decimal
	SellingPrice   *decimal.Decimal // updates the part's selling price when set
	PaymentMethod  PaymentMethod    // CASH creates an Expense, CREDIT a Payable
	VendorName     string
	Notes          string
	Actor          Actor
	IdempotencyKey string
}

// Receive adds stock, recomputes the weighted average cost and posts the
// financial side effect for the declared payment method.
func (e *Engine) Receive(ctx context.Context, req ReceiveRequest) (*MutationResult, error) {
	if req.Actor.EmployeeID == "" {
		return nil, ErrMissingActor
	}
	if req.Qty <= 0 {
		return nil, &InvalidQuantityError{Field: "qty", Value: req.Qty, Reason: "must be a positive integer"}
	}
	if req.UnitCost.IsNegative() {
		return nil, ErrInvalidUnitCost
	}
	method := PaymentMethod(strings.ToUpper(string(req.PaymentMethod)))
	if method != PaymentCash && method != PaymentCredit {
		return nil, ErrMissingPaymentMethod
	}

	if prior, err := e.findReplay(ctx, req.IdempotencyKey); err != nil || prior != nil {
		return prior, err
	}

	var result MutationResult
	err := e.store.WithTx(ctx, func(s Store) error {
		part, err := s.GetPart(ctx, req.PartID)
		if err != nil {
			return err
		}

		avg := NextAvgCost(part.OnHandQty, part.AvgCost, req.Qty, req.UnitCost)
		unitCost := req.UnitCost
		updated, err := s.UpdatePartCounters(ctx, part.ID, PartUpdate{
			OnHandDelta:   req.Qty,
			AvgCost:       &avg,
			PurchasePrice: &unitCost,
			SellingPrice:  req.SellingPrice,
		})
		if err != nil {
			return err
		}

		trx := &Transaction{
			ID:             TransactionID(e.newID()),
			Type:           TxReceive,
			PartID:         part.ID,
			QtyChange:      req.Qty,
			UnitCost:       req.UnitCost,
			UnitPrice:      req.SellingPrice,
			PaymentMethod:  method,
			VendorName:     req.VendorName,
			Reference:      Reference{Kind: RefPurchase},
			PerformedBy:    req.Actor,
			IdempotencyKey: req.IdempotencyKey,
			Notes:          req.Notes,
			CreatedAt:      e.now(),
		}
		if err := s.AppendTransaction(ctx, trx); err != nil {
			return err
		}

		expense, payable, err := e.finance.onReceive(ctx, s, updated, trx, req.Actor)
		if err != nil {
			return err
		}

		if err := s.AppendAudit(ctx, e.audit(AuditReceive, "Part", string(part.ID), req.Actor, map[string]any{
			"qty":            req.Qty,
			"unit_cost":      req.UnitCost.String(),
			"payment_method": string(method),
			"vendor":         req.VendorName,
			"transaction_id": string(trx.ID),
		})); err != nil {
			return err
		}

		result = MutationResult{Part: updated, Transaction: trx, Expense: expense, Payable: payable}
		return nil
	})
	return e.settle(ctx, &result, req.IdempotencyKey, "receive", err)
}

// =============================================================================
// ADJUSTMENT
// =============================================================================

// AdjustRequest corrects the on-hand count after a verified physical count.
// QtyChange carries its own sign; Reason is mandatory.
type AdjustRequest struct {
	PartID         PartID
	QtyChange      int
	Reason         string
	Actor          Actor
	IdempotencyKey string
}

// Adjust moves the on-hand counter by a signed amount. Negative adjustments
// are bounded by the physical on-hand count; reservations are not
// considered because an adjustment records what is actually on the shelf.
func (e *Engine) Adjust(ctx context.Context, req AdjustRequest) (*MutationResult, error) {
	if req.Actor.EmployeeID == "" {
		return nil, ErrMissingActor
	}
	if req.QtyChange == 0 {
		return nil, &InvalidQuantityError{Field: "qtyChange", Value: 0, Reason: "must be a non-zero integer"}
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, ErrMissingReason
	}

	if prior, err := e.findReplay(ctx, req.IdempotencyKey); err != nil || prior != nil {
		return prior, err
	}

	var result MutationResult
	err := e.store.WithTx(ctx, func(s Store) error {
		part, err := s.GetPart(ctx, req.PartID)
		if err != nil {
			return err
		}
		if req.QtyChange < 0 && -req.QtyChange > part.OnHandQty {
			return &InsufficientStockError{
				PartID:    part.ID,
				PartName:  part.PartName,
				Available: part.OnHandQty,
				Requested: -req.QtyChange,
			}
		}

		updated, err := s.UpdatePartCounters(ctx, part.ID, PartUpdate{OnHandDelta: req.QtyChange})
		if err != nil {
			return err
		}

		trx := &Transaction{
			ID:             TransactionID(e.newID()),
			Type:           TxAdjustment,
			PartID:         part.ID,
			QtyChange:      req.QtyChange,
			UnitCost:       part.AvgCost, // cost snapshot for audit
			Reference:      Reference{Kind: RefAdjustment},
			PerformedBy:    req.Actor,
			IdempotencyKey: req.IdempotencyKey,
			Notes:          req.Reason,
			CreatedAt:      e.now(),
		}
		if err := s.AppendTransaction(ctx, trx); err != nil {
			return err
		}

		if err := s.AppendAudit(ctx, e.audit(AuditAdjust, "Part", string(part.ID), req.Actor, map[string]any{
			"qty_change":     req.QtyChange,
			"reason":         req.Reason,
			"transaction_id": string(trx.ID),
		})); err != nil {
			return err
		}

		result = MutationResult{Part: updated, Transaction: trx}
		return nil
	})
	return e.settle(ctx, &result, req.IdempotencyKey, "adjust", err)
}

// =============================================================================
// ISSUE TO WORK ORDER
// =============================================================================

// IssueRequest removes stock for use on a work order. The ledger entry
// snapshots the part's current average cost and selling price so the work
// order can bill from its own copy later.
type IssueRequest struct {
	PartID         PartID
	Qty            int
	WorkOrderID    string
	Notes          string
	Actor          Actor
	IdempotencyKey string
}

// IssueToWorkOrder removes qty units, bounded by available (on-hand minus
// reserved) stock.
func (e *Engine) IssueToWorkOrder(ctx context.Context, req IssueRequest) (*MutationResult, error) {
	if req.Actor.EmployeeID == "" {
		return nil, ErrMissingActor
	}
	if req.Qty <= 0 {
		return nil, &InvalidQuantityError{Field: "qty", Value: req.Qty, Reason: "must be a positive integer"}
	}

	if prior, err := e.findReplay(ctx, req.IdempotencyKey); err != nil || prior != nil {
		return prior, err
	}

	var result MutationResult
	err := e.store.WithTx(ctx, func(s Store) error {
		part, err := s.GetPart(ctx, req.PartID)
		if err != nil {
			return err
		}
		if req.Qty > part.AvailableQty() {
			return &InsufficientStockError{
				PartID:    part.ID,
				PartName:  part.PartName,
				Available: part.AvailableQty(),
				Requested: req.Qty,
			}
		}

		updated, err := s.UpdatePartCounters(ctx, part.ID, PartUpdate{OnHandDelta: -req.Qty})
		if err != nil {
			return err
		}

		price := part.SellingPrice
		trx := &Transaction{
			ID:             TransactionID(e.newID()),
			Type:           TxIssueToWorkOrder,
			PartID:         part.ID,
			QtyChange:      -req.Qty,
			UnitCost:       part.AvgCost,
			UnitPrice:      &price,
			Reference:      Reference{Kind: RefWorkOrder, ID: req.WorkOrderID},
			PerformedBy:    req.Actor,
			IdempotencyKey: req.IdempotencyKey,
			Notes:          req.Notes,
			CreatedAt:      e.now(),
		}
		if err := s.AppendTransaction(ctx, trx); err != nil {
			return err
		}

		if err := s.AppendAudit(ctx, e.audit(AuditIssue, "Part", string(part.ID), req.Actor, map[string]any{
			"qty":            req.Qty,
			"work_order_id":  req.WorkOrderID,
			"transaction_id": string(trx.ID),
		})); err != nil {
			return err
		}

		result = MutationResult{Part: updated, Transaction: trx}
		return nil
	})
	return e.settle(ctx, &result, req.IdempotencyKey, "issue", err)
}

// =============================================================================
// COUNTER SALE - Multi-line, all-or-nothing
// =============================================================================

// CheckoutLine is one line item of a counter sale.
type CheckoutLine struct {
	PartID PartID
	Qty    int
}

// CheckoutRequest is a multi-line counter sale. Reference may point at the
// invoice created by the caller; when zero the engine mints a
// COUNTER_SALE reference so all lines share one id.
type CheckoutRequest struct {
	Lines          []CheckoutLine
	Reference      Reference
	Actor          Actor
	IdempotencyKey string
}

// CheckoutResult holds the ledger entries and part snapshots of a checkout,
// in line order.
type CheckoutResult struct {
	Transactions []Transaction
	Parts        []Part
	Reference    Reference
	Replayed     bool
}

// CounterSaleCheckout validates every line against availability before
// applying any, then applies all lines inside one transaction. A failure on
// any line leaves every part counter and the ledger untouched.
func (e *Engine) CounterSaleCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.Actor.EmployeeID == "" {
		return nil, ErrMissingActor
	}
	if len(req.Lines) == 0 {
		return nil, &InvalidQuantityError{Field: "lines", Value: 0, Reason: "at least one line item is required"}
	}
	for _, line := range req.Lines {
		if line.Qty <= 0 {
			return nil, &InvalidQuantityError{Field: "qty", Value: line.Qty, Reason: "must be a positive integer"}
		}
	}

	if prior, err := e.findCheckoutReplay(ctx, req.IdempotencyKey); err != nil || prior != nil {
		return prior, err
	}

	ref := req.Reference
	if ref.IsZero() {
		ref = Reference{Kind: RefCounterSale, ID: e.newID()}
	}

	var result CheckoutResult
	err := e.store.WithTx(ctx, func(s Store) error {
		// Pass 1: load each part once and validate the aggregate demand.
		requested := make(map[PartID]int)
		loaded := make(map[PartID]*Part)
		for _, line := range req.Lines {
			requested[line.PartID] += line.Qty
			if _, ok := loaded[line.PartID]; ok {
				continue
			}
			part, err := s.GetPart(ctx, line.PartID)
			if err != nil {
				return err
			}
			loaded[line.PartID] = part
		}
		for _, line := range req.Lines {
			part := loaded[line.PartID]
			if requested[part.ID] > part.AvailableQty() {
				return &InsufficientStockError{
					PartID:    part.ID,
					PartName:  part.PartName,
					Available: part.AvailableQty(),
					Requested: requested[part.ID],
				}
			}
		}

		// Pass 2: apply every line.
		now := e.now()
		txs := make([]Transaction, 0, len(req.Lines))
		for i, line := range req.Lines {
			part := loaded[line.PartID]
			if _, err := s.UpdatePartCounters(ctx, part.ID, PartUpdate{OnHandDelta: -line.Qty}); err != nil {
				return err
			}

			// The raw key lives on the first line only; replay resolves
			// the rest of the checkout through the shared reference.
			key := ""
			if i == 0 {
				key = req.IdempotencyKey
			}
			price := part.SellingPrice
			trx := Transaction{
				ID:             TransactionID(e.newID()),
				Type:           TxCounterSale,
				PartID:         part.ID,
				QtyChange:      -line.Qty,
				UnitCost:       part.AvgCost,
				UnitPrice:      &price,
				Reference:      ref,
				PerformedBy:    req.Actor,
				IdempotencyKey: key,
				CreatedAt:      now,
			}
			if err := s.AppendTransaction(ctx, &trx); err != nil {
				return err
			}
			txs = append(txs, trx)
		}

		parts := make([]Part, 0, len(req.Lines))
		for _, line := range req.Lines {
			part, err := s.GetPart(ctx, line.PartID)
			if err != nil {
				return err
			}
			parts = append(parts, *part)
		}

		if err := s.AppendAudit(ctx, e.audit(AuditCounterSale, "Invoice", ref.ID, req.Actor, map[string]any{
			"lines":     len(req.Lines),
			"reference": ref.ID,
		})); err != nil {
			return err
		}

		result = CheckoutResult{Transactions: txs, Parts: parts, Reference: ref}
		return nil
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return e.findCheckoutReplay(ctx, req.IdempotencyKey)
	}
	if err != nil {
		e.logFailure(err, "counter_sale")
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// RETURN
// =============================================================================

// ReturnRequest puts previously sold or issued stock back on the shelf.
// When OriginalTransactionID is set, the return inherits the original
// entry's cost, price and reference.
type ReturnRequest struct {
	PartID                PartID
	Qty                   int
	OriginalTransactionID TransactionID
	Notes                 string
	Actor                 Actor
	IdempotencyKey        string
}

// Return adds qty units back to on-hand stock.
func (e *Engine) Return(ctx context.Context, req ReturnRequest) (*MutationResult, error) {
	if req.Actor.EmployeeID == "" {
		return nil, ErrMissingActor
	}
	if req.Qty <= 0 {
		return nil, &InvalidQuantityError{Field: "qty", Value: req.Qty, Reason: "must be a positive integer"}
	}

	if prior, err := e.findReplay(ctx, req.IdempotencyKey); err != nil || prior != nil {
		return prior, err
	}

	var result MutationResult
	err := e.store.WithTx(ctx, func(s Store) error {
		part, err := s.GetPart(ctx, req.PartID)
		if err != nil {
			return err
		}

		unitCost := part.AvgCost
		var unitPrice *decimal.Decimal
		ref := Reference{}
		notes := req.Notes
		if req.OriginalTransactionID != "" {
			original, err := s.GetTransaction(ctx, req.OriginalTransactionID)
			if err != nil {
				return err
			}
			unitCost = original.UnitCost
			unitPrice = original.UnitPrice
			ref = original.Reference
			if notes == "" {
				notes = fmt.Sprintf("Return against %s", original.ID)
			}
		}

		updated, err := s.UpdatePartCounters(ctx, part.ID, PartUpdate{OnHandDelta: req.Qty})
		if err != nil {
			return err
		}

		trx := &Transaction{
			ID:             TransactionID(e.newID()),
			Type:           TxReturn,
			PartID:         part.ID,
			QtyChange:      req.Qty,
			UnitCost:       unitCost,
			UnitPrice:      unitPrice,
			Reference:      ref,
			PerformedBy:    req.Actor,
			IdempotencyKey: req.IdempotencyKey,
			Notes:          notes,
			CreatedAt:      e.now(),
		}
		if err := s.AppendTransaction(ctx, trx); err != nil {
			return err
		}

		if err := s.AppendAudit(ctx, e.audit(AuditReturn, "Part", string(part.ID), req.Actor, map[string]any{
			"qty":            req.Qty,
			"transaction_id": string(trx.ID),
		})); err != nil {
			return err
		}

		result = MutationResult{Part: updated, Transaction: trx}
		return nil
	})
	return e.settle(ctx, &result, req.IdempotencyKey, "return", err)
}

// =============================================================================
// REVERSAL
// =============================================================================

// ReverseRequest negates a prior ledger entry.
type ReverseRequest struct {
	TransactionID  TransactionID
	Actor          Actor
	IdempotencyKey string
}

// Reverse creates a compensating entry with the opposite quantity change
// and ReversesTransactionID pointing at the original. The original entry is
// never altered. Re-validates against current counters: reversing a RECEIVE
// requires enough on-hand stock to remove.
func (e *Engine) Reverse(ctx context.Context, req ReverseRequest) (*MutationResult, error) {
	if req.Actor.EmployeeID == "" {
		return nil, ErrMissingActor
	}

	if prior, err := e.findReplay(ctx, req.IdempotencyKey); err != nil || prior != nil {
		return prior, err
	}

	var result MutationResult
	err := e.store.WithTx(ctx, func(s Store) error {
		original, err := s.GetTransaction(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		part, err := s.GetPart(ctx, original.PartID)
		if err != nil {
			return err
		}

		reverseQty := -original.QtyChange
		if reverseQty < 0 && -reverseQty > part.OnHandQty {
			return &InsufficientStockError{
				PartID:    part.ID,
				PartName:  part.PartName,
				Available: part.OnHandQty,
				Requested: -reverseQty,
			}
		}

		updated, err := s.UpdatePartCounters(ctx, part.ID, PartUpdate{OnHandDelta: reverseQty})
		if err != nil {
			return err
		}

		trx := &Transaction{
			ID:                    TransactionID(e.newID()),
			Type:                  TxReturn,
			PartID:                part.ID,
			QtyChange:             reverseQty,
			UnitCost:              original.UnitCost,
			UnitPrice:             original.UnitPrice,
			Reference:             original.Reference,
			PerformedBy:           req.Actor,
			IdempotencyKey:        req.IdempotencyKey,
			ReversesTransactionID: original.ID,
			Notes:                 fmt.Sprintf("Reversal of %s", original.ID),
			CreatedAt:             e.now(),
		}
		if err := s.AppendTransaction(ctx, trx); err != nil {
			return err
		}

		if err := s.AppendAudit(ctx, e.audit(AuditReversal, "Part", string(part.ID), req.Actor, map[string]any{
			"reverses":   string(original.ID),
			"qty_change": reverseQty,
		})); err != nil {
			return err
		}

		result = MutationResult{Part: updated, Transaction: trx}
		return nil
	})
	return e.settle(ctx, &result, req.IdempotencyKey, "reverse", err)
}

// =============================================================================
// WORK-ORDER RESERVATIONS
// =============================================================================

// ReserveRequest earmarks stock for a work order without removing it.
type ReserveRequest struct {
	PartID      PartID
	Qty         int
	WorkOrderID string
	Actor       Actor
}

// ReserveForWorkOrder moves qty units from available into reserved.
// Reservations do not write ledger entries: no stock moves.
func (e *Engine) ReserveForWorkOrder(ctx context.Context, req ReserveRequest) (*Part, error) {
	if req.Actor.EmployeeID == "" {
		return nil, ErrMissingActor
	}
	if req.Qty <= 0 {
		return nil, &InvalidQuantityError{Field: "qty", Value: req.Qty, Reason: "must be a positive integer"}
	}

	var updated *Part
	err := e.store.WithTx(ctx, func(s Store) error {
		part, err := s.GetPart(ctx, req.PartID)
		if err != nil {
			return err
		}
		if req.Qty > part.AvailableQty() {
			return &InsufficientStockError{
				PartID:    part.ID,
				PartName:  part.PartName,
				Available: part.AvailableQty(),
				Requested: req.Qty,
			}
		}
		updated, err = s.UpdatePartCounters(ctx, part.ID, PartUpdate{ReservedDelta: req.Qty})
		if err != nil {
			return err
		}
		return s.AppendAudit(ctx, e.audit(AuditReserve, "Part", string(part.ID), req.Actor, map[string]any{
			"qty":           req.Qty,
			"work_order_id": req.WorkOrderID,
		}))
	})
	if err != nil {
		e.logFailure(err, "reserve")
		return nil, err
	}
	return updated, nil
}

// ReleaseReservation gives reserved stock back to the available pool.
func (e *Engine) ReleaseReservation(ctx context.Context, req ReserveRequest) (*Part, error) {
	if req.Actor.EmployeeID == "" {
		return nil, ErrMissingActor
	}
	if req.Qty <= 0 {
		return nil, &InvalidQuantityError{Field: "qty", Value: req.Qty, Reason: "must be a positive integer"}
	}

	var updated *Part
	err := e.store.WithTx(ctx, func(s Store) error {
		part, err := s.GetPart(ctx, req.PartID)
		if err != nil {
			return err
		}
		if req.Qty > part.ReservedQty {
			return &InsufficientStockError{
				PartID:    part.ID,
				PartName:  part.PartName,
				Available: part.ReservedQty,
				Requested: req.Qty,
			}
		}
		updated, err = s.UpdatePartCounters(ctx, part.ID, PartUpdate{ReservedDelta: -req.Qty})
		if err != nil {
			return err
		}
		return s.AppendAudit(ctx, e.audit(AuditRelease, "Part", string(part.ID), req.Actor, map[string]any{
			"qty":           req.Qty,
			"work_order_id": req.WorkOrderID,
		}))
	})
	if err != nil {
		e.logFailure(err, "release")
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// IDEMPOTENT REPLAY
// =============================================================================

// findReplay returns the prior result recorded under key, or nil when the
// key is unused.
func (e *Engine) findReplay(ctx context.Context, key string) (*MutationResult, error) {
	if key == "" {
		return nil, nil
	}
	trx, err := e.store.FindTransactionByIdempotencyKey(ctx, key)
	if err != nil || trx == nil {
		return nil, err
	}
	part, err := e.store.GetPart(ctx, trx.PartID)
	if err != nil {
		return nil, err
	}
	return &MutationResult{Part: part, Transaction: trx, Replayed: true}, nil
}

// findCheckoutReplay resolves a full checkout from its first line's key:
// the shared reference id recovers the remaining lines.
func (e *Engine) findCheckoutReplay(ctx context.Context, key string) (*CheckoutResult, error) {
	if key == "" {
		return nil, nil
	}
	first, err := e.store.FindTransactionByIdempotencyKey(ctx, key)
	if err != nil || first == nil {
		return nil, err
	}
	candidates, err := e.store.ListTransactions(ctx, TransactionFilter{
		Reference: first.Reference,
		Type:      TxCounterSale,
	})
	if err != nil {
		return nil, err
	}
	// The reference alone over-selects: reversals copy it onto their
	// compensating entries, and a caller-supplied invoice reference can be
	// shared by a later checkout. All lines of one checkout carry the same
	// timestamp and actor as the keyed first line.
	txs := make([]Transaction, 0, len(candidates))
	for _, trx := range candidates {
		if trx.CreatedAt.Equal(first.CreatedAt) && trx.PerformedBy.EmployeeID == first.PerformedBy.EmployeeID {
			txs = append(txs, trx)
		}
	}
	// ListTransactions is newest-first; replay in original line order.
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	parts := make([]Part, 0, len(txs))
	for _, trx := range txs {
		part, err := e.store.GetPart(ctx, trx.PartID)
		if err != nil {
			return nil, err
		}
		parts = append(parts, *part)
	}
	return &CheckoutResult{Transactions: txs, Parts: parts, Reference: first.Reference, Replayed: true}, nil
}

// settle finishes a single-part mutation: a duplicate-key loss becomes a
// replay of the winner's entry, consistency failures are logged, and a
// clean run returns the committed result.
func (e *Engine) settle(ctx context.Context, result *MutationResult, key, op string, err error) (*MutationResult, error) {
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return e.findReplay(ctx, key)
	}
	if err != nil {
		e.logFailure(err, op)
		return nil, err
	}
	return result, nil
}

func (e *Engine) logFailure(err error, op string) {
	if errors.Is(err, ErrInvariantViolation) {
		e.log.WithError(err).WithField("op", op).
			Error("stock counter invariant violated, mutation rolled back")
		return
	}
	if !IsClientError(err) && !IsNotFound(err) {
		e.log.WithError(err).WithField("op", op).Error("stock mutation failed")
	}
}

func (e *Engine) audit(action AuditAction, entityType, entityID string, actor Actor, payload map[string]any) AuditEntry {
	return AuditEntry{
		ID:         e.newID(),
		Timestamp:  e.now(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Payload:    payload,
	}
}
