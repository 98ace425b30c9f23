/*
errors.go - Centralized error types for the inventory core

PURPOSE:
  All error types in one place for consistency and discoverability.
  The engine is the sole translator from storage-level failures into this
  taxonomy; callers (counter sale, work orders) never see storage errors.

ERROR CATEGORIES:
  1. Validation errors  - bad input shape/range, rejected before any read
  2. Business-rule errors - rejected after a read but before any write
  3. Consistency errors - counters would go negative; fatal, rolled back
  4. Idempotent replays - not errors: the prior result is returned

USAGE:
  if errors.Is(err, inventory.ErrInsufficientStock) {
      var short *inventory.InsufficientStockError
      errors.As(err, &short)
      // offer to reduce quantity to short.Available
  }

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP statuses
*/
package inventory

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPartNotFound is returned when a referenced part does not exist.
	ErrPartNotFound = errors.New("part not found")

	// ErrTransactionNotFound is returned when a ledger entry does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrPayableNotFound is returned when a referenced payable does not exist.
	ErrPayableNotFound = errors.New("payable not found")

	// ErrInvalidQuantity is returned for non-integer, zero-where-nonzero,
	// or negative-where-positive quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidUnitCost is returned when a RECEIVE carries a negative cost.
	ErrInvalidUnitCost = errors.New("unit cost must be zero or higher")

	// ErrMissingPaymentMethod is returned for a RECEIVE without CASH/CREDIT.
	ErrMissingPaymentMethod = errors.New("payment method must be CASH or CREDIT")

	// ErrMissingReason is returned for an ADJUSTMENT without a reason.
	ErrMissingReason = errors.New("adjustment reason is required")

	// ErrInsufficientStock is returned when a request exceeds availability.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvariantViolation means a counter would have gone negative past
	// the engine's own checks. Internal; the mutation is rolled back.
	ErrInvariantViolation = errors.New("stock counter invariant violated")

	// ErrDuplicateIdempotencyKey is raised by the store when an idempotency
	// key already exists. The engine converts it into a replay of the
	// original result, so callers normally never observe it.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDuplicateSKU is returned when creating a part whose SKU or barcode
	// is already taken.
	ErrDuplicateSKU = errors.New("sku or barcode already exists")

	// ErrAlreadyPaid is returned when settling a payable twice.
	ErrAlreadyPaid = errors.New("payable already paid")

	// ErrMissingActor is returned when a mutation has no employee identity.
	ErrMissingActor = errors.New("actor employee id is required")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports how short a request fell so the caller can
// distinguish "reduce quantity and retry" from a system failure.
type InsufficientStockError struct {
	PartID    PartID
	PartName  string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	name := e.PartName
	if name == "" {
		name = string(e.PartID)
	}
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InvalidQuantityError names the offending field and constraint.
type InvalidQuantityError struct {
	Field  string
	Value  int
	Reason string // e.g. "must be a positive integer", "must be non-zero"
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("%s=%d: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input or a
// business rule, i.e. retrying unchanged will not help but the request
// itself can be fixed.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidUnitCost) ||
		errors.Is(err, ErrMissingPaymentMethod) ||
		errors.Is(err, ErrMissingReason) ||
		errors.Is(err, ErrMissingActor) ||
		errors.Is(err, ErrDuplicateSKU) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrAlreadyPaid)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPartNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrPayableNotFound)
}

// IsConflict returns true for business-rule rejections that surface as
// HTTP 409 at the API boundary.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrDuplicateSKU)
}
