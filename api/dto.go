/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY FIELDS:
  All money crosses the wire as decimal strings ("12.50"), never floats.
  Quantities are plain integers.

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  them through Handler.validate before touching the engine. Domain rules
  (availability, idempotency) stay in the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - inventory/types.go: The domain model these map from
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kush1999-h/signature-auto-care-sub000/inventory"
)

// =============================================================================
// PARTS
// =============================================================================

// PartDTO represents a part in API responses.
type PartDTO struct {
	ID            string `json:"id"`
	SKU           string `json:"sku"`
	Barcode       string `json:"barcode,omitempty"`
	PartName      string `json:"partName"`
	Description   string `json:"description,omitempty"`
	Category      string `json:"category,omitempty"`
	VendorName    string `json:"vendorName,omitempty"`
	Unit          string `json:"unit,omitempty"`
	ReorderLevel  *int   `json:"reorderLevel,omitempty"`
	PurchasePrice string `json:"purchasePrice"`
	SellingPrice  string `json:"sellingPrice"`
	AvgCost       string `json:"avgCost"`
	OnHandQty     int    `json:"onHandQty"`
	ReservedQty   int    `json:"reservedQty"`
	AvailableQty  int    `json:"availableQty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

func toPartDTO(p *inventory.Part) PartDTO {
	return PartDTO{
		ID:            string(p.ID),
		SKU:           p.SKU,
		Barcode:       p.Barcode,
		PartName:      p.PartName,
		Description:   p.Description,
		Category:      p.Category,
		VendorName:    p.VendorName,
		Unit:          p.Unit,
		ReorderLevel:  p.ReorderLevel,
		PurchasePrice: p.PurchasePrice.String(),
		SellingPrice:  p.SellingPrice.String(),
		AvgCost:       p.AvgCost.String(),
		OnHandQty:     p.OnHandQty,
		ReservedQty:   p.ReservedQty,
		AvailableQty:  p.AvailableQty(),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339),
	}
}

// CreatePartRequest creates a new part. Prices default to "0".
type CreatePartRequest struct {
	SKU           string `json:"sku" validate:"required"`
	Barcode       string `json:"barcode"`
	PartName      string `json:"partName" validate:"required"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	VendorName    string `json:"vendorName"`
	Unit          string `json:"unit"`
	ReorderLevel  *int   `json:"reorderLevel" validate:"omitempty,min=0"`
	PurchasePrice string `json:"purchasePrice"`
	SellingPrice  string `json:"sellingPrice"`
}

// ListPartsResponse is a paginated part listing.
type ListPartsResponse struct {
	Items []PartDTO `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// =============================================================================
// STOCK MUTATIONS
// =============================================================================

// ReceiveStockRequest adds stock from a vendor delivery.
type ReceiveStockRequest struct {
	Qty            int    `json:"qty" validate:"required,gt=0"`
	UnitCost       string `json:"unitCost" validate:"required"`
	SellingPrice   string `json:"sellingPrice"`
	PaymentMethod  string `json:"paymentMethod" validate:"required"`
	VendorName     string `json:"vendorName"`
	Notes          string `json:"notes"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// AdjustStockRequest corrects the on-hand count after a physical recount.
type AdjustStockRequest struct {
	QtyChange      int    `json:"qtyChange" validate:"required"`
	Reason         string `json:"reason" validate:"required"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// IssueStockRequest removes stock for a work order.
type IssueStockRequest struct {
	Qty            int    `json:"qty" validate:"required,gt=0"`
	WorkOrderID    string `json:"workOrderId" validate:"required"`
	Notes          string `json:"notes"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// ReserveStockRequest earmarks (or releases) stock for a work order.
type ReserveStockRequest struct {
	Qty         int    `json:"qty" validate:"required,gt=0"`
	WorkOrderID string `json:"workOrderId"`
}

// ReturnStockRequest puts sold or issued stock back on the shelf.
type ReturnStockRequest struct {
	Qty                   int    `json:"qty" validate:"required,gt=0"`
	OriginalTransactionID string `json:"originalTransactionId"`
	Notes                 string `json:"notes"`
	IdempotencyKey        string `json:"idempotencyKey"`
}

// CounterSaleLine is one line of a walk-in sale.
type CounterSaleLine struct {
	PartID string `json:"partId" validate:"required"`
	Qty    int    `json:"qty" validate:"required,gt=0"`
}

// CounterSaleRequest is a multi-line walk-in sale. All lines commit or none.
type CounterSaleRequest struct {
	Lines          []CounterSaleLine `json:"lines" validate:"required,min=1,dive"`
	InvoiceID      string            `json:"invoiceId"`
	IdempotencyKey string            `json:"idempotencyKey"`
}

// ReverseTransactionRequest negates a prior ledger entry.
type ReverseTransactionRequest struct {
	IdempotencyKey string `json:"idempotencyKey"`
}

// =============================================================================
// LEDGER / FINANCIALS
// =============================================================================

// ActorDTO identifies the employee behind a mutation.
type ActorDTO struct {
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role,omitempty"`
}

func toActorDTO(a inventory.Actor) ActorDTO {
	return ActorDTO{EmployeeID: a.EmployeeID, Name: a.Name, Role: a.Role}
}

// TransactionDTO represents one immutable ledger entry.
type TransactionDTO struct {
	ID                    string   `json:"id"`
	Type                  string   `json:"type"`
	PartID                string   `json:"partId"`
	QtyChange             int      `json:"qtyChange"`
	UnitCost              string   `json:"unitCost"`
	UnitPrice             *string  `json:"unitPrice,omitempty"`
	PaymentMethod         string   `json:"paymentMethod,omitempty"`
	VendorName            string   `json:"vendorName,omitempty"`
	ReferenceType         string   `json:"referenceType,omitempty"`
	ReferenceID           string   `json:"referenceId,omitempty"`
	PerformedBy           ActorDTO `json:"performedBy"`
	ReversesTransactionID string   `json:"reversesTransactionId,omitempty"`
	Notes                 string   `json:"notes,omitempty"`
	CreatedAt             string   `json:"createdAt"`
}

func toTransactionDTO(t *inventory.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:                    string(t.ID),
		Type:                  string(t.Type),
		PartID:                string(t.PartID),
		QtyChange:             t.QtyChange,
		UnitCost:              t.UnitCost.String(),
		PaymentMethod:         string(t.PaymentMethod),
		VendorName:            t.VendorName,
		ReferenceType:         string(t.Reference.Kind),
		ReferenceID:           t.Reference.ID,
		PerformedBy:           toActorDTO(t.PerformedBy),
		ReversesTransactionID: string(t.ReversesTransactionID),
		Notes:                 t.Notes,
		CreatedAt:             t.CreatedAt.Format(time.RFC3339),
	}
	if t.UnitPrice != nil {
		price := t.UnitPrice.String()
		dto.UnitPrice = &price
	}
	return dto
}

// PayableDTO represents an open or settled vendor liability.
type PayableDTO struct {
	ID            string  `json:"id"`
	Category      string  `json:"category,omitempty"`
	Amount        string  `json:"amount"`
	Qty           int     `json:"qty"`
	UnitCost      string  `json:"unitCost"`
	PartID        string  `json:"partId,omitempty"`
	TransactionID string  `json:"transactionId,omitempty"`
	VendorName    string  `json:"vendorName,omitempty"`
	Status        string  `json:"status"`
	PurchaseDate  string  `json:"purchaseDate"`
	DueDate       *string `json:"dueDate,omitempty"`
	PaidAt        *string `json:"paidAt,omitempty"`
	Note          string  `json:"note,omitempty"`
}

func toPayableDTO(p *inventory.Payable) PayableDTO {
	dto := PayableDTO{
		ID:            string(p.ID),
		Category:      p.Category,
		Amount:        p.Amount.String(),
		Qty:           p.Qty,
		UnitCost:      p.UnitCost.String(),
		PartID:        string(p.PartID),
		TransactionID: string(p.TransactionID),
		VendorName:    p.VendorName,
		Status:        string(p.Status),
		PurchaseDate:  p.PurchaseDate.Format(time.RFC3339),
		Note:          p.Note,
	}
	if p.DueDate != nil {
		due := p.DueDate.Format(time.RFC3339)
		dto.DueDate = &due
	}
	if p.PaidAt != nil {
		at := p.PaidAt.Format(time.RFC3339)
		dto.PaidAt = &at
	}
	return dto
}

// ExpenseDTO represents a cash outlay.
type ExpenseDTO struct {
	ID          string `json:"id"`
	Category    string `json:"category,omitempty"`
	Amount      string `json:"amount"`
	ExpenseDate string `json:"expenseDate"`
	Note        string `json:"note,omitempty"`
}

func toExpenseDTO(e *inventory.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:          string(e.ID),
		Category:    e.Category,
		Amount:      e.Amount.String(),
		ExpenseDate: e.ExpenseDate.Format(time.RFC3339),
		Note:        e.Note,
	}
}

// AuditEntryDTO represents one audit-log record.
type AuditEntryDTO struct {
	ID         string         `json:"id"`
	Timestamp  string         `json:"timestamp"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId,omitempty"`
	Actor      ActorDTO       `json:"actor"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func toAuditEntryDTO(e inventory.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		Timestamp:  e.Timestamp.Format(time.RFC3339),
		Action:     string(e.Action),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Actor:      toActorDTO(e.Actor),
		Payload:    e.Payload,
	}
}

// =============================================================================
// RESPONSE WRAPPERS
// =============================================================================

// MutationResponse wraps the outcome of a single-part stock mutation.
// Replayed is true when the call hit a previously recorded idempotency key
// and no state changed.
type MutationResponse struct {
	Part        PartDTO        `json:"part"`
	Transaction TransactionDTO `json:"transaction"`
	Expense     *ExpenseDTO    `json:"expense,omitempty"`
	Payable     *PayableDTO    `json:"payable,omitempty"`
	Replayed    bool           `json:"replayed"`
}

func toMutationResponse(res *inventory.MutationResult) MutationResponse {
	resp := MutationResponse{
		Part:        toPartDTO(res.Part),
		Transaction: toTransactionDTO(res.Transaction),
		Replayed:    res.Replayed,
	}
	if res.Expense != nil {
		e := toExpenseDTO(res.Expense)
		resp.Expense = &e
	}
	if res.Payable != nil {
		p := toPayableDTO(res.Payable)
		resp.Payable = &p
	}
	return resp
}

// CounterSaleResponse wraps a committed (or replayed) multi-line sale.
type CounterSaleResponse struct {
	Transactions  []TransactionDTO `json:"transactions"`
	Parts         []PartDTO        `json:"parts"`
	ReferenceType string           `json:"referenceType"`
	ReferenceID   string           `json:"referenceId"`
	Replayed      bool             `json:"replayed"`
}

// SettlePayableResponse wraps a settlement: the now-paid payable and the
// expense it produced.
type SettlePayableResponse struct {
	Payable PayableDTO `json:"payable"`
	Expense ExpenseDTO `json:"expense"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// Set for insufficient-stock rejections so the client can offer to
	// reduce the quantity.
	Available *int `json:"available,omitempty"`
	Requested *int `json:"requested,omitempty"`
}

// parseDecimalField parses a money string, treating "" as zero.
func parseDecimalField(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
