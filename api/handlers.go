/*
handlers.go - HTTP API handlers for the inventory system

PURPOSE:
  Exposes the inventory engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Parts:
    GET    /api/parts                    List parts (search, pagination)
    POST   /api/parts                    Create part
    GET    /api/parts/low-stock          Parts below reorder level
    GET    /api/parts/{id}               Part details
    GET    /api/parts/{id}/transactions  Ledger history for one part

  Stock mutations:
    POST   /api/parts/{id}/receive       Receive stock (CASH or CREDIT)
    POST   /api/parts/{id}/adjust        Manual adjustment (reason required)
    POST   /api/parts/{id}/issue         Issue to work order
    POST   /api/parts/{id}/return        Return to shelf
    POST   /api/parts/{id}/reserve       Reserve for work order
    POST   /api/parts/{id}/release       Release a reservation
    POST   /api/counter-sales            Multi-line counter sale

  Ledger:
    GET    /api/transactions             Filtered ledger listing
    GET    /api/transactions/{id}        Single entry
    POST   /api/transactions/{id}/reverse Compensating reversal

  Financials:
    GET    /api/payables                 List payables
    GET    /api/payables/{id}            Payable details
    POST   /api/payables/{id}/settle     Settle (OPEN -> PAID + expense)
    GET    /api/expenses                 List expenses
    GET    /api/audit                    Audit log

ACTOR IDENTITY:
  Every mutation reads the acting employee from request headers:
    X-Employee-Id (required), X-Employee-Name, X-Employee-Role.
  A missing id is rejected with 400 before any work happens.

ERROR HANDLING:
  Domain errors map to HTTP statuses:
  - 400: Validation errors, invalid input, missing actor
  - 404: Part / transaction / payable not found
  - 409: Insufficient stock, already-paid payable, duplicate SKU
  - 500: Internal errors
  Idempotent replays are NOT errors: they return 200 with replayed=true.

SECURITY NOTE:
  No authentication middleware currently; identity headers are trusted.
  The surrounding application gateway is expected to authenticate.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - inventory/engine.go: The domain logic behind every mutation
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kush1999-h/signature-auto-care-sub000/inventory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  inventory.TxStore
	Engine *inventory.Engine
	Log    logrus.FieldLogger

	validate *validator.Validate
}

// NewHandler creates a handler over the given store.
func NewHandler(store inventory.TxStore, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Store:    store,
		Engine:   inventory.NewEngine(store, log),
		Log:      log,
		validate: validator.New(),
	}
}

// actorFrom reads the acting employee from request headers. Validation of
// the id happens in the engine (ErrMissingActor).
func actorFrom(r *http.Request) inventory.Actor {
	return inventory.Actor{
		EmployeeID: r.Header.Get("X-Employee-Id"),
		Name:       r.Header.Get("X-Employee-Name"),
		Role:       r.Header.Get("X-Employee-Role"),
	}
}

// idempotencyKey prefers the Idempotency-Key header over the body field.
func idempotencyKey(r *http.Request, bodyKey string) string {
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		return key
	}
	return bodyKey
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// PART HANDLERS
// =============================================================================

// ListParts returns a paginated part listing.
// GET /api/parts?search=&page=&limit=
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	filter := inventory.PartFilter{
		Search: r.URL.Query().Get("search"),
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 200),
	}

	parts, total, err := h.Store.ListParts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list parts", err)
		return
	}

	items := make([]PartDTO, len(parts))
	for i := range parts {
		items[i] = toPartDTO(&parts[i])
	}
	writeJSON(w, http.StatusOK, ListPartsResponse{
		Items: items,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}

// GetPart returns a single part.
// GET /api/parts/{id}
func (h *Handler) GetPart(w http.ResponseWriter, r *http.Request) {
	id := inventory.PartID(chi.URLParam(r, "id"))
	part, err := h.Store.GetPart(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPartDTO(part))
}

// CreatePart creates a new part with zero stock.
// POST /api/parts
func (h *Handler) CreatePart(w http.ResponseWriter, r *http.Request) {
	var req CreatePartRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	purchasePrice, err := parseDecimalField(req.PurchasePrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid purchasePrice", err)
		return
	}
	sellingPrice, err := parseDecimalField(req.SellingPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sellingPrice", err)
		return
	}

	part := &inventory.Part{
		ID:            inventory.PartID(uuid.NewString()),
		SKU:           req.SKU,
		Barcode:       req.Barcode,
		PartName:      req.PartName,
		Description:   req.Description,
		Category:      req.Category,
		VendorName:    req.VendorName,
		Unit:          req.Unit,
		ReorderLevel:  req.ReorderLevel,
		PurchasePrice: purchasePrice,
		SellingPrice:  sellingPrice,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.Store.CreatePart(r.Context(), part); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartDTO(part))
}

// ListLowStock returns parts below their reorder level.
// GET /api/parts/low-stock
func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	parts, err := h.Store.ListLowStock(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list low stock", err)
		return
	}
	items := make([]PartDTO, len(parts))
	for i := range parts {
		items[i] = toPartDTO(&parts[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// =============================================================================
// STOCK MUTATION HANDLERS
// =============================================================================

// ReceiveStock adds stock from a vendor delivery.
// POST /api/parts/{id}/receive
func (h *Handler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	var req ReceiveStockRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	unitCost, err := parseDecimalField(req.UnitCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid unitCost", err)
		return
	}
	engineReq := inventory.ReceiveRequest{
		PartID:         inventory.PartID(chi.URLParam(r, "id")),
		Qty:            req.Qty,
		UnitCost:       unitCost,
		PaymentMethod:  inventory.PaymentMethod(req.PaymentMethod),
		VendorName:     req.VendorName,
		Notes:          req.Notes,
		Actor:          actorFrom(r),
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	}
	if req.SellingPrice != "" {
		price, err := parseDecimalField(req.SellingPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid sellingPrice", err)
			return
		}
		engineReq.SellingPrice = &price
	}

	res, err := h.Engine.Receive(r.Context(), engineReq)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(res))
}

// AdjustStock corrects the on-hand count after a physical recount.
// POST /api/parts/{id}/adjust
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustStockRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.Engine.Adjust(r.Context(), inventory.AdjustRequest{
		PartID:         inventory.PartID(chi.URLParam(r, "id")),
		QtyChange:      req.QtyChange,
		Reason:         req.Reason,
		Actor:          actorFrom(r),
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(res))
}

// IssueStock removes stock for a work order.
// POST /api/parts/{id}/issue
func (h *Handler) IssueStock(w http.ResponseWriter, r *http.Request) {
	var req IssueStockRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.Engine.IssueToWorkOrder(r.Context(), inventory.IssueRequest{
		PartID:         inventory.PartID(chi.URLParam(r, "id")),
		Qty:            req.Qty,
		WorkOrderID:    req.WorkOrderID,
		Notes:          req.Notes,
		Actor:          actorFrom(r),
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(res))
}

// ReturnStock puts sold or issued stock back on the shelf.
// POST /api/parts/{id}/return
func (h *Handler) ReturnStock(w http.ResponseWriter, r *http.Request) {
	var req ReturnStockRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.Engine.Return(r.Context(), inventory.ReturnRequest{
		PartID:                inventory.PartID(chi.URLParam(r, "id")),
		Qty:                   req.Qty,
		OriginalTransactionID: inventory.TransactionID(req.OriginalTransactionID),
		Notes:                 req.Notes,
		Actor:                 actorFrom(r),
		IdempotencyKey:        idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(res))
}

// ReserveStock earmarks stock for a work order without removing it.
// POST /api/parts/{id}/reserve
func (h *Handler) ReserveStock(w http.ResponseWriter, r *http.Request) {
	var req ReserveStockRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	part, err := h.Engine.ReserveForWorkOrder(r.Context(), inventory.ReserveRequest{
		PartID:      inventory.PartID(chi.URLParam(r, "id")),
		Qty:         req.Qty,
		WorkOrderID: req.WorkOrderID,
		Actor:       actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPartDTO(part))
}

// ReleaseStock gives reserved stock back to the available pool.
// POST /api/parts/{id}/release
func (h *Handler) ReleaseStock(w http.ResponseWriter, r *http.Request) {
	var req ReserveStockRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	part, err := h.Engine.ReleaseReservation(r.Context(), inventory.ReserveRequest{
		PartID:      inventory.PartID(chi.URLParam(r, "id")),
		Qty:         req.Qty,
		WorkOrderID: req.WorkOrderID,
		Actor:       actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPartDTO(part))
}

// CounterSale commits a multi-line walk-in sale, all lines or none.
// POST /api/counter-sales
func (h *Handler) CounterSale(w http.ResponseWriter, r *http.Request) {
	var req CounterSaleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	lines := make([]inventory.CheckoutLine, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = inventory.CheckoutLine{PartID: inventory.PartID(line.PartID), Qty: line.Qty}
	}
	ref := inventory.Reference{}
	if req.InvoiceID != "" {
		ref = inventory.Reference{Kind: inventory.RefInvoice, ID: req.InvoiceID}
	}

	res, err := h.Engine.CounterSaleCheckout(r.Context(), inventory.CheckoutRequest{
		Lines:          lines,
		Reference:      ref,
		Actor:          actorFrom(r),
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := CounterSaleResponse{
		Transactions:  make([]TransactionDTO, len(res.Transactions)),
		Parts:         make([]PartDTO, len(res.Parts)),
		ReferenceType: string(res.Reference.Kind),
		ReferenceID:   res.Reference.ID,
		Replayed:      res.Replayed,
	}
	for i := range res.Transactions {
		resp.Transactions[i] = toTransactionDTO(&res.Transactions[i])
	}
	for i := range res.Parts {
		resp.Parts[i] = toPartDTO(&res.Parts[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListTransactions returns ledger entries newest first.
// GET /api/transactions?partId=&type=&paymentMethod=&referenceType=&referenceId=&from=&to=&limit=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := inventory.TransactionFilter{
		PartID:        inventory.PartID(q.Get("partId")),
		Type:          inventory.TransactionType(q.Get("type")),
		PaymentMethod: inventory.PaymentMethod(q.Get("paymentMethod")),
		Reference: inventory.Reference{
			Kind: inventory.ReferenceKind(q.Get("referenceType")),
			ID:   q.Get("referenceId"),
		},
		From:  queryTime(r, "from"),
		To:    queryTime(r, "to"),
		Limit: queryInt(r, "limit", 0),
	}

	txs, err := h.Store.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i := range txs {
		dtos[i] = toTransactionDTO(&txs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPartTransactions returns one part's ledger history.
// GET /api/parts/{id}/transactions
func (h *Handler) ListPartTransactions(w http.ResponseWriter, r *http.Request) {
	id := inventory.PartID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetPart(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	txs, err := h.Store.ListTransactions(r.Context(), inventory.TransactionFilter{
		PartID: id,
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i := range txs {
		dtos[i] = toTransactionDTO(&txs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTransaction returns a single ledger entry.
// GET /api/transactions/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	trx, err := h.Store.GetTransaction(r.Context(), inventory.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(trx))
}

// ReverseTransaction records a compensating entry against a prior one.
// POST /api/transactions/{id}/reverse
func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	// The body is optional; an empty body means no idempotency key.
	var req ReverseTransactionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	res, err := h.Engine.Reverse(r.Context(), inventory.ReverseRequest{
		TransactionID:  inventory.TransactionID(chi.URLParam(r, "id")),
		Actor:          actorFrom(r),
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMutationResponse(res))
}

// =============================================================================
// FINANCIAL HANDLERS
// =============================================================================

// ListPayables returns payables newest first.
// GET /api/payables?status=&vendor=&partId=&from=&to=&limit=
func (h *Handler) ListPayables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	payables, err := h.Store.ListPayables(r.Context(), inventory.PayableFilter{
		Status: inventory.PayableStatus(q.Get("status")),
		Vendor: q.Get("vendor"),
		PartID: inventory.PartID(q.Get("partId")),
		From:   queryTime(r, "from"),
		To:     queryTime(r, "to"),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payables", err)
		return
	}
	dtos := make([]PayableDTO, len(payables))
	for i := range payables {
		dtos[i] = toPayableDTO(&payables[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPayable returns a single payable.
// GET /api/payables/{id}
func (h *Handler) GetPayable(w http.ResponseWriter, r *http.Request) {
	payable, err := h.Store.GetPayable(r.Context(), inventory.PayableID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayableDTO(payable))
}

// SettlePayable flips a payable OPEN -> PAID and posts the cash expense.
// POST /api/payables/{id}/settle
func (h *Handler) SettlePayable(w http.ResponseWriter, r *http.Request) {
	payable, expense, err := h.Engine.SettlePayable(r.Context(),
		inventory.PayableID(chi.URLParam(r, "id")), actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettlePayableResponse{
		Payable: toPayableDTO(payable),
		Expense: toExpenseDTO(expense),
	})
}

// ListExpenses returns non-deleted expenses newest first.
// GET /api/expenses?category=&from=&to=&limit=
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.Store.ListExpenses(r.Context(), inventory.ExpenseFilter{
		Category: r.URL.Query().Get("category"),
		From:     queryTime(r, "from"),
		To:       queryTime(r, "to"),
		Limit:    queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list expenses", err)
		return
	}
	dtos := make([]ExpenseDTO, len(expenses))
	for i := range expenses {
		dtos[i] = toExpenseDTO(&expenses[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAudit returns audit entries newest first.
// GET /api/audit?action=&entityType=&entityId=&actorId=&from=&to=&limit=
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.Store.ListAudit(r.Context(), inventory.AuditFilter{
		Action:     inventory.AuditAction(q.Get("action")),
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
		ActorID:    q.Get("actorId"),
		From:       queryTime(r, "from"),
		To:         queryTime(r, "to"),
		Limit:      queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list audit entries", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = toAuditEntryDTO(entry)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the inventory error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var short *inventory.InsufficientStockError
	if errors.As(err, &short) {
		resp.Available = &short.Available
		resp.Requested = &short.Requested
	}

	status := http.StatusInternalServerError
	switch {
	case inventory.IsNotFound(err):
		status = http.StatusNotFound
	case inventory.IsConflict(err):
		status = http.StatusConflict
	case inventory.IsClientError(err):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func queryTime(r *http.Request, name string) time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	return time.Time{}
}
