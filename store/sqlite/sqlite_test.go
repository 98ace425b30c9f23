package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kush1999-h/signature-auto-care-sub000/inventory"
	"github.com/kush1999-h/signature-auto-care-sub000/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedPart(t *testing.T, s inventory.Store, id string, onHand int) {
	t.Helper()
	level := 5
	require.NoError(t, s.CreatePart(context.Background(), &inventory.Part{
		ID:           inventory.PartID(id),
		SKU:          "SKU-" + id,
		Barcode:      "bar-" + id,
		PartName:     "Part " + id,
		ReorderLevel: &level,
		AvgCost:      decimal.NewFromInt(3),
		SellingPrice: decimal.RequireFromString("9.99"),
		OnHandQty:    onHand,
	}))
}

func TestPartRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedPart(t, s, "p1", 7)

	part, err := s.GetPart(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "SKU-p1", part.SKU)
	assert.Equal(t, "bar-p1", part.Barcode)
	assert.Equal(t, 7, part.OnHandQty)
	require.NotNil(t, part.ReorderLevel)
	assert.Equal(t, 5, *part.ReorderLevel)
	assert.True(t, part.AvgCost.Equal(decimal.NewFromInt(3)))
	assert.True(t, part.SellingPrice.Equal(decimal.RequireFromString("9.99")))

	_, err = s.GetPart(context.Background(), "missing")
	assert.ErrorIs(t, err, inventory.ErrPartNotFound)
}

func TestCreatePart_DuplicateSKU(t *testing.T) {
	s := newTestStore(t)
	seedPart(t, s, "p1", 0)

	err := s.CreatePart(context.Background(), &inventory.Part{
		ID: "p2", SKU: "SKU-p1", PartName: "clone",
	})
	assert.ErrorIs(t, err, inventory.ErrDuplicateSKU)
}

func TestListParts_SearchAndPagination(t *testing.T) {
	s := newTestStore(t)
	seedPart(t, s, "p1", 0)
	seedPart(t, s, "p2", 0)
	seedPart(t, s, "q3", 0)
	ctx := context.Background()

	parts, total, err := s.ListParts(ctx, inventory.PartFilter{Search: "SKU-p"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, parts, 2)

	parts, total, err = s.ListParts(ctx, inventory.PartFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, parts, 1)
}

func TestListLowStock(t *testing.T) {
	s := newTestStore(t)
	seedPart(t, s, "low", 2)   // below reorder level 5
	seedPart(t, s, "high", 50) // above

	parts, err := s.ListLowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, inventory.PartID("low"), parts[0].ID)
}

func TestUpdatePartCounters_ConditionalGuard(t *testing.T) {
	s := newTestStore(t)
	seedPart(t, s, "p1", 3)
	ctx := context.Background()

	// A delta that would go negative is rejected without applying.
	_, err := s.UpdatePartCounters(ctx, "p1", inventory.PartUpdate{OnHandDelta: -4})
	assert.ErrorIs(t, err, inventory.ErrInvariantViolation)

	_, err = s.UpdatePartCounters(ctx, "missing", inventory.PartUpdate{OnHandDelta: 1})
	assert.ErrorIs(t, err, inventory.ErrPartNotFound)

	avg := decimal.RequireFromString("4.5")
	part, err := s.UpdatePartCounters(ctx, "p1", inventory.PartUpdate{OnHandDelta: -2, AvgCost: &avg})
	require.NoError(t, err)
	assert.Equal(t, 1, part.OnHandQty)
	assert.True(t, part.AvgCost.Equal(avg))
}

func trx(id, partID, key string, createdAt time.Time) *inventory.Transaction {
	price := decimal.RequireFromString("9.99")
	return &inventory.Transaction{
		ID:             inventory.TransactionID(id),
		Type:           inventory.TxReceive,
		PartID:         inventory.PartID(partID),
		QtyChange:      2,
		UnitCost:       decimal.NewFromInt(3),
		UnitPrice:      &price,
		PaymentMethod:  inventory.PaymentCash,
		Reference:      inventory.Reference{Kind: inventory.RefPurchase},
		PerformedBy:    inventory.Actor{EmployeeID: "e1", Name: "Dana"},
		IdempotencyKey: key,
		CreatedAt:      createdAt,
	}
}

func TestAppendTransaction_UniqueIdempotencyKey(t *testing.T) {
	s := newTestStore(t)
	seedPart(t, s, "p1", 10)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.AppendTransaction(ctx, trx("t1", "p1", "k1", now)))
	err := s.AppendTransaction(ctx, trx("t2", "p1", "k1", now))
	assert.ErrorIs(t, err, inventory.ErrDuplicateIdempotencyKey)

	// NULL keys never collide with each other.
	require.NoError(t, s.AppendTransaction(ctx, trx("t3", "p1", "", now)))
	require.NoError(t, s.AppendTransaction(ctx, trx("t4", "p1", "", now)))

	found, err := s.FindTransactionByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, inventory.TransactionID("t1"), found.ID)
	assert.Equal(t, "Dana", found.PerformedBy.Name)
	require.NotNil(t, found.UnitPrice)
	assert.True(t, found.UnitPrice.Equal(decimal.RequireFromString("9.99")))

	missing, err := s.FindTransactionByIdempotencyKey(ctx, "unused")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListTransactions_FiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	seedPart(t, s, "p1", 10)
	seedPart(t, s, "p2", 10)
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendTransaction(ctx, trx("a", "p1", "", base)))
	require.NoError(t, s.AppendTransaction(ctx, trx("b", "p2", "", base.Add(time.Minute))))
	require.NoError(t, s.AppendTransaction(ctx, trx("c", "p1", "", base.Add(2*time.Minute))))

	txs, err := s.ListTransactions(ctx, inventory.TransactionFilter{PartID: "p1"})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, inventory.TransactionID("c"), txs[0].ID)
	assert.Equal(t, inventory.TransactionID("a"), txs[1].ID)

	txs, err = s.ListTransactions(ctx, inventory.TransactionFilter{From: base.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	seedPart(t, s, "p1", 5)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx inventory.Store) error {
		if _, err := tx.UpdatePartCounters(ctx, "p1", inventory.PartUpdate{OnHandDelta: -3}); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, trx("t1", "p1", "", time.Now().UTC())); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	part, err := s.GetPart(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, part.OnHandQty)

	txs, err := s.ListTransactions(ctx, inventory.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestWithTx_CommitPersists(t *testing.T) {
	s := newTestStore(t)
	seedPart(t, s, "p1", 5)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx inventory.Store) error {
		_, err := tx.UpdatePartCounters(ctx, "p1", inventory.PartUpdate{OnHandDelta: -2})
		return err
	})
	require.NoError(t, err)

	part, err := s.GetPart(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, part.OnHandQty)
}

func TestPayableLifecycle(t *testing.T) {
	s := newTestStore(t)
	seedPart(t, s, "p1", 0)
	ctx := context.Background()
	due := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreatePayable(ctx, &inventory.Payable{
		ID:            "pay1",
		Category:      "Supplies",
		Amount:        decimal.NewFromInt(60),
		Qty:           3,
		UnitCost:      decimal.NewFromInt(20),
		PartID:        "p1",
		TransactionID: "t1",
		VendorName:    "NAPA",
		Status:        inventory.PayableOpen,
		PurchaseDate:  time.Now().UTC(),
		DueDate:       &due,
		CreatedBy:     inventory.Actor{EmployeeID: "e1"},
	}))

	open, err := s.ListPayables(ctx, inventory.PayableFilter{Status: inventory.PayableOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.NotNil(t, open[0].DueDate)
	assert.True(t, open[0].DueDate.Equal(due))

	paid, err := s.MarkPayablePaid(ctx, "pay1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, inventory.PayablePaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	_, err = s.MarkPayablePaid(ctx, "pay1", time.Now().UTC())
	assert.ErrorIs(t, err, inventory.ErrAlreadyPaid)
	_, err = s.MarkPayablePaid(ctx, "nope", time.Now().UTC())
	assert.ErrorIs(t, err, inventory.ErrPayableNotFound)

	open, err = s.ListPayables(ctx, inventory.PayableFilter{Status: inventory.PayableOpen})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestExpensesAndAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateExpense(ctx, &inventory.Expense{
		ID: "x1", Category: "Supplies", Amount: decimal.NewFromInt(50),
		ExpenseDate: time.Now().UTC(), Note: "cash purchase",
	}))
	require.NoError(t, s.CreateExpense(ctx, &inventory.Expense{
		ID: "x2", Category: "Rent", Amount: decimal.NewFromInt(900),
		ExpenseDate: time.Now().UTC(), IsDeleted: true,
	}))

	expenses, err := s.ListExpenses(ctx, inventory.ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, expenses, 1, "soft-deleted rows are hidden")
	assert.Equal(t, inventory.ExpenseID("x1"), expenses[0].ID)

	require.NoError(t, s.AppendAudit(ctx, inventory.AuditEntry{
		ID:         "a1",
		Timestamp:  time.Now().UTC(),
		Action:     inventory.AuditReceive,
		EntityType: "Part",
		EntityID:   "p1",
		Actor:      inventory.Actor{EmployeeID: "e1", Role: "PartsManager"},
		Payload:    map[string]any{"qty": 4},
	}))

	entries, err := s.ListAudit(ctx, inventory.AuditFilter{Action: inventory.AuditReceive})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Part", entries[0].EntityType)
	assert.Equal(t, "PartsManager", entries[0].Actor.Role)
	assert.EqualValues(t, 4, entries[0].Payload["qty"])
}
