package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kush1999-h/signature-auto-care-sub000/inventory"
	"github.com/kush1999-h/signature-auto-care-sub000/inventory/store"
)

func seedPart(t *testing.T, s inventory.Store, id string, onHand int) {
	t.Helper()
	err := s.CreatePart(context.Background(), &inventory.Part{
		ID:        inventory.PartID(id),
		SKU:       "SKU-" + id,
		PartName:  "Part " + id,
		OnHandQty: onHand,
	})
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
}

func TestCreatePart_DuplicateSKU(t *testing.T) {
	m := store.NewMemory()
	seedPart(t, m, "p1", 0)

	err := m.CreatePart(context.Background(), &inventory.Part{
		ID: "p2", SKU: "SKU-p1", PartName: "clone",
	})
	if !errors.Is(err, inventory.ErrDuplicateSKU) {
		t.Fatalf("expected ErrDuplicateSKU, got %v", err)
	}
}

func TestUpdatePartCounters_RejectsNegative(t *testing.T) {
	m := store.NewMemory()
	seedPart(t, m, "p1", 3)
	ctx := context.Background()

	if _, err := m.UpdatePartCounters(ctx, "p1", inventory.PartUpdate{OnHandDelta: -4}); !errors.Is(err, inventory.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
	if _, err := m.UpdatePartCounters(ctx, "p1", inventory.PartUpdate{ReservedDelta: -1}); !errors.Is(err, inventory.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
	if _, err := m.UpdatePartCounters(ctx, "missing", inventory.PartUpdate{OnHandDelta: 1}); !errors.Is(err, inventory.ErrPartNotFound) {
		t.Fatalf("expected ErrPartNotFound, got %v", err)
	}

	// The failed updates must leave the counters untouched.
	part, err := m.GetPart(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if part.OnHandQty != 3 || part.ReservedQty != 0 {
		t.Fatalf("counters changed: onHand=%d reserved=%d", part.OnHandQty, part.ReservedQty)
	}
}

func TestAppendTransaction_DuplicateIdempotencyKey(t *testing.T) {
	m := store.NewMemory()
	seedPart(t, m, "p1", 5)
	ctx := context.Background()

	trx := func(id, key string) *inventory.Transaction {
		return &inventory.Transaction{
			ID: inventory.TransactionID(id), Type: inventory.TxReceive,
			PartID: "p1", QtyChange: 1, UnitCost: decimal.NewFromInt(2),
			PerformedBy:    inventory.Actor{EmployeeID: "e1"},
			IdempotencyKey: key,
			CreatedAt:      time.Now(),
		}
	}

	if err := m.AppendTransaction(ctx, trx("t1", "k1")); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendTransaction(ctx, trx("t2", "k1")); !errors.Is(err, inventory.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}
	// Empty keys never collide.
	if err := m.AppendTransaction(ctx, trx("t3", "")); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendTransaction(ctx, trx("t4", "")); err != nil {
		t.Fatal(err)
	}

	found, err := m.FindTransactionByIdempotencyKey(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != "t1" {
		t.Fatalf("lookup returned %+v", found)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	tm := store.NewTxMemory()
	seedPart(t, tm, "p1", 5)
	ctx := context.Background()

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(s inventory.Store) error {
		if _, err := s.UpdatePartCounters(ctx, "p1", inventory.PartUpdate{OnHandDelta: -3}); err != nil {
			return err
		}
		if err := s.AppendTransaction(ctx, &inventory.Transaction{
			ID: "t1", Type: inventory.TxIssueToWorkOrder, PartID: "p1",
			QtyChange: -3, UnitCost: decimal.Zero,
			PerformedBy: inventory.Actor{EmployeeID: "e1"},
			CreatedAt:   time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	part, err := tm.GetPart(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if part.OnHandQty != 5 {
		t.Fatalf("rollback failed: onHand=%d", part.OnHandQty)
	}
	txs, err := tm.ListTransactions(ctx, inventory.TransactionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 0 {
		t.Fatalf("rollback left %d ledger entries", len(txs))
	}
}

func TestWithTx_CommitKeepsChanges(t *testing.T) {
	tm := store.NewTxMemory()
	seedPart(t, tm, "p1", 5)
	ctx := context.Background()

	err := tm.WithTx(ctx, func(s inventory.Store) error {
		_, err := s.UpdatePartCounters(ctx, "p1", inventory.PartUpdate{OnHandDelta: -2})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	part, err := tm.GetPart(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if part.OnHandQty != 3 {
		t.Fatalf("commit lost: onHand=%d", part.OnHandQty)
	}
}

func TestMarkPayablePaid_ExactlyOnce(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	err := m.CreatePayable(ctx, &inventory.Payable{
		ID: "pay1", Amount: decimal.NewFromInt(60), Qty: 3,
		UnitCost: decimal.NewFromInt(20), Status: inventory.PayableOpen,
		PurchaseDate: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	paid, err := m.MarkPayablePaid(ctx, "pay1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if paid.Status != inventory.PayablePaid || paid.PaidAt == nil {
		t.Fatalf("not paid: %+v", paid)
	}

	if _, err := m.MarkPayablePaid(ctx, "pay1", time.Now()); !errors.Is(err, inventory.ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
	if _, err := m.MarkPayablePaid(ctx, "nope", time.Now()); !errors.Is(err, inventory.ErrPayableNotFound) {
		t.Fatalf("expected ErrPayableNotFound, got %v", err)
	}
}

func TestListTransactions_NewestFirstAndFiltered(t *testing.T) {
	m := store.NewMemory()
	seedPart(t, m, "p1", 0)
	seedPart(t, m, "p2", 0)
	ctx := context.Background()

	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	for i, partID := range []inventory.PartID{"p1", "p2", "p1"} {
		err := m.AppendTransaction(ctx, &inventory.Transaction{
			ID: inventory.TransactionID(string(rune('a' + i))), Type: inventory.TxReceive,
			PartID: partID, QtyChange: 1, UnitCost: decimal.Zero,
			PerformedBy: inventory.Actor{EmployeeID: "e1"},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	txs, err := m.ListTransactions(ctx, inventory.TransactionFilter{PartID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d entries", len(txs))
	}
	if txs[0].ID != "c" || txs[1].ID != "a" {
		t.Fatalf("wrong order: %s, %s", txs[0].ID, txs[1].ID)
	}
}
