/*
finance.go - Financial side effects of stock movements

PURPOSE:
  Receiving stock costs money, and the books must say how it was paid:
  a CASH receive posts an Expense immediately, a CREDIT receive opens a
  Payable against the vendor. Settling a Payable later closes it (exactly
  once) and posts the matching Expense.

INVARIANTS:
  - Every RECEIVE produces exactly one financial record: Expense XOR Payable
  - Payable status moves OPEN -> PAID exactly once; settlement is the only
    mutation path and there is no way back
  - Settlement creates exactly one Expense with amount = payable.amount

TRANSACTION SCOPE:
  onReceive runs inside the engine's mutation transaction; if the financial
  record cannot be written, the stock movement rolls back with it.
  SettlePayable opens its own transaction.

SEE ALSO:
  - engine.go: Calls onReceive from Receive()
*/
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// financeDispatcher posts expenses and payables for the engine.
type financeDispatcher struct {
	now   func() time.Time
	newID func() string
}

// onReceive posts the financial side effect of a RECEIVE ledger entry.
// Exactly one of the returned records is non-nil.
func (d *financeDispatcher) onReceive(ctx context.Context, s Store, part *Part, trx *Transaction, actor Actor) (*Expense, *Payable, error) {
	amount := trx.UnitCost.Mul(decimal.NewFromInt(int64(trx.QtyChange)))
	note := purchaseNote(part, trx.QtyChange, trx.UnitCost, trx.VendorName, actor)

	switch trx.PaymentMethod {
	case PaymentCash:
		expense := &Expense{
			ID:          ExpenseID(d.newID()),
			Category:    "Supplies",
			Amount:      amount,
			ExpenseDate: d.now(),
			Note:        note,
		}
		if err := s.CreateExpense(ctx, expense); err != nil {
			return nil, nil, err
		}
		err := s.AppendAudit(ctx, AuditEntry{
			ID:         d.newID(),
			Timestamp:  d.now(),
			Action:     AuditExpense,
			EntityType: "Expense",
			EntityID:   string(expense.ID),
			Actor:      actor,
			Payload:    map[string]any{"amount": amount.String(), "transaction_id": string(trx.ID)},
		})
		if err != nil {
			return nil, nil, err
		}
		return expense, nil, nil

	case PaymentCredit:
		payable := &Payable{
			ID:            PayableID(d.newID()),
			Category:      "Supplies",
			Amount:        amount,
			Qty:           trx.QtyChange,
			UnitCost:      trx.UnitCost,
			PartID:        part.ID,
			TransactionID: trx.ID,
			VendorName:    trx.VendorName,
			Status:        PayableOpen,
			PurchaseDate:  d.now(),
			CreatedBy:     actor,
			Note:          note,
		}
		if err := s.CreatePayable(ctx, payable); err != nil {
			return nil, nil, err
		}
		err := s.AppendAudit(ctx, AuditEntry{
			ID:         d.newID(),
			Timestamp:  d.now(),
			Action:     AuditPayable,
			EntityType: "Payable",
			EntityID:   string(payable.ID),
			Actor:      actor,
			Payload:    map[string]any{"amount": amount.String(), "transaction_id": string(trx.ID)},
		})
		if err != nil {
			return nil, nil, err
		}
		return nil, payable, nil
	}

	// Receive() validates the method before any write.
	return nil, nil, ErrMissingPaymentMethod
}

// SettlePayable flips a payable OPEN -> PAID and posts the matching cash
// expense. Fails with ErrAlreadyPaid when the payable is already settled.
func (e *Engine) SettlePayable(ctx context.Context, id PayableID, actor Actor) (*Payable, *Expense, error) {
	if actor.EmployeeID == "" {
		return nil, nil, ErrMissingActor
	}

	var (
		paid    *Payable
		expense *Expense
	)
	err := e.store.WithTx(ctx, func(s Store) error {
		var err error
		paid, err = s.MarkPayablePaid(ctx, id, e.now())
		if err != nil {
			return err
		}

		category := paid.Category
		if category == "" {
			category = "Supplies"
		}
		noteParts := []string{"Payable paid"}
		if paid.VendorName != "" {
			noteParts = append(noteParts, fmt.Sprintf("Vendor: %s", paid.VendorName))
		}
		if paid.Note != "" {
			noteParts = append(noteParts, fmt.Sprintf("Note: %s", paid.Note))
		}
		noteParts = append(noteParts, fmt.Sprintf("Payable: %s", paid.ID))

		expenseDate := e.now()
		if paid.PaidAt != nil {
			expenseDate = *paid.PaidAt
		}
		expense = &Expense{
			ID:          ExpenseID(e.newID()),
			Category:    category,
			Amount:      paid.Amount,
			ExpenseDate: expenseDate,
			Note:        strings.Join(noteParts, " | "),
		}
		if err := s.CreateExpense(ctx, expense); err != nil {
			return err
		}

		if err := s.AppendAudit(ctx, e.audit(AuditSettle, "Payable", string(paid.ID), actor, map[string]any{
			"amount":     paid.Amount.String(),
			"expense_id": string(expense.ID),
		})); err != nil {
			return err
		}
		return s.AppendAudit(ctx, e.audit(AuditExpense, "Expense", string(expense.ID), actor, map[string]any{
			"amount":     paid.Amount.String(),
			"payable_id": string(paid.ID),
		}))
	})
	if err != nil {
		e.logFailure(err, "settle_payable")
		return nil, nil, err
	}
	return paid, expense, nil
}

// purchaseNote builds the human-readable trail stored on expenses and
// payables created by a receive.
func purchaseNote(part *Part, qty int, unitCost decimal.Decimal, vendor string, actor Actor) string {
	parts := []string{
		fmt.Sprintf("Part: %s", part.PartName),
		fmt.Sprintf("SKU: %s", part.SKU),
		fmt.Sprintf("Qty: %d", qty),
		fmt.Sprintf("Unit: %s", unitCost.StringFixed(2)),
	}
	if vendor != "" {
		parts = append(parts, fmt.Sprintf("Vendor: %s", vendor))
	}
	if actor.Name != "" {
		purchaser := fmt.Sprintf("Purchased by: %s", actor.Name)
		if actor.Role != "" {
			purchaser += fmt.Sprintf(" (%s)", actor.Role)
		}
		parts = append(parts, purchaser)
	}
	return strings.Join(parts, " | ")
}
