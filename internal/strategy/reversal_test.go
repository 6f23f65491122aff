package strategy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/strategy"
)

func TestReversalOfTransfer(t *testing.T) {
	ctx := context.Background()
	deps, st := newTestDeps(t)
	createAccount(t, st, "acc-1", domain.OwnerTypeEmployee, 500)
	createAccount(t, st, "acc-2", domain.OwnerTypeEmployee, 0)

	transfer := strategy.NewTransfer(deps)
	original, err := transfer.Execute(ctx, strategy.ExecuteInput{
		DebitAccountID:  "acc-1",
		CreditAccountID: "acc-2",
		Amount:          decimal.NewFromInt(200),
		ReferenceID:     "xfer-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reversal := strategy.NewReversal(deps)
	rec, err := reversal.Execute(ctx, strategy.ExecuteInput{
		OriginalTransactionID: original.ID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ReversalOfID != original.ID {
		t.Fatalf("expected ReversalOfID %s, got %s", original.ID, rec.ReversalOfID)
	}
	if rec.Category != domain.CategoryReversal {
		t.Fatalf("expected REVERSAL category, got %s", rec.Category)
	}

	// Balances are back to their pre-transfer values.
	if got := balanceOf(t, st, "acc-1"); !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected balance 500, got %s", got)
	}
	if got := balanceOf(t, st, "acc-2"); !got.IsZero() {
		t.Fatalf("expected balance 0, got %s", got)
	}

	stored, err := st.GetTransaction(ctx, original.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != domain.TransactionStatusReversed {
		t.Fatalf("expected original marked REVERSED, got %s", stored.Status)
	}
}

func TestReversalIsSingleUse(t *testing.T) {
	ctx := context.Background()
	deps, st := newTestDeps(t)
	createAccount(t, st, "acc-1", domain.OwnerTypeEmployee, 500)
	createAccount(t, st, "acc-2", domain.OwnerTypeEmployee, 0)

	transfer := strategy.NewTransfer(deps)
	original, err := transfer.Execute(ctx, strategy.ExecuteInput{
		DebitAccountID:  "acc-1",
		CreditAccountID: "acc-2",
		Amount:          decimal.NewFromInt(200),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reversal := strategy.NewReversal(deps)
	if _, err := reversal.Execute(ctx, strategy.ExecuteInput{OriginalTransactionID: original.ID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = reversal.Execute(ctx, strategy.ExecuteInput{OriginalTransactionID: original.ID})
	if !errors.Is(err, domain.ErrAlreadyReversed) {
		t.Fatalf("expected ErrAlreadyReversed, got %v", err)
	}

	if got := balanceOf(t, st, "acc-1"); !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("double reversal must not move funds again, got %s", got)
	}
}

func TestReversalByReference(t *testing.T) {
	ctx := context.Background()
	deps, st := newTestDeps(t)
	createAccount(t, st, "acc-co", domain.OwnerTypeCompany, 0)

	topup := strategy.NewCompanyTopUp(deps)
	if _, err := topup.Execute(ctx, strategy.ExecuteInput{
		CreditAccountID: "acc-co",
		Amount:          decimal.NewFromInt(1000),
		ReferenceID:     "topup-1",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A top-up has no debit side, so its reversal only debits the credited
	// account.
	reversal := strategy.NewReversal(deps)
	rec, err := reversal.Execute(ctx, strategy.ExecuteInput{ReferenceID: "topup-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.DebitAccountID != "acc-co" || rec.CreditAccountID != "" {
		t.Fatalf("expected a pure debit of acc-co, got debit=%q credit=%q", rec.DebitAccountID, rec.CreditAccountID)
	}

	if got := balanceOf(t, st, "acc-co"); !got.IsZero() {
		t.Fatalf("expected balance back to 0, got %s", got)
	}
}

func TestReversalPreconditions(t *testing.T) {
	ctx := context.Background()
	deps, st := newTestDeps(t)
	createAccount(t, st, "acc-co", domain.OwnerTypeCompany, 1000)

	// An AUTHORIZED record is settled by its batch, not reversible directly.
	authorized := &domain.Transaction{
		ID:             "tx-auth",
		Type:           domain.TransactionTypeSalaryDisbursement,
		Status:         domain.TransactionStatusAuthorized,
		DebitAccountID: "acc-co",
		Amount:         decimal.NewFromInt(100),
	}
	if err := st.SaveTransaction(ctx, authorized); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reversal := strategy.NewReversal(deps)

	tests := []struct {
		name      string
		input     strategy.ExecuteInput
		errorType error
	}{
		{
			name:      "unknown transaction",
			input:     strategy.ExecuteInput{OriginalTransactionID: "missing"},
			errorType: domain.ErrTransactionNotFound,
		},
		{
			name:      "unknown reference",
			input:     strategy.ExecuteInput{ReferenceID: "missing"},
			errorType: domain.ErrTransactionNotFound,
		},
		{
			name:      "neither id nor reference",
			input:     strategy.ExecuteInput{},
			errorType: domain.ErrTransactionNotFound,
		},
		{
			name:      "non-completed original",
			input:     strategy.ExecuteInput{OriginalTransactionID: "tx-auth"},
			errorType: domain.ErrInvalidStatusTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reversal.Execute(ctx, tt.input)
			if !errors.Is(err, tt.errorType) {
				t.Fatalf("expected %v, got %v", tt.errorType, err)
			}
		})
	}
}
