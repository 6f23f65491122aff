package strategy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/store"
	"github.com/kestrelpay/payrolld/internal/strategy"
)

func TestSalaryDisbursementValidate(t *testing.T) {
	deps, _ := newTestDeps(t)
	strat := strategy.NewSalaryDisbursement(deps)

	amount := decimal.NewFromInt(100)
	company := companyAccount(1000)
	employee := employeeAccount("acc-e1")

	tests := []struct {
		name      string
		debit     *domain.Account
		credit    *domain.Account
		amount    decimal.Decimal
		errorType error
	}{
		{"valid parties", company, employee, amount, nil},
		{"zero amount", company, employee, decimal.Zero, domain.ErrInvalidAmount},
		{"missing debit party", nil, employee, amount, domain.ErrAccountNotFound},
		{"missing credit party", company, nil, amount, domain.ErrAccountNotFound},
		{"debit must be company", employeeAccount("acc-e2"), employee, amount, domain.ErrInvalidOwnerType},
		{"credit must be employee", company, companyAccount(0), amount, domain.ErrInvalidOwnerType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := strat.Validate(tt.debit, tt.credit, tt.amount)
			if tt.errorType == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.errorType) {
				t.Fatalf("expected %v, got %v", tt.errorType, err)
			}
		})
	}
}

func TestSalaryDisbursementExecute(t *testing.T) {
	ctx := context.Background()
	deps, st := newTestDeps(t)
	createAccount(t, st, "acc-co", domain.OwnerTypeCompany, 1000)
	createAccount(t, st, "acc-e1", domain.OwnerTypeEmployee, 0)

	strat := strategy.NewSalaryDisbursement(deps)
	txn, err := strat.Execute(ctx, strategy.ExecuteInput{
		DebitAccountID:  "acc-co",
		CreditAccountID: "acc-e1",
		Amount:          decimal.NewFromInt(300),
		ReferenceID:     "sal-2026-09-e1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.Status != domain.TransactionStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", txn.Status)
	}
	if txn.Category != domain.CategoryPayroll {
		t.Fatalf("expected PAYROLL category, got %s", txn.Category)
	}

	if got := balanceOf(t, st, "acc-co"); !got.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("expected company balance 700, got %s", got)
	}
	if got := balanceOf(t, st, "acc-e1"); !got.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected employee balance 300, got %s", got)
	}
}

func TestSalaryDisbursementIdempotent(t *testing.T) {
	ctx := context.Background()
	deps, st := newTestDeps(t)
	createAccount(t, st, "acc-co", domain.OwnerTypeCompany, 1000)
	createAccount(t, st, "acc-e1", domain.OwnerTypeEmployee, 0)

	strat := strategy.NewSalaryDisbursement(deps)
	input := strategy.ExecuteInput{
		DebitAccountID:  "acc-co",
		CreditAccountID: "acc-e1",
		Amount:          decimal.NewFromInt(300),
		ReferenceID:     "sal-2026-09-e1",
	}

	first, err := strat.Execute(ctx, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := strat.Execute(ctx, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the recorded transaction back, got %s and %s", first.ID, second.ID)
	}

	if got := balanceOf(t, st, "acc-co"); !got.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("funds must move exactly once, company balance %s", got)
	}
	if got := balanceOf(t, st, "acc-e1"); !got.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("funds must move exactly once, employee balance %s", got)
	}
}

func TestSalaryDisbursementFundsReserved(t *testing.T) {
	ctx := context.Background()
	deps, st := newTestDeps(t)
	createAccount(t, st, "acc-co", domain.OwnerTypeCompany, 1000)
	createAccount(t, st, "acc-e1", domain.OwnerTypeEmployee, 0)

	strat := strategy.NewSalaryDisbursement(deps)
	_, err := strat.Execute(ctx, strategy.ExecuteInput{
		DebitAccountID:  "acc-co",
		CreditAccountID: "acc-e1",
		Amount:          decimal.NewFromInt(300),
		FundsReserved:   true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The debit side was covered by an aggregate authorization, only the
	// credit leg runs here.
	if got := balanceOf(t, st, "acc-co"); !got.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected company balance untouched, got %s", got)
	}
	if got := balanceOf(t, st, "acc-e1"); !got.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected employee balance 300, got %s", got)
	}
}

func TestSalaryDisbursementInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	deps, st := newTestDeps(t)
	createAccount(t, st, "acc-co", domain.OwnerTypeCompany, 100)
	createAccount(t, st, "acc-e1", domain.OwnerTypeEmployee, 0)

	strat := strategy.NewSalaryDisbursement(deps)
	txn, err := strat.Execute(ctx, strategy.ExecuteInput{
		DebitAccountID:  "acc-co",
		CreditAccountID: "acc-e1",
		Amount:          decimal.NewFromInt(300),
		ReferenceID:     "sal-overdrawn",
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if txn == nil || txn.Status != domain.TransactionStatusFailed {
		t.Fatalf("expected a FAILED attempt back, got %+v", txn)
	}

	// Failed attempts leave no audit record and no balance change.
	if _, err := st.FindTransactionByReference(ctx, "sal-overdrawn"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no persisted record, got %v", err)
	}
	if got := balanceOf(t, st, "acc-co"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected company balance untouched, got %s", got)
	}
}
