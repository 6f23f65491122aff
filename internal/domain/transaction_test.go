package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from TransactionStatus
		to   TransactionStatus
		want bool
	}{
		{TransactionStatusPending, TransactionStatusAuthorized, true},
		{TransactionStatusPending, TransactionStatusCompleted, true},
		{TransactionStatusPending, TransactionStatusFailed, true},
		{TransactionStatusPending, TransactionStatusReversed, false},
		{TransactionStatusAuthorized, TransactionStatusCompleted, true},
		{TransactionStatusAuthorized, TransactionStatusFailed, true},
		{TransactionStatusAuthorized, TransactionStatusReversed, true},
		{TransactionStatusAuthorized, TransactionStatusPending, false},
		{TransactionStatusCompleted, TransactionStatusReversed, true},
		{TransactionStatusCompleted, TransactionStatusPending, false},
		{TransactionStatusCompleted, TransactionStatusFailed, false},
		{TransactionStatusFailed, TransactionStatusCompleted, false},
		{TransactionStatusFailed, TransactionStatusReversed, false},
		{TransactionStatusReversed, TransactionStatusCompleted, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransactionTransition(t *testing.T) {
	txn := &Transaction{ID: "tx-1", Status: TransactionStatusPending}

	if err := txn.Transition(TransactionStatusCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.Status != TransactionStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", txn.Status)
	}

	if err := txn.Transition(TransactionStatusPending); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
	if txn.Status != TransactionStatusCompleted {
		t.Fatalf("failed transition must not change status, got %s", txn.Status)
	}
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name      string
		txn       Transaction
		errorType error
	}{
		{
			name: "valid transfer",
			txn: Transaction{
				DebitAccountID:  "acc-1",
				CreditAccountID: "acc-2",
				Amount:          decimal.NewFromInt(100),
			},
		},
		{
			name: "valid top-up without debit side",
			txn: Transaction{
				CreditAccountID: "acc-1",
				Amount:          decimal.NewFromInt(100),
			},
		},
		{
			name: "zero amount",
			txn: Transaction{
				DebitAccountID:  "acc-1",
				CreditAccountID: "acc-2",
				Amount:          decimal.Zero,
			},
			errorType: ErrInvalidAmount,
		},
		{
			name: "negative amount",
			txn: Transaction{
				DebitAccountID:  "acc-1",
				CreditAccountID: "acc-2",
				Amount:          decimal.NewFromInt(-5),
			},
			errorType: ErrInvalidAmount,
		},
		{
			name: "same account on both sides",
			txn: Transaction{
				DebitAccountID:  "acc-1",
				CreditAccountID: "acc-1",
				Amount:          decimal.NewFromInt(100),
			},
			errorType: ErrSameAccount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.txn.Validate()
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

func TestTransactionIsTerminal(t *testing.T) {
	terminal := []TransactionStatus{TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusReversed}
	for _, status := range terminal {
		txn := &Transaction{Status: status}
		if !txn.IsTerminal() {
			t.Errorf("expected %s to be terminal", status)
		}
	}

	for _, status := range []TransactionStatus{TransactionStatusPending, TransactionStatusAuthorized} {
		txn := &Transaction{Status: status}
		if txn.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", status)
		}
	}
}
