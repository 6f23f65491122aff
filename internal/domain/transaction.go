package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType identifies the kind of money movement.
type TransactionType string

const (
	TransactionTypeSalaryDisbursement TransactionType = "SALARY_DISBURSEMENT"
	TransactionTypeCompanyTopUp       TransactionType = "COMPANY_TOPUP"
	TransactionTypeTransfer           TransactionType = "TRANSFER"
	TransactionTypeReversal           TransactionType = "TRANSACTION_REVERSAL"
)

// TransactionCategory groups transaction types for reporting.
type TransactionCategory string

const (
	CategoryPayroll  TransactionCategory = "PAYROLL"
	CategoryTopUp    TransactionCategory = "TOPUP"
	CategoryTransfer TransactionCategory = "TRANSFER"
	CategoryReversal TransactionCategory = "REVERSAL"
)

// TransactionStatus is the lifecycle state of a transaction. Statuses only
// move forward; see CanTransition.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusAuthorized TransactionStatus = "AUTHORIZED"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusReversed   TransactionStatus = "REVERSED"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:    {TransactionStatusAuthorized, TransactionStatusCompleted, TransactionStatusFailed},
	TransactionStatusAuthorized: {TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusReversed},
	TransactionStatusCompleted:  {TransactionStatusReversed},
}

// CanTransition reports whether a transaction status may move from one state
// to another.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transactionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction is the immutable audit record of one money movement.
// DebitAccountID is empty for pure top-ups funded outside the ledger.
type Transaction struct {
	ID              string
	Type            TransactionType
	Category        TransactionCategory
	Status          TransactionStatus
	DebitAccountID  string
	CreditAccountID string
	Amount          decimal.Decimal
	ReferenceID     string
	Description     string
	ReversalOfID    string
	BatchID         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks structural invariants of a transaction record.
func (t *Transaction) Validate() error {
	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if t.DebitAccountID != "" && t.DebitAccountID == t.CreditAccountID {
		return ErrSameAccount
	}
	return nil
}

// Transition moves the transaction to a new status, enforcing forward-only
// movement.
func (t *Transaction) Transition(to TransactionStatus) error {
	if !CanTransition(t.Status, to) {
		return ErrInvalidStatusTransition.WithMessagef(
			"transaction %s cannot move %s -> %s", t.ID, t.Status, to)
	}
	t.Status = to
	return nil
}

// IsTerminal reports whether the transaction reached a final state.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusReversed:
		return true
	}
	return false
}
