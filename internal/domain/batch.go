package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus is the lifecycle state of a payroll batch.
type BatchStatus string

const (
	BatchStatusPending            BatchStatus = "PENDING"
	BatchStatusProcessing         BatchStatus = "PROCESSING"
	BatchStatusCompleted          BatchStatus = "COMPLETED"
	BatchStatusPartiallyCompleted BatchStatus = "PARTIALLY_COMPLETED"
	BatchStatusFailed             BatchStatus = "FAILED"
	BatchStatusCancelled          BatchStatus = "CANCELLED"
)

// IsTerminal reports whether the batch status is final.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusPartiallyCompleted, BatchStatusFailed, BatchStatusCancelled:
		return true
	}
	return false
}

// ItemStatus mirrors the transaction status of a batch item, with CANCELLED
// for items skipped by a batch cancellation.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "PENDING"
	ItemStatusCompleted ItemStatus = "COMPLETED"
	ItemStatusFailed    ItemStatus = "FAILED"
	ItemStatusReversed  ItemStatus = "REVERSED"
	ItemStatusCancelled ItemStatus = "CANCELLED"
)

// IsTerminal reports whether the item reached a final state.
func (s ItemStatus) IsTerminal() bool {
	return s != ItemStatusPending
}

// PayrollBatch is one payroll run: an aggregate authorization against the
// company account followed by per-employee disbursements. Reconciled
// distinguishes a FAILED batch whose applied items were compensated from one
// left for manual reconciliation.
type PayrollBatch struct {
	ID                string
	CompanyID         string
	CompanyAccountID  string
	Status            BatchStatus
	Reconciled        bool
	AuthorizationTxID string
	Description       string
	Items             []*PayrollBatchItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TotalAmount is the sum of all item amounts.
func (b *PayrollBatch) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.Items {
		total = total.Add(item.Amount)
	}
	return total
}

// DisbursedAmount is the sum of amounts of COMPLETED items.
func (b *PayrollBatch) DisbursedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.Items {
		if item.Status == ItemStatusCompleted {
			total = total.Add(item.Amount)
		}
	}
	return total
}

// AggregateStatus derives the batch status from its item outcomes once
// processing finished. It is only meaningful for a batch whose aggregate
// authorization succeeded.
func (b *PayrollBatch) AggregateStatus() BatchStatus {
	var completed, failed, cancelled int
	for _, item := range b.Items {
		switch item.Status {
		case ItemStatusCompleted:
			completed++
		case ItemStatusFailed:
			failed++
		case ItemStatusCancelled:
			cancelled++
		}
	}

	switch {
	case cancelled > 0:
		return BatchStatusCancelled
	case failed == 0:
		return BatchStatusCompleted
	case completed == 0:
		return BatchStatusFailed
	default:
		return BatchStatusPartiallyCompleted
	}
}

// PayrollBatchItem is a single employee payout within a batch. Immutable
// once its status is terminal.
type PayrollBatchItem struct {
	ID                string
	BatchID           string
	EmployeeAccountID string
	Amount            decimal.Decimal
	TransactionID     string
	Status            ItemStatus
	FailureReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
