// Package store defines the Ledger Store contracts consumed by the ledger,
// strategies and orchestrator. Implementations live under
// internal/adapter/repository.
package store

import (
	"context"
	"errors"

	"github.com/kestrelpay/payrolld/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist (or is soft-deleted
	// on a call path that excludes inactive records).
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned by SaveAccount when the stored version
	// does not match the expected version. The ledger retries on it.
	ErrVersionConflict = errors.New("account version conflict")
)

// AccountStore is durable, versioned storage for accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	// GetAccount excludes inactive accounts.
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	// GetAccountAny includes inactive accounts.
	GetAccountAny(ctx context.Context, id string) (*domain.Account, error)
	// SaveAccount writes the account conditioned on the stored version being
	// expectedVersion, incrementing the version on success.
	SaveAccount(ctx context.Context, account *domain.Account, expectedVersion int64) error
	// DeactivateAccount soft-deletes an account. Accounts are never removed.
	DeactivateAccount(ctx context.Context, id string) error
}

// TransactionStore is append-oriented storage for transaction records.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, txn *domain.Transaction) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	FindTransactionByReference(ctx context.Context, referenceID string) (*domain.Transaction, error)
	ListTransactionsByBatch(ctx context.Context, batchID string) ([]*domain.Transaction, error)
}

// BatchStore is storage for payroll batches and their items.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch *domain.PayrollBatch) error
	GetBatch(ctx context.Context, id string) (*domain.PayrollBatch, error)
	ListBatchesByStatus(ctx context.Context, status domain.BatchStatus) ([]*domain.PayrollBatch, error)
	UpdateBatch(ctx context.Context, batch *domain.PayrollBatch) error
	// TransitionBatch moves a batch to a new status only if it is currently
	// in from, returning ErrVersionConflict otherwise. Runners use it to
	// claim a batch exactly once.
	TransitionBatch(ctx context.Context, id string, from, to domain.BatchStatus) error
	UpdateItem(ctx context.Context, item *domain.PayrollBatchItem) error
}

// Store combines all Ledger Store capabilities.
type Store interface {
	AccountStore
	TransactionStore
	BatchStore
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// ReferenceCache is an optional read-through cache in front of
// FindTransactionByReference for hot idempotency lookups.
type ReferenceCache interface {
	Get(ctx context.Context, referenceID string) (*domain.Transaction, error)
	Set(ctx context.Context, txn *domain.Transaction) error
}
