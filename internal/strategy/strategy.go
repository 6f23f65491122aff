// Package strategy implements one validation+execution rule set per
// transaction type, dispatched through an immutable registry.
package strategy

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/infrastructure/metrics"
	"github.com/kestrelpay/payrolld/internal/ledger"
	"github.com/kestrelpay/payrolld/internal/store"
)

// ExecuteInput carries the parameters of one money movement.
type ExecuteInput struct {
	DebitAccountID  string
	CreditAccountID string
	Amount          decimal.Decimal
	ReferenceID     string
	Description     string
	BatchID         string

	// FundsReserved marks a disbursement whose debit side was already
	// applied by a batch-level authorization; only the credit leg runs.
	FundsReserved bool

	// OriginalTransactionID identifies the transaction to reverse. Reversal
	// strategy only.
	OriginalTransactionID string
}

// Strategy is a type-specific rule set for one kind of money movement.
type Strategy interface {
	// TransactionType is the static identity used for registry lookup.
	TransactionType() domain.TransactionType
	// Validate checks type-specific preconditions on the two parties.
	Validate(debit, credit *domain.Account, amount decimal.Decimal) error
	// Execute validates, moves the funds through the ledger and returns the
	// resulting transaction. Re-invoking with a ReferenceID that already
	// produced a COMPLETED transaction returns that transaction unchanged.
	Execute(ctx context.Context, input ExecuteInput) (*domain.Transaction, error)
}

// Deps bundles the collaborators shared by all strategies.
type Deps struct {
	Store    store.Store
	Ledger   *ledger.Ledger
	IDGen    store.IDGenerator
	RefCache store.ReferenceCache
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

type base struct {
	deps Deps
}

// existingByReference returns the COMPLETED transaction previously recorded
// under referenceID, if any. The cache is consulted first; a store hit is
// written back to the cache.
func (b *base) existingByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	if referenceID == "" {
		return nil, nil
	}

	if b.deps.RefCache != nil {
		txn, err := b.deps.RefCache.Get(ctx, referenceID)
		if err == nil && txn != nil {
			if b.deps.Metrics != nil {
				b.deps.Metrics.ReferenceCacheHits.Inc()
			}
			return txn, nil
		}
		if b.deps.Metrics != nil {
			b.deps.Metrics.ReferenceCacheMisses.Inc()
		}
	}

	txn, err := b.deps.Store.FindTransactionByReference(ctx, referenceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, domain.ErrStorage.WithCause(err)
	}

	b.cacheReference(ctx, txn)
	return txn, nil
}

func (b *base) cacheReference(ctx context.Context, txn *domain.Transaction) {
	if b.deps.RefCache == nil || txn == nil || txn.ReferenceID == "" {
		return
	}
	if err := b.deps.RefCache.Set(ctx, txn); err != nil {
		b.deps.Logger.Warn().Err(err).
			Str("reference_id", txn.ReferenceID).
			Msg("reference cache write failed")
	}
}

func (b *base) account(ctx context.Context, id string) (*domain.Account, error) {
	acct, err := b.deps.Store.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrAccountNotFound.WithMessagef("account %s not found", id)
		}
		return nil, domain.ErrStorage.WithCause(err)
	}
	return acct, nil
}

func (b *base) newRecord(txType domain.TransactionType, category domain.TransactionCategory, input ExecuteInput) *domain.Transaction {
	return &domain.Transaction{
		ID:              b.deps.IDGen.Generate(),
		Type:            txType,
		Category:        category,
		Status:          domain.TransactionStatusPending,
		DebitAccountID:  input.DebitAccountID,
		CreditAccountID: input.CreditAccountID,
		Amount:          domain.NormalizeAmount(input.Amount),
		ReferenceID:     input.ReferenceID,
		Description:     input.Description,
		BatchID:         input.BatchID,
		CreatedAt:       time.Now().UTC(),
	}
}

// failed marks rec FAILED for return to the caller. Failed attempts are not
// persisted: they changed no balance and carry no audit value.
func failed(rec *domain.Transaction) *domain.Transaction {
	rec.Status = domain.TransactionStatusFailed
	return rec
}

func validateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}
	return nil
}
