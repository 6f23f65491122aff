package strategy

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/store"
)

// Reversal undoes a prior COMPLETED transaction by moving the same amount in
// the opposite direction and marking the original REVERSED. A transaction
// can be reversed at most once.
type Reversal struct {
	base
}

// NewReversal creates the strategy.
func NewReversal(deps Deps) *Reversal {
	return &Reversal{base{deps: deps}}
}

// TransactionType implements Strategy.
func (s *Reversal) TransactionType() domain.TransactionType {
	return domain.TransactionTypeReversal
}

// Validate checks the reversing movement itself. The original-transaction
// preconditions are checked in Execute, where the record is available.
func (s *Reversal) Validate(debit, credit *domain.Account, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if debit == nil {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Execute implements Strategy. The original transaction is located by
// input.OriginalTransactionID, falling back to input.ReferenceID as the
// original's idempotency key.
func (s *Reversal) Execute(ctx context.Context, input ExecuteInput) (*domain.Transaction, error) {
	original, err := s.original(ctx, input)
	if err != nil {
		return nil, err
	}

	switch original.Status {
	case domain.TransactionStatusReversed:
		return nil, domain.ErrAlreadyReversed.WithMessagef(
			"transaction %s already reversed", original.ID)
	case domain.TransactionStatusCompleted:
		// reversible
	default:
		return nil, domain.ErrInvalidStatusTransition.WithMessagef(
			"transaction %s in status %s cannot be reversed", original.ID, original.Status)
	}

	rec := &domain.Transaction{
		ID:              s.deps.IDGen.Generate(),
		Type:            domain.TransactionTypeReversal,
		Category:        domain.CategoryReversal,
		Status:          domain.TransactionStatusPending,
		DebitAccountID:  original.CreditAccountID,
		CreditAccountID: original.DebitAccountID,
		Amount:          original.Amount,
		Description:     "reversal of " + original.ID,
		ReversalOfID:    original.ID,
		BatchID:         original.BatchID,
	}
	if input.Description != "" {
		rec.Description = input.Description
	}

	// A top-up has no debit side, so its reversal only debits the credited
	// account; the funds return to the external source.
	if original.DebitAccountID == "" {
		_, err = s.deps.Ledger.Debit(ctx, rec)
	} else {
		_, err = s.deps.Ledger.Transfer(ctx, rec)
	}
	if err != nil {
		return failed(rec), err
	}

	if _, err := s.deps.Ledger.FinalizeTransaction(ctx, original.ID, domain.TransactionStatusReversed); err != nil {
		return rec, err
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.ReversalsExecuted.Inc()
	}

	s.deps.Logger.Info().
		Str("transaction_id", rec.ID).
		Str("original_id", original.ID).
		Str("amount", rec.Amount.String()).
		Msg("transaction reversed")

	return rec, nil
}

func (s *Reversal) original(ctx context.Context, input ExecuteInput) (*domain.Transaction, error) {
	if input.OriginalTransactionID != "" {
		original, err := s.deps.Store.GetTransaction(ctx, input.OriginalTransactionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, domain.ErrTransactionNotFound.WithMessagef(
					"original transaction %s not found", input.OriginalTransactionID)
			}
			return nil, domain.ErrStorage.WithCause(err)
		}
		return original, nil
	}

	if input.ReferenceID == "" {
		return nil, domain.ErrTransactionNotFound.WithMessagef(
			"reversal requires an original transaction id or reference")
	}

	original, err := s.deps.Store.FindTransactionByReference(ctx, input.ReferenceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrTransactionNotFound.WithMessagef(
				"no transaction recorded under reference %q", input.ReferenceID)
		}
		return nil, domain.ErrStorage.WithCause(err)
	}
	return original, nil
}
