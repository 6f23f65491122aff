package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kestrelpay/payrolld/internal/domain"
)

// Transfer moves funds between any two active wallets.
type Transfer struct {
	base
}

// NewTransfer creates the strategy.
func NewTransfer(deps Deps) *Transfer {
	return &Transfer{base{deps: deps}}
}

// TransactionType implements Strategy.
func (s *Transfer) TransactionType() domain.TransactionType {
	return domain.TransactionTypeTransfer
}

// Validate requires two distinct active parties.
func (s *Transfer) Validate(debit, credit *domain.Account, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if debit == nil || credit == nil {
		return domain.ErrAccountNotFound
	}
	if debit.ID == credit.ID {
		return domain.ErrSameAccount
	}
	if !debit.Active || !credit.Active {
		return domain.ErrAccountInactive
	}
	return nil
}

// Execute implements Strategy.
func (s *Transfer) Execute(ctx context.Context, input ExecuteInput) (*domain.Transaction, error) {
	if existing, err := s.existingByReference(ctx, input.ReferenceID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	debit, err := s.account(ctx, input.DebitAccountID)
	if err != nil {
		return nil, err
	}
	credit, err := s.account(ctx, input.CreditAccountID)
	if err != nil {
		return nil, err
	}

	if err := s.Validate(debit, credit, input.Amount); err != nil {
		return nil, err
	}

	rec := s.newRecord(domain.TransactionTypeTransfer, domain.CategoryTransfer, input)
	if _, err := s.deps.Ledger.Transfer(ctx, rec); err != nil {
		return failed(rec), err
	}

	s.cacheReference(ctx, rec)
	return rec, nil
}
