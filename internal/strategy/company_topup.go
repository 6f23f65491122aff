package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kestrelpay/payrolld/internal/domain"
)

// CompanyTopUp credits a company wallet from a funding source outside the
// ledger. The movement is assumed pre-settled, so the record carries no
// debit account.
type CompanyTopUp struct {
	base
}

// NewCompanyTopUp creates the strategy.
func NewCompanyTopUp(deps Deps) *CompanyTopUp {
	return &CompanyTopUp{base{deps: deps}}
}

// TransactionType implements Strategy.
func (s *CompanyTopUp) TransactionType() domain.TransactionType {
	return domain.TransactionTypeCompanyTopUp
}

// Validate requires no debit party and a company credit party.
func (s *CompanyTopUp) Validate(debit, credit *domain.Account, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if debit != nil {
		return domain.ErrInvalidOwnerType.WithMessagef(
			"top-up funds originate outside the ledger, debit account not allowed")
	}
	if credit == nil {
		return domain.ErrAccountNotFound
	}
	if credit.OwnerType != domain.OwnerTypeCompany {
		return domain.ErrInvalidOwnerType.WithMessagef(
			"top-up must credit a company account, got %s", credit.OwnerType)
	}
	return nil
}

// Execute implements Strategy.
func (s *CompanyTopUp) Execute(ctx context.Context, input ExecuteInput) (*domain.Transaction, error) {
	if existing, err := s.existingByReference(ctx, input.ReferenceID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	if input.DebitAccountID != "" {
		return nil, domain.ErrInvalidOwnerType.WithMessagef(
			"top-up funds originate outside the ledger, debit account not allowed")
	}

	credit, err := s.account(ctx, input.CreditAccountID)
	if err != nil {
		return nil, err
	}

	if err := s.Validate(nil, credit, input.Amount); err != nil {
		return nil, err
	}

	rec := s.newRecord(domain.TransactionTypeCompanyTopUp, domain.CategoryTopUp, input)
	if _, err := s.deps.Ledger.Credit(ctx, rec); err != nil {
		return failed(rec), err
	}

	s.cacheReference(ctx, rec)
	return rec, nil
}
