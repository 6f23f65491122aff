package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kestrelpay/payrolld/internal/domain"
)

// SalaryDisbursement moves funds from a company wallet to an employee
// wallet. Within a payroll batch the company side is debited once by the
// aggregate authorization and items run with FundsReserved set.
type SalaryDisbursement struct {
	base
}

// NewSalaryDisbursement creates the strategy.
func NewSalaryDisbursement(deps Deps) *SalaryDisbursement {
	return &SalaryDisbursement{base{deps: deps}}
}

// TransactionType implements Strategy.
func (s *SalaryDisbursement) TransactionType() domain.TransactionType {
	return domain.TransactionTypeSalaryDisbursement
}

// Validate requires a company debit party and an employee credit party.
func (s *SalaryDisbursement) Validate(debit, credit *domain.Account, amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if debit == nil || credit == nil {
		return domain.ErrAccountNotFound
	}
	if debit.OwnerType != domain.OwnerTypeCompany {
		return domain.ErrInvalidOwnerType.WithMessagef(
			"salary disbursement must debit a company account, got %s", debit.OwnerType)
	}
	if credit.OwnerType != domain.OwnerTypeEmployee {
		return domain.ErrInvalidOwnerType.WithMessagef(
			"salary disbursement must credit an employee account, got %s", credit.OwnerType)
	}
	if debit.ID == credit.ID {
		return domain.ErrSameAccount
	}
	return nil
}

// Execute implements Strategy.
func (s *SalaryDisbursement) Execute(ctx context.Context, input ExecuteInput) (*domain.Transaction, error) {
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

	rec := s.newRecord(domain.TransactionTypeSalaryDisbursement, domain.CategoryPayroll, input)

	if input.FundsReserved {
		_, err = s.deps.Ledger.Credit(ctx, rec)
	} else {
		_, err = s.deps.Ledger.Transfer(ctx, rec)
	}
	if err != nil {
		return failed(rec), err
	}

	s.cacheReference(ctx, rec)
	return rec, nil
}
