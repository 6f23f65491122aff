package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnerType identifies who owns a wallet account.
type OwnerType string

const (
	OwnerTypeCompany  OwnerType = "COMPANY"
	OwnerTypeEmployee OwnerType = "EMPLOYEE"
)

// AccountType identifies the kind of wallet.
type AccountType string

const (
	AccountTypeWallet  AccountType = "WALLET"
	AccountTypePayroll AccountType = "PAYROLL"
)

// MoneyScale is the number of fractional digits carried by every balance
// and amount in the ledger.
const MoneyScale = 4

// NormalizeAmount rounds an amount to the ledger's fixed-point scale.
func NormalizeAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// Account is a wallet that can hold a balance. Accounts are never deleted,
// only marked inactive. Balance is mutated exclusively through the ledger's
// debit/credit operations under optimistic versioning.
type Account struct {
	ID             string
	OwnerType      OwnerType
	OwnerID        string
	AccountType    AccountType
	Balance        decimal.Decimal
	OverdraftLimit decimal.Decimal
	Version        int64
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Floor returns the lowest balance the account may reach.
func (a *Account) Floor() decimal.Decimal {
	return a.OverdraftLimit.Neg()
}

// ValidateDebit checks that debiting amount keeps the balance at or above
// the overdraft floor.
func (a *Account) ValidateDebit(amount decimal.Decimal) error {
	if !a.Active {
		return ErrAccountInactive
	}
	if a.Balance.Sub(amount).LessThan(a.Floor()) {
		return ErrInsufficientFunds
	}
	return nil
}

// ValidateCredit checks that the account can be credited.
func (a *Account) ValidateCredit(amount decimal.Decimal) error {
	if !a.Active {
		return ErrAccountInactive
	}
	return nil
}

// ApplyDebit returns the balance after a debit of amount.
func (a *Account) ApplyDebit(amount decimal.Decimal) decimal.Decimal {
	return a.Balance.Sub(amount)
}

// ApplyCredit returns the balance after a credit of amount.
func (a *Account) ApplyCredit(amount decimal.Decimal) decimal.Decimal {
	return a.Balance.Add(amount)
}

// CheckInvariant verifies the overdraft floor holds for the current balance.
func (a *Account) CheckInvariant() error {
	if a.Balance.LessThan(a.Floor()) {
		return ErrInsufficientFunds.WithMessagef(
			"account %s balance %s below floor %s", a.ID, a.Balance, a.Floor())
	}
	return nil
}
