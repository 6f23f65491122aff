package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/store"
)

const accountColumns = `id, owner_type, owner_id, account_type, balance, overdraft_limit, version, active, created_at, updated_at`

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID,
		string(account.OwnerType),
		account.OwnerID,
		string(account.AccountType),
		decimalToNumeric(account.Balance),
		decimalToNumeric(account.OverdraftLimit),
		account.Version,
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	)
	return err
}

// GetAccount returns an active account by ID.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return s.getAccount(ctx, id, false)
}

// GetAccountAny returns an account by ID including inactive ones.
func (s *Store) GetAccountAny(ctx context.Context, id string) (*domain.Account, error) {
	return s.getAccount(ctx, id, true)
}

func (s *Store) getAccount(ctx context.Context, id string, includeInactive bool) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if !includeInactive {
		query += ` AND active`
	}

	row := s.pool.QueryRow(ctx, query, id)
	return scanAccount(row)
}

// SaveAccount writes the account conditioned on the stored version matching
// expectedVersion. The version is bumped in the same statement.
func (s *Store) SaveAccount(ctx context.Context, account *domain.Account, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET balance = $2, overdraft_limit = $3, active = $4, version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $6`,
		account.ID,
		decimalToNumeric(account.Balance),
		decimalToNumeric(account.OverdraftLimit),
		account.Active,
		time.Now().UTC(),
		expectedVersion,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a lost race.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, account.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}

	account.Version = expectedVersion + 1
	return nil
}

// DeactivateAccount soft-deletes an account.
func (s *Store) DeactivateAccount(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET active = FALSE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		acct        domain.Account
		ownerType   string
		accountType string
		balance     pgtype.Numeric
		overdraft   pgtype.Numeric
	)

	err := row.Scan(
		&acct.ID,
		&ownerType,
		&acct.OwnerID,
		&accountType,
		&balance,
		&overdraft,
		&acct.Version,
		&acct.Active,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	acct.OwnerType = domain.OwnerType(ownerType)
	acct.AccountType = domain.AccountType(accountType)
	acct.Balance = numericToDecimal(balance)
	acct.OverdraftLimit = numericToDecimal(overdraft)
	return &acct, nil
}
