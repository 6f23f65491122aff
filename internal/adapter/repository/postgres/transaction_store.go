package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/store"
)

const transactionColumns = `id, type, category, status, debit_account_id, credit_account_id, amount, reference_id, description, reversal_of_id, batch_id, created_at, updated_at`

// SaveTransaction inserts a transaction record, or updates its status when
// the record already exists (finalization of AUTHORIZED records, reversal
// marking).
func (s *Store) SaveTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''), $9, NULLIF($10, ''), NULLIF($11, ''), $12, $13)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		txn.ID,
		string(txn.Type),
		string(txn.Category),
		string(txn.Status),
		txn.DebitAccountID,
		txn.CreditAccountID,
		decimalToNumeric(txn.Amount),
		txn.ReferenceID,
		txn.Description,
		txn.ReversalOfID,
		txn.BatchID,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	return err
}

// GetTransaction returns a transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// FindTransactionByReference returns the transaction recorded under a
// caller-supplied idempotency key.
func (s *Store) FindTransactionByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference_id = $1`, referenceID)
	return scanTransaction(row)
}

// ListTransactionsByBatch returns a batch's transactions in creation order.
func (s *Store) ListTransactionsByBatch(ctx context.Context, batchID string) ([]*domain.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE batch_id = $1 ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn           domain.Transaction
		txType        string
		category      string
		status        string
		debitAccount  pgtype.Text
		creditAccount pgtype.Text
		amount        pgtype.Numeric
		reference     pgtype.Text
		reversalOf    pgtype.Text
		batchID       pgtype.Text
	)

	err := row.Scan(
		&txn.ID,
		&txType,
		&category,
		&status,
		&debitAccount,
		&creditAccount,
		&amount,
		&reference,
		&txn.Description,
		&reversalOf,
		&batchID,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	txn.Type = domain.TransactionType(txType)
	txn.Category = domain.TransactionCategory(category)
	txn.Status = domain.TransactionStatus(status)
	txn.DebitAccountID = debitAccount.String
	txn.CreditAccountID = creditAccount.String
	txn.Amount = numericToDecimal(amount)
	txn.ReferenceID = reference.String
	txn.ReversalOfID = reversalOf.String
	txn.BatchID = batchID.String
	return &txn, nil
}
