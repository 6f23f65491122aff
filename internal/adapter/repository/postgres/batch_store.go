package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/store"
)

// CreateBatch inserts a batch with all its items in one transaction.
func (s *Store) CreateBatch(ctx context.Context, batch *domain.PayrollBatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO payroll_batches (id, company_id, company_account_id, status, reconciled, authorization_tx_id, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`,
		batch.ID,
		batch.CompanyID,
		batch.CompanyAccountID,
		string(batch.Status),
		batch.Reconciled,
		batch.AuthorizationTxID,
		batch.Description,
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, item := range batch.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO payroll_batch_items (id, batch_id, employee_account_id, amount, transaction_id, status, failure_reason, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)`,
			item.ID,
			item.BatchID,
			item.EmployeeAccountID,
			decimalToNumeric(item.Amount),
			item.TransactionID,
			string(item.Status),
			item.FailureReason,
			item.CreatedAt,
			item.UpdatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetBatch returns a batch with its items in creation order.
func (s *Store) GetBatch(ctx context.Context, id string) (*domain.PayrollBatch, error) {
	var (
		batch  domain.PayrollBatch
		status string
		authTx pgtype.Text
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, company_id, company_account_id, status, reconciled, authorization_tx_id, description, created_at, updated_at
		FROM payroll_batches WHERE id = $1`, id).Scan(
		&batch.ID,
		&batch.CompanyID,
		&batch.CompanyAccountID,
		&status,
		&batch.Reconciled,
		&authTx,
		&batch.Description,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	batch.Status = domain.BatchStatus(status)
	batch.AuthorizationTxID = authTx.String

	rows, err := s.pool.Query(ctx, `
		SELECT id, batch_id, employee_account_id, amount, transaction_id, status, failure_reason, created_at, updated_at
		FROM payroll_batch_items WHERE batch_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item       domain.PayrollBatchItem
			amount     pgtype.Numeric
			txID       pgtype.Text
			itemStatus string
		)
		err := rows.Scan(
			&item.ID,
			&item.BatchID,
			&item.EmployeeAccountID,
			&amount,
			&txID,
			&itemStatus,
			&item.FailureReason,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		item.Amount = numericToDecimal(amount)
		item.TransactionID = txID.String
		item.Status = domain.ItemStatus(itemStatus)
		batch.Items = append(batch.Items, &item)
	}

	return &batch, rows.Err()
}

// ListBatchesByStatus returns batches in the given status, oldest first.
// Items are not loaded; callers needing them use GetBatch.
func (s *Store) ListBatchesByStatus(ctx context.Context, status domain.BatchStatus) ([]*domain.PayrollBatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, company_account_id, status, reconciled, authorization_tx_id, description, created_at, updated_at
		FROM payroll_batches WHERE status = $1 ORDER BY created_at, id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PayrollBatch
	for rows.Next() {
		var (
			batch       domain.PayrollBatch
			batchStatus string
			authTx      pgtype.Text
		)
		err := rows.Scan(
			&batch.ID,
			&batch.CompanyID,
			&batch.CompanyAccountID,
			&batchStatus,
			&batch.Reconciled,
			&authTx,
			&batch.Description,
			&batch.CreatedAt,
			&batch.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		batch.Status = domain.BatchStatus(batchStatus)
		batch.AuthorizationTxID = authTx.String
		out = append(out, &batch)
	}

	return out, rows.Err()
}

// UpdateBatch writes batch-level fields. Items are updated via UpdateItem.
func (s *Store) UpdateBatch(ctx context.Context, batch *domain.PayrollBatch) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payroll_batches
		SET status = $2, reconciled = $3, authorization_tx_id = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1`,
		batch.ID,
		string(batch.Status),
		batch.Reconciled,
		batch.AuthorizationTxID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// TransitionBatch claims a status move with a conditional UPDATE so two
// runners racing on the same batch cannot both win.
func (s *Store) TransitionBatch(ctx context.Context, id string, from, to domain.BatchStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payroll_batches
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM payroll_batches WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	return nil
}

// UpdateItem writes one batch item.
func (s *Store) UpdateItem(ctx context.Context, item *domain.PayrollBatchItem) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payroll_batch_items
		SET transaction_id = NULLIF($2, ''), status = $3, failure_reason = $4, updated_at = NOW()
		WHERE id = $1`,
		item.ID,
		item.TransactionID,
		string(item.Status),
		item.FailureReason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
