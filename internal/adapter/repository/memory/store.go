// Package memory provides an in-memory Ledger Store with the same
// compare-and-swap semantics as the postgres adapter. It backs unit and
// property tests and serves as the stub for pre-settled external funding.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/store"
)

// Store is a mutex-guarded, version-checked Ledger Store.
type Store struct {
	mu           sync.RWMutex
	accounts     map[string]*domain.Account
	transactions map[string]*domain.Transaction
	byReference  map[string]string
	batches      map[string]*domain.PayrollBatch

	// SaveAccountHook, when set, runs before each SaveAccount and may return
	// an error to inject storage failures in tests.
	SaveAccountHook func(account *domain.Account) error

	// SaveTransactionHook mirrors SaveAccountHook for transaction writes.
	SaveTransactionHook func(txn *domain.Transaction) error
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts:     make(map[string]*domain.Account),
		transactions: make(map[string]*domain.Transaction),
		byReference:  make(map[string]string),
		batches:      make(map[string]*domain.PayrollBatch),
	}
}

var _ store.Store = (*Store)(nil)

// CreateAccount stores a new account.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

// GetAccount returns an active account by ID.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok || !acct.Active {
		return nil, store.ErrNotFound
	}

	cp := *acct
	return &cp, nil
}

// GetAccountAny returns an account by ID including inactive ones.
func (s *Store) GetAccountAny(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *acct
	return &cp, nil
}

// SaveAccount writes the account if the stored version matches
// expectedVersion, bumping the version on success.
func (s *Store) SaveAccount(ctx context.Context, account *domain.Account, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveAccountHook != nil {
		if err := s.SaveAccountHook(account); err != nil {
			return err
		}
	}

	current, ok := s.accounts[account.ID]
	if !ok {
		return store.ErrNotFound
	}

	if current.Version != expectedVersion {
		return store.ErrVersionConflict
	}

	cp := *account
	cp.Version = expectedVersion + 1
	cp.UpdatedAt = time.Now().UTC()
	s.accounts[account.ID] = &cp
	account.Version = cp.Version
	return nil
}

// DeactivateAccount soft-deletes an account.
func (s *Store) DeactivateAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return store.ErrNotFound
	}

	acct.Active = false
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveTransaction inserts or updates a transaction record.
func (s *Store) SaveTransaction(ctx context.Context, txn *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveTransactionHook != nil {
		if err := s.SaveTransactionHook(txn); err != nil {
			return err
		}
	}

	if txn.ReferenceID != "" {
		if existingID, ok := s.byReference[txn.ReferenceID]; ok && existingID != txn.ID {
			return domain.ErrDuplicateReference
		}
		s.byReference[txn.ReferenceID] = txn.ID
	}

	cp := *txn
	s.transactions[txn.ID] = &cp
	return nil
}

// GetTransaction returns a transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *txn
	return &cp, nil
}

// FindTransactionByReference returns the transaction recorded under a
// caller-supplied idempotency key.
func (s *Store) FindTransactionByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byReference[referenceID]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *s.transactions[id]
	return &cp, nil
}

// ListTransactionsByBatch returns all transactions tagged with batchID in
// creation order.
func (s *Store) ListTransactionsByBatch(ctx context.Context, batchID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for _, txn := range s.transactions {
		if txn.BatchID == batchID {
			cp := *txn
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CreateBatch stores a new payroll batch with its items.
func (s *Store) CreateBatch(ctx context.Context, batch *domain.PayrollBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches[batch.ID] = copyBatch(batch)
	return nil
}

// GetBatch returns a batch with its items.
func (s *Store) GetBatch(ctx context.Context, id string) (*domain.PayrollBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return copyBatch(batch), nil
}

// ListBatchesByStatus returns batches in the given status, oldest first.
func (s *Store) ListBatchesByStatus(ctx context.Context, status domain.BatchStatus) ([]*domain.PayrollBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PayrollBatch
	for _, batch := range s.batches {
		if batch.Status == status {
			out = append(out, copyBatch(batch))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateBatch writes batch-level fields. Items are updated via UpdateItem.
func (s *Store) UpdateBatch(ctx context.Context, batch *domain.PayrollBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.batches[batch.ID]
	if !ok {
		return store.ErrNotFound
	}

	current.Status = batch.Status
	current.Reconciled = batch.Reconciled
	current.AuthorizationTxID = batch.AuthorizationTxID
	current.UpdatedAt = time.Now().UTC()
	return nil
}

// TransitionBatch moves a batch between statuses only when it is currently
// in from. The check and the write happen under one lock, mirroring the
// conditional UPDATE in the postgres adapter.
func (s *Store) TransitionBatch(ctx context.Context, id string, from, to domain.BatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return store.ErrNotFound
	}
	if batch.Status != from {
		return store.ErrVersionConflict
	}

	batch.Status = to
	batch.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateItem writes one batch item.
func (s *Store) UpdateItem(ctx context.Context, item *domain.PayrollBatchItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[item.BatchID]
	if !ok {
		return store.ErrNotFound
	}

	for i, existing := range batch.Items {
		if existing.ID == item.ID {
			cp := *item
			cp.UpdatedAt = time.Now().UTC()
			batch.Items[i] = &cp
			return nil
		}
	}
	return store.ErrNotFound
}

func copyBatch(batch *domain.PayrollBatch) *domain.PayrollBatch {
	cp := *batch
	cp.Items = make([]*domain.PayrollBatchItem, len(batch.Items))
	for i, item := range batch.Items {
		itemCp := *item
		cp.Items[i] = &itemCp
	}
	return &cp
}
