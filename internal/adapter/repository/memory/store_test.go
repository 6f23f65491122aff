package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/store"
)

func newAccount(id string, balance int64) *domain.Account {
	return &domain.Account{
		ID:        id,
		OwnerType: domain.OwnerTypeCompany,
		OwnerID:   "owner-" + id,
		Balance:   decimal.NewFromInt(balance),
		Active:    true,
	}
}

func TestSaveAccountVersionCheck(t *testing.T) {
	ctx := context.Background()
	st := New()

	acct := newAccount("acc-1", 100)
	if err := st.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := st.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded.Balance = decimal.NewFromInt(150)
	if err := st.SaveAccount(ctx, loaded, loaded.Version); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Version != 1 {
		t.Fatalf("expected caller's version bumped to 1, got %d", loaded.Version)
	}

	// A writer still holding the old version must be rejected.
	stale := newAccount("acc-1", 999)
	if err := st.SaveAccount(ctx, stale, 0); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	current, err := st.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !current.Balance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("rejected write must not change balance, got %s", current.Balance)
	}
}

func TestSaveAccountUnknown(t *testing.T) {
	st := New()
	err := st.SaveAccount(context.Background(), newAccount("nope", 0), 0)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAccountExcludesInactive(t *testing.T) {
	ctx := context.Background()
	st := New()

	if err := st.CreateAccount(ctx, newAccount("acc-1", 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.DeactivateAccount(ctx, "acc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := st.GetAccount(ctx, "acc-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for inactive account, got %v", err)
	}

	acct, err := st.GetAccountAny(ctx, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.Active {
		t.Fatalf("expected account to be inactive")
	}
}

func TestSaveTransactionDuplicateReference(t *testing.T) {
	ctx := context.Background()
	st := New()

	first := &domain.Transaction{ID: "tx-1", ReferenceID: "ref-1", Amount: decimal.NewFromInt(10)}
	if err := st.SaveTransaction(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Re-saving the same transaction under its reference is an update.
	first.Status = domain.TransactionStatusCompleted
	if err := st.SaveTransaction(ctx, first); err != nil {
		t.Fatalf("unexpected error on update: %v", err)
	}

	second := &domain.Transaction{ID: "tx-2", ReferenceID: "ref-1", Amount: decimal.NewFromInt(10)}
	if err := st.SaveTransaction(ctx, second); !errors.Is(err, domain.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}

	found, err := st.FindTransactionByReference(ctx, "ref-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.ID != "tx-1" {
		t.Fatalf("expected tx-1 under ref-1, got %s", found.ID)
	}
}

func TestBatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := New()

	batch := &domain.PayrollBatch{
		ID:               "batch-1",
		CompanyID:        "co-1",
		CompanyAccountID: "acc-co",
		Status:           domain.BatchStatusPending,
		Items: []*domain.PayrollBatchItem{
			{ID: "item-1", BatchID: "batch-1", EmployeeAccountID: "acc-e1", Amount: decimal.NewFromInt(100), Status: domain.ItemStatusPending},
		},
	}
	if err := st.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := st.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mutating the copy must not leak into the store.
	loaded.Items[0].Status = domain.ItemStatusFailed
	again, err := st.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Items[0].Status != domain.ItemStatusPending {
		t.Fatalf("expected stored item untouched, got %s", again.Items[0].Status)
	}

	loaded.Items[0].Status = domain.ItemStatusCompleted
	loaded.Items[0].TransactionID = "tx-1"
	if err := st.UpdateItem(ctx, loaded.Items[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded.Status = domain.BatchStatusCompleted
	if err := st.UpdateBatch(ctx, loaded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, err := st.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != domain.BatchStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", final.Status)
	}
	if final.Items[0].TransactionID != "tx-1" {
		t.Fatalf("expected item transaction id persisted")
	}
}

func TestTransitionBatchIsConditional(t *testing.T) {
	ctx := context.Background()
	st := New()

	if err := st.CreateBatch(ctx, &domain.PayrollBatch{ID: "batch-1", Status: domain.BatchStatusPending}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := st.TransitionBatch(ctx, "batch-1", domain.BatchStatusPending, domain.BatchStatusProcessing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The batch is no longer PENDING, so a second claim loses.
	err := st.TransitionBatch(ctx, "batch-1", domain.BatchStatusPending, domain.BatchStatusProcessing)
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	loaded, err := st.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Status != domain.BatchStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", loaded.Status)
	}

	if err := st.TransitionBatch(ctx, "missing", domain.BatchStatusPending, domain.BatchStatusProcessing); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListBatchesByStatus(t *testing.T) {
	ctx := context.Background()
	st := New()

	for _, id := range []string{"b-1", "b-2"} {
		if err := st.CreateBatch(ctx, &domain.PayrollBatch{ID: id, Status: domain.BatchStatusPending}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := st.CreateBatch(ctx, &domain.PayrollBatch{ID: "b-3", Status: domain.BatchStatusCompleted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, err := st.ListBatchesByStatus(ctx, domain.BatchStatusPending)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending batches, got %d", len(pending))
	}
}

func TestListTransactionsByBatch(t *testing.T) {
	ctx := context.Background()
	st := New()

	for _, id := range []string{"tx-1", "tx-2"} {
		txn := &domain.Transaction{ID: id, BatchID: "batch-1", Amount: decimal.NewFromInt(10)}
		if err := st.SaveTransaction(ctx, txn); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := st.SaveTransaction(ctx, &domain.Transaction{ID: "tx-3", Amount: decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	txns, err := st.ListTransactionsByBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txns))
	}
}
