package strategy_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"github.com/kestrelpay/payrolld/internal/adapter/repository/memory"
	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/ledger"
	"github.com/kestrelpay/payrolld/internal/strategy"
	"github.com/kestrelpay/payrolld/internal/strategy/mocks"
)

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%04d", g.n)
}

func newTestDeps(t *testing.T) (strategy.Deps, *memory.Store) {
	t.Helper()
	st := memory.New()
	ldg := ledger.New(st, zerolog.Nop(), nil,
		ledger.WithRetryInterval(time.Millisecond, 5*time.Millisecond))
	return strategy.Deps{
		Store:  st,
		Ledger: ldg,
		IDGen:  &seqIDGen{},
		Logger: zerolog.Nop(),
	}, st
}

func createAccount(t *testing.T, st *memory.Store, id string, owner domain.OwnerType, balance int64) {
	t.Helper()
	err := st.CreateAccount(context.Background(), &domain.Account{
		ID:          id,
		OwnerType:   owner,
		OwnerID:     "owner-" + id,
		AccountType: domain.AccountTypeWallet,
		Balance:     decimal.NewFromInt(balance),
		Active:      true,
	})
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
}

func balanceOf(t *testing.T, st *memory.Store, id string) decimal.Decimal {
	t.Helper()
	acct, err := st.GetAccountAny(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load account: %v", err)
	}
	return acct.Balance
}

func companyAccount(balance int64) *domain.Account {
	return &domain.Account{ID: "acc-co", OwnerType: domain.OwnerTypeCompany, Balance: decimal.NewFromInt(balance), Active: true}
}

func employeeAccount(id string) *domain.Account {
	return &domain.Account{ID: id, OwnerType: domain.OwnerTypeEmployee, Active: true}
}

func TestReferenceCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps, st := newTestDeps(t)
	cache := mocks.NewMockReferenceCache(ctrl)
	deps.RefCache = cache

	createAccount(t, st, "acc-co", domain.OwnerTypeCompany, 0)
	topup := strategy.NewCompanyTopUp(deps)

	input := strategy.ExecuteInput{
		CreditAccountID: "acc-co",
		Amount:          decimal.NewFromInt(500),
		ReferenceID:     "ref-1",
	}

	// First execution misses the cache, settles and writes back.
	cache.EXPECT().Get(gomock.Any(), "ref-1").Return(nil, nil)
	cache.EXPECT().Set(gomock.Any(), gomock.Any()).Return(nil)

	first, err := topup.Execute(ctx, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Second execution is served straight from the cache.
	cache.EXPECT().Get(gomock.Any(), "ref-1").Return(first, nil)

	second, err := topup.Execute(ctx, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the cached transaction, got %s and %s", first.ID, second.ID)
	}

	if got := balanceOf(t, st, "acc-co"); !got.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("funds must move exactly once, balance %s", got)
	}
}
