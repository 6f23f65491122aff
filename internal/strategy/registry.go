package strategy

import (
	"github.com/kestrelpay/payrolld/internal/domain"
)

// Registry maps a transaction type to its strategy. It is built once at
// process start and read-only afterwards, so lookups need no locking.
type Registry struct {
	strategies map[domain.TransactionType]Strategy
}

// NewRegistry builds a registry from the given strategies. A later strategy
// with the same type wins, which never happens with the standard set.
func NewRegistry(strategies ...Strategy) *Registry {
	m := make(map[domain.TransactionType]Strategy, len(strategies))
	for _, s := range strategies {
		m[s.TransactionType()] = s
	}
	return &Registry{strategies: m}
}

// NewDefaultRegistry wires the full standard strategy set.
func NewDefaultRegistry(deps Deps) *Registry {
	return NewRegistry(
		NewSalaryDisbursement(deps),
		NewCompanyTopUp(deps),
		NewTransfer(deps),
		NewReversal(deps),
	)
}

// Resolve returns the strategy for a transaction type.
func (r *Registry) Resolve(txType domain.TransactionType) (Strategy, error) {
	s, ok := r.strategies[txType]
	if !ok {
		return nil, domain.ErrUnsupportedTransactionType.WithMessagef(
			"no strategy registered for %q", txType)
	}
	return s, nil
}

// Types returns the registered transaction types.
func (r *Registry) Types() []domain.TransactionType {
	out := make([]domain.TransactionType, 0, len(r.strategies))
	for t := range r.strategies {
		out = append(out, t)
	}
	return out
}
