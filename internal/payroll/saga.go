package payroll

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/infrastructure/metrics"
	"github.com/kestrelpay/payrolld/internal/ledger"
	"github.com/kestrelpay/payrolld/internal/store"
	"github.com/kestrelpay/payrolld/internal/strategy"
)

// Saga undoes the applied portion of a failed payroll batch. It replays
// COMPLETED items through the reversal strategy in reverse chronological
// order, then returns the undisbursed remainder to the company, restoring
// every account to its pre-batch balance.
type Saga struct {
	store    store.Store
	registry *strategy.Registry
	ledger   *ledger.Ledger
	idGen    store.IDGenerator
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewSaga creates a Saga.
func NewSaga(st store.Store, registry *strategy.Registry, lg *ledger.Ledger, idGen store.IDGenerator, logger zerolog.Logger, m *metrics.Metrics) *Saga {
	return &Saga{
		store:    st,
		registry: registry,
		ledger:   lg,
		idGen:    idGen,
		logger:   logger.With().Str("component", "compensation").Logger(),
		metrics:  m,
	}
}

// Compensate reverses every applied item of the batch and settles the
// aggregate authorization. A reversal that itself fails is fatal: the error
// is CompensationFailed and the ledger requires manual reconciliation.
func (s *Saga) Compensate(ctx context.Context, batch *domain.PayrollBatch) error {
	log := s.logger.With().Str("batch_id", batch.ID).Logger()

	reversal, err := s.registry.Resolve(domain.TransactionTypeReversal)
	if err != nil {
		return domain.ErrCompensationFailed.WithCause(err)
	}

	items, err := s.completedItemsNewestFirst(ctx, batch)
	if err != nil {
		s.observe("failed")
		return domain.ErrCompensationFailed.WithCause(err)
	}

	// Snapshot before reversing: item statuses flip to REVERSED below, and
	// the remainder must reflect what was actually disbursed.
	remainder := batch.TotalAmount().Sub(batch.DisbursedAmount())

	for _, item := range items {
		input := strategy.ExecuteInput{
			OriginalTransactionID: item.TransactionID,
			ReferenceID:           fmt.Sprintf("payroll:%s:compensate:%s", batch.ID, item.ID),
			Description:           "payroll compensation",
		}
		if _, err := reversal.Execute(ctx, input); err != nil {
			s.observe("failed")
			log.Error().Err(err).
				Str("item_id", item.ID).
				Str("transaction_id", item.TransactionID).
				Msg("item reversal failed, manual reconciliation required")
			return domain.ErrCompensationFailed.WithCause(err)
		}

		item.Status = domain.ItemStatusReversed
		item.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateItem(ctx, item); err != nil {
			s.observe("failed")
			return domain.ErrCompensationFailed.WithCause(err)
		}

		log.Info().
			Str("item_id", item.ID).
			Str("amount", item.Amount.String()).
			Msg("item compensated")
	}

	if err := s.refundRemainder(ctx, batch, remainder); err != nil {
		s.observe("failed")
		return domain.ErrCompensationFailed.WithCause(err)
	}

	if batch.AuthorizationTxID != "" {
		if _, err := s.ledger.FinalizeTransaction(ctx, batch.AuthorizationTxID, domain.TransactionStatusReversed); err != nil {
			s.observe("failed")
			return domain.ErrCompensationFailed.WithCause(err)
		}
	}

	s.observe("reconciled")
	log.Info().Int("items_reversed", len(items)).Msg("compensation complete, pre-batch balances restored")
	return nil
}

// completedItemsNewestFirst orders applied items by their transaction's
// creation time, newest first, so compensation unwinds the run backwards.
func (s *Saga) completedItemsNewestFirst(ctx context.Context, batch *domain.PayrollBatch) ([]*domain.PayrollBatchItem, error) {
	var items []*domain.PayrollBatchItem
	createdAt := make(map[string]time.Time)

	for _, item := range batch.Items {
		if item.Status != domain.ItemStatusCompleted || item.TransactionID == "" {
			continue
		}
		txn, err := s.store.GetTransaction(ctx, item.TransactionID)
		if err != nil {
			return nil, err
		}
		createdAt[item.ID] = txn.CreatedAt
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		ti, tj := createdAt[items[i].ID], createdAt[items[j].ID]
		if ti.Equal(tj) {
			return items[i].ID > items[j].ID
		}
		return ti.After(tj)
	})
	return items, nil
}

// refundRemainder credits back the authorized amount that was never
// disbursed. After item reversals this returns the company account exactly
// to its pre-batch balance.
func (s *Saga) refundRemainder(ctx context.Context, batch *domain.PayrollBatch, remainder decimal.Decimal) error {
	if !remainder.IsPositive() {
		return nil
	}

	rec := &domain.Transaction{
		ID:              s.idGen.Generate(),
		Type:            domain.TransactionTypeReversal,
		Category:        domain.CategoryReversal,
		CreditAccountID: batch.CompanyAccountID,
		Amount:          remainder,
		ReferenceID:     fmt.Sprintf("payroll:%s:compensate:remainder", batch.ID),
		Description:     "payroll compensation remainder refund",
		ReversalOfID:    batch.AuthorizationTxID,
		BatchID:         batch.ID,
	}
	_, err := s.ledger.Credit(ctx, rec)
	return err
}

func (s *Saga) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.CompensationRuns.WithLabelValues(outcome).Inc()
	}
}
