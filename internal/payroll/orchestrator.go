// Package payroll drives a payroll batch through its lifecycle: aggregate
// funds authorization, parallel item disbursement, and compensation when a
// run cannot complete cleanly.
package payroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kestrelpay/payrolld/internal/async"
	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/infrastructure/metrics"
	"github.com/kestrelpay/payrolld/internal/ledger"
	"github.com/kestrelpay/payrolld/internal/store"
	"github.com/kestrelpay/payrolld/internal/strategy"
)

const (
	defaultWorkers     = 8
	defaultItemRetries = 2
)

// Orchestrator runs payroll batches. One batch is processed by a bounded
// worker pool; items only contend on their own employee account, the shared
// company account is debited exactly once by the aggregate authorization.
type Orchestrator struct {
	store    store.Store
	ledger   *ledger.Ledger
	registry *strategy.Registry
	saga     *Saga
	idGen    store.IDGenerator
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate

	workers     int
	itemRetries int

	mu        sync.Mutex
	cancelled map[string]bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds the item worker pool.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithItemRetries sets how many times a transient item failure is retried.
func WithItemRetries(n int) Option {
	return func(o *Orchestrator) { o.itemRetries = n }
}

// New creates an Orchestrator.
func New(st store.Store, lg *ledger.Ledger, registry *strategy.Registry, idGen store.IDGenerator, logger zerolog.Logger, m *metrics.Metrics, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       st,
		ledger:      lg,
		registry:    registry,
		idGen:       idGen,
		logger:      logger.With().Str("component", "payroll").Logger(),
		metrics:     m,
		validate:    validator.New(),
		workers:     defaultWorkers,
		itemRetries: defaultItemRetries,
		cancelled:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.saga = NewSaga(st, registry, lg, o.idGen, o.logger, m)
	return o
}

// CreateBatchInput describes a requested payroll run.
type CreateBatchInput struct {
	CompanyID        string           `validate:"required"`
	CompanyAccountID string           `validate:"required"`
	Description      string
	Items            []BatchItemInput `validate:"required,min=1,dive"`
}

// BatchItemInput is one employee payout request.
type BatchItemInput struct {
	EmployeeAccountID string `validate:"required"`
	Amount            decimal.Decimal
}

// CreateBatch records a new batch in PENDING state.
func (o *Orchestrator) CreateBatch(ctx context.Context, input CreateBatchInput) (*domain.PayrollBatch, error) {
	if err := o.validate.Struct(input); err != nil {
		return nil, domain.ErrEmptyBatch.WithCause(err)
	}
	for _, item := range input.Items {
		if item.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, domain.ErrInvalidAmount
		}
	}

	// Payroll is always funded from a company wallet; catching a
	// mis-pointed funding account here beats authorizing against it later.
	funding, err := o.store.GetAccount(ctx, input.CompanyAccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrAccountNotFound.WithMessagef(
				"funding account %s", input.CompanyAccountID)
		}
		return nil, domain.ErrStorage.WithCause(err)
	}
	if funding.OwnerType != domain.OwnerTypeCompany {
		return nil, domain.ErrInvalidOwnerType.WithMessagef(
			"funding account %s is owned by %s", funding.ID, funding.OwnerType)
	}

	now := time.Now().UTC()
	batch := &domain.PayrollBatch{
		ID:               o.idGen.Generate(),
		CompanyID:        input.CompanyID,
		CompanyAccountID: input.CompanyAccountID,
		Status:           domain.BatchStatusPending,
		Description:      input.Description,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, in := range input.Items {
		batch.Items = append(batch.Items, &domain.PayrollBatchItem{
			ID:                o.idGen.Generate(),
			BatchID:           batch.ID,
			EmployeeAccountID: in.EmployeeAccountID,
			Amount:            domain.NormalizeAmount(in.Amount),
			Status:            domain.ItemStatusPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	if err := o.store.CreateBatch(ctx, batch); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}

	o.logger.Info().
		Str("batch_id", batch.ID).
		Str("company_id", batch.CompanyID).
		Int("items", len(batch.Items)).
		Str("total", batch.TotalAmount().String()).
		Msg("payroll batch created")

	return batch, nil
}

// Run starts processing a batch and returns a handle the caller can await.
// Only a PENDING batch may be started.
func (o *Orchestrator) Run(ctx context.Context, batchID string) *async.Future[*domain.PayrollBatch] {
	fut := async.New[*domain.PayrollBatch]()

	batch, err := o.getBatch(ctx, batchID)
	if err != nil {
		fut.Resolve(nil, err)
		return fut
	}

	if batch.Status != domain.BatchStatusPending {
		fut.Resolve(nil, domain.ErrBatchAlreadyRunning.WithMessagef(
			"batch %s is %s, not PENDING", batch.ID, batch.Status))
		return fut
	}

	// Claim the batch with a conditional status move so concurrent runners
	// (another poller instance, the CLI) lose cleanly instead of
	// double-processing.
	err = o.store.TransitionBatch(ctx, batch.ID, domain.BatchStatusPending, domain.BatchStatusProcessing)
	switch {
	case errors.Is(err, store.ErrVersionConflict):
		fut.Resolve(nil, domain.ErrBatchAlreadyRunning.WithMessagef(
			"batch %s was claimed by another runner", batch.ID))
		return fut
	case errors.Is(err, store.ErrNotFound):
		fut.Resolve(nil, domain.ErrBatchNotFound)
		return fut
	case err != nil:
		fut.Resolve(nil, domain.ErrStorage.WithCause(err))
		return fut
	}
	batch.Status = domain.BatchStatusProcessing

	// The run outlives the caller's request context; only an explicit
	// Cancel stops dispatching items.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		fut.Resolve(o.run(runCtx, batch))
	}()
	return fut
}

// Cancel requests cooperative cancellation. Items not yet dispatched are
// skipped; items in flight complete and keep their outcome.
func (o *Orchestrator) Cancel(ctx context.Context, batchID string) error {
	batch, err := o.getBatch(ctx, batchID)
	if err != nil {
		return err
	}

	switch batch.Status {
	case domain.BatchStatusPending:
		// Claim the terminal status first; a runner that sneaks in between
		// the read and the cancel wins the batch.
		err := o.store.TransitionBatch(ctx, batchID, domain.BatchStatusPending, domain.BatchStatusCancelled)
		if errors.Is(err, store.ErrVersionConflict) {
			return domain.ErrBatchNotCancellable.WithMessagef(
				"batch %s was claimed by a runner", batchID)
		}
		if err != nil {
			return domain.ErrStorage.WithCause(err)
		}
		for _, item := range batch.Items {
			item.Status = domain.ItemStatusCancelled
			if err := o.store.UpdateItem(ctx, item); err != nil {
				return domain.ErrStorage.WithCause(err)
			}
		}
		o.logger.Info().Str("batch_id", batchID).Msg("pending batch cancelled")
		return nil

	case domain.BatchStatusProcessing:
		o.mu.Lock()
		o.cancelled[batchID] = true
		o.mu.Unlock()
		o.logger.Info().Str("batch_id", batchID).Msg("cancellation requested for running batch")
		return nil

	default:
		return domain.ErrBatchNotCancellable.WithMessagef(
			"batch %s is %s", batchID, batch.Status)
	}
}

func (o *Orchestrator) isCancelled(batchID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled[batchID]
}

func (o *Orchestrator) clearCancelled(batchID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancelled, batchID)
}

// run drives one batch to a terminal status. It never returns a nil batch
// with a nil error.
func (o *Orchestrator) run(ctx context.Context, batch *domain.PayrollBatch) (*domain.PayrollBatch, error) {
	started := time.Now()
	defer o.clearCancelled(batch.ID)

	log := o.logger.With().
		Str("batch_id", batch.ID).
		Str("company_id", batch.CompanyID).
		Logger()

	// Reserve the aggregate amount with a single company debit before any
	// item is credited, so partial application never outruns the funding.
	auth, err := o.authorize(ctx, batch)
	if err != nil {
		batch.Status = domain.BatchStatusFailed
		batch.Reconciled = true // nothing was applied
		if uerr := o.store.UpdateBatch(ctx, batch); uerr != nil {
			log.Error().Err(uerr).Msg("failed to persist batch failure")
		}
		o.observeFinish(batch, started)
		log.Warn().Err(err).Msg("aggregate authorization failed, batch aborted with no items touched")
		return batch, err
	}
	batch.AuthorizationTxID = auth.ID
	if err := o.store.UpdateBatch(ctx, batch); err != nil {
		return batch, domain.ErrStorage.WithCause(err)
	}

	systemicErr := o.disburse(ctx, batch, log)

	if systemicErr != nil {
		return o.fail(ctx, batch, systemicErr, started, log)
	}
	return o.finalize(ctx, batch, started, log)
}

func (o *Orchestrator) authorize(ctx context.Context, batch *domain.PayrollBatch) (*domain.Transaction, error) {
	total := batch.TotalAmount()
	rec := &domain.Transaction{
		ID:             o.idGen.Generate(),
		Type:           domain.TransactionTypeSalaryDisbursement,
		Category:       domain.CategoryPayroll,
		DebitAccountID: batch.CompanyAccountID,
		Amount:         total,
		ReferenceID:    fmt.Sprintf("payroll:%s:auth", batch.ID),
		Description:    "payroll aggregate authorization",
		BatchID:        batch.ID,
	}
	return o.ledger.Authorize(ctx, rec)
}

// isSystemic reports whether an item error must abort the whole batch.
// A retry-exhausted version conflict only involves that item's employee
// account, so it stays scoped to the item like a business failure.
func isSystemic(err error) bool {
	return domain.IsSystem(err) && !errors.Is(err, domain.ErrConcurrencyConflict)
}

// disburse runs all pending items on the worker pool and returns the first
// systemic error observed, if any. Item-level failures, business or
// retry-exhausted, are recorded on the item and never abort siblings.
func (o *Orchestrator) disburse(ctx context.Context, batch *domain.PayrollBatch, log zerolog.Logger) error {
	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, o.workers)
		mu       sync.Mutex
		systemic error
	)

	for _, item := range batch.Items {
		if item.Status != domain.ItemStatusPending {
			continue
		}

		if o.isCancelled(batch.ID) {
			item.Status = domain.ItemStatusCancelled
			if err := o.store.UpdateItem(ctx, item); err != nil {
				log.Error().Err(err).Str("item_id", item.ID).Msg("failed to mark item cancelled")
			}
			o.countItem(item.Status)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(item *domain.PayrollBatchItem) {
			defer wg.Done()
			defer func() { <-sem }()

			if o.metrics != nil {
				o.metrics.BatchWorkersBusy.Inc()
				defer o.metrics.BatchWorkersBusy.Dec()
			}

			if err := o.processItem(ctx, batch, item, log); err != nil && isSystemic(err) {
				mu.Lock()
				if systemic == nil {
					systemic = err
				}
				mu.Unlock()
			}
		}(item)
	}

	wg.Wait()
	return systemic
}

// processItem executes one employee disbursement. Transient conflicts are
// retried; the idempotency reference makes the retry safe.
func (o *Orchestrator) processItem(ctx context.Context, batch *domain.PayrollBatch, item *domain.PayrollBatchItem, log zerolog.Logger) error {
	strat, err := o.registry.Resolve(domain.TransactionTypeSalaryDisbursement)
	if err != nil {
		return err
	}

	input := strategy.ExecuteInput{
		DebitAccountID:  batch.CompanyAccountID,
		CreditAccountID: item.EmployeeAccountID,
		Amount:          item.Amount,
		ReferenceID:     fmt.Sprintf("payroll:%s:item:%s", batch.ID, item.ID),
		Description:     "salary disbursement",
		BatchID:         batch.ID,
		FundsReserved:   true,
	}

	var txn *domain.Transaction
	for attempt := 0; ; attempt++ {
		txn, err = strat.Execute(ctx, input)
		if err == nil || !errors.Is(err, domain.ErrConcurrencyConflict) || attempt >= o.itemRetries {
			break
		}
		log.Warn().
			Str("item_id", item.ID).
			Int("attempt", attempt+1).
			Msg("item hit concurrency conflict, retrying")
	}

	if err != nil {
		item.Status = domain.ItemStatusFailed
		item.FailureReason = err.Error()
		log.Warn().Err(err).
			Str("item_id", item.ID).
			Str("employee_account_id", item.EmployeeAccountID).
			Msg("batch item failed")
	} else {
		item.Status = domain.ItemStatusCompleted
		item.TransactionID = txn.ID
	}
	o.countItem(item.Status)

	if uerr := o.store.UpdateItem(ctx, item); uerr != nil {
		return domain.ErrStorage.WithCause(uerr)
	}
	return err
}

// fail compensates already-applied items and marks the batch FAILED. The
// Reconciled marker records whether compensation restored all balances.
func (o *Orchestrator) fail(ctx context.Context, batch *domain.PayrollBatch, cause error, started time.Time, log zerolog.Logger) (*domain.PayrollBatch, error) {
	log.Error().Err(cause).Msg("systemic failure, compensating applied items")

	sagaErr := o.saga.Compensate(ctx, batch)

	batch.Status = domain.BatchStatusFailed
	batch.Reconciled = sagaErr == nil
	if err := o.store.UpdateBatch(ctx, batch); err != nil {
		log.Error().Err(err).Msg("failed to persist batch failure")
	}
	o.observeFinish(batch, started)

	if sagaErr != nil {
		return batch, sagaErr
	}
	return batch, cause
}

// finalize settles the authorization, refunds the undisbursed remainder and
// derives the terminal batch status from item outcomes.
func (o *Orchestrator) finalize(ctx context.Context, batch *domain.PayrollBatch, started time.Time, log zerolog.Logger) (*domain.PayrollBatch, error) {
	remainder := batch.TotalAmount().Sub(batch.DisbursedAmount())
	if remainder.IsPositive() {
		rec := &domain.Transaction{
			ID:              o.idGen.Generate(),
			Type:            domain.TransactionTypeReversal,
			Category:        domain.CategoryPayroll,
			CreditAccountID: batch.CompanyAccountID,
			Amount:          remainder,
			ReferenceID:     fmt.Sprintf("payroll:%s:remainder", batch.ID),
			Description:     "undisbursed payroll remainder refund",
			ReversalOfID:    batch.AuthorizationTxID,
			BatchID:         batch.ID,
		}
		if _, err := o.ledger.Credit(ctx, rec); err != nil {
			return o.fail(ctx, batch, err, started, log)
		}
	}

	if _, err := o.ledger.FinalizeTransaction(ctx, batch.AuthorizationTxID, domain.TransactionStatusCompleted); err != nil {
		log.Error().Err(err).Msg("failed to settle authorization record")
	}

	batch.Status = batch.AggregateStatus()
	if err := o.store.UpdateBatch(ctx, batch); err != nil {
		return batch, domain.ErrStorage.WithCause(err)
	}

	o.observeFinish(batch, started)
	log.Info().
		Str("status", string(batch.Status)).
		Str("disbursed", batch.DisbursedAmount().String()).
		Dur("took", time.Since(started)).
		Msg("payroll batch finished")

	return batch, nil
}

func (o *Orchestrator) getBatch(ctx context.Context, id string) (*domain.PayrollBatch, error) {
	batch, err := o.store.GetBatch(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrBatchNotFound
		}
		return nil, domain.ErrStorage.WithCause(err)
	}
	return batch, nil
}

func (o *Orchestrator) countItem(status domain.ItemStatus) {
	if o.metrics != nil {
		o.metrics.BatchItemsProcessed.WithLabelValues(string(status)).Inc()
	}
}

func (o *Orchestrator) observeFinish(batch *domain.PayrollBatch, started time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.BatchesFinished.WithLabelValues(string(batch.Status)).Inc()
	o.metrics.BatchDuration.Observe(time.Since(started).Seconds())
}
