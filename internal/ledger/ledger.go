// Package ledger enforces balance invariants. It is the only component that
// mutates stored account balances, through compare-and-swap writes with a
// bounded, jittered retry on version conflicts.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/infrastructure/metrics"
	"github.com/kestrelpay/payrolld/internal/store"
)

const (
	defaultMaxAttempts     = 3
	defaultInitialInterval = 10 * time.Millisecond
	defaultMaxInterval     = 250 * time.Millisecond
)

// Ledger applies debits and credits to accounts and appends the resulting
// transaction records.
type Ledger struct {
	store   store.Store
	logger  zerolog.Logger
	metrics *metrics.Metrics

	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithMaxAttempts bounds the number of compare-and-swap attempts per
// mutation.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) { l.maxAttempts = n }
}

// WithRetryInterval sets the backoff window for conflict retries.
func WithRetryInterval(initial, max time.Duration) Option {
	return func(l *Ledger) {
		l.initialInterval = initial
		l.maxInterval = max
	}
}

// New creates a Ledger over a store.
func New(st store.Store, logger zerolog.Logger, m *metrics.Metrics, opts ...Option) *Ledger {
	l := &Ledger{
		store:           st,
		logger:          logger.With().Str("component", "ledger").Logger(),
		metrics:         m,
		maxAttempts:     defaultMaxAttempts,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Debit removes rec.Amount from rec.DebitAccountID and appends rec with
// status COMPLETED. Fails with InsufficientFunds when the debit would breach
// the overdraft floor; no balance change or record survives a failure.
func (l *Ledger) Debit(ctx context.Context, rec *domain.Transaction) (*domain.Transaction, error) {
	return l.applyOneSided(ctx, rec, rec.DebitAccountID, true, domain.TransactionStatusCompleted)
}

// Authorize debits like Debit but appends rec with status AUTHORIZED,
// reserving funds for later disbursement.
func (l *Ledger) Authorize(ctx context.Context, rec *domain.Transaction) (*domain.Transaction, error) {
	return l.applyOneSided(ctx, rec, rec.DebitAccountID, true, domain.TransactionStatusAuthorized)
}

// Credit adds rec.Amount to rec.CreditAccountID and appends rec with status
// COMPLETED. Credits cannot fail on funds, only on storage errors or an
// inactive account.
func (l *Ledger) Credit(ctx context.Context, rec *domain.Transaction) (*domain.Transaction, error) {
	return l.applyOneSided(ctx, rec, rec.CreditAccountID, false, domain.TransactionStatusCompleted)
}

// Transfer moves rec.Amount from the debit account to the credit account as
// one logical unit. If the credit fails after a successful debit, the debit
// is rolled back before the error is surfaced.
func (l *Ledger) Transfer(ctx context.Context, rec *domain.Transaction) (*domain.Transaction, error) {
	if err := l.prepare(rec); err != nil {
		return nil, err
	}
	if rec.DebitAccountID == "" || rec.CreditAccountID == "" {
		return nil, domain.ErrAccountNotFound
	}

	debited, err := l.applyDelta(ctx, rec.DebitAccountID, rec.Amount.Neg())
	if err != nil {
		l.countError(rec.Type, err)
		return nil, err
	}

	if _, err := l.applyDelta(ctx, rec.CreditAccountID, rec.Amount); err != nil {
		l.rollbackDebit(ctx, rec, debited)
		l.countError(rec.Type, err)
		return nil, err
	}

	return l.finalize(ctx, rec, domain.TransactionStatusCompleted, func() {
		l.rollbackDebit(ctx, rec, debited)
		if _, rbErr := l.applyDelta(ctx, rec.CreditAccountID, rec.Amount.Neg()); rbErr != nil {
			l.logger.Error().Err(rbErr).
				Str("transaction_id", rec.ID).
				Str("account_id", rec.CreditAccountID).
				Msg("rollback of credit leg failed, balances need reconciliation")
		}
	})
}

func (l *Ledger) applyOneSided(ctx context.Context, rec *domain.Transaction, accountID string, debit bool, final domain.TransactionStatus) (*domain.Transaction, error) {
	if err := l.prepare(rec); err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, domain.ErrAccountNotFound
	}

	delta := rec.Amount
	if debit {
		delta = delta.Neg()
	}

	if _, err := l.applyDelta(ctx, accountID, delta); err != nil {
		l.countError(rec.Type, err)
		return nil, err
	}

	return l.finalize(ctx, rec, final, func() {
		if _, rbErr := l.applyDelta(ctx, accountID, delta.Neg()); rbErr != nil {
			l.logger.Error().Err(rbErr).
				Str("transaction_id", rec.ID).
				Str("account_id", accountID).
				Msg("rollback after record write failure failed, balances need reconciliation")
		}
	})
}

// finalize moves rec to its final status and appends it. rollback undoes the
// balance changes when the record itself cannot be written, so a failed
// attempt leaves no audit record and no balance change.
func (l *Ledger) finalize(ctx context.Context, rec *domain.Transaction, final domain.TransactionStatus, rollback func()) (*domain.Transaction, error) {
	if err := rec.Transition(final); err != nil {
		rollback()
		return nil, err
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := l.store.SaveTransaction(ctx, rec); err != nil {
		rollback()
		l.countError(rec.Type, err)
		return nil, domain.ErrStorage.WithCause(err)
	}

	if l.metrics != nil {
		l.metrics.TransactionsApplied.WithLabelValues(string(rec.Type), string(rec.Status)).Inc()
		amount, _ := rec.Amount.Float64()
		l.metrics.TransactionAmount.Observe(amount)
	}

	l.logger.Debug().
		Str("transaction_id", rec.ID).
		Str("type", string(rec.Type)).
		Str("status", string(rec.Status)).
		Str("amount", rec.Amount.String()).
		Msg("transaction applied")

	return rec, nil
}

// FinalizeTransaction moves a stored transaction to a new status, enforcing
// forward-only movement. Used to settle AUTHORIZED records once a batch
// reaches its terminal state.
func (l *Ledger) FinalizeTransaction(ctx context.Context, id string, to domain.TransactionStatus) (*domain.Transaction, error) {
	rec, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, domain.ErrStorage.WithCause(err)
	}

	if err := rec.Transition(to); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := l.store.SaveTransaction(ctx, rec); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	return rec, nil
}

func (l *Ledger) prepare(rec *domain.Transaction) error {
	rec.Amount = domain.NormalizeAmount(rec.Amount)
	if rec.Status == "" {
		rec.Status = domain.TransactionStatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return rec.Validate()
}

// applyDelta mutates one account balance under the optimistic-version
// protocol: read, validate, conditional write, retry on conflict with
// jittered exponential backoff up to the attempt bound.
func (l *Ledger) applyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (*domain.Account, error) {
	var out *domain.Account

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.initialInterval
	b.MaxInterval = l.maxInterval

	attempt := 0
	op := func() error {
		attempt++

		acct, err := l.store.GetAccount(ctx, accountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return backoff.Permanent(domain.ErrAccountNotFound.WithMessagef("account %s not found", accountID))
			}
			return backoff.Permanent(domain.ErrStorage.WithCause(err))
		}

		if delta.IsNegative() {
			if err := acct.ValidateDebit(delta.Neg()); err != nil {
				return backoff.Permanent(err)
			}
		} else if err := acct.ValidateCredit(delta); err != nil {
			return backoff.Permanent(err)
		}

		expected := acct.Version
		acct.Balance = acct.Balance.Add(delta)

		if err := acct.CheckInvariant(); err != nil {
			return backoff.Permanent(err)
		}

		if err := l.store.SaveAccount(ctx, acct, expected); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				if l.metrics != nil {
					l.metrics.LedgerConflicts.Inc()
				}
				if attempt >= l.maxAttempts {
					return backoff.Permanent(domain.ErrConcurrencyConflict.WithCause(err))
				}

				l.logger.Warn().
					Str("account_id", accountID).
					Int("attempt", attempt).
					Msg("version conflict, retrying")

				return err
			}
			return backoff.Permanent(domain.ErrStorage.WithCause(err))
		}

		out = acct
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) rollbackDebit(ctx context.Context, rec *domain.Transaction, debited *domain.Account) {
	if _, err := l.applyDelta(ctx, debited.ID, rec.Amount); err != nil {
		l.logger.Error().Err(err).
			Str("transaction_id", rec.ID).
			Str("account_id", debited.ID).
			Msg("compensating credit failed, balances need reconciliation")
	}
}

func (l *Ledger) countError(txType domain.TransactionType, err error) {
	if l.metrics == nil {
		return
	}

	code := "UNKNOWN"
	var de *domain.Error
	if errors.As(err, &de) {
		code = de.Code
	}
	l.metrics.TransactionErrors.WithLabelValues(string(txType), code).Inc()
}
