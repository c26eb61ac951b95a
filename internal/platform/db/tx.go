package db

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

// Beginner starts transactions. *pgxpool.Pool and pgxmock pools satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Transactor runs fn as one unit of work.
type Transactor interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Retry reasons reported to the observer.
const (
	RetryContention = "contention"
	RetryConnection = "connection"
)

// TxRunner executes a function inside a transaction and re-executes the
// whole unit, from BEGIN, when the store reports a serialization failure, a
// deadlock, a connection fault, or an error marked with MarkRetryable.
// Business errors from apperr abort immediately.
type TxRunner struct {
	db         Beginner
	opts       pgx.TxOptions
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger
	observe    func(reason string)
}

type TxOption func(*TxRunner)

// WithMaxRetries bounds the number of re-executions after the first attempt.
func WithMaxRetries(n int) TxOption {
	return func(r *TxRunner) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay between attempts. Zero disables sleeping.
func WithBackoff(d time.Duration) TxOption {
	return func(r *TxRunner) { r.backoff = d }
}

// WithRetryObserver registers a callback invoked before every retry.
func WithRetryObserver(fn func(reason string)) TxOption {
	return func(r *TxRunner) { r.observe = fn }
}

func NewTxRunner(db Beginner, logger zerolog.Logger, opts ...TxOption) *TxRunner {
	r := &TxRunner{
		db:         db,
		opts:       pgx.TxOptions{IsoLevel: pgx.Serializable},
		maxRetries: 3,
		backoff:    20 * time.Millisecond,
		logger:     logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes fn in a transaction. A transaction already bound to ctx is
// joined instead of nesting a new one.
func (r *TxRunner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = r.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		reason := retryReason(err)
		if reason == "" {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("transaction aborted: %w", ctxErr)
		}
		if attempt >= r.maxRetries {
			break
		}

		r.logger.Warn().Err(err).
			Str("reason", reason).
			Int("attempt", attempt+1).
			Msg("retrying transaction")
		if r.observe != nil {
			r.observe(reason)
		}
		if err := r.sleep(ctx, attempt); err != nil {
			return fmt.Errorf("transaction aborted: %w", err)
		}
	}

	r.logger.Error().Err(err).Int("retries", r.maxRetries).Msg("transaction retries exhausted")
	if retryReason(err) == RetryConnection {
		return apperr.Transient(err, "store unavailable")
	}
	return apperr.Wrap(apperr.KindConflict, err, "concurrent request conflict, please retry")
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := r.db.BeginTx(ctx, r.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Rollback must reach the server even when ctx was cancelled.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && err == nil {
			err = fmt.Errorf("rollback: %w", rbErr)
		}
	}()

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		committed = true // pgx closes the tx on a failed commit
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (r *TxRunner) sleep(ctx context.Context, attempt int) error {
	if r.backoff <= 0 {
		return nil
	}
	d := r.backoff*time.Duration(attempt+1) + time.Duration(rand.Int64N(int64(r.backoff)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryReason(err error) string {
	switch {
	case isBusinessError(err):
		return ""
	case isMarkedRetryable(err), IsSerializationFailure(err):
		return RetryContention
	case IsConnectionFault(err):
		return RetryConnection
	}
	return ""
}
