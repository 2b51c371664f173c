/*
engine.go - Balance transaction engine

PURPOSE:
  The ONLY writer of a LeaveYear's usage and balance fields. Every debit,
  credit, and adjustment runs through Apply, which executes the five-step
  sequence as one atomic unit per snapshot:

    1. Read the current snapshot (with its version token)
    2. Mutate a copy (sufficiency checks for `use`, usage floor for
       `cancel`, free movement for tagged `adjustment`)
    3. Validate the balance invariant
    4. Write back conditioned on the version being unchanged
    5. Append exactly one ledger transaction with before/after balances

  On a version conflict the whole operation restarts from step 1, up to a
  bounded retry count, then fails with ErrConcurrentUpdateConflict.
  Two racing approvals for the same employee therefore serialize; one of
  them re-reads the reduced balance and fails cleanly instead of driving
  the balance negative.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxRetries bounds the engine's version-conflict retry loop.
const DefaultMaxRetries = 5

// ApplyInput describes one balance operation.
type ApplyInput struct {
	EmployeeID EmployeeID
	Year       int
	Type       TransactionType // TxUse, TxCancel, or TxAdjustment
	Category   Category

	// Days is a positive count for use/cancel. For adjustments it is the
	// signed delta to apply.
	Days Days

	Reference string
	Actor     string
	Reason    string
}

func (in ApplyInput) validate() error {
	switch in.Type {
	case TxUse, TxCancel:
		if !in.Category.Valid() {
			return errInput("unknown category %q", string(in.Category))
		}
		if !in.Days.IsPositive() {
			return errInput("day count must be positive, got %s", in.Days.String())
		}
	case TxAdjustment:
		if in.Days.IsZero() {
			return errInput("adjustment delta must be non-zero")
		}
		if in.Actor == "" || in.Reason == "" {
			return errInput("adjustments require an actor and a reason")
		}
	default:
		return errInput("type %q cannot be applied directly", string(in.Type))
	}
	return nil
}

// Engine applies atomic debit/credit/adjustment operations against LeaveYear
// snapshots and appends one immutable ledger entry per operation.
type Engine struct {
	years      YearStore
	log        TransactionLog
	maxRetries int
	now        func() time.Time
	logger     logrus.FieldLogger
}

type EngineOption func(*Engine)

func WithMaxRetries(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithEngineLogger(l logrus.FieldLogger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(years YearStore, log TransactionLog, opts ...EngineOption) *Engine {
	e := &Engine{
		years:      years,
		log:        log,
		maxRetries: DefaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply executes one operation against the (employee, year) snapshot.
// Business-rule failures (insufficient balance, refund floor) are terminal;
// version conflicts are retried up to the configured bound.
func (e *Engine) Apply(ctx context.Context, in ApplyInput) (*LeaveYear, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		ly, err := e.years.GetYear(ctx, in.EmployeeID, in.Year)
		if err != nil {
			return nil, err
		}

		before := ly.Balance.Total
		var delta Days
		switch in.Type {
		case TxUse:
			if err := ly.applyUse(in.Category, in.Days); err != nil {
				return nil, err
			}
			delta = in.Days.Neg()
		case TxCancel:
			if err := ly.applyRefund(in.Category, in.Days); err != nil {
				return nil, err
			}
			delta = in.Days
		case TxAdjustment:
			ly.applyAdjustment(in.Days)
			delta = in.Days
		}

		if err := ly.Validate(); err != nil {
			return nil, err
		}

		ly.UpdatedAt = e.now()
		if err := e.years.UpdateYear(ctx, ly); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				e.logger.WithFields(logrus.Fields{
					"employee_id": in.EmployeeID,
					"year":        in.Year,
					"attempt":     attempt,
				}).Debug("snapshot version conflict, retrying")
				continue
			}
			return nil, err
		}

		tx := newTransaction(ly, in.Type, in.Category, delta, before, ly.Balance.Total,
			in.Reference, in.Actor, in.Reason, e.now())
		if err := e.log.Append(ctx, tx); err != nil {
			return nil, err
		}

		e.logger.WithFields(logrus.Fields{
			"employee_id": in.EmployeeID,
			"year":        in.Year,
			"tx_type":     in.Type,
			"category":    in.Category,
			"delta_days":  delta.String(),
		}).Info("applied balance transaction")
		return ly, nil
	}

	return nil, &ConflictError{EmployeeID: in.EmployeeID, Year: in.Year, Attempts: e.maxRetries}
}

func errInput(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidTransaction}, args...)...)
}
