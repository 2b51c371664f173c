/*
yearend.go - Year-end carry-over and expiry processing

PURPOSE:
  Closes out a calendar year for a whole company. For each employee's
  snapshot the processor computes the capped carry-over, expires whatever
  exceeds the cap, marks the snapshot processed, and appends the
  carry_over/expiry ledger entries.

FAILURE MODEL:
  Per-employee. One failing snapshot is recorded in the summary and the
  run moves on; a partial run can simply be re-run, because processed
  snapshots are skipped on sight.

CONCURRENCY:
  Employees are independent, so they are processed in parallel with a
  bounded worker count. Contention on a single snapshot (an employee
  booking leave while the run closes their year) is absorbed by re-reading
  and retrying the conditional write, same as the transaction engine.
*/
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultYearEndConcurrency bounds the parallel snapshot workers.
const DefaultYearEndConcurrency = 8

// YearEndProcessor closes out leave years company-wide.
type YearEndProcessor struct {
	years YearStore
	log   TransactionLog
	rules RuleStore

	defaultCap  Days
	concurrency int
	maxRetries  int
	now         func() time.Time
	logger      logrus.FieldLogger
}

type YearEndOption func(*YearEndProcessor)

func WithYearEndConcurrency(n int) YearEndOption {
	return func(p *YearEndProcessor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithYearEndCarryOverCap(cap Days) YearEndOption {
	return func(p *YearEndProcessor) { p.defaultCap = cap }
}

func WithYearEndMaxRetries(n int) YearEndOption {
	return func(p *YearEndProcessor) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

func WithYearEndClock(now func() time.Time) YearEndOption {
	return func(p *YearEndProcessor) { p.now = now }
}

func WithYearEndLogger(l logrus.FieldLogger) YearEndOption {
	return func(p *YearEndProcessor) { p.logger = l }
}

func NewYearEndProcessor(years YearStore, log TransactionLog, rules RuleStore, opts ...YearEndOption) *YearEndProcessor {
	p := &YearEndProcessor{
		years:       years,
		log:         log,
		rules:       rules,
		defaultCap:  DaysFromInt(DefaultCarryOverCapDays),
		concurrency: DefaultYearEndConcurrency,
		maxRetries:  DefaultMaxRetries,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// YearEndFailure records one employee whose snapshot could not be closed.
type YearEndFailure struct {
	EmployeeID EmployeeID
	Err        error
}

// YearEndSummary reports the outcome of one company-wide run.
type YearEndSummary struct {
	CompanyID   CompanyID
	Year        int
	Processed   int
	Skipped     int
	CarriedOver Days
	Expired     Days
	Failures    []YearEndFailure
}

// Run closes every snapshot of the company for the given year. Already
// processed snapshots are skipped, failures are accumulated in the summary,
// and the run only returns an error when it cannot even list the snapshots
// or the context is canceled.
func (p *YearEndProcessor) Run(ctx context.Context, companyID CompanyID, year int) (*YearEndSummary, error) {
	snapshots, err := p.years.YearsByCompany(ctx, companyID, year)
	if err != nil {
		return nil, err
	}

	summary := &YearEndSummary{
		CompanyID:   companyID,
		Year:        year,
		CarriedOver: ZeroDays(),
		Expired:     ZeroDays(),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, snap := range snapshots {
		employeeID := snap.EmployeeID
		g.Go(func() error {
			carried, expired, err := p.closeOne(gctx, employeeID, year)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, errAlreadyProcessed):
				summary.Skipped++
			case err != nil:
				// Recorded, not propagated: siblings keep running.
				summary.Failures = append(summary.Failures, YearEndFailure{EmployeeID: employeeID, Err: err})
			default:
				summary.Processed++
				summary.CarriedOver = summary.CarriedOver.Add(carried)
				summary.Expired = summary.Expired.Add(expired)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"company_id":   companyID,
		"year":         year,
		"processed":    summary.Processed,
		"skipped":      summary.Skipped,
		"failed":       len(summary.Failures),
		"carried_over": summary.CarriedOver.String(),
		"expired":      summary.Expired.String(),
	}).Info("year-end run complete")
	return summary, nil
}

var errAlreadyProcessed = errors.New("leave year already processed")

// closeOne closes a single employee's snapshot: compute the capped
// carry-over, expire the excess, conditionally write the snapshot, then
// append the carry_over and expiry entries as one batch.
func (p *YearEndProcessor) closeOne(ctx context.Context, employeeID EmployeeID, year int) (Days, Days, error) {
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		ly, err := p.years.GetYear(ctx, employeeID, year)
		if err != nil {
			return ZeroDays(), ZeroDays(), err
		}
		if ly.YearEndProcessed {
			return ZeroDays(), ZeroDays(), errAlreadyProcessed
		}

		cap, err := p.capFor(ctx, ly)
		if err != nil {
			return ZeroDays(), ZeroDays(), err
		}

		remaining := ly.Balance.Annual
		carried := ZeroDays()
		expired := ZeroDays()
		if remaining.IsPositive() {
			carried = remaining.Min(cap)
			expired = remaining.Sub(carried)
		}

		now := p.now()
		before := ly.Balance.Total
		ly.applyYearEnd(carried, expired)
		if err := ly.Validate(); err != nil {
			return ZeroDays(), ZeroDays(), err
		}
		ly.IsCurrent = false
		ly.UpdatedAt = now

		if err := p.years.UpdateYear(ctx, ly); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				p.logger.WithFields(logrus.Fields{
					"employee_id": employeeID,
					"year":        year,
					"attempt":     attempt,
				}).Debug("year-end version conflict, retrying")
				continue
			}
			return ZeroDays(), ZeroDays(), err
		}

		var txs []Transaction
		if carried.IsPositive() {
			txs = append(txs, newTransaction(ly, TxCarryOver, CategoryAnnual, carried.Neg(),
				before, before.Sub(carried), "", "system", "carried over to next year", now))
			before = before.Sub(carried)
		}
		if expired.IsPositive() {
			txs = append(txs, newTransaction(ly, TxExpiry, CategoryAnnual, expired.Neg(),
				before, before.Sub(expired), "", "system", "unused balance expired", now))
		}
		if len(txs) > 0 {
			if err := p.log.AppendBatch(ctx, txs); err != nil {
				return ZeroDays(), ZeroDays(), err
			}
		}
		return carried, expired, nil
	}
	return ZeroDays(), ZeroDays(), &ConflictError{EmployeeID: employeeID, Year: year, Attempts: p.maxRetries}
}

// capFor resolves the snapshot's carry-over cap from its accrual rule,
// falling back to the configured default for statutory snapshots.
func (p *YearEndProcessor) capFor(ctx context.Context, ly *LeaveYear) (Days, error) {
	if ly.RuleID == "" {
		return p.defaultCap, nil
	}
	rule, err := p.rules.GetRule(ctx, string(ly.RuleID))
	if errors.Is(err, ErrRuleNotFound) {
		// Rule deactivated or gone since accrual; fall back rather than
		// leave the year unprocessable.
		return p.defaultCap, nil
	}
	if err != nil {
		return ZeroDays(), err
	}
	return CarryOverCap(rule, p.defaultCap), nil
}
