/*
service.go - Leave year bootstrap and the operations surface

PURPOSE:
  The Service is what collaborators call. It owns year bootstrap
  (entitlement calculation, capped carry-over from the prior year, the
  initial accrual ledger entry) and wraps the transaction engine for the
  use/refund/adjust operations.

IDEMPOTENCY:
  InitializeYear for an existing (employee, year) is a no-op returning
  the stored snapshot. This is the guard against double-accrual: even two
  racing bootstraps produce exactly one snapshot and one accrual entry,
  because the loser's CreateYear fails with ErrYearExists before it ever
  appends to the log.

CROSS-YEAR REQUESTS:
  A use/refund applies to exactly one (employee, year) snapshot - the
  current one. A request spanning a year boundary (Dec 30 - Jan 2) must be
  split by the caller into per-year requests; there is deliberately no
  implicit split policy here.
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/leave-ledger/accrual"
)

// DefaultCarryOverCapDays applies when neither the matched rule nor the
// configuration says otherwise.
const DefaultCarryOverCapDays = 10

// Service exposes the ledger's operations surface. Stateless between calls:
// every operation takes the employee key explicitly and shares nothing
// across requests.
type Service struct {
	years    YearStore
	log      TransactionLog
	profiles ProfileStore
	rules    RuleStore
	engine   *Engine
	calc     *accrual.Calculator

	carryOverCap Days
	now          func() time.Time
	logger       logrus.FieldLogger
}

type ServiceOption func(*Service)

// WithClock overrides "today" (tests, backfills).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithCarryOverCap(cap Days) ServiceOption {
	return func(s *Service) { s.carryOverCap = cap }
}

func WithLogger(l logrus.FieldLogger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(years YearStore, log TransactionLog, profiles ProfileStore, rules RuleStore, calc *accrual.Calculator, engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		years:        years,
		log:          log,
		profiles:     profiles,
		rules:        rules,
		engine:       engine,
		calc:         calc,
		carryOverCap: DaysFromInt(DefaultCarryOverCapDays),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// ACCRUAL
// =============================================================================

// CalculateAccrual computes the entitlement breakdown for an employee as of
// today, without touching any snapshot.
func (s *Service) CalculateAccrual(ctx context.Context, employeeID EmployeeID) (*accrual.Entitlement, error) {
	profile, err := s.profiles.GetProfile(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ActiveRules(ctx, CompanyID(profile.CompanyID))
	if err != nil {
		return nil, err
	}
	ent := s.calc.Calculate(*profile, rules, s.now())
	return &ent, nil
}

// =============================================================================
// YEAR BOOTSTRAP
// =============================================================================

// InitializeYear bootstraps the (employee, year) snapshot:
//
//  1. Fails with ErrProfileNotFound when no profile exists.
//  2. Computes the entitlement as of January 1 of the target year.
//  3. Reads the prior year's snapshot to determine carry-over, capped at
//     the rule's configured maximum.
//  4. Writes the snapshot with zero usage and balance = entitlements.
//  5. Appends one accrual transaction for the full initial entitlement.
//
// Calling it again for an existing year returns the stored snapshot
// unchanged.
func (s *Service) InitializeYear(ctx context.Context, employeeID EmployeeID, year int) (*LeaveYear, error) {
	if existing, err := s.years.GetYear(ctx, employeeID, year); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrYearNotFound) {
		return nil, err
	}

	profile, err := s.profiles.GetProfile(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	companyRules, err := s.rules.ActiveRules(ctx, CompanyID(profile.CompanyID))
	if err != nil {
		return nil, err
	}

	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	ent := s.calc.Calculate(*profile, companyRules, yearStart)

	var matched *accrual.AccrualRule
	if ent.RuleID != "" {
		for i := range companyRules {
			if companyRules[i].ID == ent.RuleID {
				matched = &companyRules[i]
				break
			}
		}
	}

	carry, err := s.carryOverFromPrior(ctx, employeeID, year, matched)
	if err != nil {
		return nil, err
	}

	entitlements := Entitlements{
		Annual:           DaysFromDecimal(ent.AnnualDays),
		Sick:             DaysFromDecimal(ent.SickDays),
		CarryOver:        carry,
		ManualAdjustment: ZeroDays(),
	}
	now := s.now()
	ly := NewLeaveYear(employeeID, CompanyID(profile.CompanyID), year, RuleID(ent.RuleID),
		entitlements, year == now.Year(), now)
	if err := ly.Validate(); err != nil {
		return nil, err
	}

	if err := s.years.CreateYear(ctx, ly); err != nil {
		if errors.Is(err, ErrYearExists) {
			// Lost a bootstrap race; the winner appended the accrual entry.
			return s.years.GetYear(ctx, employeeID, year)
		}
		return nil, err
	}

	reason := "annual entitlement"
	if ent.RuleID == "" {
		reason = "statutory minimum entitlement"
	}
	tx := newTransaction(ly, TxAccrual, "", ly.Entitlements.Total(), ZeroDays(), ly.Balance.Total,
		"", "system", reason, now)
	if err := s.log.Append(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"employee_id": employeeID,
		"year":        year,
		"entitlement": ly.Entitlements.Total().String(),
		"carry_over":  carry.String(),
	}).Info("initialized leave year")
	return ly, nil
}

// carryOverFromPrior determines the carry-over entitlement for a new year.
// A processed prior year already has its capped carry-over recorded; an
// unprocessed one contributes its remaining annual balance, capped here.
func (s *Service) carryOverFromPrior(ctx context.Context, employeeID EmployeeID, year int, rule *accrual.AccrualRule) (Days, error) {
	prior, err := s.years.GetYear(ctx, employeeID, year-1)
	if errors.Is(err, ErrYearNotFound) {
		return ZeroDays(), nil
	}
	if err != nil {
		return ZeroDays(), err
	}

	if prior.YearEndProcessed {
		return prior.CarryOverToNextYear, nil
	}

	cap := CarryOverCap(rule, s.carryOverCap)
	remaining := prior.Balance.Annual
	if remaining.IsNegative() {
		return ZeroDays(), nil
	}
	return remaining.Min(cap), nil
}

// CarryOverCap resolves the effective carry-over cap: the rule's own cap
// when it allows carry-over, zero when it forbids it, and the configured
// default when no rule applies.
func CarryOverCap(rule *accrual.AccrualRule, fallback Days) Days {
	if rule == nil {
		return fallback
	}
	if !rule.AllowCarryOver {
		return ZeroDays()
	}
	if rule.CarryOverCapDays.IsPositive() {
		return DaysFromDecimal(rule.CarryOverCapDays)
	}
	return fallback
}

// CurrentBalance returns the snapshot for the year containing today,
// bootstrapping it via InitializeYear when absent.
func (s *Service) CurrentBalance(ctx context.Context, employeeID EmployeeID) (*LeaveYear, error) {
	year := s.now().Year()
	ly, err := s.years.GetYear(ctx, employeeID, year)
	if errors.Is(err, ErrYearNotFound) {
		return s.InitializeYear(ctx, employeeID, year)
	}
	return ly, err
}

// =============================================================================
// BALANCE OPERATIONS
// =============================================================================

// UseLeave debits the current year. Fails with ErrInsufficientBalance when
// the category's remaining balance does not cover the request.
func (s *Service) UseLeave(ctx context.Context, employeeID EmployeeID, category Category, days Days, reference, actor string) (*LeaveYear, error) {
	ly, err := s.CurrentBalance(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return s.engine.Apply(ctx, ApplyInput{
		EmployeeID: employeeID,
		Year:       ly.Year,
		Type:       TxUse,
		Category:   category,
		Days:       days,
		Reference:  reference,
		Actor:      actor,
	})
}

// RefundLeave reverses a prior use on the current year (request canceled or
// rejected after approval).
func (s *Service) RefundLeave(ctx context.Context, employeeID EmployeeID, category Category, days Days, reference, actor string) (*LeaveYear, error) {
	ly, err := s.CurrentBalance(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return s.engine.Apply(ctx, ApplyInput{
		EmployeeID: employeeID,
		Year:       ly.Year,
		Type:       TxCancel,
		Category:   category,
		Days:       days,
		Reference:  reference,
		Actor:      actor,
	})
}

// Adjust applies a signed administrative correction to a specific year.
// Requires an actor and a human-readable reason.
func (s *Service) Adjust(ctx context.Context, employeeID EmployeeID, year int, days Days, actor, reason string) (*LeaveYear, error) {
	return s.engine.Apply(ctx, ApplyInput{
		EmployeeID: employeeID,
		Year:       year,
		Type:       TxAdjustment,
		Category:   CategoryAnnual,
		Days:       days,
		Actor:      actor,
		Reason:     reason,
	})
}

// History returns the employee's ledger entries, newest first, optionally
// filtered to one year.
func (s *Service) History(ctx context.Context, employeeID EmployeeID, year *int) ([]Transaction, error) {
	return s.log.History(ctx, employeeID, year)
}
