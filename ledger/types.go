/*
Package ledger is the leave balance ledger engine.

PURPOSE:
  Owns the per-employee, per-calendar-year balance snapshot (LeaveYear)
  and the append-only transaction log that explains every change to it.
  All balance mutation flows through the transaction engine; the snapshot
  can always be reconstructed by replaying its transactions.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: a day quantity backed by decimal.Decimal (half days are legal,
    floating-point drift is not)
  - LeaveYear: the balance snapshot with its core invariant
  - Transaction: an immutable ledger entry with before/after balances

CORE INVARIANT:
  balance.category = entitlements.category - usage.category for every
  category, and balance.total = entitlements.total - usage.total, at all
  times. Validate() checks this on every write path so no caller can
  bypass it with a direct field write.

SEE ALSO:
  - engine.go: the only writer of usage/balance fields
  - service.go: year bootstrap and the operations surface
  - yearend.go: carry-over and expiry at the year boundary
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Day quantity with decimal precision
// =============================================================================

type Days struct {
	Value decimal.Decimal
}

func DaysFromInt(n int) Days       { return Days{Value: decimal.NewFromInt(int64(n))} }
func DaysFromFloat(f float64) Days { return Days{Value: decimal.NewFromFloat(f)} }
func DaysFromDecimal(d decimal.Decimal) Days { return Days{Value: d} }
func ZeroDays() Days               { return Days{Value: decimal.Zero} }

func (d Days) Add(o Days) Days        { return Days{Value: d.Value.Add(o.Value)} }
func (d Days) Sub(o Days) Days        { return Days{Value: d.Value.Sub(o.Value)} }
func (d Days) Neg() Days              { return Days{Value: d.Value.Neg()} }
func (d Days) IsZero() bool           { return d.Value.IsZero() }
func (d Days) IsNegative() bool       { return d.Value.IsNegative() }
func (d Days) IsPositive() bool       { return d.Value.IsPositive() }
func (d Days) GreaterThan(o Days) bool { return d.Value.GreaterThan(o.Value) }
func (d Days) LessThan(o Days) bool   { return d.Value.LessThan(o.Value) }
func (d Days) Equal(o Days) bool      { return d.Value.Equal(o.Value) }
func (d Days) Min(o Days) Days        { if d.LessThan(o) { return d }; return o }
func (d Days) Float64() float64       { return d.Value.InexactFloat64() }
func (d Days) String() string         { return d.Value.String() }

// =============================================================================
// IDENTIFIERS AND ENUMS
// =============================================================================

type EmployeeID string
type CompanyID string
type RuleID string

// Category is the leave category a transaction applies to. Annual and sick
// are entitled categories; unpaid and other are tracked for usage only and
// carry no entitlement.
type Category string

const (
	CategoryAnnual Category = "annual"
	CategorySick   Category = "sick"
	CategoryUnpaid Category = "unpaid"
	CategoryOther  Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryAnnual, CategorySick, CategoryUnpaid, CategoryOther:
		return true
	}
	return false
}

// Entitled reports whether the category has an entitlement to draw down.
func (c Category) Entitled() bool {
	return c == CategoryAnnual || c == CategorySick
}

type TransactionType string

const (
	TxAccrual    TransactionType = "accrual"    // initial year entitlement grant
	TxUse        TransactionType = "use"        // approved leave consumed
	TxCarryOver  TransactionType = "carry_over" // balance moved into the next year
	TxAdjustment TransactionType = "adjustment" // manual admin correction
	TxCancel     TransactionType = "cancel"     // reversal of a prior use
	TxExpiry     TransactionType = "expiry"     // unused balance expired at year end
)

// =============================================================================
// LEAVE YEAR - The balance snapshot
// =============================================================================

// Entitlements is the granted side of a LeaveYear. CarryOver and
// ManualAdjustment contribute to the annual category's effective
// entitlement; all four contribute to the total.
type Entitlements struct {
	Annual           Days
	Sick             Days
	CarryOver        Days
	ManualAdjustment Days
}

func (e Entitlements) Total() Days {
	return e.Annual.Add(e.Sick).Add(e.CarryOver).Add(e.ManualAdjustment)
}

// Effective returns the usable entitlement for one category.
func (e Entitlements) Effective(c Category) Days {
	switch c {
	case CategoryAnnual:
		return e.Annual.Add(e.CarryOver).Add(e.ManualAdjustment)
	case CategorySick:
		return e.Sick
	default:
		return ZeroDays()
	}
}

// Usage is the consumed side of a LeaveYear. Unpaid and other leave is
// recorded for reporting but has no entitlement backing it.
type Usage struct {
	Annual Days
	Sick   Days
	Unpaid Days
	Other  Days
}

func (u Usage) Total() Days {
	return u.Annual.Add(u.Sick).Add(u.Unpaid).Add(u.Other)
}

func (u *Usage) bucket(c Category) *Days {
	switch c {
	case CategoryAnnual:
		return &u.Annual
	case CategorySick:
		return &u.Sick
	case CategoryUnpaid:
		return &u.Unpaid
	default:
		return &u.Other
	}
}

// Balance is always derived: it is never written directly, only recomputed
// from entitlements and usage (and, after year-end processing, the recorded
// carry-over and expiry outflows).
type Balance struct {
	Annual Days
	Sick   Days
	Total  Days
}

// LeaveYear is the balance snapshot for one (employee, calendar year).
// Created once, never deleted, and mutated exclusively through the
// transaction engine. Version is the optimistic-concurrency token the
// store checks on every conditional write.
type LeaveYear struct {
	EmployeeID EmployeeID
	CompanyID  CompanyID
	Year       int

	// RuleID records which accrual rule produced the entitlement, empty
	// when the statutory fallback applied.
	RuleID RuleID

	Entitlements Entitlements
	Usage        Usage
	Balance      Balance

	// Populated exactly once by the year-end processor.
	YearEndProcessed    bool
	CarryOverToNextYear Days
	ExpiredDays         Days

	// True for exactly one year per employee: the year containing "today".
	IsCurrent bool

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewLeaveYear builds a fresh snapshot with zero usage and balance equal to
// the entitlements. This is the only way a LeaveYear comes into existence.
func NewLeaveYear(employeeID EmployeeID, companyID CompanyID, year int, ruleID RuleID, ent Entitlements, isCurrent bool, now time.Time) *LeaveYear {
	ly := &LeaveYear{
		EmployeeID:          employeeID,
		CompanyID:           companyID,
		Year:                year,
		RuleID:              ruleID,
		Entitlements:        ent,
		CarryOverToNextYear: ZeroDays(),
		ExpiredDays:         ZeroDays(),
		IsCurrent:           isCurrent,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	ly.recompute()
	return ly
}

// recompute derives the balance from entitlements, usage, and any recorded
// year-end outflows. Every mutation path ends with a recompute, so the
// invariant can only be broken by bypassing the engine entirely - which
// Validate() catches at the store boundary.
func (ly *LeaveYear) recompute() {
	ly.Balance.Annual = ly.Entitlements.Effective(CategoryAnnual).
		Sub(ly.Usage.Annual).
		Sub(ly.CarryOverToNextYear).
		Sub(ly.ExpiredDays)
	ly.Balance.Sick = ly.Entitlements.Effective(CategorySick).Sub(ly.Usage.Sick)
	ly.Balance.Total = ly.Entitlements.Total().
		Sub(ly.Usage.Total()).
		Sub(ly.CarryOverToNextYear).
		Sub(ly.ExpiredDays)
}

// Validate checks the core invariant. Stores call this before persisting so
// a snapshot with hand-edited balance fields never reaches disk.
func (ly *LeaveYear) Validate() error {
	wantAnnual := ly.Entitlements.Effective(CategoryAnnual).
		Sub(ly.Usage.Annual).
		Sub(ly.CarryOverToNextYear).
		Sub(ly.ExpiredDays)
	if !ly.Balance.Annual.Equal(wantAnnual) {
		return &InvariantError{EmployeeID: ly.EmployeeID, Year: ly.Year, Field: "balance.annual", Want: wantAnnual, Got: ly.Balance.Annual}
	}
	wantSick := ly.Entitlements.Effective(CategorySick).Sub(ly.Usage.Sick)
	if !ly.Balance.Sick.Equal(wantSick) {
		return &InvariantError{EmployeeID: ly.EmployeeID, Year: ly.Year, Field: "balance.sick", Want: wantSick, Got: ly.Balance.Sick}
	}
	wantTotal := ly.Entitlements.Total().
		Sub(ly.Usage.Total()).
		Sub(ly.CarryOverToNextYear).
		Sub(ly.ExpiredDays)
	if !ly.Balance.Total.Equal(wantTotal) {
		return &InvariantError{EmployeeID: ly.EmployeeID, Year: ly.Year, Field: "balance.total", Want: wantTotal, Got: ly.Balance.Total}
	}
	return nil
}

// BalanceFor returns the remaining balance for one category. Categories
// without entitlement (unpaid, other) always report zero.
func (ly *LeaveYear) BalanceFor(c Category) Days {
	switch c {
	case CategoryAnnual:
		return ly.Balance.Annual
	case CategorySick:
		return ly.Balance.Sick
	default:
		return ZeroDays()
	}
}

// applyUse consumes days from a category. Entitled categories fail with
// InsufficientBalanceError when the remaining balance does not cover the
// request; unpaid/other usage is recorded without a sufficiency check.
func (ly *LeaveYear) applyUse(c Category, days Days) error {
	if c.Entitled() {
		available := ly.BalanceFor(c)
		if available.LessThan(days) {
			return &InsufficientBalanceError{
				EmployeeID: ly.EmployeeID,
				Year:       ly.Year,
				Category:   c,
				Available:  available,
				Requested:  days,
			}
		}
	}
	b := ly.Usage.bucket(c)
	*b = b.Add(days)
	ly.recompute()
	return nil
}

// applyRefund reverses a prior use. Usage never goes below zero: refunding
// more than was used is rejected rather than clamped, so the ledger stays
// replayable.
func (ly *LeaveYear) applyRefund(c Category, days Days) error {
	b := ly.Usage.bucket(c)
	if b.LessThan(days) {
		return &InvalidRefundError{
			EmployeeID: ly.EmployeeID,
			Year:       ly.Year,
			Category:   c,
			Used:       *b,
			Requested:  days,
		}
	}
	*b = b.Sub(days)
	ly.recompute()
	return nil
}

// applyAdjustment moves the manual-adjustment entitlement by a signed
// amount. No sufficiency check: administrators may push a balance negative
// to correct historical mistakes.
func (ly *LeaveYear) applyAdjustment(days Days) {
	ly.Entitlements.ManualAdjustment = ly.Entitlements.ManualAdjustment.Add(days)
	ly.recompute()
}

// applyYearEnd records the carry-over/expiry outflows and marks the year
// processed. The annual balance drains to zero through the two recorded
// outflow fields, keeping the invariant intact.
func (ly *LeaveYear) applyYearEnd(carryOver, expired Days) {
	ly.YearEndProcessed = true
	ly.CarryOverToNextYear = carryOver
	ly.ExpiredDays = expired
	ly.recompute()
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state in place.
func (ly *LeaveYear) Clone() *LeaveYear {
	cp := *ly
	return &cp
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

// Transaction records one balance-affecting event. Append-only: once
// written, never mutated or deleted. Replaying the ordered sequence of an
// employee's transactions reconstructs every LeaveYear's final balance.
type Transaction struct {
	ID         string
	EmployeeID EmployeeID
	Year       int
	Type       TransactionType

	// Category is empty for whole-year entries (the initial accrual spans
	// every category).
	Category Category

	// DeltaDays is signed: positive credits balance, negative debits it.
	DeltaDays Days

	// Total balance immediately before and after this operation.
	BalanceBefore Days
	BalanceAfter  Days

	// Reference points at the originating leave request, when there is one.
	Reference string
	Actor     string
	Reason    string

	CreatedAt time.Time
}

func newTransaction(ly *LeaveYear, txType TransactionType, c Category, delta, before, after Days, reference, actor, reason string, now time.Time) Transaction {
	return Transaction{
		ID:            uuid.NewString(),
		EmployeeID:    ly.EmployeeID,
		Year:          ly.Year,
		Type:          txType,
		Category:      c,
		DeltaDays:     delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     reference,
		Actor:         actor,
		Reason:        reason,
		CreatedAt:     now,
	}
}
