/*
Package accrual computes leave entitlements.

PURPOSE:
  Pure calculation layer: given an employee profile and the company's
  accrual rules, produce the final annual/sick entitlement for a year.
  No external state, no I/O - everything here is deterministic and
  unit-testable in isolation.

KEY CONCEPTS:
  - AccrualRule: a tenure bracket ("12-60 months of service, full-time:
    16 annual / 10 sick days") with carry-over configuration.
  - Rule matching: the LAST matching rule in ascending minimum-service
    order wins - the most senior applicable bracket takes precedence.
  - Statutory fallback: when no rule matches, a configured statutory
    minimum applies. The minimum is configuration, never a constant
    baked into the calculator.

SEE ALSO:
  - calculator.go: combines the matched rule with seniority bonuses and
    per-employee overrides.
*/
package accrual

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EMPLOYMENT TYPES
// =============================================================================

type EmploymentType string

const (
	EmploymentFullTime EmploymentType = "full_time"
	EmploymentPartTime EmploymentType = "part_time"
	EmploymentContract EmploymentType = "contract"
)

// =============================================================================
// ACCRUAL RULE - A named, company-scoped entitlement bracket
// =============================================================================

type AccrualCadence string

const (
	CadenceUpfront AccrualCadence = "upfront" // full entitlement on January 1
	CadenceMonthly AccrualCadence = "monthly" // 1/12 per month (informational)
)

// AccrualRule is a company policy bracket. Rules are immutable once a
// computed entitlement references them: administrators version new rules
// in and deactivate old ones, they never edit or hard-delete a used rule.
type AccrualRule struct {
	ID        string
	CompanyID string
	Name      string

	// Service window in months, inclusive on both ends.
	// MaxServiceMonths <= 0 means no upper bound.
	MinServiceMonths int
	MaxServiceMonths int

	// Empty slice matches all employment types.
	EmploymentTypes []EmploymentType

	AnnualDays decimal.Decimal
	SickDays   decimal.Decimal
	Cadence    AccrualCadence

	AllowCarryOver        bool
	CarryOverCapDays      decimal.Decimal
	CarryOverExpiryMonths int

	Active    bool
	Version   int
	CreatedAt time.Time
}

// AppliesTo reports whether this rule's service window and employment-type
// filter match the given employee.
func (r AccrualRule) AppliesTo(serviceMonths int, et EmploymentType) bool {
	if serviceMonths < r.MinServiceMonths {
		return false
	}
	if r.MaxServiceMonths > 0 && serviceMonths > r.MaxServiceMonths {
		return false
	}
	if len(r.EmploymentTypes) == 0 {
		return true
	}
	for _, t := range r.EmploymentTypes {
		if t == et {
			return true
		}
	}
	return false
}

// =============================================================================
// RULE MATCHER
// =============================================================================

// MatchRule selects the best rule for an employee's tenure and employment
// type. Candidates are evaluated in ascending MinServiceMonths order and the
// last match wins, so a 5-year bracket overrides a 1-year bracket that also
// happens to contain the employee. Returns nil when nothing matches; the
// calculator then falls back to the statutory minimum.
func MatchRule(rules []AccrualRule, serviceMonths int, et EmploymentType) *AccrualRule {
	ordered := make([]AccrualRule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MinServiceMonths < ordered[j].MinServiceMonths
	})

	var matched *AccrualRule
	for i := range ordered {
		if ordered[i].AppliesTo(serviceMonths, et) {
			matched = &ordered[i]
		}
	}
	return matched
}

// ServiceMonths returns whole months of service between hire date and asOf.
// A month only counts once the day-of-month has been reached, so an employee
// hired January 15 has 0 months on February 14 and 1 month on February 15.
func ServiceMonths(hireDate, asOf time.Time) int {
	if asOf.Before(hireDate) {
		return 0
	}
	months := (asOf.Year()-hireDate.Year())*12 + int(asOf.Month()) - int(hireDate.Month())
	if asOf.Day() < hireDate.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
