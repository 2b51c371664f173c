package accrual

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EMPLOYEE LEAVE PROFILE - Owned by the HR/identity context, read-only here
// =============================================================================

// EmployeeLeaveProfile carries the employee facts the calculator needs.
// Custom day overrides are signed and added verbatim on top of the rule base.
type EmployeeLeaveProfile struct {
	EmployeeID     string
	CompanyID      string
	HireDate       time.Time
	EmploymentType EmploymentType
	Department     string
	Position       string

	// Zero means no override.
	CustomAnnualDays decimal.Decimal
	CustomSickDays   decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// ENTITLEMENT - Calculator output
// =============================================================================

// Adjustment is a named, signed contribution beyond the rule base. Every
// non-zero adjustment is recorded so the final total is always explainable
// as base + sum(adjustments).
type Adjustment struct {
	Reason string
	Days   decimal.Decimal
}

// Entitlement is the final computed entitlement for one employee-year.
type Entitlement struct {
	AnnualDays decimal.Decimal
	SickDays   decimal.Decimal

	// RuleID is empty when the statutory fallback applied.
	RuleID      string
	Adjustments []Adjustment
}

func (e Entitlement) Total() decimal.Decimal {
	return e.AnnualDays.Add(e.SickDays)
}

// =============================================================================
// CALCULATOR
// =============================================================================

// StatutoryMinimum is the fallback entitlement when no rule matches.
// This is configuration (see config package), never a hard-coded constant.
type StatutoryMinimum struct {
	AnnualDays decimal.Decimal
	SickDays   decimal.Decimal
}

// SeniorityBonusYears is the service-year divisor for the seniority bonus:
// one extra annual day per full block of this many years.
const SeniorityBonusYears = 5

type Calculator struct {
	Statutory StatutoryMinimum
}

func NewCalculator(statutory StatutoryMinimum) *Calculator {
	return &Calculator{Statutory: statutory}
}

// Calculate produces the final entitlement for a profile as of a date,
// in order: (a) base days from the matched rule or statutory fallback,
// (b) seniority bonus of floor(serviceYears/5) annual days,
// (c) per-employee custom overrides added verbatim.
func (c *Calculator) Calculate(profile EmployeeLeaveProfile, rules []AccrualRule, asOf time.Time) Entitlement {
	serviceMonths := ServiceMonths(profile.HireDate, asOf)
	matched := MatchRule(rules, serviceMonths, profile.EmploymentType)

	ent := Entitlement{
		AnnualDays: c.Statutory.AnnualDays,
		SickDays:   c.Statutory.SickDays,
	}
	if matched != nil {
		ent.AnnualDays = matched.AnnualDays
		ent.SickDays = matched.SickDays
		ent.RuleID = matched.ID
	}

	serviceYears := serviceMonths / 12
	if bonus := serviceYears / SeniorityBonusYears; bonus > 0 {
		bonusDays := decimal.NewFromInt(int64(bonus))
		ent.AnnualDays = ent.AnnualDays.Add(bonusDays)
		ent.Adjustments = append(ent.Adjustments, Adjustment{
			Reason: fmt.Sprintf("seniority bonus (%d years of service)", serviceYears),
			Days:   bonusDays,
		})
	}

	if !profile.CustomAnnualDays.IsZero() {
		ent.AnnualDays = ent.AnnualDays.Add(profile.CustomAnnualDays)
		ent.Adjustments = append(ent.Adjustments, Adjustment{
			Reason: "custom annual days override",
			Days:   profile.CustomAnnualDays,
		})
	}
	if !profile.CustomSickDays.IsZero() {
		ent.SickDays = ent.SickDays.Add(profile.CustomSickDays)
		ent.Adjustments = append(ent.Adjustments, Adjustment{
			Reason: "custom sick days override",
			Days:   profile.CustomSickDays,
		})
	}

	return ent
}
