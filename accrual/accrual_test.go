package accrual_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/accrual"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func bracketRule(id string, minMonths, maxMonths int, annual, sick int64) accrual.AccrualRule {
	return accrual.AccrualRule{
		ID:               id,
		CompanyID:        "acme",
		Name:             id,
		MinServiceMonths: minMonths,
		MaxServiceMonths: maxMonths,
		AnnualDays:       decimal.NewFromInt(annual),
		SickDays:         decimal.NewFromInt(sick),
		Cadence:          accrual.CadenceUpfront,
		Active:           true,
	}
}

func statutory() accrual.StatutoryMinimum {
	return accrual.StatutoryMinimum{
		AnnualDays: decimal.NewFromInt(14),
		SickDays:   decimal.NewFromInt(10),
	}
}

func profileHiredAt(hire time.Time) accrual.EmployeeLeaveProfile {
	return accrual.EmployeeLeaveProfile{
		EmployeeID:     "emp-1",
		CompanyID:      "acme",
		HireDate:       hire,
		EmploymentType: accrual.EmploymentFullTime,
	}
}

// =============================================================================
// SERVICE MONTH CALCULATION
// =============================================================================

func TestServiceMonths_DayOfMonthBoundary(t *testing.T) {
	// GIVEN: Employee hired January 15
	// WHEN: Computing service months one day before and on the anniversary day
	// THEN: The month only counts once the day-of-month is reached

	hire := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, accrual.ServiceMonths(hire, time.Date(2024, time.February, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, accrual.ServiceMonths(hire, time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 12, accrual.ServiceMonths(hire, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)))
}

func TestServiceMonths_BeforeHireDate(t *testing.T) {
	// GIVEN: A future hire date
	// WHEN: Computing service months as of today
	// THEN: Zero, never negative

	hire := time.Date(2030, time.June, 1, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, accrual.ServiceMonths(hire, asOf))
}

// =============================================================================
// RULE MATCHING
// =============================================================================

func TestMatchRule_LastMatchWins(t *testing.T) {
	// GIVEN: Overlapping brackets at 0+ and 60+ months
	// WHEN: Matching a 70-month employee
	// THEN: The most senior bracket wins, regardless of slice order

	rules := []accrual.AccrualRule{
		bracketRule("senior", 60, 0, 20, 12),
		bracketRule("junior", 0, 0, 14, 10),
	}

	matched := accrual.MatchRule(rules, 70, accrual.EmploymentFullTime)
	require.NotNil(t, matched)
	assert.Equal(t, "senior", matched.ID)

	matched = accrual.MatchRule(rules, 12, accrual.EmploymentFullTime)
	require.NotNil(t, matched)
	assert.Equal(t, "junior", matched.ID)
}

func TestMatchRule_ServiceWindowInclusive(t *testing.T) {
	// GIVEN: A bracket for 12-60 months
	// WHEN: Matching at 11, 12, 60, and 61 months
	// THEN: Both window ends are inclusive

	rules := []accrual.AccrualRule{bracketRule("mid", 12, 60, 16, 10)}

	assert.Nil(t, accrual.MatchRule(rules, 11, accrual.EmploymentFullTime))
	assert.NotNil(t, accrual.MatchRule(rules, 12, accrual.EmploymentFullTime))
	assert.NotNil(t, accrual.MatchRule(rules, 60, accrual.EmploymentFullTime))
	assert.Nil(t, accrual.MatchRule(rules, 61, accrual.EmploymentFullTime))
}

func TestMatchRule_InactiveRulesIgnored(t *testing.T) {
	// GIVEN: A deactivated bracket that would otherwise win
	// WHEN: Matching
	// THEN: It is skipped entirely

	inactive := bracketRule("old", 0, 0, 25, 15)
	inactive.Active = false
	rules := []accrual.AccrualRule{inactive, bracketRule("current", 0, 0, 14, 10)}

	matched := accrual.MatchRule(rules, 24, accrual.EmploymentFullTime)
	require.NotNil(t, matched)
	assert.Equal(t, "current", matched.ID)
}

func TestMatchRule_EmploymentTypeFilter(t *testing.T) {
	// GIVEN: A bracket scoped to full-time employees
	// WHEN: Matching a contractor
	// THEN: No match; an empty filter matches everyone

	scoped := bracketRule("ft-only", 0, 0, 16, 10)
	scoped.EmploymentTypes = []accrual.EmploymentType{accrual.EmploymentFullTime}

	assert.Nil(t, accrual.MatchRule([]accrual.AccrualRule{scoped}, 6, accrual.EmploymentContract))
	assert.NotNil(t, accrual.MatchRule([]accrual.AccrualRule{scoped}, 6, accrual.EmploymentFullTime))

	open := bracketRule("open", 0, 0, 14, 10)
	assert.NotNil(t, accrual.MatchRule([]accrual.AccrualRule{open}, 6, accrual.EmploymentContract))
}

// =============================================================================
// CALCULATOR
// =============================================================================

func TestCalculate_StatutoryFallback(t *testing.T) {
	// GIVEN: No rule matches the employee
	// WHEN: Calculating the entitlement
	// THEN: The statutory minimum applies with an empty rule id

	calc := accrual.NewCalculator(statutory())
	profile := profileHiredAt(time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	ent := calc.Calculate(profile, nil, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, "", ent.RuleID)
	assert.True(t, ent.AnnualDays.Equal(decimal.NewFromInt(14)))
	assert.True(t, ent.SickDays.Equal(decimal.NewFromInt(10)))
	assert.Empty(t, ent.Adjustments)
}

func TestCalculate_SeniorityBonusBoundary(t *testing.T) {
	// GIVEN: The seniority bonus grants one annual day per full 5 years
	// WHEN: Calculating at 59 and 61 months of service
	// THEN: 59 months gets no bonus, 61 months gets exactly one day

	calc := accrual.NewCalculator(statutory())
	rules := []accrual.AccrualRule{bracketRule("all", 0, 0, 16, 10)}
	hire := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)
	profile := profileHiredAt(hire)

	// 59 months: still in year 4
	ent := calc.Calculate(profile, rules, hire.AddDate(0, 59, 0))
	assert.True(t, ent.AnnualDays.Equal(decimal.NewFromInt(16)))
	assert.Empty(t, ent.Adjustments)

	// 61 months: five full years of service
	ent = calc.Calculate(profile, rules, hire.AddDate(0, 61, 0))
	assert.True(t, ent.AnnualDays.Equal(decimal.NewFromInt(17)))
	require.Len(t, ent.Adjustments, 1)
	assert.Equal(t, "seniority bonus (5 years of service)", ent.Adjustments[0].Reason)
	assert.True(t, ent.Adjustments[0].Days.Equal(decimal.NewFromInt(1)))
}

func TestCalculate_CustomOverridesRecorded(t *testing.T) {
	// GIVEN: A profile with signed custom overrides
	// WHEN: Calculating the entitlement
	// THEN: Overrides are added verbatim and recorded as named adjustments

	calc := accrual.NewCalculator(statutory())
	rules := []accrual.AccrualRule{bracketRule("all", 0, 0, 16, 10)}
	profile := profileHiredAt(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	profile.CustomAnnualDays = decimal.NewFromFloat(2.5)
	profile.CustomSickDays = decimal.NewFromInt(-1)

	ent := calc.Calculate(profile, rules, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC))

	assert.True(t, ent.AnnualDays.Equal(decimal.NewFromFloat(18.5)))
	assert.True(t, ent.SickDays.Equal(decimal.NewFromInt(9)))
	require.Len(t, ent.Adjustments, 2)
	assert.Equal(t, "custom annual days override", ent.Adjustments[0].Reason)
	assert.Equal(t, "custom sick days override", ent.Adjustments[1].Reason)
}

func TestCalculate_TotalIsAnnualPlusSick(t *testing.T) {
	// GIVEN: A computed entitlement
	// WHEN: Asking for the total
	// THEN: It is exactly annual + sick

	calc := accrual.NewCalculator(statutory())
	rules := []accrual.AccrualRule{bracketRule("all", 0, 0, 16, 10)}
	profile := profileHiredAt(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))

	ent := calc.Calculate(profile, rules, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, ent.Total().Equal(ent.AnnualDays.Add(ent.SickDays)))
}
