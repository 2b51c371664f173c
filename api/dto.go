/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  them through the shared validator before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-ledger/accrual"
	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// BALANCE / ACCRUAL RESPONSES
// =============================================================================

// EntitlementDTO is the computed accrual breakdown for an employee.
type EntitlementDTO struct {
	EmployeeID  string          `json:"employee_id"`
	AnnualDays  float64         `json:"annual_days"`
	SickDays    float64         `json:"sick_days"`
	TotalDays   float64         `json:"total_days"`
	RuleID      string          `json:"rule_id,omitempty"`
	Adjustments []AdjustmentDTO `json:"adjustments,omitempty"`
}

// AdjustmentDTO is one named contribution beyond the rule base.
type AdjustmentDTO struct {
	Reason string  `json:"reason"`
	Days   float64 `json:"days"`
}

// LeaveYearDTO is the balance snapshot returned to clients.
type LeaveYearDTO struct {
	EmployeeID string `json:"employee_id"`
	CompanyID  string `json:"company_id"`
	Year       int    `json:"year"`
	RuleID     string `json:"rule_id,omitempty"`

	Entitlements EntitlementsDTO `json:"entitlements"`
	Usage        UsageDTO        `json:"usage"`
	Balance      BalanceDTO      `json:"balance"`

	YearEndProcessed    bool    `json:"year_end_processed"`
	CarryOverToNextYear float64 `json:"carry_over_to_next_year"`
	ExpiredDays         float64 `json:"expired_days"`
	IsCurrent           bool    `json:"is_current"`
	UpdatedAt           string  `json:"updated_at"`
}

type EntitlementsDTO struct {
	Annual           float64 `json:"annual"`
	Sick             float64 `json:"sick"`
	CarryOver        float64 `json:"carry_over"`
	ManualAdjustment float64 `json:"manual_adjustment"`
	Total            float64 `json:"total"`
}

type UsageDTO struct {
	Annual float64 `json:"annual"`
	Sick   float64 `json:"sick"`
	Unpaid float64 `json:"unpaid"`
	Other  float64 `json:"other"`
	Total  float64 `json:"total"`
}

type BalanceDTO struct {
	Annual float64 `json:"annual"`
	Sick   float64 `json:"sick"`
	Total  float64 `json:"total"`
}

// TransactionDTO is one ledger entry in API responses.
type TransactionDTO struct {
	ID            string  `json:"id"`
	EmployeeID    string  `json:"employee_id"`
	Year          int     `json:"year"`
	Type          string  `json:"type"`
	Category      string  `json:"category,omitempty"`
	DeltaDays     float64 `json:"delta_days"`
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
	Reference     string  `json:"reference,omitempty"`
	Actor         string  `json:"actor,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// =============================================================================
// LEAVE OPERATION REQUESTS
// =============================================================================

// UseLeaveRequest debits the current year's balance.
type UseLeaveRequest struct {
	Category  string  `json:"category" validate:"required,oneof=annual sick unpaid other"`
	Days      float64 `json:"days" validate:"required,gt=0"`
	Reference string  `json:"reference"`
	Actor     string  `json:"actor"`
}

// RefundLeaveRequest reverses a prior use.
type RefundLeaveRequest struct {
	Category  string  `json:"category" validate:"required,oneof=annual sick unpaid other"`
	Days      float64 `json:"days" validate:"required,gt=0"`
	Reference string  `json:"reference"`
	Actor     string  `json:"actor"`
}

// AdjustmentRequest is an administrative balance correction. Days is signed.
type AdjustmentRequest struct {
	EmployeeID string  `json:"employee_id" validate:"required"`
	Year       int     `json:"year" validate:"required"`
	Days       float64 `json:"days" validate:"required"`
	Actor      string  `json:"actor" validate:"required"`
	Reason     string  `json:"reason" validate:"required"`
}

// YearEndRequest triggers year-end processing for a company.
type YearEndRequest struct {
	CompanyID string `json:"company_id" validate:"required"`
	Year      int    `json:"year" validate:"required"`
}

// YearEndSummaryDTO reports the outcome of a year-end run.
type YearEndSummaryDTO struct {
	CompanyID   string              `json:"company_id"`
	Year        int                 `json:"year"`
	Processed   int                 `json:"processed"`
	Skipped     int                 `json:"skipped"`
	CarriedOver float64             `json:"carried_over"`
	Expired     float64             `json:"expired"`
	Failures    []YearEndFailureDTO `json:"failures,omitempty"`
}

type YearEndFailureDTO struct {
	EmployeeID string `json:"employee_id"`
	Error      string `json:"error"`
}

// =============================================================================
// PROFILE / RULE MANAGEMENT
// =============================================================================

// ProfileDTO represents an employee leave profile.
type ProfileDTO struct {
	EmployeeID       string  `json:"employee_id"`
	CompanyID        string  `json:"company_id"`
	HireDate         string  `json:"hire_date"`
	EmploymentType   string  `json:"employment_type"`
	Department       string  `json:"department,omitempty"`
	Position         string  `json:"position,omitempty"`
	CustomAnnualDays float64 `json:"custom_annual_days,omitempty"`
	CustomSickDays   float64 `json:"custom_sick_days,omitempty"`
}

// SaveProfileRequest creates or updates an employee leave profile.
type SaveProfileRequest struct {
	EmployeeID       string  `json:"employee_id" validate:"required"`
	CompanyID        string  `json:"company_id" validate:"required"`
	HireDate         string  `json:"hire_date" validate:"required"`
	EmploymentType   string  `json:"employment_type" validate:"required,oneof=full_time part_time contract"`
	Department       string  `json:"department"`
	Position         string  `json:"position"`
	CustomAnnualDays float64 `json:"custom_annual_days"`
	CustomSickDays   float64 `json:"custom_sick_days"`
}

// RuleDTO represents an accrual rule.
type RuleDTO struct {
	ID                    string   `json:"id"`
	CompanyID             string   `json:"company_id"`
	Name                  string   `json:"name"`
	MinServiceMonths      int      `json:"min_service_months"`
	MaxServiceMonths      int      `json:"max_service_months"`
	EmploymentTypes       []string `json:"employment_types,omitempty"`
	AnnualDays            float64  `json:"annual_days"`
	SickDays              float64  `json:"sick_days"`
	Cadence               string   `json:"cadence"`
	AllowCarryOver        bool     `json:"allow_carry_over"`
	CarryOverCapDays      float64  `json:"carry_over_cap_days"`
	CarryOverExpiryMonths int      `json:"carry_over_expiry_months"`
	Active                bool     `json:"active"`
	Version               int      `json:"version"`
}

// SaveRuleRequest creates or updates an accrual rule.
type SaveRuleRequest struct {
	ID                    string   `json:"id" validate:"required"`
	CompanyID             string   `json:"company_id" validate:"required"`
	Name                  string   `json:"name" validate:"required"`
	MinServiceMonths      int      `json:"min_service_months" validate:"gte=0"`
	MaxServiceMonths      int      `json:"max_service_months"`
	EmploymentTypes       []string `json:"employment_types" validate:"dive,oneof=full_time part_time contract"`
	AnnualDays            float64  `json:"annual_days" validate:"gte=0"`
	SickDays              float64  `json:"sick_days" validate:"gte=0"`
	Cadence               string   `json:"cadence" validate:"required,oneof=upfront monthly"`
	AllowCarryOver        bool     `json:"allow_carry_over"`
	CarryOverCapDays      float64  `json:"carry_over_cap_days" validate:"gte=0"`
	CarryOverExpiryMonths int      `json:"carry_over_expiry_months" validate:"gte=0"`
	Active                bool     `json:"active"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toLeaveYearDTO(ly *ledger.LeaveYear) LeaveYearDTO {
	return LeaveYearDTO{
		EmployeeID: string(ly.EmployeeID),
		CompanyID:  string(ly.CompanyID),
		Year:       ly.Year,
		RuleID:     string(ly.RuleID),
		Entitlements: EntitlementsDTO{
			Annual:           ly.Entitlements.Annual.Float64(),
			Sick:             ly.Entitlements.Sick.Float64(),
			CarryOver:        ly.Entitlements.CarryOver.Float64(),
			ManualAdjustment: ly.Entitlements.ManualAdjustment.Float64(),
			Total:            ly.Entitlements.Total().Float64(),
		},
		Usage: UsageDTO{
			Annual: ly.Usage.Annual.Float64(),
			Sick:   ly.Usage.Sick.Float64(),
			Unpaid: ly.Usage.Unpaid.Float64(),
			Other:  ly.Usage.Other.Float64(),
			Total:  ly.Usage.Total().Float64(),
		},
		Balance: BalanceDTO{
			Annual: ly.Balance.Annual.Float64(),
			Sick:   ly.Balance.Sick.Float64(),
			Total:  ly.Balance.Total.Float64(),
		},
		YearEndProcessed:    ly.YearEndProcessed,
		CarryOverToNextYear: ly.CarryOverToNextYear.Float64(),
		ExpiredDays:         ly.ExpiredDays.Float64(),
		IsCurrent:           ly.IsCurrent,
		UpdatedAt:           ly.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:            tx.ID,
		EmployeeID:    string(tx.EmployeeID),
		Year:          tx.Year,
		Type:          string(tx.Type),
		Category:      string(tx.Category),
		DeltaDays:     tx.DeltaDays.Float64(),
		BalanceBefore: tx.BalanceBefore.Float64(),
		BalanceAfter:  tx.BalanceAfter.Float64(),
		Reference:     tx.Reference,
		Actor:         tx.Actor,
		Reason:        tx.Reason,
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
	}
}

func toEntitlementDTO(employeeID string, ent *accrual.Entitlement) EntitlementDTO {
	dto := EntitlementDTO{
		EmployeeID: employeeID,
		AnnualDays: ent.AnnualDays.InexactFloat64(),
		SickDays:   ent.SickDays.InexactFloat64(),
		TotalDays:  ent.Total().InexactFloat64(),
		RuleID:     ent.RuleID,
	}
	for _, a := range ent.Adjustments {
		dto.Adjustments = append(dto.Adjustments, AdjustmentDTO{
			Reason: a.Reason,
			Days:   a.Days.InexactFloat64(),
		})
	}
	return dto
}

func toProfileDTO(p *accrual.EmployeeLeaveProfile) ProfileDTO {
	return ProfileDTO{
		EmployeeID:       p.EmployeeID,
		CompanyID:        p.CompanyID,
		HireDate:         p.HireDate.Format("2006-01-02"),
		EmploymentType:   string(p.EmploymentType),
		Department:       p.Department,
		Position:         p.Position,
		CustomAnnualDays: p.CustomAnnualDays.InexactFloat64(),
		CustomSickDays:   p.CustomSickDays.InexactFloat64(),
	}
}

func toRuleDTO(r *accrual.AccrualRule) RuleDTO {
	dto := RuleDTO{
		ID:                    r.ID,
		CompanyID:             r.CompanyID,
		Name:                  r.Name,
		MinServiceMonths:      r.MinServiceMonths,
		MaxServiceMonths:      r.MaxServiceMonths,
		AnnualDays:            r.AnnualDays.InexactFloat64(),
		SickDays:              r.SickDays.InexactFloat64(),
		Cadence:               string(r.Cadence),
		AllowCarryOver:        r.AllowCarryOver,
		CarryOverCapDays:      r.CarryOverCapDays.InexactFloat64(),
		CarryOverExpiryMonths: r.CarryOverExpiryMonths,
		Active:                r.Active,
		Version:               r.Version,
	}
	for _, t := range r.EmploymentTypes {
		dto.EmploymentTypes = append(dto.EmploymentTypes, string(t))
	}
	return dto
}
