/*
handlers.go - HTTP API handlers for the leave ledger

PURPOSE:
  Exposes the accrual calculator and balance ledger via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees/{id}/accrual       Computed entitlement breakdown
    GET    /api/employees/{id}/balance       Current year balance snapshot
    GET    /api/employees/{id}/transactions  Ledger history (?year= filter)
    POST   /api/employees/{id}/leave/use     Debit approved leave
    POST   /api/employees/{id}/leave/refund  Reverse a prior use

  Profiles:
    GET    /api/profiles/{id}                Get employee leave profile
    POST   /api/profiles                     Upsert profile

  Rules:
    GET    /api/rules                        List active rules (?company_id=)
    POST   /api/rules                        Upsert rule

  Admin:
    POST   /api/admin/year-end               Trigger company year-end run
    POST   /api/admin/adjustments            Manual balance adjustment

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Concurrent update conflict (retry)
  - 422: Business-rule rejection (insufficient balance, invalid refund)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/leave-ledger/accrual"
	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *ledger.Service
	YearEnd  *ledger.YearEndProcessor
	Profiles ledger.ProfileStore
	Rules    ledger.RuleStore

	validate *validator.Validate
	logger   logrus.FieldLogger
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(service *ledger.Service, yearEnd *ledger.YearEndProcessor, profiles ledger.ProfileStore, rules ledger.RuleStore, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		Service:  service,
		YearEnd:  yearEnd,
		Profiles: profiles,
		Rules:    rules,
		validate: validator.New(),
		logger:   logger,
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// GetAccrual returns the computed entitlement breakdown for an employee.
// GET /api/employees/{id}/accrual
func (h *Handler) GetAccrual(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	ent, err := h.Service.CalculateAccrual(r.Context(), ledger.EmployeeID(employeeID))
	if err != nil {
		h.writeDomainError(w, "Failed to calculate accrual", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntitlementDTO(employeeID, ent))
}

// GetBalance returns the current year's balance snapshot, bootstrapping the
// year when the employee has none yet.
// GET /api/employees/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	ly, err := h.Service.CurrentBalance(r.Context(), ledger.EmployeeID(employeeID))
	if err != nil {
		h.writeDomainError(w, "Failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, toLeaveYearDTO(ly))
}

// GetTransactions returns the employee's ledger history, newest first.
// GET /api/employees/{id}/transactions?year=2026
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	var year *int
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year parameter", err)
			return
		}
		year = &y
	}

	txs, err := h.Service.History(r.Context(), ledger.EmployeeID(employeeID), year)
	if err != nil {
		h.writeDomainError(w, "Failed to get transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UseLeave debits the current year's balance.
// POST /api/employees/{id}/leave/use
func (h *Handler) UseLeave(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	var req UseLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	ly, err := h.Service.UseLeave(r.Context(),
		ledger.EmployeeID(employeeID),
		ledger.Category(req.Category),
		ledger.DaysFromFloat(req.Days),
		req.Reference, req.Actor,
	)
	if err != nil {
		h.writeDomainError(w, "Failed to use leave", err)
		return
	}

	writeJSON(w, http.StatusOK, toLeaveYearDTO(ly))
}

// RefundLeave reverses a prior use on the current year.
// POST /api/employees/{id}/leave/refund
func (h *Handler) RefundLeave(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	var req RefundLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	ly, err := h.Service.RefundLeave(r.Context(),
		ledger.EmployeeID(employeeID),
		ledger.Category(req.Category),
		ledger.DaysFromFloat(req.Days),
		req.Reference, req.Actor,
	)
	if err != nil {
		h.writeDomainError(w, "Failed to refund leave", err)
		return
	}

	writeJSON(w, http.StatusOK, toLeaveYearDTO(ly))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdjustment applies a signed manual balance correction.
// POST /api/admin/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	ly, err := h.Service.Adjust(r.Context(),
		ledger.EmployeeID(req.EmployeeID), req.Year,
		ledger.DaysFromFloat(req.Days),
		req.Actor, req.Reason,
	)
	if err != nil {
		h.writeDomainError(w, "Failed to apply adjustment", err)
		return
	}

	writeJSON(w, http.StatusOK, toLeaveYearDTO(ly))
}

// TriggerYearEnd runs year-end processing for a whole company.
// POST /api/admin/year-end
func (h *Handler) TriggerYearEnd(w http.ResponseWriter, r *http.Request) {
	var req YearEndRequest
	if !h.decode(w, r, &req) {
		return
	}

	summary, err := h.YearEnd.Run(r.Context(), ledger.CompanyID(req.CompanyID), req.Year)
	if err != nil {
		h.writeDomainError(w, "Year-end run failed", err)
		return
	}

	dto := YearEndSummaryDTO{
		CompanyID:   string(summary.CompanyID),
		Year:        summary.Year,
		Processed:   summary.Processed,
		Skipped:     summary.Skipped,
		CarriedOver: summary.CarriedOver.Float64(),
		Expired:     summary.Expired.Float64(),
	}
	for _, f := range summary.Failures {
		dto.Failures = append(dto.Failures, YearEndFailureDTO{
			EmployeeID: string(f.EmployeeID),
			Error:      f.Err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// PROFILE HANDLERS
// =============================================================================

// GetProfile returns an employee leave profile.
// GET /api/profiles/{id}
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	p, err := h.Profiles.GetProfile(r.Context(), ledger.EmployeeID(employeeID))
	if err != nil {
		h.writeDomainError(w, "Failed to get profile", err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

// SaveProfile upserts an employee leave profile.
// POST /api/profiles
func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var req SaveProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	hireDate, err := time.Parse("2006-01-02", req.HireDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hire_date, expected YYYY-MM-DD", err)
		return
	}

	profile := accrual.EmployeeLeaveProfile{
		EmployeeID:       req.EmployeeID,
		CompanyID:        req.CompanyID,
		HireDate:         hireDate,
		EmploymentType:   accrual.EmploymentType(req.EmploymentType),
		Department:       req.Department,
		Position:         req.Position,
		CustomAnnualDays: decimal.NewFromFloat(req.CustomAnnualDays),
		CustomSickDays:   decimal.NewFromFloat(req.CustomSickDays),
	}
	if err := h.Profiles.SaveProfile(r.Context(), profile); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save profile", err)
		return
	}

	writeJSON(w, http.StatusCreated, toProfileDTO(&profile))
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// ListRules returns a company's active accrual rules.
// GET /api/rules?company_id=acme
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		writeError(w, http.StatusBadRequest, "company_id query parameter is required", nil)
		return
	}

	rules, err := h.Rules.ActiveRules(r.Context(), ledger.CompanyID(companyID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}

	dtos := make([]RuleDTO, len(rules))
	for i := range rules {
		dtos[i] = toRuleDTO(&rules[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveRule upserts an accrual rule.
// POST /api/rules
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	var req SaveRuleRequest
	if !h.decode(w, r, &req) {
		return
	}

	rule := accrual.AccrualRule{
		ID:                    req.ID,
		CompanyID:             req.CompanyID,
		Name:                  req.Name,
		MinServiceMonths:      req.MinServiceMonths,
		MaxServiceMonths:      req.MaxServiceMonths,
		AnnualDays:            decimal.NewFromFloat(req.AnnualDays),
		SickDays:              decimal.NewFromFloat(req.SickDays),
		Cadence:               accrual.AccrualCadence(req.Cadence),
		AllowCarryOver:        req.AllowCarryOver,
		CarryOverCapDays:      decimal.NewFromFloat(req.CarryOverCapDays),
		CarryOverExpiryMonths: req.CarryOverExpiryMonths,
		Active:                req.Active,
	}
	for _, t := range req.EmploymentTypes {
		rule.EmploymentTypes = append(rule.EmploymentTypes, accrual.EmploymentType(t))
	}
	if err := h.Rules.SaveRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rule", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRuleDTO(&rule))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses and validates a JSON request body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeDomainError maps ledger errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInvalidRefund):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case errors.Is(err, ledger.ErrConcurrentUpdateConflict):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, ledger.ErrInvalidTransaction):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.logger.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
