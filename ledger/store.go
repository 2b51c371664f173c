/*
store.go - Persistence contracts for the ledger engine

PURPOSE:
  Defines what the engine requires from the store, independent of any
  specific product: versioned point reads/writes of LeaveYear documents,
  an append-only transaction log, and read access to profiles and rules.

OPTIMISTIC CONCURRENCY:
  UpdateYear is conditioned on the snapshot's version token being
  unchanged since the read. On a conflict the store returns
  ErrVersionConflict and the engine retries from the read step.

APPEND-ONLY CONTRACT:
  The transaction log has Append and AppendBatch and nothing else.
  No Update, no Delete - corrections are new cancel/adjustment entries.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - store/memory: in-memory store for tests
*/
package ledger

import (
	"context"

	"github.com/warp/leave-ledger/accrual"
)

// =============================================================================
// YEAR STORE - Versioned snapshot documents keyed by (employee, year)
// =============================================================================

type YearStore interface {
	// GetYear returns a copy of the snapshot, or ErrYearNotFound.
	GetYear(ctx context.Context, employeeID EmployeeID, year int) (*LeaveYear, error)

	// CreateYear persists a fresh snapshot. Returns ErrYearExists when the
	// (employee, year) document is already present. When ly.IsCurrent is
	// set, any other snapshot of the employee loses its current flag in the
	// same write.
	CreateYear(ctx context.Context, ly *LeaveYear) error

	// UpdateYear writes the snapshot conditioned on ly.Version matching the
	// stored version; on success the stored and in-memory versions are
	// bumped. Returns ErrVersionConflict when another writer got there
	// first, ErrYearNotFound when the document vanished.
	UpdateYear(ctx context.Context, ly *LeaveYear) error

	// YearsByCompany lists all snapshots of a company for one year.
	// Used by the year-end processor.
	YearsByCompany(ctx context.Context, companyID CompanyID, year int) ([]*LeaveYear, error)
}

// =============================================================================
// TRANSACTION LOG - Append-only, keyed by employee, indexed by year
// =============================================================================

type TransactionLog interface {
	// Append inserts one ledger entry.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch inserts entries with all-or-nothing semantics per chunk;
	// implementations bound chunk sizes to respect store limits.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// History returns an employee's entries, newest first, optionally
	// filtered to a single year.
	History(ctx context.Context, employeeID EmployeeID, year *int) ([]Transaction, error)
}

// =============================================================================
// PROFILE / RULE STORES - Owned by the HR context, read-mostly here
// =============================================================================

type ProfileStore interface {
	// GetProfile returns the employee's leave profile, or ErrProfileNotFound.
	GetProfile(ctx context.Context, employeeID EmployeeID) (*accrual.EmployeeLeaveProfile, error)

	// SaveProfile upserts a profile (onboarding / role change).
	SaveProfile(ctx context.Context, profile accrual.EmployeeLeaveProfile) error
}

type RuleStore interface {
	// GetRule returns a rule by id, or ErrRuleNotFound.
	GetRule(ctx context.Context, id string) (*accrual.AccrualRule, error)

	// ActiveRules returns a company's active rules ordered by ascending
	// minimum service months.
	ActiveRules(ctx context.Context, companyID CompanyID) ([]accrual.AccrualRule, error)

	// SaveRule upserts a rule. Used rules are deactivated, never deleted.
	SaveRule(ctx context.Context, rule accrual.AccrualRule) error
}
