/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (ledger.YearStore,
  ledger.TransactionLog, ledger.ProfileStore, ledger.RuleStore) using
  SQLite. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The transaction log is append-only:
  - No UPDATE statements on leave_transactions
  - No DELETE statements on leave_transactions
  - Corrections via cancel/adjustment entries only

OPTIMISTIC CONCURRENCY:
  leave_years carries a version column. UpdateYear issues
  UPDATE ... WHERE version = ?; zero affected rows means another writer
  bumped the version first and the caller gets ErrVersionConflict.

KEY TABLES:
  leave_years:        Versioned balance snapshots, one per (employee, year)
  leave_transactions: Immutable ledger of all balance changes
  employee_profiles:  Accrual inputs per employee
  accrual_rules:      Company policy brackets (versioned, deactivated not deleted)

DECIMALS:
  Day quantities are stored as TEXT and parsed back through decimal,
  so "0.5" survives round-trips without float drift.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/accrual"
	"github.com/warp/leave-ledger/ledger"
)

// DefaultBatchChunkSize keeps batched inserts under SQLite's bound-variable
// limit (999 in older builds; each transaction row binds 12 variables, so
// chunks stay well clear even with headroom for schema growth).
const DefaultBatchChunkSize = 450

// Store implements all storage interfaces using SQLite.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	chunkSize int
}

type Option func(*Store)

// WithChunkSize overrides the AppendBatch chunk size.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, chunkSize: DefaultBatchChunkSize}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Leave year snapshots (one per employee per calendar year)
	CREATE TABLE IF NOT EXISTS leave_years (
		employee_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		rule_id TEXT NOT NULL DEFAULT '',
		ent_annual TEXT NOT NULL,
		ent_sick TEXT NOT NULL,
		ent_carry_over TEXT NOT NULL,
		ent_manual_adjustment TEXT NOT NULL,
		used_annual TEXT NOT NULL,
		used_sick TEXT NOT NULL,
		used_unpaid TEXT NOT NULL,
		used_other TEXT NOT NULL,
		balance_annual TEXT NOT NULL,
		balance_sick TEXT NOT NULL,
		balance_total TEXT NOT NULL,
		year_end_processed BOOLEAN NOT NULL DEFAULT FALSE,
		carry_over_to_next_year TEXT NOT NULL,
		expired_days TEXT NOT NULL,
		is_current BOOLEAN NOT NULL DEFAULT FALSE,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, year)
	);

	-- Company-wide year-end runs scan by (company, year)
	CREATE INDEX IF NOT EXISTS idx_leave_years_company_year
		ON leave_years(company_id, year);
	CREATE INDEX IF NOT EXISTS idx_leave_years_current
		ON leave_years(employee_id) WHERE is_current;

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS leave_transactions (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		delta_days TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reference TEXT,
		actor TEXT,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	-- History queries (hot path): newest first per employee
	CREATE INDEX IF NOT EXISTS idx_leave_transactions_employee
		ON leave_transactions(employee_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_leave_transactions_employee_year
		ON leave_transactions(employee_id, year);
	CREATE INDEX IF NOT EXISTS idx_leave_transactions_reference
		ON leave_transactions(reference) WHERE reference IS NOT NULL;

	-- Employee leave profiles
	CREATE TABLE IF NOT EXISTS employee_profiles (
		employee_id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		hire_date TEXT NOT NULL,
		employment_type TEXT NOT NULL,
		department TEXT,
		position TEXT,
		custom_annual_days TEXT NOT NULL,
		custom_sick_days TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employee_profiles_company
		ON employee_profiles(company_id);

	-- Accrual rules (versioned; deactivated, never deleted)
	CREATE TABLE IF NOT EXISTS accrual_rules (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		min_service_months INTEGER NOT NULL DEFAULT 0,
		max_service_months INTEGER NOT NULL DEFAULT 0,
		employment_types TEXT NOT NULL DEFAULT '',
		annual_days TEXT NOT NULL,
		sick_days TEXT NOT NULL,
		cadence TEXT NOT NULL,
		allow_carry_over BOOLEAN NOT NULL DEFAULT FALSE,
		carry_over_cap_days TEXT NOT NULL,
		carry_over_expiry_months INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accrual_rules_company_active
		ON accrual_rules(company_id, active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// YEAR STORE (ledger.YearStore interface)
// =============================================================================

const leaveYearColumns = `employee_id, company_id, year, rule_id,
	ent_annual, ent_sick, ent_carry_over, ent_manual_adjustment,
	used_annual, used_sick, used_unpaid, used_other,
	balance_annual, balance_sick, balance_total,
	year_end_processed, carry_over_to_next_year, expired_days,
	is_current, version, created_at, updated_at`

// GetYear returns the snapshot for (employee, year).
func (s *Store) GetYear(ctx context.Context, employeeID ledger.EmployeeID, year int) (*ledger.LeaveYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+leaveYearColumns+" FROM leave_years WHERE employee_id = ? AND year = ?",
		string(employeeID), year,
	)
	ly, err := scanLeaveYear(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrYearNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load leave year: %w", err)
	}
	return ly, nil
}

// CreateYear inserts a fresh snapshot. When the snapshot is current, any
// other current snapshot of the employee is demoted in the same database
// transaction.
func (s *Store) CreateYear(ctx context.Context, ly *ledger.LeaveYear) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if ly.IsCurrent {
		if _, err := sqlTx.ExecContext(ctx,
			"UPDATE leave_years SET is_current = FALSE WHERE employee_id = ? AND is_current",
			string(ly.EmployeeID),
		); err != nil {
			return fmt.Errorf("failed to demote current year: %w", err)
		}
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO leave_years (`+leaveYearColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, leaveYearArgs(ly)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrYearExists
		}
		return fmt.Errorf("failed to insert leave year: %w", err)
	}

	return sqlTx.Commit()
}

// UpdateYear writes the snapshot conditioned on the stored version matching
// ly.Version, bumping both on success.
func (s *Store) UpdateYear(ctx context.Context, ly *ledger.LeaveYear) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE leave_years SET
			rule_id = ?,
			ent_annual = ?, ent_sick = ?, ent_carry_over = ?, ent_manual_adjustment = ?,
			used_annual = ?, used_sick = ?, used_unpaid = ?, used_other = ?,
			balance_annual = ?, balance_sick = ?, balance_total = ?,
			year_end_processed = ?, carry_over_to_next_year = ?, expired_days = ?,
			is_current = ?, version = version + 1, updated_at = ?
		WHERE employee_id = ? AND year = ? AND version = ?
	`,
		string(ly.RuleID),
		ly.Entitlements.Annual.String(), ly.Entitlements.Sick.String(),
		ly.Entitlements.CarryOver.String(), ly.Entitlements.ManualAdjustment.String(),
		ly.Usage.Annual.String(), ly.Usage.Sick.String(),
		ly.Usage.Unpaid.String(), ly.Usage.Other.String(),
		ly.Balance.Annual.String(), ly.Balance.Sick.String(), ly.Balance.Total.String(),
		ly.YearEndProcessed, ly.CarryOverToNextYear.String(), ly.ExpiredDays.String(),
		ly.IsCurrent, ly.UpdatedAt.Format(time.RFC3339Nano),
		string(ly.EmployeeID), ly.Year, ly.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave year: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM leave_years WHERE employee_id = ? AND year = ?",
			string(ly.EmployeeID), ly.Year,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return ledger.ErrYearNotFound
		}
		return ledger.ErrVersionConflict
	}

	ly.Version++
	return nil
}

// YearsByCompany lists a company's snapshots for one year.
func (s *Store) YearsByCompany(ctx context.Context, companyID ledger.CompanyID, year int) ([]*ledger.LeaveYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+leaveYearColumns+" FROM leave_years WHERE company_id = ? AND year = ? ORDER BY employee_id",
		string(companyID), year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave years: %w", err)
	}
	defer rows.Close()

	var result []*ledger.LeaveYear
	for rows.Next() {
		ly, err := scanLeaveYear(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ly)
	}
	return result, rows.Err()
}

func leaveYearArgs(ly *ledger.LeaveYear) []any {
	return []any{
		string(ly.EmployeeID), string(ly.CompanyID), ly.Year, string(ly.RuleID),
		ly.Entitlements.Annual.String(), ly.Entitlements.Sick.String(),
		ly.Entitlements.CarryOver.String(), ly.Entitlements.ManualAdjustment.String(),
		ly.Usage.Annual.String(), ly.Usage.Sick.String(),
		ly.Usage.Unpaid.String(), ly.Usage.Other.String(),
		ly.Balance.Annual.String(), ly.Balance.Sick.String(), ly.Balance.Total.String(),
		ly.YearEndProcessed, ly.CarryOverToNextYear.String(), ly.ExpiredDays.String(),
		ly.IsCurrent, ly.Version,
		ly.CreatedAt.Format(time.RFC3339Nano), ly.UpdatedAt.Format(time.RFC3339Nano),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLeaveYear(row rowScanner) (*ledger.LeaveYear, error) {
	var (
		ly                                               ledger.LeaveYear
		employeeID, companyID, ruleID                    string
		entAnnual, entSick, entCarry, entAdj             string
		usedAnnual, usedSick, usedUnpaid, usedOther      string
		balAnnual, balSick, balTotal, carryNext, expired string
		createdAt, updatedAt                             string
	)

	err := row.Scan(
		&employeeID, &companyID, &ly.Year, &ruleID,
		&entAnnual, &entSick, &entCarry, &entAdj,
		&usedAnnual, &usedSick, &usedUnpaid, &usedOther,
		&balAnnual, &balSick, &balTotal,
		&ly.YearEndProcessed, &carryNext, &expired,
		&ly.IsCurrent, &ly.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	ly.EmployeeID = ledger.EmployeeID(employeeID)
	ly.CompanyID = ledger.CompanyID(companyID)
	ly.RuleID = ledger.RuleID(ruleID)
	if ly.Entitlements.Annual, err = parseDays(entAnnual); err != nil {
		return nil, err
	}
	if ly.Entitlements.Sick, err = parseDays(entSick); err != nil {
		return nil, err
	}
	if ly.Entitlements.CarryOver, err = parseDays(entCarry); err != nil {
		return nil, err
	}
	if ly.Entitlements.ManualAdjustment, err = parseDays(entAdj); err != nil {
		return nil, err
	}
	if ly.Usage.Annual, err = parseDays(usedAnnual); err != nil {
		return nil, err
	}
	if ly.Usage.Sick, err = parseDays(usedSick); err != nil {
		return nil, err
	}
	if ly.Usage.Unpaid, err = parseDays(usedUnpaid); err != nil {
		return nil, err
	}
	if ly.Usage.Other, err = parseDays(usedOther); err != nil {
		return nil, err
	}
	if ly.Balance.Annual, err = parseDays(balAnnual); err != nil {
		return nil, err
	}
	if ly.Balance.Sick, err = parseDays(balSick); err != nil {
		return nil, err
	}
	if ly.Balance.Total, err = parseDays(balTotal); err != nil {
		return nil, err
	}
	if ly.CarryOverToNextYear, err = parseDays(carryNext); err != nil {
		return nil, err
	}
	if ly.ExpiredDays, err = parseDays(expired); err != nil {
		return nil, err
	}
	ly.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	ly.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &ly, nil
}

// =============================================================================
// TRANSACTION LOG (ledger.TransactionLog interface)
// =============================================================================

// Append adds a single transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendTx(ctx, s.db, tx)
}

func (s *Store) appendTx(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, tx ledger.Transaction) error {
	query := `
		INSERT INTO leave_transactions
		(id, employee_id, year, tx_type, category, delta_days,
		 balance_before, balance_after, reference, actor, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		tx.ID,
		string(tx.EmployeeID),
		tx.Year,
		string(tx.Type),
		string(tx.Category),
		tx.DeltaDays.String(),
		tx.BalanceBefore.String(),
		tx.BalanceAfter.String(),
		nullString(tx.Reference),
		nullString(tx.Actor),
		nullString(tx.Reason),
		tx.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// AppendBatch inserts transactions in chunks, each chunk all-or-nothing.
func (s *Store) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for start := 0; start < len(txs); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(txs) {
			end = len(txs)
		}
		if err := s.appendChunk(ctx, txs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) appendChunk(ctx context.Context, txs []ledger.Transaction) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := s.appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// History returns an employee's transactions, newest first. Ties on
// created_at break by insertion order (rowid).
func (s *Store) History(ctx context.Context, employeeID ledger.EmployeeID, year *int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, employee_id, year, tx_type, category, delta_days,
		       balance_before, balance_after, reference, actor, reason, created_at
		FROM leave_transactions
		WHERE employee_id = ?
	`
	args := []any{string(employeeID)}
	if year != nil {
		query += " AND year = ?"
		args = append(args, *year)
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx                              ledger.Transaction
		employeeID, txType, category    string
		delta, before, after, createdAt string
		reference, actor, reason        sql.NullString
	)

	err := rows.Scan(
		&tx.ID, &employeeID, &tx.Year, &txType, &category,
		&delta, &before, &after, &reference, &actor, &reason, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.EmployeeID = ledger.EmployeeID(employeeID)
	tx.Type = ledger.TransactionType(txType)
	tx.Category = ledger.Category(category)
	if tx.DeltaDays, err = parseDays(delta); err != nil {
		return tx, err
	}
	if tx.BalanceBefore, err = parseDays(before); err != nil {
		return tx, err
	}
	if tx.BalanceAfter, err = parseDays(after); err != nil {
		return tx, err
	}
	tx.Reference = reference.String
	tx.Actor = actor.String
	tx.Reason = reason.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return tx, nil
}

// =============================================================================
// PROFILE STORE (ledger.ProfileStore interface)
// =============================================================================

// GetProfile retrieves an employee leave profile.
func (s *Store) GetProfile(ctx context.Context, employeeID ledger.EmployeeID) (*accrual.EmployeeLeaveProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p                    accrual.EmployeeLeaveProfile
		employmentType       string
		hireDate             string
		department, position sql.NullString
		customAnnual         string
		customSick           string
		createdAt, updatedAt string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT employee_id, company_id, hire_date, employment_type, department, position,
		       custom_annual_days, custom_sick_days, created_at, updated_at
		FROM employee_profiles WHERE employee_id = ?
	`, string(employeeID)).Scan(
		&p.EmployeeID, &p.CompanyID, &hireDate, &employmentType,
		&department, &position, &customAnnual, &customSick, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	p.EmploymentType = accrual.EmploymentType(employmentType)
	p.Department = department.String
	p.Position = position.String
	p.HireDate, _ = time.Parse(time.RFC3339Nano, hireDate)
	if p.CustomAnnualDays, err = decimal.NewFromString(customAnnual); err != nil {
		return nil, fmt.Errorf("invalid custom annual days: %w", err)
	}
	if p.CustomSickDays, err = decimal.NewFromString(customSick); err != nil {
		return nil, fmt.Errorf("invalid custom sick days: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

// SaveProfile upserts an employee leave profile.
func (s *Store) SaveProfile(ctx context.Context, p accrual.EmployeeLeaveProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employee_profiles
		(employee_id, company_id, hire_date, employment_type, department, position,
		 custom_annual_days, custom_sick_days, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET
			company_id = excluded.company_id,
			hire_date = excluded.hire_date,
			employment_type = excluded.employment_type,
			department = excluded.department,
			position = excluded.position,
			custom_annual_days = excluded.custom_annual_days,
			custom_sick_days = excluded.custom_sick_days,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, query,
		p.EmployeeID, p.CompanyID,
		p.HireDate.Format(time.RFC3339Nano),
		string(p.EmploymentType),
		p.Department, p.Position,
		p.CustomAnnualDays.String(), p.CustomSickDays.String(),
		now, now,
	)
	return err
}

// =============================================================================
// RULE STORE (ledger.RuleStore interface)
// =============================================================================

// GetRule retrieves a rule by ID, active or not.
func (s *Store) GetRule(ctx context.Context, id string) (*accrual.AccrualRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+accrualRuleColumns+" FROM accrual_rules WHERE id = ?", id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	return rule, nil
}

// ActiveRules returns a company's active rules in ascending minimum-service
// order, the order the matcher evaluates them in.
func (s *Store) ActiveRules(ctx context.Context, companyID ledger.CompanyID) ([]accrual.AccrualRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+accrualRuleColumns+" FROM accrual_rules WHERE company_id = ? AND active ORDER BY min_service_months ASC",
		string(companyID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []accrual.AccrualRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// SaveRule upserts a rule.
func (s *Store) SaveRule(ctx context.Context, r accrual.AccrualRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accrual_rules
		(id, company_id, name, min_service_months, max_service_months, employment_types,
		 annual_days, sick_days, cadence, allow_carry_over, carry_over_cap_days,
		 carry_over_expiry_months, active, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			min_service_months = excluded.min_service_months,
			max_service_months = excluded.max_service_months,
			employment_types = excluded.employment_types,
			annual_days = excluded.annual_days,
			sick_days = excluded.sick_days,
			cadence = excluded.cadence,
			allow_carry_over = excluded.allow_carry_over,
			carry_over_cap_days = excluded.carry_over_cap_days,
			carry_over_expiry_months = excluded.carry_over_expiry_months,
			active = excluded.active,
			version = accrual_rules.version + 1
	`

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.CompanyID, r.Name,
		r.MinServiceMonths, r.MaxServiceMonths,
		joinEmploymentTypes(r.EmploymentTypes),
		r.AnnualDays.String(), r.SickDays.String(),
		string(r.Cadence),
		r.AllowCarryOver, r.CarryOverCapDays.String(), r.CarryOverExpiryMonths,
		r.Active, r.Version,
		createdAt.Format(time.RFC3339Nano),
	)
	return err
}

const accrualRuleColumns = `id, company_id, name, min_service_months, max_service_months,
	employment_types, annual_days, sick_days, cadence, allow_carry_over,
	carry_over_cap_days, carry_over_expiry_months, active, version, created_at`

func scanRule(row rowScanner) (*accrual.AccrualRule, error) {
	var (
		r                            accrual.AccrualRule
		employmentTypes, cadence     string
		annualDays, sickDays, capDay string
		createdAt                    string
	)

	err := row.Scan(
		&r.ID, &r.CompanyID, &r.Name, &r.MinServiceMonths, &r.MaxServiceMonths,
		&employmentTypes, &annualDays, &sickDays, &cadence, &r.AllowCarryOver,
		&capDay, &r.CarryOverExpiryMonths, &r.Active, &r.Version, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	r.EmploymentTypes = splitEmploymentTypes(employmentTypes)
	r.Cadence = accrual.AccrualCadence(cadence)
	if r.AnnualDays, err = decimal.NewFromString(annualDays); err != nil {
		return nil, fmt.Errorf("invalid annual days: %w", err)
	}
	if r.SickDays, err = decimal.NewFromString(sickDays); err != nil {
		return nil, fmt.Errorf("invalid sick days: %w", err)
	}
	if r.CarryOverCapDays, err = decimal.NewFromString(capDay); err != nil {
		return nil, fmt.Errorf("invalid carry-over cap: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDays(s string) (ledger.Days, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ledger.ZeroDays(), fmt.Errorf("invalid day quantity %q: %w", s, err)
	}
	return ledger.DaysFromDecimal(d), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func joinEmploymentTypes(types []accrual.EmploymentType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func splitEmploymentTypes(s string) []accrual.EmploymentType {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	types := make([]accrual.EmploymentType, len(parts))
	for i, p := range parts {
		types[i] = accrual.EmploymentType(p)
	}
	return types
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
