package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/accrual"
	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// tickClock hands out strictly increasing timestamps so ledger entries
// order deterministically.
type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func clockAt(year int, month time.Month, day int) *tickClock {
	return &tickClock{t: time.Date(year, month, day, 12, 0, 0, 0, time.UTC)}
}

func newTestService(t *testing.T, clock *tickClock) (*ledger.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	calc := accrual.NewCalculator(accrual.StatutoryMinimum{
		AnnualDays: decimal.NewFromInt(14),
		SickDays:   decimal.NewFromInt(10),
	})
	engine := ledger.NewEngine(store, store, ledger.WithEngineClock(clock.Now))
	svc := ledger.NewService(store, store, store, store, calc, engine,
		ledger.WithClock(clock.Now))
	return svc, store
}

func saveProfile(t *testing.T, store *memory.Store, employeeID string, hire time.Time) {
	t.Helper()
	require.NoError(t, store.SaveProfile(context.Background(), accrual.EmployeeLeaveProfile{
		EmployeeID:     employeeID,
		CompanyID:      "acme",
		HireDate:       hire,
		EmploymentType: accrual.EmploymentFullTime,
	}))
}

func saveCarryOverRule(t *testing.T, store *memory.Store, id string, annual int64, capDays int64) {
	t.Helper()
	require.NoError(t, store.SaveRule(context.Background(), accrual.AccrualRule{
		ID:               id,
		CompanyID:        "acme",
		Name:             id,
		AnnualDays:       decimal.NewFromInt(annual),
		SickDays:         decimal.NewFromInt(10),
		Cadence:          accrual.CadenceUpfront,
		AllowCarryOver:   capDays > 0,
		CarryOverCapDays: decimal.NewFromInt(capDays),
		Active:           true,
	}))
}

// =============================================================================
// YEAR BOOTSTRAP
// =============================================================================

func TestService_InitializeYear_ProfileRequired(t *testing.T) {
	// GIVEN: No profile for the employee
	// WHEN: Initializing a year
	// THEN: Fails with ErrProfileNotFound, nothing defaulted

	svc, _ := newTestService(t, clockAt(2026, time.January, 15))

	_, err := svc.InitializeYear(context.Background(), "ghost", 2026)
	assert.ErrorIs(t, err, ledger.ErrProfileNotFound)
}

func TestService_InitializeYear_CreatesSnapshotAndAccrualEntry(t *testing.T) {
	// GIVEN: A profile matched by an accrual rule
	// WHEN: Initializing 2026
	// THEN: Snapshot has zero usage, balance equals entitlements, and one
	//       accrual entry covers the full initial grant

	svc, store := newTestService(t, clockAt(2026, time.March, 1))
	ctx := context.Background()
	saveProfile(t, store, "emp-1", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	saveCarryOverRule(t, store, "standard", 16, 10)

	ly, err := svc.InitializeYear(ctx, "emp-1", 2026)
	require.NoError(t, err)

	assert.Equal(t, 2026, ly.Year)
	assert.Equal(t, ledger.RuleID("standard"), ly.RuleID)
	assert.True(t, ly.Entitlements.Annual.Equal(ledger.DaysFromInt(16)))
	assert.True(t, ly.Entitlements.Sick.Equal(ledger.DaysFromInt(10)))
	assert.True(t, ly.Usage.Total().IsZero())
	assert.True(t, ly.Balance.Total.Equal(ly.Entitlements.Total()))
	assert.True(t, ly.IsCurrent)
	assert.NoError(t, ly.Validate())

	txs, err := store.History(ctx, "emp-1", nil)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TxAccrual, txs[0].Type)
	assert.Equal(t, ledger.Category(""), txs[0].Category)
	assert.True(t, txs[0].DeltaDays.Equal(ledger.DaysFromInt(26)))
	assert.True(t, txs[0].BalanceBefore.IsZero())
	assert.True(t, txs[0].BalanceAfter.Equal(ledger.DaysFromInt(26)))
}

func TestService_InitializeYear_Idempotent(t *testing.T) {
	// GIVEN: An already initialized year
	// WHEN: Initializing it again
	// THEN: The stored snapshot comes back and no second accrual entry appears

	svc, store := newTestService(t, clockAt(2026, time.March, 1))
	ctx := context.Background()
	saveProfile(t, store, "emp-1", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))

	first, err := svc.InitializeYear(ctx, "emp-1", 2026)
	require.NoError(t, err)
	second, err := svc.InitializeYear(ctx, "emp-1", 2026)
	require.NoError(t, err)

	assert.Equal(t, first.Year, second.Year)
	assert.True(t, first.Balance.Total.Equal(second.Balance.Total))

	txs, _ := store.History(ctx, "emp-1", nil)
	assert.Len(t, txs, 1, "double-initialization must not double-accrue")
}

func TestService_InitializeYear_StatutoryFallback(t *testing.T) {
	// GIVEN: No accrual rules at all
	// WHEN: Initializing a year
	// THEN: The statutory minimum applies with an empty rule id

	svc, store := newTestService(t, clockAt(2026, time.March, 1))
	ctx := context.Background()
	saveProfile(t, store, "emp-1", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	ly, err := svc.InitializeYear(ctx, "emp-1", 2026)
	require.NoError(t, err)

	assert.Equal(t, ledger.RuleID(""), ly.RuleID)
	assert.True(t, ly.Entitlements.Annual.Equal(ledger.DaysFromInt(14)))
	assert.True(t, ly.Entitlements.Sick.Equal(ledger.DaysFromInt(10)))
}

// =============================================================================
// CARRY-OVER
// =============================================================================

func TestService_InitializeYear_CarryOverCappedByRule(t *testing.T) {
	// GIVEN: 2025 ends with 16 unused annual days under a rule capping
	//        carry-over at 10
	// WHEN: Initializing 2026
	// THEN: Only 10 days carry over

	svc, store := newTestService(t, clockAt(2026, time.January, 2))
	ctx := context.Background()
	saveProfile(t, store, "emp-1", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	saveCarryOverRule(t, store, "standard", 16, 10)

	_, err := svc.InitializeYear(ctx, "emp-1", 2025)
	require.NoError(t, err)

	ly, err := svc.InitializeYear(ctx, "emp-1", 2026)
	require.NoError(t, err)

	assert.True(t, ly.Entitlements.CarryOver.Equal(ledger.DaysFromInt(10)))
	assert.True(t, ly.Balance.Annual.Equal(ledger.DaysFromInt(26)))
	assert.NoError(t, ly.Validate())
}

func TestService_InitializeYear_CarryOverBelowCapTakenInFull(t *testing.T) {
	// GIVEN: 2025 ends with 4 unused annual days and a cap of 10
	// WHEN: Initializing 2026
	// THEN: All 4 days carry over

	svc, store := newTestService(t, clockAt(2025, time.July, 1))
	ctx := context.Background()
	saveProfile(t, store, "emp-1", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	saveCarryOverRule(t, store, "standard", 16, 10)

	_, err := svc.InitializeYear(ctx, "emp-1", 2025)
	require.NoError(t, err)
	_, err = svc.UseLeave(ctx, "emp-1", ledger.CategoryAnnual, ledger.DaysFromInt(12), "req-1", "emp")
	require.NoError(t, err)

	ly, err := svc.InitializeYear(ctx, "emp-1", 2026)
	require.NoError(t, err)
	assert.True(t, ly.Entitlements.CarryOver.Equal(ledger.DaysFromInt(4)))
}

func TestService_InitializeYear_CarryOverDisallowedByRule(t *testing.T) {
	// GIVEN: A rule that forbids carry-over
	// WHEN: Initializing the next year
	// THEN: Nothing carries over

	svc, store := newTestService(t, clockAt(2026, time.January, 2))
	ctx := context.Background()
	saveProfile(t, store, "emp-1", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	saveCarryOverRule(t, store, "no-carry", 16, 0)

	_, err := svc.InitializeYear(ctx, "emp-1", 2025)
	require.NoError(t, err)

	ly, err := svc.InitializeYear(ctx, "emp-1", 2026)
	require.NoError(t, err)
	assert.True(t, ly.Entitlements.CarryOver.IsZero())
}

func TestService_InitializeYear_ProcessedPriorUsesRecordedCarryOver(t *testing.T) {
	// GIVEN: 2025 was closed by the year-end processor
	// WHEN: Initializing 2026
	// THEN: The recorded carry-over is used verbatim, not recomputed

	svc, store := newTestService(t, clockAt(2026, time.January, 2))
	ctx := context.Background()
	saveProfile(t, store, "emp-1", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	saveCarryOverRule(t, store, "standard", 16, 10)

	_, err := svc.InitializeYear(ctx, "emp-1", 2025)
	require.NoError(t, err)

	yearEnd := ledger.NewYearEndProcessor(store, store, store)
	summary, err := yearEnd.Run(ctx, "acme", 2025)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)

	ly, err := svc.InitializeYear(ctx, "emp-1", 2026)
	require.NoError(t, err)

	prior, err := store.GetYear(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assert.True(t, ly.Entitlements.CarryOver.Equal(prior.CarryOverToNextYear))
	assert.True(t, ly.Entitlements.CarryOver.Equal(ledger.DaysFromInt(10)))
}

// =============================================================================
// CURRENT BALANCE / OPERATIONS
// =============================================================================

func TestService_CurrentBalance_LazyBootstrap(t *testing.T) {
	// GIVEN: An employee with a profile but no snapshot for this year
	// WHEN: Asking for the current balance
	// THEN: The year is initialized transparently

	svc, store := newTestService(t, clockAt(2026, time.February, 1))
	ctx := context.Background()
	saveProfile(t, store, "emp-1", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	ly, err := svc.CurrentBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 2026, ly.Year)
	assert.True(t, ly.IsCurrent)

	txs, _ := store.History(ctx, "emp-1", nil)
	assert.Len(t, txs, 1)
}

func TestService_UseAndRefund_OnCurrentYear(t *testing.T) {
	// GIVEN: A bootstrapped current year
	// WHEN: Using 3 sick days, then refunding 1
	// THEN: Both land on the current year with matching ledger entries

	svc, store := newTestService(t, clockAt(2026, time.May, 10))
	ctx := context.Background()
	saveProfile(t, store, "emp-1", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.UseLeave(ctx, "emp-1", ledger.CategorySick, ledger.DaysFromInt(3), "req-7", "emp")
	require.NoError(t, err)
	ly, err := svc.RefundLeave(ctx, "emp-1", ledger.CategorySick, ledger.DaysFromInt(1), "req-7", "emp")
	require.NoError(t, err)

	assert.True(t, ly.Usage.Sick.Equal(ledger.DaysFromInt(2)))
	assert.True(t, ly.Balance.Sick.Equal(ledger.DaysFromInt(8)))

	year := 2026
	txs, err := svc.History(ctx, "emp-1", &year)
	require.NoError(t, err)
	require.Len(t, txs, 3) // accrual, use, cancel
	assert.Equal(t, ledger.TxCancel, txs[0].Type)
	assert.Equal(t, ledger.TxUse, txs[1].Type)
	assert.Equal(t, ledger.TxAccrual, txs[2].Type)
}

func TestService_Adjust_FoldsIntoManualAdjustment(t *testing.T) {
	// GIVEN: A bootstrapped year
	// WHEN: HR grants +2 days with a reason
	// THEN: The effective annual entitlement grows by 2

	svc, store := newTestService(t, clockAt(2026, time.May, 10))
	ctx := context.Background()
	saveProfile(t, store, "emp-1", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.CurrentBalance(ctx, "emp-1")
	require.NoError(t, err)

	ly, err := svc.Adjust(ctx, "emp-1", 2026, ledger.DaysFromInt(2), "hr-admin", "retention grant")
	require.NoError(t, err)

	assert.True(t, ly.Entitlements.ManualAdjustment.Equal(ledger.DaysFromInt(2)))
	assert.True(t, ly.Balance.Annual.Equal(ledger.DaysFromInt(16)))
}

// =============================================================================
// LEDGER REPLAY
// =============================================================================

func TestService_LedgerReplay_DeltasSumToFinalBalance(t *testing.T) {
	// GIVEN: A year with a mixed history of accrual, uses, a refund, and an
	//        adjustment
	// WHEN: Summing every transaction's delta
	// THEN: The sum equals the snapshot's final total balance - the ledger
	//       fully explains the balance

	svc, store := newTestService(t, clockAt(2026, time.April, 1))
	ctx := context.Background()
	saveProfile(t, store, "emp-1", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.UseLeave(ctx, "emp-1", ledger.CategoryAnnual, ledger.DaysFromInt(3), "req-1", "emp")
	require.NoError(t, err)
	_, err = svc.UseLeave(ctx, "emp-1", ledger.CategorySick, ledger.DaysFromFloat(1.5), "req-2", "emp")
	require.NoError(t, err)
	_, err = svc.RefundLeave(ctx, "emp-1", ledger.CategoryAnnual, ledger.DaysFromInt(1), "req-1", "emp")
	require.NoError(t, err)
	ly, err := svc.Adjust(ctx, "emp-1", 2026, ledger.DaysFromInt(2), "hr-admin", "retention grant")
	require.NoError(t, err)

	txs, err := store.History(ctx, "emp-1", nil)
	require.NoError(t, err)
	require.Len(t, txs, 5)

	sum := ledger.ZeroDays()
	for _, tx := range txs {
		sum = sum.Add(tx.DeltaDays)
	}
	assert.True(t, sum.Equal(ly.Balance.Total),
		"replayed deltas %s should equal final balance %s", sum, ly.Balance.Total)

	// Before/after chain is consistent for every entry
	for _, tx := range txs {
		assert.True(t, tx.BalanceBefore.Add(tx.DeltaDays).Equal(tx.BalanceAfter),
			"entry %s (%s) breaks the before/after chain", tx.ID, tx.Type)
	}
}
