package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func seedRuleYear(t *testing.T, store *memory.Store, employeeID string, year int, ruleID string, annual, sick int) *ledger.LeaveYear {
	t.Helper()
	ent := ledger.Entitlements{
		Annual:           ledger.DaysFromInt(annual),
		Sick:             ledger.DaysFromInt(sick),
		CarryOver:        ledger.ZeroDays(),
		ManualAdjustment: ledger.ZeroDays(),
	}
	ly := ledger.NewLeaveYear(ledger.EmployeeID(employeeID), "acme", year,
		ledger.RuleID(ruleID), ent, false, time.Now().UTC())
	require.NoError(t, store.CreateYear(context.Background(), ly))
	return ly
}

// =============================================================================
// CARRY-OVER AND EXPIRY
// =============================================================================

func TestYearEnd_CapsCarryOverAndExpiresRemainder(t *testing.T) {
	// GIVEN: 16 unused annual days under a rule capping carry-over at 10
	// WHEN: Running year-end
	// THEN: 10 carry over, 6 expire, the annual balance drains to zero, and
	//       carry_over/expiry entries land in the ledger

	store := memory.NewStore()
	ctx := context.Background()
	saveCarryOverRule(t, store, "standard", 16, 10)
	seedRuleYear(t, store, "emp-1", 2025, "standard", 16, 10)

	p := ledger.NewYearEndProcessor(store, store, store)
	summary, err := p.Run(ctx, "acme", 2025)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Empty(t, summary.Failures)
	assert.True(t, summary.CarriedOver.Equal(ledger.DaysFromInt(10)))
	assert.True(t, summary.Expired.Equal(ledger.DaysFromInt(6)))

	ly, err := store.GetYear(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assert.True(t, ly.YearEndProcessed)
	assert.True(t, ly.CarryOverToNextYear.Equal(ledger.DaysFromInt(10)))
	assert.True(t, ly.ExpiredDays.Equal(ledger.DaysFromInt(6)))
	assert.True(t, ly.Balance.Annual.IsZero())
	assert.False(t, ly.IsCurrent)
	assert.NoError(t, ly.Validate())

	txs, err := store.History(ctx, "emp-1", nil)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	byType := map[ledger.TransactionType]ledger.Transaction{}
	for _, tx := range txs {
		byType[tx.Type] = tx
	}
	carry := byType[ledger.TxCarryOver]
	assert.True(t, carry.DeltaDays.Equal(ledger.DaysFromInt(-10)))
	expiry := byType[ledger.TxExpiry]
	assert.True(t, expiry.DeltaDays.Equal(ledger.DaysFromInt(-6)))
	// The two entries chain: carry's after is expiry's before
	assert.True(t, carry.BalanceAfter.Equal(expiry.BalanceBefore))
}

func TestYearEnd_StatutorySnapshotUsesDefaultCap(t *testing.T) {
	// GIVEN: A snapshot with no rule (statutory fallback) and 14 unused days
	// WHEN: Running year-end with the default cap of 10
	// THEN: 10 carry over and 4 expire

	store := memory.NewStore()
	ctx := context.Background()
	seedRuleYear(t, store, "emp-1", 2025, "", 14, 10)

	p := ledger.NewYearEndProcessor(store, store, store)
	summary, err := p.Run(ctx, "acme", 2025)
	require.NoError(t, err)

	assert.True(t, summary.CarriedOver.Equal(ledger.DaysFromInt(10)))
	assert.True(t, summary.Expired.Equal(ledger.DaysFromInt(4)))
}

func TestYearEnd_ZeroRemainingBalanceWritesNoEntries(t *testing.T) {
	// GIVEN: An employee who used every annual day
	// WHEN: Running year-end
	// THEN: The snapshot is marked processed but no carry/expiry entries appear

	store := memory.NewStore()
	ctx := context.Background()
	engine := ledger.NewEngine(store, store)
	saveCarryOverRule(t, store, "standard", 16, 10)
	seedRuleYear(t, store, "emp-1", 2025, "standard", 16, 10)
	_, err := engine.Apply(ctx, ledger.ApplyInput{
		EmployeeID: "emp-1", Year: 2025, Type: ledger.TxUse,
		Category: ledger.CategoryAnnual, Days: ledger.DaysFromInt(16),
	})
	require.NoError(t, err)

	p := ledger.NewYearEndProcessor(store, store, store)
	summary, err := p.Run(ctx, "acme", 2025)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.True(t, summary.CarriedOver.IsZero())
	assert.True(t, summary.Expired.IsZero())

	txs, _ := store.History(ctx, "emp-1", nil)
	assert.Len(t, txs, 1) // only the original use
}

// =============================================================================
// IDEMPOTENCY AND FAILURE ISOLATION
// =============================================================================

func TestYearEnd_SecondRunSkipsProcessedSnapshots(t *testing.T) {
	// GIVEN: A completed year-end run
	// WHEN: Running it again
	// THEN: Everything is skipped; no duplicate ledger entries

	store := memory.NewStore()
	ctx := context.Background()
	saveCarryOverRule(t, store, "standard", 16, 10)
	seedRuleYear(t, store, "emp-1", 2025, "standard", 16, 10)
	seedRuleYear(t, store, "emp-2", 2025, "standard", 16, 10)

	p := ledger.NewYearEndProcessor(store, store, store)
	first, err := p.Run(ctx, "acme", 2025)
	require.NoError(t, err)
	require.Equal(t, 2, first.Processed)

	second, err := p.Run(ctx, "acme", 2025)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 2, second.Skipped)
	assert.True(t, second.CarriedOver.IsZero())

	txs, _ := store.History(ctx, "emp-1", nil)
	assert.Len(t, txs, 2, "rerun must not duplicate entries")
}

// failingUpdateStore fails conditional writes for one employee with a
// non-retryable error.
type failingUpdateStore struct {
	*memory.Store
	failFor ledger.EmployeeID
}

var errDiskFull = errors.New("disk full")

func (s *failingUpdateStore) UpdateYear(ctx context.Context, ly *ledger.LeaveYear) error {
	if ly.EmployeeID == s.failFor {
		return errDiskFull
	}
	return s.Store.UpdateYear(ctx, ly)
}

func TestYearEnd_OneFailureDoesNotAbortTheRun(t *testing.T) {
	// GIVEN: Three employees, one of whom cannot be written
	// WHEN: Running year-end
	// THEN: The other two are processed and the failure is reported in the
	//       summary, not as a run error

	base := memory.NewStore()
	ctx := context.Background()
	saveCarryOverRule(t, base, "standard", 16, 10)
	seedRuleYear(t, base, "emp-1", 2025, "standard", 16, 10)
	seedRuleYear(t, base, "emp-2", 2025, "standard", 16, 10)
	seedRuleYear(t, base, "emp-3", 2025, "standard", 16, 10)

	store := &failingUpdateStore{Store: base, failFor: "emp-2"}
	p := ledger.NewYearEndProcessor(store, base, base, ledger.WithYearEndConcurrency(2))
	summary, err := p.Run(ctx, "acme", 2025)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, ledger.EmployeeID("emp-2"), summary.Failures[0].EmployeeID)
	assert.ErrorIs(t, summary.Failures[0].Err, errDiskFull)

	// The failed snapshot is untouched and a rerun can pick it up
	ly, err := base.GetYear(ctx, "emp-2", 2025)
	require.NoError(t, err)
	assert.False(t, ly.YearEndProcessed)
}

func TestYearEnd_MissingRuleFallsBackToDefaultCap(t *testing.T) {
	// GIVEN: A snapshot referencing a rule that has since been deleted
	// WHEN: Running year-end with a custom default cap of 5
	// THEN: The run still closes the year using the fallback cap

	store := memory.NewStore()
	ctx := context.Background()
	seedRuleYear(t, store, "emp-1", 2025, "vanished", 16, 10)

	p := ledger.NewYearEndProcessor(store, store, store,
		ledger.WithYearEndCarryOverCap(ledger.DaysFromInt(5)))
	summary, err := p.Run(ctx, "acme", 2025)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.True(t, summary.CarriedOver.Equal(ledger.DaysFromInt(5)))
	assert.True(t, summary.Expired.Equal(ledger.DaysFromInt(11)))
}
