package credits

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"booking-app/config"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL not set, skipping database test")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error)
	require.NoError(t, db.AutoMigrate(&SubscriptionCycle{}, &MonthlyCreditCounter{}, &StandaloneCredit{}, &LedgerEntry{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM ledger_entries")
		db.Exec("DELETE FROM monthly_credit_counters")
		db.Exec("DELETE FROM subscription_cycles")
		db.Exec("DELETE FROM standalone_credits")
	})
	return db
}

func init() {
	config.Sched = config.Scheduling{
		CreditValidityDays: 30,
		Location:           time.UTC,
	}
}

func activeCycle(t *testing.T, db *gorm.DB, userID uint, end time.Time, allotted int) *SubscriptionCycle {
	t.Helper()
	c := &SubscriptionCycle{
		SubscriptionID:  "sub_" + uuid.NewString()[:8],
		UserID:          userID,
		CycleStart:      end.AddDate(0, -1, 0),
		CycleEnd:        end,
		Status:          CycleStatusActive,
		CreditsAllotted: allotted,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func TestConsumePrefersSoonestExpiringCycle(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db, config.Sched)
	now := time.Now().UTC()

	late := activeCycle(t, db, 1, now.AddDate(0, 0, 20), 4)
	soon := activeCycle(t, db, 1, now.AddDate(0, 0, 5), 4)

	src, err := ledger.Consume(db, 1, uuid.New(), now)
	require.NoError(t, err)
	assert.Equal(t, sourceCycle, src.Kind)
	assert.Equal(t, soon.ID, src.ID)

	var reloaded SubscriptionCycle
	require.NoError(t, db.First(&reloaded, "id = ?", soon.ID).Error)
	assert.Equal(t, 1, reloaded.CreditsUsed)
	require.NoError(t, db.First(&reloaded, "id = ?", late.ID).Error)
	assert.Zero(t, reloaded.CreditsUsed)
}

func TestMonthlyCounterTracksCycleUsage(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db, config.Sched)
	now := time.Now().UTC()

	cycle := activeCycle(t, db, 1, now.AddDate(0, 0, 20), 4)
	bookingID := uuid.New()

	_, err := ledger.Consume(db, 1, bookingID, now)
	require.NoError(t, err)

	counters, err := ledger.MonthlyUsage(cycle.ID)
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, now.Format("2006-01"), counters[0].Month)
	assert.Equal(t, 4, counters[0].Available)
	assert.Equal(t, 1, counters[0].Used)

	_, err = ledger.Consume(db, 1, uuid.New(), now)
	require.NoError(t, err)
	counters, err = ledger.MonthlyUsage(cycle.ID)
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, 2, counters[0].Used)

	// refund decrements the month it lands in, never below zero
	require.NoError(t, ledger.Refund(db, bookingID, now))
	counters, err = ledger.MonthlyUsage(cycle.ID)
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, 4, counters[0].Available)
	assert.Equal(t, 1, counters[0].Used)
}

func TestConsumeFallsBackToStandalone(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db, config.Sched)
	now := time.Now().UTC()

	// exhausted cycle does not satisfy the booking
	c := activeCycle(t, db, 1, now.AddDate(0, 0, 10), 2)
	require.NoError(t, db.Model(c).Update("credits_used", 2).Error)

	credit, err := ledger.GrantStandalone(1, 2, now)
	require.NoError(t, err)

	src, err := ledger.Consume(db, 1, uuid.New(), now)
	require.NoError(t, err)
	assert.Equal(t, sourceStandalone, src.Kind)
	assert.Equal(t, credit.ID, src.ID)

	var reloaded StandaloneCredit
	require.NoError(t, db.First(&reloaded, "id = ?", credit.ID).Error)
	assert.Equal(t, 1, reloaded.Remaining)
	assert.Equal(t, CreditStatusActive, reloaded.Status)
}

func TestConsumeExhaustedEverywhere(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db, config.Sched)
	now := time.Now().UTC()

	_, err := ledger.Consume(db, 1, uuid.New(), now)
	assert.ErrorIs(t, err, ErrInsufficientCredit)

	// expired standalone credit does not count
	credit, err := ledger.GrantStandalone(1, 1, now.AddDate(0, 0, -40))
	require.NoError(t, err)
	require.True(t, credit.ExpiresAt.Before(now))

	_, err = ledger.Consume(db, 1, uuid.New(), now)
	assert.ErrorIs(t, err, ErrInsufficientCredit)
}

func TestRefundIsIdempotent(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db, config.Sched)
	now := time.Now().UTC()
	bookingID := uuid.New()

	cycle := activeCycle(t, db, 1, now.AddDate(0, 0, 10), 4)
	_, err := ledger.Consume(db, 1, bookingID, now)
	require.NoError(t, err)

	require.NoError(t, ledger.Refund(db, bookingID, now))
	require.NoError(t, ledger.Refund(db, bookingID, now))

	var reloaded SubscriptionCycle
	require.NoError(t, db.First(&reloaded, "id = ?", cycle.ID).Error)
	assert.Zero(t, reloaded.CreditsUsed)

	var refunds int64
	db.Model(&LedgerEntry{}).Where("booking_id = ? AND kind = ?", bookingID, EntryRefund).Count(&refunds)
	assert.EqualValues(t, 1, refunds)
}

func TestRefundReturnsToOriginalSource(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db, config.Sched)
	now := time.Now().UTC()
	bookingID := uuid.New()

	credit, err := ledger.GrantStandalone(1, 1, now)
	require.NoError(t, err)

	_, err = ledger.Consume(db, 1, bookingID, now)
	require.NoError(t, err)

	var drained StandaloneCredit
	require.NoError(t, db.First(&drained, "id = ?", credit.ID).Error)
	assert.Equal(t, CreditStatusConsumed, drained.Status)

	require.NoError(t, ledger.Refund(db, bookingID, now))
	require.NoError(t, db.First(&drained, "id = ?", credit.ID).Error)
	assert.Equal(t, 1, drained.Remaining)
	assert.Equal(t, CreditStatusActive, drained.Status)
}

func TestForfeitBlocksLaterRefund(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db, config.Sched)
	now := time.Now().UTC()
	bookingID := uuid.New()

	cycle := activeCycle(t, db, 1, now.AddDate(0, 0, 10), 4)
	_, err := ledger.Consume(db, 1, bookingID, now)
	require.NoError(t, err)

	require.NoError(t, ledger.Forfeit(db, bookingID))
	require.NoError(t, ledger.Refund(db, bookingID, now))

	var reloaded SubscriptionCycle
	require.NoError(t, db.First(&reloaded, "id = ?", cycle.ID).Error)
	assert.Equal(t, 1, reloaded.CreditsUsed)
}

func TestConcurrentConsumptionNeverOversells(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db, config.Sched)
	now := time.Now().UTC()

	activeCycle(t, db, 1, now.AddDate(0, 0, 10), 1)
	_, err := ledger.GrantStandalone(1, 1, now)
	require.NoError(t, err)

	const attempts = 6
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.Transaction(func(tx *gorm.DB) error {
				_, err := ledger.Consume(tx, 1, uuid.New(), now)
				return err
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 2, wins)

	balance, err := ledger.BalanceFor(1, now)
	require.NoError(t, err)
	assert.Zero(t, balance.Total())
}

func TestBalanceFor(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db, config.Sched)
	now := time.Now().UTC()

	c := activeCycle(t, db, 1, now.AddDate(0, 0, 10), 4)
	require.NoError(t, db.Model(c).Update("credits_used", 1).Error)
	_, err := ledger.GrantStandalone(1, 2, now)
	require.NoError(t, err)

	balance, err := ledger.BalanceFor(1, now)
	require.NoError(t, err)
	assert.Equal(t, 3, balance.CycleRemaining)
	assert.Equal(t, 2, balance.StandaloneRemaining)
	assert.Equal(t, 5, balance.Total())
}

func TestActivateAndRenewCycle(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db, config.Sched)
	start := time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)

	pending, err := ledger.CreatePendingCycle("sub_renew", 1, start, 4)
	require.NoError(t, err)
	assert.Equal(t, CycleStatusPending, pending.Status)
	assert.Equal(t, time.Date(2026, time.February, 15, 12, 0, 0, 0, time.UTC), pending.CycleEnd)

	require.NoError(t, ledger.ActivateCycle(pending.ID))
	require.NoError(t, ledger.ActivateCycle(pending.ID)) // idempotent

	next, err := ledger.RenewCycle("sub_renew", 4, pending.CycleEnd)
	require.NoError(t, err)
	assert.Equal(t, CycleStatusActive, next.Status)
	assert.Equal(t, pending.CycleEnd, next.CycleStart)

	var old SubscriptionCycle
	require.NoError(t, db.First(&old, "id = ?", pending.ID).Error)
	assert.Equal(t, CycleStatusExpired, old.Status)
}

func TestExpireStandalone(t *testing.T) {
	db := testDB(t)
	ledger := NewLedger(db, config.Sched)
	now := time.Now().UTC()

	_, err := ledger.GrantStandalone(1, 1, now.AddDate(0, 0, -31))
	require.NoError(t, err)
	_, err = ledger.GrantStandalone(1, 1, now)
	require.NoError(t, err)

	n, err := ledger.ExpireStandalone(now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	balance, err := ledger.BalanceFor(1, now)
	require.NoError(t, err)
	assert.Equal(t, 1, balance.StandaloneRemaining)
}
