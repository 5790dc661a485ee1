package scheduling

import (
	"context"
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
	"booking-app/internal/domain/booking"
	"booking-app/internal/domain/credits"
	"booking-app/internal/domain/schedule"
	"booking-app/internal/domain/users"
	"booking-app/internal/notify"
)

func init() {
	config.Sched = config.Scheduling{
		SlotDuration:       50 * time.Minute,
		BufferBetweenSlots: 10 * time.Minute,
		MinLead:            time.Hour,
		MaxLead:            60 * 24 * time.Hour,
		CancellationNotice: 24 * time.Hour,
		ReminderLead:       time.Hour,
		SessionWindow:      time.Hour,
		ReservedHold:       15 * time.Minute,
		AbsenceGrace:       10 * time.Minute,
		CreditValidityDays: 30,
		PenaltyRatePercent: 20,
		Location:           time.UTC,
	}
}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	slots   *schedule.Store
	ledger  *credits.Ledger
	patient users.User
	psych   users.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL not set, skipping database test")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error)
	require.NoError(t, db.AutoMigrate(
		&users.User{}, &schedule.Slot{}, &schedule.WeeklyAvailability{},
		&booking.Booking{}, &credits.SubscriptionCycle{}, &credits.MonthlyCreditCounter{},
		&credits.StandaloneCredit{}, &credits.LedgerEntry{},
	))
	t.Cleanup(func() {
		for _, table := range []string{"ledger_entries", "bookings", "monthly_credit_counters",
			"subscription_cycles", "standalone_credits", "slots", "weekly_availabilities", "users"} {
			db.Exec("DELETE FROM " + table)
		}
	})

	f := &fixture{
		db:     db,
		slots:  schedule.NewStore(db, config.Sched),
		ledger: credits.NewLedger(db, config.Sched),
	}
	f.svc = NewService(db, f.slots, f.ledger, notify.Noop{}, config.Sched)

	f.patient = users.User{Email: "patient@test.local", Role: users.RolePatient}
	require.NoError(t, db.Create(&f.patient).Error)
	f.psych = users.User{
		Email:             "psych@test.local",
		Role:              users.RolePsychologist,
		SessionPriceCents: 10000,
		PayoutPercent:     80,
	}
	require.NoError(t, db.Create(&f.psych).Error)
	return f
}

func (f *fixture) grantCredits(t *testing.T, qty int, now time.Time) {
	t.Helper()
	_, err := f.ledger.GrantStandalone(f.patient.ID, qty, now)
	require.NoError(t, err)
}

func (f *fixture) publishSlot(t *testing.T, startsIn time.Duration, now time.Time) *schedule.Slot {
	t.Helper()
	start := now.Add(startsIn)
	slot := &schedule.Slot{
		PsychologistID: f.psych.ID,
		StartsAt:       start,
		EndsAt:         start.Add(config.Sched.SlotDuration),
		Status:         schedule.StatusAvailable,
	}
	require.NoError(t, f.db.Create(slot).Error)
	return slot
}

func TestCreateBookingHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 2, now)
	slot := f.publishSlot(t, 48*time.Hour, now)

	b, err := f.svc.CreateBooking(ctx, f.patient.ID, slot.ID, now)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusScheduled, b.Status)
	assert.EqualValues(t, 10000, b.PriceCents)

	got, err := f.slots.Get(slot.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusReserved, got.Status)

	balance, err := f.ledger.BalanceFor(f.patient.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, balance.Total())
}

func TestCreateBookingInsufficientCreditRollsBackSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	slot := f.publishSlot(t, 48*time.Hour, now)

	_, err := f.svc.CreateBooking(ctx, f.patient.ID, slot.ID, now)
	assert.ErrorIs(t, err, credits.ErrInsufficientCredit)

	got, err := f.slots.Get(slot.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusAvailable, got.Status)
}

func TestCreateBookingConcurrentOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 10, now)
	slot := f.publishSlot(t, 48*time.Hour, now)

	const attempts = 6
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateBooking(ctx, f.patient.ID, slot.ID, now)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, schedule.ErrSlotConflict)
		}
	}
	assert.Equal(t, 1, wins)

	balance, err := f.ledger.BalanceFor(f.patient.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 9, balance.Total())
}

func TestExpireUnconfirmedCancelsStaleHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// a crash between reserving the slot and charging the credit leaves
	// the booking parked in reserved
	slot := f.publishSlot(t, 48*time.Hour, now)
	require.NoError(t, f.db.Model(slot).Updates(map[string]interface{}{
		"status": schedule.StatusReserved, "reserved_at": now.Add(-time.Hour),
	}).Error)
	b := booking.Booking{
		SlotID:         slot.ID,
		PatientID:      f.patient.ID,
		PsychologistID: f.psych.ID,
		StartsAt:       slot.StartsAt,
		Status:         booking.StatusReserved,
		StatusOrigin:   booking.ActorPatient,
		PriceCents:     10000,
		CreatedAt:      now.Add(-time.Hour),
	}
	require.NoError(t, f.db.Create(&b).Error)

	expired, err := f.svc.ExpireUnconfirmed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	var got booking.Booking
	require.NoError(t, f.db.First(&got, "id = ?", b.ID).Error)
	assert.Equal(t, booking.StatusCancelled, got.Status)

	freed, err := f.slots.Get(slot.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusAvailable, freed.Status)

	// a fresh hold is left alone
	slot2 := f.publishSlot(t, 49*time.Hour, now)
	require.NoError(t, f.db.Model(slot2).Update("status", schedule.StatusReserved).Error)
	b2 := booking.Booking{
		SlotID: slot2.ID, PatientID: f.patient.ID, PsychologistID: f.psych.ID,
		StartsAt: slot2.StartsAt, Status: booking.StatusReserved,
		StatusOrigin: booking.ActorPatient, PriceCents: 10000,
	}
	require.NoError(t, f.db.Create(&b2).Error)

	expired, err = f.svc.ExpireUnconfirmed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
}

func TestCancelInWindowReturnsCreditAndSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 1, now)
	slot := f.publishSlot(t, 25*time.Hour, now)
	b, err := f.svc.CreateBooking(ctx, f.patient.ID, slot.ID, now)
	require.NoError(t, err)

	updated, err := f.svc.ChangeStatus(ctx, b.ID, booking.StatusCancelledByPatientInWindow, booking.ActorPatient, booking.Overrides{}, now)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelledByPatientInWindow, updated.Status)
	assert.True(t, updated.CreditReturned)

	got, err := f.slots.Get(slot.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusAvailable, got.Status)

	balance, err := f.ledger.BalanceFor(f.patient.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, balance.Total())
}

func TestCancelOutOfWindowForfeits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 1, now)
	slot := f.publishSlot(t, 2*time.Hour, now)
	b, err := f.svc.CreateBooking(ctx, f.patient.ID, slot.ID, now)
	require.NoError(t, err)

	updated, err := f.svc.ChangeStatus(ctx, b.ID, booking.StatusCancelledByPatientInWindow, booking.ActorPatient, booking.Overrides{}, now)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelledByPatientOutOfWindow, updated.Status)
	assert.True(t, updated.CreditForfeited)
	assert.True(t, updated.PayoutIssued)

	balance, err := f.ledger.BalanceFor(f.patient.ID, now)
	require.NoError(t, err)
	assert.Zero(t, balance.Total())

	var payout credits.LedgerEntry
	require.NoError(t, f.db.First(&payout, "booking_id = ? AND kind = ?", b.ID, credits.EntryPayout).Error)
	assert.EqualValues(t, 8000, payout.AmountCents)
}

func TestAdminOverrideRefundsForfeiture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 1, now)
	slot := f.publishSlot(t, 2*time.Hour, now)
	b, err := f.svc.CreateBooking(ctx, f.patient.ID, slot.ID, now)
	require.NoError(t, err)

	force := true
	updated, err := f.svc.ChangeStatus(ctx, b.ID, booking.StatusCancelledByPatientOutOfWindow, booking.ActorAdmin,
		booking.Overrides{CreditReturn: &force}, now)
	require.NoError(t, err)
	assert.True(t, updated.CreditReturned)
	assert.False(t, updated.CreditForfeited)

	balance, err := f.ledger.BalanceFor(f.patient.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, balance.Total())

	var override credits.LedgerEntry
	require.NoError(t, f.db.First(&override, "booking_id = ? AND kind = ?", b.ID, credits.EntryAdminOverride).Error)
}

func TestOverridesRequireAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	force := true
	_, err := f.svc.ChangeStatus(ctx, uuid.New(), booking.StatusCancelled, booking.ActorPatient,
		booking.Overrides{Payout: &force}, now)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func TestInvalidTransitionLeavesEverythingUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 1, now)
	slot := f.publishSlot(t, 48*time.Hour, now)
	b, err := f.svc.CreateBooking(ctx, f.patient.ID, slot.ID, now)
	require.NoError(t, err)

	// a patient cannot declare their own session completed
	_, err = f.svc.ChangeStatus(ctx, b.ID, booking.StatusCompleted, booking.ActorPatient, booking.Overrides{}, now)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	var unchanged booking.Booking
	require.NoError(t, f.db.First(&unchanged, "id = ?", b.ID).Error)
	assert.Equal(t, booking.StatusScheduled, unchanged.Status)

	got, err := f.slots.Get(slot.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusReserved, got.Status)

	balance, err := f.ledger.BalanceFor(f.patient.ID, now)
	require.NoError(t, err)
	assert.Zero(t, balance.Total())
}

func TestRescheduleInWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 1, now)
	oldSlot := f.publishSlot(t, 48*time.Hour, now)
	newSlot := f.publishSlot(t, 72*time.Hour, now)

	b, err := f.svc.CreateBooking(ctx, f.patient.ID, oldSlot.ID, now)
	require.NoError(t, err)

	replacement, err := f.svc.Reschedule(ctx, b.ID, newSlot.ID, booking.ActorPatient, now)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusScheduled, replacement.Status)
	assert.Equal(t, newSlot.ID, replacement.SlotID)

	var old booking.Booking
	require.NoError(t, f.db.First(&old, "id = ?", b.ID).Error)
	assert.Equal(t, booking.StatusRescheduledByPatientInWindow, old.Status)

	// the returned credit paid for the replacement
	balance, err := f.ledger.BalanceFor(f.patient.ID, now)
	require.NoError(t, err)
	assert.Zero(t, balance.Total())

	released, err := f.slots.Get(oldSlot.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusAvailable, released.Status)
}

func TestRescheduleOutOfWindowNeedsFreshCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 1, now)
	oldSlot := f.publishSlot(t, 2*time.Hour, now)
	newSlot := f.publishSlot(t, 72*time.Hour, now)

	b, err := f.svc.CreateBooking(ctx, f.patient.ID, oldSlot.ID, now)
	require.NoError(t, err)

	// original credit is forfeited and there is nothing left to charge
	_, err = f.svc.Reschedule(ctx, b.ID, newSlot.ID, booking.ActorPatient, now)
	assert.ErrorIs(t, err, credits.ErrInsufficientCredit)

	// rollback left the old booking scheduled
	var old booking.Booking
	require.NoError(t, f.db.First(&old, "id = ?", b.ID).Error)
	assert.Equal(t, booking.StatusScheduled, old.Status)
}

func TestSessionLifecycleAutoComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 1, now)
	slot := f.publishSlot(t, 2*time.Hour, now)
	b, err := f.svc.CreateBooking(ctx, f.patient.ID, slot.ID, now)
	require.NoError(t, err)

	sessionTime := b.StartsAt.Add(5 * time.Minute)
	_, err = f.svc.ChangeStatus(ctx, b.ID, booking.StatusInProgress, booking.ActorPsychologist, booking.Overrides{}, sessionTime)
	require.NoError(t, err)

	after := b.StartsAt.Add(config.Sched.SessionWindow + time.Minute)
	done, err := f.svc.AutoComplete(ctx, after)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	var completed booking.Booking
	require.NoError(t, f.db.First(&completed, "id = ?", b.ID).Error)
	assert.Equal(t, booking.StatusCompleted, completed.Status)
	assert.True(t, completed.PayoutIssued)
}

func TestSessionCannotStartOutsideWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 1, now)
	slot := f.publishSlot(t, 7*24*time.Hour, now)
	b, err := f.svc.CreateBooking(ctx, f.patient.ID, slot.ID, now)
	require.NoError(t, err)

	// a week early
	_, err = f.svc.ChangeStatus(ctx, b.ID, booking.StatusInProgress, booking.ActorPsychologist, booking.Overrides{}, now)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	// well past the end
	late := b.StartsAt.Add(config.Sched.SessionWindow + time.Hour)
	_, err = f.svc.ChangeStatus(ctx, b.ID, booking.StatusInProgress, booking.ActorPsychologist, booking.Overrides{}, late)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	var got booking.Booking
	require.NoError(t, f.db.First(&got, "id = ?", b.ID).Error)
	assert.Equal(t, booking.StatusScheduled, got.Status)
}

func TestAutoCompleteMarksDoubleAbsence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 1, now)
	slot := f.publishSlot(t, 2*time.Hour, now)
	b, err := f.svc.CreateBooking(ctx, f.patient.ID, slot.ID, now)
	require.NoError(t, err)

	after := b.StartsAt.Add(config.Sched.SessionWindow + config.Sched.AbsenceGrace + time.Minute)
	done, err := f.svc.AutoComplete(ctx, after)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	var absent booking.Booking
	require.NoError(t, f.db.First(&absent, "id = ?", b.ID).Error)
	assert.Equal(t, booking.StatusBothNoShow, absent.Status)
	assert.True(t, absent.CreditReturned)
	assert.False(t, absent.PayoutIssued)
}

func TestProcessAbsence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 1, now)
	slot := f.publishSlot(t, 2*time.Hour, now)
	b, err := f.svc.CreateBooking(ctx, f.patient.ID, slot.ID, now)
	require.NoError(t, err)

	// too early: grace has not elapsed yet
	_, err = f.svc.ProcessAbsence(ctx, b.ID, users.RolePatient, b.StartsAt.Add(5*time.Minute))
	require.ErrorIs(t, err, booking.ErrInvalidTransition)

	after := b.StartsAt.Add(config.Sched.AbsenceGrace + time.Minute)
	updated, err := f.svc.ProcessAbsence(ctx, b.ID, users.RolePatient, after)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusSystemicCancellationPatientAbsent, updated.Status)

	// the patient pays for the missed session, the provider does not
	var absent booking.Booking
	require.NoError(t, f.db.First(&absent, "id = ?", b.ID).Error)
	assert.False(t, absent.CreditReturned)
	assert.True(t, absent.PayoutIssued)

	_, err = f.svc.ProcessAbsence(ctx, uuid.New(), users.RolePsychologist, after)
	require.ErrorIs(t, err, ErrBookingNotFound)
}

func TestDecommissionPsychologist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.grantCredits(t, 1, now)
	booked := f.publishSlot(t, 48*time.Hour, now)
	open := f.publishSlot(t, 72*time.Hour, now)

	b, err := f.svc.CreateBooking(ctx, f.patient.ID, booked.ID, now)
	require.NoError(t, err)

	cancelled, err := f.svc.DecommissionPsychologist(ctx, f.psych.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	var gone booking.Booking
	require.NoError(t, f.db.First(&gone, "id = ?", b.ID).Error)
	assert.Equal(t, booking.StatusPsychologistDecommissioned, gone.Status)
	assert.True(t, gone.CreditReturned)

	retired, err := f.slots.Get(open.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCancelled, retired.Status)

	// decommissioned providers accept no new bookings
	balance, _ := f.ledger.BalanceFor(f.patient.ID, now)
	require.Equal(t, 1, balance.Total())
}
