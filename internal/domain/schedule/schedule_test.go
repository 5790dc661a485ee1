package schedule

import (
	"os"
	"sync"
	"testing"
	"time"

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
	require.NoError(t, db.AutoMigrate(&Slot{}, &WeeklyAvailability{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM slots")
		db.Exec("DELETE FROM weekly_availabilities")
	})
	return db
}

func init() {
	config.Sched = config.Scheduling{
		SlotDuration:       50 * time.Minute,
		BufferBetweenSlots: 10 * time.Minute,
		MinLead:            time.Hour,
		ReservedHold:       15 * time.Minute,
		GenerationHorizon:  30,
		Location:           time.UTC,
	}
}

func TestPeriodOf(t *testing.T) {
	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, PeriodMorning, PeriodOf(day.Add(8*time.Hour)))
	assert.Equal(t, PeriodMorning, PeriodOf(day.Add(11*time.Hour+59*time.Minute)))
	assert.Equal(t, PeriodAfternoon, PeriodOf(day.Add(12*time.Hour)))
	assert.Equal(t, PeriodAfternoon, PeriodOf(day.Add(17*time.Hour)))
	assert.Equal(t, PeriodEvening, PeriodOf(day.Add(18*time.Hour)))
	assert.Equal(t, PeriodEvening, PeriodOf(day.Add(22*time.Hour)))
}

func TestCombineDateTime(t *testing.T) {
	date := time.Date(2026, time.March, 2, 23, 50, 0, 0, time.UTC)

	got, err := CombineDateTime(date, "14:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 2, 14, 30, 0, 0, time.UTC), got)

	_, err = CombineDateTime(date, "25:00", time.UTC)
	assert.ErrorIs(t, err, ErrBadTimeFormat)
	_, err = CombineDateTime(date, "2pm", time.UTC)
	assert.ErrorIs(t, err, ErrBadTimeFormat)
}

func TestCreateRejectsPastAndDuplicates(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, config.Sched)
	now := time.Now().UTC().Truncate(time.Minute)
	tomorrow := now.AddDate(0, 0, 1)

	_, err := store.Create(1, now.AddDate(0, 0, -1), "10:00", now)
	assert.ErrorIs(t, err, ErrSlotInPast)

	slot, err := store.Create(1, tomorrow, "10:00", now)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, slot.Status)
	assert.Equal(t, slot.StartsAt.Add(config.Sched.SlotDuration), slot.EndsAt)

	_, err = store.Create(1, tomorrow, "10:00", now)
	assert.ErrorIs(t, err, ErrSlotDuplicate)

	// another psychologist may publish the same window
	_, err = store.Create(2, tomorrow, "10:00", now)
	assert.NoError(t, err)
}

func TestReserveOnlyOneWinner(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, config.Sched)
	now := time.Now().UTC().Truncate(time.Minute)

	slot, err := store.Create(1, now.AddDate(0, 0, 1), "09:00", now)
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Reserve(db, slot.ID, now)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrSlotConflict)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestReleaseIsIdempotent(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, config.Sched)
	now := time.Now().UTC().Truncate(time.Minute)

	slot, err := store.Create(1, now.AddDate(0, 0, 1), "09:00", now)
	require.NoError(t, err)
	require.NoError(t, store.Reserve(db, slot.ID, now))

	require.NoError(t, store.Release(db, slot.ID))
	require.NoError(t, store.Release(db, slot.ID))

	got, err := store.Get(slot.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, got.Status)
}

func TestBlockAndUnblock(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, config.Sched)
	now := time.Now().UTC().Truncate(time.Minute)

	slot, err := store.Create(1, now.AddDate(0, 0, 1), "09:00", now)
	require.NoError(t, err)

	require.NoError(t, store.Block(slot.ID, "personal"))
	assert.ErrorIs(t, store.Reserve(db, slot.ID, now), ErrSlotConflict)
	assert.ErrorIs(t, store.Block(slot.ID, "again"), ErrSlotConflict)

	require.NoError(t, store.Unblock(slot.ID))
	assert.NoError(t, store.Reserve(db, slot.ID, now))
}

func TestListAvailableFiltersPeriodAndLead(t *testing.T) {
	db := testDB(t)
	store := NewStore(db, config.Sched)
	now := time.Now().UTC().Truncate(time.Minute)
	tomorrow := now.AddDate(0, 0, 1)

	morning, err := store.Create(1, tomorrow, "09:00", now)
	require.NoError(t, err)
	evening, err := store.Create(1, tomorrow, "19:00", now)
	require.NoError(t, err)

	all, err := store.ListAvailable(1, tomorrow.Truncate(24*time.Hour), tomorrow.AddDate(0, 0, 1), "", now)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := store.ListAvailable(1, tomorrow.Truncate(24*time.Hour), tomorrow.AddDate(0, 0, 1), PeriodEvening, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, evening.ID, got[0].ID)

	// slots inside the minimum lead window are not offered
	late, err := store.ListAvailable(1, time.Time{}, tomorrow.AddDate(0, 0, 1), "", morning.StartsAt.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, late, 1)
	assert.Equal(t, evening.ID, late[0].ID)
}

func TestGenerateDailyIsIdempotent(t *testing.T) {
	db := testDB(t)
	gen := NewGenerator(db, config.Sched)
	now := time.Now().UTC()
	target := now.AddDate(0, 0, config.Sched.GenerationHorizon)

	require.NoError(t, db.Create(&WeeklyAvailability{
		PsychologistID: 1,
		Weekday:        int(target.Weekday()),
		StartTime:      "09:00",
		EndTime:        "12:00",
		Active:         true,
	}).Error)

	created, err := gen.GenerateDaily(now)
	require.NoError(t, err)
	// 09:00, 10:00, 11:00 with a 50min session and 10min buffer
	assert.Equal(t, 3, created)

	again, err := gen.GenerateDaily(now)
	require.NoError(t, err)
	assert.Zero(t, again)
}
