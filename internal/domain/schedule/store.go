package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booking-app/config"
)

var (
	// ErrSlotConflict is returned when a reservation races another booking
	// or targets a slot that is no longer available.
	ErrSlotConflict = errors.New("slot is not available")

	ErrSlotNotFound  = errors.New("slot not found")
	ErrSlotInPast    = errors.New("slot start is in the past")
	ErrSlotDuplicate = errors.New("a slot already exists at this time")
	ErrBadTimeFormat = errors.New("time must be HH:MM")
)

// Store persists slots. All mutations go through guarded UPDATEs so two
// concurrent requests can never both win the same slot.
type Store struct {
	db  *gorm.DB
	cfg config.Scheduling
}

func NewStore(db *gorm.DB, cfg config.Scheduling) *Store {
	return &Store{db: db, cfg: cfg}
}

// Create publishes a single slot at date + "HH:MM" in the configured
// timezone. Duplicate starts for the same psychologist are rejected.
func (s *Store) Create(psychologistID uint, date time.Time, hhmm string, now time.Time) (*Slot, error) {
	start, err := CombineDateTime(date, hhmm, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	if !start.After(now) {
		return nil, ErrSlotInPast
	}

	var count int64
	s.db.Model(&Slot{}).
		Where("psychologist_id = ? AND starts_at = ? AND status <> ?", psychologistID, start, StatusCancelled).
		Count(&count)
	if count > 0 {
		return nil, ErrSlotDuplicate
	}

	slot := &Slot{
		PsychologistID: psychologistID,
		StartsAt:       start,
		EndsAt:         start.Add(s.cfg.SlotDuration),
		Status:         StatusAvailable,
	}
	if err := s.db.Create(slot).Error; err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	return slot, nil
}

// Reserve atomically flips an available slot to reserved. It is the only
// gate a booking passes through, so a lost race surfaces as ErrSlotConflict
// rather than a double booking.
func (s *Store) Reserve(tx *gorm.DB, slotID uuid.UUID, now time.Time) error {
	res := tx.Model(&Slot{}).
		Where("id = ? AND status = ?", slotID, StatusAvailable).
		Updates(map[string]interface{}{"status": StatusReserved, "reserved_at": now})
	if res.Error != nil {
		return fmt.Errorf("reserve slot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSlotConflict
	}
	return nil
}

// Release returns a reserved slot to the pool. Releasing a slot that is no
// longer reserved is a no-op, which keeps cancellation idempotent.
func (s *Store) Release(tx *gorm.DB, slotID uuid.UUID) error {
	res := tx.Model(&Slot{}).
		Where("id = ? AND status = ?", slotID, StatusReserved).
		Updates(map[string]interface{}{"status": StatusAvailable, "reserved_at": nil})
	if res.Error != nil {
		return fmt.Errorf("release slot: %w", res.Error)
	}
	return nil
}

// Block withdraws an available slot from the pool, keeping the reason for
// the owner's calendar.
func (s *Store) Block(slotID uuid.UUID, reason string) error {
	res := s.db.Model(&Slot{}).
		Where("id = ? AND status = ?", slotID, StatusAvailable).
		Updates(map[string]interface{}{"status": StatusBlocked, "block_reason": reason})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSlotConflict
	}
	return nil
}

func (s *Store) Unblock(slotID uuid.UUID) error {
	res := s.db.Model(&Slot{}).
		Where("id = ? AND status = ?", slotID, StatusBlocked).
		Updates(map[string]interface{}{"status": StatusAvailable, "block_reason": ""})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// Cancel retires a slot outright, e.g. when the psychologist cancels a
// booked session and the window should not be re-offered.
func (s *Store) Cancel(tx *gorm.DB, slotID uuid.UUID) error {
	return tx.Model(&Slot{}).
		Where("id = ?", slotID).
		Update("status", StatusCancelled).Error
}

func (s *Store) Get(slotID uuid.UUID) (*Slot, error) {
	var slot Slot
	if err := s.db.First(&slot, "id = ?", slotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &slot, nil
}

// ListAvailable returns bookable slots for a psychologist between from and
// to, honoring the minimum booking lead time. period optionally restricts
// to morning, afternoon or evening starts.
func (s *Store) ListAvailable(psychologistID uint, from, to time.Time, period string, now time.Time) ([]Slot, error) {
	earliest := now.Add(s.cfg.MinLead)
	if from.Before(earliest) {
		from = earliest
	}

	var slots []Slot
	err := s.db.
		Where("psychologist_id = ? AND status = ? AND starts_at >= ? AND starts_at < ?",
			psychologistID, StatusAvailable, from, to).
		Order("starts_at asc").
		Find(&slots).Error
	if err != nil {
		return nil, err
	}

	if period == "" {
		return slots, nil
	}
	filtered := slots[:0]
	for _, slot := range slots {
		if PeriodOf(slot.StartsAt.In(s.cfg.Location)) == period {
			filtered = append(filtered, slot)
		}
	}
	return filtered, nil
}

// ExpireStaleReservations frees slots whose reservation hold outlived the
// configured window with no live booking attached. Terminal bookings do
// not keep a hold alive; their transitions decide the slot's fate, so the
// subquery only counts pre-terminal ones.
func (s *Store) ExpireStaleReservations(now time.Time) (int64, error) {
	cutoff := now.Add(-s.cfg.ReservedHold)
	res := s.db.Model(&Slot{}).
		Where(`status = ? AND reserved_at < ? AND id NOT IN (
			SELECT slot_id FROM bookings
			WHERE slot_id IS NOT NULL AND status IN ('reserved', 'scheduled', 'in_progress'))`,
			StatusReserved, cutoff).
		Updates(map[string]interface{}{"status": StatusAvailable, "reserved_at": nil})
	return res.RowsAffected, res.Error
}

// CombineDateTime anchors an "HH:MM" wall-clock time onto date in loc.
func CombineDateTime(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, ErrBadTimeFormat
	}
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}
