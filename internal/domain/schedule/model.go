package schedule

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusBlocked   = "blocked"
	StatusCancelled = "cancelled"
)

// Slot is a bookable appointment window published by a psychologist.
type Slot struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PsychologistID uint      `gorm:"index:idx_slot_owner_start,priority:1" json:"psychologist_id"`
	StartsAt       time.Time `gorm:"index:idx_slot_owner_start,priority:2" json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	Status         string    `gorm:"default:'available';index" json:"status"`
	BlockReason    string    `json:"block_reason,omitempty"`
	ReservedAt     *time.Time `json:"reserved_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Period buckets used by availability listings.
const (
	PeriodMorning   = "morning"
	PeriodAfternoon = "afternoon"
	PeriodEvening   = "evening"
)

// PeriodOf classifies a slot start into morning (before 12h), afternoon
// (12h to 18h) or evening (18h onward), in the slot's own location.
func PeriodOf(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return PeriodMorning
	case h < 18:
		return PeriodAfternoon
	default:
		return PeriodEvening
	}
}
