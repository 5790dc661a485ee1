package schedule

import (
	"time"

	"github.com/google/uuid"
)

// WeeklyAvailability is a recurring working window a psychologist keeps
// open on a given weekday. Daily slot generation expands these windows
// into concrete slots.
type WeeklyAvailability struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PsychologistID uint      `gorm:"index" json:"psychologist_id"`
	Weekday        int       `json:"weekday"` // 0 = Sunday
	StartTime      string    `json:"start_time"` // "HH:MM"
	EndTime        string    `json:"end_time"`
	Active         bool      `gorm:"default:true" json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
