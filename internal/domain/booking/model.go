package booking

import (
	"time"

	"github.com/google/uuid"
)

// Credit source kinds recorded on a booking.
const (
	SourceCycle      = "cycle"
	SourceStandalone = "standalone"
)

// Booking is a patient's reservation of a slot. Rows are never deleted:
// cancellations are terminal statuses, so the table doubles as the audit
// history of every appointment ever made.
type Booking struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SlotID         uuid.UUID `gorm:"type:uuid;index" json:"slot_id"`
	PatientID      uint      `gorm:"index" json:"patient_id"`
	PsychologistID uint      `gorm:"index" json:"psychologist_id"`
	StartsAt       time.Time `json:"starts_at"`
	Status         Status    `gorm:"type:varchar(64);index" json:"status"`

	// session price at booking time, so later payouts and penalties are
	// not affected by provider price changes
	PriceCents int64 `json:"price_cents"`

	// which entitlement paid for this booking
	CreditSourceKind string    `json:"credit_source_kind"`
	CreditSourceID   uuid.UUID `gorm:"type:uuid" json:"credit_source_id"`

	// side-effect flags, set exactly once by the orchestrator
	PayoutIssued    bool `json:"payout_issued"`
	CreditReturned  bool `json:"credit_returned"`
	CreditForfeited bool `json:"credit_forfeited"`

	// who drove the last transition
	StatusOrigin Actor `gorm:"type:varchar(16)" json:"status_origin"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InsideNoticeWindow reports whether now is still at least notice ahead of
// the appointment, i.e. a cancellation carries no penalty.
func (b *Booking) InsideNoticeWindow(now time.Time, notice time.Duration) bool {
	return now.Before(b.StartsAt.Add(-notice))
}
