package credits

import (
	"time"

	"github.com/google/uuid"
)

// Cycle statuses.
const (
	CycleStatusPending   = "pending"
	CycleStatusActive    = "active"
	CycleStatusCancelled = "cancelled"
	CycleStatusExpired   = "expired"
)

// Standalone credit statuses.
const (
	CreditStatusActive   = "active"
	CreditStatusConsumed = "consumed"
	CreditStatusExpired  = "expired"
)

// SubscriptionCycle is one roughly month-long billing period granting a
// batch of appointment credits. At most one active cycle per subscription.
type SubscriptionCycle struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SubscriptionID  string    `gorm:"index" json:"subscription_id"`
	UserID          uint      `gorm:"index" json:"user_id"`
	CycleStart      time.Time `json:"cycle_start"`
	CycleEnd        time.Time `json:"cycle_end"`
	Status          string    `gorm:"default:'pending';index" json:"status"`
	CreditsAllotted int       `json:"credits_allotted"`
	CreditsUsed     int       `json:"credits_used"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Remaining is the unconsumed allocation of the cycle.
func (c *SubscriptionCycle) Remaining() int {
	return c.CreditsAllotted - c.CreditsUsed
}

// MonthlyCreditCounter is a per-cycle monthly snapshot of allocation vs.
// use. It exists so partial months after a mid-cycle plan switch can be
// prorated without recomputing from the booking history.
type MonthlyCreditCounter struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CycleID   uuid.UUID `gorm:"type:uuid;index:idx_counter_cycle_month,priority:1" json:"cycle_id"`
	Month     string    `gorm:"index:idx_counter_cycle_month,priority:2" json:"month"` // "2026-01"
	Available int       `json:"available"`
	Used      int       `json:"used"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StandaloneCredit is a one-off purchased entitlement not tied to a
// subscription. Quantity counts units; Remaining units expire together.
type StandaloneCredit struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Quantity  int       `json:"quantity"`
	Remaining int       `json:"remaining"`
	Status    string    `gorm:"default:'active';index" json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger entry kinds. The ledger is append-only: entries are written once
// and never updated or deleted.
const (
	EntryCharge        = "charge"
	EntryRefund        = "refund"
	EntryForfeit       = "forfeit"
	EntryPayout        = "payout"
	EntryPenalty       = "penalty"
	EntryGrant         = "grant"
	EntryExpiry        = "expiry"
	EntryAdminOverride = "admin_override"
)

// LedgerEntry is the immutable record of a financial or credit event.
type LedgerEntry struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uint       `gorm:"index" json:"user_id"`
	BookingID   *uuid.UUID `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	CycleID     *uuid.UUID `gorm:"type:uuid;index" json:"cycle_id,omitempty"`
	Kind        string     `gorm:"index" json:"kind"`
	SourceKind  string     `json:"source_kind,omitempty"`
	SourceID    *uuid.UUID `gorm:"type:uuid" json:"source_id,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Detail      string     `json:"detail,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
