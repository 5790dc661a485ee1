package users

import (
	"time"
)

// Roles used for actor attribution on booking transitions.
const (
	RolePatient      = "patient"
	RolePsychologist = "psychologist"
	RoleAdmin        = "admin"
)

type User struct {
	ID           uint `gorm:"primaryKey"`
	Name         string
	Lastname     string
	Tel          string
	Email        string  `gorm:"not null;uniqueIndex:idx_users_email"`
	Password     *string `gorm:""`
	AuthProvider string  `gorm:"type:varchar(20);not null;default:'local'"`
	GoogleSub    *string `gorm:"uniqueIndex:idx_users_google_sub"`
	Role         string  `gorm:"type:varchar(20);not null;default:'patient'"`
	IsVerified   bool

	// Psychologists only: share of the session value paid out to them,
	// in percent. Zero means "use the platform default".
	PayoutPercent int `gorm:"column:payout_percent"`
	// Psychologists only: price of one session in cents, captured on each
	// booking at creation time.
	SessionPriceCents int64 `gorm:"column:session_price_cents"`
	// Decommissioned providers stop receiving bookings.
	Decommissioned bool `gorm:"column:decommissioned"`

	PlanID               *uint
	PendingPlanID        *uint
	PendingPlanStartDate *time.Time
	StripeScheduleID     *string `gorm:"column:stripe_schedule_id"`

	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
	SubscriptionId    *string `gorm:"column:subscription_id;uniqueIndex:idx_users_subscription_id"`
	StripeCustomerID  *string `gorm:"column:stripe_customer_id;uniqueIndex:idx_users_stripe_customer_id"`

	StripeSubscriptionStatus *string    `gorm:"column:stripe_subscription_status"`
	CurrentPeriodEnd         *time.Time `gorm:"column:current_period_end"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) IsPatient() bool      { return u.Role == RolePatient }
func (u *User) IsPsychologist() bool { return u.Role == RolePsychologist }
func (u *User) IsAdmin() bool        { return u.Role == RoleAdmin }
