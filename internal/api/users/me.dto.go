package users

import (
	"time"

	"github.com/google/uuid"
)

type UserDTO struct {
	ID         uint    `json:"id"`
	Email      string  `json:"email"`
	Name       string  `json:"name"`
	Lastname   string  `json:"lastname"`
	Tel        *string `json:"tel,omitempty"`
	Role       string  `json:"role"`
	IsVerified bool    `json:"is_verified"`
}

type CreditsDTO struct {
	CycleRemaining      int `json:"cycle_remaining"`
	StandaloneRemaining int `json:"standalone_remaining"`
	Total               int `json:"total"`
}

type CycleDTO struct {
	ID              uuid.UUID `json:"id"`
	CycleStart      time.Time `json:"cycle_start"`
	CycleEnd        time.Time `json:"cycle_end"`
	CreditsAllotted int       `json:"credits_allotted"`
	CreditsUsed     int       `json:"credits_used"`
}

type UpcomingBookingDTO struct {
	ID       uuid.UUID `json:"id"`
	StartsAt time.Time `json:"starts_at"`
	Status   string    `json:"status"`
}

type SubscriptionDTO struct {
	Status           string     `json:"status"`
	PlanID           *uint      `json:"plan_id,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
}

type MeResponse struct {
	User         UserDTO              `json:"user"`
	Subscription SubscriptionDTO      `json:"subscription"`
	Credits      CreditsDTO           `json:"credits"`
	Cycle        *CycleDTO            `json:"cycle,omitempty"`
	Upcoming     []UpcomingBookingDTO `json:"upcoming"`
}
