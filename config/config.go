package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	PORT       string
	DB_URL     string
	JWT_SECRET string
	REDIS_ADDR string

	GOOGLE_CLIENT_ID         string
	GOOGLE_CLIENT_SECRET     string
	GOOGLE_REDIRECT_URL      string
	GOOGLE_FRONTEND_REDIRECT string

	Sched Scheduling
)

// Scheduling holds the immutable scheduling parameters. It is built once at
// startup and passed by value into every component that needs it, so the
// engine stays testable without a live config source.
type Scheduling struct {
	SlotDuration       time.Duration
	BufferBetweenSlots time.Duration
	MinLead            time.Duration
	MaxLead            time.Duration
	CancellationNotice time.Duration
	ReminderLead       time.Duration
	SessionWindow      time.Duration // how long a booking may sit InProgress
	ReservedHold       time.Duration // how long an unconfirmed reservation is held
	AbsenceGrace       time.Duration // wait after start before absence counts
	CreditValidityDays int           // standalone credit lifetime
	GenerationHorizon  int           // days of slots the daily job materializes
	AutoGenerationTime string        // "HH:MM", local time of the daily job
	PenaltyRatePercent int           // plan switch penalty rate
	PenaltyGraceDays   int           // regret window with no penalty
	DefaultTimezone    string
	Location           *time.Location
}

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	PORT = getEnv("PORT", "8080")
	DB_URL = mustEnv("DB_URL")
	JWT_SECRET = mustEnv("JWT_SECRET")
	REDIS_ADDR = getEnv("REDIS_ADDR", "localhost:6379")

	GOOGLE_CLIENT_ID = mustEnv("GOOGLE_CLIENT_ID")
	GOOGLE_CLIENT_SECRET = mustEnv("GOOGLE_CLIENT_SECRET")
	GOOGLE_REDIRECT_URL = mustEnv("GOOGLE_REDIRECT_URL")
	GOOGLE_FRONTEND_REDIRECT = getEnv("GOOGLE_FRONTEND_REDIRECT", "")

	sched, err := LoadScheduling()
	if err != nil {
		log.Fatalf("Invalid scheduling configuration: %v", err)
	}
	Sched = sched
}

// LoadScheduling parses the scheduling parameters from the environment.
// A malformed value is a startup error, never a silent fallback.
func LoadScheduling() (Scheduling, error) {
	s := Scheduling{
		AutoGenerationTime: getEnv("AUTO_GENERATION_TIME", "05:00"),
		DefaultTimezone:    getEnv("DEFAULT_TIMEZONE", "America/Sao_Paulo"),
	}

	var err error
	if s.SlotDuration, err = envMinutes("SLOT_DURATION_MIN", 50); err != nil {
		return s, err
	}
	if s.BufferBetweenSlots, err = envMinutes("BUFFER_BETWEEN_SLOTS_MIN", 10); err != nil {
		return s, err
	}
	if s.MinLead, err = envHours("MIN_LEAD_HOURS", 1); err != nil {
		return s, err
	}
	if s.MaxLead, err = envHours("MAX_LEAD_HOURS", 24*60); err != nil {
		return s, err
	}
	if s.CancellationNotice, err = envHours("CANCELLATION_NOTICE_HOURS", 24); err != nil {
		return s, err
	}
	if s.ReminderLead, err = envMinutes("REMINDER_LEAD_MIN", 60); err != nil {
		return s, err
	}
	if s.SessionWindow, err = envMinutes("SESSION_WINDOW_MIN", 60); err != nil {
		return s, err
	}
	if s.ReservedHold, err = envMinutes("RESERVED_HOLD_MIN", 15); err != nil {
		return s, err
	}
	if s.AbsenceGrace, err = envMinutes("ABSENCE_GRACE_MIN", 10); err != nil {
		return s, err
	}
	if s.CreditValidityDays, err = envInt("CREDIT_VALIDITY_DAYS", 30); err != nil {
		return s, err
	}
	if s.GenerationHorizon, err = envInt("GENERATION_HORIZON_DAYS", 30); err != nil {
		return s, err
	}
	if s.PenaltyRatePercent, err = envInt("PLAN_SWITCH_PENALTY_PERCENT", 20); err != nil {
		return s, err
	}
	if s.PenaltyGraceDays, err = envInt("PLAN_SWITCH_GRACE_DAYS", 7); err != nil {
		return s, err
	}

	if err := s.Validate(); err != nil {
		return s, err
	}

	s.Location, err = time.LoadLocation(s.DefaultTimezone)
	if err != nil {
		return s, &ValidationError{Field: "DEFAULT_TIMEZONE", Reason: err.Error()}
	}
	return s, nil
}

// ValidationError reports a malformed scheduling parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "scheduling config: " + e.Field + ": " + e.Reason
}

func (s Scheduling) Validate() error {
	switch {
	case s.SlotDuration <= 0:
		return &ValidationError{Field: "SLOT_DURATION_MIN", Reason: "must be positive"}
	case s.BufferBetweenSlots < 0:
		return &ValidationError{Field: "BUFFER_BETWEEN_SLOTS_MIN", Reason: "must not be negative"}
	case s.MinLead < 0:
		return &ValidationError{Field: "MIN_LEAD_HOURS", Reason: "must not be negative"}
	case s.MaxLead <= s.MinLead:
		return &ValidationError{Field: "MAX_LEAD_HOURS", Reason: "must exceed MIN_LEAD_HOURS"}
	case s.CancellationNotice <= 0:
		return &ValidationError{Field: "CANCELLATION_NOTICE_HOURS", Reason: "must be positive"}
	case s.ReminderLead < 0:
		return &ValidationError{Field: "REMINDER_LEAD_MIN", Reason: "must not be negative"}
	case s.SessionWindow <= 0:
		return &ValidationError{Field: "SESSION_WINDOW_MIN", Reason: "must be positive"}
	case s.ReservedHold <= 0:
		return &ValidationError{Field: "RESERVED_HOLD_MIN", Reason: "must be positive"}
	case s.CreditValidityDays <= 0:
		return &ValidationError{Field: "CREDIT_VALIDITY_DAYS", Reason: "must be positive"}
	case s.GenerationHorizon <= 0:
		return &ValidationError{Field: "GENERATION_HORIZON_DAYS", Reason: "must be positive"}
	case s.PenaltyRatePercent < 0 || s.PenaltyRatePercent > 100:
		return &ValidationError{Field: "PLAN_SWITCH_PENALTY_PERCENT", Reason: "must be between 0 and 100"}
	case s.PenaltyGraceDays < 0:
		return &ValidationError{Field: "PLAN_SWITCH_GRACE_DAYS", Reason: "must not be negative"}
	}
	if _, err := time.Parse("15:04", s.AutoGenerationTime); err != nil {
		return &ValidationError{Field: "AUTO_GENERATION_TIME", Reason: "must be HH:MM"}
	}
	return nil
}

func mustEnv(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("Missing required environment variable: %s", key)
	}
	return v
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ValidationError{Field: key, Reason: "not an integer"}
	}
	return n, nil
}

func envMinutes(key string, fallback int) (time.Duration, error) {
	n, err := envInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Minute, nil
}

func envHours(key string, fallback int) (time.Duration, error) {
	n, err := envInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Hour, nil
}
