package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notifier is how the scheduling engine reaches users. Implementations
// must be safe for concurrent use; failures are logged by callers and
// never block a booking operation.
type Notifier interface {
	ScheduleReminder(ctx context.Context, bookingID uuid.UUID, email string, startsAt time.Time, remindAt time.Time) error
	NotifyStatusChange(ctx context.Context, bookingID uuid.UUID, email string, status string) error
}

// Noop discards every notification. Used in tests and when no reminder
// backend is configured.
type Noop struct{}

func (Noop) ScheduleReminder(context.Context, uuid.UUID, string, time.Time, time.Time) error {
	return nil
}

func (Noop) NotifyStatusChange(context.Context, uuid.UUID, string, string) error {
	return nil
}
