package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	reminderZSetKey = "booking_reminders"
	pollInterval    = 30 * time.Second
)

type reminderPayload struct {
	BookingID uuid.UUID `json:"booking_id"`
	Email     string    `json:"email"`
	StartsAt  time.Time `json:"starts_at"`
}

// ReminderQueue schedules session reminders in a Redis sorted set scored by
// delivery time. A background dispatcher drains due entries and emails the
// patient. Immediate status-change notices bypass the queue.
type ReminderQueue struct {
	client *redis.Client

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewReminderQueue(client *redis.Client) *ReminderQueue {
	return &ReminderQueue{
		client: client,
		stopCh: make(chan struct{}),
	}
}

func (q *ReminderQueue) ScheduleReminder(ctx context.Context, bookingID uuid.UUID, email string, startsAt time.Time, remindAt time.Time) error {
	payload, err := json.Marshal(reminderPayload{BookingID: bookingID, Email: email, StartsAt: startsAt})
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, reminderZSetKey, redis.Z{
		Score:  float64(remindAt.Unix()),
		Member: string(payload),
	}).Err()
}

func (q *ReminderQueue) NotifyStatusChange(_ context.Context, bookingID uuid.UUID, email string, status string) error {
	subject := "Your appointment status changed"
	body := fmt.Sprintf("Your appointment %s is now: %s", bookingID, status)
	return SendMail(email, subject, body)
}

// Start launches the dispatcher loop.
func (q *ReminderQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-q.stopCh:
				return
			case <-ticker.C:
				q.dispatchDue(context.Background(), time.Now())
			}
		}
	}()
}

// Stop shuts the dispatcher down and waits for in-flight deliveries.
func (q *ReminderQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *ReminderQueue) dispatchDue(ctx context.Context, now time.Time) {
	members, err := q.client.ZRangeByScore(ctx, reminderZSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		log.Println("reminder queue poll failed:", err)
		return
	}

	for _, member := range members {
		// claim before sending so a second instance does not double-send
		removed, err := q.client.ZRem(ctx, reminderZSetKey, member).Result()
		if err != nil || removed == 0 {
			continue
		}

		var p reminderPayload
		if err := json.Unmarshal([]byte(member), &p); err != nil {
			log.Println("dropping malformed reminder:", err)
			continue
		}

		subject := "Reminder: your session is coming up"
		body := fmt.Sprintf("Your session starts at %s.", p.StartsAt.Format("2006-01-02 15:04"))
		if err := SendMail(p.Email, subject, body); err != nil {
			log.Println("reminder delivery failed for booking", p.BookingID, ":", err)
		}
	}
}
