package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"booking-app/config"
	"booking-app/internal/domain/booking"
	"booking-app/internal/domain/credits"
	"booking-app/internal/domain/schedule"
	"booking-app/internal/domain/users"
	"booking-app/internal/notify"
)

var ErrBookingNotFound = errors.New("booking not found")

// Service orchestrates slot reservation, credit consumption and booking
// state transitions. It is stateless; every operation runs in its own
// database transaction and is safe under concurrent invocation.
type Service struct {
	db       *gorm.DB
	slots    *schedule.Store
	ledger   *credits.Ledger
	notifier notify.Notifier
	cfg      config.Scheduling
}

func NewService(db *gorm.DB, slots *schedule.Store, ledger *credits.Ledger, notifier notify.Notifier, cfg config.Scheduling) *Service {
	return &Service{db: db, slots: slots, ledger: ledger, notifier: notifier, cfg: cfg}
}

// CreateBooking holds the slot, charges one credit and schedules the
// session. The hold commits first as a Reserved booking; confirmation
// runs in a second transaction, and any failure there is compensated by
// cancelling the hold, so a lost credit race hands the slot back. A crash
// between the two phases leaves a Reserved booking for ExpireUnconfirmed
// to reclaim.
func (s *Service) CreateBooking(ctx context.Context, patientID uint, slotID uuid.UUID, now time.Time) (*booking.Booking, error) {
	var b *booking.Booking
	var patient users.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&patient, "id = ?", patientID).Error; err != nil {
			return fmt.Errorf("load patient: %w", err)
		}

		if err := s.slots.Reserve(tx, slotID, now); err != nil {
			return err
		}

		var slot schedule.Slot
		if err := tx.First(&slot, "id = ?", slotID).Error; err != nil {
			return fmt.Errorf("load slot: %w", err)
		}
		if !slot.StartsAt.After(now.Add(s.cfg.MinLead)) {
			return schedule.ErrSlotConflict
		}
		if slot.StartsAt.After(now.Add(s.cfg.MaxLead)) {
			return schedule.ErrSlotConflict
		}

		var provider users.User
		if err := tx.First(&provider, "id = ?", slot.PsychologistID).Error; err != nil {
			return fmt.Errorf("load psychologist: %w", err)
		}
		if provider.Decommissioned {
			return schedule.ErrSlotConflict
		}

		b = &booking.Booking{
			SlotID:         slot.ID,
			PatientID:      patientID,
			PsychologistID: slot.PsychologistID,
			StartsAt:       slot.StartsAt,
			Status:         booking.StatusReserved,
			PriceCents:     provider.SessionPriceCents,
			StatusOrigin:   booking.ActorPatient,
		}
		if err := tx.Create(b).Error; err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		src, err := s.ledger.Consume(tx, patientID, b.ID, now)
		if err != nil {
			return err
		}
		next, _, err := booking.Decide(booking.StatusReserved, booking.StatusScheduled, booking.ActorSystem, true)
		if err != nil {
			return err
		}
		return tx.Model(b).Updates(map[string]interface{}{
			"status":             next,
			"credit_source_kind": src.Kind,
			"credit_source_id":   src.ID,
		}).Error
	})
	if err != nil {
		if _, cerr := s.ChangeStatus(ctx, b.ID, booking.StatusCancelled, booking.ActorSystem, booking.Overrides{}, now); cerr != nil {
			log.Println("could not cancel unconfirmed booking", b.ID, ":", cerr)
		}
		return nil, err
	}
	b.Status = booking.StatusScheduled

	remindAt := b.StartsAt.Add(-s.cfg.ReminderLead)
	if err := s.notifier.ScheduleReminder(ctx, b.ID, patient.Email, b.StartsAt, remindAt); err != nil {
		log.Println("could not schedule reminder for booking", b.ID, ":", err)
	}
	return b, nil
}

// ChangeStatus runs one transition through the policy table and applies
// its side effects atomically. Admin override flags replace the computed
// payout and credit decisions and are recorded as their own ledger event.
func (s *Service) ChangeStatus(ctx context.Context, bookingID uuid.UUID, requested booking.Status, actor booking.Actor, ov booking.Overrides, now time.Time) (*booking.Booking, error) {
	if ov.Forced() && actor != booking.ActorAdmin {
		return nil, booking.ErrInvalidTransition
	}

	var b booking.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&b, "id = ?", bookingID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return fmt.Errorf("load booking: %w", err)
		}

		// a session can only be opened around its own start time
		if requested == booking.StatusInProgress {
			window := s.cfg.SessionWindow
			if now.Before(b.StartsAt.Add(-window)) || now.After(b.StartsAt.Add(window)) {
				return booking.ErrInvalidTransition
			}
		}

		inside := b.InsideNoticeWindow(now, s.cfg.CancellationNotice)
		next, eff, err := booking.Decide(b.Status, requested, actor, inside)
		if err != nil {
			return err
		}
		if ov.Forced() {
			eff = booking.ApplyOverrides(eff, ov)
		}
		return s.apply(tx, &b, next, eff, actor, ov, now)
	})
	if err != nil {
		return nil, err
	}

	s.notifyChange(ctx, &b)
	return &b, nil
}

// apply writes the transition outcome. Caller holds the booking row lock.
func (s *Service) apply(tx *gorm.DB, b *booking.Booking, next booking.Status, eff booking.Effects, actor booking.Actor, ov booking.Overrides, now time.Time) error {
	if eff.ReleaseSlot {
		if err := s.slots.Release(tx, b.SlotID); err != nil {
			return err
		}
	}
	if eff.CancelSlot {
		if err := s.slots.Cancel(tx, b.SlotID); err != nil {
			return err
		}
	}

	updates := map[string]interface{}{
		"status":        next,
		"status_origin": actor,
	}

	if eff.ReturnCredit && !b.CreditReturned && !b.CreditForfeited {
		if err := s.ledger.Refund(tx, b.ID, now); err != nil {
			return err
		}
		updates["credit_returned"] = true
		b.CreditReturned = true
	}
	if eff.ForfeitCredit && !b.CreditForfeited && !b.CreditReturned {
		if err := s.ledger.Forfeit(tx, b.ID); err != nil {
			return err
		}
		updates["credit_forfeited"] = true
		b.CreditForfeited = true
	}
	if eff.IssuePayout && !b.PayoutIssued {
		amount := s.payoutAmount(tx, b)
		if err := s.ledger.RecordEvent(tx, b.PsychologistID, b.ID, credits.EntryPayout, amount, "session payout"); err != nil {
			return err
		}
		updates["payout_issued"] = true
		b.PayoutIssued = true
	}
	if eff.IssuePenalty {
		amount := int64(s.cfg.PenaltyRatePercent) * b.PriceCents / 100
		if err := s.ledger.RecordEvent(tx, b.PsychologistID, b.ID, credits.EntryPenalty, amount, "late provider cancellation"); err != nil {
			return err
		}
	}
	if ov.Forced() {
		detail := fmt.Sprintf("administrator forced %s (payout=%v creditReturn=%v)", next, ov.Payout, ov.CreditReturn)
		if err := s.ledger.RecordEvent(tx, b.PatientID, b.ID, credits.EntryAdminOverride, 0, detail); err != nil {
			return err
		}
	}

	if err := tx.Model(b).Updates(updates).Error; err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	b.Status = next
	b.StatusOrigin = actor
	return nil
}

func (s *Service) payoutAmount(tx *gorm.DB, b *booking.Booking) int64 {
	var provider users.User
	if err := tx.First(&provider, "id = ?", b.PsychologistID).Error; err != nil {
		return 0
	}
	percent := provider.PayoutPercent
	if percent <= 0 {
		percent = 100 - s.cfg.PenaltyRatePercent
	}
	return b.PriceCents * int64(percent) / 100
}

func (s *Service) notifyChange(ctx context.Context, b *booking.Booking) {
	var patient users.User
	if err := s.db.First(&patient, "id = ?", b.PatientID).Error; err != nil {
		return
	}
	if err := s.notifier.NotifyStatusChange(ctx, b.ID, patient.Email, string(b.Status)); err != nil {
		log.Println("status notification failed for booking", b.ID, ":", err)
	}
}

// Reschedule transitions the old booking per the notice window and books
// the new slot in the same transaction. Out-of-window patient reschedules
// forfeit the original credit, so the new slot charges a fresh one.
func (s *Service) Reschedule(ctx context.Context, bookingID uuid.UUID, newSlotID uuid.UUID, actor booking.Actor, now time.Time) (*booking.Booking, error) {
	var replacement *booking.Booking

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old booking.Booking
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&old, "id = ?", bookingID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}

		requested := booking.StatusRescheduledByPatientInWindow
		if actor == booking.ActorPsychologist {
			requested = booking.StatusRescheduledByPsychologistInWindow
		}

		inside := old.InsideNoticeWindow(now, s.cfg.CancellationNotice)
		next, eff, err := booking.Decide(old.Status, requested, actor, inside)
		if err != nil {
			return err
		}
		if err := s.apply(tx, &old, next, eff, actor, booking.Overrides{}, now); err != nil {
			return err
		}

		if err := s.slots.Reserve(tx, newSlotID, now); err != nil {
			return err
		}
		var slot schedule.Slot
		if err := tx.First(&slot, "id = ?", newSlotID).Error; err != nil {
			return err
		}

		replacement = &booking.Booking{
			SlotID:         slot.ID,
			PatientID:      old.PatientID,
			PsychologistID: slot.PsychologistID,
			StartsAt:       slot.StartsAt,
			Status:         booking.StatusScheduled,
			PriceCents:     old.PriceCents,
			StatusOrigin:   actor,
		}
		if err := tx.Create(replacement).Error; err != nil {
			return err
		}

		src, err := s.ledger.Consume(tx, old.PatientID, replacement.ID, now)
		if err != nil {
			return err
		}
		return tx.Model(replacement).Updates(map[string]interface{}{
			"credit_source_kind": src.Kind,
			"credit_source_id":   src.ID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// AutoComplete closes out sessions whose window elapsed: InProgress becomes
// Completed with a payout, Scheduled sessions no one started become a
// double absence with the credit returned.
func (s *Service) AutoComplete(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.cfg.SessionWindow)

	var stale []booking.Booking
	err := s.db.WithContext(ctx).
		Where("status IN ? AND starts_at < ?", []booking.Status{booking.StatusInProgress, booking.StatusScheduled}, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	done := 0
	for _, b := range stale {
		target := booking.StatusCompleted
		if b.Status == booking.StatusScheduled {
			if now.Before(b.StartsAt.Add(s.cfg.SessionWindow + s.cfg.AbsenceGrace)) {
				continue
			}
			target = booking.StatusBothNoShow
		}
		if _, err := s.ChangeStatus(ctx, b.ID, target, booking.ActorSystem, booking.Overrides{}, now); err != nil {
			log.Println("auto-complete failed for booking", b.ID, ":", err)
			continue
		}
		done++
	}
	return done, nil
}

// ExpireUnconfirmed cancels Reserved bookings whose hold outlived the
// configured window, handing the slot back. Covers holds orphaned by a
// crash between reservation and confirmation.
func (s *Service) ExpireUnconfirmed(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.cfg.ReservedHold)

	var stale []booking.Booking
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", booking.StatusReserved, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, b := range stale {
		if _, err := s.ChangeStatus(ctx, b.ID, booking.StatusCancelled, booking.ActorSystem, booking.Overrides{}, now); err != nil {
			log.Println("hold expiry failed for booking", b.ID, ":", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// ProcessAbsence resolves a session where one side never appeared, mapping
// the missing role to the matching systemic cancellation. Rejected before
// the appointment start plus the absence grace has passed.
func (s *Service) ProcessAbsence(ctx context.Context, bookingID uuid.UUID, missingRole string, now time.Time) (*booking.Booking, error) {
	var target booking.Status
	switch missingRole {
	case users.RolePatient:
		target = booking.StatusSystemicCancellationPatientAbsent
	case users.RolePsychologist:
		target = booking.StatusSystemicCancellationPsychologistAbsent
	default:
		return nil, booking.ErrInvalidTransition
	}

	var b booking.Booking
	if err := s.db.WithContext(ctx).First(&b, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if now.Before(b.StartsAt.Add(s.cfg.AbsenceGrace)) {
		return nil, booking.ErrInvalidTransition
	}

	return s.ChangeStatus(ctx, bookingID, target, booking.ActorSystem, booking.Overrides{}, now)
}

// DecommissionPsychologist cancels every future booking of a provider and
// retires their open slots. Patients get their credits back.
func (s *Service) DecommissionPsychologist(ctx context.Context, psychologistID uint, now time.Time) (int, error) {
	var open []booking.Booking
	err := s.db.WithContext(ctx).
		Where("psychologist_id = ? AND status IN ? AND starts_at > ?",
			psychologistID, []booking.Status{booking.StatusScheduled, booking.StatusReserved}, now).
		Find(&open).Error
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, b := range open {
		if _, err := s.ChangeStatus(ctx, b.ID, booking.StatusPsychologistDecommissioned, booking.ActorSystem, booking.Overrides{}, now); err != nil {
			log.Println("decommission cancel failed for booking", b.ID, ":", err)
			continue
		}
		cancelled++
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&users.User{}).Where("id = ?", psychologistID).Update("decommissioned", true).Error; err != nil {
			return err
		}
		return tx.Model(&schedule.Slot{}).
			Where("psychologist_id = ? AND status IN ?", psychologistID, []string{schedule.StatusAvailable, schedule.StatusBlocked}).
			Update("status", schedule.StatusCancelled).Error
	})
	return cancelled, err
}
