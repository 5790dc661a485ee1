package credits

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booking-app/internal/domain/plans"
)

// CreatePendingCycle stages the next cycle for a subscription before its
// payment is confirmed. Activation happens when the payment event arrives.
func (l *Ledger) CreatePendingCycle(subscriptionID string, userID uint, start time.Time, allotted int) (*SubscriptionCycle, error) {
	cycle := &SubscriptionCycle{
		SubscriptionID:  subscriptionID,
		UserID:          userID,
		CycleStart:      start,
		CycleEnd:        plans.CycleEnd(start),
		Status:          CycleStatusPending,
		CreditsAllotted: allotted,
	}
	if err := l.db.Create(cycle).Error; err != nil {
		return nil, fmt.Errorf("create pending cycle: %w", err)
	}
	return cycle, nil
}

// ActivateCycle flips a pending cycle active and retires any previous
// active cycle of the same subscription. Called from the payment webhook.
func (l *Ledger) ActivateCycle(cycleID uuid.UUID) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		var cycle SubscriptionCycle
		if err := tx.First(&cycle, "id = ?", cycleID).Error; err != nil {
			return fmt.Errorf("load cycle: %w", err)
		}
		if cycle.Status == CycleStatusActive {
			return nil
		}
		if cycle.Status != CycleStatusPending {
			return fmt.Errorf("cycle %s is %s, cannot activate", cycle.ID, cycle.Status)
		}

		err := tx.Model(&SubscriptionCycle{}).
			Where("subscription_id = ? AND status = ? AND id <> ?", cycle.SubscriptionID, CycleStatusActive, cycle.ID).
			Update("status", CycleStatusExpired).Error
		if err != nil {
			return fmt.Errorf("retire previous cycle: %w", err)
		}
		if err := tx.Model(&cycle).Update("status", CycleStatusActive).Error; err != nil {
			return err
		}

		entry := LedgerEntry{
			UserID:  cycle.UserID,
			CycleID: &cycle.ID,
			Kind:    EntryGrant,
			Detail:  fmt.Sprintf("cycle activated with %d credits", cycle.CreditsAllotted),
		}
		return tx.Create(&entry).Error
	})
}

// RenewCycle starts the next period of an active subscription: the current
// cycle expires and a fresh active one begins at its end date.
func (l *Ledger) RenewCycle(subscriptionID string, allotted int, now time.Time) (*SubscriptionCycle, error) {
	var next *SubscriptionCycle
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var current SubscriptionCycle
		err := tx.Where("subscription_id = ? AND status = ?", subscriptionID, CycleStatusActive).
			Order("cycle_end desc").
			First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("subscription %s has no active cycle to renew", subscriptionID)
		}
		if err != nil {
			return fmt.Errorf("load current cycle: %w", err)
		}

		start := current.CycleEnd
		if start.Before(now) {
			start = now
		}
		if upd := tx.Model(&current).Update("status", CycleStatusExpired); upd.Error != nil {
			return upd.Error
		}

		next = &SubscriptionCycle{
			SubscriptionID:  subscriptionID,
			UserID:          current.UserID,
			CycleStart:      start,
			CycleEnd:        plans.CycleEnd(start),
			Status:          CycleStatusActive,
			CreditsAllotted: allotted,
		}
		if err := tx.Create(next).Error; err != nil {
			return fmt.Errorf("create renewal cycle: %w", err)
		}

		entry := LedgerEntry{
			UserID:  next.UserID,
			CycleID: &next.ID,
			Kind:    EntryGrant,
			Detail:  fmt.Sprintf("cycle renewed with %d credits", allotted),
		}
		return tx.Create(&entry).Error
	})
	return next, err
}

// CancelCycles marks every open cycle of a subscription cancelled. Credits
// already consumed stay consumed.
func (l *Ledger) CancelCycles(subscriptionID string) error {
	return l.db.Model(&SubscriptionCycle{}).
		Where("subscription_id = ? AND status IN ?", subscriptionID, []string{CycleStatusPending, CycleStatusActive}).
		Update("status", CycleStatusCancelled).Error
}

// GrantStandalone issues qty one-off credits valid for the configured
// number of days.
func (l *Ledger) GrantStandalone(userID uint, qty int, now time.Time) (*StandaloneCredit, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("standalone grant quantity must be positive, got %d", qty)
	}
	credit := &StandaloneCredit{
		UserID:    userID,
		Quantity:  qty,
		Remaining: qty,
		Status:    CreditStatusActive,
		ExpiresAt: now.AddDate(0, 0, l.cfg.CreditValidityDays),
	}
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(credit).Error; err != nil {
			return err
		}
		entry := LedgerEntry{
			UserID:     userID,
			Kind:       EntryGrant,
			SourceKind: sourceStandalone,
			SourceID:   &credit.ID,
			Detail:     fmt.Sprintf("%d standalone credits granted", qty),
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, fmt.Errorf("grant standalone credit: %w", err)
	}
	return credit, nil
}

// ExpireStandalone retires standalone credits past their validity and
// writes an expiry entry for each. Returns how many were expired.
func (l *Ledger) ExpireStandalone(now time.Time) (int, error) {
	expired := 0
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var stale []StandaloneCredit
		err := tx.Where("status = ? AND expires_at <= ?", CreditStatusActive, now).
			Find(&stale).Error
		if err != nil {
			return err
		}
		for _, credit := range stale {
			if err := tx.Model(&credit).Update("status", CreditStatusExpired).Error; err != nil {
				return err
			}
			entry := LedgerEntry{
				UserID:     credit.UserID,
				Kind:       EntryExpiry,
				SourceKind: sourceStandalone,
				SourceID:   &credit.ID,
				Detail:     fmt.Sprintf("%d unused credits expired", credit.Remaining),
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	return expired, err
}

// RecordEvent appends a financial event entry (payout, penalty, admin
// override) tied to a booking.
func (l *Ledger) RecordEvent(tx *gorm.DB, userID uint, bookingID uuid.UUID, kind string, amountCents int64, detail string) error {
	entry := LedgerEntry{
		UserID:      userID,
		BookingID:   &bookingID,
		Kind:        kind,
		AmountCents: amountCents,
		Detail:      detail,
	}
	return tx.Create(&entry).Error
}

// EntriesFor returns the append-only history for a user, newest first.
func (l *Ledger) EntriesFor(userID uint, limit int) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	q := l.db.Where("user_id = ?", userID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}
