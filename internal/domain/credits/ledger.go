package credits

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"booking-app/config"
)

var (
	// ErrInsufficientCredit means neither an active cycle nor a standalone
	// credit could cover the booking.
	ErrInsufficientCredit = errors.New("no appointment credit available")

	// ErrLedgerInconsistency means an invariant check failed inside a
	// ledger transaction. Processing for the affected user must stop and
	// the condition be investigated, never auto-corrected.
	ErrLedgerInconsistency = errors.New("credit ledger invariant violated")
)

// Source identifies which entitlement paid for a booking.
type Source struct {
	Kind string // booking.SourceCycle or booking.SourceStandalone
	ID   uuid.UUID
}

const (
	sourceCycle      = "cycle"
	sourceStandalone = "standalone"
)

// Ledger owns every mutation of a user's credit balance. Consumption,
// refund and forfeiture all run inside row-locked transactions so two
// concurrent bookings by the same user are strictly serialized.
type Ledger struct {
	db  *gorm.DB
	cfg config.Scheduling
}

func NewLedger(db *gorm.DB, cfg config.Scheduling) *Ledger {
	return &Ledger{db: db, cfg: cfg}
}

// Consume charges one credit for the booking, preferring the active cycle
// closest to expiry and falling back to the oldest standalone credit. The
// chosen source is recorded as a charge entry so the refund path can find
// its way back.
func (l *Ledger) Consume(tx *gorm.DB, userID uint, bookingID uuid.UUID, now time.Time) (Source, error) {
	var src Source

	var cycle SubscriptionCycle
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status = ? AND cycle_end > ? AND credits_used < credits_allotted", userID, CycleStatusActive, now).
		Order("cycle_end asc").
		First(&cycle).Error
	switch {
	case err == nil:
		if err := l.chargeCycle(tx, &cycle, now); err != nil {
			return src, err
		}
		src = Source{Kind: sourceCycle, ID: cycle.ID}
	case errors.Is(err, gorm.ErrRecordNotFound):
		credit, err := l.chargeStandalone(tx, userID, now)
		if err != nil {
			return src, err
		}
		src = Source{Kind: sourceStandalone, ID: credit.ID}
	default:
		return src, fmt.Errorf("select cycle: %w", err)
	}

	entry := LedgerEntry{
		UserID:     userID,
		BookingID:  &bookingID,
		Kind:       EntryCharge,
		SourceKind: src.Kind,
		SourceID:   &src.ID,
	}
	if src.Kind == sourceCycle {
		entry.CycleID = &src.ID
	}
	if err := tx.Create(&entry).Error; err != nil {
		return src, fmt.Errorf("write charge entry: %w", err)
	}
	return src, nil
}

func (l *Ledger) chargeCycle(tx *gorm.DB, cycle *SubscriptionCycle, now time.Time) error {
	if cycle.CreditsUsed >= cycle.CreditsAllotted {
		return ErrLedgerInconsistency
	}
	cycle.CreditsUsed++
	if err := tx.Model(cycle).Update("credits_used", cycle.CreditsUsed).Error; err != nil {
		return fmt.Errorf("debit cycle: %w", err)
	}
	return l.bumpCounter(tx, cycle, now, +1)
}

func (l *Ledger) chargeStandalone(tx *gorm.DB, userID uint, now time.Time) (*StandaloneCredit, error) {
	var credit StandaloneCredit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status = ? AND remaining > 0 AND expires_at > ?", userID, CreditStatusActive, now).
		Order("created_at asc").
		First(&credit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInsufficientCredit
	}
	if err != nil {
		return nil, fmt.Errorf("select standalone credit: %w", err)
	}

	credit.Remaining--
	if credit.Remaining < 0 {
		return nil, ErrLedgerInconsistency
	}
	updates := map[string]interface{}{"remaining": credit.Remaining}
	if credit.Remaining == 0 {
		updates["status"] = CreditStatusConsumed
	}
	if err := tx.Model(&credit).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("debit standalone credit: %w", err)
	}
	return &credit, nil
}

// Refund reverses the charge recorded for bookingID, returning the unit to
// the source it came from. Refunding an already refunded or forfeited
// booking is a no-op.
func (l *Ledger) Refund(tx *gorm.DB, bookingID uuid.UUID, now time.Time) error {
	charge, settled, err := l.chargeFor(tx, bookingID)
	if err != nil {
		return err
	}
	if charge == nil || settled {
		return nil
	}

	switch charge.SourceKind {
	case sourceCycle:
		var cycle SubscriptionCycle
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cycle, "id = ?", charge.SourceID).Error; err != nil {
			return fmt.Errorf("select cycle for refund: %w", err)
		}
		if cycle.CreditsUsed < 1 {
			return ErrLedgerInconsistency
		}
		if err := tx.Model(&cycle).Update("credits_used", cycle.CreditsUsed-1).Error; err != nil {
			return fmt.Errorf("credit cycle: %w", err)
		}
		if err := l.bumpCounter(tx, &cycle, now, -1); err != nil {
			return err
		}
	case sourceStandalone:
		var credit StandaloneCredit
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&credit, "id = ?", charge.SourceID).Error; err != nil {
			return fmt.Errorf("select standalone credit for refund: %w", err)
		}
		if credit.Remaining+1 > credit.Quantity {
			return ErrLedgerInconsistency
		}
		if err := tx.Model(&credit).Updates(map[string]interface{}{
			"remaining": credit.Remaining + 1,
			"status":    CreditStatusActive,
		}).Error; err != nil {
			return fmt.Errorf("credit standalone: %w", err)
		}
	default:
		return ErrLedgerInconsistency
	}

	entry := LedgerEntry{
		UserID:     charge.UserID,
		BookingID:  &bookingID,
		CycleID:    charge.CycleID,
		Kind:       EntryRefund,
		SourceKind: charge.SourceKind,
		SourceID:   charge.SourceID,
	}
	return tx.Create(&entry).Error
}

// Forfeit marks the consumed unit as permanently spent. The unit stays
// debited; only a ledger entry records the decision. Irreversible.
func (l *Ledger) Forfeit(tx *gorm.DB, bookingID uuid.UUID) error {
	charge, settled, err := l.chargeFor(tx, bookingID)
	if err != nil {
		return err
	}
	if charge == nil || settled {
		return nil
	}
	entry := LedgerEntry{
		UserID:     charge.UserID,
		BookingID:  &bookingID,
		CycleID:    charge.CycleID,
		Kind:       EntryForfeit,
		SourceKind: charge.SourceKind,
		SourceID:   charge.SourceID,
	}
	return tx.Create(&entry).Error
}

// chargeFor loads the charge entry for a booking and whether a refund or
// forfeit has already settled it.
func (l *Ledger) chargeFor(tx *gorm.DB, bookingID uuid.UUID) (*LedgerEntry, bool, error) {
	var entries []LedgerEntry
	err := tx.Where("booking_id = ? AND kind IN ?", bookingID, []string{EntryCharge, EntryRefund, EntryForfeit}).
		Order("created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, false, fmt.Errorf("load ledger entries: %w", err)
	}

	var charge *LedgerEntry
	settled := false
	for i := range entries {
		switch entries[i].Kind {
		case EntryCharge:
			charge = &entries[i]
		case EntryRefund, EntryForfeit:
			settled = true
		}
	}
	return charge, settled, nil
}

func (l *Ledger) bumpCounter(tx *gorm.DB, cycle *SubscriptionCycle, now time.Time, delta int) error {
	month := now.Format("2006-01")
	var counter MonthlyCreditCounter
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("cycle_id = ? AND month = ?", cycle.ID, month).
		First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		counter = MonthlyCreditCounter{
			CycleID:   cycle.ID,
			Month:     month,
			Available: cycle.CreditsAllotted,
		}
		if err := tx.Create(&counter).Error; err != nil {
			return fmt.Errorf("create monthly counter: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("select monthly counter: %w", err)
	}

	used := counter.Used + delta
	if used < 0 {
		used = 0
	}
	return tx.Model(&counter).Update("used", used).Error
}

// MonthlyUsage returns the per-month consumption snapshots recorded for a
// cycle, newest month first.
func (l *Ledger) MonthlyUsage(cycleID uuid.UUID) ([]MonthlyCreditCounter, error) {
	var counters []MonthlyCreditCounter
	err := l.db.Where("cycle_id = ?", cycleID).
		Order("month desc").
		Find(&counters).Error
	if err != nil {
		return nil, fmt.Errorf("list monthly counters: %w", err)
	}
	return counters, nil
}

// Balance is a point-in-time view of what the user can still book with.
type Balance struct {
	CycleRemaining      int `json:"cycle_remaining"`
	StandaloneRemaining int `json:"standalone_remaining"`
}

func (b Balance) Total() int { return b.CycleRemaining + b.StandaloneRemaining }

// BalanceFor sums remaining credits across active cycles and unexpired
// standalone credits.
func (l *Ledger) BalanceFor(userID uint, now time.Time) (Balance, error) {
	var b Balance

	var cycles []SubscriptionCycle
	err := l.db.Where("user_id = ? AND status = ? AND cycle_end > ?", userID, CycleStatusActive, now).
		Find(&cycles).Error
	if err != nil {
		return b, err
	}
	for _, c := range cycles {
		if r := c.Remaining(); r > 0 {
			b.CycleRemaining += r
		}
	}

	var standalone []StandaloneCredit
	err = l.db.Where("user_id = ? AND status = ? AND expires_at > ?", userID, CreditStatusActive, now).
		Find(&standalone).Error
	if err != nil {
		return b, err
	}
	for _, c := range standalone {
		b.StandaloneRemaining += c.Remaining
	}
	return b, nil
}
