package schedule

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"booking-app/config"
)

// Generator expands weekly availability windows into concrete slots up to
// the generation horizon.
type Generator struct {
	db  *gorm.DB
	cfg config.Scheduling
}

func NewGenerator(db *gorm.DB, cfg config.Scheduling) *Generator {
	return &Generator{db: db, cfg: cfg}
}

// GenerateDaily creates the slots for the day exactly GenerationHorizon
// days ahead of now, for every active availability window. Already existing
// slots at the same start are left untouched, so the job is safe to rerun.
func (g *Generator) GenerateDaily(now time.Time) (int, error) {
	target := now.In(g.cfg.Location).AddDate(0, 0, g.cfg.GenerationHorizon)

	var windows []WeeklyAvailability
	err := g.db.
		Where("active = ? AND weekday = ?", true, int(target.Weekday())).
		Find(&windows).Error
	if err != nil {
		return 0, fmt.Errorf("load availability: %w", err)
	}

	created := 0
	for _, w := range windows {
		n, err := g.generateWindow(w, target)
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

func (g *Generator) generateWindow(w WeeklyAvailability, day time.Time) (int, error) {
	start, err := CombineDateTime(day, w.StartTime, g.cfg.Location)
	if err != nil {
		return 0, fmt.Errorf("availability %s start: %w", w.ID, err)
	}
	end, err := CombineDateTime(day, w.EndTime, g.cfg.Location)
	if err != nil {
		return 0, fmt.Errorf("availability %s end: %w", w.ID, err)
	}

	step := g.cfg.SlotDuration + g.cfg.BufferBetweenSlots
	created := 0
	for cursor := start; !cursor.Add(g.cfg.SlotDuration).After(end); cursor = cursor.Add(step) {
		var count int64
		g.db.Model(&Slot{}).
			Where("psychologist_id = ? AND starts_at = ? AND status <> ?", w.PsychologistID, cursor, StatusCancelled).
			Count(&count)
		if count > 0 {
			continue
		}
		slot := Slot{
			PsychologistID: w.PsychologistID,
			StartsAt:       cursor,
			EndsAt:         cursor.Add(g.cfg.SlotDuration),
			Status:         StatusAvailable,
		}
		if err := g.db.Create(&slot).Error; err != nil {
			return created, fmt.Errorf("create generated slot: %w", err)
		}
		created++
	}
	return created, nil
}
