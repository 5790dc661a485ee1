package slots

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"booking-app/config"
	"booking-app/database"
	"booking-app/internal/domain/schedule"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GET /psychologists/:id/slots?from=2026-03-01&to=2026-03-08&period=morning
func ListAvailable(c *gin.Context) {
	psychID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid psychologist id"})
		return
	}

	now := time.Now().UTC()
	from := now
	to := now.AddDate(0, 0, 14)
	if v := c.Query("from"); v != "" {
		if from, err = time.ParseInLocation("2006-01-02", v, config.Sched.Location); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.ParseInLocation("2006-01-02", v, config.Sched.Location); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date"})
			return
		}
		to = to.AddDate(0, 0, 1)
	}

	period := c.Query("period")
	switch period {
	case "", schedule.PeriodMorning, schedule.PeriodAfternoon, schedule.PeriodEvening:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period"})
		return
	}

	store := schedule.NewStore(database.DB, config.Sched)
	list, err := store.ListAvailable(uint(psychID), from, to, period, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load slots"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"slots": list})
}

// POST /slots  (psychologist publishes a single slot)
func CreateSlot(c *gin.Context) {
	var input struct {
		Date string `json:"date" binding:"required"` // "2026-03-02"
		Time string `json:"time" binding:"required"` // "14:00"
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	date, err := time.ParseInLocation("2006-01-02", input.Date, config.Sched.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
		return
	}

	store := schedule.NewStore(database.DB, config.Sched)
	slot, err := store.Create(c.GetUint("user_id"), date, input.Time, time.Now().UTC())
	if err != nil {
		respondSlotError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"slot": slot})
}

// POST /slots/:id/block
func BlockSlot(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slot id"})
		return
	}

	var input struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&input)

	if !ownsSlotOrAdmin(c, slotID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your slot"})
		return
	}

	store := schedule.NewStore(database.DB, config.Sched)
	if err := store.Block(slotID, input.Reason); err != nil {
		respondSlotError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Slot blocked"})
}

// POST /slots/:id/unblock
func UnblockSlot(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slot id"})
		return
	}

	if !ownsSlotOrAdmin(c, slotID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your slot"})
		return
	}

	store := schedule.NewStore(database.DB, config.Sched)
	if err := store.Unblock(slotID); err != nil {
		respondSlotError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Slot unblocked"})
}

// GET /availability  /  PUT /availability (psychologist weekly windows)
func GetAvailability(c *gin.Context) {
	var windows []schedule.WeeklyAvailability
	err := database.DB.Where("psychologist_id = ?", c.GetUint("user_id")).
		Order("weekday asc, start_time asc").
		Find(&windows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load availability"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"availability": windows})
}

func PutAvailability(c *gin.Context) {
	var input struct {
		Windows []struct {
			Weekday   int    `json:"weekday"`
			StartTime string `json:"start_time" binding:"required"`
			EndTime   string `json:"end_time" binding:"required"`
		} `json:"windows" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, w := range input.Windows {
		if w.Weekday < 0 || w.Weekday > 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Weekday must be 0..6"})
			return
		}
		if _, err := time.Parse("15:04", w.StartTime); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Start time must be HH:MM"})
			return
		}
		if _, err := time.Parse("15:04", w.EndTime); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "End time must be HH:MM"})
			return
		}
	}

	userID := c.GetUint("user_id")
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("psychologist_id = ?", userID).Delete(&schedule.WeeklyAvailability{}).Error; err != nil {
			return err
		}
		for _, w := range input.Windows {
			window := schedule.WeeklyAvailability{
				PsychologistID: userID,
				Weekday:        w.Weekday,
				StartTime:      w.StartTime,
				EndTime:        w.EndTime,
				Active:         true,
			}
			if err := tx.Create(&window).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save availability"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Availability updated"})
}

func ownsSlotOrAdmin(c *gin.Context, slotID uuid.UUID) bool {
	if c.GetString("role") == "admin" {
		return true
	}
	var slot schedule.Slot
	if err := database.DB.First(&slot, "id = ?", slotID).Error; err != nil {
		return true
	}
	return slot.PsychologistID == c.GetUint("user_id")
}

func respondSlotError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, schedule.ErrBadTimeFormat), errors.Is(err, schedule.ErrSlotInPast):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, schedule.ErrSlotDuplicate), errors.Is(err, schedule.ErrSlotConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, schedule.ErrSlotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Slot not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
