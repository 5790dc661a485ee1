package bookings

import (
	"errors"
	"net/http"
	"time"

	"booking-app/database"
	"booking-app/internal/domain/booking"
	"booking-app/internal/domain/credits"
	"booking-app/internal/domain/schedule"
	"booking-app/internal/domain/users"
	"booking-app/internal/scheduling"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Service is wired in main before the routes are registered.
var Service *scheduling.Service

// POST /bookings
func CreateBooking(c *gin.Context) {
	var input struct {
		SlotID string `json:"slot_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slotID, err := uuid.Parse(input.SlotID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slot id"})
		return
	}

	patientID := c.GetUint("user_id")
	b, err := Service.CreateBooking(c.Request.Context(), patientID, slotID, time.Now().UTC())
	if err != nil {
		respondBookingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"booking_id": b.ID, "status": b.Status})
}

// PATCH /bookings/:id/status
func ChangeStatus(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking id"})
		return
	}

	var input struct {
		Status               string `json:"status" binding:"required"`
		OverridePayout       *bool  `json:"override_payout"`
		OverrideCreditReturn *bool  `json:"override_credit_return"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := actorFromRole(c.GetString("role"))
	ov := booking.Overrides{Payout: input.OverridePayout, CreditReturn: input.OverrideCreditReturn}

	if !participantOrAdmin(c, bookingID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your booking"})
		return
	}

	b, err := Service.ChangeStatus(c.Request.Context(), bookingID, booking.Status(input.Status), actor, ov, time.Now().UTC())
	if err != nil {
		respondBookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking_id": b.ID, "status": b.Status})
}

// POST /bookings/:id/reschedule
func Reschedule(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking id"})
		return
	}

	var input struct {
		NewSlotID string `json:"new_slot_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	newSlotID, err := uuid.Parse(input.NewSlotID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slot id"})
		return
	}

	if !participantOrAdmin(c, bookingID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your booking"})
		return
	}

	actor := actorFromRole(c.GetString("role"))
	replacement, err := Service.Reschedule(c.Request.Context(), bookingID, newSlotID, actor, time.Now().UTC())
	if err != nil {
		respondBookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking_id": replacement.ID, "status": replacement.Status, "starts_at": replacement.StartsAt})
}

// GET /bookings
// GET /bookings/:id
func GetBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking id"})
		return
	}
	if !participantOrAdmin(c, bookingID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your booking"})
		return
	}

	var b booking.Booking
	if err := database.DB.First(&b, "id = ?", bookingID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func ListMine(c *gin.Context) {
	userID := c.GetUint("user_id")
	role := c.GetString("role")

	ownerColumn := "patient_id"
	if role == users.RolePsychologist {
		ownerColumn = "psychologist_id"
	}

	var list []booking.Booking
	q := database.DB.Where(ownerColumn+" = ?", userID).Order("starts_at desc").Limit(100)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookings": list})
}

func actorFromRole(role string) booking.Actor {
	switch role {
	case users.RolePsychologist:
		return booking.ActorPsychologist
	case users.RoleAdmin:
		return booking.ActorAdmin
	default:
		return booking.ActorPatient
	}
}

func participantOrAdmin(c *gin.Context, bookingID uuid.UUID) bool {
	if c.GetString("role") == users.RoleAdmin {
		return true
	}
	var b booking.Booking
	if err := database.DB.First(&b, "id = ?", bookingID).Error; err != nil {
		// let the service produce the not-found response
		return true
	}
	userID := c.GetUint("user_id")
	return b.PatientID == userID || b.PsychologistID == userID
}

func respondBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, schedule.ErrSlotConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Slot is no longer available"})
	case errors.Is(err, credits.ErrInsufficientCredit):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "No appointment credit available"})
	case errors.Is(err, booking.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Status change not permitted from current state"})
	case errors.Is(err, scheduling.ErrBookingNotFound), errors.Is(err, schedule.ErrSlotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, credits.ErrLedgerInconsistency):
		// never leak invariant details to end users
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
