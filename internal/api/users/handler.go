package users

import (
	"net/http"
	"time"

	"booking-app/config"
	"booking-app/database"
	"booking-app/internal/domain/booking"
	"booking-app/internal/domain/credits"
	"booking-app/internal/domain/users"
	stripeinfra "booking-app/internal/infra/stripe"

	"github.com/gin-gonic/gin"
)

func GetCurrentUser(c *gin.Context) {
	email := c.GetString("email")
	if email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var user users.User
	if err := database.DB.Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	now := time.Now().UTC()

	ledger := credits.NewLedger(database.DB, config.Sched)
	balance, err := ledger.BalanceFor(user.ID, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load credit balance"})
		return
	}

	var cycle *CycleDTO
	var active credits.SubscriptionCycle
	err = database.DB.
		Where("user_id = ? AND status = ? AND cycle_end > ?", user.ID, credits.CycleStatusActive, now).
		Order("cycle_end asc").
		First(&active).Error
	if err == nil {
		cycle = &CycleDTO{
			ID:              active.ID,
			CycleStart:      active.CycleStart,
			CycleEnd:        active.CycleEnd,
			CreditsAllotted: active.CreditsAllotted,
			CreditsUsed:     active.CreditsUsed,
		}
	}

	ownerColumn := "patient_id"
	if user.IsPsychologist() {
		ownerColumn = "psychologist_id"
	}
	var upcoming []booking.Booking
	database.DB.
		Where(ownerColumn+" = ? AND status IN ? AND starts_at > ?",
			user.ID, []booking.Status{booking.StatusScheduled, booking.StatusInProgress}, now).
		Order("starts_at asc").
		Limit(20).
		Find(&upcoming)

	upcomingDTO := make([]UpcomingBookingDTO, 0, len(upcoming))
	for _, b := range upcoming {
		upcomingDTO = append(upcomingDTO, UpcomingBookingDTO{
			ID:       b.ID,
			StartsAt: b.StartsAt,
			Status:   string(b.Status),
		})
	}

	resp := MeResponse{
		User: UserDTO{
			ID:         user.ID,
			Email:      user.Email,
			Name:       user.Name,
			Lastname:   user.Lastname,
			Tel:        stringPtrIfNotEmpty(user.Tel),
			Role:       user.Role,
			IsVerified: user.IsVerified,
		},
		Subscription: SubscriptionDTO{
			Status:           stripeinfra.NormalizeStripeStatus(user.StripeSubscriptionStatus),
			PlanID:           user.PlanID,
			CurrentPeriodEnd: user.CurrentPeriodEnd,
		},
		Credits: CreditsDTO{
			CycleRemaining:      balance.CycleRemaining,
			StandaloneRemaining: balance.StandaloneRemaining,
			Total:               balance.Total(),
		},
		Cycle:    cycle,
		Upcoming: upcomingDTO,
	}

	c.JSON(http.StatusOK, resp)
}

func stringPtrIfNotEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing token"})
		return
	}

	type Token struct {
		UserID int
	}
	var t Token
	if err := database.DB.Table("verification_tokens").Where("token = ?", token).First(&t).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired token"})
		return
	}

	if err := database.DB.Model(&users.User{}).Where("id = ?", t.UserID).Update("is_verified", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify user"})
		return
	}

	_ = database.DB.Exec("DELETE FROM verification_tokens WHERE token = ?", token)

	redirectURL := "http://localhost:5173/signin"
	c.Redirect(http.StatusTemporaryRedirect, redirectURL)
}
