package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"booking-app/config"
	"booking-app/database"
	"booking-app/internal/domain/booking"
	"booking-app/internal/domain/credits"
	"booking-app/internal/domain/plans"
	"booking-app/internal/domain/users"
	"booking-app/internal/scheduling"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Service is wired in main before the routes are registered.
var Service *scheduling.Service

type AdminUser struct {
	ID             uint    `json:"id"`
	Name           string  `json:"name"`
	Lastname       string  `json:"lastname"`
	Tel            string  `json:"tel"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	IsVerified     bool    `json:"is_verified"`
	Decommissioned bool    `json:"decommissioned"`
	PlanName       *string `json:"plan_name,omitempty"`
	StripeCustomer *string `json:"stripe_customer_id,omitempty"`
	StripeSubID    *string `json:"stripe_subscription_id,omitempty"`
}

type AdminStats struct {
	TotalUsers         int            `json:"total_users"`
	TotalBookings      int            `json:"total_bookings"`
	BookingsPerStatus  map[string]int `json:"bookings_per_status"`
	UsersPerPlan       map[string]int `json:"users_per_plan"`
	PayoutCentsTotal   int64          `json:"payout_cents_total"`
	PenaltyCentsTotal  int64          `json:"penalty_cents_total"`
	RecentPayoutCents  int64          `json:"recent_payout_cents"`
	OutstandingCredits int            `json:"outstanding_credits"`
}

func AdminDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to the admin dashboard 👑",
	})
}

func ListAllUsers(c *gin.Context) {
	var all []users.User
	if err := database.DB.Find(&all).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load users"})
		return
	}

	var planList []plans.Plan
	_ = database.DB.Find(&planList).Error
	planNames := map[uint]string{}
	for _, p := range planList {
		planNames[p.ID] = p.Name
	}

	var adminUsers []AdminUser
	for _, u := range all {
		var planName *string
		if u.PlanID != nil {
			if name, ok := planNames[*u.PlanID]; ok {
				planName = &name
			}
		}

		adminUsers = append(adminUsers, AdminUser{
			ID:             u.ID,
			Name:           u.Name,
			Lastname:       u.Lastname,
			Tel:            u.Tel,
			Email:          u.Email,
			Role:           u.Role,
			IsVerified:     u.IsVerified,
			Decommissioned: u.Decommissioned,
			PlanName:       planName,
			StripeCustomer: u.StripeCustomerID,
			StripeSubID:    u.SubscriptionId,
		})
	}

	c.JSON(http.StatusOK, adminUsers)
}

func ListAllBookings(c *gin.Context) {
	q := database.DB.Order("starts_at DESC").Limit(200)
	if status := c.Query("status"); status != "" {
		if !booking.Status(status).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
			return
		}
		q = q.Where("status = ?", status)
	}

	var list []booking.Booking
	if err := q.Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load bookings"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func GetAdminStats(c *gin.Context) {
	var stats AdminStats

	var totalUsers, totalBookings int64
	database.DB.Model(&users.User{}).Count(&totalUsers)
	database.DB.Model(&booking.Booking{}).Count(&totalBookings)
	stats.TotalUsers = int(totalUsers)
	stats.TotalBookings = int(totalBookings)

	type statusCount struct {
		Status string
		Count  int
	}
	var perStatus []statusCount
	database.DB.Model(&booking.Booking{}).
		Select("status, COUNT(id) as count").
		Group("status").
		Scan(&perStatus)
	stats.BookingsPerStatus = map[string]int{}
	for _, sc := range perStatus {
		stats.BookingsPerStatus[sc.Status] = sc.Count
	}

	database.DB.Model(&credits.LedgerEntry{}).
		Where("kind = ?", credits.EntryPayout).
		Select("COALESCE(SUM(amount_cents), 0)").Scan(&stats.PayoutCentsTotal)
	database.DB.Model(&credits.LedgerEntry{}).
		Where("kind = ?", credits.EntryPenalty).
		Select("COALESCE(SUM(amount_cents), 0)").Scan(&stats.PenaltyCentsTotal)

	thirtyDaysAgo := time.Now().AddDate(0, 0, -30)
	database.DB.Model(&credits.LedgerEntry{}).
		Where("kind = ? AND created_at >= ?", credits.EntryPayout, thirtyDaysAgo).
		Select("COALESCE(SUM(amount_cents), 0)").Scan(&stats.RecentPayoutCents)

	var cycleRemaining, standaloneRemaining int64
	database.DB.Model(&credits.SubscriptionCycle{}).
		Where("status = ?", credits.CycleStatusActive).
		Select("COALESCE(SUM(credits_allotted - credits_used), 0)").Scan(&cycleRemaining)
	database.DB.Model(&credits.StandaloneCredit{}).
		Where("status = ? AND expires_at > ?", credits.CreditStatusActive, time.Now()).
		Select("COALESCE(SUM(remaining), 0)").Scan(&standaloneRemaining)
	stats.OutstandingCredits = int(cycleRemaining + standaloneRemaining)

	type planCount struct {
		Name  *string
		Count int
	}
	var counts []planCount
	database.DB.
		Table("users").
		Select("plans.name, COUNT(users.id) as count").
		Joins("LEFT JOIN plans ON users.plan_id = plans.id").
		Group("plans.name").
		Scan(&counts)

	stats.UsersPerPlan = map[string]int{}
	for _, pc := range counts {
		name := "No Plan"
		if pc.Name != nil {
			name = *pc.Name
		}
		stats.UsersPerPlan[name] = pc.Count
	}

	c.JSON(http.StatusOK, stats)
}

func GetUserDetails(c *gin.Context) {
	userID := c.Param("id")

	var user users.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var bookings []booking.Booking
	if err := database.DB.
		Where("patient_id = ? OR psychologist_id = ?", user.ID, user.ID).
		Order("starts_at DESC").Limit(100).
		Find(&bookings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bookings"})
		return
	}

	ledger := credits.NewLedger(database.DB, config.Sched)
	entries, err := ledger.EntriesFor(user.ID, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ledger"})
		return
	}

	monthly := []credits.MonthlyCreditCounter{}
	var active credits.SubscriptionCycle
	err = database.DB.
		Where("user_id = ? AND status = ?", user.ID, credits.CycleStatusActive).
		Order("cycle_end desc").
		First(&active).Error
	if err == nil {
		if monthly, err = ledger.MonthlyUsage(active.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch monthly usage"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"bookings":      bookings,
		"ledger":        entries,
		"monthly_usage": monthly,
	})
}

// GET /admin/ledger?user_id=&kind= recent financial events, newest first.
func ListLedger(c *gin.Context) {
	q := database.DB.Order("created_at DESC").Limit(200)
	if v := c.Query("user_id"); v != "" {
		uid, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
			return
		}
		q = q.Where("user_id = ?", uint(uid))
	}
	if kind := c.Query("kind"); kind != "" {
		q = q.Where("kind = ?", kind)
	}

	var entries []credits.LedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load ledger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// POST /admin/bookings/:id/absence marks a session where one side never
// appeared, resolving it to the matching systemic cancellation.
func ProcessAbsence(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking id"})
		return
	}

	var body struct {
		MissingRole string `json:"missing_role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing missing_role"})
		return
	}

	b, err := Service.ProcessAbsence(c.Request.Context(), bookingID, body.MissingRole, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, scheduling.ErrBookingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		case errors.Is(err, booking.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "Absence cannot be recorded for this booking"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record absence"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking_id": b.ID, "status": b.Status})
}

// DecommissionPsychologist takes a provider out of rotation: future
// bookings are cancelled with credit returns and their open slots retired.
func DecommissionPsychologist(c *gin.Context) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid psychologist id"})
		return
	}

	var user users.User
	if err := database.DB.First(&user, uint(id64)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if !user.IsPsychologist() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User is not a psychologist"})
		return
	}

	cancelled, err := Service.DecommissionPsychologist(c.Request.Context(), user.ID, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decommission psychologist"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":            "Psychologist decommissioned",
		"cancelled_bookings": cancelled,
	})
}
