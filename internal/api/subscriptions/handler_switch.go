package subscriptions

import (
	"errors"
	"net/http"
	"os"
	"time"

	"booking-app/config"
	"booking-app/database"
	"booking-app/internal/domain/credits"
	"booking-app/internal/domain/plans"
	"booking-app/internal/domain/users"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v75"
	invoiceitem "github.com/stripe/stripe-go/v75/invoiceitem"
	stripesub "github.com/stripe/stripe-go/v75/subscription"
	schedules "github.com/stripe/stripe-go/v75/subscriptionschedule"
	"gorm.io/gorm"
)

// POST /subscriptions/:id/switch
// Moves the subscription to the target plan. Upgrades apply now with
// prorations; downgrades are scheduled for the next cycle. Leaving a
// commitment plan early outside the grace window bills a penalty.
func SwitchPlan(c *gin.Context) {
	var body struct {
		TargetPlanID uint `json:"target_plan_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid target_plan_id"})
		return
	}

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stripe key not configured"})
		return
	}

	subscriptionID := c.Param("id")
	userID := c.GetUint("user_id")

	var user users.User
	if err := database.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}
	if user.SubscriptionId == nil || *user.SubscriptionId != subscriptionID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your subscription"})
		return
	}

	var currentPlan *plans.Plan
	if user.PlanID != nil {
		var p plans.Plan
		if err := database.DB.First(&p, "id = ?", *user.PlanID).Error; err == nil {
			currentPlan = &p
		}
	}

	var targetPlan plans.Plan
	if err := database.DB.First(&targetPlan, "id = ?", body.TargetPlanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Target plan not found (run /admin/sync-plans)"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load target plan"})
		return
	}

	if currentPlan != nil && currentPlan.ID == targetPlan.ID {
		c.JSON(http.StatusOK, gin.H{"message": "Already on this plan"})
		return
	}

	now := time.Now().UTC()

	// penalty for abandoning a commitment plan mid-cycle
	var penaltyCents int64
	var cycle credits.SubscriptionCycle
	err := database.DB.
		Where("subscription_id = ? AND status = ?", subscriptionID, credits.CycleStatusActive).
		Order("cycle_end desc").
		First(&cycle).Error
	if err == nil && currentPlan != nil {
		result := plans.EvaluateSwitch(plans.SwitchInput{
			Tier:               plans.PlanTier(currentPlan),
			PriceCents:         currentPlan.PriceCents,
			CycleStart:         cycle.CycleStart,
			Now:                now,
			CreditsUsed:        cycle.CreditsUsed,
			CreditsPerMonth:    currentPlan.CreditsPerCycle,
			PenaltyRatePercent: config.Sched.PenaltyRatePercent,
			GraceDays:          config.Sched.PenaltyGraceDays,
		})
		penaltyCents = result.PenaltyCents
	}

	sub, err := stripesub.Get(subscriptionID, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch Stripe subscription", "details": err.Error()})
		return
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Subscription has no price item"})
		return
	}
	item := sub.Items.Data[0]

	if penaltyCents > 0 {
		if user.StripeCustomerID == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "No Stripe customer on file"})
			return
		}
		_, err = invoiceitem.New(&stripe.InvoiceItemParams{
			Customer:    stripe.String(*user.StripeCustomerID),
			Amount:      stripe.Int64(penaltyCents),
			Currency:    stripe.String("brl"),
			Description: stripe.String("Early plan change penalty"),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to bill penalty", "details": err.Error()})
			return
		}
		entry := credits.LedgerEntry{
			UserID:      user.ID,
			CycleID:     &cycle.ID,
			Kind:        credits.EntryPenalty,
			AmountCents: penaltyCents,
			Detail:      "early plan change",
		}
		if err := database.DB.Create(&entry).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record penalty"})
			return
		}
	}

	isUpgrade := currentPlan == nil || targetPlan.PriceCents > currentPlan.PriceCents

	if isUpgrade {
		updateParams := &stripe.SubscriptionParams{
			Items: []*stripe.SubscriptionItemsParams{
				{
					ID:    stripe.String(item.ID),
					Price: stripe.String(targetPlan.StripePriceID),
				},
			},
			ProrationBehavior: stripe.String("create_prorations"),
		}

		updatedSub, err := stripesub.Update(subscriptionID, updateParams)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade subscription", "details": err.Error()})
			return
		}

		periodEnd := time.Unix(updatedSub.CurrentPeriodEnd, 0)
		if err := database.DB.Model(&users.User{}).
			Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"plan_id":                 targetPlan.ID,
				"subscription_start":      now,
				"subscription_end":        periodEnd,
				"current_period_end":      periodEnd,
				"pending_plan_id":         nil,
				"pending_plan_start_date": nil,
			}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user in DB", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":        "Upgraded now (prorated automatically by Stripe)",
			"is_upgrade":     true,
			"penalty_amount": penaltyCents,
			"effective_date": now,
		})
		return
	}

	// downgrade: schedule for next cycle
	periodStartUnix := sub.CurrentPeriodStart
	periodEndUnix := sub.CurrentPeriodEnd
	effectiveAt := time.Unix(periodEndUnix, 0)

	scheduleID := ""
	if sub.Schedule != nil {
		scheduleID = sub.Schedule.ID
	}

	if scheduleID == "" {
		schedule, err := schedules.New(&stripe.SubscriptionScheduleParams{
			FromSubscription: stripe.String(sub.ID),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create schedule", "details": err.Error()})
			return
		}
		scheduleID = schedule.ID
	}

	_, err = schedules.Update(scheduleID, &stripe.SubscriptionScheduleParams{
		EndBehavior: stripe.String("release"),
		Phases: []*stripe.SubscriptionSchedulePhaseParams{
			{
				StartDate: stripe.Int64(periodStartUnix),
				EndDate:   stripe.Int64(periodEndUnix),
				Items: []*stripe.SubscriptionSchedulePhaseItemParams{
					{Price: stripe.String(item.Price.ID), Quantity: stripe.Int64(1)},
				},
			},
			{
				StartDate: stripe.Int64(periodEndUnix),
				Items: []*stripe.SubscriptionSchedulePhaseItemParams{
					{Price: stripe.String(targetPlan.StripePriceID), Quantity: stripe.Int64(1)},
				},
			},
		},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update schedule phases", "details": err.Error()})
		return
	}

	if err := database.DB.Model(&users.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"pending_plan_id":         targetPlan.ID,
			"pending_plan_start_date": effectiveAt,
			"stripe_schedule_id":      scheduleID,
			"current_period_end":      effectiveAt,
			"subscription_end":        effectiveAt,
		}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store pending downgrade", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Downgrade scheduled for next billing cycle",
		"is_upgrade":     false,
		"penalty_amount": penaltyCents,
		"effective_date": effectiveAt,
	})
}
