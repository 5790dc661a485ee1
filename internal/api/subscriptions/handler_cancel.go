package subscriptions

import (
	"net/http"
	"os"
	"time"

	"booking-app/database"
	"booking-app/internal/domain/users"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v75"
	stripesub "github.com/stripe/stripe-go/v75/subscription"
)

// POST /subscriptions/:id/cancel
// Cancels at the end of the current period. Credits already granted keep
// their expiry; the deleted-subscription webhook retires the open cycle.
func CancelSubscription(c *gin.Context) {
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

	updated, err := stripesub.Update(subscriptionID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel subscription", "details": err.Error()})
		return
	}

	periodEnd := time.Unix(updated.CurrentPeriodEnd, 0)
	if err := database.DB.Model(&users.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"subscription_end":        periodEnd,
			"pending_plan_id":         nil,
			"pending_plan_start_date": nil,
		}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user in DB"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Subscription will end at the close of the current period",
		"effective_at": periodEnd,
	})
}
