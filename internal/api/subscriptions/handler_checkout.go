package subscriptions

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"booking-app/database"
	"booking-app/internal/domain/plans"
	"booking-app/internal/domain/users"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v75"
	portalSession "github.com/stripe/stripe-go/v75/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v75/checkout/session"
	customer "github.com/stripe/stripe-go/v75/customer"
)

// POST /create-checkout-session  { price_id }  starts a plan subscription
func CreateCheckoutSession(c *gin.Context) {
	var body struct {
		PriceID string `json:"price_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.PriceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid price_id"})
		return
	}

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stripe key not configured"})
		return
	}

	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
		return
	}

	// allow-list price id
	var plan plans.Plan
	if err := database.DB.Where("stripe_price_id = ?", body.PriceID).First(&plan).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan/price_id"})
		return
	}

	user, ok := loadVerifiedUser(c, userID)
	if !ok {
		return
	}
	if !ensureStripeCustomer(c, user) {
		return
	}

	appURL := appBaseURL()

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(appURL + "/account"),
		CancelURL:  stripe.String(appURL + "/account?canceled=1"),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(*user.StripeCustomerID),

		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(plan.StripePriceID), Quantity: stripe.Int64(1)},
		},

		ClientReferenceID: stripe.String(fmt.Sprint(user.ID)),

		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": fmt.Sprint(user.ID),
				"plan_id": fmt.Sprint(plan.ID),
			},
		},
	}

	s, err := checkoutsession.New(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": s.URL})
}

// POST /credits/checkout  { price_id, quantity }  buys standalone credits
func CreateCreditCheckout(c *gin.Context) {
	var body struct {
		PriceID  string `json:"price_id"`
		Quantity int64  `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.PriceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid price_id"})
		return
	}
	if body.Quantity <= 0 {
		body.Quantity = 1
	}

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stripe key not configured"})
		return
	}

	creditPriceID := os.Getenv("STRIPE_CREDIT_PRICE_ID")
	if body.PriceID != creditPriceID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown credit price_id"})
		return
	}

	userID := c.GetUint("user_id")
	user, ok := loadVerifiedUser(c, userID)
	if !ok {
		return
	}
	if !ensureStripeCustomer(c, user) {
		return
	}

	appURL := appBaseURL()

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(appURL + "/account"),
		CancelURL:  stripe.String(appURL + "/account?canceled=1"),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:   stripe.String(*user.StripeCustomerID),

		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(body.PriceID), Quantity: stripe.Int64(body.Quantity)},
		},

		ClientReferenceID: stripe.String(fmt.Sprint(user.ID)),
		Metadata: map[string]string{
			"user_id":  fmt.Sprint(user.ID),
			"kind":     "standalone_credit",
			"quantity": strconv.FormatInt(body.Quantity, 10),
		},
	}

	s, err := checkoutsession.New(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": s.URL})
}

func CreateBillingPortal(c *gin.Context) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stripe key not configured"})
		return
	}

	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
		return
	}

	var user users.User
	if err := database.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "No Stripe customer yet (subscribe first)"})
		return
	}

	portal, err := portalSession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*user.StripeCustomerID),
		ReturnURL: stripe.String(appBaseURL() + "/account"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create billing portal session", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": portal.URL})
}

func appBaseURL() string {
	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = "http://localhost:5173"
	}
	return appURL
}

func loadVerifiedUser(c *gin.Context, userID uint) (*users.User, bool) {
	var user users.User
	if err := database.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return nil, false
	}
	if !user.IsVerified {
		c.JSON(http.StatusForbidden, gin.H{"error": "Please verify your email first"})
		return nil, false
	}
	return &user, true
}

func ensureStripeCustomer(c *gin.Context, user *users.User) bool {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return true
	}
	cus, err := customer.New(&stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			"user_id": fmt.Sprint(user.ID),
			"app_env": os.Getenv("APP_ENV"),
		},
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Stripe customer"})
		return false
	}

	if err := database.DB.Model(&users.User{}).
		Where("id = ?", user.ID).
		Update("stripe_customer_id", cus.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store Stripe customer"})
		return false
	}

	user.StripeCustomerID = stripe.String(cus.ID)
	return true
}
