package routes

import (
	adminapi "booking-app/internal/api/admin"
	authapi "booking-app/internal/api/auth"
	"booking-app/internal/api/bookings"
	"booking-app/internal/api/plans"
	"booking-app/internal/api/slots"
	stripewebhooks "booking-app/internal/api/stripewebhook"
	"booking-app/internal/api/subscriptions"
	"booking-app/internal/api/users"
	"booking-app/internal/app/http/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine) {
	// ✅ Apply input sanitization to public routes only

	r.POST("/webhook", stripewebhooks.StripeWebhook)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	public := r.Group("/")
	public.Use(middleware.SanitizeAndCleanInputMiddleware())

	public.POST("/register", authapi.Register)
	public.POST("/login", authapi.Login)
	public.GET("/plans", plans.ListPlans)
	public.GET("/verify", users.VerifyEmail)
	public.POST("/resend-verification", authapi.ResendVerification)
	public.POST("/request-password-reset", authapi.RequestPasswordReset)
	public.POST("/reset-password", authapi.ResetPassword)

	public.GET("/auth/google", authapi.GoogleStart)
	public.GET("/auth/google/callback", authapi.GoogleCallback)

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware())
	auth.GET("/me", users.GetCurrentUser)
	auth.POST("/change-password", authapi.ChangePassword)

	auth.GET("/psychologists/:id/slots", slots.ListAvailable)

	auth.POST("/bookings", bookings.CreateBooking)
	auth.GET("/bookings", bookings.ListMine)
	auth.GET("/bookings/:id", bookings.GetBooking)
	auth.PATCH("/bookings/:id/status", bookings.ChangeStatus)
	auth.POST("/bookings/:id/reschedule", bookings.Reschedule)

	auth.GET("/credits", subscriptions.GetBalance)
	auth.GET("/ledger", subscriptions.GetLedgerHistory)
	auth.POST("/create-checkout-session", subscriptions.CreateCheckoutSession)
	auth.POST("/credits/checkout", subscriptions.CreateCreditCheckout)
	auth.POST("/billing-portal", subscriptions.CreateBillingPortal)
	// Subscribed users
	subscribed := auth.Group("/")
	subscribed.Use(middleware.RequireActiveSubscription())
	subscribed.POST("/subscriptions/:id/switch", subscriptions.SwitchPlan)
	subscribed.POST("/subscriptions/:id/cancel", subscriptions.CancelSubscription)
	subscribed.POST("/cancel-downgrade", subscriptions.CancelDowngrade)

	// Providers manage their own calendar
	provider := auth.Group("/")
	provider.Use(middleware.RequireRole("psychologist", "admin"))
	provider.POST("/slots", slots.CreateSlot)
	provider.POST("/slots/:id/block", slots.BlockSlot)
	provider.POST("/slots/:id/unblock", slots.UnblockSlot)
	provider.GET("/availability", slots.GetAvailability)
	provider.PUT("/availability", slots.PutAvailability)

	// Admin routes
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.RequireRole("admin"))
	admin.GET("/dashboard", adminapi.AdminDashboard)
	admin.GET("/users", adminapi.ListAllUsers)
	admin.GET("/bookings", adminapi.ListAllBookings)
	admin.POST("/bookings/:id/absence", adminapi.ProcessAbsence)
	admin.GET("/stats", adminapi.GetAdminStats)
	admin.GET("/ledger", adminapi.ListLedger)
	admin.GET("/user/:id", adminapi.GetUserDetails)
	admin.POST("/sync-plans", plans.SyncPlansFromStripe)
	admin.POST("/psychologists/:id/decommission", adminapi.DecommissionPsychologist)
}
