package main

import (
	"os"
	"time"

	"booking-app/config"
	"booking-app/database"
	"booking-app/internal/api/admin"
	"booking-app/internal/api/bookings"
	routes "booking-app/internal/app/http"
	"booking-app/internal/domain/credits"
	"booking-app/internal/domain/schedule"
	"booking-app/internal/jobs"
	"booking-app/internal/notify"
	"booking-app/internal/scheduling"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// gin.SetMode(gin.ReleaseMode) uncomment only in production
	config.LoadEnv()
	database.InitDB()

	rdb := redis.NewClient(&redis.Options{Addr: config.REDIS_ADDR})
	reminders := notify.NewReminderQueue(rdb)
	reminders.Start()
	defer reminders.Stop()

	slots := schedule.NewStore(database.DB, config.Sched)
	generator := schedule.NewGenerator(database.DB, config.Sched)
	ledger := credits.NewLedger(database.DB, config.Sched)
	svc := scheduling.NewService(database.DB, slots, ledger, reminders, config.Sched)

	bookings.Service = svc
	admin.Service = svc

	runner := jobs.NewRunner(svc, slots, generator, ledger, config.Sched)
	runner.Start()
	defer runner.Stop()

	r := gin.Default()

	// ✅ Add CORS middleware BEFORE registering routes
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{os.Getenv("CORS_ORIGIN")},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r)

	r.Run(":" + config.PORT)
}
