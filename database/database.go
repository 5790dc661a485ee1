package database

import (
	"fmt"
	"log"
	"os"

	"booking-app/internal/domain/booking"
	"booking-app/internal/domain/credits"
	"booking-app/internal/domain/plans"
	"booking-app/internal/domain/schedule"
	"booking-app/internal/domain/users"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		log.Fatal("❌ DB_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("❌ Failed to connect to database:", err)
	}

	DB = db

	// ✅ REQUIRED for UUID generation
	if err := DB.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Fatal("❌ Failed to enable pgcrypto extension:", err)
	}

	// ✅ Auto-migrate all domain models
	if err := DB.AutoMigrate(
		// core
		&users.User{},
		&users.VerificationToken{},
		&plans.Plan{},

		// calendar
		&schedule.Slot{},
		&schedule.WeeklyAvailability{},

		// appointments
		&booking.Booking{},

		// credits
		&credits.SubscriptionCycle{},
		&credits.MonthlyCreditCounter{},
		&credits.StandaloneCredit{},
		&credits.LedgerEntry{},
	); err != nil {
		log.Fatal("❌ AutoMigrate error:", err)
	}

	fmt.Println("✅ Connected and migrated successfully")
}
