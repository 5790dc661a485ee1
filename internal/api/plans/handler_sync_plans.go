package plans

import (
	"net/http"
	"os"
	"strconv"

	"booking-app/database"
	"booking-app/internal/domain/plans"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/price"
)

func SyncPlansFromStripe(c *gin.Context) {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stripe key not configured"})
		return
	}

	targetProductID := os.Getenv("STRIPE_THERAPY_PRODUCT_ID")

	params := &stripe.PriceListParams{}
	params.Active = stripe.Bool(true)
	params.Type = stripe.String("recurring")
	params.AddExpand("data.product")

	it := price.List(params)

	synced := 0
	created := 0
	updated := 0
	skipped := 0

	for it.Next() {
		p := it.Price()

		if !p.Active || p.Recurring == nil || p.Product == nil || !p.Product.Active {
			skipped++
			continue
		}

		if targetProductID != "" && p.Product.ID != targetProductID {
			skipped++
			continue
		}

		if string(p.Currency) != "brl" {
			skipped++
			continue
		}

		// visibility flag
		if p.Metadata != nil && p.Metadata["visible"] == "false" {
			skipped++
			continue
		}

		displayName := p.Product.Name
		tier := ""
		creditsPerCycle := 4
		if p.Metadata != nil {
			if v := p.Metadata["plan"]; v != "" {
				displayName = v
			}
			if v := p.Metadata["tier"]; v != "" {
				tier = v // "monthly|quarterly|semiannual"
			}
			if v := p.Metadata["credits_per_cycle"]; v != "" {
				if n, err := strconv.Atoi(v); err == nil && n > 0 {
					creditsPerCycle = n
				}
			}
		}

		// Stripe expresses commitment plans as interval=month with a
		// count, so keep the count in the stored interval ("3month",
		// "6month") or tier inference cannot classify them.
		interval := string(p.Recurring.Interval)
		if p.Recurring.IntervalCount > 1 {
			interval = strconv.FormatInt(p.Recurring.IntervalCount, 10) + interval
		}

		var existing plans.Plan
		err := database.DB.Where("stripe_price_id = ?", p.ID).First(&existing).Error

		if err != nil {
			plan := plans.Plan{
				Name:            displayName,
				PriceCents:      p.UnitAmount,
				StripePriceID:   p.ID,
				Interval:        interval,
				CreditsPerCycle: creditsPerCycle,
				Tier:            tier,
			}
			if err := database.DB.Create(&plan).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create plan", "details": err.Error()})
				return
			}
			created++
		} else {
			existing.Name = displayName
			existing.PriceCents = p.UnitAmount
			existing.Interval = interval
			existing.CreditsPerCycle = creditsPerCycle
			if tier != "" {
				existing.Tier = tier
			}

			if err := database.DB.Save(&existing).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update plan", "details": err.Error()})
				return
			}
			updated++
		}

		synced++
	}

	if err := it.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch Stripe prices", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"synced":  synced,
		"created": created,
		"updated": updated,
		"skipped": skipped,
	})
}

func ListPlans(c *gin.Context) {
	var plansList []plans.Plan
	err := database.DB.Model(&plans.Plan{}).
		Order("price_cents ASC").
		Find(&plansList).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load plans"})
		return
	}

	c.JSON(http.StatusOK, plansList)
}
