package plans

type Plan struct {
	ID              uint `gorm:"primaryKey"`
	Name            string
	PriceCents      int64  `gorm:"column:price_cents"`
	StripePriceID   string `gorm:"column:stripe_price_id;not null;uniqueIndex:idx_plans_stripe_price_id"`
	Interval        string
	CreditsPerCycle int    `gorm:"column:credits_per_cycle;not null;default:4"`
	Tier            string `gorm:"column:tier"` // "monthly" | "quarterly" | "semiannual"
}
