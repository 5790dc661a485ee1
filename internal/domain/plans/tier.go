package plans

import "strings"

// Tier constants (single source of truth)
const (
	TierNone       = "none"
	TierMonthly    = "monthly"
	TierQuarterly  = "quarterly"
	TierSemiannual = "semiannual"
)

// PlanTier returns the effective tier for a plan.
// Priority:
// 1. Explicit Tier stored in DB
// 2. Fallback inference by billing interval (legacy safety net)
func PlanTier(p *Plan) string {
	if p == nil {
		return TierNone
	}

	tier := strings.ToLower(strings.TrimSpace(p.Tier))
	switch tier {
	case TierMonthly, TierQuarterly, TierSemiannual:
		return tier
	}

	return inferTierFromInterval(p.Interval)
}

func inferTierFromInterval(interval string) string {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "semiannual", "semester", "semestral", "6month", "6months":
		return TierSemiannual
	case "quarterly", "trimestral", "3month", "3months":
		return TierQuarterly
	default:
		return TierMonthly
	}
}

// CommittedMonths is how many months of the contract a tier binds the
// subscriber to. Monthly plans carry no commitment and therefore no
// early-termination penalty.
func CommittedMonths(tier string) int {
	switch tier {
	case TierSemiannual:
		return 6
	case TierQuarterly:
		return 3
	default:
		return 1
	}
}
