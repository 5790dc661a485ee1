package plans

import "time"

// SwitchInput carries everything needed to price a downgrade or early
// cancellation of a commitment plan.
type SwitchInput struct {
	Tier           string
	PriceCents     int64
	CycleStart     time.Time
	Now            time.Time
	CreditsUsed    int
	CreditsPerMonth int

	PenaltyRatePercent int
	GraceDays          int
}

// SwitchResult is the outcome of evaluating a plan switch.
type SwitchResult struct {
	PenaltyCents int64
	InGrace      bool
}

// EvaluateSwitch computes the penalty owed when leaving a commitment plan
// before its cycle ends. Within the first GraceDays of the cycle the switch
// is free as long as no credit was consumed. Monthly plans carry no
// commitment and never incur a penalty. Otherwise the penalty is prorated
// over both elapsed time and credit usage.
func EvaluateSwitch(in SwitchInput) SwitchResult {
	if in.Tier == TierMonthly || in.Tier == TierNone {
		return SwitchResult{}
	}

	elapsed := in.Now.Sub(in.CycleStart)
	inGrace := elapsed >= 0 && elapsed < time.Duration(in.GraceDays)*24*time.Hour
	if inGrace && in.CreditsUsed == 0 {
		return SwitchResult{InGrace: true}
	}

	cycleLen := CycleEnd(in.CycleStart).Sub(in.CycleStart)
	elapsedFrac := 0.0
	if cycleLen > 0 {
		elapsedFrac = float64(elapsed) / float64(cycleLen)
	}
	if elapsedFrac < 0 {
		elapsedFrac = 0
	}
	if elapsedFrac > 1 {
		elapsedFrac = 1
	}

	usedFrac := 0.0
	if in.CreditsPerMonth > 0 {
		usedFrac = float64(in.CreditsUsed) / float64(in.CreditsPerMonth)
	}
	if usedFrac > 1 {
		usedFrac = 1
	}

	rate := float64(in.PenaltyRatePercent) / 100.0
	penalty := rate * float64(in.PriceCents) * (elapsedFrac + usedFrac) / 2

	return SwitchResult{PenaltyCents: int64(penalty), InGrace: inGrace}
}
