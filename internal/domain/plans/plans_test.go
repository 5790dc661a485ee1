package plans

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCycleEnd(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		want  time.Time
	}{
		{"mid month", date(2025, time.December, 26), date(2026, time.January, 26)},
		{"first of month", date(2025, time.March, 1), date(2025, time.April, 1)},
		{"clamps to shorter month", date(2025, time.January, 31), date(2025, time.February, 28)},
		{"leap february", date(2024, time.January, 31), date(2024, time.February, 29)},
		{"december rolls into next year", date(2025, time.December, 5), date(2026, time.January, 5)},
		{"march 31 clamps to april 30", date(2025, time.March, 31), date(2025, time.April, 30)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CycleEnd(tc.start))
		})
	}
}

func TestCycleEndKeepsTimeOfDay(t *testing.T) {
	start := time.Date(2025, time.June, 15, 9, 30, 0, 0, time.UTC)
	end := CycleEnd(start)
	assert.Equal(t, 9, end.Hour())
	assert.Equal(t, 30, end.Minute())
	assert.Equal(t, 15, end.Day())
	assert.Equal(t, time.July, end.Month())
}

func TestPlanTier(t *testing.T) {
	assert.Equal(t, TierQuarterly, PlanTier(&Plan{Tier: TierQuarterly}))
	assert.Equal(t, TierMonthly, PlanTier(&Plan{Interval: "month"}))
	assert.Equal(t, TierSemiannual, PlanTier(&Plan{Interval: "semester"}))
	assert.Equal(t, TierNone, PlanTier(nil))

	// stripe stores commitment plans as month with an interval count
	assert.Equal(t, TierQuarterly, PlanTier(&Plan{Interval: "3month"}))
	assert.Equal(t, TierSemiannual, PlanTier(&Plan{Interval: "6month"}))
}

func TestCommittedMonths(t *testing.T) {
	assert.Equal(t, 6, CommittedMonths(TierSemiannual))
	assert.Equal(t, 3, CommittedMonths(TierQuarterly))
	assert.Equal(t, 1, CommittedMonths(TierMonthly))
}

func baseSwitch() SwitchInput {
	return SwitchInput{
		Tier:               TierQuarterly,
		PriceCents:         40000,
		CycleStart:         date(2025, time.June, 1),
		CreditsPerMonth:    4,
		PenaltyRatePercent: 20,
		GraceDays:          7,
	}
}

func TestEvaluateSwitchGraceWindow(t *testing.T) {
	in := baseSwitch()
	in.Now = in.CycleStart.Add(24 * time.Hour)
	in.CreditsUsed = 0

	res := EvaluateSwitch(in)
	assert.True(t, res.InGrace)
	assert.Zero(t, res.PenaltyCents)
}

func TestEvaluateSwitchGraceLostOnUsage(t *testing.T) {
	in := baseSwitch()
	in.Now = in.CycleStart.Add(24 * time.Hour)
	in.CreditsUsed = 1

	res := EvaluateSwitch(in)
	assert.Positive(t, res.PenaltyCents)
}

func TestEvaluateSwitchMonthlyNeverPenalized(t *testing.T) {
	in := baseSwitch()
	in.Tier = TierMonthly
	in.Now = in.CycleStart.Add(20 * 24 * time.Hour)
	in.CreditsUsed = 4

	res := EvaluateSwitch(in)
	assert.Zero(t, res.PenaltyCents)
}

func TestEvaluateSwitchLateAllUsedNearMax(t *testing.T) {
	in := baseSwitch()
	in.Now = in.CycleStart.Add(29 * 24 * time.Hour)
	in.CreditsUsed = 4

	res := EvaluateSwitch(in)
	max := int64(float64(in.PenaltyRatePercent) / 100.0 * float64(in.PriceCents))
	assert.Greater(t, res.PenaltyCents, max*9/10)
	assert.LessOrEqual(t, res.PenaltyCents, max)
}

func TestEvaluateSwitchProrationGrowsWithTime(t *testing.T) {
	early := baseSwitch()
	early.Now = early.CycleStart.Add(10 * 24 * time.Hour)
	early.CreditsUsed = 2

	late := baseSwitch()
	late.Now = late.CycleStart.Add(25 * 24 * time.Hour)
	late.CreditsUsed = 2

	assert.Less(t, EvaluateSwitch(early).PenaltyCents, EvaluateSwitch(late).PenaltyCents)
}

func TestEvaluateSwitchNeverExceedsRateCap(t *testing.T) {
	in := baseSwitch()
	in.Now = in.CycleStart.Add(60 * 24 * time.Hour)
	in.CreditsUsed = 10

	res := EvaluateSwitch(in)
	max := int64(float64(in.PenaltyRatePercent) / 100.0 * float64(in.PriceCents))
	assert.LessOrEqual(t, res.PenaltyCents, max)
}
