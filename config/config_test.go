package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchedulingDefaults(t *testing.T) {
	s, err := LoadScheduling()
	require.NoError(t, err)

	assert.Equal(t, 50*time.Minute, s.SlotDuration)
	assert.Equal(t, 10*time.Minute, s.BufferBetweenSlots)
	assert.Equal(t, 24*time.Hour, s.CancellationNotice)
	assert.Equal(t, 30, s.CreditValidityDays)
	assert.Equal(t, "05:00", s.AutoGenerationTime)
	require.NotNil(t, s.Location)
}

func TestLoadSchedulingRejectsMalformedValues(t *testing.T) {
	t.Setenv("SLOT_DURATION_MIN", "fifty")
	_, err := LoadScheduling()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "SLOT_DURATION_MIN", verr.Field)
}

func TestLoadSchedulingOverrides(t *testing.T) {
	t.Setenv("CANCELLATION_NOTICE_HOURS", "48")
	t.Setenv("PLAN_SWITCH_PENALTY_PERCENT", "35")

	s, err := LoadScheduling()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, s.CancellationNotice)
	assert.Equal(t, 35, s.PenaltyRatePercent)
}

func TestValidate(t *testing.T) {
	base := func() Scheduling {
		s, err := LoadScheduling()
		require.NoError(t, err)
		return s
	}

	t.Run("max lead must exceed min lead", func(t *testing.T) {
		s := base()
		s.MinLead = 48 * time.Hour
		s.MaxLead = 24 * time.Hour
		var verr *ValidationError
		require.ErrorAs(t, s.Validate(), &verr)
		assert.Equal(t, "MAX_LEAD_HOURS", verr.Field)
	})

	t.Run("penalty rate bounded", func(t *testing.T) {
		s := base()
		s.PenaltyRatePercent = 140
		var verr *ValidationError
		require.ErrorAs(t, s.Validate(), &verr)
		assert.Equal(t, "PLAN_SWITCH_PENALTY_PERCENT", verr.Field)
	})

	t.Run("generation time must be HH:MM", func(t *testing.T) {
		s := base()
		s.AutoGenerationTime = "5am"
		var verr *ValidationError
		require.ErrorAs(t, s.Validate(), &verr)
		assert.Equal(t, "AUTO_GENERATION_TIME", verr.Field)
	})
}
