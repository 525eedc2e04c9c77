package chart

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The firing time is anchored to the configured timezone, not the process
// zone, so a server running in UTC still computes yesterday's chart just
// after Harare midnight.
func TestSchedulerNextRun_UsesConfiguredTimezone(t *testing.T) {
	harare, err := time.LoadLocation("Africa/Harare")
	require.NoError(t, err)
	s := NewScheduler(nil, harare, zerolog.Nop())

	// 21:00 UTC is 23:00 in Harare (UTC+2): next run is 00:05 Harare, an
	// hour and five minutes away
	now := time.Date(2024, 1, 15, 21, 0, 0, 0, time.UTC)
	next := s.nextRun(now)
	assert.True(t, next.Equal(time.Date(2024, 1, 16, 0, 5, 0, 0, harare)))
	assert.Equal(t, 65*time.Minute, next.Sub(now))

	// 23:30 UTC is already past Harare midnight, so today's 00:05 Harare
	// has fired and the next run is tomorrow's
	now = time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC)
	next = s.nextRun(now)
	assert.True(t, next.Equal(time.Date(2024, 1, 17, 0, 5, 0, 0, harare)))
}

func TestSchedulerNextRun_ExactlyAtFireTimeRollsForward(t *testing.T) {
	harare, err := time.LoadLocation("Africa/Harare")
	require.NoError(t, err)
	s := NewScheduler(nil, harare, zerolog.Nop())

	now := time.Date(2024, 1, 16, 0, 5, 0, 0, harare)
	next := s.nextRun(now)
	assert.True(t, next.Equal(time.Date(2024, 1, 17, 0, 5, 0, 0, harare)))
}
