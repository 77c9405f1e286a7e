package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReminderTime(t *testing.T) {
	want := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-14T09:30", want},
		{"2026-03-14T09:30:00", want},
		{"2026-03-14T09:30:00Z", want},
		{"2026-03-14T09:30Z", want},
		{"  2026-03-14T09:30:00  ", want},
		{"2026-03-14T09:30:45.123", time.Date(2026, 3, 14, 9, 30, 45, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReminderTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseReminderTimeIgnoresZoneMarker(t *testing.T) {
	withZ, err := ParseReminderTime("2026-03-14T23:15:00Z")
	require.NoError(t, err)
	without, err := ParseReminderTime("2026-03-14T23:15:00")
	require.NoError(t, err)

	assert.Equal(t, without, withZ)
}

func TestParseReminderTimeRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"tomorrow",
		"2026-03-14",
		"2026-03-14 09:30",
		"2026-13-14T09:30",
		"2026-03-14T09:30:00+02:00",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseReminderTime(in)
			assert.Error(t, err)
		})
	}
}

func TestWallClockKeepsLocalReading(t *testing.T) {
	zone := time.FixedZone("UTC+8", 8*3600)
	local := time.Date(2026, 5, 1, 8, 0, 30, 999, zone)

	got := WallClock(local)
	assert.Equal(t, time.Date(2026, 5, 1, 8, 0, 30, 0, time.UTC), got)
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority(" High ")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	p, err = ParsePriority("none")
	require.NoError(t, err)
	assert.Equal(t, PriorityNone, p)

	_, err = ParsePriority("")
	assert.Error(t, err)
	_, err = ParsePriority("urgent")
	assert.Error(t, err)

	assert.Equal(t, PriorityNone, PriorityOrNone(nil))
	low := PriorityLow
	assert.Equal(t, PriorityLow, PriorityOrNone(&low))
}
