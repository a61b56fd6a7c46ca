package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPruneWindow(t *testing.T) {
	now := testEpoch
	stamps := []time.Time{
		now.Add(-2 * time.Minute),
		now.Add(-RateWindow),
		now.Add(-59 * time.Second),
		now.Add(-time.Second),
		now,
	}

	kept := pruneWindow(stamps, now)
	assert.Equal(t, []time.Time{
		now.Add(-59 * time.Second),
		now.Add(-time.Second),
		now,
	}, kept)

	// The tail of the original backing array is cleared.
	assert.True(t, stamps[3].IsZero())
	assert.True(t, stamps[4].IsZero())
}

func TestPruneWindow_Empty(t *testing.T) {
	assert.Empty(t, pruneWindow(nil, testEpoch))
	assert.Empty(t, pruneWindow([]time.Time{testEpoch.Add(-time.Hour)}, testEpoch))
}

func TestSecondsToNextMinute(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"on the minute", base, 60},
		{"fifteen past", base.Add(15 * time.Second), 45},
		{"fractional rounds up", base.Add(15*time.Second + 200*time.Millisecond), 45},
		{"last second", base.Add(59 * time.Second), 1},
		{"just before rollover", base.Add(59*time.Second + 999*time.Millisecond), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, secondsToNextMinute(tt.at))
		})
	}
}
