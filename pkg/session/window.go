package session

import (
	"math"
	"time"
)

// RateWindow is the trailing interval used for per-session rate limiting.
const RateWindow = time.Minute

// pruneWindow keeps only the timestamps newer than now-RateWindow.
func pruneWindow(stamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-RateWindow)
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	// Drop the tail so pruned timestamps are not retained by the backing array.
	clear(stamps[len(kept):])
	return kept
}

// secondsToNextMinute returns the whole seconds left until the wall clock
// rolls over to the next minute. The result is always in [1, 60].
func secondsToNextMinute(now time.Time) int {
	next := now.Truncate(time.Minute).Add(time.Minute)
	secs := int(math.Ceil(next.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
