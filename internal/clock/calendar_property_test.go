package clock

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Property: the phase agrees with IsTradingTime, the countdown is never
// negative, and it never exceeds the longest gap (Friday close to Monday open).

func TestProperty_CalendarConsistency(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, Zone)
	maxGap := 2*24*time.Hour + 18*time.Hour + 30*time.Minute

	rapid.Check(t, func(t *rapid.T) {
		secs := rapid.Int64Range(0, 365*24*3600).Draw(t, "secs")
		now := base.Add(time.Duration(secs) * time.Second)

		phase, countdown := StatusAndCountdown(now)
		if phase.IsTrading() != IsTradingTime(now) {
			t.Fatalf("phase %s disagrees with IsTradingTime at %s", phase, now)
		}
		if countdown < 0 {
			t.Fatalf("negative countdown %v at %s", countdown, now)
		}
		if countdown > maxGap {
			t.Fatalf("countdown %v exceeds %v at %s", countdown, maxGap, now)
		}
		if (phase == PhaseWeekendClosed) != (SessionWindows(now) == nil) {
			t.Fatalf("weekend phase mismatch at %s", now)
		}
	})
}
