package clock

import "time"

// Phase names where the trading day currently stands.
type Phase string

const (
	PhasePreMorning       Phase = "PRE_MORNING"
	PhaseMorningTrading   Phase = "MORNING_TRADING"
	PhaseLunchBreak       Phase = "LUNCH_BREAK"
	PhaseAfternoonTrading Phase = "AFTERNOON_TRADING"
	PhasePostClose        Phase = "POST_CLOSE"
	PhaseWeekendClosed    Phase = "WEEKEND_CLOSED"
)

// Schedule is the human-readable weekly timetable.
const Schedule = "Mon-Fri 09:30-11:30, 13:00-15:00 (UTC+8)"

// Window is a closed trading interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within the closed interval.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func at(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, Zone)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// SessionWindows returns the morning and afternoon windows for the given
// day, or nil on weekends.
func SessionWindows(day time.Time) []Window {
	day = day.In(Zone)
	if isWeekend(day) {
		return nil
	}
	return []Window{
		{Start: at(day, 9, 30), End: at(day, 11, 30)},
		{Start: at(day, 13, 0), End: at(day, 15, 0)},
	}
}

// IsTradingTime reports whether now falls inside one of the day's windows.
func IsTradingTime(now time.Time) bool {
	for _, w := range SessionWindows(now) {
		if w.Contains(now.In(Zone)) {
			return true
		}
	}
	return false
}

// NextOpen returns the morning open of the next weekday strictly after
// now's calendar day.
func NextOpen(now time.Time) time.Time {
	next := at(now.In(Zone), 9, 30).AddDate(0, 0, 1)
	for isWeekend(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// StatusAndCountdown classifies now and returns the time left until the
// next transition.
func StatusAndCountdown(now time.Time) (Phase, time.Duration) {
	now = now.In(Zone)
	if isWeekend(now) {
		return PhaseWeekendClosed, NextOpen(now).Sub(now)
	}

	windows := SessionWindows(now)
	morning, afternoon := windows[0], windows[1]
	switch {
	case now.Before(morning.Start):
		return PhasePreMorning, morning.Start.Sub(now)
	case morning.Contains(now):
		return PhaseMorningTrading, morning.End.Sub(now)
	case now.Before(afternoon.Start):
		return PhaseLunchBreak, afternoon.Start.Sub(now)
	case afternoon.Contains(now):
		return PhaseAfternoonTrading, afternoon.End.Sub(now)
	default:
		return PhasePostClose, NextOpen(now).Sub(now)
	}
}

// IsTrading reports whether the phase is one of the two trading windows.
func (p Phase) IsTrading() bool {
	return p == PhaseMorningTrading || p == PhaseAfternoonTrading
}
