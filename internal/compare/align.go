package compare

import (
	"time"

	"rail-connection-check/internal/rail"
)

// Calendar returns n local midnights starting at today and walking
// backwards one day at a time.
func Calendar(now time.Time, n int) []time.Time {
	today := rail.Day(now)
	days := make([]time.Time, n)
	for i := range days {
		days[i] = today.AddDate(0, 0, -i)
	}
	return days
}

// Align maps two histories, each sorted most recent first, onto the
// descending day grid. Each route keeps its own cursor: a stop whose
// scheduled arrival falls on the current day fills the slot and advances
// the cursor; otherwise the slot stays nil and the cursor holds.
func Align(days []time.Time, a, b []rail.Stop) (one, two []*rail.Stop) {
	return alignOne(days, a), alignOne(days, b)
}

func alignOne(days []time.Time, hist []rail.Stop) []*rail.Stop {
	out := make([]*rail.Stop, len(days))
	cur := 0
	for i, day := range days {
		// Unlike a strict hold-on-mismatch cursor, entries dated after the
		// current day are dropped: extra runs on an already filled day can
		// never match again and would otherwise stall the cursor.
		for cur < len(hist) && dayIn(hist[cur].SchArr, day).After(day) {
			cur++
		}
		if cur < len(hist) && rail.SameDay(hist[cur].SchArr.In(day.Location()), day) {
			out[i] = &hist[cur]
			cur++
		}
	}
	return out
}

func dayIn(t, ref time.Time) time.Time {
	return rail.Day(t.In(ref.Location()))
}
