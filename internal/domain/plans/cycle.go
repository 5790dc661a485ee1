package plans

import "time"

// CycleEnd returns the end of a billing cycle that starts at start: the same
// day of the next month. When the next month is shorter (e.g. Jan 31), the
// end clamps to the last day of that month instead of spilling over.
func CycleEnd(start time.Time) time.Time {
	y, m, d := start.Date()
	loc := start.Location()

	firstOfNext := time.Date(y, m+1, 1, start.Hour(), start.Minute(), start.Second(), 0, loc)
	lastDay := daysIn(firstOfNext.Year(), firstOfNext.Month())
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), d, start.Hour(), start.Minute(), start.Second(), 0, loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
