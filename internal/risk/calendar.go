package risk

import "time"

// DayOpen returns local midnight of t in loc.
func DayOpen(loc *time.Location, t time.Time) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SameTradingDay reports whether a and b fall on the same local day in loc.
func SameTradingDay(loc *time.Location, a, b time.Time) bool {
	return DayOpen(loc, a).Equal(DayOpen(loc, b))
}

// SameTradingWeek reports whether a and b fall in the same ISO week in loc.
func SameTradingWeek(loc *time.Location, a, b time.Time) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, aw := a.In(loc).ISOWeek()
	by, bw := b.In(loc).ISOWeek()
	return ay == by && aw == bw
}
