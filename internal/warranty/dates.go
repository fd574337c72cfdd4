package warranty

import "time"

// AddMonths adds whole calendar months, clamping to the last day of the
// target month when the source day does not exist there (Jan 31 + 1 month
// is Feb 28/29, not Mar 2/3). time.AddDate normalizes overflow instead of
// clamping, which drifts reminder dates on long durations, so the
// year/month arithmetic is done by hand.
func AddMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()

	total := year*12 + int(month) - 1 + months
	ny := total / 12
	nm := time.Month(total%12 + 1)
	if total < 0 && total%12 != 0 {
		ny--
		nm = time.Month(total%12 + 13)
	}

	if last := daysInMonth(ny, nm); day > last {
		day = last
	}

	h, min, sec := t.Clock()
	return time.Date(ny, nm, day, h, min, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
