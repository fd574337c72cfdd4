package warranty

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	cases := []struct {
		name   string
		in     time.Time
		months int
		want   time.Time
	}{
		{"leap february", date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{"non-leap february", date(2023, time.January, 31), 1, date(2023, time.February, 28)},
		{"thirty-day month", date(2024, time.March, 31), 1, date(2024, time.April, 30)},
		{"no clamp needed", date(2024, time.January, 15), 1, date(2024, time.February, 15)},
		{"across year end", date(2024, time.November, 30), 3, date(2025, time.February, 28)},
		{"multi year", date(2022, time.May, 10), 24, date(2024, time.May, 10)},
		{"zero months", date(2024, time.July, 31), 0, date(2024, time.July, 31)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AddMonths(tc.in, tc.months))
		})
	}
}

func TestAddMonthsNegative(t *testing.T) {
	assert.Equal(t, date(2024, time.February, 29), AddMonths(date(2024, time.March, 31), -1))
	assert.Equal(t, date(2023, time.December, 15), AddMonths(date(2024, time.January, 15), -1))
}

func TestAddMonthsKeepsClockAndLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	in := time.Date(2024, time.January, 31, 13, 45, 12, 0, loc)
	got := AddMonths(in, 1)
	assert.Equal(t, 13, got.Hour())
	assert.Equal(t, 45, got.Minute())
	assert.Equal(t, loc, got.Location())
	assert.Equal(t, 29, got.Day())
}
