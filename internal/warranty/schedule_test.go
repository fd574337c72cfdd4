package warranty

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeScheduleAllFuture(t *testing.T) {
	endDate := date(2025, time.June, 1)
	now := date(2025, time.January, 1)

	got := ComputeSchedule(endDate, now, false)
	require.Len(t, got, 3)

	assert.Equal(t, KindJ30, got[0].Kind)
	assert.Equal(t, date(2025, time.May, 2), got[0].ExecuteAt)
	assert.Equal(t, KindJ7, got[1].Kind)
	assert.Equal(t, date(2025, time.May, 25), got[1].ExecuteAt)
	assert.Equal(t, KindJ1, got[2].Kind)
	assert.Equal(t, date(2025, time.May, 31), got[2].ExecuteAt)

	for _, c := range got {
		assert.True(t, c.ExecuteAt.After(now))
	}
}

func TestComputeScheduleFiltersPast(t *testing.T) {
	endDate := date(2025, time.January, 5)
	now := date(2025, time.January, 1)

	got := ComputeSchedule(endDate, now, false)
	require.Len(t, got, 1)
	assert.Equal(t, KindJ1, got[0].Kind)
	assert.Equal(t, date(2025, time.January, 4), got[0].ExecuteAt)
}

func TestComputeScheduleBoundaryIsNotFuture(t *testing.T) {
	endDate := date(2025, time.January, 31)
	now := date(2025, time.January, 30) // J1 falls exactly on now

	got := ComputeSchedule(endDate, now, false)
	assert.Empty(t, got)
}

func TestComputeScheduleIncludePast(t *testing.T) {
	endDate := date(2025, time.January, 5)
	now := date(2025, time.January, 1)

	got := ComputeSchedule(endDate, now, true)
	require.Len(t, got, 3)
	assert.Equal(t, date(2024, time.December, 6), got[0].ExecuteAt)
	assert.Equal(t, date(2024, time.December, 29), got[1].ExecuteAt)
}

func TestComputeScheduleDeterministic(t *testing.T) {
	endDate := date(2026, time.March, 15)
	now := date(2025, time.August, 29)
	assert.Equal(t, ComputeSchedule(endDate, now, false), ComputeSchedule(endDate, now, false))
}
