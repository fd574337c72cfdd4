package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReminderKey(t *testing.T) {
	at := time.Date(2025, time.May, 2, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "warranty:42:J30:20250502", ReminderKey(42, "J30", at))

	// same calendar day, different clock time: same logical reminder
	later := time.Date(2025, time.May, 2, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, ReminderKey(42, "J30", at), ReminderKey(42, "J30", later))
}

func payload(warrantyID, alertID uint64, kind string, at time.Time) ReminderPayload {
	return ReminderPayload{
		WarrantyID:  warrantyID,
		AlertID:     alertID,
		OwnerUserID: 7,
		Kind:        kind,
		ExecuteAt:   at,
	}
}

func TestMemoryEnqueueDedupesByKey(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	at := time.Now().Add(time.Hour)
	key := ReminderKey(42, "J30", at)

	require.NoError(t, q.EnqueueDelayed(ctx, key, payload(42, 1, "J30", at), time.Hour))
	require.NoError(t, q.EnqueueDelayed(ctx, key, payload(42, 1, "J30", at), time.Hour))

	assert.Equal(t, 1, q.Pending())
	job, err := q.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, StatusPending, job.Status)
}

func TestMemoryNegativeDelayFiresImmediately(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	at := time.Now().Add(-time.Minute)
	key := ReminderKey(42, "J1", at)

	require.NoError(t, q.EnqueueDelayed(ctx, key, payload(42, 1, "J1", at), -time.Minute))

	job, err := q.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, key, job.JobKey)
	assert.Equal(t, StatusRunning, job.Status)
}

func TestMemoryClaimRespectsRunAt(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	at := time.Now().Add(time.Hour)

	require.NoError(t, q.EnqueueDelayed(ctx, ReminderKey(42, "J1", at), payload(42, 1, "J1", at), time.Hour))

	job, err := q.Claim(ctx, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestMemoryFailAppliesBackoffThenTerminal(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	at := time.Now()
	key := ReminderKey(42, "J1", at)
	require.NoError(t, q.EnqueueDelayed(ctx, key, payload(42, 1, "J1", at), 0))

	job, err := q.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Fail(ctx, job, "boom"))
	got, _ := q.Get(ctx, key)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, got.RunAt.After(at), "retry must be delayed")

	// exhaust the attempts
	got.Attempts = got.MaxAttempts - 1
	q.byID[got.ID].Attempts = got.MaxAttempts - 1
	require.NoError(t, q.Fail(ctx, got, "boom again"))
	final, _ := q.Get(ctx, key)
	assert.Equal(t, StatusFailed, final.Status)
}

func TestMemoryCancelPendingByWarranty(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	at := time.Now().Add(time.Hour)

	require.NoError(t, q.EnqueueDelayed(ctx, ReminderKey(42, "J30", at), payload(42, 1, "J30", at), time.Hour))
	require.NoError(t, q.EnqueueDelayed(ctx, ReminderKey(42, "J7", at), payload(42, 2, "J7", at), time.Hour))
	require.NoError(t, q.EnqueueDelayed(ctx, ReminderKey(99, "J7", at), payload(99, 3, "J7", at), time.Hour))

	require.NoError(t, q.CancelPending(ctx, 42))
	assert.Equal(t, 1, q.Pending())

	other, _ := q.Get(ctx, ReminderKey(99, "J7", at))
	assert.Equal(t, StatusPending, other.Status)
}

func TestMemoryEnqueueAfterCancelCreatesFreshJob(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	at := time.Now().Add(time.Hour)
	key := ReminderKey(42, "J7", at)

	require.NoError(t, q.EnqueueDelayed(ctx, key, payload(42, 1, "J7", at), time.Hour))
	require.NoError(t, q.CancelPending(ctx, 42))
	require.Equal(t, 0, q.Pending())

	// the cancelled run must not poison the key
	require.NoError(t, q.EnqueueDelayed(ctx, key, payload(42, 2, "J7", at), time.Hour))
	assert.Equal(t, 1, q.Pending())

	job, err := q.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, StatusPending, job.Status)
}

func TestMemoryEnqueueAfterTerminalFailureCreatesFreshJob(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	at := time.Now()
	key := ReminderKey(42, "J1", at)
	require.NoError(t, q.EnqueueDelayed(ctx, key, payload(42, 1, "J1", at), 0))

	job, err := q.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, q.Discard(ctx, job.ID, "poison payload"))

	require.NoError(t, q.EnqueueDelayed(ctx, key, payload(42, 2, "J1", at), 0))
	assert.Equal(t, 1, q.Pending())
}

func TestDisabledQueueNoOps(t *testing.T) {
	ctx := context.Background()
	q := NewDisabledMemory()
	at := time.Now()
	key := ReminderKey(42, "J1", at)

	assert.False(t, q.Enabled())
	require.NoError(t, q.EnqueueDelayed(ctx, key, payload(42, 1, "J1", at), 0))

	job, err := q.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Equal(t, 0, q.Pending())
}

func TestRetryBackoffGrowsAndCaps(t *testing.T) {
	base := time.Second
	prevMax := time.Duration(0)
	for attempts := 1; attempts <= 12; attempts++ {
		d := retryBackoff(base, attempts)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Duration(float64(600*time.Second)*1.2))
		if attempts <= 6 {
			assert.Greater(t, d, prevMax/4, "backoff should trend upward")
		}
		prevMax = d
	}
}
