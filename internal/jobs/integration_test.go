//go:build integration
// +build integration

package jobs_test

import (
	"context"
	"os"
	"testing"
	"time"

	"garantio/internal/jobs"
	"garantio/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(ctx context.Context, t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		pgContainer, err := postgres.RunContainer(ctx,
			testcontainers.WithImage("postgres:15"),
			postgres.WithDatabase("garantio"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("securepassword"),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

		dsn, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	gdb, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&jobs.Job{}))
	require.NoError(t, gdb.Exec(`create unique index if not exists uq_jobs_live_key
on jobs(job_key) where status in ('PENDING', 'RUNNING')`).Error)
	require.NoError(t, gdb.Exec("truncate table jobs").Error)
	return gdb
}

func TestGormQueueIntegration(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(ctx, t)
	q := jobs.NewGormQueue(gdb, log.NewNop(), nil, true)

	at := time.Now().UTC()
	key := jobs.ReminderKey(42, "J7", at)
	p := jobs.ReminderPayload{WarrantyID: 42, AlertID: 1, OwnerUserID: 7, Kind: "J7", ExecuteAt: at}

	// enqueue twice, one deliverable job
	require.NoError(t, q.EnqueueDelayed(ctx, key, p, 0))
	require.NoError(t, q.EnqueueDelayed(ctx, key, p, 0))

	var count int64
	require.NoError(t, gdb.Model(&jobs.Job{}).Where("job_key = ?", key).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// claim takes the job exactly once
	job, err := q.Claim(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, key, job.JobKey)

	second, err := q.Claim(ctx, "worker-b")
	require.NoError(t, err)
	assert.Nil(t, second)

	// fail requeues with backoff and an attempt recorded
	require.NoError(t, q.Fail(ctx, job, "boom"))
	got, err := q.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, got.RunAt.After(time.Now()), "retry must be in the future")

	// done is terminal
	require.NoError(t, q.Done(ctx, job.ID))
	got, err = q.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusDone, got.Status)
}

func TestGormQueueCancelPendingIntegration(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(ctx, t)
	q := jobs.NewGormQueue(gdb, log.NewNop(), nil, true)

	at := time.Now().UTC().Add(time.Hour)
	for i, kind := range []string{"J30", "J7", "J1"} {
		p := jobs.ReminderPayload{WarrantyID: 42, AlertID: uint64(i + 1), OwnerUserID: 7, Kind: kind, ExecuteAt: at}
		require.NoError(t, q.EnqueueDelayed(ctx, jobs.ReminderKey(42, kind, at), p, time.Hour))
	}
	other := jobs.ReminderPayload{WarrantyID: 9, AlertID: 9, OwnerUserID: 7, Kind: "J1", ExecuteAt: at}
	require.NoError(t, q.EnqueueDelayed(ctx, jobs.ReminderKey(9, "J1", at), other, time.Hour))

	require.NoError(t, q.CancelPending(ctx, 42))

	var cancelled, pending int64
	require.NoError(t, gdb.Model(&jobs.Job{}).Where("status = ?", jobs.StatusCancelled).Count(&cancelled).Error)
	require.NoError(t, gdb.Model(&jobs.Job{}).Where("status = ?", jobs.StatusPending).Count(&pending).Error)
	assert.Equal(t, int64(3), cancelled)
	assert.Equal(t, int64(1), pending)

	// a cancelled run frees its key: re-enqueueing the same reminder
	// yields a fresh deliverable job next to the history row
	key := jobs.ReminderKey(42, "J7", at)
	p := jobs.ReminderPayload{WarrantyID: 42, AlertID: 2, OwnerUserID: 7, Kind: "J7", ExecuteAt: at}
	require.NoError(t, q.EnqueueDelayed(ctx, key, p, time.Hour))

	got, err := q.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, jobs.StatusPending, got.Status)

	var live int64
	require.NoError(t, gdb.Model(&jobs.Job{}).
		Where("job_key = ? and status = ?", key, jobs.StatusPending).Count(&live).Error)
	assert.Equal(t, int64(1), live)
}

func TestGormQueueDisabledIntegration(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(ctx, t)
	q := jobs.NewGormQueue(gdb, log.NewNop(), nil, false)

	at := time.Now().UTC()
	key := jobs.ReminderKey(1, "J1", at)
	require.NoError(t, q.EnqueueDelayed(ctx, key, jobs.ReminderPayload{WarrantyID: 1, AlertID: 1, OwnerUserID: 1, Kind: "J1", ExecuteAt: at}, 0))

	var count int64
	require.NoError(t, gdb.Model(&jobs.Job{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

}
