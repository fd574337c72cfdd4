package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"garantio/internal/log"
	"garantio/internal/metrics"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Queue is the producer side: schedule a delayed job under a dedup key.
// A disabled queue (degraded mode) turns every operation into a logged
// no-op that returns success, so warranty writes never fail because the
// notification subsystem is down.
type Queue interface {
	Enabled() bool
	EnqueueDelayed(ctx context.Context, key string, p ReminderPayload, delay time.Duration) error
	Get(ctx context.Context, key string) (*Job, error)
	CancelPending(ctx context.Context, warrantyID uint64) error
}

// Consumer is the worker side. Fail applies the broker redelivery policy
// (exponential backoff with jitter, FAILED after MaxAttempts); Discard
// fails a job terminally, for payloads that can never succeed.
type Consumer interface {
	Claim(ctx context.Context, workerID string) (*Job, error)
	Done(ctx context.Context, id uint64) error
	Fail(ctx context.Context, job *Job, errMsg string) error
	Discard(ctx context.Context, id uint64, reason string) error
}

// GormQueue implements Queue and Consumer on the jobs table.
type GormQueue struct {
	DB      *gorm.DB
	Logger  *log.Logger
	Metrics *metrics.ReminderMetrics

	enabled      bool
	maxAttempts  int
	retryBackoff time.Duration
	stuckAfter   time.Duration
	now          func() time.Time
}

func NewGormQueue(db *gorm.DB, logger *log.Logger, m *metrics.ReminderMetrics, enabled bool) *GormQueue {
	return &GormQueue{
		DB:           db,
		Logger:       logger,
		Metrics:      m,
		enabled:      enabled,
		maxAttempts:  8,
		retryBackoff: time.Second,
		stuckAfter:   5 * time.Minute,
		now:          time.Now,
	}
}

func (q *GormQueue) Enabled() bool { return q.enabled }

// liveStatusExpr is the predicate of the uq_jobs_live_key partial index;
// the insert's conflict target must name it verbatim for Postgres to infer
// the index.
var liveStatusExpr = clause.Expr{SQL: "status in ('PENDING', 'RUNNING')"}

func (q *GormQueue) EnqueueDelayed(ctx context.Context, key string, p ReminderPayload, delay time.Duration) error {
	if !q.enabled {
		q.Logger.Infow("queue disabled, enqueue skipped", "job_key", key)
		return nil
	}
	if delay < 0 {
		delay = 0
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	j := Job{
		UserID:      p.OwnerUserID,
		JobKey:      key,
		Type:        TypeReminderDispatch,
		Payload:     payload,
		RunAt:       q.now().Add(delay),
		Status:      StatusPending,
		MaxAttempts: q.maxAttempts,
	}

	// uq_jobs_live_key makes re-scheduling idempotent while a live job
	// holds the key; cancelled and failed rows do not arbitrate, so a
	// re-scheduled reminder gets a fresh deliverable row
	res := q.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "job_key"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{liveStatusExpr}},
		DoNothing:   true,
	}).Create(&j)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		q.Logger.Debugw("duplicate job key, enqueue ignored", "job_key", key)
		if q.Metrics != nil {
			q.Metrics.JobsDeduplicated.Inc()
		}
		return nil
	}
	if q.Metrics != nil {
		q.Metrics.JobsEnqueued.Inc()
	}
	return nil
}

func (q *GormQueue) Get(ctx context.Context, key string) (*Job, error) {
	if !q.enabled {
		return nil, nil
	}
	// a key can have dead history rows behind its live one; report the
	// most recent run
	var j Job
	err := q.DB.WithContext(ctx).Where("job_key = ?", key).Order("id desc").First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (q *GormQueue) CancelPending(ctx context.Context, warrantyID uint64) error {
	if !q.enabled {
		return nil
	}
	return q.DB.WithContext(ctx).Exec(`
update jobs
set status=?, updated_at=now()
where status=? and type=? and job_key like ?`,
		StatusCancelled, StatusPending, TypeReminderDispatch,
		warrantyKeyPrefix(warrantyID)+"%").Error
}

// Claim takes one due job atomically using FOR UPDATE SKIP LOCKED, after
// requeueing jobs whose RUNNING lock went stale. Works on Postgres.
func (q *GormQueue) Claim(ctx context.Context, workerID string) (*Job, error) {
	var job Job
	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx.Exec(`
update jobs
set status=?, locked_by=null, locked_at=null, updated_at=now()
where status=? and locked_at is not null and locked_at < now() - make_interval(secs => ?)
`, StatusPending, StatusRunning, q.stuckAfter.Seconds())

		return tx.Raw(`
with cte as (
  select id
  from jobs
  where status=? and run_at <= now()
  order by run_at asc
  for update skip locked
  limit 1
)
update jobs
set status=?, locked_by=?, locked_at=now(), updated_at=now()
where id in (select id from cte)
returning *;
`, StatusPending, StatusRunning, workerID).Scan(&job).Error
	})
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (q *GormQueue) Done(ctx context.Context, id uint64) error {
	return q.DB.WithContext(ctx).
		Exec(`update jobs set status=?, locked_by=null, locked_at=null, updated_at=now() where id=?`,
			StatusDone, id).Error
}

func (q *GormQueue) Fail(ctx context.Context, job *Job, errMsg string) error {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		return q.Discard(ctx, job.ID, errMsg)
	}

	next := q.now().Add(retryBackoff(q.retryBackoff, attempts))
	return q.DB.WithContext(ctx).Exec(`
update jobs
set status=?,
    attempts=?,
    run_at=?,
    locked_by=null,
    locked_at=null,
    last_error=?,
    updated_at=now()
where id=?`, StatusPending, attempts, next, errMsg, job.ID).Error
}

func (q *GormQueue) Discard(ctx context.Context, id uint64, reason string) error {
	return q.DB.WithContext(ctx).
		Exec(`update jobs set status=?, last_error=?, locked_by=null, locked_at=null, updated_at=now() where id=?`,
			StatusFailed, reason, id).Error
}

// retryBackoff is exponential (base * 2^attempts, capped at 10 minutes)
// with +/-20% jitter to avoid thundering-herd redelivery.
func retryBackoff(base time.Duration, attempts int) time.Duration {
	sec := math.Min(base.Seconds()*math.Pow(2, float64(attempts)), 600)
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(sec * jitter * float64(time.Second))
}
