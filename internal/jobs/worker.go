package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"garantio/internal/alert"
	"garantio/internal/log"
	"garantio/internal/metrics"
	"garantio/internal/notify"

	"gorm.io/gorm"
)

var ErrWarrantyNotFound = errors.New("warranty not found")

// WarrantyContext is the read-only slice of a warranty the worker needs to
// build a notification.
type WarrantyContext struct {
	ID          uint64
	UserID      uint64
	EndDate     time.Time
	Valid       bool
	ArticleName string
}

type WarrantyReader interface {
	Load(ctx context.Context, warrantyID uint64) (*WarrantyContext, error)
}

// AlertStore is the slice of the alert store the worker mutates.
type AlertStore interface {
	GetStatus(ctx context.Context, alertID uint64) (alert.Status, error)
	MarkSent(ctx context.Context, alertID uint64) error
	MarkFailed(ctx context.Context, alertID uint64, errMsg string) error
}

// GormWarrantyReader loads warranty context without importing the warranty
// package; it only needs this projection.
type GormWarrantyReader struct {
	DB *gorm.DB
}

type warrantyRow struct {
	ID          uint64    `gorm:"column:id"`
	UserID      uint64    `gorm:"column:user_id"`
	EndDate     time.Time `gorm:"column:end_date"`
	Valid       bool      `gorm:"column:valid"`
	ArticleName string    `gorm:"column:article_name"`
}

func (r *GormWarrantyReader) Load(ctx context.Context, warrantyID uint64) (*WarrantyContext, error) {
	var row warrantyRow
	err := r.DB.WithContext(ctx).Raw(`
select w.id, w.user_id, w.end_date, w.valid, coalesce(a.name, '') as article_name
from warranties w
left join articles a on a.id = w.article_id
where w.id = ?`, warrantyID).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, ErrWarrantyNotFound
	}
	return &WarrantyContext{
		ID:          row.ID,
		UserID:      row.UserID,
		EndDate:     row.EndDate,
		Valid:       row.Valid,
		ArticleName: row.ArticleName,
	}, nil
}

// Worker consumes due reminder jobs. It performs no internal retry: a
// failed execution records FAILED on the alert, then hands the job back to
// the queue's redelivery policy.
type Worker struct {
	ID         string
	Queue      Consumer
	Alerts     AlertStore
	Warranties WarrantyReader
	Notifier   notify.Notifier
	Logger     *log.Logger
	Metrics    *metrics.ReminderMetrics
	Interval   time.Duration
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.Queue.Claim(ctx, w.ID)
			if err != nil {
				w.Logger.Errorw("claim failed", "worker", w.ID, "err", err)
				continue
			}
			if job == nil {
				continue
			}
			w.Process(ctx, job)
		}
	}
}

// Process runs one claimed job to a terminal queue state.
func (w *Worker) Process(ctx context.Context, job *Job) {
	if job.Type != TypeReminderDispatch {
		_ = w.Queue.Discard(ctx, job.ID, "unknown job type")
		return
	}

	var p ReminderPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		_ = w.Queue.Discard(ctx, job.ID, "bad payload")
		return
	}

	status, err := w.Alerts.GetStatus(ctx, p.AlertID)
	if errors.Is(err, alert.ErrNotFound) {
		w.skip(ctx, job, &p, "missing_alert")
		return
	}
	if err != nil {
		_ = w.Queue.Fail(ctx, job, fmt.Sprintf("alert status read: %v", err))
		return
	}
	// cancelPending cannot always retract an enqueued job; honoring the
	// status here is what makes cancellation effective. SENT means a
	// duplicate delivery.
	if status == alert.StatusCancelled || status == alert.StatusSent {
		w.skip(ctx, job, &p, "not_scheduled")
		return
	}

	wc, err := w.Warranties.Load(ctx, p.WarrantyID)
	if errors.Is(err, ErrWarrantyNotFound) {
		w.Logger.Warnw("warranty gone, nothing to send",
			"worker", w.ID, "warranty_id", p.WarrantyID, "alert_id", p.AlertID)
		w.skip(ctx, job, &p, "missing_warranty")
		return
	}
	if err != nil {
		_ = w.Queue.Fail(ctx, job, fmt.Sprintf("warranty read: %v", err))
		return
	}
	if !wc.Valid {
		w.skip(ctx, job, &p, "invalid_warranty")
		return
	}

	sendErr := w.Notifier.Send(ctx, notify.Reminder{
		OwnerUserID: wc.UserID,
		WarrantyID:  wc.ID,
		Kind:        p.Kind,
		Label:       labelFor(p.Kind),
		ArticleName: wc.ArticleName,
		EndDate:     wc.EndDate,
	})
	if sendErr != nil {
		// record the failure before signaling the queue, never after
		if err := w.Alerts.MarkFailed(ctx, p.AlertID, sendErr.Error()); err != nil {
			w.Logger.Errorw("mark failed errored", "alert_id", p.AlertID, "err", err)
		}
		if w.Metrics != nil {
			w.Metrics.RemindersFailed.WithLabelValues(p.Kind).Inc()
		}
		_ = w.Queue.Fail(ctx, job, sendErr.Error())
		return
	}

	if err := w.Alerts.MarkSent(ctx, p.AlertID); err != nil {
		// delivered but unrecorded; redelivery will re-send, MarkSent is
		// idempotent so the record converges on SENT
		_ = w.Queue.Fail(ctx, job, fmt.Sprintf("mark sent: %v", err))
		return
	}
	if w.Metrics != nil {
		w.Metrics.RemindersSent.WithLabelValues(p.Kind).Inc()
	}
	_ = w.Queue.Done(ctx, job.ID)
}

func (w *Worker) skip(ctx context.Context, job *Job, p *ReminderPayload, reason string) {
	w.Logger.Infow("job skipped", "worker", w.ID, "alert_id", p.AlertID, "reason", reason)
	if w.Metrics != nil {
		w.Metrics.RemindersSkipped.WithLabelValues(reason).Inc()
	}
	_ = w.Queue.Done(ctx, job.ID)
}

func labelFor(kind string) string {
	switch kind {
	case "J30":
		return "warranty expires in 30 days"
	case "J7":
		return "warranty expires in 7 days"
	case "J1":
		return "warranty expires tomorrow"
	}
	return "warranty expiring"
}

// WorkerPool owns the worker goroutines' lifecycle. Start is idempotent by
// construction: the first call spawns the workers, later calls return the
// same running pool.
type WorkerPool struct {
	count   int
	mk      func(id string) *Worker
	startMu sync.Once
	stopMu  sync.Once
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewWorkerPool(count int, mk func(id string) *Worker) *WorkerPool {
	if count < 1 {
		count = 1
	}
	return &WorkerPool{count: count, mk: mk}
}

func (p *WorkerPool) Start(ctx context.Context) *WorkerPool {
	p.startMu.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		for i := 0; i < p.count; i++ {
			w := p.mk(fmt.Sprintf("worker-%d", i+1))
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				w.Run(ctx)
			}()
		}
	})
	return p
}

// Stop cancels the workers and waits for them to drain. Safe to call more
// than once.
func (p *WorkerPool) Stop() {
	p.stopMu.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
	})
}
