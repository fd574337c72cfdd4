package warranty

import (
	"context"
	"errors"
	"time"

	"garantio/internal/alert"
	"garantio/internal/apperr"
	"garantio/internal/jobs"
	"garantio/internal/log"
	"garantio/internal/metrics"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const maxDurationMonths = 240

// Service is the scheduling orchestrator: it owns warranty writes and the
// derived alert/job fan-out. The worker never calls into it; they share
// only the alert store and the job queue.
type Service struct {
	DB      *gorm.DB
	Alerts  alert.Store
	Queue   jobs.Queue
	Locks   *SchedLock
	Logger  *log.Logger
	Metrics *metrics.ReminderMetrics

	// Now is injectable for deterministic schedule tests.
	Now func() time.Time
}

type CreateInput struct {
	ArticleID      uint64
	PurchaseDate   time.Time
	DurationMonths int
}

type UpdateInput struct {
	PurchaseDate   *time.Time
	DurationMonths *int
	Valid          *bool
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func validateDuration(months int) error {
	if months < 1 || months > maxDurationMonths {
		return apperr.New(apperr.Validation, "duration must be between 1 and 240 months")
	}
	return nil
}

// Create persists a warranty and schedules its reminders. Input errors are
// rejected before anything is written; scheduling problems past the queue
// toggle never fail the write (reminders are best-effort).
func (s *Service) Create(ctx context.Context, userID uint64, in CreateInput) (*Warranty, error) {
	if err := validateDuration(in.DurationMonths); err != nil {
		return nil, err
	}
	if in.PurchaseDate.IsZero() {
		return nil, apperr.New(apperr.Validation, "purchase date required")
	}

	var art Article
	err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", in.ArticleID, userID).First(&art).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "article not found")
	}
	if err != nil {
		return nil, err
	}

	w := Warranty{
		UserID:         userID,
		ArticleID:      in.ArticleID,
		PurchaseDate:   in.PurchaseDate,
		DurationMonths: in.DurationMonths,
		EndDate:        AddMonths(in.PurchaseDate, in.DurationMonths),
		Valid:          true,
	}
	if err := s.DB.WithContext(ctx).Create(&w).Error; err != nil {
		return nil, err
	}

	if err := s.Schedule(ctx, &w); err != nil {
		// the warranty write already succeeded; log, don't surface
		s.Logger.Errorw("scheduling failed", "warranty_id", w.ID, "err", err)
	}
	return &w, nil
}

// Update applies purchase-date/duration/validity changes, recomputes the
// end date, and replaces the pending schedule when it moved.
func (s *Service) Update(ctx context.Context, userID, warrantyID uint64, in UpdateInput) (*Warranty, error) {
	if in.DurationMonths != nil {
		if err := validateDuration(*in.DurationMonths); err != nil {
			return nil, err
		}
	}

	var w Warranty
	err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", warrantyID, userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "warranty not found")
	}
	if err != nil {
		return nil, err
	}

	oldEnd := w.EndDate
	wasValid := w.Valid
	if in.PurchaseDate != nil {
		w.PurchaseDate = *in.PurchaseDate
	}
	if in.DurationMonths != nil {
		w.DurationMonths = *in.DurationMonths
	}
	if in.Valid != nil {
		w.Valid = *in.Valid
	}
	w.EndDate = AddMonths(w.PurchaseDate, w.DurationMonths)
	w.UpdatedAt = time.Now()

	if err := s.DB.WithContext(ctx).Save(&w).Error; err != nil {
		return nil, err
	}

	if err := s.syncSchedule(ctx, &w, oldEnd, wasValid); err != nil {
		s.Logger.Errorw("schedule sync failed", "warranty_id", w.ID, "err", err)
	}
	return &w, nil
}

// syncSchedule reconciles the reminder schedule after a warranty update.
// Invalidation cancels everything; a moved end date or an invalid->valid
// transition supersedes the pending schedule (re-validating with an
// unchanged end date must restore reminders, not leave zero).
func (s *Service) syncSchedule(ctx context.Context, w *Warranty, oldEnd time.Time, wasValid bool) error {
	if !w.Valid {
		return s.CancelAll(ctx, w.ID)
	}
	if !w.EndDate.Equal(oldEnd) || !wasValid {
		return s.Reschedule(ctx, w)
	}
	return nil
}

// Delete removes the warranty and cancels its pending reminders.
func (s *Service) Delete(ctx context.Context, userID, warrantyID uint64) error {
	res := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", warrantyID, userID).Delete(&Warranty{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "warranty not found")
	}
	return s.CancelAll(ctx, warrantyID)
}

// CancelAll cancels pending alerts and pending queue jobs. Already-claimed
// jobs cannot be retracted; the worker's status check covers those.
func (s *Service) CancelAll(ctx context.Context, warrantyID uint64) error {
	n, err := s.Alerts.CancelPending(ctx, warrantyID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.Logger.Infow("alerts cancelled", "warranty_id", warrantyID, "count", n)
	}
	return s.Queue.CancelPending(ctx, warrantyID)
}

// Schedule computes the reminder set for a fresh warranty and fans it out.
// When the queue is disabled no alert rows are created either: the store
// must not accumulate alerts that will never fire.
func (s *Service) Schedule(ctx context.Context, w *Warranty) error {
	return s.Locks.WithLock(ctx, w.ID, func() error {
		now := s.now()
		candidates := ComputeSchedule(w.EndDate, now, false)
		if !s.Queue.Enabled() {
			s.Logger.Infow("queue disabled, reminders not scheduled", "warranty_id", w.ID)
			return nil
		}
		if len(candidates) == 0 {
			s.Logger.Infow("no future reminders for warranty", "warranty_id", w.ID, "end_date", w.EndDate)
			return nil
		}

		created, err := s.Alerts.CreateAlerts(ctx, w.UserID, w.ID, &w.ArticleID, toNewAlerts(candidates))
		if err != nil {
			return err
		}
		return s.enqueue(ctx, w, candidates, created, now)
	})
}

// Reschedule supersedes the pending schedule: cancel-then-create in one
// store transaction, then enqueue. Stale reminders must be gone before
// replacements exist.
func (s *Service) Reschedule(ctx context.Context, w *Warranty) error {
	return s.Locks.WithLock(ctx, w.ID, func() error {
		now := s.now()
		candidates := ComputeSchedule(w.EndDate, now, false)
		if !s.Queue.Enabled() {
			// still drop the stale schedule, it points at a dead end date
			if _, err := s.Alerts.CancelPending(ctx, w.ID); err != nil {
				return err
			}
			s.Logger.Infow("queue disabled, reminders not rescheduled", "warranty_id", w.ID)
			return nil
		}

		if err := s.Queue.CancelPending(ctx, w.ID); err != nil {
			return err
		}
		created, err := s.Alerts.ReplacePending(ctx, w.UserID, w.ID, &w.ArticleID, toNewAlerts(candidates))
		if err != nil {
			return err
		}
		return s.enqueue(ctx, w, candidates, created, now)
	})
}

func (s *Service) enqueue(ctx context.Context, w *Warranty, candidates []Candidate, created []alert.Alert, now time.Time) error {
	for i, c := range candidates {
		delay := c.ExecuteAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		err := s.Queue.EnqueueDelayed(ctx, jobs.ReminderKey(w.ID, string(c.Kind), c.ExecuteAt), jobs.ReminderPayload{
			WarrantyID:  w.ID,
			AlertID:     created[i].ID,
			OwnerUserID: w.UserID,
			Kind:        string(c.Kind),
			ExecuteAt:   c.ExecuteAt,
		}, delay)
		if err != nil {
			return err
		}
		if s.Metrics != nil {
			s.Metrics.AlertsScheduled.WithLabelValues(string(c.Kind)).Inc()
		}
	}
	return nil
}

func toNewAlerts(candidates []Candidate) []alert.NewAlert {
	out := make([]alert.NewAlert, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, alert.NewAlert{
			Kind:      string(c.Kind),
			Label:     c.Kind.Label(),
			ExecuteAt: c.ExecuteAt,
		})
	}
	return out
}

// List returns the owner's warranties, newest first.
func (s *Service) List(ctx context.Context, userID uint64) ([]Warranty, error) {
	var rows []Warranty
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at desc").Limit(200).Find(&rows).Error
	return rows, err
}

// Get returns one owner-scoped warranty.
func (s *Service) Get(ctx context.Context, userID, warrantyID uint64) (*Warranty, error) {
	var w Warranty
	err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", warrantyID, userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "warranty not found")
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateArticle persists an inventory article for the owner.
func (s *Service) CreateArticle(ctx context.Context, userID uint64, name string, tags []string) (*Article, error) {
	if name == "" {
		return nil, apperr.New(apperr.Validation, "name required")
	}
	a := Article{UserID: userID, Name: name, Tags: pq.StringArray(tags)}
	if err := s.DB.WithContext(ctx).Create(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ListArticles returns the owner's articles.
func (s *Service) ListArticles(ctx context.Context, userID uint64) ([]Article, error) {
	var rows []Article
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at desc").Limit(200).Find(&rows).Error
	return rows, err
}
