package alert

import (
	"context"
	"errors"
	"time"

	"garantio/internal/log"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("alert not found")

// NewAlert is the creation input for one scheduled reminder.
type NewAlert struct {
	Kind      string
	Label     string
	ExecuteAt time.Time
}

// DriftRow is one alert whose owner diverged from its warranty's owner.
type DriftRow struct {
	AlertID     uint64 `json:"alert_id"`
	WarrantyID  uint64 `json:"warranty_id"`
	AlertUserID uint64 `json:"alert_user_id"`
	OwnerUserID uint64 `json:"owner_user_id"`
	AlertStatus string `json:"alert_status"`
}

// Store owns all alert mutation. OwnerUserID on created rows is supplied by
// the orchestrator from the loaded warranty row, never from an HTTP caller,
// which keeps the alert/warranty ownership invariant enforced at write time.
type Store interface {
	CreateAlerts(ctx context.Context, ownerUserID, warrantyID uint64, articleID *uint64, items []NewAlert) ([]Alert, error)

	// ReplacePending cancels every SCHEDULED alert of the warranty and
	// creates the replacement set in one transaction: the reschedule path
	// must never leave a window with both schedules (or neither) active.
	ReplacePending(ctx context.Context, ownerUserID, warrantyID uint64, articleID *uint64, items []NewAlert) ([]Alert, error)

	// MarkSent is idempotent: a redelivered job marking an already-SENT
	// alert is a no-op, not an error.
	MarkSent(ctx context.Context, alertID uint64) error

	// MarkFailed transitions SCHEDULED to FAILED. A SENT alert is never
	// overwritten; that transition is logged as an anomaly and dropped.
	MarkFailed(ctx context.Context, alertID uint64, errMsg string) error

	CancelPending(ctx context.Context, warrantyID uint64) (int64, error)
	GetStatus(ctx context.Context, alertID uint64) (Status, error)

	// GetByID is owner-scoped: another user's alert is ErrNotFound, not
	// a leak.
	GetByID(ctx context.Context, ownerUserID, alertID uint64) (*Alert, error)
	ListByOwner(ctx context.Context, ownerUserID uint64, status *Status) ([]Alert, error)

	// ScanOwnershipDrift joins the caller's warranties against alerts and
	// reports rows whose owners diverged. Diagnostic read path.
	ScanOwnershipDrift(ctx context.Context, ownerUserID uint64) ([]DriftRow, error)
}

// GormStore is the Postgres-backed Store.
type GormStore struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewGormStore(db *gorm.DB, logger *log.Logger) *GormStore {
	return &GormStore{DB: db, Logger: logger}
}

func (s *GormStore) CreateAlerts(ctx context.Context, ownerUserID, warrantyID uint64, articleID *uint64, items []NewAlert) ([]Alert, error) {
	return s.createAlerts(s.DB.WithContext(ctx), ownerUserID, warrantyID, articleID, items)
}

func (s *GormStore) createAlerts(tx *gorm.DB, ownerUserID, warrantyID uint64, articleID *uint64, items []NewAlert) ([]Alert, error) {
	if len(items) == 0 {
		return nil, nil
	}
	rows := make([]Alert, 0, len(items))
	for _, it := range items {
		rows = append(rows, Alert{
			UserID:     ownerUserID,
			WarrantyID: warrantyID,
			ArticleID:  articleID,
			Kind:       it.Kind,
			Label:      it.Label,
			AlerteDate: it.ExecuteAt,
			Status:     StatusScheduled,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStore) ReplacePending(ctx context.Context, ownerUserID, warrantyID uint64, articleID *uint64, items []NewAlert) ([]Alert, error) {
	var created []Alert
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Alert{}).
			Where("warranty_id = ? AND status = ?", warrantyID, StatusScheduled).
			Updates(map[string]any{"status": StatusCancelled, "updated_at": time.Now()}).Error; err != nil {
			return err
		}
		rows, err := s.createAlerts(tx, ownerUserID, warrantyID, articleID, items)
		if err != nil {
			return err
		}
		created = rows
		return nil
	})
	return created, err
}

func (s *GormStore) MarkSent(ctx context.Context, alertID uint64) error {
	now := time.Now()
	res := s.DB.WithContext(ctx).Model(&Alert{}).
		Where("id = ? AND status IN ?", alertID, []Status{StatusScheduled, StatusFailed}).
		Updates(map[string]any{
			"status":     StatusSent,
			"sent_at":    now,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	status, err := s.GetStatus(ctx, alertID)
	if err != nil {
		return err
	}
	if status == StatusSent {
		return nil // duplicate delivery, already sent
	}
	s.Logger.Warnw("mark sent skipped", "alert_id", alertID, "status", status)
	return nil
}

func (s *GormStore) MarkFailed(ctx context.Context, alertID uint64, errMsg string) error {
	now := time.Now()
	res := s.DB.WithContext(ctx).Model(&Alert{}).
		Where("id = ? AND status = ?", alertID, StatusScheduled).
		Updates(map[string]any{
			"status":        StatusFailed,
			"failed_at":     now,
			"error_message": errMsg,
			"updated_at":    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	status, err := s.GetStatus(ctx, alertID)
	if err != nil {
		return err
	}
	if status == StatusSent {
		// out-of-order delivery must not corrupt history
		s.Logger.Errorw("mark failed on sent alert, anomaly", "alert_id", alertID)
		return nil
	}
	s.Logger.Warnw("mark failed skipped", "alert_id", alertID, "status", status)
	return nil
}

func (s *GormStore) CancelPending(ctx context.Context, warrantyID uint64) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&Alert{}).
		Where("warranty_id = ? AND status = ?", warrantyID, StatusScheduled).
		Updates(map[string]any{"status": StatusCancelled, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (s *GormStore) GetStatus(ctx context.Context, alertID uint64) (Status, error) {
	var a Alert
	err := s.DB.WithContext(ctx).Select("id", "status").First(&a, alertID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return a.Status, nil
}

func (s *GormStore) GetByID(ctx context.Context, ownerUserID, alertID uint64) (*Alert, error) {
	var a Alert
	err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", alertID, ownerUserID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *GormStore) ListByOwner(ctx context.Context, ownerUserID uint64, status *Status) ([]Alert, error) {
	q := s.DB.WithContext(ctx).Where("user_id = ?", ownerUserID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var rows []Alert
	if err := q.Order("alerte_date asc").Limit(200).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStore) ScanOwnershipDrift(ctx context.Context, ownerUserID uint64) ([]DriftRow, error) {
	var rows []DriftRow
	err := s.DB.WithContext(ctx).Raw(`
select a.id as alert_id,
       a.warranty_id,
       a.user_id as alert_user_id,
       w.user_id as owner_user_id,
       a.status as alert_status
from alerts a
join warranties w on w.id = a.warranty_id
where a.user_id <> w.user_id
  and w.user_id = ?
order by a.id
`, ownerUserID).Scan(&rows).Error
	return rows, err
}
