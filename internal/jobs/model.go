package jobs

import (
	"fmt"
	"time"
)

const TypeReminderDispatch = "REMINDER_DISPATCH"

// Job statuses. PENDING jobs become claimable once run_at passes; RUNNING
// jobs whose lock went stale are requeued by the claimer.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusDone      = "DONE"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

type Job struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"index;not null"`

	// JobKey dedupes logical reminders: enqueueing the same key twice
	// yields exactly one deliverable job. Uniqueness covers only live
	// rows (the uq_jobs_live_key partial index), so a cancelled or
	// terminally failed run frees the key for re-scheduling.
	JobKey string `gorm:"type:text;index;not null"`

	Type    string `gorm:"type:text;not null"` // REMINDER_DISPATCH
	Payload []byte `gorm:"type:jsonb;not null;default:'{}'::jsonb"`

	RunAt  time.Time `gorm:"index;not null"`
	Status string    `gorm:"index;not null;default:'PENDING'"`

	Attempts    int `gorm:"not null;default:0"`
	MaxAttempts int `gorm:"not null;default:8"`

	LockedBy *string    `gorm:"type:text"`
	LockedAt *time.Time `gorm:"type:timestamptz"`

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// ReminderPayload is the wire shape persisted in the job row.
type ReminderPayload struct {
	WarrantyID  uint64    `json:"warrantyId"`
	AlertID     uint64    `json:"alertId"`
	OwnerUserID uint64    `json:"ownerUserId"`
	Kind        string    `json:"reminderKind"`
	ExecuteAt   time.Time `json:"executeAt"`
}

// ReminderKey builds the stable dedup key for one logical reminder:
// warranty:{id}:{kind}:{YYYYMMDD}.
func ReminderKey(warrantyID uint64, kind string, executeAt time.Time) string {
	return fmt.Sprintf("warranty:%d:%s:%s", warrantyID, kind, executeAt.Format("20060102"))
}

// warrantyKeyPrefix matches every job key of one warranty regardless of
// kind or date.
func warrantyKeyPrefix(warrantyID uint64) string {
	return fmt.Sprintf("warranty:%d:", warrantyID)
}
