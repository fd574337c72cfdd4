package alert

import "time"

// Status is the alert lifecycle state. SCHEDULED is the only non-terminal
// state; SENT, CANCELLED and FAILED are terminal (a FAILED alert may still
// be healed by broker redelivery, but never auto-retries itself).
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusSent      Status = "SENT"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// Alert is one persisted scheduled reminder for a warranty.
type Alert struct {
	ID         uint64  `gorm:"primaryKey" json:"id"`
	UserID     uint64  `gorm:"index;not null" json:"user_id"`
	WarrantyID uint64  `gorm:"index;not null" json:"warranty_id"`
	ArticleID  *uint64 `gorm:"index" json:"article_id,omitempty"`
	Kind       string  `gorm:"not null" json:"kind"`
	Label      string  `gorm:"type:text;not null" json:"label"`

	// AlerteDate is the instant the reminder is scheduled to fire.
	AlerteDate time.Time `gorm:"index;not null" json:"alerte_date"`

	Status       Status     `gorm:"index;not null;default:'SCHEDULED'" json:"status"`
	SentAt       *time.Time `gorm:"type:timestamptz" json:"sent_at,omitempty"`
	FailedAt     *time.Time `gorm:"type:timestamptz" json:"failed_at,omitempty"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}
