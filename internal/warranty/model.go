package warranty

import (
	"time"

	"github.com/lib/pq"
)

// Article is an owned inventory item a warranty can cover.
type Article struct {
	ID        uint64         `gorm:"primaryKey"`
	UserID    uint64         `gorm:"index;not null"`
	Name      string         `gorm:"type:text;not null"`
	Tags      pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	CreatedAt time.Time      `gorm:"not null;default:now()"`
}

// Warranty is a coverage period for an article. EndDate is always derived
// from PurchaseDate + DurationMonths with calendar-aware addition; it is
// recomputed on every purchase-date or duration change, never written
// independently.
type Warranty struct {
	ID             uint64    `gorm:"primaryKey"`
	UserID         uint64    `gorm:"index;not null"`
	ArticleID      uint64    `gorm:"index;not null"`
	PurchaseDate   time.Time `gorm:"type:date;not null"`
	DurationMonths int       `gorm:"not null"`
	EndDate        time.Time `gorm:"type:date;not null"`
	Valid          bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time `gorm:"not null;default:now()"`
	UpdatedAt      time.Time `gorm:"not null;default:now()"`
}
