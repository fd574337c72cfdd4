package notify

import (
	"context"
	"time"

	"garantio/internal/log"

	"github.com/sony/gobreaker"
)

// Reminder is the payload handed to the delivery transport.
type Reminder struct {
	OwnerUserID uint64
	WarrantyID  uint64
	Kind        string
	Label       string
	ArticleName string
	EndDate     time.Time
}

// Notifier delivers one reminder. Implementations must be safe for
// concurrent use by multiple workers.
type Notifier interface {
	Send(ctx context.Context, r Reminder) error
}

// LogNotifier stands in for a push/email transport: it only logs.
type LogNotifier struct {
	Logger *log.Logger
}

func (n *LogNotifier) Send(_ context.Context, r Reminder) error {
	n.Logger.Infow("reminder",
		"user_id", r.OwnerUserID,
		"warranty_id", r.WarrantyID,
		"kind", r.Kind,
		"label", r.Label,
		"article", r.ArticleName,
		"end_date", r.EndDate.Format("2006-01-02"),
	)
	return nil
}

// BreakerNotifier wraps a transport in a circuit breaker so a dead
// downstream fails fast instead of holding workers on every redelivery.
type BreakerNotifier struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerNotifier(next Notifier) *BreakerNotifier {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})
	return &BreakerNotifier{next: next, cb: cb}
}

func (n *BreakerNotifier) Send(ctx context.Context, r Reminder) error {
	_, err := n.cb.Execute(func() (any, error) {
		return nil, n.next.Send(ctx, r)
	})
	return err
}
