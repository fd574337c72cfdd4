package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory Store used by unit tests. Same transition rules as
// the Postgres store.
type Memory struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*Alert
}

func NewMemory() *Memory {
	return &Memory{nextID: 1, rows: make(map[uint64]*Alert)}
}

func (m *Memory) CreateAlerts(_ context.Context, ownerUserID, warrantyID uint64, articleID *uint64, items []NewAlert) ([]Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(ownerUserID, warrantyID, articleID, items)
}

func (m *Memory) create(ownerUserID, warrantyID uint64, articleID *uint64, items []NewAlert) ([]Alert, error) {
	out := make([]Alert, 0, len(items))
	for _, it := range items {
		// same constraint as the uq_alerts_active_kind partial index
		for _, a := range m.rows {
			if a.WarrantyID == warrantyID && a.Kind == it.Kind && a.Status == StatusScheduled {
				return nil, fmt.Errorf("alert already scheduled for warranty %d kind %s", warrantyID, it.Kind)
			}
		}
		a := &Alert{
			ID:         m.nextID,
			UserID:     ownerUserID,
			WarrantyID: warrantyID,
			ArticleID:  articleID,
			Kind:       it.Kind,
			Label:      it.Label,
			AlerteDate: it.ExecuteAt,
			Status:     StatusScheduled,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		m.nextID++
		m.rows[a.ID] = a
		out = append(out, *a)
	}
	return out, nil
}

func (m *Memory) ReplacePending(_ context.Context, ownerUserID, warrantyID uint64, articleID *uint64, items []NewAlert) ([]Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.WarrantyID == warrantyID && a.Status == StatusScheduled {
			a.Status = StatusCancelled
			a.UpdatedAt = time.Now()
		}
	}
	return m.create(ownerUserID, warrantyID, articleID, items)
}

func (m *Memory) MarkSent(_ context.Context, alertID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[alertID]
	if !ok {
		return ErrNotFound
	}
	if a.Status == StatusScheduled || a.Status == StatusFailed {
		now := time.Now()
		a.Status = StatusSent
		a.SentAt = &now
		a.UpdatedAt = now
	}
	return nil
}

func (m *Memory) MarkFailed(_ context.Context, alertID uint64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[alertID]
	if !ok {
		return ErrNotFound
	}
	if a.Status == StatusScheduled {
		now := time.Now()
		a.Status = StatusFailed
		a.FailedAt = &now
		a.ErrorMessage = &errMsg
		a.UpdatedAt = now
	}
	return nil
}

func (m *Memory) CancelPending(_ context.Context, warrantyID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.rows {
		if a.WarrantyID == warrantyID && a.Status == StatusScheduled {
			a.Status = StatusCancelled
			a.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetStatus(_ context.Context, alertID uint64) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[alertID]
	if !ok {
		return "", ErrNotFound
	}
	return a.Status, nil
}

func (m *Memory) GetByID(_ context.Context, ownerUserID, alertID uint64) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[alertID]
	if !ok || a.UserID != ownerUserID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) ListByOwner(_ context.Context, ownerUserID uint64, status *Status) ([]Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Alert
	for _, a := range m.rows {
		if a.UserID != ownerUserID {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlerteDate.Before(out[j].AlerteDate) })
	return out, nil
}

func (m *Memory) ScanOwnershipDrift(context.Context, uint64) ([]DriftRow, error) {
	// ownership lives in the warranty table; nothing to join against here
	return nil, nil
}

// Get returns a copy of one alert. Test helper.
func (m *Memory) Get(alertID uint64) (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[alertID]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}
