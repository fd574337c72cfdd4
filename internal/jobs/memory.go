package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Memory implements Queue and Consumer in process. It backs unit tests and
// mirrors the Postgres queue's key dedup and redelivery accounting.
type Memory struct {
	mu       sync.Mutex
	nextID   uint64
	byKey    map[string]*Job
	byID     map[uint64]*Job
	disabled bool

	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		nextID: 1,
		byKey:  make(map[string]*Job),
		byID:   make(map[uint64]*Job),
		Now:    time.Now,
	}
}

// NewDisabledMemory returns a queue in degraded mode: every operation
// no-ops successfully.
func NewDisabledMemory() *Memory {
	m := NewMemory()
	m.disabled = true
	return m
}

func (m *Memory) Enabled() bool { return !m.disabled }

func (m *Memory) EnqueueDelayed(_ context.Context, key string, p ReminderPayload, delay time.Duration) error {
	if m.disabled {
		return nil
	}
	if delay < 0 {
		delay = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// only a live job arbitrates the key; a cancelled or failed run is
	// history and the key is free again
	if prev, ok := m.byKey[key]; ok && (prev.Status == StatusPending || prev.Status == StatusRunning) {
		return nil
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	j := &Job{
		ID:          m.nextID,
		UserID:      p.OwnerUserID,
		JobKey:      key,
		Type:        TypeReminderDispatch,
		Payload:     payload,
		RunAt:       m.Now().Add(delay),
		Status:      StatusPending,
		MaxAttempts: 8,
	}
	m.nextID++
	m.byKey[key] = j
	m.byID[j.ID] = j
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (*Job, error) {
	if m.disabled {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (m *Memory) CancelPending(_ context.Context, warrantyID uint64) error {
	if m.disabled {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := warrantyKeyPrefix(warrantyID)
	for _, j := range m.byID {
		if j.Status == StatusPending && strings.HasPrefix(j.JobKey, prefix) {
			j.Status = StatusCancelled
		}
	}
	return nil
}

func (m *Memory) Claim(_ context.Context, workerID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	var pick *Job
	for _, j := range m.byID {
		if j.Status != StatusPending || j.RunAt.After(now) {
			continue
		}
		if pick == nil || j.RunAt.Before(pick.RunAt) {
			pick = j
		}
	}
	if pick == nil {
		return nil, nil
	}
	pick.Status = StatusRunning
	pick.LockedBy = &workerID
	lockedAt := now
	pick.LockedAt = &lockedAt
	cp := *pick
	return &cp, nil
}

func (m *Memory) Done(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.byID[id]; ok {
		j.Status = StatusDone
		j.LockedBy = nil
		j.LockedAt = nil
	}
	return nil
}

func (m *Memory) Fail(_ context.Context, job *Job, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[job.ID]
	if !ok {
		return nil
	}
	j.Attempts++
	j.LastError = &errMsg
	j.LockedBy = nil
	j.LockedAt = nil
	if j.Attempts >= j.MaxAttempts {
		j.Status = StatusFailed
		return nil
	}
	j.Status = StatusPending
	j.RunAt = m.Now().Add(retryBackoff(time.Second, j.Attempts))
	return nil
}

func (m *Memory) Discard(_ context.Context, id uint64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.byID[id]; ok {
		j.Status = StatusFailed
		j.LastError = &reason
		j.LockedBy = nil
		j.LockedAt = nil
	}
	return nil
}

// Pending counts PENDING jobs. Test helper.
func (m *Memory) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.byID {
		if j.Status == StatusPending {
			n++
		}
	}
	return n
}
