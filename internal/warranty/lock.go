package warranty

import (
	"context"
	"fmt"
	"sync"
	"time"

	"garantio/internal/log"

	"github.com/redis/go-redis/v9"
)

// SchedLock serializes the cancel-then-create sequence per warranty. With
// Redis configured the lock spans processes (SET NX PX); without it, or
// when Redis errors, it degrades to an in-process keyed mutex so scheduling
// never blocks on lock infrastructure being up.
type SchedLock struct {
	rdb    *redis.Client
	logger *log.Logger

	mu    sync.Mutex
	local map[uint64]*sync.Mutex
}

const (
	lockTTL       = 10 * time.Second
	lockRetryWait = 50 * time.Millisecond
	lockRetries   = 40
)

func NewSchedLock(rdb *redis.Client, logger *log.Logger) *SchedLock {
	return &SchedLock{rdb: rdb, logger: logger, local: make(map[uint64]*sync.Mutex)}
}

func (l *SchedLock) WithLock(ctx context.Context, warrantyID uint64, fn func() error) error {
	if l.rdb != nil {
		if done, err := l.withRedisLock(ctx, warrantyID, fn); done {
			return err
		}
		// fall through on Redis unavailability
	}

	mu := l.localMutex(warrantyID)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

func (l *SchedLock) withRedisLock(ctx context.Context, warrantyID uint64, fn func() error) (bool, error) {
	key := fmt.Sprintf("garantio:sched:%d", warrantyID)
	for i := 0; i < lockRetries; i++ {
		ok, err := l.rdb.SetNX(ctx, key, "1", lockTTL).Result()
		if err != nil {
			l.logger.Warnw("redis lock unavailable, using local mutex", "err", err)
			return false, nil
		}
		if ok {
			defer l.rdb.Del(ctx, key)
			return true, fn()
		}
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-time.After(lockRetryWait):
		}
	}
	// holder overstayed the TTL window; proceed rather than drop the write
	l.logger.Warnw("scheduling lock contention timeout", "warranty_id", warrantyID)
	return true, fn()
}

func (l *SchedLock) localMutex(warrantyID uint64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.local[warrantyID]
	if !ok {
		mu = &sync.Mutex{}
		l.local[warrantyID] = mu
	}
	return mu
}
