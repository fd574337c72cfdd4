package warranty

import (
	"context"
	"sync"
	"testing"

	"garantio/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedLockSerializesPerWarranty(t *testing.T) {
	l := NewSchedLock(nil, log.NewNop())
	ctx := context.Background()

	const workers = 8
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, 42, func() error {
				// non-atomic increment; only safe if the lock serializes
				v := counter
				counter = v + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, workers, counter)
}

func TestSchedLockIndependentKeys(t *testing.T) {
	l := NewSchedLock(nil, log.NewNop())
	ctx := context.Background()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = l.WithLock(ctx, 1, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	// a different warranty must not wait on warranty 1's lock
	ran := false
	require.NoError(t, l.WithLock(ctx, 2, func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	close(release)
}
