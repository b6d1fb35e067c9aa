package order

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefLocks_SerializesSameRef(t *testing.T) {
	locks := newRefLocks()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), "order_1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, locks.size())
}

func TestRefLocks_DifferentRefsDoNotBlock(t *testing.T) {
	locks := newRefLocks()

	unlockA, err := locks.Lock(context.Background(), "order_a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locks.Lock(ctx, "order_b")
	require.NoError(t, err)
	unlockB()

	assert.Equal(t, 1, locks.size())
}

func TestRefLocks_ContextCancelled(t *testing.T) {
	locks := newRefLocks()
	unlock, err := locks.Lock(context.Background(), "order_1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locks.Lock(ctx, "order_1")

	assert.ErrorIs(t, err, context.Canceled)
	unlock()
	assert.Zero(t, locks.size())
}

func TestRefLocks_UnlockTwice(t *testing.T) {
	locks := newRefLocks()
	unlock, err := locks.Lock(context.Background(), "order_1")
	require.NoError(t, err)

	unlock()
	unlock()

	again, err := locks.Lock(context.Background(), "order_1")
	require.NoError(t, err)
	again()
	assert.Zero(t, locks.size())
}
