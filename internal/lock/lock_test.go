package lock_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/erp-invoicer/internal/lock"
)

func TestMemory_SerializesSameKey(t *testing.T) {
	locker := lock.NewMemory()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "user-1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

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
	assert.Zero(t, locker.Held())
}

func TestMemory_IndependentKeys(t *testing.T) {
	locker := lock.NewMemory()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, "a")
	require.NoError(t, err)
	releaseB, err := locker.Acquire(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, locker.Held())

	releaseA()
	releaseA()
	releaseB()
	assert.Zero(t, locker.Held())
}

func TestMemory_ContextCancelled(t *testing.T) {
	locker := lock.NewMemory()

	release, err := locker.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, locker.Held())
}

func TestRedis_NotConfigured(t *testing.T) {
	var locker *lock.Redis
	_, _, err := locker.TryAcquire(context.Background(), "a")
	assert.Error(t, err)

	_, err = lock.NewRedis(nil).Acquire(context.Background(), "a")
	assert.Error(t, err)
}

func TestRedis_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	_, err := lock.NewRedis(client).Acquire(context.Background(), "a")
	assert.Error(t, err)
}

func TestRedis_Acquire(t *testing.T) {
	addr := os.Getenv("INVOICER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("INVOICER_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	locker := lock.NewRedis(client, lock.WithTTL(5*time.Second), lock.WithPollInterval(10*time.Millisecond), lock.WithPrefix("test:"+uuid.NewString()+":"))
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "user-1")
	require.NoError(t, err)

	_, ok, err := locker.TryAcquire(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, "user-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()

	token, ok, err := locker.TryAcquire(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)
}
