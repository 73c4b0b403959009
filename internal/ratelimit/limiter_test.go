package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodgate.io/floodgate/internal/testutil"
)

func TestAdmit_UnderLimit(t *testing.T) {
	client := testutil.OpenRedis(t)
	limiter := NewLimiter(client, time.Minute, 5)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		ok, err := limiter.Admit(ctx, "u1", now, fmt.Sprintf("marker-%d", i))
		require.NoError(t, err)
		assert.True(t, ok, "admission %d should pass", i)
	}

	ok, err := limiter.Admit(ctx, "u1", now, "marker-over")
	require.NoError(t, err)
	assert.False(t, ok, "sixth admission must be rejected")
}

func TestAdmit_WindowSlides(t *testing.T) {
	client := testutil.OpenRedis(t)
	limiter := NewLimiter(client, time.Minute, 2)
	ctx := context.Background()
	base := time.Now()

	ok, err := limiter.Admit(ctx, "u1", base, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = limiter.Admit(ctx, "u1", base, "m2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Admit(ctx, "u1", base.Add(time.Second), "m3")
	require.NoError(t, err)
	assert.False(t, ok, "window still full one second later")

	// Both markers age out past the window, capacity returns.
	later := base.Add(time.Minute + time.Second)
	ok, err = limiter.Admit(ctx, "u1", later, "m4")
	require.NoError(t, err)
	assert.True(t, ok, "expired markers must be purged on check")
}

func TestAdmit_PerUserIsolation(t *testing.T) {
	client := testutil.OpenRedis(t)
	limiter := NewLimiter(client, time.Minute, 1)
	ctx := context.Background()
	now := time.Now()

	ok, err := limiter.Admit(ctx, "u1", now, "m1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Admit(ctx, "u2", now, "m2")
	require.NoError(t, err)
	assert.True(t, ok, "u2's window is independent of u1's")
}

func TestAdmit_NoOverAdmissionUnderRace(t *testing.T) {
	client := testutil.OpenRedis(t)

	const limit = 10
	const attempts = 50
	limiter := NewLimiter(client, time.Minute, limit)
	ctx := context.Background()
	now := time.Now()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := limiter.Admit(ctx, "hot-user", now, fmt.Sprintf("m-%d", i))
			assert.NoError(t, err)
			if ok {
				admitted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load(),
		"exactly the remaining capacity is admitted under concurrency")
}

func TestAdmit_RedisDown(t *testing.T) {
	client := testutil.OpenRedis(t)
	limiter := NewLimiter(client, time.Minute, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := limiter.Admit(ctx, "u1", time.Now(), "m1")
	assert.Error(t, err, "transport failure must surface as an error, not an admission")
	assert.False(t, ok)
}
