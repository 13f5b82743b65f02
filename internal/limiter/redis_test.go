package limiter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, limit Limit) *Redis {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { client.Close() })

	r, err := NewRedis(client, limit)
	require.NoError(t, err)
	return r
}

func testSource() string {
	return fmt.Sprintf("10.0.0.1-%d", time.Now().UnixNano())
}

func TestRedisAdmitBurst(t *testing.T) {
	r := newTestRedis(t, Limit{Rate: 1, Burst: 3})
	ctx := context.Background()
	source := testSource()

	for i := 0; i < 3; i++ {
		ok, err := r.Admit(ctx, source)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be admitted", i)
	}

	ok, err := r.Admit(ctx, source)
	require.NoError(t, err)
	assert.False(t, ok, "burst exhausted, 4th request should be rejected")
}

func TestRedisRefill(t *testing.T) {
	r := newTestRedis(t, Limit{Rate: 20, Burst: 1})
	ctx := context.Background()
	source := testSource()

	ok, _ := r.Admit(ctx, source)
	require.True(t, ok)
	ok, _ = r.Admit(ctx, source)
	require.False(t, ok)

	time.Sleep(80 * time.Millisecond)

	ok, err := r.Admit(ctx, source)
	require.NoError(t, err)
	assert.True(t, ok, "token should have refilled")
}
