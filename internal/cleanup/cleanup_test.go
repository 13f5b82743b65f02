package cleanup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hookbin/hookbin/internal/hub"
	"github.com/hookbin/hookbin/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), 5, 100)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSweepRemovesIdleBinsAndDetachesSubscribers(t *testing.T) {
	s := newTestStore(t)
	h := hub.New(10, zap.NewNop())
	ctx := context.Background()

	bin, err := s.CreateBin(ctx)
	require.NoError(t, err)
	sub := h.Subscribe(bin.ID)

	// a negative expiry puts the cutoff in the future, so the bin is idle
	sched := New(s, h, -time.Second, time.Minute, zap.NewNop())
	sched.Sweep(ctx)

	ok, err := s.Exists(ctx, bin.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ev, open := <-sub.C
	require.True(t, open)
	assert.Equal(t, hub.EventBinClosed, ev.Kind)
	_, open = <-sub.C
	assert.False(t, open)
}

func TestSweepKeepsActiveBins(t *testing.T) {
	s := newTestStore(t)
	h := hub.New(10, zap.NewNop())
	ctx := context.Background()

	bin, err := s.CreateBin(ctx)
	require.NoError(t, err)

	sched := New(s, h, time.Hour, time.Minute, zap.NewNop())
	sched.Sweep(ctx)

	ok, err := s.Exists(ctx, bin.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := newTestStore(t)
	h := hub.New(10, zap.NewNop())

	sched := New(s, h, time.Hour, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
