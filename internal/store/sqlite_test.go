package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxPerBin int) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), 5, maxPerBin)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testHeaders() []Header {
	return []Header{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "X-Test", Value: "a"},
		{Name: "X-Test", Value: "b"},
	}
}

func TestCreateBinAndExists(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	bin, err := s.CreateBin(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, bin.ID)
	assert.WithinDuration(t, time.Now(), bin.LastActivity, 5*time.Second)

	ok, err := s.Exists(ctx, bin.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppendAssignsSequence(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	bin, err := s.CreateBin(ctx)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		req := &CapturedRequest{BinID: bin.ID, Method: "POST", Headers: testHeaders(), Body: []byte("payload")}
		require.NoError(t, s.Append(ctx, req))
		assert.Equal(t, int64(i), req.Seq)
		assert.False(t, req.Timestamp.IsZero())
	}
}

func TestAppendBinNotFound(t *testing.T) {
	s := newTestStore(t, 100)

	req := &CapturedRequest{BinID: "no-such-bin", Method: "GET"}
	err := s.Append(context.Background(), req)
	assert.ErrorIs(t, err, ErrBinNotFound)
}

func TestAppendEvictsOldest(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	bin, err := s.CreateBin(ctx)
	require.NoError(t, err)

	for _, body := range []string{"first", "second", "third"} {
		req := &CapturedRequest{BinID: bin.ID, Method: "POST", Body: []byte(body)}
		require.NoError(t, s.Append(ctx, req))
	}

	reqs, err := s.List(ctx, bin.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, int64(2), reqs[0].Seq)
	assert.Equal(t, "second", string(reqs[0].Body))
	assert.Equal(t, int64(3), reqs[1].Seq)
	assert.Equal(t, "third", string(reqs[1].Body))
}

func TestSequenceSurvivesFullEviction(t *testing.T) {
	s := newTestStore(t, 1)
	ctx := context.Background()

	bin, err := s.CreateBin(ctx)
	require.NoError(t, err)

	var last int64
	for i := 0; i < 3; i++ {
		req := &CapturedRequest{BinID: bin.ID, Method: "GET"}
		require.NoError(t, s.Append(ctx, req))
		assert.Greater(t, req.Seq, last)
		last = req.Seq
	}

	reqs, err := s.List(ctx, bin.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, int64(3), reqs[0].Seq)
}

func TestListPreservesHeaderOrderAndDuplicates(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	bin, err := s.CreateBin(ctx)
	require.NoError(t, err)

	req := &CapturedRequest{BinID: bin.ID, Method: "POST", Headers: testHeaders()}
	require.NoError(t, s.Append(ctx, req))

	reqs, err := s.List(ctx, bin.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, testHeaders(), reqs[0].Headers)
}

func TestListBinNotFound(t *testing.T) {
	s := newTestStore(t, 100)

	_, err := s.List(context.Background(), "no-such-bin")
	assert.ErrorIs(t, err, ErrBinNotFound)
}

func TestListNilBodyStaysNil(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	bin, err := s.CreateBin(ctx)
	require.NoError(t, err)

	req := &CapturedRequest{BinID: bin.ID, Method: "GET"}
	require.NoError(t, s.Append(ctx, req))

	reqs, err := s.List(ctx, bin.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Nil(t, reqs[0].Body)
}

func TestGetRequest(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	bin, err := s.CreateBin(ctx)
	require.NoError(t, err)

	req := &CapturedRequest{BinID: bin.ID, Method: "PUT", Body: []byte("x")}
	require.NoError(t, s.Append(ctx, req))

	got, err := s.GetRequest(ctx, bin.ID, req.Seq)
	require.NoError(t, err)
	assert.Equal(t, "PUT", got.Method)
	assert.Equal(t, []byte("x"), got.Body)

	_, err = s.GetRequest(ctx, bin.ID, 42)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestAppendBumpsLastActivity(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	bin, err := s.CreateBin(ctx)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	req := &CapturedRequest{BinID: bin.ID, Method: "GET"}
	require.NoError(t, s.Append(ctx, req))

	got, err := s.GetBin(ctx, bin.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActivity.After(bin.LastActivity))
}

func TestDeleteExpired(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	stale, err := s.CreateBin(ctx)
	require.NoError(t, err)
	req := &CapturedRequest{BinID: stale.ID, Method: "GET"}
	require.NoError(t, s.Append(ctx, req))

	// A cutoff in the future expires the bin, one in the past does not.
	ids, err := s.DeleteExpired(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = s.DeleteExpired(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{stale.ID}, ids)

	ok, err := s.Exists(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// cascade removed the requests too
	_, err = s.GetRequest(ctx, stale.ID, 1)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestConcurrentAppendsKeepSequencesUnique(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	bin, err := s.CreateBin(ctx)
	require.NoError(t, err)

	const workers = 4
	const perWorker = 5

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				req := &CapturedRequest{BinID: bin.ID, Method: "POST", Body: []byte("c")}
				if err := s.Append(ctx, req); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	reqs, err := s.List(ctx, bin.ID)
	require.NoError(t, err)
	require.Len(t, reqs, workers*perWorker)
	for i, req := range reqs {
		assert.Equal(t, int64(i+1), req.Seq)
	}
}
