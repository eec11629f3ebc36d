package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBuilder struct {
	calls atomic.Int32
	err   error
}

func (b *countingBuilder) Build(ctx context.Context, req Request) (Result, error) {
	b.calls.Add(1)
	if b.err != nil {
		return Result{}, b.err
	}
	return IDBuilder{}.Build(ctx, req)
}

func TestIDBuilder(t *testing.T) {
	res, err := IDBuilder{}.Build(context.Background(), Request{RepoID: "repo_1", Commit: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, "repo_1-abc123", res.SnapshotID)

	res, err = IDBuilder{}.Build(context.Background(), Request{RepoID: "repo_1"})
	require.NoError(t, err)
	assert.Equal(t, "repo_1-HEAD", res.SnapshotID)

	_, err = IDBuilder{}.Build(context.Background(), Request{RepoID: "  "})
	assert.ErrorIs(t, err, ErrMissingRepo)
}

func TestCache_Memoizes(t *testing.T) {
	inner := &countingBuilder{}
	c, err := NewCache(inner)
	require.NoError(t, err)

	for range 3 {
		res, err := c.Build(context.Background(), Request{RepoID: "repo_1"})
		require.NoError(t, err)
		assert.Equal(t, "repo_1-HEAD", res.SnapshotID)
	}

	// explicit HEAD is the same snapshot as the default
	_, err = c.Build(context.Background(), Request{RepoID: "repo_1", Commit: "HEAD"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, uint64(1), c.Builds())
	assert.Equal(t, uint64(3), c.Hits())
	assert.Equal(t, 1, c.Len())
}

func TestCache_DoesNotCacheErrors(t *testing.T) {
	inner := &countingBuilder{err: errors.New("clone failed")}
	c, err := NewCache(inner)
	require.NoError(t, err)

	_, err = c.Build(context.Background(), Request{RepoID: "repo_1"})
	require.Error(t, err)
	_, err = c.Build(context.Background(), Request{RepoID: "repo_1"})
	require.Error(t, err)

	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCache_Evicts(t *testing.T) {
	inner := &countingBuilder{}
	c, err := NewCache(inner, func(o *CacheOptions) { o.Size = 1 })
	require.NoError(t, err)

	ctx := context.Background()
	_, _ = c.Build(ctx, Request{RepoID: "a"})
	_, _ = c.Build(ctx, Request{RepoID: "b"})
	_, _ = c.Build(ctx, Request{RepoID: "a"})

	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCache_Concurrent(t *testing.T) {
	c, err := NewCache(nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Build(context.Background(), Request{RepoID: "repo_1", Commit: "abc"})
			assert.NoError(t, err)
			assert.Equal(t, "repo_1-abc", res.SnapshotID)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1), c.Builds())
}

func TestNewCache_InvalidSize(t *testing.T) {
	_, err := NewCache(nil, func(o *CacheOptions) { o.Size = 0 })
	assert.Error(t, err)
}
