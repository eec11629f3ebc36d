// Package snapshot builds the workspace snapshot identifiers attached to
// runner jobs. A snapshot pins a repository at a commit; the identifier is
// "<repo_id>-<commit>".
package snapshot

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/runmesh/logging"
)

// DefaultCommit is used when a request names no commit.
const DefaultCommit = "HEAD"

// DefaultCacheSize bounds the number of memoized snapshots.
const DefaultCacheSize = 256

// ErrMissingRepo is returned for requests without a repository id.
var ErrMissingRepo = errors.New("snapshot: missing repo id")

// Request asks for a snapshot of RepoID at Commit.
type Request struct {
	RepoID string `json:"repo_id"`
	Commit string `json:"commit"`
}

// Normalize trims the fields and fills the default commit.
func (r Request) Normalize() Request {
	r.RepoID = strings.TrimSpace(r.RepoID)
	r.Commit = strings.TrimSpace(r.Commit)
	if r.Commit == "" {
		r.Commit = DefaultCommit
	}
	return r
}

// Result identifies a built snapshot.
type Result struct {
	SnapshotID string `json:"snapshot_id"`
}

// Builder produces snapshots.
type Builder interface {
	Build(ctx context.Context, req Request) (Result, error)
}

// IDBuilder derives the snapshot id from the request alone.
type IDBuilder struct{}

// Build returns "<repo_id>-<commit>".
func (IDBuilder) Build(_ context.Context, req Request) (Result, error) {
	req = req.Normalize()
	if req.RepoID == "" {
		return Result{}, ErrMissingRepo
	}
	return Result{SnapshotID: req.RepoID + "-" + req.Commit}, nil
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	Size   int
	Logger logging.Logger
}

// Cache memoizes a Builder in a bounded LRU. Concurrent builds of the same
// snapshot are coalesced into one call.
type Cache struct {
	next   Builder
	cache  *lru.Cache[Request, Result]
	group  singleflight.Group
	logger logging.Logger

	hits   atomic.Uint64
	builds atomic.Uint64
}

// NewCache wraps next. A nil next uses IDBuilder.
func NewCache(next Builder, optFns ...func(o *CacheOptions)) (*Cache, error) {
	opts := CacheOptions{Size: DefaultCacheSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	if next == nil {
		next = IDBuilder{}
	}

	cache, err := lru.New[Request, Result](opts.Size)
	if err != nil {
		return nil, err
	}

	return &Cache{next: next, cache: cache, logger: logging.OrNoOp(opts.Logger)}, nil
}

// Build returns the memoized snapshot or builds it.
func (c *Cache) Build(ctx context.Context, req Request) (Result, error) {
	req = req.Normalize()
	if req.RepoID == "" {
		return Result{}, ErrMissingRepo
	}

	if res, ok := c.cache.Get(req); ok {
		c.hits.Add(1)
		return res, nil
	}

	v, err, _ := c.group.Do(req.RepoID+"@"+req.Commit, func() (any, error) {
		if res, ok := c.cache.Get(req); ok {
			return res, nil
		}

		c.builds.Add(1)
		res, err := c.next.Build(ctx, req)
		if err != nil {
			return Result{}, err
		}
		c.cache.Add(req, res)
		c.logger.Debug("Snapshot built", "repo_id", req.RepoID, "commit", req.Commit, "snapshot_id", res.SnapshotID)

		return res, nil
	})
	if err != nil {
		return Result{}, err
	}

	return v.(Result), nil
}

// Hits returns how many builds were served from the cache.
func (c *Cache) Hits() uint64 { return c.hits.Load() }

// Builds returns how many times the wrapped builder ran.
func (c *Cache) Builds() uint64 { return c.builds.Load() }

// Len returns the number of cached snapshots.
func (c *Cache) Len() int { return c.cache.Len() }

var (
	_ Builder = IDBuilder{}
	_ Builder = (*Cache)(nil)
)
