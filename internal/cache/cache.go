// Package cache holds the current member snapshot and refreshes it from the
// upstream source when it is older than the caller allows.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/member-qa/internal/model"
	"github.com/sells-group/member-qa/internal/source"
	"github.com/sells-group/member-qa/internal/store"
)

// ErrNoDataAvailable is returned when no snapshot was ever obtained and the
// upstream fetch failed.
var ErrNoDataAvailable = eris.New("cache: no data available")

// StaleDataWarning accompanies a previously fetched snapshot returned because
// a refresh failed. The snapshot is still usable.
type StaleDataWarning struct {
	SnapshotID string
	Age        time.Duration
	Cause      error
}

func (w *StaleDataWarning) Error() string {
	return fmt.Sprintf("cache: serving stale snapshot %s (age %s): %v", w.SnapshotID, w.Age.Round(time.Second), w.Cause)
}

func (w *StaleDataWarning) Unwrap() error {
	return w.Cause
}

// Loader fetches the upstream feed. source.Loader implements it.
type Loader interface {
	Load(ctx context.Context, prevSignature string) (*source.Result, error)
}

// Options configures a Cache.
type Options struct {
	// FetchTimeout bounds one upstream fetch. Default: 30s.
	FetchTimeout time.Duration

	// KeepSnapshots is how many snapshots the store retains. Default: 3.
	KeepSnapshots int

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// Cache is safe for concurrent use. Readers never block on a fetch in
// progress unless their snapshot is too old.
type Cache struct {
	loader Loader
	store  store.Store
	opts   Options

	current atomic.Pointer[model.DatasetSnapshot]
	group   singleflight.Group
}

// New creates a Cache. st may be nil to disable persistence.
func New(loader Loader, st store.Store, opts Options) *Cache {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.KeepSnapshots <= 0 {
		opts.KeepSnapshots = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{loader: loader, store: st, opts: opts}
}

// Current returns the cached snapshot without any I/O, or nil.
func (c *Cache) Current() *model.DatasetSnapshot {
	return c.current.Load()
}

// GetSnapshot returns the cached snapshot when its age is within maxAge and
// otherwise refreshes it. When the refresh fails but an older snapshot exists,
// that snapshot is returned together with a *StaleDataWarning.
func (c *Cache) GetSnapshot(ctx context.Context, maxAge time.Duration) (*model.DatasetSnapshot, error) {
	if cur := c.current.Load(); cur != nil && cur.Age(c.opts.Now()) <= maxAge {
		return cur, nil
	}

	snap, err := c.refresh(ctx, maxAge)
	if err == nil {
		return snap, nil
	}

	if cur := c.current.Load(); cur != nil {
		warn := &StaleDataWarning{SnapshotID: cur.ID, Age: cur.Age(c.opts.Now()), Cause: err}
		zap.L().Warn("cache: refresh failed, serving stale snapshot",
			zap.String("snapshot_id", cur.ID),
			zap.Duration("age", warn.Age),
			zap.Error(err),
		)
		return cur, warn
	}

	zap.L().Error("cache: refresh failed with no snapshot", zap.Error(err))
	return nil, ErrNoDataAvailable
}

// Refresh fetches upstream now. Concurrent callers share one fetch, which
// keeps running if an individual caller gives up.
func (c *Cache) Refresh(ctx context.Context) (*model.DatasetSnapshot, error) {
	return c.refresh(ctx, -1)
}

// refresh fetches unless the snapshot current when the shared call starts is
// within maxAge. A negative maxAge always fetches. The check is repeated here
// because a caller may have seen the old snapshot just before another
// caller's fetch replaced it.
func (c *Cache) refresh(ctx context.Context, maxAge time.Duration) (*model.DatasetSnapshot, error) {
	ch := c.group.DoChan("fetch", func() (any, error) {
		if cur := c.current.Load(); maxAge >= 0 && cur != nil && cur.Age(c.opts.Now()) <= maxAge {
			return cur, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()
		return c.fetch(fctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.DatasetSnapshot), nil
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "cache: refresh")
	}
}

func (c *Cache) fetch(ctx context.Context) (*model.DatasetSnapshot, error) {
	prev := c.current.Load()
	prevSig := ""
	if prev != nil {
		prevSig = prev.Signature
	}

	res, err := c.loader.Load(ctx, prevSig)
	if err != nil {
		return nil, eris.Wrap(err, "cache: fetch")
	}

	var snap *model.DatasetSnapshot
	switch {
	case res.NotModified && prev != nil:
		snap = &model.DatasetSnapshot{
			ID:        prev.ID,
			Records:   prev.Records,
			FetchedAt: c.opts.Now(),
			Signature: prev.Signature,
		}
		zap.L().Debug("cache: upstream not modified", zap.String("snapshot_id", snap.ID))
	case res.NotModified:
		return nil, eris.New("cache: upstream reported not modified but no snapshot is cached")
	default:
		snap = &model.DatasetSnapshot{
			ID:        uuid.NewString(),
			Records:   res.Records,
			FetchedAt: c.opts.Now(),
			Signature: res.Signature,
		}
		zap.L().Info("cache: adopted new snapshot",
			zap.String("snapshot_id", snap.ID),
			zap.Int("records", len(snap.Records)),
			zap.Int("skipped", res.Skipped),
		)
	}

	c.current.Store(snap)
	c.persist(ctx, snap)
	return snap, nil
}

// persist saves snap best-effort; failures are logged and never surfaced.
func (c *Cache) persist(ctx context.Context, snap *model.DatasetSnapshot) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveSnapshot(ctx, snap); err != nil {
		zap.L().Warn("cache: save snapshot failed", zap.String("snapshot_id", snap.ID), zap.Error(err))
		return
	}
	if n, err := c.store.PruneSnapshots(ctx, c.opts.KeepSnapshots); err != nil {
		zap.L().Warn("cache: prune snapshots failed", zap.Error(err))
	} else if n > 0 {
		zap.L().Debug("cache: pruned snapshots", zap.Int("deleted", n))
	}
}

// Warm seeds an empty cache with the latest stored snapshot. The seeded
// snapshot keeps its original FetchedAt, so it counts as previously fetched
// data and is refreshed on first use if too old.
func (c *Cache) Warm(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	snap, err := c.store.LatestSnapshot(ctx)
	if err != nil {
		return eris.Wrap(err, "cache: warm")
	}
	if snap == nil {
		return nil
	}
	if c.current.CompareAndSwap(nil, snap) {
		zap.L().Info("cache: warmed from store",
			zap.String("snapshot_id", snap.ID),
			zap.Int("records", len(snap.Records)),
			zap.Time("fetched_at", snap.FetchedAt),
		)
	}
	return nil
}
