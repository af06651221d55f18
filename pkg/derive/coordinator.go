// Package derive implements C7 DerivationCoordinator: the single entry
// point that turns (identity, transform params) into served bytes or a
// presigned URL, probing the cache chain top-down and falling through to
// the origin + Transform on a full miss.
package derive

import (
	"bytes"
	"context"
	"io"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashgrove/imaged/internal/logger"
	"github.com/ashgrove/imaged/pkg/cache"
	"github.com/ashgrove/imaged/pkg/cache/objectstore"
	"github.com/ashgrove/imaged/pkg/identity"
	"github.com/ashgrove/imaged/pkg/transform"
)

// LevelEntry pairs a cache level with the writeback mode to use when
// *populating* it on a probe hit from a lower level (spec.md §4.4 step
// 3) — distinct from the eviction-time writeback each level's own
// Controller governs internally.
type LevelEntry struct {
	Level     cache.Level
	Writeback cache.Writeback
}

// Result is what Resolve returns: either the artifact bytes, or (when
// want_url was requested) a presigned URL, never both.
type Result struct {
	Bytes []byte
	URL   string
}

// Coordinator is the C7 DerivationCoordinator.
type Coordinator struct {
	levels []LevelEntry
	origin *objectstore.Store
	xform  transform.Transform

	flight singleflight.Group

	presignLifetime time.Duration
	presignSlack    time.Duration

	metrics Metrics
}

// Metrics is the coordinator's observability seam: resolve latency and
// hit-rate counters. Optional; nil is valid.
type Metrics interface {
	ObserveResolve(hit string, d time.Duration)
	ObserveSingleFlightJoin()
}

// New builds a Coordinator. levels must be given top-down (fastest
// first, e.g. memory, file, object-cache); origin is the authoritative
// ObjectStore.
func New(levels []LevelEntry, origin *objectstore.Store, xform transform.Transform, presignLifetime, presignSlack time.Duration, metrics Metrics) *Coordinator {
	return &Coordinator{
		levels: levels, origin: origin, xform: xform,
		presignLifetime: presignLifetime, presignSlack: presignSlack,
		metrics: metrics,
	}
}

// Resolve implements spec.md §4.4's algorithm: compute the key, probe
// the chain top-down, populate higher levels on a lower hit, fall
// through to the origin + Transform on a full cache miss, single-flight
// collapsing concurrent misses for the same key.
func (c *Coordinator) Resolve(ctx context.Context, id identity.Identity, params transform.Params, wantURL bool) (Result, error) {
	start := time.Now()
	key := transform.Encode(id.String(), params)
	lc := logger.NewLogContext("resolve", id.String()).WithDerivativeKey(string(key))
	ctx = logger.WithContext(ctx, lc)

	if wantURL {
		// Ensure presence in the container the URL names, then presign.
		if _, err := c.ensurePresent(ctx, id, params, key); err != nil {
			return Result{}, err
		}
		url, err := c.presignFor(ctx, id, params, key)
		if err != nil {
			return Result{}, err
		}
		c.observe("url", start)
		return Result{URL: url}, nil
	}

	data, hit, err := c.ensurePresent(ctx, id, params, key)
	if err != nil {
		c.observe("error", start)
		return Result{}, err
	}
	c.observe(hit, start)
	return Result{Bytes: data}, nil
}

// ensurePresent probes the chain top-down; on a hit it writes back to
// higher levels per their writeback mode and returns the bytes. On a
// full miss it single-flights the derivation from origin.
func (c *Coordinator) ensurePresent(ctx context.Context, id identity.Identity, params transform.Params, key string) ([]byte, string, error) {
	for i, le := range c.levels {
		ent, err := le.Level.Get(ctx, key)
		if err == nil {
			c.populateAbove(ctx, i, ent)
			return ent.Data, le.Level.Name(), nil
		}
		if cache.CodeOf(err) != cache.CodeNotFound {
			logger.WarnCtx(ctx, "cache level unavailable during probe", logger.CacheLevel(le.Level.Name()), logger.Err(err))
		}
	}

	data, err, shared := c.flight.Do(key, func() (any, error) {
		return c.derive(ctx, id, params, key)
	})
	if shared && c.metrics != nil {
		c.metrics.ObserveSingleFlightJoin()
	}
	if err != nil {
		return nil, "miss", err
	}
	return data.([]byte), "origin", nil
}

// derive is the single-flight leader body: fetch the original, run
// Transform, then write the result into every level whose writeback
// mode is not never, bottom-up (lowest persistent level first) so durability is established
// before the fast in-memory tiers, per spec.md §4.4 step 4.
func (c *Coordinator) derive(ctx context.Context, id identity.Identity, params transform.Params, key string) ([]byte, error) {
	originalEnt, err := c.origin.Get(ctx, id.String())
	if err != nil {
		if cache.CodeOf(err) == cache.CodeNotFound {
			return nil, cache.NotFound("object-store", id.String())
		}
		return nil, err
	}

	var out []byte
	if params.IsOriginal() {
		out = originalEnt.Data
	} else {
		var buf bytes.Buffer
		if _, xerr := c.xform.Apply(ctx, bytes.NewReader(originalEnt.Data), &buf, params); xerr != nil {
			return nil, cache.TransformErr(key, "apply transform", xerr)
		}
		out = buf.Bytes()
	}

	now := time.Now()
	ent := &cache.Entry{Key: key, Data: out, Size: int64(len(out)), Thumbnail: params.Thumbnail, CreatedAt: now, AccessedAt: now}

	for i := len(c.levels) - 1; i >= 0; i-- {
		switch c.levels[i].Writeback {
		case cache.WritebackNever:
			continue
		default:
			if putErr := c.levels[i].Level.Put(ctx, ent); putErr != nil {
				logger.WarnCtx(ctx, "writeback put failed", logger.CacheLevel(c.levels[i].Level.Name()), logger.Err(putErr))
			}
		}
	}

	return out, nil
}

// populateAbove writes ent into every level above hitIndex according to
// that level's writeback mode (spec.md §4.4 step 3): eager writes
// synchronously, lazy is fire-and-forget, never skips.
func (c *Coordinator) populateAbove(ctx context.Context, hitIndex int, ent *cache.Entry) {
	for i := 0; i < hitIndex; i++ {
		le := c.levels[i]
		switch le.Writeback {
		case cache.WritebackNever:
			continue
		case cache.WritebackLazy:
			go func(l cache.Level) {
				putCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := l.Put(putCtx, ent); err != nil {
					logger.Warn("lazy writeback failed", logger.CacheLevel(l.Name()), logger.Err(err))
				}
			}(le.Level)
		default: // eager
			if err := le.Level.Put(ctx, ent); err != nil {
				logger.WarnCtx(ctx, "eager writeback failed", logger.CacheLevel(le.Level.Name()), logger.Err(err))
			}
		}
	}
}

func (c *Coordinator) presignFor(ctx context.Context, id identity.Identity, params transform.Params, key string) (string, error) {
	if params.IsOriginal() {
		return c.origin.Presign(ctx, id.String(), objectstore.MethodGet, c.presignLifetime, c.presignSlack)
	}
	return c.origin.Presign(ctx, key, objectstore.MethodGet, c.presignLifetime, c.presignSlack)
}

// Put implements the upload path: write the original then invalidate
// every derivative sharing identity's prefix across every cache level.
func (c *Coordinator) Put(ctx context.Context, id identity.Identity, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return cache.StoreErr("object-store", id.String(), "read upload body", err)
	}

	now := time.Now()
	if err := c.origin.Put(ctx, &cache.Entry{Key: id.String(), Data: data, Size: int64(len(data)), CreatedAt: now, AccessedAt: now}); err != nil {
		return err
	}

	for _, le := range c.levels {
		if err := le.Level.InvalidatePrefix(ctx, id.String()); err != nil {
			logger.WarnCtx(ctx, "invalidate on upload failed", logger.CacheLevel(le.Level.Name()), logger.Err(err))
		}
	}

	return nil
}

// List enumerates identities matching pattern via the origin store.
func (c *Coordinator) List(ctx context.Context, pattern string) ([]identity.Identity, error) {
	return c.origin.List(ctx, pattern)
}

// Meta fetches the original (via the cache stack) and returns a
// Metadata record with only SizeBytes filled in; embedded image metadata
// is not read, so Width, Height, Format and ExtraFields stay empty.
func (c *Coordinator) Meta(ctx context.Context, id identity.Identity) (Metadata, error) {
	key := id.String()

	for _, le := range c.levels {
		ent, err := le.Level.Get(ctx, key)
		if err == nil {
			return Metadata{SizeBytes: ent.Size, Format: ""}, nil
		}
	}

	ent, err := c.origin.Get(ctx, key)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{SizeBytes: ent.Size}, nil
}

func (c *Coordinator) observe(hit string, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveResolve(hit, time.Since(start))
	}
}
