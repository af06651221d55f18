package commands

import (
	"context"
	"fmt"

	"github.com/ashgrove/imaged/pkg/cache"
	"github.com/ashgrove/imaged/pkg/cache/file"
	"github.com/ashgrove/imaged/pkg/cache/memory"
	"github.com/ashgrove/imaged/pkg/cache/object"
	"github.com/ashgrove/imaged/pkg/cache/objectstore"
	"github.com/ashgrove/imaged/pkg/config"
	"github.com/ashgrove/imaged/pkg/metrics/prometheus"
)

// builtChain is everything config-driven wiring produces: the ordered
// cache levels (for cache.Chain/derive.LevelEntry) and the authoritative
// origin store, plus the closer every level that opened a resource
// (file's index, in particular) needs at shutdown.
type builtChain struct {
	levels []cache.Level
	origin *objectstore.Store
	closer func() error
}

// buildChain constructs the cache tiers and origin store named by cfg, in
// probe order (memory, file/local, object-cache/swift), skipping any tier
// whose Enabled is false. Mirrors the teacher's runStart: build every
// configured collaborator up front, fail fast if any backing store is
// unreachable.
func buildChain(ctx context.Context, cfg *config.Config) (*builtChain, error) {
	cacheMetrics := prometheus.NewCacheMetrics()

	var levels []cache.Level
	var closers []func() error

	if cfg.MemoryCache.Enabled {
		levels = append(levels, memory.New(levelPolicy(cfg.MemoryCache), cacheMetrics))
	}

	if cfg.LocalCache.Enabled {
		fc, err := file.Open(cfg.LocalCache.Path, levelPolicy(cfg.LocalCache), cacheMetrics)
		if err != nil {
			return nil, fmt.Errorf("open local cache: %w", err)
		}
		levels = append(levels, fc)
		closers = append(closers, fc.Close)
	}

	if cfg.SwiftCache.Enabled {
		// object-cache config carries no credentials of its own; it shares
		// the persistent store's S3 account, addressing a different bucket.
		client, err := object.NewClient(ctx, cfg.PersistentStore.Endpoint, cfg.PersistentStore.Region,
			cfg.PersistentStore.AccessKeyID.String(), cfg.PersistentStore.SecretAccessKey.String(),
			cfg.PersistentStore.ForcePathStyle)
		if err != nil {
			return nil, fmt.Errorf("build object-cache client: %w", err)
		}
		oc, err := object.Open(ctx, object.Config{
			Client:    client,
			Bucket:    cfg.SwiftCache.Bucket,
			KeyPrefix: cfg.SwiftCache.KeyPrefix,
		}, levelPolicy(cfg.SwiftCache), cacheMetrics)
		if err != nil {
			return nil, fmt.Errorf("open object cache: %w", err)
		}
		levels = append(levels, oc)
	}

	originClient, err := object.NewClient(ctx, cfg.PersistentStore.Endpoint, cfg.PersistentStore.Region,
		cfg.PersistentStore.AccessKeyID.String(), cfg.PersistentStore.SecretAccessKey.String(),
		cfg.PersistentStore.ForcePathStyle)
	if err != nil {
		return nil, fmt.Errorf("build object-store client: %w", err)
	}
	origin, err := objectstore.Open(ctx, objectstore.Config{
		Client:    originClient,
		Bucket:    cfg.PersistentStore.Bucket,
		KeyPrefix: cfg.PersistentStore.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}

	if len(levels) > 0 {
		cache.Chain(levels...)
	}

	return &builtChain{
		levels: levels,
		origin: origin,
		closer: func() error {
			var firstErr error
			for _, c := range closers {
				if err := c(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		},
	}, nil
}

// levelPolicy translates a CacheLevelConfig into the cache.Policy its
// Controller is built from. Ratios/priority/writeback default inside
// cache.NewController when left at the YAML zero value.
func levelPolicy(lc config.CacheLevelConfig) cache.Policy {
	return cache.Policy{
		MaxBytes:        lc.MaxBytes.Int64(),
		MaxElements:     int64(lc.MaxElements),
		EvictStartRatio: lc.EvictStartRatio,
		EvictStopRatio:  lc.EvictStopRatio,
		Priority:        cache.Priority(lc.Priority),
		Writeback:       cache.Writeback(lc.Writeback),
	}
}
