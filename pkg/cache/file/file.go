// Package file implements C3 FileCache: an on-disk derivative blob store
// backed by a badger sidecar index for fast Stat/eviction-ranking without
// a directory walk on every operation.
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/ashgrove/imaged/internal/logger"
	"github.com/ashgrove/imaged/pkg/cache"
	"github.com/ashgrove/imaged/pkg/transform"
)

// Cache is the C3 FileCache implementation of cache.Level. Blobs live
// under root/<shard>/<shard>/<hash>; the badger DB at root/.index holds a
// record per key for O(1) Stat and eviction ranking.
type Cache struct {
	root string
	db   *badger.DB

	mu   sync.RWMutex
	size int64
	n    int64

	next       cache.Level
	controller *cache.Controller
	metrics    cache.Metrics
}

var _ cache.Level = (*Cache)(nil)

// Open opens (creating if absent) the file cache rooted at dir, runs
// startup reconciliation, and returns the ready Cache.
func Open(dir string, policy cache.Policy, metrics cache.Metrics) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cache.StoreErr("file", "", "create cache root", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dir, ".index")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, cache.StoreErr("file", "", "open sidecar index", err)
	}

	c := &Cache{root: dir, db: db, controller: cache.NewController(policy), metrics: metrics}

	if err := c.reconcile(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

func (c *Cache) Name() string { return "file" }

func (c *Cache) setNext(n cache.Level) { c.next = n }

func (c *Cache) Next() cache.Level { return c.next }

// Close releases the badger handle. Blobs on disk are left in place.
func (c *Cache) Close() error {
	return c.db.Close()
}

// reconcile scans the index against the filesystem at startup: a blob
// whose size disagrees with its index record (or that is entirely
// missing) is dropped from the index and its blob file removed, since a
// torn write during a crash
// makes the blob untrustworthy and caches are reconstructible from
// origin by design (spec.md's cache levels are advisory, not durable).
func (c *Cache) reconcile() error {
	var dropped, kept int
	var totalSize int64

	err := c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var staleKeys [][]byte
		prefix := []byte(indexKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := append([]byte(nil), item.Key()...)
			key := string(k[len(indexKeyPrefix):])

			var rec record
			err := item.Value(func(v []byte) error {
				r, decErr := decodeRecord(v)
				if decErr != nil {
					return decErr
				}
				rec = r
				return nil
			})
			if err != nil {
				staleKeys = append(staleKeys, k)
				continue
			}

			info, statErr := os.Stat(blobPath(c.root, key))
			if statErr != nil || info.Size() != rec.Size {
				_ = os.Remove(blobPath(c.root, key))
				staleKeys = append(staleKeys, k)
				dropped++
				continue
			}

			kept++
			totalSize += rec.Size
		}

		for _, k := range staleKeys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return cache.StoreErr("file", "", "reconcile sidecar index", err)
	}

	c.mu.Lock()
	c.size = totalSize
	c.n = int64(kept)
	c.mu.Unlock()

	logger.Info("file cache reconciled", logger.CacheLevel("file"),
		"kept", kept, "dropped", dropped, "bytes", humanize.Bytes(uint64(totalSize)))

	return nil
}

func (c *Cache) Get(ctx context.Context, key string) (*cache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec record
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			r, decErr := decodeRecord(v)
			rec = r
			return decErr
		})
	})
	if err == badger.ErrKeyNotFound {
		if c.metrics != nil {
			c.metrics.ObserveCacheMiss(c.Name())
		}
		return nil, cache.NotFound(c.Name(), key)
	}
	if err != nil {
		return nil, cache.StoreErr(c.Name(), key, "read index", err)
	}

	data, err := os.ReadFile(blobPath(c.root, key))
	if err != nil {
		if c.metrics != nil {
			c.metrics.ObserveCacheMiss(c.Name())
		}
		return nil, cache.NotFound(c.Name(), key)
	}

	rec.AccessedAt = time.Now()
	c.touch(key, rec)

	if c.metrics != nil {
		c.metrics.ObserveCacheHit(c.Name())
	}

	return &cache.Entry{
		Key: key, Data: data, Size: rec.Size, Thumbnail: rec.Thumbnail,
		CreatedAt: rec.CreatedAt, AccessedAt: rec.AccessedAt,
	}, nil
}

func (c *Cache) touch(key string, rec record) {
	enc, err := encodeRecord(rec)
	if err != nil {
		return
	}
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(indexKey(key), enc)
	})
}

// Put writes the blob via a temp-file-then-rename so a crash mid-write
// never leaves a partially-written file at the final path (what
// reconcile's size check would otherwise have to guess at).
func (c *Cache) Put(ctx context.Context, ent *cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := blobPath(c.root, ent.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cache.StoreErr(c.Name(), ent.Key, "create shard dir", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+uuid.NewString()+".tmp")
	if err := writeFileAtomic(tmp, path, ent.Data); err != nil {
		return cache.StoreErr(c.Name(), ent.Key, "write blob", err)
	}

	now := time.Now()
	rec := record{Size: ent.Size, Thumbnail: ent.Thumbnail, CreatedAt: now, AccessedAt: now}
	enc, err := encodeRecord(rec)
	if err != nil {
		return cache.StoreErr(c.Name(), ent.Key, "encode index record", err)
	}

	var sizeDelta int64
	c.mu.Lock()
	var prevExisted bool
	err = c.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(indexKey(ent.Key))
		if getErr == nil {
			prevExisted = true
			return item.Value(func(v []byte) error {
				prev, decErr := decodeRecord(v)
				if decErr == nil {
					sizeDelta -= prev.Size
				}
				return nil
			})
		}
		return nil
	})
	sizeDelta += ent.Size
	c.size += sizeDelta
	if !prevExisted {
		c.n++
	}
	stat := c.statLocked()
	c.mu.Unlock()

	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(indexKey(ent.Key), enc)
	}); err != nil {
		return cache.StoreErr(c.Name(), ent.Key, "write index", err)
	}

	if c.metrics != nil {
		c.metrics.RecordStat(c.Name(), stat)
	}

	if c.controller.ShouldEvict(stat) {
		c.evict(ctx, stat)
	}

	return nil
}

func writeFileAtomic(tmp, final string, data []byte) error {
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	var rec record
	var found bool
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(v []byte) error {
			r, decErr := decodeRecord(v)
			rec = r
			return decErr
		})
	})
	if err != nil {
		return cache.StoreErr(c.Name(), key, "read index for invalidate", err)
	}
	if !found {
		return nil
	}

	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(indexKey(key))
	}); err != nil {
		return cache.StoreErr(c.Name(), key, "delete index record", err)
	}

	_ = os.Remove(blobPath(c.root, key))

	c.mu.Lock()
	c.size -= rec.Size
	c.n--
	c.mu.Unlock()

	return nil
}

// InvalidatePrefix scans the sidecar index for every key matching
// idPrefix under transform.MatchesIdentity, deleting each matching
// index record and its blob. A badger iteration is the only way to find
// them: the index has no secondary key on identity.
func (c *Cache) InvalidatePrefix(ctx context.Context, idPrefix string) error {
	var matched []string
	var freedBytes int64

	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(indexKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(indexKeyPrefix):])
			if !transform.MatchesIdentity(key, idPrefix) {
				continue
			}
			matched = append(matched, key)
			_ = item.Value(func(v []byte) error {
				rec, err := decodeRecord(v)
				if err == nil {
					freedBytes += rec.Size
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return cache.StoreErr(c.Name(), idPrefix, "scan index for prefix invalidate", err)
	}

	if len(matched) == 0 {
		return nil
	}

	if err := c.db.Update(func(txn *badger.Txn) error {
		for _, key := range matched {
			if delErr := txn.Delete(indexKey(key)); delErr != nil {
				return delErr
			}
		}
		return nil
	}); err != nil {
		return cache.StoreErr(c.Name(), idPrefix, "delete index records", err)
	}

	for _, key := range matched {
		_ = os.Remove(blobPath(c.root, key))
	}

	c.mu.Lock()
	c.size -= freedBytes
	c.n -= int64(len(matched))
	c.mu.Unlock()

	return nil
}

func (c *Cache) Stat(ctx context.Context) (cache.Stat, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statLocked(), nil
}

func (c *Cache) statLocked() cache.Stat {
	p := c.controller.Policy()
	return cache.Stat{Name: c.Name(), Bytes: c.size, MaxBytes: p.MaxBytes, Elements: c.n, MaxElements: p.MaxElements}
}

func (c *Cache) evict(ctx context.Context, stat cache.Stat) {
	metas, byKey := c.snapshotMetas()
	victims := c.controller.SelectVictims(stat, metas)

	policy := c.controller.Policy()
	for _, key := range victims {
		if ctx.Err() != nil {
			return
		}
		if policy.Writeback == cache.WritebackEager && c.next != nil {
			if rec, ok := byKey[key]; ok {
				if data, readErr := os.ReadFile(blobPath(c.root, key)); readErr == nil {
					_ = c.next.Put(ctx, &cache.Entry{
						Key: key, Data: data, Size: rec.Size, Thumbnail: rec.Thumbnail,
						CreatedAt: rec.CreatedAt, AccessedAt: rec.AccessedAt,
					})
				}
			}
		}
		_ = c.Invalidate(ctx, key)
	}

	if updated, err := c.Stat(ctx); err == nil {
		c.controller.MaybeAlarm(c.Name(), updated, time.Now())
	}
}

func (c *Cache) snapshotMetas() ([]cache.Meta, map[string]record) {
	var metas []cache.Meta
	byKey := make(map[string]record)

	_ = c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(indexKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(indexKeyPrefix):])
			_ = item.Value(func(v []byte) error {
				rec, err := decodeRecord(v)
				if err != nil {
					return err
				}
				byKey[key] = rec
				metas = append(metas, cache.Meta{
					Key: key, Size: rec.Size, Thumbnail: rec.Thumbnail,
					CreatedAt: rec.CreatedAt, AccessedAt: rec.AccessedAt,
				})
				return nil
			})
		}
		return nil
	})

	return metas, byKey
}
