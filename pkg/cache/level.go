package cache

import "context"

// Level is the C1 CacheLevel contract every tier (C2 memory, C3 file, C4
// object-cache, C5 object-store) implements identically, so the
// derivation coordinator (C7) can walk the chain without knowing which
// concrete tier it is talking to.
type Level interface {
	// Name identifies the level in logs, metrics, and Stat.Name (e.g.
	// "memory", "file", "object-cache", "object-store").
	Name() string

	// Get returns the cached entry for key. A miss returns a *Error with
	// Code == CodeNotFound, never a nil entry with a nil error.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put inserts or replaces the entry for key, triggering eviction via
	// the level's Controller if the level is now over its start-ratio
	// threshold. Eviction runs synchronously inside Put, including any
	// eager writeback of victims to Next().
	Put(ctx context.Context, entry *Entry) error

	// Invalidate removes key from this level only (callers walk the chain
	// themselves when an identity-wide invalidation must reach every
	// level, per spec.md's re-upload invalidation design note).
	Invalidate(ctx context.Context, key string) error

	// InvalidatePrefix removes every entry whose key names the original
	// or a derivative of idPrefix — key == idPrefix, or key of the form
	// "idPrefix#..." per transform.Encode's derivative-key format — from
	// this level only. This is the predicate-based invalidate spec.md
	// §4.1 and §4.4 specify for the upload path (`invalidate(key ==
	// idPrefix or key.identity_prefix == idPrefix)`); unlike Invalidate,
	// which removes one exact key, this may require scanning the level's
	// index or issuing a prefix-filtered list against the backing store.
	InvalidatePrefix(ctx context.Context, idPrefix string) error

	// Stat reports the level's current occupancy.
	Stat(ctx context.Context) (Stat, error)

	// Next returns the next level in the chain, or nil if this is the
	// last (authoritative) level. The coordinator uses this to probe
	// top-down and write back bottom-up without a level needing to know
	// its position.
	Next() Level
}

// Chain links levels in probe order (fastest/smallest first) and
// returns the head. Each level's Next() will report the following one.
func Chain(levels ...Level) Level {
	if len(levels) == 0 {
		return nil
	}
	for i := 0; i < len(levels)-1; i++ {
		if setter, ok := levels[i].(interface{ setNext(Level) }); ok {
			setter.setNext(levels[i+1])
		}
	}
	return levels[0]
}
