package cache

import "time"

// Metrics provides observability for cache-level operations. Implementations
// can report to Prometheus, StatsD, or a test-only in-memory counter; a nil
// Metrics is valid everywhere it is accepted — collection is always
// optional, never load-bearing for correctness.
type Metrics interface {
	// ObserveCacheHit records a Get that found the key at this level.
	ObserveCacheHit(level string)
	// ObserveCacheMiss records a Get that did not find the key at this level.
	ObserveCacheMiss(level string)
	// ObserveLatency records how long an operation (get/put/invalidate) took.
	ObserveLatency(level, op string, d time.Duration)
	// RecordStat records a level's current occupancy snapshot.
	RecordStat(level string, stat Stat)
	// RecordEviction records bytes/elements freed by one eviction pass.
	RecordEviction(level string, freedBytes, freedElements int64)
}
