package cache

import "time"

// Entry is the CachedEntry value record held by every cache level: the
// derivative bytes plus the bookkeeping the EvictionController needs to
// rank it (atime for the newest/LRU priority and the thumbnail tie-break,
// size for largest/smallest, and whether it is a thumbnail for the
// thumbnail-priority ordering).
type Entry struct {
	Key       string
	Data      []byte
	Size      int64
	Thumbnail bool

	CreatedAt  time.Time
	AccessedAt time.Time
}

// Meta is the lightweight projection of Entry used by the eviction
// controller, so ranking a whole level's contents doesn't require
// loading every blob into memory.
type Meta struct {
	Key        string
	Size       int64
	Thumbnail  bool
	CreatedAt  time.Time
	AccessedAt time.Time
}

func (e *Entry) Meta() Meta {
	return Meta{
		Key:        e.Key,
		Size:       e.Size,
		Thumbnail:  e.Thumbnail,
		CreatedAt:  e.CreatedAt,
		AccessedAt: e.AccessedAt,
	}
}

// Stat is the point-in-time occupancy snapshot a Level reports to its
// controller and to metrics/diagnostics (`cache stat` CLI command).
type Stat struct {
	Name        string
	Bytes       int64
	MaxBytes    int64
	Elements    int64
	MaxElements int64
}

// BytesFreeRatio returns the fraction of MaxBytes currently free, in
// [0,1]. A level with MaxBytes == 0 (unbounded) always reports 1.
func (s Stat) BytesFreeRatio() float64 {
	if s.MaxBytes <= 0 {
		return 1
	}
	used := float64(s.Bytes) / float64(s.MaxBytes)
	if used > 1 {
		used = 1
	}
	return 1 - used
}

// ElementsFreeRatio mirrors BytesFreeRatio for the element-count cap.
func (s Stat) ElementsFreeRatio() float64 {
	if s.MaxElements <= 0 {
		return 1
	}
	used := float64(s.Elements) / float64(s.MaxElements)
	if used > 1 {
		used = 1
	}
	return 1 - used
}
