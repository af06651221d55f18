package cache

import (
	"cmp"
	"slices"
	"time"
)

// Priority selects the victim ordering the EvictionController uses when a
// level crosses its evict_start_ratio threshold, per spec.md §4.2.
type Priority string

const (
	// PriorityNewest evicts the entries with the smallest AccessedAt
	// (LRU) first, favouring retention of recently-accessed derivatives
	// (spec.md's literal "newest" wording is atime-based, not ctime-based;
	// see DESIGN.md Open Question #2 for the chosen tie-break).
	PriorityNewest Priority = "newest"

	// PriorityLargest evicts the largest entries first, to free the most
	// space per eviction.
	PriorityLargest Priority = "largest"

	// PrioritySmallest evicts the smallest entries first, favouring
	// retention of large, expensive-to-rederive originals.
	PrioritySmallest Priority = "smallest"

	// PriorityThumbnail evicts thumbnails before any non-thumbnail entry,
	// since thumbnails are cheapest to regenerate.
	PriorityThumbnail Priority = "thumbnail"
)

// Writeback selects when a level pushes an entry down to the next level
// in the chain before evicting it, per spec.md §4.2.
type Writeback string

const (
	// WritebackEager writes the evicted entry to Next() synchronously,
	// as part of the eviction call.
	WritebackEager Writeback = "eager"

	// WritebackLazy is accepted as a policy value, but the levels write
	// evicted entries back only under WritebackEager: under WritebackLazy
	// an evicted entry is dropped as under WritebackNever, and there is no
	// background writeback queue.
	WritebackLazy Writeback = "lazy"

	// WritebackNever discards evicted entries; they are only recoverable
	// by re-deriving from the origin.
	WritebackNever Writeback = "never"
)

// AlarmEvent is emitted when a level crosses its evict_start_ratio (or, if
// eviction cannot keep pace, stays over it) so operators can see cache
// pressure before it becomes user-visible latency.
type AlarmEvent struct {
	Level     string
	Stat      Stat
	Timestamp time.Time
}

// AlarmSink receives AlarmEvents. A nil sink is valid; Controller checks
// before calling it.
type AlarmSink interface {
	Alarm(AlarmEvent)
}

// Policy configures one level's Controller per spec.md §4.2's CacheLevel
// state fields.
type Policy struct {
	MaxBytes    int64
	MaxElements int64

	// EvictStartRatio: eviction begins once the used fraction of MaxBytes
	// (or MaxElements) rises above this, i.e. once BytesFreeRatio/
	// ElementsFreeRatio drops below 1-EvictStartRatio.
	EvictStartRatio float64
	// EvictStopRatio: eviction continues until the used fraction is back at
	// or below this (hysteresis, avoids thrashing at the boundary).
	EvictStopRatio float64

	Priority  Priority
	Writeback Writeback

	Alarm AlarmSink
}

// Controller is the C6 EvictionController: given a level's current
// occupancy and entry metadata, it decides which keys to evict and
// whether to raise an alarm. It holds no reference to the level itself —
// Put/Get/Invalidate stay the level's job — so it is trivially reusable
// across all four concrete levels.
type Controller struct {
	policy Policy
}

// NewController builds a Controller for the given policy. A zero-value
// Policy (MaxBytes == 0 && MaxElements == 0) means unbounded: ShouldEvict
// always reports false.
func NewController(p Policy) *Controller {
	if p.EvictStartRatio == 0 {
		p.EvictStartRatio = 0.9
	}
	if p.EvictStopRatio == 0 {
		p.EvictStopRatio = 0.75
	}
	if p.Priority == "" {
		p.Priority = PriorityNewest
	}
	if p.Writeback == "" {
		p.Writeback = WritebackLazy
	}
	return &Controller{policy: p}
}

func (c *Controller) Policy() Policy { return c.policy }

// ShouldEvict reports whether stat has crossed evict_start_ratio on
// either the byte or element budget.
func (c *Controller) ShouldEvict(stat Stat) bool {
	if c.policy.MaxBytes <= 0 && c.policy.MaxElements <= 0 {
		return false
	}
	startFree := 1 - c.policy.EvictStartRatio
	if c.policy.MaxBytes > 0 && stat.BytesFreeRatio() < startFree {
		return true
	}
	if c.policy.MaxElements > 0 && stat.ElementsFreeRatio() < startFree {
		return true
	}
	return false
}

// atTargetAfterEviction reports whether stat, were it updated by removing
// freedBytes/freedElements, would satisfy evict_stop_ratio.
func (c *Controller) atTargetAfterEviction(stat Stat, freedBytes, freedElements int64) bool {
	stopFree := 1 - c.policy.EvictStopRatio
	bytesOK := true
	if c.policy.MaxBytes > 0 {
		remaining := stat.Bytes - freedBytes
		bytesOK = (1 - float64(remaining)/float64(c.policy.MaxBytes)) >= stopFree
	}
	elementsOK := true
	if c.policy.MaxElements > 0 {
		remaining := stat.Elements - freedElements
		elementsOK = (1 - float64(remaining)/float64(c.policy.MaxElements)) >= stopFree
	}
	return bytesOK && elementsOK
}

// SelectVictims ranks entries by the configured Priority and returns keys
// to evict, stopping once evict_stop_ratio would be satisfied. Callers
// pass a fresh snapshot of Meta taken under their own lock; Controller
// does no locking of its own, matching the snapshot-then-sort discipline
// of the teacher's LRU evictor.
func (c *Controller) SelectVictims(stat Stat, entries []Meta) []string {
	if len(entries) == 0 {
		return nil
	}

	ranked := make([]Meta, len(entries))
	copy(ranked, entries)

	switch c.policy.Priority {
	case PriorityLargest:
		slices.SortFunc(ranked, func(a, b Meta) int { return cmp.Compare(b.Size, a.Size) })
	case PrioritySmallest:
		slices.SortFunc(ranked, func(a, b Meta) int { return cmp.Compare(a.Size, b.Size) })
	case PriorityThumbnail:
		slices.SortFunc(ranked, func(a, b Meta) int {
			if a.Thumbnail != b.Thumbnail {
				if a.Thumbnail {
					return -1
				}
				return 1
			}
			return cmp.Compare(a.AccessedAt.UnixNano(), b.AccessedAt.UnixNano())
		})
	case PriorityNewest:
		fallthrough
	default:
		// Oldest-by-atime-first (LRU): retains the most recently accessed
		// entries, evicts stale ones, ties broken by smallest size then
		// key for determinism.
		slices.SortFunc(ranked, func(a, b Meta) int {
			if c := cmp.Compare(a.AccessedAt.UnixNano(), b.AccessedAt.UnixNano()); c != 0 {
				return c
			}
			if c := cmp.Compare(a.Size, b.Size); c != 0 {
				return c
			}
			return cmp.Compare(a.Key, b.Key)
		})
	}

	var victims []string
	var freedBytes, freedElements int64
	for _, e := range ranked {
		if c.atTargetAfterEviction(stat, freedBytes, freedElements) {
			break
		}
		victims = append(victims, e.Key)
		freedBytes += e.Size
		freedElements++
	}
	return victims
}

// MaybeAlarm raises an AlarmEvent through the configured sink if stat is
// still over evict_start_ratio, e.g. because eviction could not keep pace
// with the write rate.
func (c *Controller) MaybeAlarm(level string, stat Stat, now time.Time) {
	if c.policy.Alarm == nil {
		return
	}
	if c.ShouldEvict(stat) {
		c.policy.Alarm.Alarm(AlarmEvent{Level: level, Stat: stat, Timestamp: now})
	}
}
