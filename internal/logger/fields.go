package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the cache stack and
// derivation coordinator. Use these keys consistently so log lines can be
// aggregated and queried by field.
const (
	// ========================================================================
	// Request Correlation
	// ========================================================================
	KeyTraceID   = "trace_id"
	KeyOperation = "operation" // resolve, put, list, meta

	// ========================================================================
	// Identity & Derivative
	// ========================================================================
	KeyIdentity      = "identity"       // ImageIdentity path
	KeyDerivativeKey = "derivative_key" // Canonical DerivativeKey
	KeyFormat        = "format"         // Output format (jpg, png, tiff, miff, ...)
	KeyThumbnail     = "thumbnail"      // Whether the request is a thumbnail

	// ========================================================================
	// Cache Layer
	// ========================================================================
	KeyCacheLevel    = "cache_level"    // memory, file, object, store
	KeyCacheHit      = "cache_hit"      // Cache hit indicator
	KeyCacheSize     = "cache_size"     // Current cache size in bytes
	KeyCacheCapacity = "cache_capacity" // Maximum cache capacity in bytes
	KeyEvicted       = "evicted"        // Number of entries evicted
	KeyEvictedBytes  = "evicted_bytes"  // Bytes freed by eviction
	KeyFreeRatio     = "free_ratio"     // free_bytes / max_bytes at alarm time

	// ========================================================================
	// Object Storage
	// ========================================================================
	KeyBucket  = "bucket"
	KeyKey     = "key"  // Object key in the bucket
	KeyRegion  = "region"
	KeyAttempt = "attempt"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyBytes      = "bytes"
	KeySingleFlightLeader = "single_flight_leader"
)

// TraceID returns a slog.Attr for the request trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// Operation returns a slog.Attr for the coordinator operation.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Identity returns a slog.Attr for an ImageIdentity.
func Identity(id string) slog.Attr {
	return slog.String(KeyIdentity, id)
}

// DerivativeKey returns a slog.Attr for a canonical DerivativeKey.
func DerivativeKey(key string) slog.Attr {
	return slog.String(KeyDerivativeKey, key)
}

// Format returns a slog.Attr for an output format.
func Format(f string) slog.Attr {
	return slog.String(KeyFormat, f)
}

// Thumbnail returns a slog.Attr for the thumbnail flag.
func Thumbnail(b bool) slog.Attr {
	return slog.Bool(KeyThumbnail, b)
}

// CacheLevel returns a slog.Attr naming the cache tier involved.
func CacheLevel(level string) slog.Attr {
	return slog.String(KeyCacheLevel, level)
}

// CacheHit returns a slog.Attr for cache hit/miss.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheSize returns a slog.Attr for current cache size in bytes.
func CacheSize(size uint64) slog.Attr {
	return slog.Uint64(KeyCacheSize, size)
}

// CacheCapacity returns a slog.Attr for maximum cache capacity in bytes.
func CacheCapacity(capacity uint64) slog.Attr {
	return slog.Uint64(KeyCacheCapacity, capacity)
}

// Evicted returns a slog.Attr for the number of entries evicted.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// EvictedBytes returns a slog.Attr for bytes freed by eviction.
func EvictedBytes(n uint64) slog.Attr {
	return slog.Uint64(KeyEvictedBytes, n)
}

// FreeRatio returns a slog.Attr for the free-byte ratio at alarm time.
func FreeRatio(r float64) slog.Attr {
	return slog.Float64(KeyFreeRatio, r)
}

// Bucket returns a slog.Attr for a cloud bucket name.
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for an object key in cloud storage.
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Region returns a slog.Attr for a cloud region.
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric/string error code.
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Bytes returns a slog.Attr for a byte count.
func Bytes(n int) slog.Attr {
	return slog.Int(KeyBytes, n)
}

// SingleFlightLeader returns a slog.Attr for whether the caller was the
// single-flight leader (ran the derivation) or a joining waiter.
func SingleFlightLeader(leader bool) slog.Attr {
	return slog.Bool(KeySingleFlightLeader, leader)
}
