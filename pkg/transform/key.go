package transform

import (
	"sort"
	"strconv"
	"strings"
)

// Key is the canonical, injective DerivativeKey: a deterministic string
// encoding of an Identity plus TransformParams, used as the cache-level
// lookup key across all four levels. Two Params values that compare
// unequal under reflect.DeepEqual but are observationally identical
// (e.g. a thumbnail flag combined with explicit dimensions that happen to
// match the thumbnail default) still get distinct keys — Key encodes the
// request as given, not a normalized semantic form, matching spec.md §3's
// "keys are computed, not stored" design note.
type Key string

// kv is one name=value pair in the encoded key, sorted by name so the
// same Params always produce the same key regardless of field order.
type kv struct {
	name  string
	value string
}

// Encode computes the DerivativeKey for identity id under params p. The
// original (∅) params encode to the identity alone, so a plain
// untransformed fetch shares a key with the uploaded original — exactly
// the C3/C4 "derivative cache also serves the original" behavior implied
// by spec.md's recursive cache-chain design note.
func Encode(id string, p Params) Key {
	if p.IsOriginal() {
		return Key(id)
	}

	pairs := make([]kv, 0, 8)
	if p.MaxWidth != 0 {
		pairs = append(pairs, kv{"w", strconv.Itoa(p.MaxWidth)})
	}
	if p.MaxHeight != 0 {
		pairs = append(pairs, kv{"h", strconv.Itoa(p.MaxHeight)})
	}
	if p.Thumbnail {
		pairs = append(pairs, kv{"thumb", "1"})
	}
	if p.Enhance.Equalise {
		pairs = append(pairs, kv{"eq", "1"})
	}
	if p.Enhance.Sharpen {
		pairs = append(pairs, kv{"sharp", "1"})
	}
	if p.Enhance.LiquidRescale {
		pairs = append(pairs, kv{"lqr", strconv.FormatFloat(p.Enhance.CutinRatio, 'f', -1, 64)})
	}
	if !p.StripMetadata {
		pairs = append(pairs, kv{"keepmeta", "1"})
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].name < pairs[j].name })

	var sb strings.Builder
	sb.WriteString(id)
	sb.WriteByte('#')
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(p.name)
		sb.WriteByte('=')
		sb.WriteString(p.value)
	}
	if p.Format != "" {
		sb.WriteByte('.')
		sb.WriteString(string(p.Format))
	}

	return Key(sb.String())
}

// String returns the raw encoded key.
func (k Key) String() string { return string(k) }

// MatchesIdentity reports whether key names the original for id (key ==
// id) or a derivative of id (key == "id#..."), per Encode's format. Used
// by the upload path's predicate-based cache-level invalidation
// (spec.md §4.1's invalidate(predicate), §4.4's
// invalidate(key.identity_prefix == identity)) so a re-upload purges
// every derivative sharing the identity, not only the literal
// no-params key.
func MatchesIdentity(key, id string) bool {
	if key == id {
		return true
	}
	return strings.HasPrefix(key, id+"#")
}
