// Package identity implements ImageIdentity: the opaque, slash-path name
// under which an original image is stored in the originals container.
package identity

import "strings"

// Identity is an opaque, slash-separated path naming an original image.
// Extensions are not part of identity; equality is byte-equal after
// Normalize. The zero value is the empty identity and is never valid for
// storage operations.
type Identity string

// Normalize collapses repeated slashes and strips a trailing slash, so two
// syntactically different paths that name the same object compare equal.
// Normalize does not touch leading slashes: "a/b" and "/a/b" remain
// distinct identities, matching the source system's path-as-key semantics.
func Normalize(raw string) Identity {
	if raw == "" {
		return ""
	}

	segments := strings.Split(raw, "/")
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		kept = append(kept, seg)
	}

	if len(kept) == 0 {
		return ""
	}

	prefix := ""
	if strings.HasPrefix(raw, "/") {
		prefix = "/"
	}

	return Identity(prefix + strings.Join(kept, "/"))
}

// New normalizes raw and returns it as an Identity. It is the only
// constructor callers outside this package should use.
func New(raw string) Identity {
	return Normalize(raw)
}

// String returns the normalized path string.
func (id Identity) String() string {
	return string(id)
}

// Empty reports whether id is the zero identity.
func (id Identity) Empty() bool {
	return id == ""
}

// Equal reports whether id and other name the same original, after
// normalizing both.
func (id Identity) Equal(other Identity) bool {
	return Normalize(string(id)) == Normalize(string(other))
}

// HasPrefix reports whether id is prefix or a path-segment descendant of
// prefix (e.g. "a/b/c" has prefix "a/b" but not "a/bc").
func (id Identity) HasPrefix(prefix Identity) bool {
	normID := string(Normalize(string(id)))
	normPrefix := string(Normalize(string(prefix)))

	if normPrefix == "" {
		return true
	}
	if normID == normPrefix {
		return true
	}
	return strings.HasPrefix(normID, normPrefix+"/")
}
