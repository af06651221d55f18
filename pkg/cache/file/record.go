package file

import (
	"encoding/json"
	"time"
)

// record is the sidecar-index value stored in badger for each blob: just
// enough to reconcile against the filesystem at startup and to rank
// eviction victims without reopening every file.
type record struct {
	Size       int64     `json:"size"`
	Thumbnail  bool      `json:"thumbnail"`
	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

func encodeRecord(r record) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(b []byte) (record, error) {
	var r record
	err := json.Unmarshal(b, &r)
	return r, err
}
