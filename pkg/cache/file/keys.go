package file

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const indexKeyPrefix = "idx:"

// indexKey maps a derivative key to its badger sidecar-index record key.
func indexKey(key string) []byte {
	return append([]byte(indexKeyPrefix), []byte(key)...)
}

// blobPath maps a derivative key to its on-disk location under root,
// sharded two levels deep by the hash of the key so no single directory
// accumulates more entries than ext4/xfs handle comfortably.
func blobPath(root, key string) string {
	sum := sha256.Sum256([]byte(key))
	hexSum := hex.EncodeToString(sum[:])
	return filepath.Join(root, hexSum[0:2], hexSum[2:4], hexSum)
}
