// Package sha256 derives stable digests used to name and fingerprint dataset
// shards.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Hash hashes the input and returns a hex digest.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// KeyDigest hashes a set of keys independently of their order, so the same
// batch of identifiers always maps to the same digest.
func KeyDigest(keys []string) string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return Hash([]byte(strings.Join(sorted, "\n")))
}
