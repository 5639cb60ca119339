package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// HashPattern computes the stable content hash used as the uniqueness key for
// stored patterns. encoding/json emits map keys in sorted order, so the
// digest is a pure function of the data regardless of insertion order.
func HashPattern(data map[string]any) string {
	canonical, err := json.Marshal(data)
	if err != nil {
		// Maps of JSON-encodable values cannot fail; anything else hashes
		// to its error text so the caller still gets a stable key.
		canonical = []byte(err.Error())
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
