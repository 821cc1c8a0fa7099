package codefile

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns the lowercase hex sha256 digest of content. It is the
// only fingerprint used to decide whether an upload matches the latest
// stored version; it is compared for equality and never used as a key.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
