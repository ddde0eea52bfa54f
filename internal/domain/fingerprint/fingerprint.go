// Package fingerprint derives the content identity of an uploaded dataset pair.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Length is the number of hex characters kept from the digest.
const Length = 16

// Compute returns the fingerprint of the detailed and summary datasets.
// The digest covers detailed content followed by summary content; metadata
// and filenames never take part.
func Compute(detailed, summary string) string {
	h := sha256.New()
	_, _ = io.WriteString(h, detailed)
	_, _ = io.WriteString(h, summary)
	return hex.EncodeToString(h.Sum(nil))[:Length]
}
