// Package sha256 fingerprints page content with SHA-256.
package sha256

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hasher implements meeting.Hasher. Runs of whitespace are folded to a single
// space before hashing, so a listing re-rendered with different indentation
// keeps its fingerprint.
type Hasher struct{}

// New returns a page hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of the whitespace-folded content.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.New()
	for i, field := range bytes.Fields(data) {
		if i > 0 {
			if _, err := sum.Write([]byte{' '}); err != nil {
				return "", fmt.Errorf("hash content: %w", err)
			}
		}
		if _, err := sum.Write(field); err != nil {
			return "", fmt.Errorf("hash content: %w", err)
		}
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}
