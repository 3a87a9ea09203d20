package persistence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// FileFingerprint returns the SHA-256 hex digest of raw file content. The
// upload ledger keys idempotency on (tenant, fingerprint): identical bytes
// re-submitted for the same tenant are rejected before insertion.
func FileFingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// RulesHash returns a deterministic SHA-256 hex digest for a JSON rules
// payload, computed over the compacted form so formatting differences do not
// produce distinct hashes.
func RulesHash(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("payload is required to compute hash")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return "", fmt.Errorf("compact json: %w", err)
	}

	sum := sha256.Sum256(compact.Bytes())
	return hex.EncodeToString(sum[:]), nil
}
