// Package fingerprint generates the per-credential device identifier sent
// to the south side as an opaque identity token, per spec §4.F.
package fingerprint

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Generate returns a fresh 64-character lowercase hex device fingerprint:
// 32 random bytes rendered as hex. Callers persist the result immediately
// against the owning credential; Generate itself holds no state.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("fingerprint: generate: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
