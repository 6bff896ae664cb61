package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// IsPersistentID reports whether id matches the canonical identifier format
// minted by the persistence layer: a hyphenated UUID. Anything else is a
// provisional, client-generated id and must be inserted without a chosen key.
// uuid.Parse alone is too lenient - it also accepts the 32-hex form that
// NewID produces, so the length check keeps provisional ids provisional.
func IsPersistentID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
