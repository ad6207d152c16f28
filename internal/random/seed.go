// Package random provides high-entropy seed generation helpers.
//
// Seeds come from crypto/rand and feed the math/rand sources used by the
// validation scorer, the minter, and the name generator, keeping those
// components deterministic under test while unpredictable in production.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
