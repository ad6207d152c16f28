package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Digest returns the SHA-256 hex digest of the canonical JSON form of v.
//
// Canonical means the encoding/json output for an explicitly ordered struct:
// struct fields serialize in declaration order and empty hash fields are
// omitted, so the byte stream is reproducible across processes. Anything that
// changes the serialized form changes every downstream chain hash.
func Digest(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal digest payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// ChainHash computes the hash that links a block to its predecessor.
//
// The scheme is two-stage: the inner digest covers the full block with its
// own Hash still unset (PreviousCelery included), and the outer digest covers
// the inner digest concatenated with the previous block's hash. Both stages
// go through Digest so the chain format has a single serialization rule.
func ChainHash(b Block, prevHash string) (string, error) {
	b.Hash = ""
	inner, err := Digest(b)
	if err != nil {
		return "", fmt.Errorf("digest block %d: %w", b.ID, err)
	}
	outer, err := Digest(inner + prevHash)
	if err != nil {
		return "", fmt.Errorf("digest chain link %d: %w", b.ID, err)
	}
	return outer, nil
}

// Verify walks the chain and reports the first broken invariant: an index
// mismatch, a previous-hash mismatch, or a chain hash that does not recompute.
func Verify(entries []Entry) error {
	for i, entry := range entries {
		if entry.Block.ID != i {
			return fmt.Errorf("block at position %d has id %d", i, entry.Block.ID)
		}
		if i == 0 {
			continue
		}
		prev, err := Digest(entries[i-1].Block)
		if err != nil {
			return err
		}
		if entry.Block.PreviousCelery != prev {
			return fmt.Errorf("block %d previous hash mismatch", i)
		}
		want, err := ChainHash(entry.Block, prev)
		if err != nil {
			return err
		}
		if entry.Block.Hash != want {
			return fmt.Errorf("block %d chain hash mismatch", i)
		}
	}
	return nil
}
