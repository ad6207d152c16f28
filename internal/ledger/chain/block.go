// Package chain defines the celery block model and the hash-linked,
// append-only chain primitives: canonical digests, admission scoring, and
// block minting.
package chain

// GenesisName is the immutable name of block zero.
const GenesisName = "genesis"

// DummyName marks blocks produced by the privileged synthetic mint.
const DummyName = "dummy"

// ValidationRecord captures one scored candidate token. Records are kept for
// rejected candidates too; only accepted ones count toward admission.
type ValidationRecord struct {
	Token    string  `json:"token"`
	Ratio    float64 `json:"ratio"`
	Accepted bool    `json:"accepted"`
}

// Block is an immutable minted record. Once appended to the chain no field
// changes; the mutable display label lives on Entry.
//
// Field declaration order is the canonical serialization order for digests.
// Adding, removing, or reordering fields is a chain format version bump.
type Block struct {
	ID                 int                `json:"id"`
	Name               string             `json:"name"`
	Minter             string             `json:"minter"`
	Rarity             int                `json:"rarity"`
	ValidationCeleries []ValidationRecord `json:"validationCeleries"`
	MintReq            int                `json:"mintReq"`
	PreviousCelery     string             `json:"previousCelery,omitempty"`
	Hash               string             `json:"hash,omitempty"`
}

// Entry is one chain position: a block plus its mutable display label.
type Entry struct {
	Block       Block  `json:"block"`
	DisplayName string `json:"displayName"`
}

// Genesis returns the chain's block-zero entry. The genesis block carries no
// hash fields and fixes the first admission threshold at one.
func Genesis(minter string) Entry {
	block := Block{
		ID:      0,
		Name:    GenesisName,
		Minter:  minter,
		Rarity:  0,
		MintReq: 1,
	}
	return Entry{Block: block, DisplayName: GenesisName}
}
