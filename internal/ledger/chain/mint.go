package chain

import (
	"math"
	"math/rand"

	apperrors "github.com/artunion/celerychain/internal/platform/errors"
)

// synthAttemptsPerRecord bounds the dummy-mint draw loop. The naive approach
// of retrying until enough records pass can spin forever on pathological
// random sequences; 64 draws per required record keeps the failure odds
// negligible while guaranteeing termination.
const synthAttemptsPerRecord = 64

// ErrGenerationExhausted reports that synthetic record generation hit its
// attempt bound before producing enough accepted records.
var ErrGenerationExhausted = apperrors.New(apperrors.CodeGenerationExhausted, "synthetic validation generation exhausted its attempt budget")

// Minter assembles and hash-links new chain entries.
type Minter struct {
	rarityCap int
	rng       *rand.Rand
}

// NewMinter returns a minter whose next-threshold draws are bounded by
// rarityCap and seeded for production use. Caps below one are raised to one.
func NewMinter(rarityCap int, seed int64) *Minter {
	if rarityCap < 1 {
		rarityCap = 1
	}
	return &Minter{
		rarityCap: rarityCap,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// TryMint checks admission and assembles the next block.
//
// The admission rule compares the accepted record count against the chain
// tail's MintReq. Below the bar it returns ok=false and no error. At or above
// it, the new block takes the next chain index, the provided name, rarity
// equal to the accepted count, a fresh uniform MintReq in [1, rarityCap] for
// the following mint, the tail digest as PreviousCelery, and the two-stage
// chain hash computed last.
//
// TryMint has no side effects: appending the entry, assigning ownership, and
// persisting are the caller's single transaction.
func (m *Minter) TryMint(entries []Entry, minter string, name string, accepted []ValidationRecord) (Entry, bool, error) {
	if len(entries) == 0 {
		return Entry{}, false, apperrors.New(apperrors.CodeInternalInconsistency, "chain has no genesis block")
	}

	tail := entries[len(entries)-1].Block
	if len(accepted) < tail.MintReq {
		return Entry{}, false, nil
	}

	prev, err := Digest(tail)
	if err != nil {
		return Entry{}, false, apperrors.Wrap(apperrors.CodeInternalInconsistency, "digest chain tail", err)
	}

	block := Block{
		ID:                 len(entries),
		Name:               name,
		Minter:             minter,
		Rarity:             len(accepted),
		ValidationCeleries: accepted,
		MintReq:            m.rng.Intn(m.rarityCap) + 1,
		PreviousCelery:     prev,
	}
	block.Hash, err = ChainHash(block, prev)
	if err != nil {
		return Entry{}, false, apperrors.Wrap(apperrors.CodeInternalInconsistency, "hash minted block", err)
	}

	return Entry{Block: block, DisplayName: name}, true, nil
}

// SynthesizeRecords produces count always-accepted validation records for the
// privileged dummy mint, bypassing the scorer's candidate extraction but not
// its acceptance test: each record still has to win a draw against its own
// random rejection band.
//
// The loop is bounded; when the budget runs out before count records pass it
// fails with ErrGenerationExhausted instead of retrying indefinitely.
func (m *Minter) SynthesizeRecords(count int, token string) ([]ValidationRecord, error) {
	if count < 1 {
		return nil, nil
	}

	records := make([]ValidationRecord, 0, count)
	for attempt := 0; attempt < count*synthAttemptsPerRecord; attempt++ {
		ratio := m.rng.Float64()
		if m.rng.Float64() < math.Abs(0.5-ratio) {
			continue
		}
		records = append(records, ValidationRecord{
			Token:    token,
			Ratio:    ratio,
			Accepted: true,
		})
		if len(records) == count {
			return records, nil
		}
	}
	return nil, ErrGenerationExhausted
}
