package chain

import (
	"math"
	"math/rand"
	"strconv"
)

// Scorer runs the probabilistic admission test over candidate tokens.
//
// # Acceptance policy
//
// A candidate is accepted when the uniform draw lands at or beyond the
// rejection band |0.5 - ratio|. Balanced marker density (ratio near 0.5)
// narrows the band and raises the acceptance odds; very sparse or very dense
// markers widen it and bias toward rejection. This is the only direction the
// scorer implements.
type Scorer struct {
	draw func() float64
}

// NewScorer returns a scorer seeded for production use.
func NewScorer(seed int64) *Scorer {
	rng := rand.New(rand.NewSource(seed))
	return &Scorer{draw: rng.Float64}
}

// NewScorerWithDraw returns a scorer with an injected uniform source.
// Tests use this to force acceptance or rejection deterministically.
func NewScorerWithDraw(draw func() float64) *Scorer {
	return &Scorer{draw: draw}
}

// Score produces one ValidationRecord per considered candidate.
//
// Only the first limit candidates are considered; a non-positive limit
// considers all of them. The density ratio is candidate count over context
// size, folded back under 1 by successive base-10 rescaling when the context
// is smaller than the candidate count. Rejected candidates are recorded too.
func (s *Scorer) Score(candidates []string, contextSize int, limit int) []ValidationRecord {
	if len(candidates) == 0 {
		return nil
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	if contextSize < 1 {
		contextSize = 1
	}

	ratio := foldRatio(float64(len(candidates)) / float64(contextSize))
	band := math.Abs(0.5 - ratio)

	records := make([]ValidationRecord, 0, len(candidates))
	for _, token := range candidates {
		records = append(records, ValidationRecord{
			Token:    token,
			Ratio:    ratio,
			Accepted: s.draw() >= band,
		})
	}
	return records
}

// Accepted filters a record sequence down to the accepted ones.
func Accepted(records []ValidationRecord) []ValidationRecord {
	accepted := make([]ValidationRecord, 0, len(records))
	for _, record := range records {
		if record.Accepted {
			accepted = append(accepted, record)
		}
	}
	return accepted
}

// foldRatio rescales ratios >= 1 back under 1 by dividing by the next power
// of ten that covers the integer part.
func foldRatio(ratio float64) float64 {
	for ratio >= 1 {
		digits := len(strconv.FormatInt(int64(ratio), 10))
		ratio /= math.Pow10(digits)
	}
	return ratio
}
