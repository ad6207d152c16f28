// Package namegen produces pronounceable display labels for freshly minted
// celeries. Labels alternate consonant clusters and vowels so even random
// names read like words.
package namegen

import (
	"math/rand"
	"strings"
)

// Options controls label shape.
type Options struct {
	// Syllables is the number of consonant-vowel syllables. Values below 1
	// are treated as 1.
	Syllables int
	// Complexity widens the consonant pool: 0 keeps plain consonants,
	// higher values admit clusters like "th" and "kr".
	Complexity int
}

// Generator produces display labels.
type Generator interface {
	Generate(opts Options) string
}

var (
	plainConsonants = []string{"b", "d", "f", "g", "k", "l", "m", "n", "p", "r", "s", "t", "v", "z"}
	clusters        = []string{"th", "sh", "ch", "kr", "st", "br", "pl", "gr"}
	vowels          = []string{"a", "e", "i", "o", "u", "ae", "ia", "ou"}
)

// Phonetic is a seeded Generator. It is not safe for concurrent use; the
// ledger service guards it with its own writer lock.
type Phonetic struct {
	rng *rand.Rand
}

// NewPhonetic creates a generator whose output is fully determined by seed.
func NewPhonetic(seed int64) *Phonetic {
	return &Phonetic{rng: rand.New(rand.NewSource(seed))}
}

// Generate builds a label per opts. The first syllable is capitalized.
func (p *Phonetic) Generate(opts Options) string {
	syllables := opts.Syllables
	if syllables < 1 {
		syllables = 1
	}

	consonants := plainConsonants
	if opts.Complexity > 0 {
		pool := make([]string, 0, len(plainConsonants)+len(clusters))
		pool = append(pool, plainConsonants...)
		limit := opts.Complexity
		if limit > len(clusters) {
			limit = len(clusters)
		}
		pool = append(pool, clusters[:limit]...)
		consonants = pool
	}

	var sb strings.Builder
	for i := 0; i < syllables; i++ {
		sb.WriteString(consonants[p.rng.Intn(len(consonants))])
		sb.WriteString(vowels[p.rng.Intn(len(vowels))])
	}

	label := sb.String()
	return strings.ToUpper(label[:1]) + label[1:]
}
