package features

import (
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
)

// Embedder maps narrative text to a fixed-length vector.
type Embedder interface {
	Embed(text string) []float64
	Dim() int
}

// HashingEmbedder is a signed feature-hashing bag of words: lower-cased
// letter/digit tokens, truncated at MaxTokens, mean pooled and L2 normalised.
// Empty text embeds to the zero vector.
type HashingEmbedder struct {
	dim       int
	maxTokens int
	seed      uint64
}

func NewHashingEmbedder(spec artifacts.EmbeddingSpec) *HashingEmbedder {
	return &HashingEmbedder{dim: spec.Dim, maxTokens: spec.MaxTokens, seed: spec.Seed}
}

func (h *HashingEmbedder) Dim() int { return h.dim }

func (h *HashingEmbedder) Embed(text string) []float64 {
	vec := make([]float64, h.dim)

	tokens := Tokenize(text)
	if len(tokens) > h.maxTokens {
		tokens = tokens[:h.maxTokens]
	}
	if len(tokens) == 0 {
		return vec
	}

	d := xxhash.NewWithSeed(h.seed)
	for _, tok := range tokens {
		d.ResetWithSeed(h.seed)
		_, _ = d.WriteString(tok)
		sum := d.Sum64()

		idx := int(sum % uint64(h.dim))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	n := float64(len(tokens))
	var norm float64
	for i := range vec {
		vec[i] /= n
		norm += vec[i] * vec[i]
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Tokenize splits on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
