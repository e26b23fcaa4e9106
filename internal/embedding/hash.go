package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashProvider is a local bag-of-words embedder. Each lower-cased token is
// hashed into one of Dimensions buckets and the result is L2-normalised, so
// texts sharing most of their words score a high cosine similarity.
type HashProvider struct {
	Dimensions int
}

// NewHashProvider returns a HashProvider with the given width.
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashProvider{Dimensions: dimensions}
}

// Embed implements Provider.
func (p *HashProvider) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, p.Dimensions)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32()%uint32(p.Dimensions))]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}
