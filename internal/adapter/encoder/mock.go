package encoder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"lens/internal/domain"
)

// MockEncoder produces deterministic embeddings without a model endpoint.
// Content is tokenized and each token is folded into a few vector positions,
// so inputs sharing words land near each other under cosine similarity.
// Useful for tests and offline runs.
type MockEncoder struct {
	modality  domain.Modality
	dimension int
}

func NewMockEncoder(modality domain.Modality, dimension int) *MockEncoder {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockEncoder{modality: modality, dimension: dimension}
}

func (e *MockEncoder) Embed(_ context.Context, content []byte) ([]float32, error) {
	if len(content) == 0 {
		return nil, &domain.EncodingError{Modality: e.modality, Reason: "empty input"}
	}

	vec := make([]float32, e.dimension)
	for _, token := range strings.Fields(strings.ToLower(string(content))) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()
		// Spread each token over three positions to soften collisions.
		for i := 0; i < 3; i++ {
			pos := int((sum >> (i * 16)) % uint64(e.dimension))
			vec[pos] += 1.0
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil, &domain.EncodingError{Modality: e.modality, Reason: "content has no tokens"}
	}
	inv := float32(1.0 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

func (e *MockEncoder) Modality() domain.Modality { return e.modality }

func (e *MockEncoder) Dimension() int { return e.dimension }
