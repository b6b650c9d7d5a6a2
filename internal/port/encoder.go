package port

import (
	"context"

	"lens/internal/domain"
)

// Encoder maps raw content to a fixed-length vector in a shared embedding
// space. An instance serves exactly one modality; all instances of one model
// family emit vectors of identical dimension so cross-modal comparison stays
// valid.
type Encoder interface {
	// Embed generates the embedding for content. For text encoders content
	// is the UTF-8 bytes of the string. Returns *domain.EncodingError on
	// malformed input or model failure.
	Embed(ctx context.Context, content []byte) ([]float32, error)

	// Modality returns the input type this instance encodes.
	Modality() domain.Modality

	// Dimension returns the embedding vector dimension.
	Dimension() int
}
