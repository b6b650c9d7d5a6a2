package port

import (
	"context"

	"lens/internal/domain"
)

// CorpusSource supplies the items to ingest. The engine requires only an
// enumeration plus content access, not any particular storage layout.
type CorpusSource interface {
	// Items lists the corpus. Order carries no meaning.
	Items(ctx context.Context) ([]domain.Item, error)

	// Content returns the binary image content referenced by item. Items
	// without image content fail here; text-mode ingestion never calls it.
	Content(ctx context.Context, item domain.Item) ([]byte, error)
}
