package domain

// Modality identifies the kind of content an encoder accepts.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityText  Modality = "text"
)

// Item is a corpus entry supplied by an external source. Its lifecycle is
// owned by that source; the engine only reads it.
type Item struct {
	ID          string
	Description string
	ImagePath   string
}

// Record is the unit persisted in the vector store: one per ingested item id.
// Re-ingestion overwrites, it never duplicates.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Query is a transient search request. Exactly one of Image or Text must be
// set; K is the number of results wanted.
type Query struct {
	Image []byte
	Text  string
	K     int
}

// Result is a single ranked hit. Score is cosine similarity mapped to [0,1],
// 1.0 meaning identical.
type Result struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
