package usecase

import (
	"context"
	"fmt"
	"time"

	"lens/internal/domain"
	"lens/internal/port"
)

// Stage names the step of a query a failure happened in.
type Stage string

const (
	StageReceived  Stage = "received"
	StageEncoding  Stage = "encoding"
	StageSearching Stage = "searching"
	StageEnriching Stage = "enriching"
)

// StageError carries the stage a query failed at while leaving the
// underlying error inspectable with errors.Is / errors.As.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Orchestrator answers similarity queries: validate, encode with the
// matching modality, search the store, enrich with stored metadata. It holds
// no state across requests and performs no retries; retry policy belongs to
// the caller.
type Orchestrator struct {
	textEncoder  port.Encoder
	imageEncoder port.Encoder
	store        port.VectorStore
	defaultK     int
	timeout      time.Duration
}

func NewOrchestrator(textEncoder, imageEncoder port.Encoder, store port.VectorStore, defaultK int, timeout time.Duration) *Orchestrator {
	if defaultK <= 0 {
		defaultK = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Orchestrator{
		textEncoder:  textEncoder,
		imageEncoder: imageEncoder,
		store:        store,
		defaultK:     defaultK,
		timeout:      timeout,
	}
}

// Search runs one query to completion. It either fully succeeds or fully
// fails; there are no partial results.
func (o *Orchestrator) Search(ctx context.Context, q domain.Query) ([]domain.Result, error) {
	encoder, content, err := o.received(q)
	if err != nil {
		return nil, &StageError{Stage: StageReceived, Err: err}
	}
	k := q.K
	if k == 0 {
		k = o.defaultK
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	vector, err := encoder.Embed(ctx, content)
	if err != nil {
		return nil, &StageError{Stage: StageEncoding, Err: err}
	}

	hits, err := o.store.Query(ctx, vector, k)
	if err != nil {
		return nil, &StageError{Stage: StageSearching, Err: err}
	}

	return enrich(hits), nil
}

// received validates the request and picks the encoder for its modality.
// It runs before any encoder or store call.
func (o *Orchestrator) received(q domain.Query) (port.Encoder, []byte, error) {
	hasImage := len(q.Image) > 0
	hasText := q.Text != ""

	switch {
	case hasImage == hasText:
		return nil, nil, fmt.Errorf("%w: exactly one of image or text must be set", domain.ErrInvalidQuery)
	case q.K < 0:
		return nil, nil, fmt.Errorf("%w: k must be >= 1", domain.ErrInvalidQuery)
	}

	if hasImage {
		if o.imageEncoder == nil {
			return nil, nil, fmt.Errorf("image queries not configured: %w", domain.ErrUnavailable)
		}
		return o.imageEncoder, q.Image, nil
	}
	if o.textEncoder == nil {
		return nil, nil, fmt.Errorf("text queries not configured: %w", domain.ErrUnavailable)
	}
	return o.textEncoder, []byte(q.Text), nil
}

// enrich normalizes store hits into the response shape. Metadata already
// travels with each record, so no extra round-trip is needed.
func enrich(hits []domain.Result) []domain.Result {
	results := make([]domain.Result, len(hits))
	for i, h := range hits {
		if h.Metadata == nil {
			h.Metadata = map[string]string{}
		}
		results[i] = h
	}
	return results
}
