package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"lens/internal/adapter/encoder"
	"lens/internal/domain"
)

func newTestOrchestrator(st *fakeStore) (*Orchestrator, *countingEncoder, *countingEncoder) {
	textEnc := &countingEncoder{Encoder: encoder.NewMockEncoder(domain.ModalityText, 64)}
	imageEnc := &countingEncoder{Encoder: encoder.NewMockEncoder(domain.ModalityImage, 64)}
	return NewOrchestrator(textEnc, imageEnc, st, 3, time.Second), textEnc, imageEnc
}

func TestSearchRejectsInvalidQueries(t *testing.T) {
	cases := []struct {
		name string
		q    domain.Query
	}{
		{"neither modality", domain.Query{}},
		{"both modalities", domain.Query{Text: "hello", Image: []byte{1, 2}}},
		{"negative k", domain.Query{Text: "hello", K: -1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newFakeStore()
			orch, textEnc, imageEnc := newTestOrchestrator(st)

			_, err := orch.Search(context.Background(), tc.q)
			if !errors.Is(err, domain.ErrInvalidQuery) {
				t.Fatalf("expected ErrInvalidQuery, got %v", err)
			}

			// Rejected before any encoder or store call.
			if textEnc.Calls() != 0 || imageEnc.Calls() != 0 {
				t.Errorf("encoder called %d/%d times for an invalid query", textEnc.Calls(), imageEnc.Calls())
			}
			if st.queryCalls != 0 {
				t.Errorf("store called %d times for an invalid query", st.queryCalls)
			}

			var stage *StageError
			if !errors.As(err, &stage) || stage.Stage != StageReceived {
				t.Errorf("expected failure at the received stage, got %v", err)
			}
		})
	}
}

func TestSearchSelectsModalityEncoder(t *testing.T) {
	st := newFakeStore()
	st.queryHits = []domain.Result{{ID: "a", Score: 0.9}}
	orch, textEnc, imageEnc := newTestOrchestrator(st)

	if _, err := orch.Search(context.Background(), domain.Query{Text: "a red flower"}); err != nil {
		t.Fatal(err)
	}
	if textEnc.Calls() != 1 || imageEnc.Calls() != 0 {
		t.Errorf("text query used the wrong encoder: text=%d image=%d", textEnc.Calls(), imageEnc.Calls())
	}

	if _, err := orch.Search(context.Background(), domain.Query{Image: []byte("raw image bytes")}); err != nil {
		t.Fatal(err)
	}
	if imageEnc.Calls() != 1 {
		t.Errorf("image query did not use the image encoder")
	}
}

func TestSearchDefaultK(t *testing.T) {
	st := newFakeStore()
	st.queryHits = []domain.Result{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.8},
		{ID: "c", Score: 0.7},
		{ID: "d", Score: 0.6},
	}
	orch, _, _ := newTestOrchestrator(st)

	results, err := orch.Search(context.Background(), domain.Query{Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("expected default k=3, got %d results", len(results))
	}
}

func TestSearchPropagatesEncodingError(t *testing.T) {
	st := newFakeStore()
	orch, textEnc, _ := newTestOrchestrator(st)
	textEnc.err = &domain.EncodingError{Modality: domain.ModalityText, Reason: "model exploded"}

	_, err := orch.Search(context.Background(), domain.Query{Text: "hello"})

	var encErr *domain.EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodingError surfaced unchanged, got %v", err)
	}
	var stage *StageError
	if !errors.As(err, &stage) || stage.Stage != StageEncoding {
		t.Errorf("expected failure at the encoding stage, got %v", err)
	}
	if st.queryCalls != 0 {
		t.Error("store must not be called when encoding fails")
	}
}

func TestSearchPropagatesStoreFailure(t *testing.T) {
	st := newFakeStore()
	st.queryErr = domain.ErrStoreUnavailable
	orch, _, _ := newTestOrchestrator(st)

	_, err := orch.Search(context.Background(), domain.Query{Text: "hello"})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	var stage *StageError
	if !errors.As(err, &stage) || stage.Stage != StageSearching {
		t.Errorf("expected failure at the searching stage, got %v", err)
	}
	if st.queryCalls != 1 {
		t.Errorf("expected exactly one store call, no retries; got %d", st.queryCalls)
	}
}

func TestSearchEnrichesMetadata(t *testing.T) {
	st := newFakeStore()
	st.queryHits = []domain.Result{
		{ID: "a", Score: 0.9, Metadata: map[string]string{"description": "red rose"}},
		{ID: "b", Score: 0.5}, // record stored without metadata
	}
	orch, _, _ := newTestOrchestrator(st)

	results, err := orch.Search(context.Background(), domain.Query{Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Metadata["description"] != "red rose" {
		t.Errorf("metadata lost: %+v", results[0])
	}
	if results[1].Metadata == nil {
		t.Error("expected metadata to be non-nil after enrichment")
	}
}

func TestSearchUnconfiguredModality(t *testing.T) {
	st := newFakeStore()
	orch := NewOrchestrator(encoder.NewMockEncoder(domain.ModalityText, 64), nil, st, 3, time.Second)

	_, err := orch.Search(context.Background(), domain.Query{Image: []byte{1, 2, 3}})
	if err == nil {
		t.Fatal("expected error for unconfigured image modality")
	}
	if domain.IsClientError(err) {
		t.Error("missing encoder is a server-side condition, not a client error")
	}
}
