package encoder

import (
	"context"
	"errors"
	"math"
	"testing"

	"lens/internal/domain"
)

func mockCosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestMockEncoderDeterminism(t *testing.T) {
	enc := NewMockEncoder(domain.ModalityText, 128)

	a, err := enc.Embed(context.Background(), []byte("this is a red rose"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := enc.Embed(context.Background(), []byte("this is a red rose"))
	if err != nil {
		t.Fatal(err)
	}

	if len(a) != 128 {
		t.Fatalf("expected dimension 128, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("identical inputs produced different vectors at %d", i)
		}
	}
}

func TestMockEncoderNormalized(t *testing.T) {
	enc := NewMockEncoder(domain.ModalityText, 128)
	vec, err := enc.Embed(context.Background(), []byte("push broom kit"))
	if err != nil {
		t.Fatal(err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestMockEncoderTokenOverlap(t *testing.T) {
	enc := NewMockEncoder(domain.ModalityText, 512)

	query, err := enc.Embed(context.Background(), []byte("a red flower"))
	if err != nil {
		t.Fatal(err)
	}
	rose, err := enc.Embed(context.Background(), []byte("this is a red rose"))
	if err != nil {
		t.Fatal(err)
	}
	pizza, err := enc.Embed(context.Background(), []byte("this is a pizza"))
	if err != nil {
		t.Fatal(err)
	}

	if mockCosine(query, rose) <= mockCosine(query, pizza) {
		t.Error("expected the overlapping description to score higher")
	}
}

func TestMockEncoderEmptyInput(t *testing.T) {
	enc := NewMockEncoder(domain.ModalityImage, 64)
	_, err := enc.Embed(context.Background(), nil)

	var encErr *domain.EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodingError, got %v", err)
	}
}
