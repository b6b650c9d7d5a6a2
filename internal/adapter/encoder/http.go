package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"lens/internal/domain"
)

// HTTPEncoder talks to a model-serving endpoint. Text is posted as a JSON
// payload {"inputs": [text]}; image content goes up as raw bytes with the
// configured content type. The endpoint answers with a JSON embedding vector.
type HTTPEncoder struct {
	endpoint    string
	modality    domain.Modality
	contentType string
	dimension   int
	client      *http.Client
}

type textRequest struct {
	Inputs []string `json:"inputs"`
}

// NewTextEncoder returns an encoder for the TEXT modality.
func NewTextEncoder(endpoint string, dimension int, timeout time.Duration) *HTTPEncoder {
	return newHTTPEncoder(endpoint, domain.ModalityText, "application/json", dimension, timeout)
}

// NewImageEncoder returns an encoder for the IMAGE modality. contentType is
// the media type of the corpus images, e.g. "image/jpeg".
func NewImageEncoder(endpoint, contentType string, dimension int, timeout time.Duration) *HTTPEncoder {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return newHTTPEncoder(endpoint, domain.ModalityImage, contentType, dimension, timeout)
}

func newHTTPEncoder(endpoint string, modality domain.Modality, contentType string, dimension int, timeout time.Duration) *HTTPEncoder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEncoder{
		endpoint:    endpoint,
		modality:    modality,
		contentType: contentType,
		dimension:   dimension,
		client:      &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEncoder) Embed(ctx context.Context, content []byte) ([]float32, error) {
	if len(content) == 0 {
		return nil, &domain.EncodingError{Modality: e.modality, Reason: "empty input"}
	}

	var body []byte
	if e.modality == domain.ModalityText {
		data, err := json.Marshal(textRequest{Inputs: []string{string(content)}})
		if err != nil {
			return nil, &domain.EncodingError{Modality: e.modality, Reason: "marshal request", Err: err}
		}
		body = data
	} else {
		body = content
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.EncodingError{Modality: e.modality, Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", e.contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("encode %s: %w", e.modality, domain.ErrTimeout)
		}
		return nil, &domain.EncodingError{Modality: e.modality, Reason: "request failed", Err: fmt.Errorf("%w: %v", domain.ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.EncodingError{Modality: e.modality, Reason: "read response", Err: fmt.Errorf("%w: %v", domain.ErrUnavailable, err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnsupportedMediaType:
		return nil, &domain.EncodingError{Modality: e.modality, Reason: fmt.Sprintf("unsupported media type %s", e.contentType)}
	case resp.StatusCode >= 500:
		return nil, &domain.EncodingError{
			Modality: e.modality,
			Reason:   fmt.Sprintf("model endpoint returned status %d", resp.StatusCode),
			Err:      fmt.Errorf("%w: %s", domain.ErrUnavailable, truncate(respBody, 200)),
		}
	default:
		return nil, &domain.EncodingError{Modality: e.modality, Reason: fmt.Sprintf("model rejected input (status %d): %s", resp.StatusCode, truncate(respBody, 200))}
	}

	vector, err := decodeVector(respBody)
	if err != nil {
		return nil, &domain.EncodingError{Modality: e.modality, Reason: "parse response", Err: err}
	}
	if e.dimension > 0 && len(vector) != e.dimension {
		return nil, &domain.DimensionMismatchError{Want: e.dimension, Got: len(vector)}
	}
	return vector, nil
}

// decodeVector accepts both a plain embedding array and the batched form
// some serving stacks return for a single input.
func decodeVector(body []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(body, &flat); err == nil && len(flat) > 0 {
		return flat, nil
	}
	var nested [][]float32
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		return nested[0], nil
	}
	return nil, fmt.Errorf("response is not an embedding vector: %s", truncate(body, 200))
}

func (e *HTTPEncoder) Modality() domain.Modality { return e.modality }

func (e *HTTPEncoder) Dimension() int { return e.dimension }

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
