// Package server exposes the query orchestrator over HTTP. A search request
// carries either a JSON body with a text query or raw image bytes; errors
// come back as a structured JSON body so callers can tell client mistakes
// from infrastructure failures.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lens/internal/domain"
	"lens/internal/usecase"
)

// maxImageBytes bounds an uploaded query image.
const maxImageBytes = 16 << 20

type Server struct {
	orch            *usecase.Orchestrator
	log             *slog.Logger
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type searchRequest struct {
	Text string `json:"text"`
	K    int    `json:"k"`
}

type searchResponse struct {
	Results []domain.Result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func New(orch *usecase.Orchestrator, log *slog.Logger, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{orch: orch, log: log, shutdownTimeout: opts.ShutdownTimeout}

	mux := http.NewServeMux()
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:        opts.Addr,
		Handler:     mux,
		ReadTimeout: opts.ReadTimeout,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("query server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	query, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	results, err := s.orch.Search(r.Context(), query)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(searchResponse{Results: results})
}

// decodeQuery builds a domain.Query from the request. Content-type
// negotiation: application/json carries a text query, image/* carries raw
// image bytes with k as a query parameter.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (domain.Query, bool) {
	mediaType := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = mt
	}

	switch {
	case mediaType == "application/json":
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", fmt.Sprintf("malformed JSON body: %v", err))
			return domain.Query{}, false
		}
		return domain.Query{Text: req.Text, K: req.K}, true

	case strings.HasPrefix(mediaType, "image/"):
		body, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "failed to read image body")
			return domain.Query{}, false
		}
		if len(body) > maxImageBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_query", "image too large")
			return domain.Query{}, false
		}
		k := 0
		if raw := r.URL.Query().Get("k"); raw != "" {
			k, err = strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_query", "k must be an integer")
				return domain.Query{}, false
			}
		}
		return domain.Query{Image: body, K: k}, true

	default:
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type",
			fmt.Sprintf("unsupported content type %q: use application/json or image/*", mediaType))
		return domain.Query{}, false
	}
}

func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= 500 {
		s.log.Error("search failed", "code", code, "error", err)
	} else {
		s.log.Debug("search rejected", "code", code, "error", err)
	}
	writeError(w, status, code, err.Error())
}

// classify maps the error taxonomy onto HTTP statuses: client-caused
// failures get a 4xx so callers know a retry is pointless, infrastructure
// failures get a 5xx and are safe to retry with backoff.
func classify(err error) (int, string) {
	var dim *domain.DimensionMismatchError
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusBadGateway, "store_unavailable"
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusBadGateway, "encoder_unavailable"
	case errors.As(err, &dim):
		return http.StatusInternalServerError, "dimension_mismatch"
	case errors.Is(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest, "invalid_query"
	case domain.IsClientError(err):
		return http.StatusBadRequest, "encoding_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg, Code: code})
}
