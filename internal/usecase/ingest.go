package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lens/internal/domain"
	"lens/internal/port"
)

// IngestPipeline embeds a corpus and upserts the resulting records. Upserts
// are keyed by item id, so the pipeline is idempotent and a partial run can
// simply be re-run: previously written records are overwritten, never
// duplicated.
type IngestPipeline struct {
	source  port.CorpusSource
	encoder port.Encoder
	store   port.VectorStore
	opts    IngestOptions
	log     *slog.Logger
}

type IngestOptions struct {
	// Mode selects what gets embedded: image content (default) or the
	// templated item description.
	Mode domain.Modality

	// Concurrency bounds the worker pool.
	Concurrency int

	// ItemTimeout bounds each item's fetch+encode+write unit of work.
	ItemTimeout time.Duration

	// Progress, when set, is called after each item completes.
	Progress func(done, total int)
}

// Report summarizes one ingestion run. A single item's failure is recorded
// here rather than aborting the batch.
type Report struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	FailedIDs []string
	Elapsed   time.Duration
}

func NewIngestPipeline(source port.CorpusSource, encoder port.Encoder, store port.VectorStore, opts IngestOptions, log *slog.Logger) (*IngestPipeline, error) {
	if opts.Mode == "" {
		opts.Mode = domain.ModalityImage
	}
	if opts.Mode != domain.ModalityImage && opts.Mode != domain.ModalityText {
		return nil, fmt.Errorf("unsupported ingest mode %q", opts.Mode)
	}
	if encoder.Modality() != opts.Mode {
		return nil, fmt.Errorf("ingest mode %s needs a matching encoder, got %s", opts.Mode, encoder.Modality())
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &IngestPipeline{source: source, encoder: encoder, store: store, opts: opts, log: log}, nil
}

// Run ingests the whole corpus. Items are independent, so they are processed
// by a bounded worker pool in no particular order.
func (p *IngestPipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	if err := p.store.CreateIndex(ctx, p.encoder.Dimension()); err != nil {
		return nil, fmt.Errorf("prepare index: %w", err)
	}

	items, err := p.source.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}

	report := &Report{RunID: uuid.NewString(), Total: len(items)}
	if len(items) == 0 {
		report.Elapsed = time.Since(start)
		return report, nil
	}

	var (
		mu   sync.Mutex
		done int
		wg   sync.WaitGroup
	)
	jobs := make(chan domain.Item)

	for i := 0; i < p.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				err := p.ingestOne(ctx, item)

				mu.Lock()
				done++
				if err != nil {
					report.Failed++
					report.FailedIDs = append(report.FailedIDs, item.ID)
					p.log.Warn("item skipped", "run", report.RunID, "id", item.ID, "error", err)
				} else {
					report.Succeeded++
				}
				progress := p.opts.Progress
				n := done
				mu.Unlock()

				if progress != nil {
					progress(n, len(items))
				}
			}
		}()
	}

feed:
	for _, item := range items {
		select {
		case jobs <- item:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	sort.Strings(report.FailedIDs)
	report.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		// Interrupted runs report what they completed; re-running picks up
		// the rest because upsert is keyed by item id.
		return report, ctxCause(err)
	}
	return report, nil
}

// ingestOne is the fetch -> encode -> write unit of work for a single item.
func (p *IngestPipeline) ingestOne(ctx context.Context, item domain.Item) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ItemTimeout)
	defer cancel()

	content, err := p.content(ctx, item)
	if err != nil {
		return err
	}

	vector, err := p.encoder.Embed(ctx, content)
	if err != nil {
		return err
	}

	rec := domain.Record{
		ID:     item.ID,
		Vector: vector,
		Metadata: map[string]string{
			"description": item.Description,
			"modality":    string(p.opts.Mode),
		},
	}
	return p.upsertWithRetry(ctx, rec)
}

func (p *IngestPipeline) content(ctx context.Context, item domain.Item) ([]byte, error) {
	if p.opts.Mode == domain.ModalityText {
		if item.Description == "" {
			return nil, &domain.EncodingError{Modality: domain.ModalityText, Reason: "item has no description"}
		}
		return []byte(TextPrompt(item.Description)), nil
	}
	content, err := p.source.Content(ctx, item)
	if err != nil {
		return nil, &domain.EncodingError{Modality: domain.ModalityImage, Reason: "fetch content", Err: err}
	}
	return content, nil
}

// upsertWithRetry retries transient store failures a couple of times with a
// short backoff; anything else surfaces immediately.
func (p *IngestPipeline) upsertWithRetry(ctx context.Context, rec domain.Record) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			case <-ctx.Done():
				return ctxCause(ctx.Err())
			}
		}
		err = p.store.Upsert(ctx, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrStoreUnavailable) && !errors.Is(err, domain.ErrTimeout) {
			return err
		}
	}
	return err
}

// TextPrompt wraps a bare description the way the text encoder expects it.
func TextPrompt(description string) string {
	return "this is a " + description
}

func ctxCause(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	return err
}
