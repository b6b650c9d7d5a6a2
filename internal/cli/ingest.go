package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"lens/config"
	"lens/internal/adapter/corpus"
	"lens/internal/domain"
	"lens/internal/usecase"
)

var ingestMode string

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Embed a corpus and upsert it into the vector index",
	Long: `Embed every item in the corpus directory and upsert the vectors into
the index. Re-running after a partial failure is safe: records are keyed by
item id, so previously written items are overwritten, not duplicated.

Examples:
  lens ingest .                  # Ingest current directory (image mode)
  lens ingest ./photos --mode text`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestMode, "mode", "", "what to embed: image content or item descriptions (image|text)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := rootDir
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	mode := domain.Modality(cfg.Ingest.Mode)
	if ingestMode != "" {
		mode = domain.Modality(ingestMode)
	}

	if err := config.EnsureDataDir(path); err != nil {
		return fmt.Errorf("failed to create .lens directory: %w", err)
	}

	st, err := openStore(cfg, path)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer st.Close()

	enc, err := buildEncoder(cfg, mode)
	if err != nil {
		return err
	}

	source, err := corpus.NewFSSource(path, cfg.Ingest.Includes, cfg.Ingest.Excludes, cfg.Ingest.Manifest)
	if err != nil {
		return fmt.Errorf("failed to open corpus: %w", err)
	}

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		bar.Set(done)
	}

	pipeline, err := usecase.NewIngestPipeline(source, enc, st, usecase.IngestOptions{
		Mode:        mode,
		Concurrency: cfg.Ingest.Concurrency,
		ItemTimeout: cfg.ItemTimeout(),
		Progress:    progress,
	}, log)
	if err != nil {
		return err
	}

	fmt.Printf("Scanning %s...\n", path)
	report, err := pipeline.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	count, _ := st.Count(cmd.Context())

	fmt.Printf("\nIngestion complete (run %s):\n", report.RunID)
	fmt.Printf("  Items embedded: %d\n", report.Succeeded)
	fmt.Printf("  Items failed:   %d\n", report.Failed)
	fmt.Printf("  Index size:     %d records\n", count)
	fmt.Printf("  Elapsed:        %s\n", report.Elapsed.Round(10*time.Millisecond))

	if len(report.FailedIDs) > 0 {
		fmt.Printf("\nFailed items:\n")
		for _, id := range report.FailedIDs {
			fmt.Printf("  - %s\n", id)
		}
	}

	fmt.Printf("\nIndex stored at: %s\n", cfg.StorePath(path))
	return nil
}
