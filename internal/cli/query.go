package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lens/config"
	"lens/internal/domain"
	"lens/internal/port"
	"lens/internal/usecase"
)

var (
	queryText  string
	queryImage string
	queryTopK  int
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search the index by text or by image",
	Long: `Search the vector index with a text query or a query image and print
the top ranked items.

Examples:
  lens query -q "a red flower"
  lens query --image ./query.jpg -k 5 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "text query")
	queryCmd.Flags().StringVar(&queryImage, "image", "", "path to a query image")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	dbPath := cfg.StorePath(rootDir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s. Run 'lens ingest' first", dbPath)
	}

	st, err := openStore(cfg, rootDir)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer st.Close()

	orch, err := buildOrchestrator(cfg, st)
	if err != nil {
		return err
	}

	q := domain.Query{K: queryTopK}
	if queryImage != "" {
		q.Image, err = os.ReadFile(queryImage)
		if err != nil {
			return fmt.Errorf("failed to read query image: %w", err)
		}
	}
	q.Text = queryText

	results, err := orch.Search(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results\n\n", len(results))
	for i, r := range results {
		fmt.Printf("%d. %s (score: %.3f)\n", i+1, r.ID, r.Score)
		if desc := r.Metadata["description"]; desc != "" {
			fmt.Printf("   %s\n", desc)
		}
	}
	return nil
}

// buildOrchestrator wires the configured modality encoders and the store
// into a query orchestrator. A modality with no endpoint configured is left
// out; queries against it are rejected by the orchestrator.
func buildOrchestrator(c *config.Config, st port.VectorStore) (*usecase.Orchestrator, error) {
	textEnc, textErr := buildEncoder(c, domain.ModalityText)
	imageEnc, imageErr := buildEncoder(c, domain.ModalityImage)
	if textErr != nil && imageErr != nil {
		return nil, fmt.Errorf("no query encoder configured: %v; %v", textErr, imageErr)
	}
	if textErr != nil {
		textEnc = nil
	}
	if imageErr != nil {
		imageEnc = nil
	}
	return usecase.NewOrchestrator(textEnc, imageEnc, st, c.Query.TopK, c.QueryTimeout()), nil
}
