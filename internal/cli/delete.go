package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Remove records from the index",
	Long: `Remove one or more records by item id. Deleting an id that does not
exist is a no-op.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	dbPath := cfg.StorePath(rootDir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s", dbPath)
	}

	st, err := openStore(cfg, rootDir)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer st.Close()

	for _, id := range args {
		if err := st.Delete(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", id, err)
		}
	}

	count, _ := st.Count(cmd.Context())
	fmt.Printf("Deleted %d id(s); index now holds %d records\n", len(args), count)
	return nil
}
