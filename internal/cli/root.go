package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"lens/config"
	"lens/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	log     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lens",
	Short: "Embedding-based image and text retrieval",
	Long: `Lens embeds a corpus of images (or their descriptions) into a shared
vector space and answers similarity queries by image or by text.

Example usage:
  lens ingest ./photos              # Embed and index a corpus directory
  lens query -q "a red flower"      # Search by text
  lens query --image ./query.jpg    # Search by image
  lens serve                        # Expose search over HTTP`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		log = logger.New(cfg.Logging.Level)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./lens.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "corpus directory (default is current directory)")
}
