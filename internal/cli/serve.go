package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lens/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve similarity search over HTTP",
	Long: `Start the HTTP query surface. POST /search accepts either a JSON body
{"text": "...", "k": 3} or raw image bytes with an image/* content type.

Example:
  lens serve --addr :8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(orch, log, server.Options{
		Addr:            addr,
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Serving on %s (index: %s)\n", addr, dbPath)
	return srv.Run(ctx)
}
