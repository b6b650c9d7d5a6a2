package cli

import (
	"fmt"

	"lens/config"
	"lens/internal/adapter/encoder"
	"lens/internal/adapter/store"
	"lens/internal/domain"
	"lens/internal/port"
)

// openStore opens the configured vector store backend for a corpus directory.
func openStore(cfg *config.Config, dir string) (port.VectorStore, error) {
	path := cfg.StorePath(dir)

	switch cfg.Store.Backend {
	case "bolt":
		return store.NewBoltStore(path, cfg.Store.MinScore)
	case "sqlite":
		return store.NewSQLiteStore(path, cfg.Store.IndexName, cfg.Store.MinScore)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

// buildEncoder constructs an encoder for one modality from config.
func buildEncoder(cfg *config.Config, modality domain.Modality) (port.Encoder, error) {
	switch cfg.Encoder.Provider {
	case "mock":
		return encoder.NewMockEncoder(modality, cfg.Encoder.Dimension), nil
	case "http":
	default:
		return nil, fmt.Errorf("unsupported encoder provider: %s", cfg.Encoder.Provider)
	}

	if modality == domain.ModalityText {
		if cfg.Encoder.TextEndpoint == "" {
			return nil, fmt.Errorf("encoder.text_endpoint not configured")
		}
		return encoder.NewTextEncoder(cfg.Encoder.TextEndpoint, cfg.Encoder.Dimension, cfg.EncoderTimeout()), nil
	}
	if cfg.Encoder.ImageEndpoint == "" {
		return nil, fmt.Errorf("encoder.image_endpoint not configured")
	}
	return encoder.NewImageEncoder(cfg.Encoder.ImageEndpoint, cfg.Encoder.ImageContentType, cfg.Encoder.Dimension, cfg.EncoderTimeout()), nil
}
