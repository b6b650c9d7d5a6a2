package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the lens engine. There are no implicit
// singletons; commands load a Config and pass it into constructors.
type Config struct {
	Encoder EncoderConfig `yaml:"encoder"`
	Store   StoreConfig   `yaml:"store"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Query   QueryConfig   `yaml:"query"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// EncoderConfig describes the model-serving endpoints. Both modalities must
// share one embedding dimension.
type EncoderConfig struct {
	Provider         string `yaml:"provider"` // "http" or "mock"
	TextEndpoint     string `yaml:"text_endpoint"`
	ImageEndpoint    string `yaml:"image_endpoint"`
	ImageContentType string `yaml:"image_content_type"`
	Dimension        int    `yaml:"dimension"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Backend   string  `yaml:"backend"` // "bolt" or "sqlite"
	Path      string  `yaml:"path"`    // db file; empty means <dir>/.lens/index.db
	IndexName string  `yaml:"index_name"`
	MinScore  float64 `yaml:"min_score"` // drop results below this score, 0 = disabled
}

// IngestConfig holds batch ingestion configuration.
type IngestConfig struct {
	Mode               string   `yaml:"mode"` // "image" or "text"
	Concurrency        int      `yaml:"concurrency"`
	Includes           []string `yaml:"includes"`
	Excludes           []string `yaml:"excludes"`
	Manifest           string   `yaml:"manifest"`
	ItemTimeoutSeconds int      `yaml:"item_timeout_seconds"`
}

// QueryConfig holds query-time configuration.
type QueryConfig struct {
	TopK           int `yaml:"top_k"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ServerConfig holds the HTTP query surface configuration.
type ServerConfig struct {
	Addr                   string `yaml:"addr"`
	ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Encoder: EncoderConfig{
			Provider:         "http",
			ImageContentType: "image/jpeg",
			Dimension:        512,
			TimeoutSeconds:   30,
		},
		Store: StoreConfig{
			Backend:   "bolt",
			IndexName: "lens",
		},
		Ingest: IngestConfig{
			Mode:               "image",
			Concurrency:        4,
			Includes:           []string{"**/*.jpg", "**/*.jpeg", "**/*.png", "**/*.gif", "**/*.webp"},
			Excludes:           []string{"**/node_modules/**", "**/.git/**", "**/.lens/**"},
			Manifest:           "corpus.yaml",
			ItemTimeoutSeconds: 60,
		},
		Query: QueryConfig{
			TopK:           3,
			TimeoutSeconds: 30,
		},
		Server: ServerConfig{
			Addr:                   ":8080",
			ReadTimeoutSeconds:     30,
			ShutdownTimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Encoder.Provider {
	case "http", "mock":
	default:
		return fmt.Errorf("unsupported encoder provider: %s", c.Encoder.Provider)
	}
	switch c.Store.Backend {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	switch c.Ingest.Mode {
	case "image", "text":
	default:
		return fmt.Errorf("unsupported ingest mode: %s (one of: image, text)", c.Ingest.Mode)
	}
	if c.Encoder.Dimension <= 0 {
		return fmt.Errorf("encoder dimension must be positive, got %d", c.Encoder.Dimension)
	}
	if c.Query.TopK < 1 {
		return fmt.Errorf("query top_k must be >= 1, got %d", c.Query.TopK)
	}
	return nil
}

// EncoderTimeout returns the encoder timeout as a duration.
func (c *Config) EncoderTimeout() time.Duration {
	return time.Duration(c.Encoder.TimeoutSeconds) * time.Second
}

// ItemTimeout returns the per-item ingest timeout as a duration.
func (c *Config) ItemTimeout() time.Duration {
	return time.Duration(c.Ingest.ItemTimeoutSeconds) * time.Second
}

// QueryTimeout returns the per-request query timeout as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Query.TimeoutSeconds) * time.Second
}

// Load loads configuration from a YAML file, falling back to defaults for
// anything the file does not set.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for lens.yaml,
// then .lens/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	for _, path := range []string{
		filepath.Join(dir, "lens.yaml"),
		filepath.Join(dir, ".lens", "config.yaml"),
	} {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StorePath returns the db file path for a corpus directory, honoring an
// explicit store.path override.
func (c *Config) StorePath(dir string) string {
	if c.Store.Path != "" {
		if filepath.IsAbs(c.Store.Path) {
			return c.Store.Path
		}
		return filepath.Join(dir, c.Store.Path)
	}
	return filepath.Join(dir, ".lens", "index.db")
}

// EnsureDataDir ensures the .lens directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".lens"), 0755)
}
