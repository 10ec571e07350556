// Package config loads and validates notedex configuration.
//
// Configuration precedence (lowest to highest):
//  1. Built-in defaults
//  2. Project config file (.notedex.yaml in the note root)
//  3. Environment variable overrides (NOTEDEX_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the project configuration file name.
const ConfigFileName = ".notedex.yaml"

// IndexStrategy selects how note mutations reach the index.
type IndexStrategy string

const (
	// StrategyImmediate indexes synchronously on the caller's goroutine.
	StrategyImmediate IndexStrategy = "immediate"
	// StrategyBatch accumulates tasks in a queue drained explicitly.
	StrategyBatch IndexStrategy = "batch"
	// StrategyBackground drains the queue from a dedicated worker.
	StrategyBackground IndexStrategy = "background"
)

// Config represents the complete notedex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig configures where notes live and which ones are indexed.
type PathsConfig struct {
	// Root is the note corpus root. Paths enqueued for indexing must
	// resolve inside it.
	Root string `yaml:"root" json:"root"`

	// Pattern is the glob matched against file names during rebuilds.
	Pattern string `yaml:"pattern" json:"pattern"`

	// Exclude lists directory names skipped during scans.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexConfig configures the index database and the batch queue.
type IndexConfig struct {
	// Path is the index database file. Relative paths are resolved
	// against the note root.
	Path string `yaml:"path" json:"path"`

	// Strategy is one of immediate, batch, background.
	Strategy IndexStrategy `yaml:"strategy" json:"strategy"`

	// BatchSize is the maximum number of tasks drained per batch.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// BatchTimeout is how long the background worker waits before
	// flushing a partial batch.
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout"`

	// MaxContentBytes bounds the encoded size of queued note content.
	MaxContentBytes int64 `yaml:"max_content_bytes" json:"max_content_bytes"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// CacheSize is the number of embeddings kept in the LRU cache.
	// Zero disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// SearchConfig configures similarity query defaults.
type SearchConfig struct {
	// MaxResults is the default top-K for similarity queries.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// Threshold is the default minimum cosine similarity. Zero disables
	// the filter.
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	// Debounce is the window for coalescing rapid file events.
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Pattern: "*.md",
			Exclude: []string{".git", ".notedex", "node_modules"},
		},
		Index: IndexConfig{
			Path:            ".notedex/index.db",
			Strategy:        StrategyBackground,
			BatchSize:       10,
			BatchTimeout:    5 * time.Second,
			MaxContentBytes: 10 * 1024 * 1024,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			CacheSize:  1024,
		},
		Search: SearchConfig{
			MaxResults: 10,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration for a note root.
func Load(root string) (*Config, error) {
	cfg := NewConfig()
	cfg.Paths.Root = root

	if err := cfg.loadFromFile(root); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges the project config file if it exists.
func (c *Config) loadFromFile(root string) error {
	path := filepath.Join(root, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// The file must not point the root somewhere else.
	c.Paths.Root = root
	return nil
}

// applyEnvOverrides applies NOTEDEX_* environment variables.
// Env vars have the highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NOTEDEX_STRATEGY"); v != "" {
		c.Index.Strategy = IndexStrategy(v)
	}
	if v := os.Getenv("NOTEDEX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.BatchSize = n
		}
	}
	if v := os.Getenv("NOTEDEX_BATCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Index.BatchTimeout = d
		}
	}
	if v := os.Getenv("NOTEDEX_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("NOTEDEX_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("NOTEDEX_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("NOTEDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	switch c.Index.Strategy {
	case StrategyImmediate, StrategyBatch, StrategyBackground:
	default:
		return fmt.Errorf("index.strategy must be immediate, batch, or background; got %q", c.Index.Strategy)
	}

	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive; got %d", c.Index.BatchSize)
	}
	if c.Index.BatchTimeout <= 0 {
		return fmt.Errorf("index.batch_timeout must be positive; got %s", c.Index.BatchTimeout)
	}
	if c.Index.MaxContentBytes <= 0 {
		return fmt.Errorf("index.max_content_bytes must be positive; got %d", c.Index.MaxContentBytes)
	}

	switch c.Embeddings.Provider {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be ollama or static; got %q", c.Embeddings.Provider)
	}

	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive; got %d", c.Search.MaxResults)
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("search.threshold must be within [0, 1]; got %v", c.Search.Threshold)
	}

	return nil
}

// IndexPath returns the absolute path of the index database.
func (c *Config) IndexPath() string {
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(c.Paths.Root, c.Index.Path)
}

// Save writes the configuration to the project config file.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(root, ConfigFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
