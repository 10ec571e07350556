package embed

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/notedex/notedex/internal/errors"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses the Ollama API for embeddings (default).
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (offline fallback).
	ProviderStatic ProviderType = "static"
)

// ParseProvider converts a string to a ProviderType, defaulting to Ollama.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "static":
		return ProviderStatic
	default:
		return ProviderOllama
	}
}

// Options configures embedder construction.
type Options struct {
	Provider   ProviderType
	Model      string
	OllamaHost string

	// CacheSize enables LRU caching of embeddings when positive.
	CacheSize int
}

// NewEmbedder creates an embedder for the given options and verifies,
// once, that it is usable. Availability is resolved here rather than
// probed per call; a provider that is not reachable at startup yields a
// typed error instead of failures deep inside indexing.
//
// The NOTEDEX_EMBEDDER environment variable overrides the provider.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	provider := opts.Provider
	if env := os.Getenv("NOTEDEX_EMBEDDER"); env != "" {
		provider = ParseProvider(env)
	}

	var embedder Embedder
	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	default:
		embedder = NewOllamaEmbedder(OllamaConfig{
			Host:  opts.OllamaHost,
			Model: opts.Model,
		})
	}

	if !embedder.Available(ctx) {
		_ = embedder.Close()
		return nil, errors.New(errors.ErrCodeEmbeddingUnavailable,
			"embedding provider is not reachable", nil).
			WithDetail("provider", string(provider)).
			WithSuggestion("start Ollama, or set NOTEDEX_EMBEDDER=static for offline hash embeddings")
	}

	slog.Info("embedder_ready",
		slog.String("provider", string(provider)),
		slog.String("model", embedder.ModelName()))

	if opts.CacheSize > 0 {
		return NewCachedEmbedder(embedder, opts.CacheSize), nil
	}
	return embedder, nil
}
