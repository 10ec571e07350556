package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts provider calls.
type countingEmbedder struct {
	*StaticEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(int64(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_AvoidsRecomputation(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 16)
	defer func() { _ = cached.Close() }()

	first, err := cached.Embed(context.Background(), "same note")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "same note")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.calls.Load())
	assert.Equal(t, 1, cached.CacheLen())
}

func TestCachedEmbedder_BatchReusesSingles(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 16)
	defer func() { _ = cached.Close() }()

	_, err := cached.Embed(context.Background(), "b")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// Only "a" and "c" hit the provider.
	assert.Equal(t, int64(3), inner.calls.Load())
}

func TestCachedEmbedder_EmptyBatch(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(), 4)
	defer func() { _ = cached.Close() }()

	vecs, err := cached.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestParseProvider(t *testing.T) {
	assert.Equal(t, ProviderStatic, ParseProvider("static"))
	assert.Equal(t, ProviderStatic, ParseProvider("STATIC"))
	assert.Equal(t, ProviderOllama, ParseProvider("ollama"))
	assert.Equal(t, ProviderOllama, ParseProvider(""))
	assert.Equal(t, ProviderOllama, ParseProvider("unknown"))
}

func TestNewEmbedder_StaticWithCache(t *testing.T) {
	e, err := NewEmbedder(context.Background(), Options{
		Provider:  ProviderStatic,
		CacheSize: 8,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, ok := e.(*CachedEmbedder)
	assert.True(t, ok)
	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestNewEmbedder_EnvOverride(t *testing.T) {
	t.Setenv("NOTEDEX_EMBEDDER", "static")

	e, err := NewEmbedder(context.Background(), Options{Provider: ProviderOllama})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "static-hash-256", e.ModelName())
}
