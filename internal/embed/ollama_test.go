package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama serves /api/embed and /api/tags the way Ollama does,
// returning a fixed 4-dimensional embedding per input.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		inputs, ok := req.Input.([]any)
		require.True(t, ok, "batch input expected")

		resp := ollamaEmbedResponse{Model: req.Model}
		for i := range inputs {
			resp.Embeddings = append(resp.Embeddings, []float64{float64(i + 1), 2, 3, 4})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_BatchAndDimensionDiscovery(t *testing.T) {
	srv := fakeOllama(t)
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "test-model"})
	defer func() { _ = e.Close() }()

	assert.Zero(t, e.Dimensions(), "dimension unknown before first embed")
	assert.Equal(t, "test-model", e.ModelName())
	assert.True(t, e.Available(context.Background()))

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, 4, e.Dimensions())

	// Responses come back unit-normalized.
	for _, vec := range vecs {
		var sum float64
		for _, v := range vec {
			sum += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	}
}

func TestOllamaEmbedder_EmptyBatch(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{Host: "http://127.0.0.1:1", Model: "m"})
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "missing"})
	defer func() { _ = e.Close() }()

	_, err := e.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOllamaEmbedder_CountMismatchRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float64{{1, 0}}, // one vector for two inputs
		})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL})
	defer func() { _ = e.Close() }()

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestOllamaEmbedder_ClosedRejectsCalls(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{})
	require.NoError(t, e.Close())
	require.NoError(t, e.Close()) // idempotent

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
