package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"records-rag/internal/config"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := h.EmbedQuery(ctx, "Quarterly revenue report")
	require.NoError(t, err)
	require.Len(t, a, 64)
	assert.InDelta(t, 1.0, norm(a), 1e-5)

	b, err := h.EmbedQuery(ctx, "quarterly REVENUE report!")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dot(a, b), 1e-5, "case and punctuation are ignored")

	c, err := h.EmbedQuery(ctx, "holiday travel policy")
	require.NoError(t, err)
	assert.Less(t, dot(a, c), dot(a, b))

	empty, err := h.EmbedQuery(ctx, "")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(empty), 1e-5)

	docs, err := h.EmbedDocuments(ctx, []string{"one", "two"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestHashEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).EmbedQuery(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbeddingFunc_Normalises(t *testing.T) {
	f := EmbeddingFunc(fixedEmbedder{v: []float32{3, 4}})
	v, err := f(context.Background(), "anything")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	_, err = EmbeddingFunc(fixedEmbedder{})(context.Background(), "x")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	e, err := New(config.LLMConfig{Provider: ProviderHash})
	require.NoError(t, err)
	assert.IsType(t, &HashEmbedder{}, e)

	_, err = New(config.LLMConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)

	e, err = New(config.LLMConfig{Provider: ProviderOllama, BaseURL: "http://localhost:11434", Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.NotNil(t, e)
}

type fixedEmbedder struct{ v []float32 }

func (f fixedEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.v
	}
	return out, nil
}

func (f fixedEmbedder) EmbedQuery(context.Context, string) ([]float32, error) { return f.v, nil }
