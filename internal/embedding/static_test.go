package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	a, err := e.Embed(context.Background(), "func Add(a, b int) int", "")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "func Add(a, b int) int", "")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbedDistinguishesDifferentText(t *testing.T) {
	e := NewStaticEmbedder()
	a, err := e.Embed(context.Background(), "func Add(a, b int) int", "")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "func Sub(a, b int) int", "")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestStaticEmbedEmptyTextReturnsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	v, err := e.Embed(context.Background(), "   ", "")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestStaticEmbedBatch(t *testing.T) {
	e := NewStaticEmbedder()
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"}, "")
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestStaticEmbedAfterCloseFails(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())
	_, err := e.Embed(context.Background(), "x", "")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestStaticEmbedderImplementsInterface(t *testing.T) {
	var _ Embedder = NewStaticEmbedder()
}
