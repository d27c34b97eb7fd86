package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseProviderRecognizesStatic(t *testing.T) {
	assert.Equal(t, ProviderStatic, ParseProvider("static"))
}

func TestParseProviderDefaultsToOllama(t *testing.T) {
	assert.Equal(t, ProviderOllama, ParseProvider(""))
	assert.Equal(t, ProviderOllama, ParseProvider("unknown"))
}

func TestNewStaticProviderReturnsStaticEmbedder(t *testing.T) {
	embedder := New(context.Background(), ProviderStatic, "")
	defer embedder.Close()

	_, ok := embedder.(*StaticEmbedder)
	assert.True(t, ok)
}

func TestNewOllamaProviderFallsBackWhenUnavailable(t *testing.T) {
	// No Ollama server is running in the test environment, so this must
	// fall back to StaticEmbedder rather than returning an unusable client.
	embedder := New(context.Background(), ProviderOllama, "")
	defer embedder.Close()

	assert.True(t, embedder.Available(context.Background()))
}
