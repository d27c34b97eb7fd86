// Package embedding implements the EmbeddingProvider capability (spec.md §6):
// a pluggable Embed(ctx, text, modelID) surface over CodeUnit content, with a
// deterministic StaticEmbedder (no network) as the default and an
// OllamaEmbedder adapter for callers who want real model-backed vectors.
// Grounded on the teacher's internal/embed/{types,static,ollama}.go family.
package embedding

import "context"

// Embedder generates fixed-dimension vector embeddings for text.
type Embedder interface {
	// Embed returns a single vector for text. modelID selects among backends
	// that serve more than one model; StaticEmbedder ignores it.
	Embed(ctx context.Context, text, modelID string) ([]float32, error)

	// EmbedBatch embeds many texts in one round trip where the backend
	// supports it.
	EmbedBatch(ctx context.Context, texts []string, modelID string) ([][]float32, error)

	// Dimensions reports the embedding vector length this embedder produces.
	Dimensions() int

	// ModelName identifies the active model, for CodeUnit.EmbeddingModel.
	ModelName() string

	// Available reports whether the embedder can currently serve requests.
	Available(ctx context.Context) bool

	// Close releases any resources (connections, caches) the embedder holds.
	Close() error
}
