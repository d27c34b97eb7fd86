package embedding

import (
	"context"
	"log/slog"
)

// Provider names an embedding backend selectable from config or the CLI.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderStatic Provider = "static"
)

// ParseProvider converts a string to a Provider, defaulting to Ollama for
// any unrecognized value — matching the teacher's cross-platform default.
func ParseProvider(s string) Provider {
	switch s {
	case "static":
		return ProviderStatic
	case "ollama":
		return ProviderOllama
	default:
		return ProviderOllama
	}
}

// New builds an Embedder for the requested provider. Ollama is probed for
// availability before being returned; callers that need a hard guarantee an
// embedder works offline should request ProviderStatic explicitly.
//
// When Ollama is requested but unavailable, New logs a warning and returns a
// StaticEmbedder instead. An empty or unrecognized provider also yields a
// StaticEmbedder.
func New(ctx context.Context, provider Provider, model string) Embedder {
	switch provider {
	case ProviderStatic:
		return NewStaticEmbedder()
	case ProviderOllama:
		cfg := DefaultOllamaConfig()
		if model != "" {
			cfg.Model = model
		}
		embedder := NewOllamaEmbedder(cfg)
		if !embedder.Available(ctx) {
			slog.Warn("ollama embedder unavailable, falling back to static embeddings",
				slog.String("host", cfg.Host))
			_ = embedder.Close()
			return NewStaticEmbedder()
		}
		return embedder
	default:
		return NewStaticEmbedder()
	}
}
