// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider wraps a service that maps text strings to dense float32
// vectors (e.g., OpenAI text-embedding-3, or a local model served by Ollama).
// These vectors are used to rank a function catalog by semantic relevance to a
// user prompt before function selection.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"errors"
)

// ErrNoEmbedding is returned when the backend accepted a request but produced
// no vector for one of the inputs. Callers that batch over a catalog should
// treat this as a hard failure rather than silently ranking with a missing
// entry.
var ErrNoEmbedding = errors.New("embeddings: backend returned no embedding")

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by one Provider instance share the dimensionality
// reported by Dimensions. Cosine similarity is only meaningful within a
// single model's space, so the catalog must be generated with the same model
// the engine later embeds prompts with.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed computes the vector for a single text, typically the prompt
	// driving a chain step. The text passes through verbatim; any
	// model-specific formatting is the caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for all texts in one provider call; the
	// i-th vector corresponds to texts[i]. Catalog generation uses this to
	// embed every function description in a handful of requests. No partial
	// results: on any failure the returned slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length this provider produces,
	// constant for the provider's lifetime.
	Dimensions() int

	// ModelID returns the embedding model identifier (e.g.
	// "text-embedding-3-small"). The shared store records it next to each
	// vector, and both binaries log it, so catalog and prompt embeddings can
	// be traced to the same model.
	ModelID() string
}
