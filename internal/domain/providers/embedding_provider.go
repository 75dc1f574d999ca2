package providers

import "context"

// EmbeddingDimensions is the vector size produced by the embedding model
const EmbeddingDimensions = 1536

// EmbeddingProvider defines the interface for turning text into vectors
type EmbeddingProvider interface {
	// Embed returns the embedding vector for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelVersion returns the identifier of the model producing vectors
	ModelVersion() string
}
