package embedding

import "context"

// Provider turns text into an embedding. Every implementation returns either
// a unit-length vector of Dimensions() floats or, for text with nothing to
// embed, a zero vector of that width. Providers are shared across goroutines.
type Provider interface {
	Embed(ctx context.Context, text string) (Embedding, error)

	// ModelName identifies the model; cached vectors are keyed by it.
	ModelName() string

	Dimensions() int
}
