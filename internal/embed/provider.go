// Package embed provides the embedding port: text in, fixed-dimension vector
// out. Providers must be safe for concurrent callers.
package embed

import (
	"context"
	"errors"
)

// DefaultDimensions is the project-wide embedding dimension.
const DefaultDimensions = 384

// ErrUnavailable is returned when the backing model is not loaded. Callers
// treat this as a skipped chunk, not a hard error.
var ErrUnavailable = errors.New("embedding model unavailable")

// Provider converts text into its vector representation.
type Provider interface {
	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed vector dimension this provider produces.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}
