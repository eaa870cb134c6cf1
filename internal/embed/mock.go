package embed

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"
)

// MockProvider produces deterministic pseudo-embeddings derived from the text
// hash. Used in tests and anywhere real vectors are not required; for a fixed
// input the output never varies.
type MockProvider struct {
	dimensions  int
	unavailable bool
}

// NewMockProvider creates a mock provider with the given dimension.
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &MockProvider{dimensions: dimensions}
}

// NewUnavailableProvider creates a provider that always fails with
// ErrUnavailable, for exercising the skip path.
func NewUnavailableProvider(dimensions int) *MockProvider {
	p := NewMockProvider(dimensions)
	p.unavailable = true
	return p
}

// Embed implements Provider.
func (p *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.unavailable {
		return nil, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, p.dimensions)
	seed := xxhash.Sum64String(text)
	var norm float64
	for i := range vec {
		// Cheap splitmix-style sequence off the text hash.
		seed += 0x9e3779b97f4a7c15
		z := seed
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		vec[i] = float32(int64(z%2000)-1000) / 1000
		norm += float64(vec[i]) * float64(vec[i])
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// Dimensions implements Provider.
func (p *MockProvider) Dimensions() int {
	return p.dimensions
}

// Close implements Provider.
func (p *MockProvider) Close() error {
	return nil
}
