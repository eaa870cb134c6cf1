package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/maypok86/otter"
	"go.uber.org/zap"
)

// HTTPProvider talks to an embedding server over HTTP. Requests are bounded
// by a concurrency semaphore and results are cached by content hash, so
// re-indexing unchanged text never re-embeds it.
type HTTPProvider struct {
	endpoint   string
	dimensions int
	client     *http.Client
	sem        chan struct{}
	cache      otter.Cache[uint64, []float32]
	logger     *zap.Logger
}

// HTTPProviderOptions configures an HTTPProvider.
type HTTPProviderOptions struct {
	Endpoint       string
	Dimensions     int
	MaxConcurrency int
	CacheCapacity  int
	Logger         *zap.Logger
}

// NewHTTPProvider creates a provider backed by an embedding HTTP endpoint.
func NewHTTPProvider(opts HTTPProviderOptions) (*HTTPProvider, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = DefaultDimensions
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = 10_000
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := otter.MustBuilder[uint64, []float32](opts.CacheCapacity).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding cache: %w", err)
	}

	return &HTTPProvider{
		endpoint:   opts.Endpoint,
		dimensions: opts.Dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
		sem:        make(chan struct{}, opts.MaxConcurrency),
		cache:      cache,
		logger:     opts.Logger,
	}, nil
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements Provider.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := xxhash.Sum64String(text)
	if vec, ok := p.cache.Get(key); ok {
		return vec, nil
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	body, err := json.Marshal(embedRequest{Texts: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("embedding server unreachable", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server returned status %d", resp.StatusCode)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(decoded.Embeddings) != 1 {
		return nil, fmt.Errorf("embedding server returned %d vectors, want 1", len(decoded.Embeddings))
	}
	vec := decoded.Embeddings[0]
	if len(vec) != p.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), p.dimensions)
	}

	p.cache.Set(key, vec)
	return vec, nil
}

// Dimensions implements Provider.
func (p *HTTPProvider) Dimensions() int {
	return p.dimensions
}

// Close implements Provider.
func (p *HTTPProvider) Close() error {
	p.cache.Close()
	return nil
}
