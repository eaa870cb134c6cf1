// Package rag assembles bounded-token retrieval context from the code and
// knowledge collections.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mvp-joe/code-factory/internal/embed"
	"github.com/mvp-joe/code-factory/internal/store"
)

// DefaultTokenBudget bounds the assembled context size.
const DefaultTokenBudget = 6000

// charsPerToken is the coarse token estimate used for truncation.
const charsPerToken = 4

// defaultTopK is the per-query retrieval depth.
const defaultTopK = 5

const contextHeader = "=== RETRIEVED CODE CONTEXT ==="
const contextFooter = "=== END CODE CONTEXT ==="

// Builder performs retrieval and renders a delimited context block.
type Builder struct {
	store       *store.Store
	provider    embed.Provider
	tokenBudget int
	logger      *zap.Logger
}

// NewBuilder creates a context builder. A tokenBudget of zero uses the
// default.
func NewBuilder(st *store.Store, provider embed.Provider, tokenBudget int, logger *zap.Logger) *Builder {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{store: st, provider: provider, tokenBudget: tokenBudget, logger: logger}
}

// Build retrieves top-k chunks for the main query and each sub-query,
// deduplicates, and truncates the rendered block to the token budget.
func (b *Builder) Build(ctx context.Context, mainQuery string, subQueries []string, filters map[string]string) (string, error) {
	queries := append([]string{mainQuery}, subQueries...)

	var hits []store.ChunkHit
	for _, q := range queries {
		if strings.TrimSpace(q) == "" {
			continue
		}
		vec, err := b.provider.Embed(ctx, q)
		if err != nil {
			return "", fmt.Errorf("failed to embed query: %w", err)
		}
		qh, err := b.store.TopK(ctx, vec, defaultTopK, filters)
		if err != nil {
			return "", err
		}
		hits = append(hits, qh...)
	}

	unique := lo.UniqBy(hits, func(h store.ChunkHit) string { return h.ChunkID })
	if len(unique) == 0 {
		return "", nil
	}

	var sb strings.Builder
	budget := b.tokenBudget * charsPerToken
	for _, h := range unique {
		entry := fmt.Sprintf("--- %s:%d-%d (%s %s) ---\n%s\n",
			h.Path, h.StartLine, h.EndLine, h.ChunkType, h.ChunkName, h.Content)
		if sb.Len()+len(entry) > budget {
			remaining := budget - sb.Len()
			if remaining > 0 {
				sb.WriteString(entry[:remaining])
			}
			break
		}
		sb.WriteString(entry)
	}

	b.logger.Debug("assembled retrieval context",
		zap.Int("queries", len(queries)),
		zap.Int("unique_chunks", len(unique)),
		zap.Int("chars", sb.Len()))
	return sb.String(), nil
}

// AppendContext attaches a context block to a prompt under a clearly
// delimited section. Context is always appended, never spliced into the
// middle of the prompt.
func AppendContext(prompt, contextBlock string) string {
	if strings.TrimSpace(contextBlock) == "" {
		return prompt
	}
	return prompt + "\n\n" + contextHeader + "\n" + contextBlock + contextFooter + "\n"
}
