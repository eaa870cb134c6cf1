// Package llm provides the language-model port: a single Ask operation with
// usage accounting and typed failures.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Typed failures surfaced by clients. Callers must handle ErrInvalidResponse
// by degrading to a minimal safe fallback rather than aborting the request.
var (
	ErrTimeout         = errors.New("llm call timed out")
	ErrRejected        = errors.New("llm call rejected")
	ErrInvalidResponse = errors.New("llm returned an invalid response")
)

// BudgetExceededError aborts the current stage; the interactor returns a
// degraded result carrying the partial artifacts produced so far.
type BudgetExceededError struct {
	Used  int
	Limit int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("llm budget exceeded: %d tokens used of %d", e.Used, e.Limit)
}

// IsBudgetExceeded reports whether err carries a budget exhaustion.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}

// Usage is the accounting for one call or an aggregate.
type Usage struct {
	TokensIn     int
	TokensOut    int
	CostEstimate float64
}

// Add accumulates another usage record.
func (u *Usage) Add(other Usage) {
	u.TokensIn += other.TokensIn
	u.TokensOut += other.TokensOut
	u.CostEstimate += other.CostEstimate
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.TokensIn + u.TokensOut
}

// Client is the language-model port.
type Client interface {
	// Ask sends one prompt and returns the model's text.
	Ask(ctx context.Context, prompt string) (string, error)
}
