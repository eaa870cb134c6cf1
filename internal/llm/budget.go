package llm

import (
	"sync"
	"time"
)

// Budget is the session-wide token budget. It is initialised at session
// start, charged after every model call, checked before each model-driven
// stage, and finalised (read) at session end.
type Budget struct {
	mu       sync.Mutex
	limit    int // total tokens; 0 means unlimited
	usage    Usage
	started  time.Time
	finished bool
}

// NewBudget creates a budget with the given token limit. A limit of zero
// disables enforcement but keeps accounting.
func NewBudget(limitTokens int) *Budget {
	return &Budget{limit: limitTokens, started: time.Now()}
}

// Check returns a BudgetExceededError if the budget is already spent. Called
// before each model-driven stage; once exceeded, no new call may be issued.
func (b *Budget) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && b.usage.Total() >= b.limit {
		return &BudgetExceededError{Used: b.usage.Total(), Limit: b.limit}
	}
	return nil
}

// Charge records usage from a completed call.
func (b *Budget) Charge(u Usage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage.Add(u)
}

// Usage returns the accumulated usage so far.
func (b *Budget) Usage() Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage
}

// Finalize marks the session done and returns the final usage.
func (b *Budget) Finalize() Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finished = true
	return b.usage
}

// Charger is the narrow charging token handed to adapters. Adapters never
// see the session budget itself, which keeps them testable.
type Charger interface {
	Check() error
	Charge(u Usage)
}

var _ Charger = (*Budget)(nil)
