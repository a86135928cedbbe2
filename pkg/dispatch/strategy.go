package dispatch

import (
	"fmt"
	"strings"
)

// Strategy selects how the tool calls of one model response are scheduled.
type Strategy int

const (
	// Sequential runs calls one at a time in response order. Each call's
	// chain update is visible to the calls after it in the same batch.
	Sequential Strategy = iota

	// ConcurrentTasks runs every call on its own goroutine and joins the
	// whole batch before returning. Siblings see the chain state as it was
	// when the batch launched and race to write the outgoing one.
	ConcurrentTasks

	// ParallelThreads behaves like ConcurrentTasks but pins each call's
	// goroutine to an OS thread for the duration of the call. It applies
	// only to the top-level batch of a step: a chain started from inside a
	// pinned call degrades to ConcurrentTasks so thread count stays bounded.
	ParallelThreads
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case Sequential:
		return "sequential"
	case ConcurrentTasks:
		return "concurrent"
	case ParallelThreads:
		return "parallel"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a configuration string into a Strategy. Matching is
// case-insensitive; "concurrent_tasks" and "parallel_threads" are accepted as
// long forms.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential":
		return Sequential, nil
	case "concurrent", "concurrent_tasks":
		return ConcurrentTasks, nil
	case "parallel", "parallel_threads":
		return ParallelThreads, nil
	default:
		return Sequential, fmt.Errorf("dispatch: unknown strategy %q", s)
	}
}
