package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dispatch pipeline. The structured error types
// below wrap these, so callers can branch with errors.Is and still pull
// detail out with errors.As.
var (
	// ErrTokenBudgetExceeded reports that an assembled request would blow the
	// per-request token ceiling. Raised before any network call is made.
	ErrTokenBudgetExceeded = errors.New("dispatch: token budget exceeded")

	// ErrUnknownFunction reports a tool call naming a function that is not in
	// the registry.
	ErrUnknownFunction = errors.New("dispatch: unknown function")

	// ErrArgumentParse reports tool-call arguments that failed to decode,
	// even after the snake_case key rewrite.
	ErrArgumentParse = errors.New("dispatch: argument parse failed")
)

// BudgetError carries the token arithmetic behind a rejected request.
type BudgetError struct {
	// Needed is the estimated token total of the rejected request.
	Needed int

	// Ceiling is the configured per-request token ceiling.
	Ceiling int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("dispatch: request needs %d tokens, ceiling is %d", e.Needed, e.Ceiling)
}

func (e *BudgetError) Unwrap() error { return ErrTokenBudgetExceeded }

// UnknownFunctionError reports a tool call whose function name is not
// registered. When a registered name is close enough, Suggestion carries it.
type UnknownFunctionError struct {
	// Name is the function name as the model produced it.
	Name string

	// Suggestion is the closest registered name, or empty when nothing is
	// plausibly close.
	Suggestion string
}

func (e *UnknownFunctionError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("dispatch: unknown function %q (closest match %q)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("dispatch: unknown function %q", e.Name)
}

func (e *UnknownFunctionError) Unwrap() error { return ErrUnknownFunction }

// ArgumentError reports argument JSON that failed to decode on both the
// direct attempt and the snake_case retry.
type ArgumentError struct {
	// Function is the tool call's function name.
	Function string

	// Raw is the argument payload exactly as the model produced it.
	Raw string

	// Err is the decode error from the final attempt.
	Err error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("dispatch: decode arguments for %q: %v", e.Function, e.Err)
}

// Unwrap exposes both the ErrArgumentParse sentinel and the decoder's own
// error, so errors.Is works against either.
func (e *ArgumentError) Unwrap() []error { return []error{ErrArgumentParse, e.Err} }

// TransportError wraps a network or API failure from an embedding or
// completion call. It aborts the chain step that raised it.
type TransportError struct {
	// Op names the failing operation, "embed" or "complete".
	Op string

	// Err is the underlying provider error.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dispatch: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
