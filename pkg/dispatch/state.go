package dispatch

import (
	"context"
	"slices"
	"sync"

	"github.com/frankfralick/openai-func-enums/pkg/catalog"
)

// ChainState is the single cell of state shared across the invocations of a
// chain run: the prior textual result and the prior command echo. Every
// write replaces the whole cell under a mutex; there is no merging. When
// concurrent siblings both succeed, the last writer wins — that is the
// documented behavior of the concurrent strategies, not a defect.
type ChainState struct {
	mu           sync.Mutex
	priorResult  *string
	priorCommand []string
}

// NewChainState returns an empty cell.
func NewChainState() *ChainState { return &ChainState{} }

// Apply replaces the cell with the contents of res. An empty Output clears
// the prior result, so a function that succeeds without producing text
// resets the chain the same way it would have with no state at all. Apply
// with nil res clears the cell entirely.
func (s *ChainState) Apply(res *catalog.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res == nil || res.Output == "" {
		s.priorResult = nil
	} else {
		out := res.Output
		s.priorResult = &out
	}
	if res == nil {
		s.priorCommand = nil
	} else {
		s.priorCommand = slices.Clone(res.Command)
	}
}

// Prior returns the prior textual result and whether one exists.
func (s *ChainState) Prior() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priorResult == nil {
		return "", false
	}
	return *s.priorResult, true
}

// PriorCommand returns a copy of the prior command echo, nil when none
// exists.
func (s *ChainState) PriorCommand() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.priorCommand)
}

// Snapshot returns the whole cell in one lock acquisition. The prior result
// is nil when none exists.
func (s *ChainState) Snapshot() (prior *string, command []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priorResult != nil {
		out := *s.priorResult
		prior = &out
	}
	return prior, slices.Clone(s.priorCommand)
}

// AsResult renders the cell as a Result, nil when the cell is empty.
func (s *ChainState) AsResult() *catalog.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priorResult == nil && len(s.priorCommand) == 0 {
		return nil
	}
	res := &catalog.Result{Command: slices.Clone(s.priorCommand)}
	if s.priorResult != nil {
		res.Output = *s.priorResult
	}
	return res
}

// callEnv is the per-invocation view of the chain, carried through the
// handler's context. The prior fields are a snapshot taken before the
// invocation launched, so concurrent siblings all see the state the batch
// started with.
type callEnv struct {
	prior        *string
	priorCommand []string
	threaded     bool
}

type callEnvKey struct{}

func withCallEnv(ctx context.Context, env callEnv) context.Context {
	return context.WithValue(ctx, callEnvKey{}, env)
}

func envFromContext(ctx context.Context) (callEnv, bool) {
	env, ok := ctx.Value(callEnvKey{}).(callEnv)
	return env, ok
}

// PriorFromContext returns the prior chain result visible to the running
// handler. Handlers use it to fold earlier steps' output into their own
// work.
func PriorFromContext(ctx context.Context) (string, bool) {
	env, ok := envFromContext(ctx)
	if !ok || env.prior == nil {
		return "", false
	}
	return *env.prior, true
}

// PriorCommandFromContext returns the prior command echo visible to the
// running handler, nil when none exists.
func PriorCommandFromContext(ctx context.Context) []string {
	env, ok := envFromContext(ctx)
	if !ok {
		return nil
	}
	return slices.Clone(env.priorCommand)
}

// isThreaded reports whether ctx belongs to an invocation running under
// ParallelThreads. Chains started from such an invocation drop to
// ConcurrentTasks.
func isThreaded(ctx context.Context) bool {
	env, ok := envFromContext(ctx)
	return ok && env.threaded
}
