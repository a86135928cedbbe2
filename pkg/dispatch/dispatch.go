// Package dispatch turns model tool calls into executed catalog functions
// and steps prompt chains through the full pipeline.
//
// The package has three layers. The [Dispatcher] takes the tool calls of one
// model response, decodes their arguments against the registry, and executes
// them under a scheduling [Strategy]. The [Assembler] builds completion
// requests and enforces the per-request token ceiling before anything goes
// on the wire. The [Engine] ties both to an embedding ranker and a
// completion provider and runs multi-step prompt chains over them, threading
// results from one step to the next through a shared [ChainState].
//
// Failure handling is deliberately asymmetric: budget and transport failures
// abort the chain step that raised them, while failures inside an individual
// tool call of a multi-call batch are logged and counted but never stop the
// call's siblings.
package dispatch

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/frankfralick/openai-func-enums/pkg/asynclog"
	"github.com/frankfralick/openai-func-enums/pkg/catalog"
	"github.com/frankfralick/openai-func-enums/pkg/observe"
	"github.com/frankfralick/openai-func-enums/pkg/provider/llm"
)

// callState tracks one tool call through its dispatch lifecycle.
type callState int

const (
	// callParsed means the call resolved to a descriptor and its arguments
	// decoded.
	callParsed callState = iota

	// callParseFailed is terminal: unknown function or undecodable
	// arguments.
	callParseFailed

	// callExecuted means the handler returned without error.
	callExecuted

	// callExecutionFailed is terminal: the handler returned an error.
	callExecutionFailed

	// callChainUpdated means the call's result has been delivered, either
	// written to the shared state or handed back to the caller.
	callChainUpdated
)

// String returns a short status label used in logs and metrics.
func (s callState) String() string {
	switch s {
	case callParsed:
		return "parsed"
	case callParseFailed:
		return "parse_failed"
	case callExecuted:
		return "executed"
	case callExecutionFailed:
		return "execution_failed"
	case callChainUpdated:
		return "chain_updated"
	default:
		return "unknown"
	}
}

// invocation is one tool call moving through the dispatch state machine.
type invocation struct {
	call   llm.ToolCall
	desc   *catalog.FunctionDescriptor
	args   any
	state  callState
	err    error
	result *catalog.Result
}

// Dispatcher decodes and executes the tool calls of one model response
// against a function registry. It is safe for concurrent use.
type Dispatcher struct {
	registry *catalog.Registry
	log      *slog.Logger
	alog     *asynclog.Logger
	metrics  *observe.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the structured logger.
func WithDispatchLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithDispatchAsyncLogger mirrors invocation failures onto the bounded print
// queue, where handlers running on pinned threads also report.
func WithDispatchAsyncLogger(alog *asynclog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.alog = alog }
}

// WithDispatchMetrics sets the metrics sink.
func WithDispatchMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// NewDispatcher returns a Dispatcher over the given registry.
func NewDispatcher(registry *catalog.Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		log:      slog.Default(),
		metrics:  observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch decodes every call and executes the batch under the given
// strategy, writing each successful call's result through state.
//
// A batch of exactly one call is executed inline regardless of strategy, and
// its result is returned to the caller instead of being written through
// state; the caller owns applying it. This is also the only path on which
// Dispatch returns an error: in a multi-call batch, per-invocation failures
// are logged and counted while the remaining siblings run to completion, and
// Dispatch returns (nil, nil) after joining them all.
//
// ParallelThreads degrades to ConcurrentTasks when ctx already belongs to a
// pinned invocation, so nested chains cannot multiply OS threads.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []llm.ToolCall, strategy Strategy, state *ChainState) (*catalog.Result, error) {
	if state == nil {
		state = NewChainState()
	}
	if strategy == ParallelThreads && isThreaded(ctx) {
		strategy = ConcurrentTasks
	}

	start := time.Now()
	defer func() {
		d.metrics.DispatchDuration.Record(ctx, time.Since(start).Seconds())
	}()

	switch len(calls) {
	case 0:
		return nil, nil
	case 1:
		return d.dispatchSingle(ctx, calls[0], state)
	}

	invs := make([]*invocation, len(calls))
	for i, call := range calls {
		invs[i] = d.parse(call)
	}

	switch strategy {
	case ConcurrentTasks, ParallelThreads:
		d.runConcurrent(ctx, invs, strategy, state)
	default:
		d.runSequential(ctx, invs, state)
	}
	return nil, nil
}

// dispatchSingle executes the one call of a single-call batch inline and
// returns its result rather than writing it through state. A successful
// handler that returns nil still yields an empty update: success always
// replaces the chain state, even with nothing.
func (d *Dispatcher) dispatchSingle(ctx context.Context, call llm.ToolCall, state *ChainState) (*catalog.Result, error) {
	inv := d.parse(call)
	if inv.state == callParseFailed {
		d.reportFailure(ctx, inv)
		return nil, inv.err
	}

	prior, command := state.Snapshot()
	d.execute(ctx, inv, nil, callEnv{prior: prior, priorCommand: command})
	if inv.state == callExecutionFailed {
		d.reportFailure(ctx, inv)
		return nil, inv.err
	}
	inv.state = callChainUpdated
	if inv.result == nil {
		inv.result = &catalog.Result{}
	}
	return inv.result, nil
}

// runSequential executes invocations in response order. Each call snapshots
// the state as left by the call before it, so updates flow forward within
// the batch.
func (d *Dispatcher) runSequential(ctx context.Context, invs []*invocation, state *ChainState) {
	for _, inv := range invs {
		if inv.state == callParseFailed {
			d.reportFailure(ctx, inv)
			continue
		}
		prior, command := state.Snapshot()
		d.execute(ctx, inv, state, callEnv{prior: prior, priorCommand: command})
		if inv.state == callExecutionFailed {
			d.reportFailure(ctx, inv)
		}
	}
}

// runConcurrent executes invocations on their own goroutines and joins the
// whole batch. All siblings get the same snapshot of the incoming state;
// their writes race, last one wins. Under ParallelThreads each goroutine is
// pinned to an OS thread for the duration of its call.
func (d *Dispatcher) runConcurrent(ctx context.Context, invs []*invocation, strategy Strategy, state *ChainState) {
	prior, command := state.Snapshot()
	env := callEnv{prior: prior, priorCommand: command, threaded: strategy == ParallelThreads}

	var wg sync.WaitGroup
	for _, inv := range invs {
		if inv.state == callParseFailed {
			d.reportFailure(ctx, inv)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if strategy == ParallelThreads {
				runtime.LockOSThread()
				defer runtime.UnlockOSThread()
			}
			d.execute(ctx, inv, state, env)
			if inv.state == callExecutionFailed {
				d.reportFailure(ctx, inv)
			}
		}()
	}
	wg.Wait()
}

// parse resolves a tool call to its descriptor and decodes its arguments,
// retrying once with snake_cased keys when the model ignored the schema's
// casing.
func (d *Dispatcher) parse(call llm.ToolCall) *invocation {
	inv := &invocation{call: call, state: callParsed}

	desc, ok := d.registry.Lookup(call.Name)
	if !ok {
		suggestion, _ := catalog.NearestName(call.Name, d.registry.Names())
		inv.state = callParseFailed
		inv.err = &UnknownFunctionError{Name: call.Name, Suggestion: suggestion}
		return inv
	}
	inv.desc = desc

	args, err := desc.Decode([]byte(call.Arguments))
	if err != nil {
		args, err = desc.Decode([]byte(rewriteArgumentKeys(call.Arguments)))
	}
	if err != nil {
		inv.state = callParseFailed
		inv.err = &ArgumentError{Function: call.Name, Raw: call.Arguments, Err: err}
		return inv
	}
	inv.args = args
	return inv
}

// execute runs a parsed invocation's handler with the snapshot env on its
// context. A non-nil state receives the result on success, completing the
// call's lifecycle; with a nil state the caller takes delivery.
func (d *Dispatcher) execute(ctx context.Context, inv *invocation, state *ChainState, env callEnv) {
	res, err := inv.desc.Run(withCallEnv(ctx, env), inv.args)
	if err != nil {
		inv.state = callExecutionFailed
		inv.err = err
		return
	}
	inv.state = callExecuted
	inv.result = res
	d.metrics.RecordToolCall(ctx, inv.call.Name, "ok")

	if state != nil {
		state.Apply(res)
		inv.state = callChainUpdated
	}
}

// reportFailure logs and counts a terminal invocation without propagating
// it.
func (d *Dispatcher) reportFailure(ctx context.Context, inv *invocation) {
	status := inv.state.String()
	d.metrics.RecordToolCall(ctx, inv.call.Name, status)
	d.log.ErrorContext(ctx, "tool call failed",
		slog.String("function", inv.call.Name),
		slog.String("status", status),
		slog.Any("error", inv.err))
	if d.alog != nil {
		d.alog.Sendf("tool call %s failed: %v", inv.call.Name, inv.err)
	}
}
