package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/frankfralick/openai-func-enums/pkg/asynclog"
	"github.com/frankfralick/openai-func-enums/pkg/budget"
	"github.com/frankfralick/openai-func-enums/pkg/catalog"
	"github.com/frankfralick/openai-func-enums/pkg/observe"
	"github.com/frankfralick/openai-func-enums/pkg/provider/embeddings"
	"github.com/frankfralick/openai-func-enums/pkg/provider/llm"
	"github.com/frankfralick/openai-func-enums/pkg/rank"
	"github.com/frankfralick/openai-func-enums/pkg/tokens"
)

// priorResultFormat rewrites every step after the first when a prior result
// exists. The wording is part of the model-visible contract; changing it
// changes model behavior.
const priorResultFormat = "The prior result was: %s. %s"

// Limits carries the token ceilings one engine instance enforces. Zero
// disables the corresponding check.
type Limits struct {
	// MaxRequestTokens caps the estimated total of one assembled request.
	MaxRequestTokens int

	// MaxFunctionTokens caps the summed schema cost of the functions
	// selected for one request.
	MaxFunctionTokens int

	// MaxResponseTokens caps completion length, passed through to the
	// provider. Zero means provider default.
	MaxResponseTokens int
}

// Engine runs prompt chains through the full pipeline: embed the prompt,
// rank the catalog against it, select functions under the token ceiling,
// assemble and send the request, then dispatch whatever tool calls come
// back. An Engine is safe for concurrent use; each RunChain owns its own
// ChainState.
type Engine struct {
	registry   *catalog.Registry
	provider   llm.Provider
	embedder   embeddings.Provider
	selector   *budget.Selector
	assembler  *Assembler
	dispatcher *Dispatcher
	limits     Limits

	catalogEmbeddings []rank.FuncEmbedding
	allowed           []string
	required          []string

	system       string
	systemTokens int
	temperature  float64

	log     *slog.Logger
	alog    *asynclog.Logger
	metrics *observe.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSystemMessage sets the system prompt sent with every request. Its
// token cost is counted exactly at construction.
func WithSystemMessage(message string) EngineOption {
	return func(e *Engine) { e.system = message }
}

// WithAllowedFunctions restricts selection to the named functions. Without
// it the whole catalog is eligible.
func WithAllowedFunctions(names ...string) EngineOption {
	return func(e *Engine) { e.allowed = names }
}

// WithRequiredFunctions lists functions that go to the front of every
// selection walk. They still count against the function-token ceiling.
func WithRequiredFunctions(names ...string) EngineOption {
	return func(e *Engine) { e.required = names }
}

// WithCatalogEmbeddings provides the per-function embeddings used to rank
// the catalog against each prompt. Without them (or without an embedding
// provider) ranking is skipped and candidates keep registration order.
func WithCatalogEmbeddings(funcs []rank.FuncEmbedding) EngineOption {
	return func(e *Engine) { e.catalogEmbeddings = funcs }
}

// WithTemperature sets the sampling temperature for completion requests.
func WithTemperature(t float64) EngineOption {
	return func(e *Engine) { e.temperature = t }
}

// WithEngineLogger sets the structured logger.
func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithEngineAsyncLogger mirrors dispatch failures onto the bounded print
// queue.
func WithEngineAsyncLogger(alog *asynclog.Logger) EngineOption {
	return func(e *Engine) { e.alog = alog }
}

// WithEngineMetrics sets the metrics sink.
func WithEngineMetrics(m *observe.Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEngine wires a complete pipeline over the given registry and providers.
// embedder may be nil, which disables prompt ranking.
func NewEngine(registry *catalog.Registry, provider llm.Provider, embedder embeddings.Provider, counter *tokens.Counter, limits Limits, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		provider: provider,
		embedder: embedder,
		limits:   limits,
		log:      slog.Default(),
		metrics:  observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.selector = budget.New(e.log)
	e.assembler = NewAssembler(counter, limits.MaxRequestTokens,
		WithAssemblerLogger(e.log), WithAssemblerMetrics(e.metrics))
	e.dispatcher = NewDispatcher(registry,
		WithDispatchLogger(e.log), WithDispatchAsyncLogger(e.alog), WithDispatchMetrics(e.metrics))
	if e.system != "" {
		e.systemTokens = counter.Count(e.system)
	}
	return e
}

// Run executes a single prompt as a one-step chain.
func (e *Engine) Run(ctx context.Context, prompt string, strategy Strategy) (*catalog.Result, error) {
	return e.RunChain(ctx, []string{prompt}, strategy)
}

// RunChain executes prompts in order as one chain. The first step sends its
// prompt verbatim; every later step folds the prior result into its prompt,
// or is skipped silently when no prior result exists (so a chain whose step
// produced nothing halts early rather than erroring).
//
// Budget and transport errors abort the remaining chain. The returned
// Result is the last successful chain update even when err is non-nil; it
// is nil when no step produced one.
func (e *Engine) RunChain(ctx context.Context, prompts []string, strategy Strategy) (*catalog.Result, error) {
	if len(prompts) == 0 {
		return nil, nil
	}
	if strategy == ParallelThreads && isThreaded(ctx) {
		strategy = ConcurrentTasks
	}

	log := e.log.With(slog.String("chain_id", uuid.NewString()))
	e.metrics.ActiveChains.Add(ctx, 1)
	defer e.metrics.ActiveChains.Add(ctx, -1)

	state := NewChainState()
	for i, prompt := range prompts {
		if i > 0 {
			prior, ok := state.Prior()
			if !ok {
				log.DebugContext(ctx, "chain step skipped, no prior result", slog.Int("step", i))
				e.metrics.RecordChainStep(ctx, "skipped")
				continue
			}
			prompt = fmt.Sprintf(priorResultFormat, prior, prompt)
		}
		if err := e.step(ctx, log, i, prompt, strategy, state); err != nil {
			log.ErrorContext(ctx, "chain aborted",
				slog.Int("step", i), slog.Any("error", err))
			return state.AsResult(), err
		}
	}
	return state.AsResult(), nil
}

// step runs one chain step end to end and writes its outcome through state.
// Only budget and transport failures surface as errors; a failed tool call
// has already been logged by the dispatcher and leaves state untouched.
func (e *Engine) step(ctx context.Context, log *slog.Logger, idx int, prompt string, strategy Strategy, state *ChainState) error {
	ctx, span := observe.StartSpan(ctx, "funcenums.chain.step", trace.WithAttributes(
		attribute.Int("step", idx),
		attribute.String("strategy", strategy.String()),
	))
	defer span.End()
	if tid := observe.CorrelationID(ctx); tid != "" {
		log = log.With(slog.String("trace_id", tid))
	}

	selStart := time.Now()
	candidates, err := e.candidateNames(ctx, prompt)
	if err != nil {
		observe.FailSpan(span, err)
		e.metrics.RecordChainStep(ctx, "error")
		return err
	}
	selected, selectedTokens := e.selector.SelectNames(e.registry, candidates, e.required, e.limits.MaxFunctionTokens)
	e.metrics.SelectionDuration.Record(ctx, time.Since(selStart).Seconds())

	req, err := e.assembler.Assemble(ctx, e.system, e.systemTokens, prompt, selected, selectedTokens)
	if err != nil {
		observe.FailSpan(span, err)
		e.metrics.RecordChainStep(ctx, "error")
		return err
	}
	req.MaxTokens = e.limits.MaxResponseTokens
	req.Temperature = e.temperature
	span.SetAttributes(attribute.Int("functions_offered", len(req.Tools)))

	llmStart := time.Now()
	resp, err := e.provider.Complete(ctx, req)
	e.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	if err != nil {
		terr := &TransportError{Op: "complete", Err: err}
		observe.FailSpan(span, terr)
		e.metrics.RecordProviderError(ctx, e.provider.ModelID(), "completion")
		e.metrics.RecordChainStep(ctx, "error")
		return terr
	}

	log.DebugContext(ctx, "chain step completed",
		slog.Int("step", idx),
		slog.Int("functions_offered", len(req.Tools)),
		slog.Int("tool_calls", len(resp.ToolCalls)),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens))

	if len(resp.ToolCalls) == 0 {
		// Freeform answer: the model replied in text instead of selecting a
		// function. The text becomes the chain update.
		if resp.Content != "" {
			state.Apply(&catalog.Result{Output: resp.Content, Command: []string{catalog.FreeformName}})
		}
		e.metrics.RecordChainStep(ctx, "ok")
		return nil
	}

	res, err := e.dispatcher.Dispatch(ctx, resp.ToolCalls, strategy, state)
	if err != nil {
		// Single-call failure, already logged and counted downstream. The
		// chain moves on without an update, which normally halts it at the
		// next step.
		observe.FailSpan(span, err)
		e.metrics.RecordChainStep(ctx, "error")
		return nil
	}
	if res != nil {
		state.Apply(res)
	}
	e.metrics.RecordChainStep(ctx, "ok")
	return nil
}

// candidateNames produces the preference-ordered candidate list for one
// step. With catalog embeddings and an embedding provider present, the
// prompt is embedded and the catalog comes back most-relevant first;
// otherwise the allowed list (or the whole catalog) stands in registration
// order.
func (e *Engine) candidateNames(ctx context.Context, prompt string) ([]string, error) {
	allowed := e.allowed
	if len(allowed) == 0 {
		allowed = e.registry.Names()
	}
	if e.embedder == nil || len(e.catalogEmbeddings) == 0 {
		return allowed, nil
	}

	embStart := time.Now()
	vec, err := e.embedder.Embed(ctx, prompt)
	e.metrics.EmbeddingDuration.Record(ctx, time.Since(embStart).Seconds())
	if err != nil {
		e.metrics.RecordProviderError(ctx, e.embedder.ModelID(), "embedding")
		return nil, &TransportError{Op: "embed", Err: err}
	}

	return mergeRanked(rank.Rank(vec, e.catalogEmbeddings), allowed), nil
}

// mergeRanked filters ranked down to the allowed set, then appends allowed
// names the ranking never saw (functions without an embedding) in their
// original order. A stale archive must not hide functions from selection.
func mergeRanked(ranked, allowed []string) []string {
	allow := make(map[string]struct{}, len(allowed))
	for _, n := range allowed {
		allow[n] = struct{}{}
	}

	out := make([]string, 0, len(allowed))
	seen := make(map[string]struct{}, len(allowed))
	keep := func(n string) {
		if _, ok := allow[n]; !ok {
			return
		}
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}

	for _, n := range ranked {
		keep(n)
	}
	for _, n := range allowed {
		keep(n)
	}
	return out
}
