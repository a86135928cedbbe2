package dispatch

import (
	"context"
	"log/slog"

	"github.com/frankfralick/openai-func-enums/pkg/catalog"
	"github.com/frankfralick/openai-func-enums/pkg/observe"
	"github.com/frankfralick/openai-func-enums/pkg/provider/llm"
	"github.com/frankfralick/openai-func-enums/pkg/tokens"
)

// Assembler builds completion requests and enforces the per-request token
// ceiling. Rejection happens here, before anything reaches the network: an
// over-budget request is never partially assembled or partially sent.
type Assembler struct {
	counter    *tokens.Counter
	maxRequest int
	log        *slog.Logger
	metrics    *observe.Metrics
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithAssemblerLogger sets the structured logger.
func WithAssemblerLogger(log *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		if log != nil {
			a.log = log
		}
	}
}

// WithAssemblerMetrics sets the metrics sink.
func WithAssemblerMetrics(m *observe.Metrics) AssemblerOption {
	return func(a *Assembler) {
		if m != nil {
			a.metrics = m
		}
	}
}

// NewAssembler returns an Assembler that rejects requests estimated above
// maxRequestTokens. A ceiling of zero or less disables the check.
func NewAssembler(counter *tokens.Counter, maxRequestTokens int, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		counter:    counter,
		maxRequest: maxRequestTokens,
		log:        slog.Default(),
		metrics:    observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the completion request for one chain step: system prompt,
// user prompt, and the tool schemas of the selected descriptors.
//
// The budgeted total is selectedTokens plus systemTokens plus the estimated
// prompt cost (see [tokens.Counter.EstimatePrompt]). If it exceeds the
// ceiling, Assemble returns a *BudgetError and no request. Freeform
// descriptors never appear in the emitted tool schemas, selected or not.
func (a *Assembler) Assemble(ctx context.Context, system string, systemTokens int, prompt string, selected []*catalog.FunctionDescriptor, selectedTokens int) (llm.CompletionRequest, error) {
	total := selectedTokens + systemTokens + a.counter.EstimatePrompt(prompt)
	a.metrics.RequestTokens.Record(ctx, int64(total))

	if a.maxRequest > 0 && total > a.maxRequest {
		a.metrics.BudgetRejections.Add(ctx, 1)
		a.log.WarnContext(ctx, "request rejected by token budget",
			slog.Int("needed", total),
			slog.Int("ceiling", a.maxRequest))
		return llm.CompletionRequest{}, &BudgetError{Needed: total, Ceiling: a.maxRequest}
	}

	req := llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}
	for _, desc := range selected {
		if desc == nil || desc.Freeform {
			continue
		}
		req.Tools = append(req.Tools, llm.ToolDefinition{
			Name:        desc.Name,
			Description: desc.Description,
			Parameters:  desc.Parameters,
		})
	}
	return req, nil
}
