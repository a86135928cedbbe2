package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/frankfralick/openai-func-enums/pkg/catalog"
	embedmock "github.com/frankfralick/openai-func-enums/pkg/provider/embeddings/mock"
	"github.com/frankfralick/openai-func-enums/pkg/provider/llm"
	llmmock "github.com/frankfralick/openai-func-enums/pkg/provider/llm/mock"
	"github.com/frankfralick/openai-func-enums/pkg/rank"
	"github.com/frankfralick/openai-func-enums/pkg/tokens"
)

func toolCallResponse(calls ...llm.ToolCall) *llm.CompletionResponse {
	return &llm.CompletionResponse{ToolCalls: calls}
}

func contentResponse(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: text}
}

func newTestEngineLimits(t *testing.T, reg *catalog.Registry, prov llm.Provider, limits Limits, opts ...EngineOption) *Engine {
	t.Helper()
	counter := tokens.NewCounterWithEncoder(wordEncoder{})
	base := []EngineOption{WithEngineLogger(discardLogger())}
	return NewEngine(reg, prov, nil, counter, limits, append(base, opts...)...)
}

func newTestEngine(t *testing.T, reg *catalog.Registry, prov llm.Provider, opts ...EngineOption) *Engine {
	t.Helper()
	limits := Limits{MaxRequestTokens: 4191, MaxFunctionTokens: 500, MaxResponseTokens: 1000}
	return newTestEngineLimits(t, reg, prov, limits, opts...)
}

// TestRunChain_SingleStepToolCall verifies the whole pipeline for one step:
// selection fills the tool schemas, the model's call executes, and its
// result becomes the chain outcome.
func TestRunChain_SingleStepToolCall(t *testing.T) {
	record := &callRecord{}
	reg := newTestRegistry(t, record)
	prov := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			toolCallResponse(toolCall("multiply", `{"a": 3, "b": 4}`)),
		},
	}
	e := newTestEngine(t, reg, prov)

	res, err := e.Run(context.Background(), "what is three times four", Sequential)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res == nil || res.Output != "12" {
		t.Fatalf("result = %+v, want Output \"12\"", res)
	}
	if len(res.Command) != 3 || res.Command[0] != "multiply" {
		t.Errorf("Command = %v, want [multiply 3 4]", res.Command)
	}

	if len(prov.CompleteCalls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(prov.CompleteCalls))
	}
	req := prov.CompleteCalls[0].Req
	if len(req.Tools) != 3 {
		t.Errorf("Tools = %d entries, want all three catalog functions", len(req.Tools))
	}
	if req.MaxTokens != 1000 {
		t.Errorf("MaxTokens = %d, want 1000", req.MaxTokens)
	}
}

// TestRunChain_PriorResultRewrite verifies step folding: the second step's
// prompt carries the first step's result in the fixed wording, and the
// single-call shortcut of step one still feeds the chain state.
func TestRunChain_PriorResultRewrite(t *testing.T) {
	reg := newTestRegistry(t, nil)
	prov := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			toolCallResponse(toolCall("multiply", `{"a": 3, "b": 4}`)),
			contentResponse("done"),
		},
	}
	e := newTestEngine(t, reg, prov)

	res, err := e.RunChain(context.Background(),
		[]string{"compute three times four", "now add five"}, Sequential)
	if err != nil {
		t.Fatalf("RunChain: %v", err)
	}
	if res == nil || res.Output != "done" {
		t.Fatalf("result = %+v, want Output \"done\"", res)
	}

	if len(prov.CompleteCalls) != 2 {
		t.Fatalf("Complete calls = %d, want 2", len(prov.CompleteCalls))
	}
	second := prov.CompleteCalls[1].Req.Messages[0].Content
	want := "The prior result was: 12. now add five"
	if second != want {
		t.Errorf("second prompt = %q, want %q", second, want)
	}
}

// TestRunChain_MultiCallStepFeedsNextStep verifies a multi-call step writes
// the shared state directly (last call wins under Sequential) and the next
// step sees it.
func TestRunChain_MultiCallStepFeedsNextStep(t *testing.T) {
	reg := newTestRegistry(t, nil)
	prov := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			toolCallResponse(
				toolCall("multiply", `{"a": 3, "b": 4}`),
				toolCall("add", `{"a": 1, "b": 2}`),
			),
			contentResponse("done"),
		},
	}
	e := newTestEngine(t, reg, prov)

	if _, err := e.RunChain(context.Background(),
		[]string{"do both operations", "summarize"}, Sequential); err != nil {
		t.Fatalf("RunChain: %v", err)
	}
	if len(prov.CompleteCalls) != 2 {
		t.Fatalf("Complete calls = %d, want 2", len(prov.CompleteCalls))
	}
	second := prov.CompleteCalls[1].Req.Messages[0].Content
	want := "The prior result was: 3. summarize"
	if second != want {
		t.Errorf("second prompt = %q, want %q", second, want)
	}
}

// TestRunChain_StepSkippedWithoutPrior verifies the silent early halt: a
// step that produced nothing leaves the next step unsent.
func TestRunChain_StepSkippedWithoutPrior(t *testing.T) {
	reg := newTestRegistry(t, nil)
	prov := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{}},
	}
	e := newTestEngine(t, reg, prov)

	res, err := e.RunChain(context.Background(),
		[]string{"produce nothing", "this step never runs"}, Sequential)
	if err != nil {
		t.Fatalf("RunChain: %v", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if len(prov.CompleteCalls) != 1 {
		t.Errorf("Complete calls = %d, want 1 (second step skipped)", len(prov.CompleteCalls))
	}
}

// TestRunChain_BudgetAbortsBeforeNetwork verifies the request ceiling is
// enforced without a single provider call.
func TestRunChain_BudgetAbortsBeforeNetwork(t *testing.T) {
	reg := newTestRegistry(t, nil)
	prov := &llmmock.Provider{}
	limits := Limits{MaxRequestTokens: 50, MaxFunctionTokens: 500, MaxResponseTokens: 1000}
	e := newTestEngineLimits(t, reg, prov, limits)

	res, err := e.Run(context.Background(), "anything at all", Sequential)
	if !errors.Is(err, ErrTokenBudgetExceeded) {
		t.Fatalf("err = %v, want ErrTokenBudgetExceeded", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if len(prov.CompleteCalls) != 0 {
		t.Errorf("Complete calls = %d, want 0 (reject before network)", len(prov.CompleteCalls))
	}
}

// TestRunChain_TransportAbortsChain verifies a completion failure stops the
// remaining steps and surfaces as a TransportError.
func TestRunChain_TransportAbortsChain(t *testing.T) {
	connErr := errors.New("connection reset")
	reg := newTestRegistry(t, nil)
	prov := &llmmock.Provider{CompleteErr: connErr}
	e := newTestEngine(t, reg, prov)

	res, err := e.RunChain(context.Background(),
		[]string{"first", "second"}, Sequential)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "complete" {
		t.Fatalf("err = %v, want *TransportError with Op \"complete\"", err)
	}
	if !errors.Is(err, connErr) {
		t.Error("TransportError does not wrap the provider error")
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if len(prov.CompleteCalls) != 1 {
		t.Errorf("Complete calls = %d, want 1 (chain aborted)", len(prov.CompleteCalls))
	}
}

// TestRunChain_FreeformContentBecomesUpdate verifies a text-only reply is
// recorded as the chain update under the freeform sentinel.
func TestRunChain_FreeformContentBecomesUpdate(t *testing.T) {
	reg := newTestRegistry(t, nil)
	prov := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			contentResponse("the answer is twelve"),
		},
	}
	e := newTestEngine(t, reg, prov)

	res, err := e.Run(context.Background(), "what is three times four", Sequential)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res == nil || res.Output != "the answer is twelve" {
		t.Fatalf("result = %+v, want the model text", res)
	}
	if len(res.Command) != 1 || res.Command[0] != catalog.FreeformName {
		t.Errorf("Command = %v, want [%s]", res.Command, catalog.FreeformName)
	}
}

// TestRunChain_SingleCallFailureDoesNotAbort verifies a failed single tool
// call is absorbed: the chain moves on and halts at the next step's skip
// rather than erroring out.
func TestRunChain_SingleCallFailureDoesNotAbort(t *testing.T) {
	reg := newTestRegistry(t, nil)
	prov := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			toolCallResponse(toolCall("no_such_function", `{}`)),
		},
	}
	e := newTestEngine(t, reg, prov)

	res, err := e.RunChain(context.Background(),
		[]string{"first", "second"}, Sequential)
	if err != nil {
		t.Fatalf("RunChain: %v (invocation failures must not abort)", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if len(prov.CompleteCalls) != 1 {
		t.Errorf("Complete calls = %d, want 1 (second step skipped)", len(prov.CompleteCalls))
	}
}

// TestRunChain_RankingReordersTools verifies prompt embedding drives the
// tool-schema order: most similar function first.
func TestRunChain_RankingReordersTools(t *testing.T) {
	reg := newTestRegistry(t, nil)
	prov := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{contentResponse("ok")},
	}
	embedder := &embedmock.Provider{EmbedResult: []float32{0, 1}}
	counter := tokens.NewCounterWithEncoder(wordEncoder{})
	limits := Limits{MaxRequestTokens: 4191, MaxFunctionTokens: 500, MaxResponseTokens: 1000}
	e := NewEngine(reg, prov, embedder, counter, limits,
		WithEngineLogger(discardLogger()),
		WithCatalogEmbeddings([]rank.FuncEmbedding{
			{Name: "multiply", Embedding: []float32{1, 0}},
			{Name: "add", Embedding: []float32{0, 1}},
			{Name: "subtract", Embedding: []float32{0.5, 0.5}},
		}))

	if _, err := e.Run(context.Background(), "add five and seven", Sequential); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(embedder.EmbedCalls) != 1 || embedder.EmbedCalls[0].Text != "add five and seven" {
		t.Fatalf("EmbedCalls = %+v, want the prompt embedded once", embedder.EmbedCalls)
	}

	req := prov.CompleteCalls[0].Req
	if len(req.Tools) != 3 {
		t.Fatalf("Tools = %d entries, want 3", len(req.Tools))
	}
	wantOrder := []string{"add", "subtract", "multiply"}
	for i, want := range wantOrder {
		if req.Tools[i].Name != want {
			t.Errorf("Tools[%d] = %q, want %q (ranked order)", i, req.Tools[i].Name, want)
		}
	}
}

// TestRunChain_EmbedFailureAborts verifies an embedding transport failure
// stops the step before any completion call.
func TestRunChain_EmbedFailureAborts(t *testing.T) {
	embErr := errors.New("embeddings down")
	reg := newTestRegistry(t, nil)
	prov := &llmmock.Provider{}
	embedder := &embedmock.Provider{EmbedErr: embErr}
	counter := tokens.NewCounterWithEncoder(wordEncoder{})
	e := NewEngine(reg, prov, embedder, counter,
		Limits{MaxRequestTokens: 4191, MaxFunctionTokens: 500},
		WithEngineLogger(discardLogger()),
		WithCatalogEmbeddings([]rank.FuncEmbedding{{Name: "add", Embedding: []float32{1}}}))

	_, err := e.Run(context.Background(), "anything", Sequential)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "embed" {
		t.Fatalf("err = %v, want *TransportError with Op \"embed\"", err)
	}
	if len(prov.CompleteCalls) != 0 {
		t.Errorf("Complete calls = %d, want 0", len(prov.CompleteCalls))
	}
}

// TestRunChain_RequiredFunctionsLeadSelection verifies required names go to
// the front of the emitted tool schemas.
func TestRunChain_RequiredFunctionsLeadSelection(t *testing.T) {
	reg := newTestRegistry(t, nil)
	prov := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{contentResponse("ok")},
	}
	e := newTestEngine(t, reg, prov, WithRequiredFunctions("subtract"))

	if _, err := e.Run(context.Background(), "do something", Sequential); err != nil {
		t.Fatalf("Run: %v", err)
	}
	req := prov.CompleteCalls[0].Req
	if len(req.Tools) == 0 || req.Tools[0].Name != "subtract" {
		t.Errorf("Tools = %+v, want subtract first", req.Tools)
	}
}

// TestRunChain_EmptyPrompts verifies a no-op chain.
func TestRunChain_EmptyPrompts(t *testing.T) {
	reg := newTestRegistry(t, nil)
	prov := &llmmock.Provider{}
	e := newTestEngine(t, reg, prov)

	res, err := e.RunChain(context.Background(), nil, Sequential)
	if res != nil || err != nil {
		t.Fatalf("RunChain(nil) = %+v, %v, want nil, nil", res, err)
	}
	if len(prov.CompleteCalls) != 0 {
		t.Errorf("Complete calls = %d, want 0", len(prov.CompleteCalls))
	}
}
