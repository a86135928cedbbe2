package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/frankfralick/openai-func-enums/pkg/catalog"
	"github.com/frankfralick/openai-func-enums/pkg/provider/llm"
	"github.com/frankfralick/openai-func-enums/pkg/tokens"
)

// wordEncoder stands in for the BPE tables: one token per whitespace field.
type wordEncoder struct{}

func (wordEncoder) Encode(text string, _, _ []string) []int {
	return make([]int, len(strings.Fields(text)))
}

func newTestAssembler(ceiling int) *Assembler {
	return NewAssembler(tokens.NewCounterWithEncoder(wordEncoder{}), ceiling,
		WithAssemblerLogger(discardLogger()))
}

// TestAssemble_BuildsRequest verifies the request shape: system prompt, one
// user message, and tool schemas in selection order.
func TestAssemble_BuildsRequest(t *testing.T) {
	params := map[string]any{"type": "object"}
	selected := []*catalog.FunctionDescriptor{
		{Name: "multiply", Description: "multiply two numbers", Parameters: params, TokenCost: 50},
		{Name: "add", Description: "add two numbers", TokenCost: 50},
	}
	a := newTestAssembler(4191)

	prompt := "what is three times four"
	req, err := a.Assemble(context.Background(), "be helpful", 10, prompt, selected, 100)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if req.SystemPrompt != "be helpful" {
		t.Errorf("SystemPrompt = %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser || req.Messages[0].Content != prompt {
		t.Errorf("Messages = %+v, want one user message carrying the prompt", req.Messages)
	}
	if len(req.Tools) != 2 || req.Tools[0].Name != "multiply" || req.Tools[1].Name != "add" {
		t.Fatalf("Tools = %+v, want [multiply add]", req.Tools)
	}
	if req.Tools[0].Parameters == nil {
		t.Error("Tools[0].Parameters dropped")
	}
}

// TestAssemble_RejectsOverBudget verifies the fail-fast gate and its
// arithmetic: selected + system + round(words/0.75), checked before any
// request exists.
func TestAssemble_RejectsOverBudget(t *testing.T) {
	selected := []*catalog.FunctionDescriptor{
		{Name: "multiply", TokenCost: 50},
	}
	a := newTestAssembler(50)

	// 5 words estimate to round(5/0.75) = 7 tokens.
	req, err := a.Assemble(context.Background(), "sys", 10, "what is three times four", selected, 100)
	if !errors.Is(err, ErrTokenBudgetExceeded) {
		t.Fatalf("err = %v, want ErrTokenBudgetExceeded", err)
	}
	var be *BudgetError
	if !errors.As(err, &be) {
		t.Fatalf("err = %T, want *BudgetError", err)
	}
	if be.Needed != 117 || be.Ceiling != 50 {
		t.Errorf("BudgetError = %+v, want Needed 117 Ceiling 50", be)
	}
	if req.Messages != nil || req.Tools != nil {
		t.Errorf("rejected assembly still produced a partial request: %+v", req)
	}
}

// TestAssemble_FreeformNeverEmitted verifies the sentinel stays out of the
// tool schemas even when selection hands it over.
func TestAssemble_FreeformNeverEmitted(t *testing.T) {
	selected := []*catalog.FunctionDescriptor{
		{Name: catalog.FreeformName, Freeform: true},
		{Name: "add", TokenCost: 50},
	}
	a := newTestAssembler(4191)

	req, err := a.Assemble(context.Background(), "", 0, "add one and two", selected, 50)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "add" {
		t.Errorf("Tools = %+v, want only [add]", req.Tools)
	}
}

// TestAssemble_ZeroCeilingDisablesCheck verifies a non-positive ceiling
// means unlimited.
func TestAssemble_ZeroCeilingDisablesCheck(t *testing.T) {
	a := newTestAssembler(0)

	if _, err := a.Assemble(context.Background(), "", 1_000_000, "hello", nil, 1_000_000); err != nil {
		t.Fatalf("Assemble with ceiling 0: %v", err)
	}
}
