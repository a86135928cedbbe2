package anyllm

import (
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/frankfralick/openai-func-enums/pkg/provider/llm"
)

// ── convertMessage ────────────────────────────────────────────────────────────

// TestConvertMessage_System checks that system-role messages are converted correctly.
func TestConvertMessage_System(t *testing.T) {
	m := llm.Message{Role: llm.RoleSystem, Content: "You are helpful."}
	got := convertMessage(m)
	if got.Role != "system" {
		t.Errorf("expected role system, got %q", got.Role)
	}
	if got.ContentString() != "You are helpful." {
		t.Errorf("expected content %q, got %q", "You are helpful.", got.ContentString())
	}
}

// TestConvertMessage_User checks that user-role messages are converted correctly.
func TestConvertMessage_User(t *testing.T) {
	m := llm.Message{Role: llm.RoleUser, Content: "What is 6 times 2?"}
	got := convertMessage(m)
	if got.Role != "user" {
		t.Errorf("expected role user, got %q", got.Role)
	}
	if got.ContentString() != "What is 6 times 2?" {
		t.Errorf("expected content %q, got %q", "What is 6 times 2?", got.ContentString())
	}
}

// TestConvertMessage_AssistantWithToolCalls checks tool call conversion.
func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	m := llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "multiply", Arguments: `{"a":6,"b":2}`},
		},
	}
	got := convertMessage(m)
	if got.Role != "assistant" {
		t.Errorf("expected role assistant, got %q", got.Role)
	}
	if len(got.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(got.ToolCalls))
	}
	tc := got.ToolCalls[0]
	if tc.ID != "call_1" {
		t.Errorf("expected ID call_1, got %q", tc.ID)
	}
	if tc.Function.Name != "multiply" {
		t.Errorf("expected function name multiply, got %q", tc.Function.Name)
	}
	if tc.Function.Arguments != `{"a":6,"b":2}` {
		t.Errorf("unexpected arguments: %q", tc.Function.Arguments)
	}
	if tc.Type != "function" {
		t.Errorf("expected type function, got %q", tc.Type)
	}
}

// TestConvertMessage_Tool checks tool-result message conversion.
func TestConvertMessage_Tool(t *testing.T) {
	m := llm.Message{Role: llm.RoleTool, Content: "12", ToolCallID: "call_1"}
	got := convertMessage(m)
	if got.Role != "tool" {
		t.Errorf("expected role tool, got %q", got.Role)
	}
	if got.ToolCallID != "call_1" {
		t.Errorf("expected ToolCallID call_1, got %q", got.ToolCallID)
	}
	if got.ContentString() != "12" {
		t.Errorf("expected content 12, got %q", got.ContentString())
	}
}

// TestConvertMessage_EmptyToolCalls checks that zero tool calls yield no ToolCalls slice.
func TestConvertMessage_EmptyToolCalls(t *testing.T) {
	m := llm.Message{Role: llm.RoleAssistant, Content: "No tools here."}
	got := convertMessage(m)
	if len(got.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(got.ToolCalls))
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemPromptAndTools checks full request conversion.
func TestBuildParams_SystemPromptAndTools(t *testing.T) {
	p := &Provider{model: "gpt-4-1106-preview"}
	req := llm.CompletionRequest{
		SystemPrompt: "You are a calculator.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Divide 71 by 3."},
		},
		Tools: []llm.ToolDefinition{
			{
				Name:        "divide",
				Description: "Divide two numbers.",
				Parameters:  map[string]any{"type": "object"},
			},
		},
		MaxTokens:   256,
		Temperature: 0.2,
	}

	params := p.buildParams(req)
	if params.Model != "gpt-4-1106-preview" {
		t.Errorf("expected model gpt-4-1106-preview, got %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages (system + user), got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("expected first message role system, got %q", params.Messages[0].Role)
	}
	if len(params.Tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(params.Tools))
	}
	if params.Tools[0].Function.Name != "divide" {
		t.Errorf("expected tool name divide, got %q", params.Tools[0].Function.Name)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Error("expected MaxTokens pointer set to 256")
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Error("expected Temperature pointer set to 0.2")
	}
}

// TestBuildParams_ZeroTemperatureOmitted checks that zero temperature keeps provider defaults.
func TestBuildParams_ZeroTemperatureOmitted(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if params.Temperature != nil {
		t.Error("expected nil Temperature for zero value")
	}
	if params.MaxTokens != nil {
		t.Error("expected nil MaxTokens for zero value")
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

// TestNew_EmptyBackend checks that an empty backend name returns an error.
func TestNew_EmptyBackend(t *testing.T) {
	_, err := New("", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for empty backend")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedBackend checks that an unknown backend is rejected with
// an error naming the supported alternatives.
func TestNew_UnsupportedBackend(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported backend")
	}
	if !strings.Contains(err.Error(), "anthropic") {
		t.Errorf("error should list supported backends, got: %v", err)
	}
}

// TestNew_OpenAI_MissingAPIKey checks that OpenAI returns an error when no API key is available.
// This relies on OPENAI_API_KEY not being set in the test environment.
func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "") // Ensure env var is clear.
	_, err := New("openai", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// TestNew_ConstructsBackends checks construction for backends that need no
// live endpoint: hosted ones with a dummy key, local ones with nothing.
func TestNew_ConstructsBackends(t *testing.T) {
	tests := []struct {
		backend string
		model   string
		opts    []anyllmlib.Option
	}{
		{"openai", "gpt-4-1106-preview", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"anthropic", "claude-3-5-sonnet-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", "llama3", nil},
		{"llamacpp", "llama3", nil},
		{"llamafile", "llama3", nil},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			p, err := New(tt.backend, tt.model, tt.opts...)
			if err != nil {
				t.Fatalf("New(%q): %v", tt.backend, err)
			}
			if p.ModelID() != tt.model {
				t.Errorf("ModelID() = %q, want %q", p.ModelID(), tt.model)
			}
		})
	}
}

// TestNew_BackendNameCaseInsensitive checks that backend names are lowered
// before lookup.
func TestNew_BackendNameCaseInsensitive(t *testing.T) {
	p, err := New("Ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// TestBackends_SortedAndComplete pins the supported backend list; the
// binaries register providers by iterating it.
func TestBackends_SortedAndComplete(t *testing.T) {
	want := []string{
		"anthropic", "deepseek", "gemini", "groq",
		"llamacpp", "llamafile", "mistral", "ollama", "openai",
	}
	got := Backends()
	if !slices.Equal(got, want) {
		t.Errorf("Backends() = %v, want %v", got, want)
	}
}
