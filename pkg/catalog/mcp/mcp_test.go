package mcp

import (
	"context"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/frankfralick/openai-func-enums/pkg/catalog"
	"github.com/frankfralick/openai-func-enums/pkg/tokens"
)

// wordEncoder counts one token per whitespace-separated field.
type wordEncoder struct{}

func (wordEncoder) Encode(text string, _, _ []string) []int {
	return make([]int, len(strings.Fields(text)))
}

func testCounter() *tokens.Counter {
	return tokens.NewCounterWithEncoder(wordEncoder{})
}

// TestTransportIsValid verifies the recognised transport values.
func TestTransportIsValid(t *testing.T) {
	t.Parallel()
	if !TransportStdio.IsValid() {
		t.Error("stdio should be valid")
	}
	if !TransportStreamableHTTP.IsValid() {
		t.Error("streamable-http should be valid")
	}
	if Transport("grpc").IsValid() {
		t.Error("grpc should not be valid")
	}
	if Transport("").IsValid() {
		t.Error("empty transport should not be valid")
	}
}

// TestSplitCommand verifies command-line splitting for stdio servers.
func TestSplitCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		command  string
		wantExec string
		wantArgs []string
	}{
		{"/bin/foo", "/bin/foo", nil},
		{"/bin/foo --bar baz", "/bin/foo", []string{"--bar", "baz"}},
		{"  /bin/foo  ", "/bin/foo", nil},
		{"", "", nil},
	}
	for _, tt := range tests {
		gotExec, gotArgs := splitCommand(tt.command)
		if gotExec != tt.wantExec {
			t.Errorf("splitCommand(%q) executable = %q, want %q", tt.command, gotExec, tt.wantExec)
		}
		if len(gotArgs) != len(tt.wantArgs) {
			t.Errorf("splitCommand(%q) args = %v, want %v", tt.command, gotArgs, tt.wantArgs)
			continue
		}
		for i := range gotArgs {
			if gotArgs[i] != tt.wantArgs[i] {
				t.Errorf("splitCommand(%q) args = %v, want %v", tt.command, gotArgs, tt.wantArgs)
				break
			}
		}
	}
}

// TestSchemaToMap verifies schema normalization for the shapes the SDK can
// hand over.
func TestSchemaToMap(t *testing.T) {
	t.Parallel()

	if got := schemaToMap(nil); got["type"] != "object" {
		t.Errorf("nil schema: got %v, want object default", got)
	}

	direct := map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{"type": "number"}}}
	if got := schemaToMap(direct); got["type"] != "object" {
		t.Errorf("map schema: got %v", got)
	}

	// Typed schema values round-trip through JSON.
	type schema struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties,omitempty"`
	}
	got := schemaToMap(&schema{Type: "object", Properties: map[string]any{"x": map[string]any{"type": "string"}}})
	if got["type"] != "object" {
		t.Errorf("struct schema: got %v", got)
	}
	props, ok := got["properties"].(map[string]any)
	if !ok || props["x"] == nil {
		t.Errorf("struct schema properties: got %v", got["properties"])
	}
}

// TestTextContent verifies that text parts are concatenated in order.
func TestTextContent(t *testing.T) {
	t.Parallel()

	res := &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: "4"},
			&mcpsdk.TextContent{Text: "2"},
		},
	}
	if got := textContent(res); got != "42" {
		t.Errorf("textContent = %q, want %q", got, "42")
	}

	empty := &mcpsdk.CallToolResult{}
	if got := textContent(empty); got != "" {
		t.Errorf("textContent of empty result = %q, want empty", got)
	}
}

// TestImportRejectsBadConfigs verifies that config problems are caught before
// any connection attempt.
func TestImportRejectsBadConfigs(t *testing.T) {
	t.Parallel()
	im := NewImporter(testCounter())
	defer im.Close()
	reg := catalog.NewRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     ServerConfig
		wantSub string
	}{
		{
			name:    "EmptyName",
			cfg:     ServerConfig{Transport: TransportStdio, Command: "/bin/tool"},
			wantSub: "name",
		},
		{
			name:    "UnknownTransport",
			cfg:     ServerConfig{Name: "srv", Transport: "grpc"},
			wantSub: "transport",
		},
		{
			name:    "StdioWithoutCommand",
			cfg:     ServerConfig{Name: "srv", Transport: TransportStdio},
			wantSub: "Command",
		},
		{
			name:    "HTTPWithoutURL",
			cfg:     ServerConfig{Name: "srv", Transport: TransportStreamableHTTP},
			wantSub: "URL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := im.Import(ctx, reg, tt.cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error should mention %q, got: %v", tt.wantSub, err)
			}
		})
	}

	if reg.Len() != 0 {
		t.Errorf("registry should stay empty, has %d entries", reg.Len())
	}
}

// TestCloseIsIdempotent verifies Close on a fresh importer and a second call.
func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	im := NewImporter(testCounter())
	if err := im.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := im.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
