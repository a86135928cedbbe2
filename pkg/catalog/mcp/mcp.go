// Package mcp imports tools from Model Context Protocol servers into the
// function catalog.
//
// Each imported tool becomes a [catalog.FunctionDescriptor] whose handler
// forwards the call to the owning server session and returns the textual
// content of the reply as the chain update. Argument payloads pass through
// unparsed; the serving side owns schema validation.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/frankfralick/openai-func-enums/pkg/catalog"
	"github.com/frankfralick/openai-func-enums/pkg/tokens"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name is the human-readable identifier for this server.
	// Must be unique within a single [Importer]. Used in log messages and errors.
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable path (and optional arguments) used when
	// Transport is stdio.
	// Example: "/usr/local/bin/mcp-server --config /etc/mcp.json"
	// Ignored for streamable-http transport.
	Command string

	// URL is the endpoint address used when Transport is streamable-http.
	// Example: "https://tools.example.com/mcp"
	// Ignored for stdio transport.
	URL string

	// Env holds additional environment variables injected into the server
	// process when Transport is stdio. May be nil.
	Env map[string]string
}

// Importer connects to MCP servers and registers their tools as catalog
// functions. It is safe for concurrent use; [Importer.ImportAll] runs one
// import per server concurrently.
type Importer struct {
	counter *tokens.Counter
	log     *slog.Logger

	// client is reused across all server connections. The official SDK allows
	// a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client

	mu       sync.Mutex
	sessions map[string]*mcpsdk.ClientSession // key: server name
}

// ImporterOption configures an [Importer].
type ImporterOption func(*Importer)

// WithImporterLogger sets the logger used for per-tool import warnings.
func WithImporterLogger(log *slog.Logger) ImporterOption {
	return func(im *Importer) {
		if log != nil {
			im.log = log
		}
	}
}

// NewImporter creates a ready-to-use Importer. counter prices each imported
// tool's schema so budget selection can account for it like any locally
// registered function.
func NewImporter(counter *tokens.Counter, opts ...ImporterOption) *Importer {
	im := &Importer{
		counter: counter,
		log:     slog.Default(),
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "funcenums", Version: "1.0.0"},
			nil,
		),
		sessions: make(map[string]*mcpsdk.ClientSession),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import connects to the server described by cfg, lists its tools, and
// registers each one on reg. A tool whose name collides with an already
// registered function is skipped with a warning; transport and listing
// failures abort the whole import.
//
// Re-importing a server name closes the previous session. Descriptors
// registered from the earlier import keep that closed session and will fail
// on their next call.
func (im *Importer) Import(ctx context.Context, reg *catalog.Registry, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcp: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		// Inject additional environment variables on top of the inherited
		// environment. Leaving Env nil keeps plain inheritance.
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := im.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp: connect to server %q: %w", cfg.Name, err)
	}

	// Discover tools using the iterator.
	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcp: list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	im.mu.Lock()
	if old, ok := im.sessions[cfg.Name]; ok {
		_ = old.Close()
	}
	im.sessions[cfg.Name] = session
	im.mu.Unlock()

	for _, tool := range discovered {
		desc, err := im.describe(session, cfg.Name, tool)
		if err != nil {
			im.log.Warn("skipping MCP tool",
				slog.String("server", cfg.Name),
				slog.String("tool", tool.Name),
				slog.Any("error", err),
			)
			continue
		}
		if err := reg.Register(desc); err != nil {
			im.log.Warn("skipping MCP tool",
				slog.String("server", cfg.Name),
				slog.String("tool", tool.Name),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// ImportAll imports every server in cfgs concurrently. The first failure
// cancels the remaining imports and is returned; servers that finished
// before the failure keep their registered tools.
func (im *Importer) ImportAll(ctx context.Context, reg *catalog.Registry, cfgs []ServerConfig) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, cfg := range cfgs {
		g.Go(func() error {
			return im.Import(ctx, reg, cfg)
		})
	}
	return g.Wait()
}

// Close shuts down all server sessions. Descriptors imported through this
// Importer become unusable afterwards.
func (im *Importer) Close() error {
	im.mu.Lock()
	defer im.mu.Unlock()

	var firstErr error
	for name, s := range im.sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp: closing server %q: %w", name, err)
		}
		delete(im.sessions, name)
	}
	return firstErr
}

// describe converts an SDK tool into a catalog descriptor whose handler
// proxies the call back to the owning session.
func (im *Importer) describe(session *mcpsdk.ClientSession, serverName string, tool mcpsdk.Tool) (*catalog.FunctionDescriptor, error) {
	params := schemaToMap(tool.InputSchema)
	return catalog.NewDynamic(tool.Name, tool.Description, params, im.counter,
		func(ctx context.Context, raw string) (*catalog.Result, error) {
			return im.call(ctx, session, serverName, tool.Name, raw)
		})
}

// call forwards one invocation to the owning server session. An IsError
// reply surfaces as a handler error so the dispatch layer treats it like any
// failed execution.
func (im *Importer) call(ctx context.Context, session *mcpsdk.ClientSession, serverName, toolName, raw string) (*catalog.Result, error) {
	var args map[string]any
	if trimmed := strings.TrimSpace(raw); trimmed != "" && trimmed != "{}" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("mcp: invalid args JSON for tool %q: %w", toolName, err)
		}
	}

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp: call to tool %q on server %q failed: %w", toolName, serverName, err)
	}

	text := textContent(res)
	if res.IsError {
		return nil, fmt.Errorf("mcp: tool %q on server %q: %s", toolName, serverName, text)
	}
	return &catalog.Result{Output: text, Command: []string{toolName}}, nil
}

// textContent concatenates all text content parts of a tool result.
func textContent(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
