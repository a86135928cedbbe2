package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/frankfralick/openai-func-enums/pkg/catalog/mcp"
	"github.com/frankfralick/openai-func-enums/pkg/dispatch"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, validates the result, and
// fills unset fields with their defaults. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Engine
	if cfg.Engine.Strategy != "" {
		if _, err := dispatch.ParseStrategy(cfg.Engine.Strategy); err != nil {
			errs = append(errs, fmt.Errorf("engine.strategy %q is invalid; valid values: sequential, concurrent, parallel", cfg.Engine.Strategy))
		}
	}
	if cfg.Engine.Temperature < 0 || cfg.Engine.Temperature > 2 {
		errs = append(errs, fmt.Errorf("engine.temperature %.2f is out of range [0, 2]", cfg.Engine.Temperature))
	}
	if cfg.Engine.Limits.MaxRequestTokens < 0 {
		errs = append(errs, fmt.Errorf("engine.limits.max_request_tokens %d must not be negative", cfg.Engine.Limits.MaxRequestTokens))
	}
	if cfg.Engine.Limits.MaxFunctionTokens < 0 {
		errs = append(errs, fmt.Errorf("engine.limits.max_function_tokens %d must not be negative", cfg.Engine.Limits.MaxFunctionTokens))
	}
	if cfg.Engine.Limits.MaxResponseTokens < 0 {
		errs = append(errs, fmt.Errorf("engine.limits.max_response_tokens %d must not be negative", cfg.Engine.Limits.MaxResponseTokens))
	}
	if cfg.Engine.Limits.MaxSingleArgTokens < 0 {
		errs = append(errs, fmt.Errorf("engine.limits.max_single_arg_tokens %d must not be negative", cfg.Engine.Limits.MaxSingleArgTokens))
	}
	if cfg.Engine.Limits.MaxFunctionTokens > 0 && cfg.Engine.Limits.MaxRequestTokens > 0 &&
		cfg.Engine.Limits.MaxFunctionTokens > cfg.Engine.Limits.MaxRequestTokens {
		slog.Warn("engine.limits.max_function_tokens exceeds max_request_tokens; function schemas alone can overflow the request budget",
			"max_function_tokens", cfg.Engine.Limits.MaxFunctionTokens,
			"max_request_tokens", cfg.Engine.Limits.MaxRequestTokens,
		)
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; chain execution will be unavailable")
	}

	// Embeddings ↔ ranking
	if cfg.Providers.Embeddings.Name != "" && cfg.Ranking.ArchivePath == "" && cfg.Ranking.PostgresDSN == "" {
		slog.Warn("providers.embeddings is configured but ranking has neither archive_path nor postgres_dsn; function ranking will be disabled")
	}
	if cfg.Ranking.PostgresDSN != "" && cfg.Ranking.Dimensions <= 0 {
		slog.Warn("ranking.postgres_dsn is set but ranking.dimensions is not; defaulting to 1536")
	}

	// MCP servers
	serverNamesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := serverNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			serverNamesSeen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// applyDefaults fills fields left unset with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Engine.Strategy == "" {
		cfg.Engine.Strategy = DefaultStrategy
	}
	if cfg.Engine.Limits.MaxRequestTokens == 0 {
		cfg.Engine.Limits.MaxRequestTokens = DefaultMaxRequestTokens
	}
	if cfg.Engine.Limits.MaxFunctionTokens == 0 {
		cfg.Engine.Limits.MaxFunctionTokens = DefaultMaxFunctionTokens
	}
	if cfg.Engine.Limits.MaxResponseTokens == 0 {
		cfg.Engine.Limits.MaxResponseTokens = DefaultMaxResponseTokens
	}
	if cfg.Engine.Limits.MaxSingleArgTokens == 0 {
		cfg.Engine.Limits.MaxSingleArgTokens = DefaultMaxSingleArgTokens
	}
	if cfg.Ranking.Dimensions == 0 {
		cfg.Ranking.Dimensions = DefaultEmbeddingDimensions
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
