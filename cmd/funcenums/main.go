// Command funcenums runs prompts through the function-calling engine: it
// ranks and selects catalog functions under the configured token ceilings,
// lets the model call them, and prints the final chain result on stdout.
//
// Each positional argument is one chain step; every step after the first
// sees the prior step's result folded into its prompt:
//
//	funcenums -config config.yaml "add 8 and 2" "multiply the prior result by 7"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/frankfralick/openai-func-enums/internal/config"
	"github.com/frankfralick/openai-func-enums/internal/mathtools"
	"github.com/frankfralick/openai-func-enums/internal/ops"
	"github.com/frankfralick/openai-func-enums/pkg/asynclog"
	"github.com/frankfralick/openai-func-enums/pkg/catalog"
	catalogmcp "github.com/frankfralick/openai-func-enums/pkg/catalog/mcp"
	"github.com/frankfralick/openai-func-enums/pkg/dispatch"
	"github.com/frankfralick/openai-func-enums/pkg/observe"
	"github.com/frankfralick/openai-func-enums/pkg/provider/embeddings"
	ollamaembed "github.com/frankfralick/openai-func-enums/pkg/provider/embeddings/ollama"
	oaembed "github.com/frankfralick/openai-func-enums/pkg/provider/embeddings/openai"
	"github.com/frankfralick/openai-func-enums/pkg/provider/llm"
	"github.com/frankfralick/openai-func-enums/pkg/provider/llm/anyllm"
	oachat "github.com/frankfralick/openai-func-enums/pkg/provider/llm/openai"
	"github.com/frankfralick/openai-func-enums/pkg/rank"
	rankpg "github.com/frankfralick/openai-func-enums/pkg/rank/postgres"
	"github.com/frankfralick/openai-func-enums/pkg/tokens"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	strategyFlag := flag.String("strategy", "", "override engine.strategy (sequential, concurrent, parallel)")
	flag.Parse()

	prompts := flag.Args()
	if len(prompts) == 0 {
		fmt.Fprintln(os.Stderr, "usage: funcenums [flags] PROMPT [PROMPT ...]")
		flag.PrintDefaults()
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "funcenums: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "funcenums: %v\n", err)
		}
		return 1
	}

	// ── Loggers ───────────────────────────────────────────────────────────────
	// Diagnostics flow through one bounded queue to stderr; chain result lines
	// share a second queue on stdout so concurrent handlers never interleave
	// within a line.
	diag := asynclog.New(asynclog.WithWriter(os.Stderr))
	defer diag.Close()
	logger := slog.New(asynclog.NewHandler(diag, slogLevel(cfg.Server.LogLevel)))
	slog.SetDefault(logger)

	alog := asynclog.New()
	defer alog.Close()

	// ── Strategy ──────────────────────────────────────────────────────────────
	strategyName := cfg.Engine.Strategy
	if *strategyFlag != "" {
		strategyName = *strategyFlag
	}
	strategy, err := dispatch.ParseStrategy(strategyName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "funcenums: %v\n", err)
		return 2
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "funcenums",
		ServiceVersion: "1.0.0",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	chatProvider, embedder, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if chatProvider == nil {
		slog.Error("providers.llm is required to run a chain")
		return 1
	}

	counter, err := newCounter(cfg.Providers.LLM.Model)
	if err != nil {
		slog.Error("failed to load token encoding", "err", err)
		return 1
	}

	// ── Function catalog ──────────────────────────────────────────────────────
	// The toolset's CallMultiStep starts nested chains through the engine, so
	// the runner closure dereferences the engine variable assigned below.
	registry := catalog.NewRegistry()
	var engine *dispatch.Engine
	runChain := func(ctx context.Context, prompts []string) (*catalog.Result, error) {
		return engine.RunChain(ctx, prompts, strategy)
	}
	toolset := mathtools.NewToolset(counter, runChain,
		mathtools.WithAsyncLogger(alog),
		mathtools.WithArgTokenCeiling(cfg.Engine.Limits.MaxSingleArgTokens))
	if err := toolset.Register(registry); err != nil {
		slog.Error("failed to register toolset", "err", err)
		return 1
	}

	if len(cfg.MCP.Servers) > 0 {
		importer := catalogmcp.NewImporter(counter, catalogmcp.WithImporterLogger(logger))
		defer func() {
			if err := importer.Close(); err != nil {
				slog.Warn("mcp session close error", "err", err)
			}
		}()
		if err := importer.ImportAll(ctx, registry, cfg.MCP.ServerConfigs()); err != nil {
			slog.Error("mcp import failed", "err", err)
			return 1
		}
		slog.Info("mcp tools imported", "servers", len(cfg.MCP.Servers))
	}

	// ── Embedding catalog ─────────────────────────────────────────────────────
	catalogEmbeddings, store, err := loadCatalogEmbeddings(ctx, cfg)
	if err != nil {
		slog.Error("failed to load embedding catalog", "err", err)
		return 1
	}
	var checkers []ops.Checker
	if store != nil {
		defer store.Close()
		checkers = append(checkers, ops.Checker{Name: "embedding_store", Check: store.Ping})
	}

	// ── Operational endpoints ─────────────────────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		go func() {
			if err := ops.Serve(ctx, cfg.Server.MetricsAddr, checkers...); err != nil {
				slog.Warn("metrics endpoint error", "err", err)
			}
		}()
		slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	system := cfg.Engine.SystemMessage
	if system == "" {
		system = mathtools.SystemMessage
	}
	engine = dispatch.NewEngine(registry, chatProvider, embedder, counter,
		dispatch.Limits{
			MaxRequestTokens:  cfg.Engine.Limits.MaxRequestTokens,
			MaxFunctionTokens: cfg.Engine.Limits.MaxFunctionTokens,
			MaxResponseTokens: cfg.Engine.Limits.MaxResponseTokens,
		},
		dispatch.WithSystemMessage(system),
		dispatch.WithTemperature(cfg.Engine.Temperature),
		dispatch.WithAllowedFunctions(cfg.Engine.AllowedFunctions...),
		dispatch.WithRequiredFunctions(cfg.Engine.RequiredFunctions...),
		dispatch.WithCatalogEmbeddings(catalogEmbeddings),
		dispatch.WithEngineLogger(logger),
		dispatch.WithEngineAsyncLogger(alog),
	)

	slog.Info("funcenums starting",
		"config", *configPath,
		"model", cfg.Providers.LLM.Model,
		"strategy", strategy.String(),
		"functions", registry.Len(),
		"ranked", len(catalogEmbeddings) > 0,
		"steps", len(prompts),
	)

	// ── Run the chain ─────────────────────────────────────────────────────────
	res, err := engine.RunChain(ctx, prompts, strategy)
	if err != nil {
		slog.Error("chain failed", "err", err)
		if res != nil {
			alog.Close()
			fmt.Println(res.Output)
		}
		return 1
	}
	if res == nil {
		slog.Warn("chain produced no result")
		return 0
	}

	// Close flushes the handlers' result lines before the final answer.
	alog.Close()
	fmt.Println(res.Output)
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Every any-llm backend is registered generically; openai is then overridden
// with the native client, and ollama with local-server wiring.
func registerBuiltinProviders(reg *config.Registry) {
	for _, backend := range anyllm.Backends() {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oachat.Option
		if entry.BaseURL != "" {
			opts = append(opts, oachat.WithBaseURL(entry.BaseURL))
		}
		if org := entry.StringOption("organization"); org != "" {
			opts = append(opts, oachat.WithOrganization(org))
		}
		return oachat.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if dims := entry.IntOption("dimensions"); dims > 0 {
			opts = append(opts, oaembed.WithDimensions(dims))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := entry.IntOption("dimensions"); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})
}

// buildProviders instantiates the providers named in cfg. The chat provider
// is nil only when providers.llm is unconfigured; the embedder is optional
// and nil disables prompt ranking.
func buildProviders(cfg *config.Config, reg *config.Registry) (llm.Provider, embeddings.Provider, error) {
	var (
		chat  llm.Provider
		embed embeddings.Provider
	)

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		chat = p
		slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		embed = p
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model)
	}

	return chat, embed, nil
}

// ── Embedding catalog ─────────────────────────────────────────────────────────

// loadCatalogEmbeddings reads the function-embedding catalog from the shared
// postgres store when configured, else from the local archive file. The
// returned store is non-nil only for postgres; the caller owns closing it.
func loadCatalogEmbeddings(ctx context.Context, cfg *config.Config) ([]rank.FuncEmbedding, *rankpg.Store, error) {
	if dsn := cfg.Ranking.PostgresDSN; dsn != "" {
		store, err := rankpg.NewStore(ctx, dsn, cfg.Ranking.Dimensions)
		if err != nil {
			return nil, nil, err
		}
		funcs, err := store.LoadAll(ctx)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		slog.Info("embedding catalog loaded", "source", "postgres", "functions", len(funcs))
		return funcs, store, nil
	}

	if path := cfg.Ranking.ArchivePath; path != "" {
		funcs, err := rank.ReadArchive(path)
		if err != nil {
			return nil, nil, err
		}
		if funcs == nil {
			slog.Warn("embedding archive missing; ranking disabled — run embedgen to create it", "path", path)
		} else {
			slog.Info("embedding catalog loaded", "source", "archive", "path", path, "functions", len(funcs))
		}
		return funcs, nil, nil
	}

	slog.Debug("no embedding catalog configured; candidates keep registration order")
	return nil, nil, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// newCounter picks the token encoding registered for the configured model,
// falling back to the default cl100k tables for models tiktoken does not know.
func newCounter(model string) (*tokens.Counter, error) {
	if model != "" {
		if c, err := tokens.NewCounterForModel(model); err == nil {
			return c, nil
		}
		slog.Debug("no tiktoken encoding for model, using default", "model", model)
	}
	return tokens.NewCounter()
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
