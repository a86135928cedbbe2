// Command embedgen embeds every registered catalog function's name and
// description and writes the result to the ranking sinks named in the
// config: a local gob archive, a shared postgres store, or both.
//
// Run it after changing the toolset or the MCP server list — the engine only
// ranks functions present in the catalog it loads at startup.
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

	"golang.org/x/sync/errgroup"

	"github.com/frankfralick/openai-func-enums/internal/config"
	"github.com/frankfralick/openai-func-enums/internal/mathtools"
	"github.com/frankfralick/openai-func-enums/pkg/catalog"
	catalogmcp "github.com/frankfralick/openai-func-enums/pkg/catalog/mcp"
	"github.com/frankfralick/openai-func-enums/pkg/provider/embeddings"
	ollamaembed "github.com/frankfralick/openai-func-enums/pkg/provider/embeddings/ollama"
	oaembed "github.com/frankfralick/openai-func-enums/pkg/provider/embeddings/openai"
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
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "embedgen: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "embedgen: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if cfg.Providers.Embeddings.Name == "" {
		slog.Error("providers.embeddings is required to generate the catalog")
		return 1
	}
	if cfg.Ranking.ArchivePath == "" && cfg.Ranking.PostgresDSN == "" {
		slog.Error("ranking needs a sink; set ranking.archive_path or ranking.postgres_dsn")
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Embeddings provider ───────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerEmbeddingProviders(reg)

	embedder, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to create embeddings provider", "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "embeddings",
		"name", cfg.Providers.Embeddings.Name, "model", cfg.Providers.Embeddings.Model)

	counter, err := tokens.NewCounter()
	if err != nil {
		slog.Error("failed to load token encoding", "err", err)
		return 1
	}

	// ── Function catalog ──────────────────────────────────────────────────────
	// The catalog must match what funcenums registers at run time, so the
	// toolset and every configured MCP server contribute entries.
	registry := catalog.NewRegistry()
	toolset := mathtools.NewToolset(counter, nil,
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
	}

	// ── Embed ─────────────────────────────────────────────────────────────────
	funcs, err := embedCatalog(ctx, registry, embedder)
	if err != nil {
		slog.Error("failed to embed catalog", "err", err)
		return 1
	}

	if dims := embedder.Dimensions(); dims != 0 && dims != cfg.Ranking.Dimensions {
		slog.Warn("provider dimensions differ from ranking.dimensions",
			"provider", dims, "configured", cfg.Ranking.Dimensions)
	}

	// ── Sinks ─────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	if path := cfg.Ranking.ArchivePath; path != "" {
		g.Go(func() error {
			if err := rank.WriteArchive(path, funcs); err != nil {
				return err
			}
			slog.Info("archive written", "path", path, "functions", len(funcs))
			return nil
		})
	}
	if dsn := cfg.Ranking.PostgresDSN; dsn != "" {
		model := cfg.Providers.Embeddings.Model
		g.Go(func() error {
			store, err := rankpg.NewStore(gctx, dsn, cfg.Ranking.Dimensions)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Sync(gctx, model, funcs); err != nil {
				return err
			}
			slog.Info("postgres store synced", "functions", len(funcs))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("failed to store catalog embeddings", "err", err)
		return 1
	}

	slog.Info("catalog embedded", "functions", len(funcs), "model", cfg.Providers.Embeddings.Model)
	return 0
}

// embedCatalog embeds every descriptor's "Name: Description" text in one
// batch call, keeping registry order.
func embedCatalog(ctx context.Context, registry *catalog.Registry, embedder embeddings.Provider) ([]rank.FuncEmbedding, error) {
	descriptors := registry.All()
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("catalog is empty; nothing to embed")
	}

	funcs := make([]rank.FuncEmbedding, len(descriptors))
	texts := make([]string, len(descriptors))
	for i, d := range descriptors {
		funcs[i] = rank.FuncEmbedding{Name: d.Name, Description: d.Description}
		texts[i] = funcs[i].EmbedText()
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range funcs {
		funcs[i].Embedding = vectors[i]
	}
	return funcs, nil
}

// registerEmbeddingProviders wires the built-in embeddings factories into reg.
func registerEmbeddingProviders(reg *config.Registry) {
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

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
