// Package postgres stores the function-embedding catalog in PostgreSQL so
// several machines can share one set of embeddings instead of each carrying
// an archive file.
//
// The table is written by cmd/embedgen ([Store.Sync]) and read wholesale at
// engine startup ([Store.LoadAll]); ranking itself stays an in-process linear
// scan over the loaded catalog. The pgvector extension provides the column
// type only — no similarity queries run in the database.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	funcs, err := store.LoadAll(ctx)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/frankfralick/openai-func-enums/pkg/rank"
)

// ddlFuncEmbeddings returns the catalog DDL with the embedding dimension
// substituted. The dimension is baked into the column type at creation time.
//
// There is deliberately no vector index: the whole catalog is read at startup
// and ranked in-process.
func ddlFuncEmbeddings(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS func_embeddings (
    name        TEXT         PRIMARY KEY,
    description TEXT         NOT NULL DEFAULT '',
    embedding   vector(%d),
    model       TEXT         NOT NULL DEFAULT '',
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`, embeddingDimensions)
}

// Store is a PostgreSQL-backed function-embedding catalog. All operations are
// safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the PostgreSQL database at dsn, registers pgvector
// types on every connection, and runs [Migrate] to ensure the catalog table
// exists.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce the catalog (e.g. 1536 for text-embedding-3-small).
// Changing it after the first migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("embedding store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so the embedding column
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("embedding store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("embedding store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate creates the catalog table and pgvector extension if they do not
// exist. It is idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlFuncEmbeddings(embeddingDimensions)); err != nil {
		return fmt.Errorf("embedding store: migrate: %w", err)
	}
	return nil
}

// Sync replaces the stored catalog with funcs in a single transaction:
// every entry is upserted and rows for functions no longer in the catalog are
// deleted. model records which embedding model produced the vectors so a
// mismatched reader can be diagnosed.
func (s *Store) Sync(ctx context.Context, model string, funcs []rank.FuncEmbedding) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("embedding store: begin sync: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsert = `
		INSERT INTO func_embeddings (name, description, embedding, model, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE SET
		    description = EXCLUDED.description,
		    embedding   = EXCLUDED.embedding,
		    model       = EXCLUDED.model,
		    updated_at  = EXCLUDED.updated_at`

	names := make([]string, 0, len(funcs))
	for _, f := range funcs {
		names = append(names, f.Name)
		vec := pgvector.NewVector(f.Embedding)
		if _, err := tx.Exec(ctx, upsert, f.Name, f.Description, vec, model); err != nil {
			return fmt.Errorf("embedding store: upsert %q: %w", f.Name, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM func_embeddings WHERE NOT (name = ANY($1))`, names); err != nil {
		return fmt.Errorf("embedding store: prune stale entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("embedding store: commit sync: %w", err)
	}
	return nil
}

// LoadAll reads the full catalog, ordered by function name for deterministic
// tie-breaking during ranking.
func (s *Store) LoadAll(ctx context.Context) ([]rank.FuncEmbedding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, description, embedding
		FROM   func_embeddings
		ORDER  BY name`)
	if err != nil {
		return nil, fmt.Errorf("embedding store: load: %w", err)
	}

	funcs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (rank.FuncEmbedding, error) {
		var (
			fe  rank.FuncEmbedding
			vec pgvector.Vector
		)
		if err := row.Scan(&fe.Name, &fe.Description, &vec); err != nil {
			return rank.FuncEmbedding{}, err
		}
		fe.Embedding = vec.Slice()
		return fe, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding store: scan rows: %w", err)
	}
	return funcs, nil
}

// Ping verifies the database connection. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
