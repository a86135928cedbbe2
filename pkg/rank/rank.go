// Package rank orders catalog functions by semantic relevance to a prompt.
//
// Relevance is cosine similarity between a prompt embedding and per-function
// embeddings produced offline (see cmd/embedgen). Ranking is a deliberate
// linear scan: function catalogs are small, and an index structure would not
// pay for itself. The embeddings themselves can live in a local archive file
// (this package) or a shared Postgres table (the postgres subpackage); both
// feed the same in-process scan.
package rank

import (
	"cmp"
	"math"
	"slices"
)

// FuncEmbedding pairs a catalog function with the embedding of its name and
// description. The vector is produced once, offline, by the same embedding
// model later used for prompts.
type FuncEmbedding struct {
	Name        string
	Description string
	Embedding   []float32
}

// EmbedText returns the text that is embedded for a function: the name and
// description joined the same way cmd/embedgen joins them. Prompt-time
// ranking only works if archive generation and lookup agree on this format.
func (f FuncEmbedding) EmbedText() string {
	return f.Name + ": " + f.Description
}

// CosineSimilarity returns the cosine of the angle between a and b,
// accumulating in float64. The dot product runs over the shorter of the two
// vectors; magnitudes cover each full vector. If either magnitude is zero the
// result is 0 rather than NaN, so a missing or degenerate embedding simply
// ranks last.
func CosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot float64
	for i := range n {
		dot += float64(a[i]) * float64(b[i])
	}
	var magA, magB float64
	for _, v := range a {
		magA += float64(v) * float64(v)
	}
	for _, v := range b {
		magB += float64(v) * float64(v)
	}
	magA = math.Sqrt(magA)
	magB = math.Sqrt(magB)
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (magA * magB)
}

// Rank returns the catalog's function names ordered most-relevant first.
// Equal similarities keep their catalog order, so reranking the same catalog
// with the same prompt embedding is deterministic. An empty catalog yields an
// empty ranking.
func Rank(promptEmbedding []float32, catalog []FuncEmbedding) []string {
	if len(catalog) == 0 {
		return nil
	}

	type scored struct {
		name string
		sim  float64
	}
	scores := make([]scored, len(catalog))
	for i, f := range catalog {
		scores[i] = scored{name: f.Name, sim: CosineSimilarity(promptEmbedding, f.Embedding)}
	}

	slices.SortStableFunc(scores, func(a, b scored) int {
		return cmp.Compare(b.sim, a.sim)
	})

	names := make([]string, len(scores))
	for i, s := range scores {
		names[i] = s.name
	}
	return names
}
