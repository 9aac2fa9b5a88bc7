// Package search provides the ANN index over tender embeddings, with a
// Qdrant-backed implementation and an outbox worker that keeps the index in
// sync with Postgres.
package search

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Result holds a tender ID and its cosine similarity to the query vector.
// The caller hydrates full tenders from Postgres (source of truth).
type Result struct {
	TenderID   uuid.UUID
	Similarity float64
}

// Filter is the hard-predicate set pushed down to the index. Status is
// always restricted to published points.
type Filter struct {
	Sectors        []string
	Regions        []string
	DeadlineAfter  *time.Time
	DeadlineBefore *time.Time
}

// Searcher is the interface for the tender vector index.
// Implementations must be safe for concurrent use.
type Searcher interface {
	// Query returns tender IDs matching the embedding under the filter, in
	// strictly descending similarity with ascending tender ID as tiebreak.
	Query(ctx context.Context, embedding []float32, f Filter, limit int) ([]Result, error)

	// RangeByScore returns tender IDs matching the embedding under the
	// filter whose cosine similarity is at least minSim, in the same order
	// as Query.
	RangeByScore(ctx context.Context, embedding []float32, minSim float64, f Filter, limit int) ([]Result, error)

	// Similar returns published tenders nearest to the embedding, with
	// excludeID stripped from the results.
	Similar(ctx context.Context, embedding []float32, excludeID uuid.UUID, limit int) ([]Result, error)

	// Healthy returns nil if the index is reachable.
	Healthy(ctx context.Context) error
}

// sortResults enforces the ordering guarantee in Go regardless of how the
// backend breaks score ties: descending similarity, then ascending ID.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].TenderID.String() < results[j].TenderID.String()
	})
}
