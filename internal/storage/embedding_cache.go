package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// GetCachedEmbedding looks up a vector by content hash. ErrNotFound on miss.
func (db *DB) GetCachedEmbedding(ctx context.Context, contentHash string) (pgvector.Vector, error) {
	var v pgvector.Vector
	err := db.pool.QueryRow(ctx,
		`SELECT embedding FROM embedding_cache WHERE content_hash = $1`, contentHash).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pgvector.Vector{}, ErrNotFound
		}
		return pgvector.Vector{}, fmt.Errorf("storage: get cached embedding: %w", err)
	}
	return v, nil
}

// PutCachedEmbedding stores a vector under its content hash. Concurrent
// writers of the same hash race benignly: first write wins, the rest are
// no-ops, and every reader sees the same vector since the hash covers the
// model id and the full input text.
func (db *DB) PutCachedEmbedding(ctx context.Context, contentHash, modelID string, vec pgvector.Vector) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO embedding_cache (content_hash, model_id, embedding)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (content_hash) DO NOTHING`,
		contentHash, modelID, vec)
	if err != nil {
		return fmt.Errorf("storage: put cached embedding: %w", err)
	}
	return nil
}
