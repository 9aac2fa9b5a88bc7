package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/pgvector/pgvector-go"

	"github.com/chereta-io/chereta/internal/storage"
)

// CachedProvider wraps a Provider with a content-addressed Postgres cache.
// Keys are sha256(model_id || NUL || text), so a model change invalidates
// every entry implicitly. Writes are first-write-wins; a lost race still
// leaves the identical vector in place.
type CachedProvider struct {
	inner   Provider
	db      *storage.DB
	modelID string
	logger  *slog.Logger
}

// NewCachedProvider wraps inner with the embedding cache.
func NewCachedProvider(inner Provider, db *storage.DB, modelID string, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{inner: inner, db: db, modelID: modelID, logger: logger}
}

// Dimensions returns the wrapped provider's vector size.
func (c *CachedProvider) Dimensions() int {
	return c.inner.Dimensions()
}

// CacheKey returns the content address for a text under the configured model.
func (c *CachedProvider) CacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.modelID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Embed returns the cached vector when present, otherwise calls the wrapped
// provider and stores the result. Cache failures degrade to a provider call;
// they never fail the embed.
func (c *CachedProvider) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	if err := validateInput(text); err != nil {
		return pgvector.Vector{}, err
	}
	key := c.CacheKey(text)

	vec, err := c.db.GetCachedEmbedding(ctx, key)
	if err == nil {
		return vec, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		c.logger.Warn("embedding cache read failed", "error", err)
	}

	vec, err = c.inner.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	if err := c.db.PutCachedEmbedding(ctx, key, c.modelID, vec); err != nil {
		c.logger.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// EmbedBatch resolves hits from the cache and forwards only misses to the
// wrapped provider.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs := make([]pgvector.Vector, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if err := validateInput(t); err != nil {
			return nil, err
		}
		v, err := c.db.GetCachedEmbedding(ctx, c.CacheKey(t))
		if err == nil {
			vecs[i] = v
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("embedding cache read failed", "error", err)
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return vecs, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	var batchErr *BatchError
	if err != nil && !errors.As(err, &batchErr) {
		return nil, err
	}

	outErrs := make([]error, len(texts))
	for j, idx := range missIdx {
		if batchErr != nil && batchErr.Errs[j] != nil {
			outErrs[idx] = batchErr.Errs[j]
			continue
		}
		vecs[idx] = fresh[j]
		if err := c.db.PutCachedEmbedding(ctx, c.CacheKey(missTexts[j]), c.modelID, fresh[j]); err != nil {
			c.logger.Warn("embedding cache write failed", "error", err)
		}
	}
	if batchErr != nil {
		return vecs, &BatchError{Errs: outErrs}
	}
	return vecs, nil
}
