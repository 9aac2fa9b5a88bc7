package matcher

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/search"
	"github.com/chereta-io/chereta/internal/service/rules"
	"github.com/chereta-io/chereta/internal/storage"
)

const (
	defaultSimilarLimit = 5
	maxSimilarLimit     = 20
)

// Similar returns the published tenders nearest to the reference tender's
// embedding, annotated with shared keyword tokens.
func (s *Service) Similar(ctx context.Context, tenderID uuid.UUID, limit int) (model.SimilarTendersResponse, error) {
	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	if limit > maxSimilarLimit {
		limit = maxSimilarLimit
	}

	ref, err := s.db.GetTender(ctx, tenderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.SimilarTendersResponse{}, ErrReferenceNotFound
		}
		return model.SimilarTendersResponse{}, err
	}

	vec, err := s.db.GetTenderVector(ctx, tenderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.SimilarTendersResponse{}, ErrReferenceNotEmbedded
		}
		return model.SimilarTendersResponse{}, err
	}

	hits := s.similarHits(ctx, tenderID, vec, limit)

	ids := make([]uuid.UUID, 0, len(hits))
	simByID := make(map[uuid.UUID]float64, len(hits))
	for _, h := range hits {
		if h.TenderID == tenderID {
			continue
		}
		ids = append(ids, h.TenderID)
		simByID[h.TenderID] = h.Similarity
	}

	tenders, err := s.db.GetTendersByIDs(ctx, ids)
	if err != nil {
		return model.SimilarTendersResponse{}, err
	}
	byID := make(map[uuid.UUID]model.Tender, len(tenders))
	for _, t := range tenders {
		byID[t.ID] = t
	}

	now := time.Now().UTC()
	items := make([]model.SimilarTender, 0, limit)
	for _, id := range ids {
		t, ok := byID[id]
		if !ok || t.EffectiveStatus(now) != model.StatusPublished {
			continue
		}
		items = append(items, model.SimilarTender{
			Tender:          t,
			SimilarityScore: similarityScore(simByID[id]),
			CommonKeywords:  rules.CommonKeywords(ref, t),
		})
		if len(items) == limit {
			break
		}
	}

	return model.SimilarTendersResponse{Ref: tenderID, Items: items}, nil
}

func (s *Service) similarHits(ctx context.Context, excludeID uuid.UUID, vec pgvector.Vector, limit int) []search.Result {
	// Over-fetch: hydration may drop rows whose status changed since indexing.
	k := limit * 2

	if s.searcher != nil {
		if err := s.searcher.Healthy(ctx); err == nil {
			hits, err := s.searcher.Similar(ctx, vec.Slice(), excludeID, k)
			if err == nil {
				return hits
			}
			s.logger.Warn("qdrant similar failed, falling back to pgvector", "error", err)
		}
	}

	// Status-only filter, matching the Qdrant path: similarity browsing has
	// no deadline window, expired rows drop out during hydration.
	dbHits, err := s.db.KNNTenders(ctx, vec, k+1, storage.CandidateFilter{
		Now:            time.Now().UTC(),
		IgnoreDeadline: true,
	})
	if err != nil {
		s.logger.Error("pgvector similar query failed", "error", err)
		return nil
	}
	hits := make([]search.Result, 0, len(dbHits))
	for _, h := range dbHits {
		if h.TenderID == excludeID {
			continue
		}
		hits = append(hits, search.Result{TenderID: h.TenderID, Similarity: h.Similarity})
	}
	return hits
}

// similarityScore maps cosine similarity into the integer [0,100] scale.
func similarityScore(cos float64) int {
	score := int(math.Round(100 * clamp01(cos)))
	if score > 100 {
		score = 100
	}
	return score
}
