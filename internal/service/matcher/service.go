// Package matcher orchestrates recommendation requests: candidate
// generation, score fusion, thresholding, ranking and explanation, with
// graceful degradation when the vector paths are unavailable.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/search"
	"github.com/chereta-io/chereta/internal/service/rules"
	"github.com/chereta-io/chereta/internal/storage"
	"github.com/chereta-io/chereta/internal/telemetry"
)

// Domain sentinels surfaced to the HTTP layer.
var (
	ErrProfileNotFound      = errors.New("matcher: profile not found")
	ErrProfileIncomplete    = errors.New("matcher: profile tier-1 incomplete")
	ErrReferenceNotFound    = errors.New("matcher: reference tender not found")
	ErrReferenceNotEmbedded = errors.New("matcher: reference tender has no embedding")
)

// maxReasonsPerItem caps the explanation list on each response row.
const maxReasonsPerItem = 6

// Service fuses semantic, rule and popularity signals into ranked,
// explained recommendations.
type Service struct {
	db         *storage.DB
	searcher   search.Searcher // nil when Qdrant is not configured
	popularity *PopularityTracker
	logger     *slog.Logger

	scoreDuration  metric.Float64Histogram
	candidateCount metric.Int64Histogram
}

// New creates a matcher Service. searcher may be nil; the pgvector KNN
// fallback then serves all vector queries.
func New(db *storage.DB, searcher search.Searcher, logger *slog.Logger) *Service {
	meter := telemetry.Meter("chereta/matcher")
	scoreDur, _ := meter.Float64Histogram("chereta.matcher.score.duration",
		metric.WithDescription("Time to score one recommendation request (ms)"),
		metric.WithUnit("ms"),
	)
	candCount, _ := meter.Int64Histogram("chereta.matcher.candidates",
		metric.WithDescription("Candidate set size per recommendation request"),
	)
	return &Service{
		db:             db,
		searcher:       searcher,
		popularity:     NewPopularityTracker(db, logger),
		logger:         logger,
		scoreDuration:  scoreDur,
		candidateCount: candCount,
	}
}

// Recommend runs the full pipeline for one request.
func (s *Service) Recommend(ctx context.Context, companyID, userID uuid.UUID, filters model.RecommendFilters) (model.RecommendationResponse, error) {
	if err := filters.Normalize(); err != nil {
		return model.RecommendationResponse{}, fmt.Errorf("matcher: %w", err)
	}
	now := time.Now().UTC()

	// 1. Load profile.
	profile, err := s.db.GetProfileByCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.RecommendationResponse{}, ErrProfileNotFound
		}
		return model.RecommendationResponse{}, err
	}
	if !profile.Tier1Complete() {
		return model.RecommendationResponse{}, ErrProfileIncomplete
	}

	// 2. Hard filters.
	hard := storage.CandidateFilter{
		Now:                now,
		DaysAhead:          filters.DaysAhead,
		Sectors:            filters.Sectors,
		Regions:            filters.Regions,
		ExcludeDismissedBy: userID,
	}
	k := candidateK(filters.Limit)

	// 3. Candidate generation with fallback chain:
	// Qdrant -> pgvector KNN -> rule pre-filter.
	hits, semanticOK := s.candidates(ctx, profile, hard, k)
	s.candidateCount.Record(ctx, int64(len(hits)))
	if len(hits) == 0 {
		return model.RecommendationResponse{
			Items:               []model.Recommendation{},
			ProfileCompletion:   profile.Completion(),
			FiltersApplied:      filters,
			SemanticUnavailable: !semanticOK,
			GeneratedAt:         now,
		}, nil
	}

	// 4. Parallel sub-fetches: hydration, dismissed set, popularity ceiling.
	ids := make([]uuid.UUID, len(hits))
	simByID := make(map[uuid.UUID]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.TenderID
		simByID[h.TenderID] = h.Similarity
	}

	var (
		tenders   []model.Tender
		dismissed map[uuid.UUID]bool
		ceiling   float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tenders, err = s.db.GetTendersByIDs(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		dismissed, err = s.db.DismissedTenderIDs(gctx, userID)
		return err
	})
	g.Go(func() error {
		// Popularity degrades to zero ceiling rather than failing the request.
		ceiling = s.popularity.Ceiling(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.RecommendationResponse{}, fmt.Errorf("matcher: hydrate candidates: %w", err)
	}

	// 5. Score.
	scoreStart := time.Now()
	items := make([]model.Recommendation, 0, len(tenders))
	for _, t := range tenders {
		if !passesHardFilters(t, hard, dismissed, now) {
			continue
		}
		sim := clamp01(simByID[t.ID])
		res := rules.Score(rules.Input{
			Profile:           profile,
			Tender:            t,
			Now:               now,
			Semantic:          sim,
			SemanticAvailable: semanticOK,
			PopularityNorm:    normalizePopularity(t.PopularityScore, ceiling),
		})
		items = append(items, model.Recommendation{
			Tender:             t,
			MatchScore:         res.MatchScore,
			MatchReasons:       truncateReasons(res.Reasons, maxReasonsPerItem),
			SemanticSimilarity: sim,
			DaysUntilDeadline:  t.DaysUntilDeadline(now),
		})
	}
	s.scoreDuration.Record(ctx, float64(time.Since(scoreStart).Milliseconds()))

	// 6. Threshold, rank, paginate.
	threshold := effectiveThreshold(filters.MinScore, profile.MinMatchThreshold)
	items = applyThreshold(items, threshold)
	rankItems(items)
	total := len(items)
	if len(items) > filters.Limit {
		items = items[:filters.Limit]
	}

	return model.RecommendationResponse{
		Items:               items,
		Total:               total,
		ProfileCompletion:   profile.Completion(),
		FiltersApplied:      filters,
		SemanticUnavailable: !semanticOK,
		GeneratedAt:         now,
	}, nil
}

// candidates returns vector hits and whether semantic similarity is
// trustworthy. Hits from the rule pre-filter carry zero similarity.
func (s *Service) candidates(ctx context.Context, profile model.CompanyProfile, hard storage.CandidateFilter, k int) ([]search.Result, bool) {
	vec, err := s.db.GetProfileVector(ctx, profile.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("profile vector load failed", "profile_id", profile.ID, "error", err)
		}
		return s.ruleCandidates(ctx, profile, hard, k), false
	}

	if s.searcher != nil {
		if err := s.searcher.Healthy(ctx); err == nil {
			f := search.Filter{
				Sectors:        hard.Sectors,
				Regions:        hard.Regions,
				DeadlineAfter:  &hard.Now,
				DeadlineBefore: ptr(hard.Now.AddDate(0, 0, hard.DaysAhead)),
			}
			hits, err := s.searcher.Query(ctx, vec.Slice(), f, k)
			if err == nil {
				return hits, true
			}
			s.logger.Warn("qdrant query failed, falling back to pgvector", "error", err)
		} else {
			s.logger.Warn("qdrant unhealthy, falling back to pgvector", "error", err)
		}
	}

	dbHits, err := s.db.KNNTenders(ctx, vec, k, hard)
	if err != nil {
		s.logger.Warn("pgvector knn failed, falling back to rule candidates", "error", err)
		return s.ruleCandidates(ctx, profile, hard, k), false
	}
	hits := make([]search.Result, len(dbHits))
	for i, h := range dbHits {
		hits[i] = search.Result{TenderID: h.TenderID, Similarity: h.Similarity}
	}
	return hits, true
}

func (s *Service) ruleCandidates(ctx context.Context, profile model.CompanyProfile, hard storage.CandidateFilter, k int) []search.Result {
	ids, err := s.db.RuleCandidates(ctx, hard, profile.ActiveSectors, profile.PreferredRegions, k)
	if err != nil {
		s.logger.Error("rule candidate query failed", "error", err)
		return nil
	}
	hits := make([]search.Result, len(ids))
	for i, id := range ids {
		hits[i] = search.Result{TenderID: id}
	}
	return hits
}

func ptr[T any](v T) *T { return &v }
