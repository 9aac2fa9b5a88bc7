package matcher

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/storage"
)

func TestCandidateK(t *testing.T) {
	assert.Equal(t, 200, candidateK(1))
	assert.Equal(t, 200, candidateK(20))
	assert.Equal(t, 500, candidateK(50))
	assert.Equal(t, 1000, candidateK(100))
}

func TestRankItems_Ordering(t *testing.T) {
	idA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	items := []model.Recommendation{
		{Tender: model.Tender{ID: idB}, MatchScore: 80, SemanticSimilarity: 0.9},
		{Tender: model.Tender{ID: idA}, MatchScore: 80, SemanticSimilarity: 0.9},
		{Tender: model.Tender{ID: idA}, MatchScore: 80, SemanticSimilarity: 0.95},
		{Tender: model.Tender{ID: idB}, MatchScore: 92, SemanticSimilarity: 0.1},
	}
	rankItems(items)

	assert.Equal(t, 92, items[0].MatchScore)
	assert.Equal(t, 0.95, items[1].SemanticSimilarity)
	assert.Equal(t, idA, items[2].Tender.ID, "equal score and similarity break ties on ascending id")
	assert.Equal(t, idB, items[3].Tender.ID)
}

func TestRankItems_Deterministic(t *testing.T) {
	build := func() []model.Recommendation {
		return []model.Recommendation{
			{Tender: model.Tender{ID: uuid.MustParse("00000000-0000-0000-0000-000000000003")}, MatchScore: 70, SemanticSimilarity: 0.5},
			{Tender: model.Tender{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001")}, MatchScore: 70, SemanticSimilarity: 0.5},
			{Tender: model.Tender{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002")}, MatchScore: 70, SemanticSimilarity: 0.5},
		}
	}

	first := build()
	rankItems(first)
	for range 5 {
		next := build()
		rankItems(next)
		assert.Equal(t, first, next)
	}
}

func TestApplyThreshold(t *testing.T) {
	items := []model.Recommendation{
		{MatchScore: 90}, {MatchScore: 40}, {MatchScore: 39},
	}
	kept := applyThreshold(items, 40)
	assert.Len(t, kept, 2)
	for _, it := range kept {
		assert.GreaterOrEqual(t, float64(it.MatchScore), 40.0)
	}
}

func TestEffectiveThreshold(t *testing.T) {
	assert.Equal(t, 40.0, effectiveThreshold(0, 40))
	assert.Equal(t, 60.0, effectiveThreshold(60, 40))
	assert.Equal(t, 40.0, effectiveThreshold(25, 40))
}

func TestNormalizePopularity(t *testing.T) {
	assert.Equal(t, 0.0, normalizePopularity(10, 0))
	assert.Equal(t, 0.0, normalizePopularity(0, 100))
	assert.Equal(t, 0.5, normalizePopularity(50, 100))
	assert.Equal(t, 1.0, normalizePopularity(500, 100), "scores past the ceiling clamp to one")
}

func TestPassesHardFilters(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.AddDate(0, 0, 5)
	tenderID := uuid.New()

	base := model.Tender{
		ID:       tenderID,
		Status:   model.StatusPublished,
		Category: "IT",
		Region:   "Addis Ababa",
		Deadline: &deadline,
	}
	hard := storage.CandidateFilter{Now: now, DaysAhead: 7}

	assert.True(t, passesHardFilters(base, hard, nil, now))

	assert.False(t, passesHardFilters(base, hard, map[uuid.UUID]bool{tenderID: true}, now),
		"dismissed tenders never pass")

	closed := base
	closed.Status = model.StatusClosed
	assert.False(t, passesHardFilters(closed, hard, nil, now))

	past := base
	pastDeadline := now.AddDate(0, 0, -1)
	past.Deadline = &pastDeadline
	assert.False(t, passesHardFilters(past, hard, nil, now))

	far := base
	farDeadline := now.AddDate(0, 0, 30)
	far.Deadline = &farDeadline
	assert.False(t, passesHardFilters(far, hard, nil, now), "outside the days_ahead window")

	open := base
	open.Deadline = nil
	assert.True(t, passesHardFilters(open, hard, nil, now), "rolling tenders have no deadline")

	sectored := storage.CandidateFilter{Now: now, DaysAhead: 7, Sectors: []string{"Construction"}}
	assert.False(t, passesHardFilters(base, sectored, nil, now))
	sectored.Sectors = []string{"it"}
	assert.True(t, passesHardFilters(base, sectored, nil, now), "sector filter is case-insensitive")
}

func TestTruncateReasons(t *testing.T) {
	reasons := make([]model.MatchReason, 9)
	assert.Len(t, truncateReasons(reasons, maxReasonsPerItem), maxReasonsPerItem)
	assert.Len(t, truncateReasons(reasons[:3], maxReasonsPerItem), 3)
}

func TestSimilarityScore(t *testing.T) {
	assert.Equal(t, 82, similarityScore(0.82))
	assert.Equal(t, 100, similarityScore(1.2))
	assert.Equal(t, 0, similarityScore(-0.3), "negative cosine clips to zero")
}
