package matcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/search"
	"github.com/chereta-io/chereta/internal/storage"
	"github.com/chereta-io/chereta/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func vec1024(lead ...float32) pgvector.Vector {
	v := make([]float32, 1024)
	copy(v, lead)
	return pgvector.NewVector(v)
}

// newMatchProfile creates a tier-1-complete profile targeting the given
// sector and region, with the score floor lowered so weak rule-only matches
// still surface for ordering assertions.
func newMatchProfile(t *testing.T, sector, region string) model.CompanyProfile {
	t.Helper()
	p, err := testDB.CreateProfile(context.Background(), model.CompanyProfile{
		CompanyID:         uuid.New(),
		PrimarySector:     sector,
		ActiveSectors:     []string{sector},
		PreferredRegions:  []string{region},
		Keywords:          []string{"roads", "bridges", "culverts"},
		MinMatchThreshold: 1,
		OnboardingStep:    1,
	})
	require.NoError(t, err)
	return p
}

func newMatchTender(t *testing.T, category, region string, deadline time.Time) model.Tender {
	t.Helper()
	url := "https://tenders.example/" + uuid.NewString()
	created, err := testDB.CreateTender(context.Background(), model.Tender{
		Title:     "Supply of " + category + " works",
		Category:  category,
		Region:    region,
		SourceURL: &url,
		Deadline:  &deadline,
		Status:    model.StatusPublished,
	})
	require.NoError(t, err)
	return created
}

// stubSearcher is a canned Searcher for exercising the fallback chain.
type stubSearcher struct {
	healthErr error
	queryErr  error
	results   []search.Result
}

func (s *stubSearcher) Query(context.Context, []float32, search.Filter, int) ([]search.Result, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.results, nil
}

func (s *stubSearcher) RangeByScore(context.Context, []float32, float64, search.Filter, int) ([]search.Result, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.results, nil
}

func (s *stubSearcher) Similar(context.Context, []float32, uuid.UUID, int) ([]search.Result, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.results, nil
}

func (s *stubSearcher) Healthy(context.Context) error { return s.healthErr }

func TestRecommend_SemanticOrdering(t *testing.T) {
	ctx := context.Background()
	deadline := time.Now().UTC().Add(5 * 24 * time.Hour)

	profile := newMatchProfile(t, "SemCat", "Addis Ababa")
	require.NoError(t, testDB.SetProfileEmbedding(ctx, profile.ID, vec1024(1, 0)))

	near := newMatchTender(t, "SemCat", "Addis Ababa", deadline)
	off := newMatchTender(t, "SemCat", "Addis Ababa", deadline)
	require.NoError(t, testDB.SetTenderEmbedding(ctx, near.ID, vec1024(1, 0)))
	require.NoError(t, testDB.SetTenderEmbedding(ctx, off.ID, vec1024(0, 1)))

	svc := New(testDB, nil, testutil.TestLogger())
	resp, err := svc.Recommend(ctx, profile.CompanyID, uuid.New(), model.RecommendFilters{
		Sectors: []string{"SemCat"},
	})
	require.NoError(t, err)

	assert.False(t, resp.SemanticUnavailable)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, 2, resp.Total)

	// The embedding-aligned tender outranks the orthogonal one.
	assert.Equal(t, near.ID, resp.Items[0].Tender.ID)
	assert.Equal(t, off.ID, resp.Items[1].Tender.ID)
	assert.GreaterOrEqual(t, resp.Items[0].MatchScore, resp.Items[1].MatchScore)
	assert.InDelta(t, 1.0, resp.Items[0].SemanticSimilarity, 1e-6)

	// Every surviving item clears the effective threshold.
	for _, it := range resp.Items {
		assert.GreaterOrEqual(t, float64(it.MatchScore), 1.0)
	}
}

func TestRecommend_DegradedWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	deadline := time.Now().UTC().Add(5 * 24 * time.Hour)

	// Fresh profile, never embedded: candidates come from the rule
	// pre-filter and the response flags semantic matching as unavailable.
	profile := newMatchProfile(t, "RuleCat", "Dire Dawa")
	tender := newMatchTender(t, "RuleCat", "Dire Dawa", deadline)

	svc := New(testDB, nil, testutil.TestLogger())
	resp, err := svc.Recommend(ctx, profile.CompanyID, uuid.New(), model.RecommendFilters{
		Sectors: []string{"RuleCat"},
	})
	require.NoError(t, err)

	assert.True(t, resp.SemanticUnavailable)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, tender.ID, resp.Items[0].Tender.ID)
	assert.Zero(t, resp.Items[0].SemanticSimilarity)
}

func TestRecommend_SearcherDownFallsBackToKNN(t *testing.T) {
	ctx := context.Background()
	deadline := time.Now().UTC().Add(5 * 24 * time.Hour)

	profile := newMatchProfile(t, "FallCat", "Hawassa")
	require.NoError(t, testDB.SetProfileEmbedding(ctx, profile.ID, vec1024(1)))

	tender := newMatchTender(t, "FallCat", "Hawassa", deadline)
	require.NoError(t, testDB.SetTenderEmbedding(ctx, tender.ID, vec1024(1)))

	// Index unhealthy: pgvector still serves similarity, so the response is
	// not degraded.
	svc := New(testDB, &stubSearcher{healthErr: errors.New("index down")}, testutil.TestLogger())
	resp, err := svc.Recommend(ctx, profile.CompanyID, uuid.New(), model.RecommendFilters{
		Sectors: []string{"FallCat"},
	})
	require.NoError(t, err)

	assert.False(t, resp.SemanticUnavailable)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, tender.ID, resp.Items[0].Tender.ID)
	assert.InDelta(t, 1.0, resp.Items[0].SemanticSimilarity, 1e-6)

	// Index reachable but failing queries: same fallback.
	svc = New(testDB, &stubSearcher{queryErr: errors.New("query failed")}, testutil.TestLogger())
	resp, err = svc.Recommend(ctx, profile.CompanyID, uuid.New(), model.RecommendFilters{
		Sectors: []string{"FallCat"},
	})
	require.NoError(t, err)
	assert.False(t, resp.SemanticUnavailable)
	require.Len(t, resp.Items, 1)
}

func TestRecommend_ProfileErrors(t *testing.T) {
	ctx := context.Background()
	svc := New(testDB, nil, testutil.TestLogger())

	_, err := svc.Recommend(ctx, uuid.New(), uuid.New(), model.RecommendFilters{})
	assert.ErrorIs(t, err, ErrProfileNotFound)

	incomplete, err := testDB.CreateProfile(ctx, model.CompanyProfile{
		CompanyID:      uuid.New(),
		PrimarySector:  "IT",
		OnboardingStep: 1,
	})
	require.NoError(t, err)

	_, err = svc.Recommend(ctx, incomplete.CompanyID, uuid.New(), model.RecommendFilters{})
	assert.ErrorIs(t, err, ErrProfileIncomplete)
}
