package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chereta-io/chereta/internal/model"
)

func ptr[T any](v T) *T { return &v }

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func perfectFitProfile() model.CompanyProfile {
	return model.CompanyProfile{
		PrimarySector:    "IT",
		ActiveSectors:    []string{"IT"},
		PreferredRegions: []string{"Addis Ababa"},
		Keywords:         []string{"cloud", "erp"},
		BudgetMin:        ptr(50000.0),
		BudgetMax:        ptr(500000.0),
	}
}

func cloudERPTender(deadlineDays int) model.Tender {
	deadline := testNow.AddDate(0, 0, deadlineDays)
	return model.Tender{
		Title:    "Cloud ERP rollout",
		Category: "IT",
		Region:   "Addis Ababa",
		Language: "english",
		Budget:   ptr(120000.0),
		Deadline: &deadline,
		Status:   model.StatusPublished,
	}
}

func TestScore_PerfectMatch(t *testing.T) {
	res := Score(Input{
		Profile:           perfectFitProfile(),
		Tender:            cloudERPTender(14),
		Now:               testNow,
		Semantic:          0.82,
		SemanticAvailable: true,
	})

	assert.GreaterOrEqual(t, res.MatchScore, 85)

	tags := reasonTags(res.Reasons)
	assert.Contains(t, tags, model.ReasonSector)
	assert.Contains(t, tags, model.ReasonRegion)
	assert.Contains(t, tags, model.ReasonBudget)
	assert.Contains(t, tags, model.ReasonKeyword)
	assert.Contains(t, tags, model.ReasonSemantic)
}

func TestScore_WrongRegionDropsPoints(t *testing.T) {
	base := Score(Input{
		Profile: perfectFitProfile(), Tender: cloudERPTender(14),
		Now: testNow, Semantic: 0.82, SemanticAvailable: true,
	})

	offRegion := cloudERPTender(14)
	offRegion.Region = "Oromia"
	res := Score(Input{
		Profile: perfectFitProfile(), Tender: offRegion,
		Now: testNow, Semantic: 0.82, SemanticAvailable: true,
	})

	assert.NotContains(t, reasonTags(res.Reasons), model.ReasonRegion)
	drop := base.MatchScore - res.MatchScore
	assert.InDelta(t, 10, drop, 3, "losing the region dimension should cost roughly its share")
}

func TestScore_UrgentTenderRanksAbove(t *testing.T) {
	normal := Score(Input{
		Profile: perfectFitProfile(), Tender: cloudERPTender(14),
		Now: testNow, Semantic: 0.82, SemanticAvailable: true,
	})
	urgent := Score(Input{
		Profile: perfectFitProfile(), Tender: cloudERPTender(2),
		Now: testNow, Semantic: 0.82, SemanticAvailable: true,
	})

	require.Contains(t, reasonTags(urgent.Reasons), model.ReasonUrgency)
	for _, r := range urgent.Reasons {
		if r.Tag == model.ReasonUrgency {
			assert.GreaterOrEqual(t, r.Weight, 5)
		}
	}
	assert.Greater(t, urgent.MatchScore, normal.MatchScore)
}

func TestScore_BoundsAndReasonSum(t *testing.T) {
	inputs := []Input{
		{Profile: perfectFitProfile(), Tender: cloudERPTender(14), Now: testNow, Semantic: 0.82, SemanticAvailable: true},
		{Profile: perfectFitProfile(), Tender: cloudERPTender(2), Now: testNow, Semantic: 1.0, SemanticAvailable: true, PopularityNorm: 1.0},
		{Profile: perfectFitProfile(), Tender: model.Tender{Title: "Unrelated", Category: "Agriculture", Region: "Somali", Language: "amharic"}, Now: testNow, SemanticAvailable: true},
		{Profile: model.CompanyProfile{ActiveSectors: []string{"IT"}, Keywords: []string{"cloud"}, PreferredRegions: []string{"Addis Ababa"}}, Tender: cloudERPTender(30), Now: testNow},
	}

	for _, in := range inputs {
		res := Score(in)
		assert.GreaterOrEqual(t, res.MatchScore, 0)
		assert.LessOrEqual(t, res.MatchScore, 100)

		sum := 0
		for _, r := range res.Reasons {
			sum += r.Weight
		}
		assert.Equal(t, res.MatchScore, sum, "reason weights must sum to the match score")

		for i := 1; i < len(res.Reasons); i++ {
			assert.GreaterOrEqual(t, res.Reasons[i-1].Weight, res.Reasons[i].Weight,
				"reasons must be sorted by contribution")
		}
	}
}

func TestScore_Deterministic(t *testing.T) {
	in := Input{
		Profile: perfectFitProfile(), Tender: cloudERPTender(14),
		Now: testNow, Semantic: 0.82, SemanticAvailable: true, PopularityNorm: 0.4,
	}
	first := Score(in)
	for range 5 {
		assert.Equal(t, first, Score(in))
	}
}

func TestScore_SemanticUnavailableExcluded(t *testing.T) {
	res := Score(Input{
		Profile: perfectFitProfile(), Tender: cloudERPTender(14),
		Now: testNow, Semantic: 0.82, SemanticAvailable: false,
	})

	assert.NotContains(t, reasonTags(res.Reasons), model.ReasonSemantic)
	assert.Greater(t, res.MatchScore, 0, "rule-only scoring must still produce a score")
}

func TestScore_ProfileWeightOverrides(t *testing.T) {
	p := perfectFitProfile()
	p.ScoringWeights = map[string]float64{DimCategory: 40}

	boosted := Score(Input{Profile: p, Tender: cloudERPTender(14), Now: testNow, Semantic: 0.5, SemanticAvailable: true})
	base := Score(Input{Profile: perfectFitProfile(), Tender: cloudERPTender(14), Now: testNow, Semantic: 0.5, SemanticAvailable: true})

	var boostedSector, baseSector int
	for _, r := range boosted.Reasons {
		if r.Tag == model.ReasonSector {
			boostedSector = r.Weight
		}
	}
	for _, r := range base.Reasons {
		if r.Tag == model.ReasonSector {
			baseSector = r.Weight
		}
	}
	assert.Greater(t, boostedSector, baseSector)
}

func TestScore_PrimarySectorHalfCredit(t *testing.T) {
	p := perfectFitProfile()
	p.PrimarySector = "Construction"
	p.ActiveSectors = []string{"IT"}

	tender := cloudERPTender(14)
	tender.Category = "Construction"

	res := Score(Input{Profile: p, Tender: tender, Now: testNow, SemanticAvailable: true})
	var sector int
	for _, r := range res.Reasons {
		if r.Tag == model.ReasonSector {
			sector = r.Weight
		}
	}
	full := Score(Input{Profile: perfectFitProfile(), Tender: cloudERPTender(14), Now: testNow, SemanticAvailable: true})
	var fullSector int
	for _, r := range full.Reasons {
		if r.Tag == model.ReasonSector {
			fullSector = r.Weight
		}
	}
	assert.InDelta(t, fullSector, 2*sector, 1)
}

func TestDeadlineCredit(t *testing.T) {
	assert.Equal(t, 1.0, deadlineCredit(14, 0))
	assert.Equal(t, 1.0, deadlineCredit(60, 0))
	assert.InDelta(t, 0.5, deadlineCredit(75, 0), 1e-9)
	assert.Equal(t, 0.0, deadlineCredit(120, 0))
	assert.InDelta(t, 0.5, deadlineCredit(5, 10), 1e-9)
}

func TestBudgetFit(t *testing.T) {
	p := perfectFitProfile()
	assert.Equal(t, budgetWithin, budgetFit(p, 120000))
	assert.Equal(t, budgetWithin, budgetFit(p, 50000))
	assert.Equal(t, budgetNearBand, budgetFit(p, 45000))
	assert.Equal(t, budgetNearBand, budgetFit(p, 550000))
	assert.Equal(t, budgetOutside, budgetFit(p, 10000))

	openEnded := model.CompanyProfile{BudgetMin: ptr(50000.0)}
	assert.Equal(t, budgetWithin, budgetFit(openEnded, 10_000_000))
}

func reasonTags(reasons []model.MatchReason) []model.ReasonTag {
	tags := make([]model.ReasonTag, len(reasons))
	for i, r := range reasons {
		tags[i] = r.Tag
	}
	return tags
}
