package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chereta-io/chereta/internal/model"
)

func ptr[T any](v T) *T { return &v }

func tier1Profile() model.CompanyProfile {
	return model.CompanyProfile{
		PrimarySector:    "IT and Infrastructure",
		ActiveSectors:    []string{"IT and Infrastructure"},
		PreferredRegions: []string{"Addis Ababa"},
		Keywords:         []string{"cloud", "erp", "network"},
		OnboardingStep:   1,
	}
}

func TestApplyUpdate_PreferenceEditsMarkDirty(t *testing.T) {
	p := tier1Profile()
	dirty := applyUpdate(&p, model.UpdateProfileRequest{
		Keywords: ptr([]string{"cloud", "erp", "fiber"}),
	})

	assert.True(t, dirty)
	assert.Equal(t, []string{"cloud", "erp", "fiber"}, p.Keywords)
}

func TestApplyUpdate_ConfigEditsDoNotMarkDirty(t *testing.T) {
	p := tier1Profile()
	dirty := applyUpdate(&p, model.UpdateProfileRequest{
		MinMatchThreshold: ptr(55.0),
		ScoringWeights:    ptr(map[string]float64{"category": 30}),
	})

	assert.False(t, dirty, "threshold and weight changes do not alter the embedding text")
	assert.Equal(t, 55.0, p.MinMatchThreshold)
	assert.Equal(t, map[string]float64{"category": 30}, p.ScoringWeights)
}

func TestApplyUpdate_NilFieldsLeaveProfileUnchanged(t *testing.T) {
	p := tier1Profile()
	before := p

	dirty := applyUpdate(&p, model.UpdateProfileRequest{})
	assert.False(t, dirty)
	assert.Equal(t, before, p)
}

func TestAdvanceOnboarding(t *testing.T) {
	p := tier1Profile()
	p.OnboardingStep = 0
	advanceOnboarding(&p)
	assert.Equal(t, 1, p.OnboardingStep)

	size := model.SizeSmall
	years := model.YearsOneThree
	p.CompanySize = &size
	p.YearsInOperation = &years
	p.Certifications = []string{"Trade License"}
	p.BudgetMin = ptr(10000.0)
	p.BudgetMax = ptr(500000.0)
	advanceOnboarding(&p)
	assert.Equal(t, 2, p.OnboardingStep)

	// Steps never regress.
	p.Certifications = nil
	advanceOnboarding(&p)
	assert.Equal(t, 2, p.OnboardingStep)
}

func TestOptions_CatalogShape(t *testing.T) {
	opts := Options()

	assert.Len(t, opts.Sectors, 20)
	assert.Len(t, opts.Regions, 12)
	assert.NotEmpty(t, opts.Certifications)
	assert.Len(t, opts.CompanySizes, 4)
	assert.Len(t, opts.YearsOptions, 5)

	for sector := range opts.KeywordSuggestions {
		assert.Contains(t, opts.Sectors, sector,
			"keyword suggestions must key off the sector catalog")
	}
}

func TestKeywordsForSector(t *testing.T) {
	assert.NotEmpty(t, KeywordsForSector("IT and Infrastructure"))
	assert.Nil(t, KeywordsForSector("Nonexistent Sector"))
}
