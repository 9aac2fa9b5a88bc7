package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chereta-io/chereta/internal/model"
)

func TestMatchedTerms_WordBounded(t *testing.T) {
	matched := matchedTerms([]string{"road", "IT"}, "Road maintenance for rural districts")
	assert.Equal(t, []string{"road"}, matched, "partial-word hits like the it in maintenance must not match")

	matched = matchedTerms([]string{"road works"}, "Periodic road works on federal highways")
	assert.Equal(t, []string{"road works"}, matched)
}

func TestKeywordScore_PlacementMultipliers(t *testing.T) {
	tender := model.Tender{
		Title:       "Cloud ERP rollout",
		Highlights:  []string{"data center migration"},
		Description: "Includes networking equipment.",
	}

	raw, matched := keywordScore([]string{"cloud", "migration", "networking", "absent"}, tender)
	assert.InDelta(t, 2+1.5+1, raw, 1e-9)
	assert.Equal(t, []string{"cloud", "migration", "networking"}, matched)
}

func TestDetectCertifications(t *testing.T) {
	desc := "Bidders must hold a valid trade license and ISO 9001 certification."
	found := DetectCertifications(desc, nil)
	assert.Equal(t, []string{"ISO 9001", "trade license"}, found)

	assert.Empty(t, DetectCertifications("No requirements stated.", nil))
}

func TestCommonKeywords(t *testing.T) {
	a := model.Tender{Title: "Cloud ERP rollout", Highlights: []string{"finance module"}}
	b := model.Tender{Title: "ERP implementation for finance directorate"}

	common := CommonKeywords(a, b)
	assert.Contains(t, common, "erp")
	assert.Contains(t, common, "finance")
	assert.NotContains(t, common, "for")
	assert.LessOrEqual(t, len(common), maxCommonKeywords)
}

func TestCommonKeywords_Cap(t *testing.T) {
	a := model.Tender{Title: "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu"}
	b := model.Tender{Title: "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu"}
	assert.Len(t, CommonKeywords(a, b), maxCommonKeywords)
}
