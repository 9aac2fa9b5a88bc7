package embedding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chereta-io/chereta/internal/model"
)

func TestExtractProjectText_StripsBoilerplate(t *testing.T) {
	cases := []struct {
		name  string
		title string
		want  string
	}{
		{
			name:  "invites bidders for procurement",
			title: "Abay Construction PLC invites interested and eligible bidders for the procurement of steel reinforcement bars",
			want:  "steel reinforcement bars",
		},
		{
			name:  "sealed bids",
			title: "Ministry of Health now invites sealed bids from eligible bidders for the supply of laboratory equipment",
			want:  "laboratory equipment",
		},
		{
			name:  "seeking service provider",
			title: "Awash Bank is seeking a service provider for core banking system maintenance",
			want:  "core banking system maintenance",
		},
		{
			name:  "no boilerplate passes through",
			title: "Cloud ERP rollout",
			want:  "Cloud ERP rollout",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractProjectText(tc.title))
		})
	}
}

func TestTenderText_Deterministic(t *testing.T) {
	clean := "Supply and installation of a cloud ERP system."
	tender := model.Tender{
		Title:            "XYZ Agency invites eligible bidders for the supply of Cloud ERP rollout",
		Description:      "raw text that should be ignored",
		CleanDescription: &clean,
		Highlights:       []string{"ERP", "Cloud migration"},
		Category:         "IT",
		Region:           "Addis Ababa",
	}

	a := TenderText(tender)
	b := TenderText(tender)
	require.Equal(t, a, b)

	assert.Equal(t, strings.ToLower(a), a, "composed text must be lowercased")
	assert.Contains(t, a, "cloud erp rollout")
	assert.Contains(t, a, "supply and installation of a cloud erp system.")
	assert.NotContains(t, a, "raw text")
	assert.NotContains(t, a, "invites eligible bidders")
}

func TestTenderText_TruncatesRawDescription(t *testing.T) {
	tender := model.Tender{
		Title:       "Road maintenance",
		Description: strings.Repeat("x", maxDescriptionChars+500),
	}
	text := TenderText(tender)
	assert.LessOrEqual(t, len(text), maxDescriptionChars+len("road maintenance")+1)
}

func TestProfileText_OrderAndContent(t *testing.T) {
	profile := model.CompanyProfile{
		PrimarySector:       "Construction",
		ActiveSectors:       []string{"Construction", "IT"},
		SubSectors:          []string{"road works"},
		Keywords:            []string{"asphalt", "bridges", "drainage"},
		PreferredRegions:    []string{"Oromia"},
		Certifications:      []string{"ISO 9001"},
		DiscoveredInterests: []string{"Energy"},
	}

	text := ProfileText(profile)
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "construction", lines[0])
	assert.Equal(t, "construction it", lines[1])
	assert.Equal(t, "road works", lines[2])
	assert.Equal(t, "asphalt bridges drainage", lines[3])
	assert.Equal(t, "oromia", lines[4])
	assert.Equal(t, "iso 9001", lines[5])
	assert.Equal(t, "energy", lines[6])

	assert.Equal(t, text, ProfileText(profile), "same profile must produce identical bytes")
}

func TestNormalize(t *testing.T) {
	vec := normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	zero := normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestValidateInput(t *testing.T) {
	assert.ErrorIs(t, validateInput(""), ErrInputInvalid)
	assert.ErrorIs(t, validateInput(strings.Repeat("a", MaxInputBytes+1)), ErrInputInvalid)
	assert.NoError(t, validateInput("tender text"))
}
