package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// CompanySize enumerates the tier-2 company-size options.
type CompanySize string

const (
	SizeStartup CompanySize = "startup"
	SizeSmall   CompanySize = "small"
	SizeMedium  CompanySize = "medium"
	SizeLarge   CompanySize = "large"
)

// YearsInOperation enumerates the tier-2 operating-history options.
type YearsInOperation string

const (
	YearsUnderOne  YearsInOperation = "<1"
	YearsOneThree  YearsInOperation = "1-3"
	YearsThreeFive YearsInOperation = "3-5"
	YearsFiveTen   YearsInOperation = "5-10"
	YearsTenPlus   YearsInOperation = "10+"
)

// DefaultMinMatchThreshold is the score floor applied when a profile does
// not set its own.
const DefaultMinMatchThreshold = 40.0

// Tier-1 cardinality limits.
const (
	MaxActiveSectors    = 5
	MaxPreferredRegions = 5
	MinKeywords         = 3
	MaxKeywords         = 10
)

// MaxDiscoveredInterests caps the learned-interest list so the feedback loop
// cannot grow a profile without bound.
const MaxDiscoveredInterests = 10

// CompanyProfile holds a company's stated and learned tender preferences.
// Tier-1 fields are required for matching; tier-2 are optional refinements;
// tier-3 fields are written only by the feedback loop.
type CompanyProfile struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`

	// Tier 1.
	PrimarySector    string   `json:"primary_sector"`
	ActiveSectors    []string `json:"active_sectors"`
	SubSectors       []string `json:"sub_sectors"`
	PreferredRegions []string `json:"preferred_regions"`
	Keywords         []string `json:"keywords"`

	// Tier 2.
	CompanySize      *CompanySize      `json:"company_size,omitempty"`
	YearsInOperation *YearsInOperation `json:"years_in_operation,omitempty"`
	Certifications   []string          `json:"certifications"`
	BudgetMin        *float64          `json:"budget_min,omitempty"`
	BudgetMax        *float64          `json:"budget_max,omitempty"`
	BudgetCurrency   string            `json:"budget_currency"`

	// Tier 3 (learned).
	DiscoveredInterests []string `json:"discovered_interests"`
	PreferredSources    []string `json:"preferred_sources"`
	PreferredLanguages  []string `json:"preferred_languages"`
	MinDeadlineDays     int      `json:"min_deadline_days"`

	// Matching config.
	MinMatchThreshold float64            `json:"min_match_threshold"`
	ScoringWeights    map[string]float64 `json:"scoring_weights,omitempty"`

	Embedding          *pgvector.Vector `json:"-"`
	EmbeddingUpdatedAt *time.Time       `json:"embedding_updated_at,omitempty"`
	EmbeddingDirty     bool             `json:"-"`

	InteractionCount          int `json:"interaction_count"`
	InteractionsSinceEmbed    int `json:"-"`
	CompletionPercentage      int `json:"completion_percentage"`
	OnboardingStep            int `json:"onboarding_step"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tier1Complete reports whether all required matching fields are present.
func (p CompanyProfile) Tier1Complete() bool {
	return p.PrimarySector != "" &&
		len(p.ActiveSectors) >= 1 &&
		len(p.PreferredRegions) >= 1 &&
		len(p.Keywords) >= MinKeywords
}

// Tier2Complete reports whether all optional refinement fields are filled.
func (p CompanyProfile) Tier2Complete() bool {
	return p.CompanySize != nil &&
		p.YearsInOperation != nil &&
		len(p.Certifications) > 0 &&
		p.BudgetMin != nil && p.BudgetMax != nil
}

// completionFields is the denominator of the completion percentage.
const completionFields = 11

// Completion returns the profile's completion percentage over the eleven
// profile fields that a fully specified profile fills.
func (p CompanyProfile) Completion() int {
	filled := 0
	if p.PrimarySector != "" {
		filled++
	}
	if len(p.ActiveSectors) > 0 {
		filled++
	}
	if len(p.SubSectors) > 0 {
		filled++
	}
	if len(p.PreferredRegions) > 0 {
		filled++
	}
	if len(p.Keywords) > 0 {
		filled++
	}
	if p.CompanySize != nil {
		filled++
	}
	if p.YearsInOperation != nil {
		filled++
	}
	if len(p.Certifications) > 0 {
		filled++
	}
	if p.BudgetMin != nil {
		filled++
	}
	if p.BudgetMax != nil {
		filled++
	}
	if len(p.DiscoveredInterests) > 0 {
		filled++
	}
	return filled * 100 / completionFields
}

// EffectiveLanguages returns the preferred languages, defaulting to english.
func (p CompanyProfile) EffectiveLanguages() []string {
	if len(p.PreferredLanguages) == 0 {
		return []string{"english"}
	}
	return p.PreferredLanguages
}

// ValidateProfileTier1 checks the tier-1 cardinality invariants on create.
func ValidateProfileTier1(p CompanyProfile) error {
	if p.PrimarySector == "" {
		return fmt.Errorf("primary_sector is required")
	}
	if n := len(p.ActiveSectors); n < 1 || n > MaxActiveSectors {
		return fmt.Errorf("active_sectors must contain between 1 and %d entries", MaxActiveSectors)
	}
	if n := len(p.PreferredRegions); n < 1 || n > MaxPreferredRegions {
		return fmt.Errorf("preferred_regions must contain between 1 and %d entries", MaxPreferredRegions)
	}
	if n := len(p.Keywords); n < MinKeywords || n > MaxKeywords {
		return fmt.Errorf("keywords must contain between %d and %d entries", MinKeywords, MaxKeywords)
	}
	return ValidateProfileTier2(p)
}

// ValidateProfileTier2 checks the optional-field invariants that apply on
// both create and update.
func ValidateProfileTier2(p CompanyProfile) error {
	if p.BudgetMin != nil && *p.BudgetMin < 0 {
		return fmt.Errorf("budget_min must be non-negative")
	}
	if p.BudgetMin != nil && p.BudgetMax != nil && *p.BudgetMin > *p.BudgetMax {
		return fmt.Errorf("budget_min must not exceed budget_max")
	}
	if p.CompanySize != nil {
		switch *p.CompanySize {
		case SizeStartup, SizeSmall, SizeMedium, SizeLarge:
		default:
			return fmt.Errorf("company_size %q is not a valid option", *p.CompanySize)
		}
	}
	if p.YearsInOperation != nil {
		switch *p.YearsInOperation {
		case YearsUnderOne, YearsOneThree, YearsThreeFive, YearsFiveTen, YearsTenPlus:
		default:
			return fmt.Errorf("years_in_operation %q is not a valid option", *p.YearsInOperation)
		}
	}
	if p.MinMatchThreshold < 0 || p.MinMatchThreshold > 100 {
		return fmt.Errorf("min_match_threshold must be within [0,100]")
	}
	for dim, w := range p.ScoringWeights {
		if w < 0 {
			return fmt.Errorf("scoring_weights[%s] must be non-negative", dim)
		}
	}
	return nil
}
