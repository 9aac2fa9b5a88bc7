package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReasonTag identifies which scoring dimension produced a MatchReason.
type ReasonTag string

const (
	ReasonSemantic      ReasonTag = "semantic_match"
	ReasonSector        ReasonTag = "sector_match"
	ReasonSubSector     ReasonTag = "subsector_match"
	ReasonKeyword       ReasonTag = "keyword_match"
	ReasonRegion        ReasonTag = "region_match"
	ReasonBudget        ReasonTag = "budget_match"
	ReasonUrgency       ReasonTag = "urgency"
	ReasonCertification ReasonTag = "certification_match"
	ReasonLanguage      ReasonTag = "language_match"
	ReasonDeadline      ReasonTag = "deadline_match"
	ReasonPopularity    ReasonTag = "popularity_boost"
)

// MatchReason explains one dimension's contribution to a match score.
// Ephemeral: produced per response, never stored.
type MatchReason struct {
	Tag      ReasonTag `json:"tag"`
	Category string    `json:"category"`
	Reason   string    `json:"reason"`
	Weight   int       `json:"weight"`
}

// Recommendation is one ranked row of a recommendation response.
type Recommendation struct {
	Tender             Tender        `json:"tender"`
	MatchScore         int           `json:"match_score"`
	MatchReasons       []MatchReason `json:"match_reasons"`
	SemanticSimilarity float64       `json:"semantic_similarity"`
	DaysUntilDeadline  *int          `json:"days_until_deadline,omitempty"`
}

// RecommendFilters are the client-controlled knobs of a Recommend call.
type RecommendFilters struct {
	Limit     int      `json:"limit"`
	MinScore  float64  `json:"min_score"`
	DaysAhead int      `json:"days_ahead"`
	Sectors   []string `json:"sectors,omitempty"`
	Regions   []string `json:"regions,omitempty"`
}

// Filter bounds and defaults.
const (
	DefaultRecommendLimit = 20
	MaxRecommendLimit     = 100
	DefaultDaysAhead      = 7
	MaxDaysAhead          = 90
)

// Normalize applies defaults and validates ranges.
func (f *RecommendFilters) Normalize() error {
	if f.Limit == 0 {
		f.Limit = DefaultRecommendLimit
	}
	if f.Limit < 1 || f.Limit > MaxRecommendLimit {
		return fmt.Errorf("limit must be within [1,%d]", MaxRecommendLimit)
	}
	if f.MinScore < 0 || f.MinScore > 100 {
		return fmt.Errorf("min_score must be within [0,100]")
	}
	if f.DaysAhead == 0 {
		f.DaysAhead = DefaultDaysAhead
	}
	if f.DaysAhead < 1 || f.DaysAhead > MaxDaysAhead {
		return fmt.Errorf("days_ahead must be within [1,%d]", MaxDaysAhead)
	}
	return nil
}

// RecommendationResponse is the payload of GET /recommendations.
type RecommendationResponse struct {
	Items               []Recommendation `json:"items"`
	Total               int              `json:"total"`
	ProfileCompletion   int              `json:"profile_completion"`
	FiltersApplied      RecommendFilters `json:"filters_applied"`
	SemanticUnavailable bool             `json:"semantic_unavailable,omitempty"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

// SimilarTender is one row of a similar-tenders response.
type SimilarTender struct {
	Tender          Tender   `json:"tender"`
	SimilarityScore int      `json:"similarity_score"`
	CommonKeywords  []string `json:"common_keywords"`
}

// SimilarTendersResponse is the payload of GET /recommendations/tenders/{id}/similar.
type SimilarTendersResponse struct {
	Ref   uuid.UUID       `json:"ref"`
	Items []SimilarTender `json:"items"`
}
