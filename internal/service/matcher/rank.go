package matcher

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/storage"
)

// Candidate pool sizing: over-fetch so thresholding and post-filtering
// still leave a full page.
const (
	minCandidateK    = 200
	candidateKFactor = 10
)

func candidateK(limit int) int {
	k := limit * candidateKFactor
	if k < minCandidateK {
		k = minCandidateK
	}
	return k
}

// passesHardFilters re-checks the hard constraints on hydrated rows. The
// candidate queries already apply most of these, but the Qdrant path works
// from an eventually consistent payload copy and cannot express the
// per-user dismissal exclusion.
func passesHardFilters(t model.Tender, hard storage.CandidateFilter, dismissed map[uuid.UUID]bool, now time.Time) bool {
	if dismissed[t.ID] {
		return false
	}
	if t.EffectiveStatus(now) != model.StatusPublished {
		return false
	}
	if t.Deadline != nil {
		if !t.Deadline.After(now) {
			return false
		}
		if t.Deadline.After(now.AddDate(0, 0, hard.DaysAhead)) {
			return false
		}
	}
	if len(hard.Sectors) > 0 && !containsFold(hard.Sectors, t.Category) {
		return false
	}
	if len(hard.Regions) > 0 && !containsFold(hard.Regions, t.Region) {
		return false
	}
	return true
}

// effectiveThreshold takes the stricter of the request's min_score and the
// profile's configured floor.
func effectiveThreshold(requested, profileFloor float64) float64 {
	if profileFloor > requested {
		return profileFloor
	}
	return requested
}

func applyThreshold(items []model.Recommendation, threshold float64) []model.Recommendation {
	kept := items[:0]
	for _, it := range items {
		if float64(it.MatchScore) >= threshold {
			kept = append(kept, it)
		}
	}
	return kept
}

// rankItems orders by match score desc, then semantic similarity desc, then
// tender id asc so equal rows always come back in the same order.
func rankItems(items []model.Recommendation) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].MatchScore != items[j].MatchScore {
			return items[i].MatchScore > items[j].MatchScore
		}
		if items[i].SemanticSimilarity != items[j].SemanticSimilarity {
			return items[i].SemanticSimilarity > items[j].SemanticSimilarity
		}
		return items[i].Tender.ID.String() < items[j].Tender.ID.String()
	})
}

func truncateReasons(reasons []model.MatchReason, max int) []model.MatchReason {
	if len(reasons) > max {
		return reasons[:max]
	}
	return reasons
}

// normalizePopularity maps a raw popularity counter into [0,1] against the
// tracked ceiling. A zero ceiling disables the dimension.
func normalizePopularity(raw, ceiling float64) float64 {
	if ceiling <= 0 || raw <= 0 {
		return 0
	}
	return clamp01(raw / ceiling)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
