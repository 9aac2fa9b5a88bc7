// Package rules computes structured-match sub-scores and human-readable
// match reasons. Scoring is pure: no I/O, deterministic for a fixed
// (profile, tender, similarity, popularity) input.
package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/chereta-io/chereta/internal/model"
)

// Dimension keys, also the accepted keys of profile scoring_weights.
const (
	DimCategory      = "category"
	DimSubSector     = "subsector"
	DimKeyword       = "keyword"
	DimRegion        = "region"
	DimBudget        = "budget"
	DimCertification = "certification"
	DimLanguage      = "language"
	DimDeadline      = "deadline"
	DimUrgency       = "urgency"
	DimPopularity    = "popularity"
	DimSemantic      = "semantic"
)

// DefaultShares are the default weight proportions, summing to 100.
var DefaultShares = map[string]float64{
	DimCategory:      20,
	DimSubSector:     10,
	DimKeyword:       15,
	DimRegion:        10,
	DimBudget:        10,
	DimCertification: 5,
	DimLanguage:      5,
	DimDeadline:      5,
	DimUrgency:       5,
	DimPopularity:    5,
	DimSemantic:      10,
}

// maxDeadlineDays is the far edge of the full-credit deadline window.
const maxDeadlineDays = 60

// Input is everything the scorer needs for one (profile, tender) pair.
type Input struct {
	Profile model.CompanyProfile
	Tender  model.Tender
	Now     time.Time

	// Semantic is the cosine similarity clipped to [0,1]. Ignored when
	// SemanticAvailable is false (degraded, rule-only scoring).
	Semantic          float64
	SemanticAvailable bool

	// PopularityNorm is tender popularity normalized to [0,1] against the
	// rolling percentile ceiling.
	PopularityNorm float64
}

// Result is a scored pair with its explanation.
type Result struct {
	MatchScore int
	Reasons    []model.MatchReason
}

// Score computes the bounded match score and one reason per contributing
// dimension. The reason weights sum exactly to MatchScore.
//
// Dimensions the profile expresses no preference for (no sub-sectors, no
// certifications, no budget range) are excluded and the remaining shares are
// renormalized to 100, so a profile is never penalized for fields it left
// empty. The semantic dimension is likewise excluded when unavailable.
func Score(in Input) Result {
	shares := effectiveShares(in)

	type contribution struct {
		dim      string
		credit   float64
		tag      model.ReasonTag
		category string
		sentence string
	}
	var contribs []contribution
	add := func(dim string, credit float64, tag model.ReasonTag, category, sentence string) {
		if credit > 1 {
			credit = 1
		}
		if credit < 0 {
			credit = 0
		}
		contribs = append(contribs, contribution{dim, credit, tag, category, sentence})
	}

	p, t := in.Profile, in.Tender

	// Category.
	if containsFold(p.ActiveSectors, t.Category) {
		add(DimCategory, 1, model.ReasonSector, t.Category,
			fmt.Sprintf("Matches your active sector %q", t.Category))
	} else if strings.EqualFold(p.PrimarySector, t.Category) {
		add(DimCategory, 0.5, model.ReasonSector, t.Category,
			fmt.Sprintf("Related to your primary sector %q", t.Category))
	}

	// Sub-sector tokens in title or cleaned description.
	if len(p.SubSectors) > 0 {
		text := t.Title
		if t.CleanDescription != nil {
			text += " " + *t.CleanDescription
		}
		matched := matchedTerms(p.SubSectors, text)
		if len(matched) > 0 {
			add(DimSubSector, float64(len(matched))/float64(len(p.SubSectors)),
				model.ReasonSubSector, strings.Join(matched, ", "),
				fmt.Sprintf("Mentions your sub-sector %s", quoteJoin(matched)))
		}
	}

	// Keywords: title hits weigh 2x, highlights 1.5x, description 1x. Each
	// keyword counts its best placement; the sum is normalized against every
	// keyword hitting the title and clamped.
	if len(p.Keywords) > 0 {
		raw, matched := keywordScore(p.Keywords, t)
		if raw > 0 {
			add(DimKeyword, raw/(2*float64(len(p.Keywords))),
				model.ReasonKeyword, strings.Join(matched, ", "),
				fmt.Sprintf("Contains your keyword %s", quoteJoin(matched)))
		}
	}

	// Region.
	if containsFold(p.PreferredRegions, t.Region) {
		add(DimRegion, 1, model.ReasonRegion, t.Region,
			fmt.Sprintf("Located in your preferred region %q", t.Region))
	} else if strings.EqualFold(t.Region, "national") {
		add(DimRegion, 0.5, model.ReasonRegion, t.Region,
			"Open to bidders nationwide")
	}

	// Budget.
	if budgetApplicable(p) && t.Budget != nil {
		switch budgetFit(p, *t.Budget) {
		case budgetWithin:
			add(DimBudget, 1, model.ReasonBudget, formatBudget(*t.Budget, t.BudgetCurrency),
				"Budget fits your stated range")
		case budgetNearBand:
			add(DimBudget, 0.5, model.ReasonBudget, formatBudget(*t.Budget, t.BudgetCurrency),
				"Budget is within 20% of your stated range")
		}
	}

	// Certifications required by the tender that the profile holds.
	if len(p.Certifications) > 0 {
		required := DetectCertifications(t.Description, t.CleanDescription)
		if len(required) > 0 {
			held := intersectFold(required, p.Certifications)
			if len(held) > 0 {
				add(DimCertification, float64(len(held))/float64(len(required)),
					model.ReasonCertification, strings.Join(held, ", "),
					fmt.Sprintf("You hold the required certification %s", quoteJoin(held)))
			}
		}
	}

	// Language.
	if containsFold(p.EffectiveLanguages(), t.Language) {
		add(DimLanguage, 1, model.ReasonLanguage, t.Language,
			fmt.Sprintf("Published in %s", t.Language))
	}

	// Deadline window with linear falloff outside it.
	days := t.DaysUntilDeadline(in.Now)
	if days != nil && *days > 0 {
		credit := deadlineCredit(*days, p.MinDeadlineDays)
		if credit > 0 {
			add(DimDeadline, credit, model.ReasonDeadline, fmt.Sprintf("%d days", *days),
				fmt.Sprintf("%d days left to prepare a bid", *days))
		}

		// Urgency: candidates reaching the scorer already passed the hard
		// filters, so a near deadline alone earns the bonus.
		if *days >= 1 && *days <= 7 {
			add(DimUrgency, 1, model.ReasonUrgency, fmt.Sprintf("%d days", *days),
				fmt.Sprintf("Closing soon: %d days remaining", *days))
		}
	}

	// Popularity.
	if in.PopularityNorm > 0 {
		add(DimPopularity, in.PopularityNorm, model.ReasonPopularity, "popular",
			"Drawing strong interest from other companies")
	}

	// Semantic.
	if in.SemanticAvailable && in.Semantic > 0 {
		add(DimSemantic, in.Semantic, model.ReasonSemantic,
			fmt.Sprintf("%.0f%%", in.Semantic*100),
			fmt.Sprintf("Strong content match with your profile (%.0f%%)", in.Semantic*100))
	}

	// Integer points per dimension; reasons must sum to the match score.
	total := 0
	reasons := make([]model.MatchReason, 0, len(contribs))
	for _, c := range contribs {
		points := int(math.Round(shares[c.dim] * c.credit))
		if points == 0 {
			continue
		}
		total += points
		reasons = append(reasons, model.MatchReason{
			Tag:      c.tag,
			Category: c.category,
			Reason:   c.sentence,
			Weight:   points,
		})
	}

	sort.SliceStable(reasons, func(i, j int) bool {
		return reasons[i].Weight > reasons[j].Weight
	})

	// Rounding can push the sum past 100; absorb the excess in the largest
	// contributor so reason weights still sum to the final score.
	if total > 100 {
		reasons[0].Weight -= total - 100
		total = 100
	}
	if total < 0 {
		total = 0
		reasons = nil
	}

	return Result{MatchScore: total, Reasons: reasons}
}

// effectiveShares applies profile overrides, drops inapplicable dimensions,
// and renormalizes the rest to 100.
func effectiveShares(in Input) map[string]float64 {
	shares := make(map[string]float64, len(DefaultShares))
	for dim, def := range DefaultShares {
		w := def
		if ov, ok := in.Profile.ScoringWeights[dim]; ok && ov >= 0 {
			w = ov
		}
		shares[dim] = w
	}

	if len(in.Profile.SubSectors) == 0 {
		delete(shares, DimSubSector)
	}
	if len(in.Profile.Certifications) == 0 {
		delete(shares, DimCertification)
	}
	if !budgetApplicable(in.Profile) {
		delete(shares, DimBudget)
	}
	if !in.SemanticAvailable {
		delete(shares, DimSemantic)
	}

	var sum float64
	for _, w := range shares {
		sum += w
	}
	if sum <= 0 {
		return shares
	}
	for dim := range shares {
		shares[dim] = shares[dim] * 100 / sum
	}
	return shares
}

type budgetBand int

const (
	budgetOutside budgetBand = iota
	budgetNearBand
	budgetWithin
)

func budgetApplicable(p model.CompanyProfile) bool {
	return p.BudgetMin != nil || p.BudgetMax != nil
}

func budgetFit(p model.CompanyProfile, amount float64) budgetBand {
	lo := math.Inf(-1)
	hi := math.Inf(1)
	if p.BudgetMin != nil {
		lo = *p.BudgetMin
	}
	if p.BudgetMax != nil {
		hi = *p.BudgetMax
	}
	if amount >= lo && amount <= hi {
		return budgetWithin
	}
	if amount >= lo*0.8 && amount <= hi*1.2 {
		return budgetNearBand
	}
	return budgetOutside
}

// deadlineCredit gives full credit inside [minDays, 60] and decays linearly
// outside: toward zero at the deadline itself below the floor, and over the
// following 30 days above the window.
func deadlineCredit(days, minDays int) float64 {
	if days >= minDays && days <= maxDeadlineDays {
		return 1
	}
	if days < minDays {
		if minDays <= 0 {
			return 1
		}
		return float64(days) / float64(minDays)
	}
	over := float64(days - maxDeadlineDays)
	return math.Max(0, 1-over/30)
}

func formatBudget(amount float64, currency string) string {
	return fmt.Sprintf("%.0f %s", amount, currency)
}

func quoteJoin(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	return strings.Join(quoted, ", ")
}
