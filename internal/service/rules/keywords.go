package rules

import (
	"regexp"
	"sort"
	"strings"

	"github.com/chereta-io/chereta/internal/model"
)

// stopwords excluded from keyword-token derivation.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "the": true, "to": true,
	"with": true, "will": true, "this": true, "that": true, "its": true,
	"supply": true, "provision": true, "procurement": true, "service": true,
	"services": true, "tender": true, "bid": true, "bids": true,
}

var wordSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// matchedTerms returns the terms that appear word-bounded and
// case-insensitively in text, preserving the input order.
func matchedTerms(terms []string, text string) []string {
	tokens := tokenSet(text)
	var matched []string
	for _, term := range terms {
		if termInTokens(term, tokens, text) {
			matched = append(matched, term)
		}
	}
	return matched
}

// termInTokens matches single-word terms against the token set and
// multi-word terms as case-insensitive substrings.
func termInTokens(term string, tokens map[string]bool, text string) bool {
	t := strings.ToLower(strings.TrimSpace(term))
	if t == "" {
		return false
	}
	if !strings.ContainsAny(t, " -") {
		return tokens[t]
	}
	return strings.Contains(strings.ToLower(text), t)
}

// keywordScore sums per-keyword placement multipliers: title 2x,
// highlights 1.5x, description 1x. Each keyword counts once at its best
// placement. Returns the raw sum and the matched keywords.
func keywordScore(keywords []string, t model.Tender) (float64, []string) {
	title := strings.ToLower(t.Title)
	highlights := strings.ToLower(strings.Join(t.Highlights, " "))
	desc := strings.ToLower(t.Description)
	if t.CleanDescription != nil {
		desc += " " + strings.ToLower(*t.CleanDescription)
	}

	var raw float64
	var matched []string
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" {
			continue
		}
		switch {
		case strings.Contains(title, k):
			raw += 2
		case strings.Contains(highlights, k):
			raw += 1.5
		case strings.Contains(desc, k):
			raw += 1
		default:
			continue
		}
		matched = append(matched, kw)
	}
	return raw, matched
}

// knownCertifications is the detection vocabulary for certification
// requirements in tender text.
var knownCertifications = []string{
	"ISO 9001",
	"ISO 14001",
	"ISO 27001",
	"ISO 45001",
	"OHSAS 18001",
	"HACCP",
	"CE marking",
	"Grade 1 contractor",
	"Grade 2 contractor",
	"trade license",
	"VAT registration",
	"TIN certificate",
	"competency certificate",
}

// DetectCertifications scans tender text for known certification names and
// returns the ones mentioned, in vocabulary order.
func DetectCertifications(description string, cleanDescription *string) []string {
	text := strings.ToLower(description)
	if cleanDescription != nil {
		text += " " + strings.ToLower(*cleanDescription)
	}
	var found []string
	for _, cert := range knownCertifications {
		if strings.Contains(text, strings.ToLower(cert)) {
			found = append(found, cert)
		}
	}
	return found
}

// tokenSet splits text into lowercased tokens with stopwords removed.
func tokenSet(text string) map[string]bool {
	tokens := map[string]bool{}
	for _, tok := range wordSplit.Split(strings.ToLower(text), -1) {
		if len(tok) < 2 || stopwords[tok] {
			continue
		}
		tokens[tok] = true
	}
	return tokens
}

// maxCommonKeywords caps the overlap annotation on similar tenders.
const maxCommonKeywords = 10

// CommonKeywords returns the sorted intersection of keyword tokens derived
// from two tenders' titles and highlights, capped at ten.
func CommonKeywords(a, b model.Tender) []string {
	tokensA := tokenSet(a.Title + " " + strings.Join(a.Highlights, " "))
	tokensB := tokenSet(b.Title + " " + strings.Join(b.Highlights, " "))

	var common []string
	for tok := range tokensA {
		if tokensB[tok] {
			common = append(common, tok)
		}
	}
	sort.Strings(common)
	if len(common) > maxCommonKeywords {
		common = common[:maxCommonKeywords]
	}
	return common
}

// containsFold reports whether list contains s case-insensitively.
func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// intersectFold returns the members of a present in b, case-insensitively,
// preserving a's order.
func intersectFold(a, b []string) []string {
	var out []string
	for _, v := range a {
		if containsFold(b, v) {
			out = append(out, v)
		}
	}
	return out
}
