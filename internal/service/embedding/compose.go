package embedding

import (
	"regexp"
	"strings"

	"github.com/chereta-io/chereta/internal/model"
)

// maxDescriptionChars truncates the raw description when no cleaned version
// exists, so one verbose notice cannot dominate the embedding input.
const maxDescriptionChars = 2000

// boilerplatePatterns strip procurement-notice framing from tender titles so
// the embedding captures what is procured, not who procures. Ordered most
// specific to most general; the first match wins.
var boilerplatePatterns = []*regexp.Regexp{
	// Financing / World Bank framing.
	regexp.MustCompile(`(?i)intends?\s+to\s+apply\s+part\s+of\s+the\s+proceeds.*?(?:for\s+the\s+)?(?:supply|procurement|contract)\s+(?:of\s+|for\s+(?:the\s+)?)`),
	regexp.MustCompile(`(?i)has\s+received\s+financing.*?toward.*?(?:for\s+the\s+)?(?:supply|procurement|contract)\s+(?:of\s+|for\s+(?:the\s+)?)`),
	// Public tender notices.
	regexp.MustCompile(`(?i)public\s+tender\s+notice\s+for\s+(?:sale\s+of\s+)?`),
	// Invitation phrasing with a named action.
	regexp.MustCompile(`(?i)invites?\s+(?:interested\s+)?(?:and\s+)?(?:eligible\s+)?(?:potential\s+)?bidders?\s+for\s+the\s+(?:procurement|supply|sales?)\s+of\s+`),
	regexp.MustCompile(`(?i)would\s+like\s+to\s+invite\s+(?:eligible\s+)?(?:and\s+)?(?:interested\s+)?(?:reputable\s+)?(?:bidders?|companies|firms)\s+for\s+the\s+(?:procurement|sales?|supply)\s+of\s+`),
	regexp.MustCompile(`(?i)(?:now\s+)?invites?\s+(?:interested\s+)?(?:and\s+)?(?:qualified\s+)?bidders?\s+to\s+(?:submit|supply)\s+(?:sealed\s+)?bids?\s+for\s+(?:the\s+)?(?:provision\s+of\s+)?`),
	regexp.MustCompile(`(?i)invites?\s+bids?\s+from\s+(?:interested\s+)?(?:and\s+)?(?:eligible\s+)?bidders?\s*,?\s*for\s+the\s+(?:procurement|supply)\s+of\s+`),
	// Generic invitations.
	regexp.MustCompile(`(?i)(?:here\s+)?(?:now\s+)?invites?\s+sealed\s+bids?\s+from\s+.*?(?:bidders?\s+)?for\s+(?:the\s+)?(?:procurement|construction|supply|installation)\s+of\s+`),
	regexp.MustCompile(`(?i)invites?\s+(?:interested\s+)?(?:and\s+)?(?:eligible\s+)?bidders?\s+for\s+(?:the\s+)?(?:procurement|construction|supply|installation|purchase)\s+(?:of\s+|and\s+installation\s+of\s+)`),
	regexp.MustCompile(`(?i)invites?\s+(?:all\s+)?interested\s+(?:and|&)\s+(?:eligible\s+)?(?:bidders?|suppliers?|firms)\s+for\s+(?:the\s+)?`),
	regexp.MustCompile(`(?i)invites?\s+(?:eligible\s+)?(?:bidders?|suppliers?)\s+for\s+(?:the\s+)?`),
	// Seeking / hiring phrasing.
	regexp.MustCompile(`(?i)(?:is\s+)?seeking\s+(?:a\s+)?service\s+provider\s+for\s+`),
	regexp.MustCompile(`(?i)would\s+like\s+to\s+(?:hire|prequalify)\s+`),
	regexp.MustCompile(`(?i)we\s+invite\s+you\s+to\s+submit\s+a\s+proposal\s+for\s+`),
	// Fallback sealed-bid phrasing.
	regexp.MustCompile(`(?i)invites?\s+sealed\s+bids?\s+from\s+`),
}

var (
	leadingConnectors = regexp.MustCompile(`(?i)^(?:the\s+|a\s+|an\s+|of\s+|for\s+|to\s+|in\s+)+`)
	residualBidders   = regexp.MustCompile(`(?i)^(?:qualified\s+)?(?:eligible\s+)?(?:and\s+)?bidders?\s+for\s+(?:the\s+)?`)
	residualFillers   = regexp.MustCompile(`(?i)^(?:different\s+)?(?:various\s+)?`)
	whitespaceRun     = regexp.MustCompile(`\s+`)
)

// ExtractProjectText removes organization boilerplate from a tender title,
// keeping the text after the first matching invitation phrase. Titles with no
// recognizable boilerplate pass through unchanged.
func ExtractProjectText(title string) string {
	for _, pat := range boilerplatePatterns {
		loc := pat.FindStringIndex(title)
		if loc == nil {
			continue
		}
		extracted := strings.TrimSpace(title[loc[1]:])
		extracted = leadingConnectors.ReplaceAllString(extracted, "")
		extracted = residualBidders.ReplaceAllString(extracted, "")
		extracted = residualFillers.ReplaceAllString(extracted, "")
		if extracted = strings.TrimSpace(extracted); extracted != "" {
			return extracted
		}
		return title
	}
	return title
}

// TenderText composes the deterministic embedding input for a tender:
// project text, preferred description, highlights, organization, category and
// region joined by newlines, lowercased, whitespace-normalized.
func TenderText(t model.Tender) string {
	var parts []string
	if t.Title != "" {
		parts = append(parts, ExtractProjectText(t.Title))
	}

	desc := t.Description
	if t.CleanDescription != nil && *t.CleanDescription != "" {
		desc = *t.CleanDescription
	} else if len(desc) > maxDescriptionChars {
		desc = desc[:maxDescriptionChars]
	}
	if desc != "" {
		parts = append(parts, desc)
	}

	if len(t.Highlights) > 0 {
		parts = append(parts, strings.Join(t.Highlights, " "))
	}
	if t.Extracted != nil && t.Extracted.Organization != "" {
		parts = append(parts, t.Extracted.Organization)
	}
	if t.Category != "" {
		parts = append(parts, t.Category)
	}
	if t.Region != "" {
		parts = append(parts, t.Region)
	}
	return finalize(parts)
}

// ProfileText composes the deterministic embedding input for a profile.
// Lists render in stored order so the same profile always produces the same
// bytes.
func ProfileText(p model.CompanyProfile) string {
	var parts []string
	if p.PrimarySector != "" {
		parts = append(parts, p.PrimarySector)
	}
	for _, group := range [][]string{
		p.ActiveSectors, p.SubSectors, p.Keywords,
		p.PreferredRegions, p.Certifications, p.DiscoveredInterests,
	} {
		if len(group) > 0 {
			parts = append(parts, strings.Join(group, " "))
		}
	}
	return finalize(parts)
}

// finalize lowercases and collapses whitespace within each part, then joins
// with single newlines.
func finalize(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(whitespaceRun.ReplaceAllString(p, " ")))
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
