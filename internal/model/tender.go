package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// TenderStatus enumerates tender lifecycle states.
type TenderStatus string

const (
	StatusDraft     TenderStatus = "draft"
	StatusPublished TenderStatus = "published"
	StatusClosed    TenderStatus = "closed"
	StatusCancelled TenderStatus = "cancelled"
)

// ExtractedData is the closed structure produced by the offline content
// pipeline. Unknown keys from the extractor are preserved in Extra but never
// participate in scoring.
type ExtractedData struct {
	Financial      map[string]any `json:"financial,omitempty"`
	Contact        map[string]any `json:"contact,omitempty"`
	Dates          map[string]any `json:"dates,omitempty"`
	Requirements   []string       `json:"requirements,omitempty"`
	Specifications map[string]any `json:"specifications,omitempty"`
	Organization   string         `json:"organization,omitempty"`
	Addresses      []string       `json:"addresses,omitempty"`
	LanguageFlag   string         `json:"language_flag,omitempty"`
	TenderType     string         `json:"tender_type,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Tender is a published procurement opportunity.
type Tender struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`

	CleanDescription *string  `json:"clean_description,omitempty"`
	Summary          *string  `json:"summary,omitempty"`
	Highlights       []string `json:"highlights,omitempty"`

	Category string  `json:"category"`
	Region   string  `json:"region"`
	Language string  `json:"language"`
	Source   *string `json:"source,omitempty"`

	// SourceURL is globally unique; ExternalID is stable across re-imports.
	SourceURL  *string `json:"source_url,omitempty"`
	ExternalID *string `json:"external_id,omitempty"`

	Budget         *float64 `json:"budget,omitempty"`
	BudgetCurrency string   `json:"budget_currency"`

	Deadline    *time.Time `json:"deadline,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Status      TenderStatus `json:"status"`

	Extracted *ExtractedData `json:"extracted_data,omitempty"`

	Embedding          *pgvector.Vector `json:"-"`
	EmbeddingUpdatedAt *time.Time       `json:"-"`

	// Behavioral counters, maintained by the feedback processor.
	ViewCount       int     `json:"view_count"`
	SaveCount       int     `json:"save_count"`
	ApplyCount      int     `json:"apply_count"`
	DismissCount    int     `json:"dismiss_count"`
	RatePositive    int     `json:"rate_positive_count"`
	RateNegative    int     `json:"rate_negative_count"`
	PopularityScore float64 `json:"popularity_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveStatus returns the status with the read-side deadline invariant
// applied: a published tender whose deadline has passed reads as closed.
func (t Tender) EffectiveStatus(now time.Time) TenderStatus {
	if t.Status == StatusPublished && t.Deadline != nil && !t.Deadline.After(now) {
		return StatusClosed
	}
	return t.Status
}

// DaysUntilDeadline returns whole days from now to the deadline, or nil when
// the tender has no deadline.
func (t Tender) DaysUntilDeadline(now time.Time) *int {
	if t.Deadline == nil {
		return nil
	}
	d := int(t.Deadline.Sub(now).Hours() / 24)
	return &d
}
