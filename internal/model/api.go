package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeUnavailable   = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// FeedbackRequest is the request body for POST /recommendations/feedback/{tender_id}.
type FeedbackRequest struct {
	InteractionType  InteractionType `json:"interaction_type"`
	TimeSpentSeconds *int            `json:"time_spent_seconds,omitempty"`
	MatchScoreAtTime *int            `json:"match_score_at_time,omitempty"`
	FeedbackReason   *string         `json:"feedback_reason,omitempty"`
}

// FeedbackResponse is the response for POST /recommendations/feedback/{tender_id}.
type FeedbackResponse struct {
	Success       bool       `json:"success"`
	InteractionID *uuid.UUID `json:"interaction_id,omitempty"`
	Message       string     `json:"message"`
}

// RefreshEmbeddingResponse is the response for POST /recommendations/refresh-profile-embedding.
type RefreshEmbeddingResponse struct {
	Reembedded bool   `json:"reembedded"`
	Message    string `json:"message"`
}

// CreateProfileRequest is the request body for POST /company-profile
// (onboarding step 1).
type CreateProfileRequest struct {
	PrimarySector    string   `json:"primary_sector"`
	ActiveSectors    []string `json:"active_sectors"`
	SubSectors       []string `json:"sub_sectors,omitempty"`
	PreferredRegions []string `json:"preferred_regions"`
	Keywords         []string `json:"keywords"`
}

// UpdateProfileRequest is the request body for PUT /company-profile.
// Every field is optional; nil means "leave unchanged".
type UpdateProfileRequest struct {
	PrimarySector    *string   `json:"primary_sector,omitempty"`
	ActiveSectors    *[]string `json:"active_sectors,omitempty"`
	SubSectors       *[]string `json:"sub_sectors,omitempty"`
	PreferredRegions *[]string `json:"preferred_regions,omitempty"`
	Keywords         *[]string `json:"keywords,omitempty"`

	CompanySize      *CompanySize      `json:"company_size,omitempty"`
	YearsInOperation *YearsInOperation `json:"years_in_operation,omitempty"`
	Certifications   *[]string         `json:"certifications,omitempty"`
	BudgetMin        *float64          `json:"budget_min,omitempty"`
	BudgetMax        *float64          `json:"budget_max,omitempty"`
	BudgetCurrency   *string           `json:"budget_currency,omitempty"`

	PreferredLanguages *[]string `json:"preferred_languages,omitempty"`
	MinDeadlineDays    *int      `json:"min_deadline_days,omitempty"`

	MinMatchThreshold *float64            `json:"min_match_threshold,omitempty"`
	ScoringWeights    *map[string]float64 `json:"scoring_weights,omitempty"`
}

// ProfileOptions is the response for GET /company-profile/options.
type ProfileOptions struct {
	Sectors            []string            `json:"sectors"`
	Regions            []string            `json:"regions"`
	Certifications     []string            `json:"certifications"`
	CompanySizes       []CompanySize       `json:"company_sizes"`
	YearsOptions       []YearsInOperation  `json:"years_options"`
	KeywordSuggestions map[string][]string `json:"keyword_suggestions"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	Email  string `json:"email"`
	APIKey string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Postgres    string `json:"postgres"`
	Qdrant      string `json:"qdrant,omitempty"`
	OutboxDepth int    `json:"outbox_depth"`
	Uptime      int64  `json:"uptime_seconds"`
}
