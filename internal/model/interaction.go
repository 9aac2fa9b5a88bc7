package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InteractionType enumerates the user actions the feedback loop accepts.
type InteractionType string

const (
	InteractionView         InteractionType = "view"
	InteractionSave         InteractionType = "save"
	InteractionApply        InteractionType = "apply"
	InteractionDismiss      InteractionType = "dismiss"
	InteractionRatePositive InteractionType = "rate_positive"
	InteractionRateNegative InteractionType = "rate_negative"
)

// MinViewSeconds is the dwell time below which a view carries no weight.
const MinViewSeconds = 5

// InteractionWeight returns the server-assigned signed weight for a type.
// Views shorter than MinViewSeconds count as zero.
func InteractionWeight(t InteractionType, timeSpentSeconds *int) int {
	switch t {
	case InteractionView:
		if timeSpentSeconds != nil && *timeSpentSeconds >= MinViewSeconds {
			return 1
		}
		return 0
	case InteractionSave:
		return 5
	case InteractionApply:
		return 10
	case InteractionDismiss:
		return -5
	case InteractionRatePositive:
		return 7
	case InteractionRateNegative:
		return -7
	default:
		return 0
	}
}

// ValidInteractionType reports whether t is one of the accepted types.
func ValidInteractionType(t InteractionType) bool {
	switch t {
	case InteractionView, InteractionSave, InteractionApply,
		InteractionDismiss, InteractionRatePositive, InteractionRateNegative:
		return true
	}
	return false
}

// Positive reports whether t signals interest (feeds discovered_interests).
func (t InteractionType) Positive() bool {
	switch t {
	case InteractionSave, InteractionApply, InteractionRatePositive:
		return true
	}
	return false
}

// Interaction is one immutable row of the append-only interaction log.
// Weights are assigned server-side; the snapshot columns record the tender's
// structured fields at event time so learning survives later tender edits.
type Interaction struct {
	ID       uuid.UUID       `json:"id"`
	UserID   uuid.UUID       `json:"user_id"`
	TenderID uuid.UUID       `json:"tender_id"`
	Type     InteractionType `json:"interaction_type"`

	Weight           int     `json:"interaction_weight"`
	TimeSpentSeconds *int    `json:"time_spent_seconds,omitempty"`
	MatchScoreAtTime *int    `json:"match_score_at_time,omitempty"`
	FeedbackReason   *string `json:"feedback_reason,omitempty"`

	TenderCategory string   `json:"tender_category"`
	TenderRegion   string   `json:"tender_region"`
	TenderBudget   *float64 `json:"tender_budget,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MaxFeedbackReasonLen bounds the free-text reason column.
const MaxFeedbackReasonLen = 500

// ValidateInteraction checks an incoming feedback payload before weights are
// assigned.
func ValidateInteraction(t InteractionType, timeSpent *int, reason *string) error {
	if !ValidInteractionType(t) {
		return fmt.Errorf("interaction_type %q is not a valid option", t)
	}
	if timeSpent != nil && *timeSpent < 0 {
		return fmt.Errorf("time_spent_seconds must be non-negative")
	}
	if reason != nil && len(*reason) > MaxFeedbackReasonLen {
		return fmt.Errorf("feedback_reason exceeds maximum length of %d characters", MaxFeedbackReasonLen)
	}
	return nil
}

// InteractionStats summarizes a user's interaction history.
type InteractionStats struct {
	CountsByType   map[InteractionType]int `json:"counts_by_type"`
	Total          int                     `json:"total"`
	AvgViewSeconds float64                 `json:"avg_view_seconds"`
}
