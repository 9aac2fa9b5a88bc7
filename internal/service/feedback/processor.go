// Package feedback ingests user interactions, learns preference signals
// from them, and triggers profile re-embedding when a profile has drifted.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/storage"
	"github.com/chereta-io/chereta/internal/telemetry"
)

var (
	ErrTenderNotFound     = errors.New("feedback: tender not found")
	ErrInvalidInteraction = errors.New("feedback: invalid interaction")
)

// Retry budget for the interaction write; must fit inside the endpoint's
// 500ms deadline.
const (
	interactionRetries    = 2
	interactionRetryDelay = 25 * time.Millisecond
)

// Service records interactions and feeds the learning pass.
type Service struct {
	db          *storage.DB
	learner     *Learner
	logger      *slog.Logger
	dedupWindow time.Duration

	recorded metric.Int64Counter
	deduped  metric.Int64Counter
}

func New(db *storage.DB, learner *Learner, dedupWindow time.Duration, logger *slog.Logger) *Service {
	meter := telemetry.Meter("chereta/feedback")
	recorded, _ := meter.Int64Counter("chereta.feedback.recorded",
		metric.WithDescription("Interactions persisted"),
	)
	deduped, _ := meter.Int64Counter("chereta.feedback.deduped",
		metric.WithDescription("Interactions collapsed by the dedup window"),
	)
	return &Service{
		db:          db,
		learner:     learner,
		logger:      logger,
		dedupWindow: dedupWindow,
		recorded:    recorded,
		deduped:     deduped,
	}
}

// RecordInteraction persists one interaction. Weights are assigned server
// side from the interaction type; the tender's structured fields are
// snapshotted onto the row. A duplicate within the dedup window is a
// success with no interaction id.
func (s *Service) RecordInteraction(ctx context.Context, userID, companyID, tenderID uuid.UUID, req model.FeedbackRequest) (model.FeedbackResponse, error) {
	if err := model.ValidateInteraction(req.InteractionType, req.TimeSpentSeconds, req.FeedbackReason); err != nil {
		return model.FeedbackResponse{}, fmt.Errorf("%w: %s", ErrInvalidInteraction, err)
	}

	tender, err := s.db.GetTender(ctx, tenderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.FeedbackResponse{}, ErrTenderNotFound
		}
		return model.FeedbackResponse{}, err
	}

	// The profile is optional at this point: interactions recorded before
	// onboarding still count toward tender popularity.
	var profileID uuid.UUID
	profile, err := s.db.GetProfileByCompany(ctx, companyID)
	switch {
	case err == nil:
		profileID = profile.ID
	case errors.Is(err, storage.ErrNotFound):
	default:
		return model.FeedbackResponse{}, err
	}

	var budget *float64
	if tender.Budget != nil {
		b := *tender.Budget
		budget = &b
	}
	in := model.Interaction{
		UserID:           userID,
		TenderID:         tenderID,
		Type:             req.InteractionType,
		Weight:           model.InteractionWeight(req.InteractionType, req.TimeSpentSeconds),
		TimeSpentSeconds: req.TimeSpentSeconds,
		MatchScoreAtTime: req.MatchScoreAtTime,
		FeedbackReason:   req.FeedbackReason,
		TenderCategory:   tender.Category,
		TenderRegion:     tender.Region,
		TenderBudget:     budget,
	}

	// The multi-row transaction can hit serialization conflicts under
	// concurrent feedback on the same tender; retry inside the request
	// deadline.
	var (
		id       uuid.UUID
		inserted bool
	)
	err = storage.WithRetry(ctx, interactionRetries, interactionRetryDelay, func() error {
		var err error
		id, inserted, err = s.db.InsertInteraction(ctx, in, profileID, s.dedupWindow)
		return err
	})
	if err != nil {
		return model.FeedbackResponse{}, err
	}
	if !inserted {
		s.deduped.Add(ctx, 1)
		return model.FeedbackResponse{
			Success: true,
			Message: "interaction already recorded",
		}, nil
	}
	s.recorded.Add(ctx, 1)

	// Learning runs out of band; a full queue drops the task, never the
	// interaction itself.
	if profileID != uuid.Nil && s.learner != nil {
		s.learner.Enqueue(learnTask{UserID: userID, ProfileID: profileID})
	}

	return model.FeedbackResponse{
		Success:       true,
		InteractionID: &id,
		Message:       "interaction recorded",
	}, nil
}

// Stats returns the caller's aggregated interaction history.
func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (model.InteractionStats, error) {
	return s.db.GetInteractionStats(ctx, userID)
}
