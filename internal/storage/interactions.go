package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chereta-io/chereta/internal/model"
)

// counterColumn maps an interaction type to the tender counter it increments.
var counterColumn = map[model.InteractionType]string{
	model.InteractionView:         "view_count",
	model.InteractionSave:         "save_count",
	model.InteractionApply:        "apply_count",
	model.InteractionDismiss:      "dismiss_count",
	model.InteractionRatePositive: "rate_positive_count",
	model.InteractionRateNegative: "rate_negative_count",
}

// InsertInteraction records one interaction atomically: the append-only log
// row, the tender's popularity counters, and the profile's interaction
// aggregates move in a single transaction.
//
// Duplicate submits within the dedup window collapse via the unique index on
// (user_id, tender_id, interaction_type, dedup_bucket); the duplicate insert
// is a no-op and the function returns (uuid.Nil, false, nil) without touching
// any counter.
func (db *DB) InsertInteraction(ctx context.Context, in model.Interaction, profileID uuid.UUID, dedupWindow time.Duration) (uuid.UUID, bool, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	bucket := in.CreatedAt.Unix() / int64(dedupWindow.Seconds())

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO user_interactions (id, user_id, tender_id, interaction_type,
		 interaction_weight, time_spent_seconds, match_score_at_time, feedback_reason,
		 tender_category, tender_region, tender_budget, dedup_bucket, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 ON CONFLICT (user_id, tender_id, interaction_type, dedup_bucket) DO NOTHING`,
		in.ID, in.UserID, in.TenderID, in.Type,
		in.Weight, in.TimeSpentSeconds, in.MatchScoreAtTime, in.FeedbackReason,
		in.TenderCategory, in.TenderRegion, in.TenderBudget, bucket, in.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("storage: insert interaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, false, nil
	}

	col, ok := counterColumn[in.Type]
	if !ok {
		return uuid.Nil, false, fmt.Errorf("storage: insert interaction: unknown type %q", in.Type)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		`UPDATE tenders SET %s = %s + 1,
		 popularity_score = GREATEST(0, popularity_score + $2),
		 updated_at = now()
		 WHERE id = $1`, col, col),
		in.TenderID, in.Weight,
	); err != nil {
		return uuid.Nil, false, fmt.Errorf("storage: bump tender counters: %w", err)
	}

	if profileID != uuid.Nil {
		if _, err := tx.Exec(ctx,
			`UPDATE company_tender_profiles SET
			 interaction_count = interaction_count + 1,
			 interactions_since_embed = interactions_since_embed + 1,
			 updated_at = now()
			 WHERE id = $1`, profileID,
		); err != nil {
			return uuid.Nil, false, fmt.Errorf("storage: bump profile counters: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, fmt.Errorf("storage: commit interaction: %w", err)
	}
	return in.ID, true, nil
}

// GetInteractionStats aggregates a user's interaction history.
func (db *DB) GetInteractionStats(ctx context.Context, userID uuid.UUID) (model.InteractionStats, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT interaction_type, count(*),
		 avg(time_spent_seconds) FILTER (WHERE interaction_type = 'view' AND time_spent_seconds IS NOT NULL)
		 FROM user_interactions
		 WHERE user_id = $1
		 GROUP BY interaction_type`, userID)
	if err != nil {
		return model.InteractionStats{}, fmt.Errorf("storage: interaction stats: %w", err)
	}
	defer rows.Close()

	stats := model.InteractionStats{CountsByType: map[model.InteractionType]int{}}
	for rows.Next() {
		var (
			typ model.InteractionType
			n   int
			avg *float64
		)
		if err := rows.Scan(&typ, &n, &avg); err != nil {
			return model.InteractionStats{}, fmt.Errorf("storage: scan stats row: %w", err)
		}
		stats.CountsByType[typ] = n
		stats.Total += n
		if typ == model.InteractionView && avg != nil {
			stats.AvgViewSeconds = *avg
		}
	}
	return stats, rows.Err()
}

// CountPositiveByCategory counts a user's save/apply/rate_positive
// interactions per tender category, for interest discovery.
func (db *DB) CountPositiveByCategory(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT tender_category, count(*) FROM user_interactions
		 WHERE user_id = $1
		   AND interaction_type IN ('save','apply','rate_positive')
		   AND tender_category <> ''
		 GROUP BY tender_category`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: positive by category: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("storage: scan category count: %w", err)
		}
		out[cat] = n
	}
	return out, rows.Err()
}

// CountDismissalsByRegion counts a user's dismissals per tender region, for
// the dismissal-pattern learning pass.
func (db *DB) CountDismissalsByRegion(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT tender_region, count(*) FROM user_interactions
		 WHERE user_id = $1 AND interaction_type = 'dismiss' AND tender_region <> ''
		 GROUP BY tender_region`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: dismissals by region: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var region string
		var n int
		if err := rows.Scan(&region, &n); err != nil {
			return nil, fmt.Errorf("storage: scan region count: %w", err)
		}
		out[region] = n
	}
	return out, rows.Err()
}

// CountDismissalsByCategory counts a user's dismissals per tender category,
// so repeatedly dismissed categories can be held out of interest discovery.
func (db *DB) CountDismissalsByCategory(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT tender_category, count(*) FROM user_interactions
		 WHERE user_id = $1 AND interaction_type = 'dismiss' AND tender_category <> ''
		 GROUP BY tender_category`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: dismissals by category: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("storage: scan category count: %w", err)
		}
		out[cat] = n
	}
	return out, rows.Err()
}

// DismissedTenderIDs returns the set of tenders the user has dismissed.
// Applied as a hard filter on paths that bypass the SQL-side exclusion.
func (db *DB) DismissedTenderIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT tender_id FROM user_interactions
		 WHERE user_id = $1 AND interaction_type = 'dismiss'`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: dismissed tender ids: %w", err)
	}
	defer rows.Close()

	out := map[uuid.UUID]bool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan dismissed id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// CountInteractions returns the total rows in the log for a user, used by
// tests to assert idempotency.
func (db *DB) CountInteractions(ctx context.Context, userID, tenderID uuid.UUID, typ model.InteractionType) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM user_interactions
		 WHERE user_id = $1 AND tender_id = $2 AND interaction_type = $3`,
		userID, tenderID, typ).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count interactions: %w", err)
	}
	return n, nil
}
