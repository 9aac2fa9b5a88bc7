package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/chereta-io/chereta/internal/model"
)

const tenderColumns = `id, title, description, clean_description, summary, highlights,
	category, region, language, source, source_url, external_id,
	budget_amount, budget_currency, deadline, published_at, status, extracted_data,
	embedding_updated_at,
	view_count, save_count, apply_count, dismiss_count,
	rate_positive_count, rate_negative_count, popularity_score,
	created_at, updated_at`

func scanTender(row pgx.Row) (model.Tender, error) {
	var t model.Tender
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.CleanDescription, &t.Summary, &t.Highlights,
		&t.Category, &t.Region, &t.Language, &t.Source, &t.SourceURL, &t.ExternalID,
		&t.Budget, &t.BudgetCurrency, &t.Deadline, &t.PublishedAt, &t.Status, &t.Extracted,
		&t.EmbeddingUpdatedAt,
		&t.ViewCount, &t.SaveCount, &t.ApplyCount, &t.DismissCount,
		&t.RatePositive, &t.RateNegative, &t.PopularityScore,
		&t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// CreateTender inserts a tender. source_url uniqueness is enforced by the
// schema; a duplicate returns ErrDuplicate.
func (db *DB) CreateTender(ctx context.Context, t model.Tender) (model.Tender, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.BudgetCurrency == "" {
		t.BudgetCurrency = "ETB"
	}
	if t.Budget != nil && *t.Budget < 0 {
		return model.Tender{}, fmt.Errorf("storage: create tender: budget must be non-negative")
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO tenders (id, title, description, clean_description, summary, highlights,
		 category, region, language, source, source_url, external_id,
		 budget_amount, budget_currency, deadline, published_at, status, extracted_data,
		 created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		t.ID, t.Title, t.Description, t.CleanDescription, t.Summary, t.Highlights,
		t.Category, t.Region, t.Language, t.Source, t.SourceURL, t.ExternalID,
		t.Budget, t.BudgetCurrency, t.Deadline, t.PublishedAt, t.Status, t.Extracted,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Tender{}, ErrDuplicate
		}
		return model.Tender{}, fmt.Errorf("storage: create tender: %w", err)
	}
	return t, nil
}

// GetTender retrieves a tender by ID.
func (db *DB) GetTender(ctx context.Context, id uuid.UUID) (model.Tender, error) {
	t, err := scanTender(db.pool.QueryRow(ctx,
		`SELECT `+tenderColumns+` FROM tenders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Tender{}, ErrNotFound
		}
		return model.Tender{}, fmt.Errorf("storage: get tender: %w", err)
	}
	return t, nil
}

// GetTendersByIDs hydrates tenders for a candidate id set, preserving no
// particular order; callers re-sort by score.
func (db *DB) GetTendersByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Tender, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+tenderColumns+` FROM tenders WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: get tenders by ids: %w", err)
	}
	defer rows.Close()

	out := make([]model.Tender, 0, len(ids))
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan tender: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTenderVector loads a tender's embedding, or ErrNotFound when the tender
// exists without one.
func (db *DB) GetTenderVector(ctx context.Context, id uuid.UUID) (pgvector.Vector, error) {
	var v *pgvector.Vector
	err := db.pool.QueryRow(ctx,
		`SELECT embedding FROM tenders WHERE id = $1`, id).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pgvector.Vector{}, ErrNotFound
		}
		return pgvector.Vector{}, fmt.Errorf("storage: get tender vector: %w", err)
	}
	if v == nil {
		return pgvector.Vector{}, ErrNotFound
	}
	return *v, nil
}

// SetTenderEmbedding stores a tender's embedding and enqueues the vector for
// index sync in the same transaction, so Postgres and the outbox never diverge.
func (db *DB) SetTenderEmbedding(ctx context.Context, id uuid.UUID, vec pgvector.Vector) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE tenders SET embedding = $1, embedding_updated_at = $2, updated_at = $2 WHERE id = $3`,
		vec, now, id)
	if err != nil {
		return fmt.Errorf("storage: set tender embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := enqueueOutboxTx(ctx, tx, id, outboxOpUpsert); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CandidateFilter is the hard-filter set applied before scoring.
type CandidateFilter struct {
	Now       time.Time
	DaysAhead int
	Sectors   []string
	Regions   []string
	// ExcludeDismissedBy removes tenders the user has dismissed.
	ExcludeDismissedBy uuid.UUID
	// IgnoreDeadline drops the deadline window, keeping only the status
	// predicate. Callers that hydrate re-check effective status.
	IgnoreDeadline bool
}

// whereClause renders the filter as SQL against alias t, appending bind args.
func (f CandidateFilter) whereClause(args *[]any) string {
	var sb strings.Builder
	add := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}

	sb.WriteString("t.status = 'published'")
	if !f.IgnoreDeadline {
		nowArg := add(f.Now)
		fmt.Fprintf(&sb, " AND (t.deadline IS NULL OR (t.deadline > %s AND t.deadline <= %s + make_interval(days => %s)))",
			nowArg, nowArg, add(f.DaysAhead))
	}
	if len(f.Sectors) > 0 {
		fmt.Fprintf(&sb, " AND t.category = ANY(%s)", add(f.Sectors))
	}
	if len(f.Regions) > 0 {
		fmt.Fprintf(&sb, " AND t.region = ANY(%s)", add(f.Regions))
	}
	if f.ExcludeDismissedBy != uuid.Nil {
		fmt.Fprintf(&sb, ` AND NOT EXISTS (
			SELECT 1 FROM user_interactions ui
			WHERE ui.user_id = %s AND ui.tender_id = t.id AND ui.interaction_type = 'dismiss')`,
			add(f.ExcludeDismissedBy))
	}
	return sb.String()
}

// KNNTenders runs a pgvector cosine k-NN over embedded tenders under the hard
// filters. Results come back in strictly descending similarity with ascending
// id as tiebreak. This is the fallback path when the ANN index is unavailable.
func (db *DB) KNNTenders(ctx context.Context, query pgvector.Vector, k int, f CandidateFilter) ([]VectorHit, error) {
	args := []any{}
	where := f.whereClause(&args)
	args = append(args, query)
	qArg := fmt.Sprintf("$%d", len(args))
	args = append(args, k)
	kArg := fmt.Sprintf("$%d", len(args))

	rows, err := db.pool.Query(ctx, fmt.Sprintf(
		`SELECT t.id, 1 - (t.embedding <=> %s) AS similarity
		 FROM tenders t
		 WHERE %s AND t.embedding IS NOT NULL
		 ORDER BY similarity DESC, t.id ASC
		 LIMIT %s`, qArg, where, kArg), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: knn tenders: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.TenderID, &h.Similarity); err != nil {
			return nil, fmt.Errorf("storage: scan knn hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// VectorHit is one k-NN result row.
type VectorHit struct {
	TenderID   uuid.UUID
	Similarity float64
}

// RangeTendersByScore is the range variant of KNNTenders: only hits whose
// cosine similarity is at least minSim come back, under the same hard
// filters and with the same ordering.
func (db *DB) RangeTendersByScore(ctx context.Context, query pgvector.Vector, minSim float64, k int, f CandidateFilter) ([]VectorHit, error) {
	args := []any{}
	where := f.whereClause(&args)
	args = append(args, query)
	qArg := fmt.Sprintf("$%d", len(args))
	args = append(args, minSim)
	simArg := fmt.Sprintf("$%d", len(args))
	args = append(args, k)
	kArg := fmt.Sprintf("$%d", len(args))

	rows, err := db.pool.Query(ctx, fmt.Sprintf(
		`SELECT t.id, 1 - (t.embedding <=> %s) AS similarity
		 FROM tenders t
		 WHERE %s AND t.embedding IS NOT NULL
		   AND 1 - (t.embedding <=> %s) >= %s
		 ORDER BY similarity DESC, t.id ASC
		 LIMIT %s`, qArg, where, qArg, simArg, kArg), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: range tenders by score: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.TenderID, &h.Similarity); err != nil {
			return nil, fmt.Errorf("storage: scan range hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// RuleCandidates selects candidates by the cheap rule pre-filter (sector or
// region overlap with the profile) ordered by recency. Used when the profile
// has no embedding yet, or when the vector paths are down.
func (db *DB) RuleCandidates(ctx context.Context, f CandidateFilter, sectors, regions []string, limit int) ([]uuid.UUID, error) {
	args := []any{}
	where := f.whereClause(&args)

	var pref string
	switch {
	case len(sectors) > 0 && len(regions) > 0:
		args = append(args, sectors)
		sArg := fmt.Sprintf("$%d", len(args))
		args = append(args, regions)
		rArg := fmt.Sprintf("$%d", len(args))
		pref = fmt.Sprintf(" AND (t.category = ANY(%s) OR t.region = ANY(%s))", sArg, rArg)
	case len(sectors) > 0:
		args = append(args, sectors)
		pref = fmt.Sprintf(" AND t.category = ANY($%d)", len(args))
	case len(regions) > 0:
		args = append(args, regions)
		pref = fmt.Sprintf(" AND t.region = ANY($%d)", len(args))
	}

	args = append(args, limit)
	limArg := fmt.Sprintf("$%d", len(args))

	rows, err := db.pool.Query(ctx, fmt.Sprintf(
		`SELECT t.id FROM tenders t
		 WHERE %s%s
		 ORDER BY t.published_at DESC NULLS LAST, t.id ASC
		 LIMIT %s`, where, pref, limArg), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: rule candidates: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan candidate id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PopularityPercentile returns the given percentile of popularity_score over
// published tenders. Zero when the table is empty.
func (db *DB) PopularityPercentile(ctx context.Context, pct float64) (float64, error) {
	var v *float64
	err := db.pool.QueryRow(ctx,
		`SELECT percentile_cont($1) WITHIN GROUP (ORDER BY popularity_score)
		 FROM tenders WHERE status = 'published'`, pct).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("storage: popularity percentile: %w", err)
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}

// ListUnembeddedTenders returns published tenders missing an embedding,
// oldest first, for the backfill loop.
func (db *DB) ListUnembeddedTenders(ctx context.Context, limit int) ([]model.Tender, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+tenderColumns+` FROM tenders
		 WHERE status = 'published' AND embedding IS NULL
		 ORDER BY created_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list unembedded tenders: %w", err)
	}
	defer rows.Close()

	var out []model.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan tender: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SweepExpiredTenders persists the read-side deadline invariant: published
// tenders whose deadline has passed become closed. Returns rows transitioned.
func (db *DB) SweepExpiredTenders(ctx context.Context, now time.Time) (int64, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`UPDATE tenders SET status = 'closed', updated_at = $1
		 WHERE status = 'published' AND deadline IS NOT NULL AND deadline <= $1
		 RETURNING id`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage: sweep expired tenders: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("storage: scan swept id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("storage: sweep expired tenders: %w", err)
	}

	// Closed tenders leave the ANN index so they never surface as candidates.
	for _, id := range ids {
		if err := enqueueOutboxTx(ctx, tx, id, outboxOpDelete); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("storage: commit sweep: %w", err)
	}
	return int64(len(ids)), nil
}
