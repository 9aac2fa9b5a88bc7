package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/chereta-io/chereta/internal/model"
)

const profileColumns = `id, company_id,
	primary_sector, active_sectors, sub_sectors, preferred_regions, keywords,
	company_size, years_in_operation, certifications,
	budget_min, budget_max, budget_currency,
	discovered_interests, preferred_sources, preferred_languages, min_deadline_days,
	min_match_threshold, scoring_weights,
	embedding_updated_at, embedding_dirty,
	interaction_count, interactions_since_embed, completion_percentage, onboarding_step,
	created_at, updated_at`

func scanProfile(row pgx.Row) (model.CompanyProfile, error) {
	var p model.CompanyProfile
	err := row.Scan(
		&p.ID, &p.CompanyID,
		&p.PrimarySector, &p.ActiveSectors, &p.SubSectors, &p.PreferredRegions, &p.Keywords,
		&p.CompanySize, &p.YearsInOperation, &p.Certifications,
		&p.BudgetMin, &p.BudgetMax, &p.BudgetCurrency,
		&p.DiscoveredInterests, &p.PreferredSources, &p.PreferredLanguages, &p.MinDeadlineDays,
		&p.MinMatchThreshold, &p.ScoringWeights,
		&p.EmbeddingUpdatedAt, &p.EmbeddingDirty,
		&p.InteractionCount, &p.InteractionsSinceEmbed, &p.CompletionPercentage, &p.OnboardingStep,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// CreateProfile inserts a company profile. One profile per company is
// enforced by the schema; a second insert returns ErrDuplicate.
func (db *DB) CreateProfile(ctx context.Context, p model.CompanyProfile) (model.CompanyProfile, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.BudgetCurrency == "" {
		p.BudgetCurrency = "ETB"
	}
	if p.MinMatchThreshold == 0 {
		p.MinMatchThreshold = model.DefaultMinMatchThreshold
	}
	p.CompletionPercentage = p.Completion()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO company_tender_profiles (id, company_id,
		 primary_sector, active_sectors, sub_sectors, preferred_regions, keywords,
		 company_size, years_in_operation, certifications,
		 budget_min, budget_max, budget_currency,
		 discovered_interests, preferred_sources, preferred_languages, min_deadline_days,
		 min_match_threshold, scoring_weights,
		 embedding_dirty, interaction_count, interactions_since_embed,
		 completion_percentage, onboarding_step, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,
		 true,0,0,$20,$21,$22,$23)`,
		p.ID, p.CompanyID,
		p.PrimarySector, p.ActiveSectors, p.SubSectors, p.PreferredRegions, p.Keywords,
		p.CompanySize, p.YearsInOperation, p.Certifications,
		p.BudgetMin, p.BudgetMax, p.BudgetCurrency,
		p.DiscoveredInterests, p.PreferredSources, p.PreferredLanguages, p.MinDeadlineDays,
		p.MinMatchThreshold, p.ScoringWeights,
		p.CompletionPercentage, p.OnboardingStep, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.CompanyProfile{}, ErrDuplicate
		}
		return model.CompanyProfile{}, fmt.Errorf("storage: create profile: %w", err)
	}
	p.EmbeddingDirty = true
	return p, nil
}

// GetProfileByCompany retrieves a profile by owning company.
func (db *DB) GetProfileByCompany(ctx context.Context, companyID uuid.UUID) (model.CompanyProfile, error) {
	p, err := scanProfile(db.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM company_tender_profiles WHERE company_id = $1`, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CompanyProfile{}, ErrNotFound
		}
		return model.CompanyProfile{}, fmt.Errorf("storage: get profile by company: %w", err)
	}
	return p, nil
}

// GetProfile retrieves a profile by its own id.
func (db *DB) GetProfile(ctx context.Context, id uuid.UUID) (model.CompanyProfile, error) {
	p, err := scanProfile(db.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM company_tender_profiles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CompanyProfile{}, ErrNotFound
		}
		return model.CompanyProfile{}, fmt.Errorf("storage: get profile: %w", err)
	}
	return p, nil
}

// UpdateProfile persists a full profile row after the service applied a
// partial update. Preference edits mark the embedding dirty.
func (db *DB) UpdateProfile(ctx context.Context, p model.CompanyProfile, markDirty bool) (model.CompanyProfile, error) {
	p.UpdatedAt = time.Now().UTC()
	p.CompletionPercentage = p.Completion()
	if markDirty {
		p.EmbeddingDirty = true
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE company_tender_profiles SET
		 primary_sector = $2, active_sectors = $3, sub_sectors = $4,
		 preferred_regions = $5, keywords = $6,
		 company_size = $7, years_in_operation = $8, certifications = $9,
		 budget_min = $10, budget_max = $11, budget_currency = $12,
		 preferred_sources = $13, preferred_languages = $14, min_deadline_days = $15,
		 min_match_threshold = $16, scoring_weights = $17,
		 embedding_dirty = $18, completion_percentage = $19, onboarding_step = $20,
		 updated_at = $21
		 WHERE id = $1`,
		p.ID,
		p.PrimarySector, p.ActiveSectors, p.SubSectors,
		p.PreferredRegions, p.Keywords,
		p.CompanySize, p.YearsInOperation, p.Certifications,
		p.BudgetMin, p.BudgetMax, p.BudgetCurrency,
		p.PreferredSources, p.PreferredLanguages, p.MinDeadlineDays,
		p.MinMatchThreshold, p.ScoringWeights,
		p.EmbeddingDirty, p.CompletionPercentage, p.OnboardingStep,
		p.UpdatedAt,
	)
	if err != nil {
		return model.CompanyProfile{}, fmt.Errorf("storage: update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.CompanyProfile{}, ErrNotFound
	}
	return p, nil
}

// GetProfileVector loads a profile's embedding, or ErrNotFound when absent.
func (db *DB) GetProfileVector(ctx context.Context, profileID uuid.UUID) (pgvector.Vector, error) {
	var v *pgvector.Vector
	err := db.pool.QueryRow(ctx,
		`SELECT embedding FROM company_tender_profiles WHERE id = $1`, profileID).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pgvector.Vector{}, ErrNotFound
		}
		return pgvector.Vector{}, fmt.Errorf("storage: get profile vector: %w", err)
	}
	if v == nil {
		return pgvector.Vector{}, ErrNotFound
	}
	return *v, nil
}

// SetProfileEmbedding atomically swaps in a freshly computed profile vector,
// clears the dirty flag and resets the since-embed counter. A cancelled
// refresh never reaches this point, leaving the previous vector intact.
func (db *DB) SetProfileEmbedding(ctx context.Context, profileID uuid.UUID, vec pgvector.Vector) error {
	now := time.Now().UTC()
	tag, err := db.pool.Exec(ctx,
		`UPDATE company_tender_profiles SET
		 embedding = $2, embedding_updated_at = $3, embedding_dirty = false,
		 interactions_since_embed = 0, updated_at = $3
		 WHERE id = $1`,
		profileID, vec, now)
	if err != nil {
		return fmt.Errorf("storage: set profile embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkProfileDirty flags the profile for re-embedding.
func (db *DB) MarkProfileDirty(ctx context.Context, profileID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE company_tender_profiles SET embedding_dirty = true, updated_at = now()
		 WHERE id = $1`, profileID)
	if err != nil {
		return fmt.Errorf("storage: mark profile dirty: %w", err)
	}
	return nil
}

// AcquireReembedLease takes the per-profile re-embed lease via compare-and-set.
// Returns false when another holder owns an unexpired lease. The lease bounds
// cross-process duplication; in-process callers dedupe via singleflight first.
func (db *DB) AcquireReembedLease(ctx context.Context, profileID uuid.UUID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	tag, err := db.pool.Exec(ctx,
		`UPDATE company_tender_profiles SET reembed_lease_until = $2
		 WHERE id = $1 AND (reembed_lease_until IS NULL OR reembed_lease_until < $3)`,
		profileID, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("storage: acquire reembed lease: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseReembedLease clears the lease after a refresh completes or fails.
func (db *DB) ReleaseReembedLease(ctx context.Context, profileID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE company_tender_profiles SET reembed_lease_until = NULL WHERE id = $1`, profileID)
	if err != nil {
		return fmt.Errorf("storage: release reembed lease: %w", err)
	}
	return nil
}

// ListDirtyProfiles returns profiles eligible for an implicit re-embed:
// dirty with the minimum interval elapsed, or past the interaction budget.
func (db *DB) ListDirtyProfiles(ctx context.Context, minInterval time.Duration, maxInteractions, limit int) ([]model.CompanyProfile, error) {
	cutoff := time.Now().UTC().Add(-minInterval)
	rows, err := db.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM company_tender_profiles
		 WHERE (embedding_dirty AND (embedding_updated_at IS NULL OR embedding_updated_at <= $1))
		    OR interactions_since_embed >= $2
		 ORDER BY updated_at ASC
		 LIMIT $3`, cutoff, maxInteractions, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list dirty profiles: %w", err)
	}
	defer rows.Close()

	var out []model.CompanyProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetDiscoveredInterests overwrites the learned-interest list and marks the
// embedding dirty, since tier-1-relevant preferences changed.
func (db *DB) SetDiscoveredInterests(ctx context.Context, profileID uuid.UUID, interests []string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE company_tender_profiles SET
		 discovered_interests = $2, embedding_dirty = true, updated_at = now()
		 WHERE id = $1`, profileID, interests)
	if err != nil {
		return fmt.Errorf("storage: set discovered interests: %w", err)
	}
	return nil
}
