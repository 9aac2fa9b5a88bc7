package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/service/embedding"
	"github.com/chereta-io/chereta/internal/storage"
)

// ErrEmbeddingUnavailable is returned when the upstream embedding provider
// cannot serve the refresh. The previous vector stays in place and the
// profile remains dirty.
var ErrEmbeddingUnavailable = errors.New("feedback: embedding provider unavailable")

// Reembedder refreshes profile embeddings. Refreshes are single-flight per
// profile, both in-process via singleflight and across replicas via a
// database lease.
type Reembedder struct {
	db       *storage.DB
	provider embedding.Provider
	logger   *slog.Logger

	leaseTTL        time.Duration
	minInterval     time.Duration
	maxInteractions int

	group singleflight.Group
}

func NewReembedder(db *storage.DB, provider embedding.Provider, leaseTTL, minInterval time.Duration, maxInteractions int, logger *slog.Logger) *Reembedder {
	return &Reembedder{
		db:              db,
		provider:        provider,
		logger:          logger,
		leaseTTL:        leaseTTL,
		minInterval:     minInterval,
		maxInteractions: maxInteractions,
	}
}

// RefreshByCompany resolves the profile and refreshes it. Used by the
// explicit refresh endpoint, which always reembeds regardless of the dirty
// flag.
func (r *Reembedder) RefreshByCompany(ctx context.Context, companyID uuid.UUID) (bool, error) {
	profile, err := r.db.GetProfileByCompany(ctx, companyID)
	if err != nil {
		return false, err
	}
	return r.Refresh(ctx, profile)
}

// Refresh computes a fresh embedding for the profile and swaps it in
// atomically. Returns false without error when another caller holds the
// refresh lease. A failed or cancelled refresh leaves the previous vector
// and the dirty flag intact.
func (r *Reembedder) Refresh(ctx context.Context, profile model.CompanyProfile) (bool, error) {
	v, err, _ := r.group.Do(profile.ID.String(), func() (any, error) {
		return r.refreshLeased(ctx, profile)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (r *Reembedder) refreshLeased(ctx context.Context, profile model.CompanyProfile) (bool, error) {
	acquired, err := r.db.AcquireReembedLease(ctx, profile.ID, r.leaseTTL)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.db.ReleaseReembedLease(releaseCtx, profile.ID); err != nil {
			r.logger.Warn("reembed lease release failed", "profile_id", profile.ID, "error", err)
		}
	}()

	start := time.Now()
	text := embedding.ProfileText(profile)
	vec, err := r.provider.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, embedding.ErrUpstreamUnavailable) {
			return false, fmt.Errorf("%w: %s", ErrEmbeddingUnavailable, err)
		}
		return false, fmt.Errorf("feedback: embed profile: %w", err)
	}

	if err := r.db.SetProfileEmbedding(ctx, profile.ID, vec); err != nil {
		return false, err
	}
	r.logger.Info("profile reembedded",
		"profile_id", profile.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true, nil
}

// RunImplicit periodically refreshes profiles whose dirty conditions are
// met: the dirty flag with the minimum interval elapsed, or enough
// interactions accumulated since the last embed. Runs until ctx is
// cancelled.
func (r *Reembedder) RunImplicit(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.RefreshDirty(ctx, batchSize); err != nil {
				r.logger.Error("implicit reembed sweep failed", "error", err)
			} else if n > 0 {
				r.logger.Info("implicit reembed sweep done", "refreshed", n)
			}
		}
	}
}

// RefreshDirty refreshes up to limit eligible profiles and returns how many
// were actually reembedded.
func (r *Reembedder) RefreshDirty(ctx context.Context, limit int) (int, error) {
	profiles, err := r.db.ListDirtyProfiles(ctx, r.minInterval, r.maxInteractions, limit)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, p := range profiles {
		ok, err := r.Refresh(ctx, p)
		if err != nil {
			if errors.Is(err, ErrEmbeddingUnavailable) {
				// The provider is down; the rest of the batch would fail too.
				return refreshed, err
			}
			r.logger.Error("profile reembed failed", "profile_id", p.ID, "error", err)
			continue
		}
		if ok {
			refreshed++
		}
	}
	return refreshed, nil
}
