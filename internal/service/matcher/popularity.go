package matcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chereta-io/chereta/internal/storage"
)

// popularityTTL bounds how stale the cached ceiling may get. The ceiling
// moves slowly, so refreshing a few times per hour is plenty.
const popularityTTL = 5 * time.Minute

// popularityQuantile is the percentile used as the normalization ceiling,
// so a single viral tender cannot flatten every other popularity signal.
const popularityQuantile = 0.95

type popularitySnapshot struct {
	ceiling   float64
	fetchedAt time.Time
}

// PopularityTracker serves the popularity normalization ceiling from a
// cached percentile of live tenders' popularity scores. Concurrent refreshes
// collapse into one query.
type PopularityTracker struct {
	db     *storage.DB
	logger *slog.Logger

	cached atomic.Value // popularitySnapshot
	group  singleflight.Group
}

func NewPopularityTracker(db *storage.DB, logger *slog.Logger) *PopularityTracker {
	return &PopularityTracker{db: db, logger: logger}
}

// Ceiling returns the current normalization ceiling. Failures degrade to the
// last known value, or zero when there is none, never to an error.
func (p *PopularityTracker) Ceiling(ctx context.Context) float64 {
	if snap, ok := p.cached.Load().(popularitySnapshot); ok && time.Since(snap.fetchedAt) < popularityTTL {
		return snap.ceiling
	}

	v, err, _ := p.group.Do("ceiling", func() (any, error) {
		ceiling, err := p.db.PopularityPercentile(ctx, popularityQuantile)
		if err != nil {
			return nil, err
		}
		snap := popularitySnapshot{ceiling: ceiling, fetchedAt: time.Now()}
		p.cached.Store(snap)
		return snap, nil
	})
	if err != nil {
		p.logger.Warn("popularity ceiling refresh failed", "error", err)
		if snap, ok := p.cached.Load().(popularitySnapshot); ok {
			return snap.ceiling
		}
		return 0
	}
	return v.(popularitySnapshot).ceiling
}
