package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chereta-io/chereta/internal/storage"
)

// Indexer is the write side of the vector index, implemented by QdrantIndex.
type Indexer interface {
	Upsert(ctx context.Context, points []Point) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
}

// OutboxWorker drains the vector_outbox table into the ANN index. Every index
// mutation is written to the outbox in the same transaction as its Postgres
// change, so the index lags Postgres by at most one poll interval plus one
// retry backoff. Delivery is at-least-once; upserts and deletes are
// idempotent, so replays are harmless.
type OutboxWorker struct {
	db       *storage.DB
	index    Indexer
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewOutboxWorker creates a worker polling at interval with the given batch size.
func NewOutboxWorker(db *storage.DB, index Indexer, interval time.Duration, batch int, logger *slog.Logger) *OutboxWorker {
	if batch <= 0 {
		batch = 200
	}
	return &OutboxWorker{db: db, index: index, interval: interval, batch: batch, logger: logger}
}

// Run polls until ctx is cancelled. A failed batch is retried on the next
// tick with its attempt counter bumped; entries are only removed after the
// index acknowledged them.
func (w *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.DrainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Warn("outbox drain failed", "error", err)
			}
		}
	}
}

// DrainOnce processes a single batch. Exported for startup flushes and tests.
func (w *OutboxWorker) DrainOnce(ctx context.Context) error {
	entries, err := w.db.ClaimOutboxBatch(ctx, w.batch)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	var (
		points    []Point
		deleteIDs []uuid.UUID
		doneIDs   []int64
		failedIDs []int64
	)
	for _, e := range entries {
		switch e.Op {
		case "delete":
			deleteIDs = append(deleteIDs, e.TenderID)
			doneIDs = append(doneIDs, e.ID)
		case "upsert":
			p, err := w.loadPoint(ctx, e.TenderID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					// Tender or vector vanished after enqueue; nothing to index.
					doneIDs = append(doneIDs, e.ID)
					continue
				}
				w.logger.Warn("outbox load point failed", "tender_id", e.TenderID, "error", err)
				failedIDs = append(failedIDs, e.ID)
				continue
			}
			points = append(points, p)
			doneIDs = append(doneIDs, e.ID)
		default:
			w.logger.Warn("outbox unknown op, dropping", "op", e.Op, "id", e.ID)
			doneIDs = append(doneIDs, e.ID)
		}
	}

	if len(points) > 0 {
		if err := w.index.Upsert(ctx, points); err != nil {
			// Keep the whole batch for retry; nothing was acknowledged.
			return errors.Join(err, w.db.BumpOutboxAttempts(ctx, doneIDs))
		}
	}
	if len(deleteIDs) > 0 {
		if err := w.index.DeleteByIDs(ctx, deleteIDs); err != nil {
			return errors.Join(err, w.db.BumpOutboxAttempts(ctx, doneIDs))
		}
	}

	if err := w.db.DeleteOutboxEntries(ctx, doneIDs); err != nil {
		return err
	}
	return w.db.BumpOutboxAttempts(ctx, failedIDs)
}

func (w *OutboxWorker) loadPoint(ctx context.Context, tenderID uuid.UUID) (Point, error) {
	t, err := w.db.GetTender(ctx, tenderID)
	if err != nil {
		return Point{}, err
	}
	vec, err := w.db.GetTenderVector(ctx, tenderID)
	if err != nil {
		return Point{}, err
	}
	return Point{
		ID:           t.ID,
		Category:     t.Category,
		Region:       t.Region,
		Status:       string(t.Status),
		Language:     t.Language,
		Deadline:     t.Deadline,
		BudgetAmount: t.Budget,
		Embedding:    vec.Slice(),
	}, nil
}
