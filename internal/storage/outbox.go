package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Outbox operations. Every ANN-index mutation is written here in the same
// transaction as the Postgres change; a background worker drains the table.
const (
	outboxOpUpsert = "upsert"
	outboxOpDelete = "delete"
)

// OutboxEntry is one pending vector-index mutation.
type OutboxEntry struct {
	ID        int64
	TenderID  uuid.UUID
	Op        string
	Attempts  int
	CreatedAt time.Time
}

// enqueueOutboxTx appends a vector-index mutation within an open transaction.
func enqueueOutboxTx(ctx context.Context, tx pgx.Tx, tenderID uuid.UUID, op string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO vector_outbox (tender_id, op) VALUES ($1, $2)`, tenderID, op)
	if err != nil {
		return fmt.Errorf("storage: enqueue outbox: %w", err)
	}
	return nil
}

// ClaimOutboxBatch returns up to limit pending entries, oldest first.
// Delivery is idempotent (vector upserts), so a single drain worker suffices
// and no row locking is needed.
func (db *DB) ClaimOutboxBatch(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, tender_id, op, attempts, created_at FROM vector_outbox
		 ORDER BY id ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: claim outbox batch: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.TenderID, &e.Op, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan outbox entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteOutboxEntries removes delivered entries.
func (db *DB) DeleteOutboxEntries(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.pool.Exec(ctx, `DELETE FROM vector_outbox WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("storage: delete outbox entries: %w", err)
	}
	return nil
}

// BumpOutboxAttempts records a failed delivery so retries are visible.
func (db *DB) BumpOutboxAttempts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.pool.Exec(ctx,
		`UPDATE vector_outbox SET attempts = attempts + 1 WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("storage: bump outbox attempts: %w", err)
	}
	return nil
}

// OutboxDepth returns the number of pending entries, for health reporting.
func (db *DB) OutboxDepth(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM vector_outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: outbox depth: %w", err)
	}
	return n, nil
}
