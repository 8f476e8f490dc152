package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/cinema-booking/internal/queue"
)

// OutboxRepo stores booking events in the same transaction as the state
// change that produced them.  A relay later publishes them to the broker.
type OutboxRepo struct {
	db *sql.DB
}

// NewOutboxRepo returns a new OutboxRepo bound to the given database.
func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{db: db} }

// EnqueueTx writes the event inside the caller's transaction.
func (r *OutboxRepo) EnqueueTx(ctx context.Context, tx *sql.Tx, evt queue.Event) error {
	const q = `INSERT INTO booking_outbox (id, event_type, booking_id, payload, created_at)
	           VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, evt.ID, evt.Type, evt.BookingID, []byte(evt.Payload), evt.OccurredAt)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", evt.Type, err)
	}
	return nil
}

// RelayBatch claims up to limit unpublished events, oldest first, and hands
// each to publish.  Claimed rows are locked with SKIP LOCKED so concurrent
// relays work on disjoint batches.  Successful events are marked published;
// failed ones have their attempt counter and last error updated and are
// retried on a later round.  It returns the number of events published.
func (r *OutboxRepo) RelayBatch(ctx context.Context, limit int, publish func(context.Context, queue.Event) error) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const sel = `SELECT id, event_type, booking_id, payload, created_at
	             FROM booking_outbox
	             WHERE published_at IS NULL
	             ORDER BY created_at
	             LIMIT ?
	             FOR UPDATE SKIP LOCKED`
	rows, err := tx.QueryContext(ctx, sel, limit)
	if err != nil {
		return 0, err
	}
	var batch []queue.Event
	for rows.Next() {
		var evt queue.Event
		var payload []byte
		if err := rows.Scan(&evt.ID, &evt.Type, &evt.BookingID, &payload, &evt.OccurredAt); err != nil {
			rows.Close()
			return 0, err
		}
		evt.Payload = payload
		batch = append(batch, evt)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	published := 0
	for _, evt := range batch {
		if pubErr := publish(ctx, evt); pubErr != nil {
			msg := pubErr.Error()
			if len(msg) > 500 {
				msg = msg[:500]
			}
			const fail = `UPDATE booking_outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`
			if _, err := tx.ExecContext(ctx, fail, msg, evt.ID); err != nil {
				return published, err
			}
			continue
		}
		const done = `UPDATE booking_outbox SET published_at = UTC_TIMESTAMP(6), attempts = attempts + 1 WHERE id = ?`
		if _, err := tx.ExecContext(ctx, done, evt.ID); err != nil {
			return published, err
		}
		published++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return published, nil
}
