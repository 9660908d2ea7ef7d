package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/store"
)

const queueColumns = `id, person_id, direction, priority, status, attempts,
	last_attempt_at, created_at`

func scanQueueItem(row pgx.Row) (*model.QueueItem, error) {
	var it model.QueueItem
	err := row.Scan(&it.ID, &it.PersonID, &it.Direction, &it.Priority,
		&it.Status, &it.Attempts, &it.LastAttemptAt, &it.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan queue item: %w", err)
	}
	return &it, nil
}

func (s *Store) Enqueue(ctx context.Context, item *model.QueueItem) error {
	if item.Status == "" {
		item.Status = model.StatusPending
	}
	err := s.q.QueryRow(ctx, `
		INSERT INTO research_queue (person_id, direction, priority, status, attempts)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		item.PersonID, item.Direction, item.Priority, item.Status, item.Attempts,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

func (s *Store) OpenQueueItem(ctx context.Context, personID int64, dir model.Direction) (*model.QueueItem, error) {
	return scanQueueItem(s.q.QueryRow(ctx, `
		SELECT `+queueColumns+` FROM research_queue
		WHERE person_id = $1 AND direction = $2 AND status IN ('pending', 'processing')
		ORDER BY id LIMIT 1`, personID, dir))
}

// ClaimNext claims the best pending item using FOR UPDATE SKIP LOCKED so
// concurrent workers never receive the same row. Stale processing items
// (abandoned by a stopped worker) are claimable again.
func (s *Store) ClaimNext(ctx context.Context, staleAfter time.Duration) (*model.QueueItem, error) {
	it, err := scanQueueItem(s.q.QueryRow(ctx, `
		WITH candidate AS (
			SELECT id FROM research_queue
			WHERE status = 'pending'
			   OR (status = 'processing'
			       AND last_attempt_at IS NOT NULL
			       AND last_attempt_at < now() - $1 * interval '1 second')
			ORDER BY priority DESC, created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE research_queue q
		SET status = 'processing', last_attempt_at = now(), attempts = q.attempts + 1
		FROM candidate
		WHERE q.id = candidate.id
		RETURNING `+qualify(queueColumns, "q"),
		staleAfter.Seconds()))
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrEmpty
	}
	return it, err
}

func (s *Store) UpdateQueueItem(ctx context.Context, item *model.QueueItem) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE research_queue
		SET priority=$2, status=$3, attempts=$4, last_attempt_at=$5
		WHERE id=$1`,
		item.ID, item.Priority, item.Status, item.Attempts, item.LastAttemptAt)
	if err != nil {
		return fmt.Errorf("update queue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) QueueCounts(ctx context.Context) (map[model.QueueStatus]int, error) {
	rows, err := s.q.Query(ctx, `SELECT status, count(*) FROM research_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue counts: %w", err)
	}
	defer rows.Close()

	out := make(map[model.QueueStatus]int)
	for rows.Next() {
		var st model.QueueStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan queue count: %w", err)
		}
		out[st] = n
	}
	return out, rows.Err()
}
