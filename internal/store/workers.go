package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RecordWorkerHeartbeat registers or refreshes a worker's pool membership.
// A worker that changes queue simply moves; stale rows age out by last_seen.
func (s *Store) RecordWorkerHeartbeat(ctx context.Context, workerID, queue string) error {
	if workerID == "" {
		return errors.New("worker id required")
	}
	if queue == "" {
		return errors.New("queue required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO workers (worker_id, queue, last_seen) VALUES (?, ?, ?)
         ON CONFLICT(worker_id) DO UPDATE SET queue = excluded.queue, last_seen = excluded.last_seen`,
		workerID,
		queue,
		nowStamp(),
	)
	if err != nil {
		return fmt.Errorf("record worker heartbeat: %w", err)
	}
	return nil
}

// LiveWorkerCount reports how many workers on a queue have heartbeat within
// the cutoff. Comparison happens on parsed times; the stored stamps drop
// trailing zero fractions, so string order is not chronological order.
func (s *Store) LiveWorkerCount(ctx context.Context, queue string, since time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT last_seen FROM workers WHERE queue = ?`, queue)
	if err != nil {
		return 0, fmt.Errorf("live worker count: %w", err)
	}
	defer rows.Close()

	cutoff := since.UTC()
	count := 0
	for rows.Next() {
		var seenRaw string
		if err := rows.Scan(&seenRaw); err != nil {
			return 0, fmt.Errorf("live worker count: %w", err)
		}
		seen, err := parseTimeString(seenRaw)
		if err != nil {
			continue
		}
		if !seen.Before(cutoff) {
			count++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("live worker count: %w", err)
	}
	return count, nil
}

// ListWorkers returns every registered worker, most recently seen first.
func (s *Store) ListWorkers(ctx context.Context) ([]*Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT worker_id, queue, last_seen FROM workers ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []*Worker
	for rows.Next() {
		var (
			workerID string
			queue    string
			seenRaw  string
		)
		if err := rows.Scan(&workerID, &queue, &seenRaw); err != nil {
			return nil, err
		}
		worker := &Worker{WorkerID: workerID, Queue: queue}
		if seen, err := parseTimeString(seenRaw); err == nil {
			worker.LastSeen = seen
		}
		workers = append(workers, worker)
	}
	return workers, rows.Err()
}
