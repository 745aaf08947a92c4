// Package queue implements DocRouter's durable job queue: a Postgres-backed
// table leased with FOR UPDATE SKIP LOCKED, with Redis pub/sub layered on
// top purely as a wakeup signal so workers do not busy-poll. Postgres is
// the system of record; Redis is never consulted for correctness.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/analytiqhub/docrouter/internal/idgen"
	"github.com/analytiqhub/docrouter/internal/storage"
)

// Name identifies a logical queue (workers only ever lease from their own
// queue name).
type Name string

const (
	QueueOCR Name = "ocr"
	QueueLLM Name = "llm"
)

// Job is a leased unit of work.
type Job struct {
	ID          string
	Queue       Name
	PayloadJSON []byte
	Attempts    int
	LeasedUntil *time.Time
	CreatedAt   time.Time
}

// Store is the Postgres-backed job queue.
type Store struct {
	dbtx storage.DBTX
	rdb  *redis.Client
}

// NewStore creates a Store. rdb may be nil, in which case Enqueue skips the
// wakeup publish and workers fall back to polling on their own interval.
func NewStore(dbtx storage.DBTX, rdb *redis.Client) *Store {
	return &Store{dbtx: dbtx, rdb: rdb}
}

func wakeupChannel(q Name) string {
	return "docrouter:queue:" + string(q) + ":wakeup"
}

// Enqueue inserts a new job and publishes a wakeup notification.
func (s *Store) Enqueue(ctx context.Context, queue Name, payloadJSON []byte) (string, error) {
	id := idgen.New()
	_, err := s.dbtx.Exec(ctx, `
		INSERT INTO job_queue (id, queue, payload, attempts, leased_until, created_at)
		VALUES ($1, $2, $3, 0, NULL, now())
	`, id, string(queue), payloadJSON)
	if err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}

	if s.rdb != nil {
		s.rdb.Publish(ctx, wakeupChannel(queue), id)
	}

	return id, nil
}

// Lease atomically claims up to n jobs from queue whose lease has expired
// (or never existed), extending their lease by leaseDuration and
// incrementing their attempt counter. Uses FOR UPDATE SKIP LOCKED so
// concurrent workers never double-lease a job.
func (s *Store) Lease(ctx context.Context, queue Name, n int, leaseDuration time.Duration) ([]Job, error) {
	rows, err := s.dbtx.Query(ctx, `
		WITH candidates AS (
			SELECT id FROM job_queue
			WHERE queue = $1 AND (leased_until IS NULL OR leased_until < now())
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE job_queue
		SET leased_until = now() + $3::interval, attempts = attempts + 1
		WHERE id IN (SELECT id FROM candidates)
		RETURNING id, queue, payload, attempts, leased_until, created_at
	`, string(queue), n, leaseDuration.String())
	if err != nil {
		return nil, fmt.Errorf("leasing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var q string
		if err := rows.Scan(&j.ID, &q, &j.PayloadJSON, &j.Attempts, &j.LeasedUntil, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning leased job: %w", err)
		}
		j.Queue = Name(q)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leased jobs: %w", err)
	}
	return jobs, nil
}

// Ack deletes a successfully processed job.
func (s *Store) Ack(ctx context.Context, id string) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM job_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("acking job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Nack releases a job's lease immediately so it becomes eligible for
// re-leasing, or deletes it if it has exhausted maxAttempts.
func (s *Store) Nack(ctx context.Context, id string, maxAttempts int) error {
	return s.NackAfter(ctx, id, maxAttempts, 0)
}

// NackAfter is Nack with a caller-chosen retry delay, for handlers that
// need exponential backoff (OCR/LLM provider retries) rather than
// immediate re-leasing.
func (s *Store) NackAfter(ctx context.Context, id string, maxAttempts int, delay time.Duration) error {
	var attempts int
	err := s.dbtx.QueryRow(ctx, `SELECT attempts FROM job_queue WHERE id = $1`, id).Scan(&attempts)
	if err != nil {
		return fmt.Errorf("reading job attempts: %w", err)
	}

	if attempts >= maxAttempts {
		_, err := s.dbtx.Exec(ctx, `DELETE FROM job_queue WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("dead-lettering exhausted job: %w", err)
		}
		return nil
	}

	if delay <= 0 {
		_, err = s.dbtx.Exec(ctx, `UPDATE job_queue SET leased_until = NULL WHERE id = $1`, id)
	} else {
		_, err = s.dbtx.Exec(ctx, `UPDATE job_queue SET leased_until = now() + $2::interval WHERE id = $1`, id, delay.String())
	}
	if err != nil {
		return fmt.Errorf("releasing job lease: %w", err)
	}
	return nil
}

// ReapExpired releases any job whose lease has expired, making it eligible
// for re-leasing by the next Lease call. This is implicit in Lease's WHERE
// clause (leased_until < now()) but exposed separately for workers that
// want to proactively sweep and requeue stuck jobs, e.g. after a crash.
func (s *Store) ReapExpired(ctx context.Context, queue Name) (int64, error) {
	tag, err := s.dbtx.Exec(ctx, `
		UPDATE job_queue SET leased_until = NULL
		WHERE queue = $1 AND leased_until IS NOT NULL AND leased_until < now()
	`, string(queue))
	if err != nil {
		return 0, fmt.Errorf("reaping expired leases: %w", err)
	}
	return tag.RowsAffected(), nil
}
