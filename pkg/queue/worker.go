package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler processes a single leased job. Returning an error causes the
// driver to Nack the job; a nil return Acks it.
type Handler func(ctx context.Context, job Job) error

// leaser is the subset of *Store the Driver needs, broken out so tests can
// substitute a fake without a real database.
type leaser interface {
	Lease(ctx context.Context, queue Name, n int, leaseDuration time.Duration) ([]Job, error)
	Ack(ctx context.Context, id string) error
	NackAfter(ctx context.Context, id string, maxAttempts int, delay time.Duration) error
}

// retryDelayer is implemented by handler errors that want a specific
// backoff before the job becomes eligible for re-leasing, instead of the
// default immediate release.
type retryDelayer interface {
	RetryDelay() time.Duration
}

// Driver runs a lease/handle/ack loop for a single queue, waking either on
// a poll interval or a Redis wakeup publish, whichever comes first. This
// mirrors the escalation engine's ticker-plus-pub/sub shape, but drives
// row leasing instead of per-organization schema iteration: all
// organizations share one job_queue table, so a single driver loop serves
// every tenant.
type Driver struct {
	store         leaser
	rdb           *redis.Client
	logger        *slog.Logger
	queue         Name
	batchSize     int
	leaseDuration time.Duration
	pollInterval  time.Duration
	maxAttempts   int
	handler       Handler
}

// NewDriver creates a Driver. rdb may be nil, in which case the driver
// polls purely on pollInterval.
func NewDriver(store *Store, rdb *redis.Client, logger *slog.Logger, queue Name, batchSize int, leaseDuration, pollInterval time.Duration, maxAttempts int, handler Handler) *Driver {
	return &Driver{
		store:         store,
		rdb:           rdb,
		logger:        logger,
		queue:         queue,
		batchSize:     batchSize,
		leaseDuration: leaseDuration,
		pollInterval:  pollInterval,
		maxAttempts:   maxAttempts,
		handler:       handler,
	}
}

// Run blocks, leasing and handling jobs until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	var wakeups <-chan *redis.Message
	if d.rdb != nil {
		sub := d.rdb.Subscribe(ctx, wakeupChannel(d.queue))
		defer sub.Close()
		wakeups = sub.Channel()
	}

	for {
		d.drain(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wakeups:
		}
	}
}

// drain leases and handles jobs until the queue is empty.
func (d *Driver) drain(ctx context.Context) {
	for {
		jobs, err := d.store.Lease(ctx, d.queue, d.batchSize, d.leaseDuration)
		if err != nil {
			d.logger.Error("leasing jobs", "queue", d.queue, "error", err)
			return
		}
		if len(jobs) == 0 {
			return
		}

		for _, job := range jobs {
			if err := d.handler(ctx, job); err != nil {
				d.logger.Warn("job handler failed", "queue", d.queue, "job_id", job.ID, "attempts", job.Attempts, "error", err)
				var delay time.Duration
				var rd retryDelayer
				if errors.As(err, &rd) {
					delay = rd.RetryDelay()
				}
				if nerr := d.store.NackAfter(ctx, job.ID, d.maxAttempts, delay); nerr != nil {
					d.logger.Error("nacking job", "queue", d.queue, "job_id", job.ID, "error", nerr)
				}
				continue
			}
			if aerr := d.store.Ack(ctx, job.ID); aerr != nil {
				d.logger.Error("acking job", "queue", d.queue, "job_id", job.ID, "error", aerr)
			}
		}
	}
}
