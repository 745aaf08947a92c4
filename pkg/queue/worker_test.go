package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeLeaser struct {
	batches    [][]Job
	acked      []string
	nacked     []string
	nackDelays []time.Duration
}

func (f *fakeLeaser) Lease(ctx context.Context, queue Name, n int, leaseDuration time.Duration) ([]Job, error) {
	if len(f.batches) == 0 {
		return nil, nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	return next, nil
}

func (f *fakeLeaser) Ack(ctx context.Context, id string) error {
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeLeaser) NackAfter(ctx context.Context, id string, maxAttempts int, delay time.Duration) error {
	f.nacked = append(f.nacked, id)
	f.nackDelays = append(f.nackDelays, delay)
	return nil
}

func newTestDriver(store leaser, handler Handler) *Driver {
	return &Driver{
		store:         store,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		queue:         QueueOCR,
		batchSize:     10,
		leaseDuration: time.Minute,
		maxAttempts:   3,
		handler:       handler,
	}
}

func TestDrain_AcksSuccessfulJobs(t *testing.T) {
	store := &fakeLeaser{batches: [][]Job{{{ID: "job1"}, {ID: "job2"}}}}
	d := newTestDriver(store, func(ctx context.Context, job Job) error { return nil })

	d.drain(context.Background())

	if len(store.acked) != 2 {
		t.Fatalf("acked = %v, want 2 jobs acked", store.acked)
	}
	if len(store.nacked) != 0 {
		t.Errorf("nacked = %v, want none", store.nacked)
	}
}

func TestDrain_NacksFailedJobs(t *testing.T) {
	store := &fakeLeaser{batches: [][]Job{{{ID: "job1"}}}}
	d := newTestDriver(store, func(ctx context.Context, job Job) error { return errors.New("boom") })

	d.drain(context.Background())

	if len(store.nacked) != 1 || store.nacked[0] != "job1" {
		t.Fatalf("nacked = %v, want [job1]", store.nacked)
	}
	if len(store.acked) != 0 {
		t.Errorf("acked = %v, want none", store.acked)
	}
}

type delayedError struct{ delay time.Duration }

func (e delayedError) Error() string            { return "retry later" }
func (e delayedError) RetryDelay() time.Duration { return e.delay }

func TestDrain_UsesHandlerRetryDelay(t *testing.T) {
	store := &fakeLeaser{batches: [][]Job{{{ID: "job1"}}}}
	d := newTestDriver(store, func(ctx context.Context, job Job) error {
		return delayedError{delay: 4 * time.Second}
	})

	d.drain(context.Background())

	if len(store.nackDelays) != 1 || store.nackDelays[0] != 4*time.Second {
		t.Fatalf("nackDelays = %v, want [4s]", store.nackDelays)
	}
}

func TestDrain_DrainsMultipleBatchesUntilEmpty(t *testing.T) {
	store := &fakeLeaser{batches: [][]Job{
		{{ID: "job1"}},
		{{ID: "job2"}},
		nil,
	}}
	d := newTestDriver(store, func(ctx context.Context, job Job) error { return nil })

	d.drain(context.Background())

	if len(store.acked) != 2 {
		t.Fatalf("acked = %v, want 2 jobs across batches", store.acked)
	}
}

func TestWakeupChannel(t *testing.T) {
	if got, want := wakeupChannel(QueueOCR), "docrouter:queue:ocr:wakeup"; got != want {
		t.Errorf("wakeupChannel(QueueOCR) = %q, want %q", got, want)
	}
}
