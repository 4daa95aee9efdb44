// Package worker contains the orchestrator: a fixed pool of goroutines that
// dequeue job identifiers and drive each job through fetch, transform, and
// finalize. All status writes go through the store's compare-and-set
// transition; the loop never exits because a single job failed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thumbforge/thumbforge/internal/fetch"
	"github.com/thumbforge/thumbforge/internal/queue"
	"github.com/thumbforge/thumbforge/internal/result"
	"github.com/thumbforge/thumbforge/internal/store"
	"github.com/thumbforge/thumbforge/internal/thumb"
)

// Config holds orchestrator dependencies and tuning.
type Config struct {
	Logger       *slog.Logger
	Store        store.JobStore
	Queue        queue.Queue
	Fetcher      *fetch.Fetcher
	Transformer  *thumb.Transformer
	Results      *result.Store
	Concurrency  int
	PopTimeout   time.Duration
	RetryBackoff time.Duration
}

// Worker runs the orchestration loops.
type Worker struct {
	logger       *slog.Logger
	store        store.JobStore
	queue        queue.Queue
	fetcher      *fetch.Fetcher
	transformer  *thumb.Transformer
	results      *result.Store
	concurrency  int
	popTimeout   time.Duration
	retryBackoff time.Duration
	workerID     string
	wg           sync.WaitGroup
}

// New creates a Worker from cfg.
func New(cfg *Config) *Worker {
	popTimeout := cfg.PopTimeout
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 2 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		logger:       cfg.Logger,
		store:        cfg.Store,
		queue:        cfg.Queue,
		fetcher:      cfg.Fetcher,
		transformer:  cfg.Transformer,
		results:      cfg.Results,
		concurrency:  concurrency,
		popTimeout:   popTimeout,
		retryBackoff: retryBackoff,
		workerID:     "worker-" + uuid.New().String()[:8],
	}
}

// Start spawns the worker pool. Each goroutine runs its own loop so a
// blocked fetch on one job never stalls the others.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// Stop waits for all worker goroutines to drain after the context passed to
// Start has been canceled.
func (w *Worker) Stop() {
	w.wg.Wait()
	w.logger.Info("Worker pool stopped",
		slog.String("worker_id", w.workerID),
	)
}

func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		if ctx.Err() != nil {
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return
		}

		delivery, err := w.queue.Pop(ctx, w.popTimeout)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrEmpty):
				continue
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				continue
			default:
				w.logger.Error("Failed to pop from queue",
					slog.String("worker_name", workerName),
					slog.Any("error", err),
				)
				w.sleep(ctx, w.retryBackoff)
				continue
			}
		}

		w.handleDelivery(ctx, workerName, delivery)
	}
}

func (w *Worker) handleDelivery(ctx context.Context, workerName string, delivery *queue.Delivery) {
	err := w.runJob(ctx, delivery.JobID)

	switch {
	case err == nil:
		if ackErr := delivery.Ack(); ackErr != nil {
			w.logger.Error("Failed to ACK delivery",
				slog.String("worker_name", workerName),
				slog.String("job_id", delivery.JobID),
				slog.Any("error", ackErr),
			)
		}

	case isRetryable(err):
		// Infrastructure trouble: the job was never really attempted. Put it
		// back and back off before touching the store again.
		w.logger.Warn("Requeueing job after infrastructure error",
			slog.String("worker_name", workerName),
			slog.String("job_id", delivery.JobID),
			slog.Any("error", err),
		)
		if nackErr := delivery.Nack(true); nackErr != nil {
			w.logger.Error("Failed to NACK delivery",
				slog.String("worker_name", workerName),
				slog.String("job_id", delivery.JobID),
				slog.Any("error", nackErr),
			)
		}
		w.sleep(ctx, w.retryBackoff)

	default:
		w.logger.Error("Discarding delivery",
			slog.String("worker_name", workerName),
			slog.String("job_id", delivery.JobID),
			slog.Any("error", err),
		)
		if nackErr := delivery.Nack(false); nackErr != nil {
			w.logger.Error("Failed to NACK delivery",
				slog.String("worker_name", workerName),
				slog.String("job_id", delivery.JobID),
				slog.Any("error", nackErr),
			)
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
