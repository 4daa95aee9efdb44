package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/thumbforge/thumbforge/internal/job"
	"github.com/thumbforge/thumbforge/internal/store"
	"github.com/thumbforge/thumbforge/internal/thumb"
)

// resultPayload is the metadata persisted alongside a completed job.
type resultPayload struct {
	thumb.Metadata
	SourceContentType string `json:"source_content_type,omitempty"`
	SourceURL         string `json:"source_url"`
}

// runJob drives one delivery through the state machine. A nil return means
// the delivery is consumed: the job reached a terminal state, or it was
// already handled elsewhere and the redelivery is discarded. A retryable
// return means the delivery must be requeued.
func (w *Worker) runJob(ctx context.Context, jobID string) error {
	j, err := w.store.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			w.logger.Warn("Job missing, discarding delivery",
				slog.String("job_id", jobID),
			)
			return nil
		}
		return NewRetryableError(fmt.Errorf("failed to load job: %w", err))
	}

	// At-least-once delivery: a redelivered terminal job is a silent no-op.
	if j.Terminal() {
		w.logger.Debug("Job already terminal, discarding delivery",
			slog.String("job_id", jobID),
			slog.String("status", string(j.Status)),
		)
		return nil
	}

	claimed, err := w.store.Transition(ctx, jobID, job.StatusPending, job.StatusProcessing, store.Fields{})
	if err != nil {
		if errors.Is(err, store.ErrStaleState) {
			// Another worker won the claim; nothing to do.
			w.logger.Debug("Job claim lost, discarding delivery",
				slog.String("job_id", jobID),
			)
			return nil
		}
		return NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	w.logger.Info("Processing job",
		slog.String("job_id", jobID),
		slog.String("source_url", claimed.SourceURL),
		slog.Int("attempts", claimed.Attempts),
	)

	data, contentType, err := w.fetcher.Fetch(ctx, claimed.SourceURL)
	if err != nil {
		return w.failJob(ctx, jobID, err)
	}

	thumbBytes, meta, err := w.transformer.Transform(ctx, data)
	if err != nil {
		return w.failJob(ctx, jobID, err)
	}

	// The artifact must exist before the job is marked completed; a job may
	// never report completed without a durably stored result.
	ref, err := w.results.Put(ctx, jobID, thumbBytes)
	if err != nil {
		return w.failJob(ctx, jobID, fmt.Errorf("result store write failed: %w", err))
	}

	payload := resultPayload{
		Metadata:          *meta,
		SourceContentType: contentType,
		SourceURL:         claimed.SourceURL,
	}
	resultJSON, err := json.Marshal(payload)
	if err != nil {
		return w.failJob(ctx, jobID, fmt.Errorf("result metadata encoding failed: %w", err))
	}

	if _, err := w.store.Transition(ctx, jobID, job.StatusProcessing, job.StatusCompleted, store.Fields{
		ResultRef: &ref,
		Result:    resultJSON,
	}); err != nil {
		if errors.Is(err, store.ErrStaleState) {
			return nil
		}
		return NewRetryableError(fmt.Errorf("failed to finalize job: %w", err))
	}

	w.logger.Info("Job completed",
		slog.String("job_id", jobID),
		slog.String("result_ref", ref),
	)
	return nil
}

// failJob records a terminal pipeline failure. The classified error text
// becomes the job's error; the delivery is then consumed.
func (w *Worker) failJob(ctx context.Context, jobID string, cause error) error {
	msg := cause.Error()
	if _, err := w.store.Transition(ctx, jobID, job.StatusProcessing, job.StatusFailed, store.Fields{
		Error: &msg,
	}); err != nil {
		if errors.Is(err, store.ErrStaleState) {
			return nil
		}
		return NewRetryableError(fmt.Errorf("failed to record job failure: %w", err))
	}

	w.logger.Warn("Job failed",
		slog.String("job_id", jobID),
		slog.String("error", msg),
	)
	return nil
}
