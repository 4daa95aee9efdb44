// Package submit is the submission boundary: it applies the duplicate policy
// and enqueues newly created jobs.
package submit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thumbforge/thumbforge/internal/job"
	"github.com/thumbforge/thumbforge/internal/queue"
	"github.com/thumbforge/thumbforge/internal/store"
)

// Service creates jobs under the configured duplicate-handling mode.
type Service struct {
	store  store.JobStore
	queue  queue.Queue
	mode   job.DuplicateMode
	logger *slog.Logger
}

// NewService creates a submission service.
func NewService(jobStore store.JobStore, q queue.Queue, mode job.DuplicateMode, logger *slog.Logger) *Service {
	return &Service{
		store:  jobStore,
		queue:  q,
		mode:   mode,
		logger: logger,
	}
}

// Submit evaluates the duplicate policy for sourceURL and, when the policy
// creates a new job, enqueues its ID. The returned flag reports whether a
// new job was created (as opposed to an existing one being reused).
// A *store.DuplicateActiveError signals an in-flight duplicate under
// reject-active.
func (s *Service) Submit(ctx context.Context, sourceURL string) (*job.Job, bool, error) {
	sourceURL = job.NormalizeURL(sourceURL)
	fingerprint := job.Fingerprint(sourceURL)

	outcome, err := s.store.Submit(ctx, sourceURL, fingerprint, s.mode)
	if err != nil {
		return nil, false, err
	}

	if !outcome.Created {
		s.logger.Info("Reusing existing job for fingerprint",
			slog.String("job_id", outcome.Job.ID),
			slog.String("status", string(outcome.Job.Status)),
		)
		return outcome.Job, false, nil
	}

	if err := s.queue.Push(ctx, outcome.Job.ID); err != nil {
		// The row exists but was never enqueued; surface the failure so the
		// caller does not treat the job as scheduled.
		s.logger.Error("Failed to enqueue job",
			slog.String("job_id", outcome.Job.ID),
			slog.Any("error", err),
		)
		return nil, false, fmt.Errorf("job %s created but not enqueued: %w", outcome.Job.ID, err)
	}

	s.logger.Info("Job submitted",
		slog.String("job_id", outcome.Job.ID),
		slog.String("source_url", sourceURL),
	)
	return outcome.Job, true, nil
}
