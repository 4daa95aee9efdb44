// Package store provides the durable job record store. The store is the
// single source of truth for job state; every status change goes through the
// conditional Transition primitive.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thumbforge/thumbforge/internal/job"
)

var (
	// ErrJobExists is returned when creating a job whose ID already exists.
	ErrJobExists = errors.New("job already exists")

	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrStaleState is returned when a conditional transition loses the race:
	// the stored status no longer matches the expected one.
	ErrStaleState = errors.New("job status does not match expected status")
)

// DuplicateActiveError reports that a submission was refused because a job
// for the same fingerprint is still in flight. It carries that job so the
// caller can hand it back.
type DuplicateActiveError struct {
	Job *job.Job
}

func (e *DuplicateActiveError) Error() string {
	return fmt.Sprintf("job %s for this fingerprint is already active", e.Job.ID)
}

// Fields carries the columns written alongside a status transition.
type Fields struct {
	Error     *string
	ResultRef *string
	Result    json.RawMessage
}

// Filter narrows List results.
type Filter struct {
	Status        job.Status
	CreatedBefore *time.Time
	CreatedAfter  *time.Time
}

// Outcome is the result of evaluating the duplicate policy for a submission.
// Created reports whether a new row was inserted; only created jobs are
// enqueued by the caller.
type Outcome struct {
	Job     *job.Job
	Created bool
}

// JobStore is the durable record of job identity and state.
type JobStore interface {
	// Create inserts a new pending job. Returns ErrJobExists on an ID clash.
	Create(ctx context.Context, j *job.Job) error

	// GetByID returns the job or ErrJobNotFound.
	GetByID(ctx context.Context, id string) (*job.Job, error)

	// FindByFingerprint returns committed jobs for a fingerprint, most recent
	// first, optionally restricted to the given statuses.
	FindByFingerprint(ctx context.Context, fingerprint string, statuses ...job.Status) ([]job.Job, error)

	// Transition atomically moves a job from expected to next, writing the
	// given fields and advancing updated_at. A claim (pending -> processing)
	// also increments attempts. Returns ErrStaleState if the stored status is
	// not expected at the moment of update.
	Transition(ctx context.Context, id string, expected, next job.Status, fields Fields) (*job.Job, error)

	// List returns a page of jobs ordered by creation time descending, plus
	// the total count matching the filter.
	List(ctx context.Context, filter Filter, limit, offset int) ([]job.Job, int, error)

	// CountByStatus returns the number of jobs in each status.
	CountByStatus(ctx context.Context) (map[job.Status]int, error)

	// Submit evaluates the duplicate policy for a fingerprint and, when the
	// policy allows, inserts a new pending job. The evaluation is serialized
	// per fingerprint so concurrent submissions cannot both bypass
	// reject-active; that mode refuses with *DuplicateActiveError.
	Submit(ctx context.Context, sourceURL, fingerprint string, mode job.DuplicateMode) (*Outcome, error)
}

// validateTransition enforces the legal edges and the error/result
// exclusivity invariant before any write happens.
func validateTransition(expected, next job.Status, fields Fields) error {
	if !job.CanTransition(expected, next) {
		return fmt.Errorf("illegal transition %s -> %s", expected, next)
	}
	switch next {
	case job.StatusProcessing:
		if fields.Error != nil || fields.ResultRef != nil || fields.Result != nil {
			return fmt.Errorf("transition to %s carries no fields", next)
		}
	case job.StatusCompleted:
		if fields.ResultRef == nil {
			return fmt.Errorf("transition to %s requires a result_ref", next)
		}
		if fields.Error != nil {
			return fmt.Errorf("transition to %s must not carry an error", next)
		}
	case job.StatusFailed:
		if fields.Error == nil {
			return fmt.Errorf("transition to %s requires an error", next)
		}
		if fields.ResultRef != nil || fields.Result != nil {
			return fmt.Errorf("transition to %s must not carry a result", next)
		}
	}
	return nil
}
