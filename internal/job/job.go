package job

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of an image job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ValidStatus reports whether s names a known job status.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// DuplicateMode selects the strategy applied when a URL with a known
// fingerprint is submitted again.
type DuplicateMode string

const (
	// DuplicateAllowRetry always creates and enqueues a new job.
	DuplicateAllowRetry DuplicateMode = "allow-retry"
	// DuplicateReuseCompleted returns an existing completed job for the
	// fingerprint instead of creating a new one.
	DuplicateReuseCompleted DuplicateMode = "reuse-completed"
	// DuplicateRejectActive refuses a new job while one for the fingerprint
	// is still pending or processing.
	DuplicateRejectActive DuplicateMode = "reject-active"
)

// ValidDuplicateMode reports whether s names a known duplicate-handling mode.
func ValidDuplicateMode(s string) bool {
	switch DuplicateMode(s) {
	case DuplicateAllowRetry, DuplicateReuseCompleted, DuplicateRejectActive:
		return true
	}
	return false
}

// Job is one request to turn a remote image into a thumbnail.
type Job struct {
	ID          string          `db:"id" json:"id"`
	SourceURL   string          `db:"source_url" json:"source_url"`
	Fingerprint string          `db:"fingerprint" json:"fingerprint"`
	Status      Status          `db:"status" json:"status"`
	Attempts    int             `db:"attempts" json:"attempts"`
	Error       *string         `db:"error" json:"error"`
	ResultRef   *string         `db:"result_ref" json:"result_ref"`
	Result      json.RawMessage `db:"result" json:"result"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// CanTransition reports whether from -> to is a legal status edge. The state
// machine admits exactly three edges; everything else is a bug in the caller.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusPending && to == StatusProcessing:
		return true
	case from == StatusProcessing && to == StatusCompleted:
		return true
	case from == StatusProcessing && to == StatusFailed:
		return true
	}
	return false
}
