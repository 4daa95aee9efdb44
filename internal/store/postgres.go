package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/thumbforge/thumbforge/internal/job"
)

const jobColumns = `id, source_url, fingerprint, status, attempts, error, result_ref, result, created_at, updated_at`

const schema = `
CREATE TABLE IF NOT EXISTS image_jobs (
	id          UUID PRIMARY KEY,
	source_url  TEXT NOT NULL,
	fingerprint CHAR(64) NOT NULL,
	status      TEXT NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	result_ref  TEXT,
	result      JSONB,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_image_jobs_fingerprint ON image_jobs (fingerprint, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_image_jobs_status ON image_jobs (status);
CREATE INDEX IF NOT EXISTS idx_image_jobs_created_at ON image_jobs (created_at DESC);
`

// Postgres implements JobStore on PostgreSQL via sqlx.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres creates a Postgres-backed JobStore.
func NewPostgres(db *sqlx.DB, logger *slog.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

// EnsureSchema creates the image_jobs table and its indexes if absent.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (s *Postgres) Create(ctx context.Context, j *job.Job) error {
	query := `
		INSERT INTO image_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		j.ID, j.SourceURL, j.Fingerprint, j.Status, j.Attempts,
		j.Error, j.ResultRef, j.Result, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrJobExists
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *Postgres) GetByID(ctx context.Context, id string) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM image_jobs WHERE id = $1`

	var j job.Job
	if err := s.db.GetContext(ctx, &j, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

func (s *Postgres) FindByFingerprint(ctx context.Context, fingerprint string, statuses ...job.Status) ([]job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM image_jobs WHERE fingerprint = $1`
	args := []interface{}{fingerprint}

	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var jobs []job.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find jobs by fingerprint: %w", err)
	}
	return jobs, nil
}

func (s *Postgres) Transition(ctx context.Context, id string, expected, next job.Status, fields Fields) (*job.Job, error) {
	if err := validateTransition(expected, next, fields); err != nil {
		return nil, err
	}

	attemptsDelta := 0
	if next == job.StatusProcessing {
		attemptsDelta = 1
	}

	query := `
		UPDATE image_jobs
		SET status = $1,
		    attempts = attempts + $2,
		    error = $3,
		    result_ref = $4,
		    result = $5,
		    updated_at = NOW()
		WHERE id = $6
		  AND status = $7
		RETURNING ` + jobColumns

	var j job.Job
	err := s.db.QueryRowxContext(ctx, query,
		next, attemptsDelta, fields.Error, fields.ResultRef, fields.Result, id, expected,
	).StructScan(&j)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a missing row from a lost race.
			if _, getErr := s.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			s.logger.Debug("transition lost compare-and-set race",
				slog.String("job_id", id),
				slog.String("expected", string(expected)),
				slog.String("next", string(next)),
			)
			return nil, ErrStaleState
		}
		return nil, fmt.Errorf("failed to transition job: %w", err)
	}
	return &j, nil
}

func (s *Postgres) List(ctx context.Context, filter Filter, limit, offset int) ([]job.Job, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.CreatedBefore != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *filter.CreatedBefore)
		argIdx++
	}
	if filter.CreatedAfter != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filter.CreatedAfter)
		argIdx++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM image_jobs` + where
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM image_jobs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	var jobs []job.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, total, nil
}

func (s *Postgres) CountByStatus(ctx context.Context) (map[job.Status]int, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM image_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := map[job.Status]int{
		job.StatusPending:    0,
		job.StatusProcessing: 0,
		job.StatusCompleted:  0,
		job.StatusFailed:     0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[job.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status counts: %w", err)
	}
	return counts, nil
}

// Submit evaluates the duplicate policy inside a transaction holding a
// per-fingerprint advisory lock. The lock is the serialization point that
// keeps two concurrent reject-active submissions from both inserting.
func (s *Postgres) Submit(ctx context.Context, sourceURL, fingerprint string, mode job.DuplicateMode) (*Outcome, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin submit transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, fingerprint); err != nil {
		return nil, fmt.Errorf("failed to lock fingerprint: %w", err)
	}

	findQuery := `
		SELECT ` + jobColumns + `
		FROM image_jobs
		WHERE fingerprint = $1 AND status = ANY($2)
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	switch mode {
	case job.DuplicateReuseCompleted:
		var existing job.Job
		err := tx.GetContext(ctx, &existing, findQuery, fingerprint, pq.Array([]string{string(job.StatusCompleted)}))
		if err == nil {
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit submit transaction: %w", err)
			}
			return &Outcome{Job: &existing, Created: false}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to look up completed job: %w", err)
		}
	case job.DuplicateRejectActive:
		var existing job.Job
		active := pq.Array([]string{string(job.StatusPending), string(job.StatusProcessing)})
		err := tx.GetContext(ctx, &existing, findQuery, fingerprint, active)
		if err == nil {
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit submit transaction: %w", err)
			}
			return nil, &DuplicateActiveError{Job: &existing}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to look up active job: %w", err)
		}
	}

	now := time.Now().UTC()
	j := &job.Job{
		ID:          uuid.New().String(),
		SourceURL:   sourceURL,
		Fingerprint: fingerprint,
		Status:      job.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	insertQuery := `
		INSERT INTO image_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := tx.ExecContext(ctx, insertQuery,
		j.ID, j.SourceURL, j.Fingerprint, j.Status, j.Attempts,
		j.Error, j.ResultRef, j.Result, j.CreatedAt, j.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit submit transaction: %w", err)
	}

	s.logger.Info("job created",
		slog.String("job_id", j.ID),
		slog.String("fingerprint", fingerprint),
		slog.String("duplicate_mode", string(mode)),
	)
	return &Outcome{Job: j, Created: true}, nil
}
