package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thumbforge/thumbforge/internal/job"
)

// Memory is an in-process JobStore with the same semantics as Postgres.
// Insertion order doubles as creation order, so "most recent first" is stable
// even when timestamps collide within clock resolution.
type Memory struct {
	mu    sync.Mutex
	jobs  map[string]*job.Job
	order []string
}

// NewMemory creates an empty in-memory JobStore.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*job.Job)}
}

func cloneJob(j *job.Job) *job.Job {
	c := *j
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.ResultRef != nil {
		r := *j.ResultRef
		c.ResultRef = &r
	}
	if j.Result != nil {
		c.Result = append([]byte(nil), j.Result...)
	}
	return &c
}

func (s *Memory) Create(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID]; ok {
		return ErrJobExists
	}
	s.jobs[j.ID] = cloneJob(j)
	s.order = append(s.order, j.ID)
	return nil
}

func (s *Memory) GetByID(_ context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(j), nil
}

func (s *Memory) FindByFingerprint(_ context.Context, fingerprint string, statuses ...job.Status) ([]job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(fingerprint, statuses...), nil
}

func (s *Memory) findLocked(fingerprint string, statuses ...job.Status) []job.Job {
	allowed := func(st job.Status) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if st == want {
				return true
			}
		}
		return false
	}

	var out []job.Job
	for i := len(s.order) - 1; i >= 0; i-- {
		j := s.jobs[s.order[i]]
		if j.Fingerprint == fingerprint && allowed(j.Status) {
			out = append(out, *cloneJob(j))
		}
	}
	return out
}

func (s *Memory) Transition(_ context.Context, id string, expected, next job.Status, fields Fields) (*job.Job, error) {
	if err := validateTransition(expected, next, fields); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if j.Status != expected {
		return nil, ErrStaleState
	}

	j.Status = next
	if next == job.StatusProcessing {
		j.Attempts++
	}
	j.Error = nil
	j.ResultRef = nil
	j.Result = nil
	if fields.Error != nil {
		e := *fields.Error
		j.Error = &e
	}
	if fields.ResultRef != nil {
		r := *fields.ResultRef
		j.ResultRef = &r
	}
	if fields.Result != nil {
		j.Result = append([]byte(nil), fields.Result...)
	}
	j.UpdatedAt = time.Now().UTC()

	return cloneJob(j), nil
}

func (s *Memory) List(_ context.Context, filter Filter, limit, offset int) ([]job.Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []job.Job
	for i := len(s.order) - 1; i >= 0; i-- {
		j := s.jobs[s.order[i]]
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.CreatedBefore != nil && j.CreatedAt.After(*filter.CreatedBefore) {
			continue
		}
		if filter.CreatedAfter != nil && j.CreatedAt.Before(*filter.CreatedAfter) {
			continue
		}
		matched = append(matched, *cloneJob(j))
	}

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *Memory) CountByStatus(_ context.Context) (map[job.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[job.Status]int{
		job.StatusPending:    0,
		job.StatusProcessing: 0,
		job.StatusCompleted:  0,
		job.StatusFailed:     0,
	}
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (s *Memory) Submit(_ context.Context, sourceURL, fingerprint string, mode job.DuplicateMode) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch mode {
	case job.DuplicateReuseCompleted:
		if existing := s.findLocked(fingerprint, job.StatusCompleted); len(existing) > 0 {
			return &Outcome{Job: &existing[0], Created: false}, nil
		}
	case job.DuplicateRejectActive:
		if existing := s.findLocked(fingerprint, job.StatusPending, job.StatusProcessing); len(existing) > 0 {
			return nil, &DuplicateActiveError{Job: &existing[0]}
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
	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)

	return &Outcome{Job: cloneJob(j), Created: true}, nil
}
