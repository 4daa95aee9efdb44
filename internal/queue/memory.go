package queue

import (
	"context"
	"fmt"
	"time"
)

// Memory is a channel-backed Queue for tests and single-process runs.
type Memory struct {
	ch chan string
}

// NewMemory creates an in-memory queue holding up to capacity identifiers.
func NewMemory(capacity int) *Memory {
	return &Memory{ch: make(chan string, capacity)}
}

func (q *Memory) Push(ctx context.Context, jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Memory) Pop(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrEmpty
	case jobID := <-q.ch:
		return &Delivery{
			JobID: jobID,
			ack:   func() error { return nil },
			nack: func(requeue bool) error {
				if !requeue {
					return nil
				}
				select {
				case q.ch <- jobID:
					return nil
				default:
					return fmt.Errorf("queue full, dropping requeue of %s", jobID)
				}
			},
		}, nil
	}
}

// Len reports the number of queued identifiers.
func (q *Memory) Len() int {
	return len(q.ch)
}
