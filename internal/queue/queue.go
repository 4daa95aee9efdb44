// Package queue provides the work queue: a FIFO of job identifiers with
// at-least-once delivery. Consumers must acknowledge every delivery; a
// negative acknowledgment may requeue it.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Pop when no job arrives within the timeout.
var ErrEmpty = errors.New("no job available")

// Delivery is one received job identifier. Exactly one of Ack or Nack must
// be called for every delivery.
type Delivery struct {
	JobID string

	ack  func() error
	nack func(requeue bool) error
}

// Ack acknowledges the delivery, removing it from the queue.
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack rejects the delivery, optionally requeueing it for redelivery.
func (d *Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Queue decouples submission from processing. Ordering is submission order,
// best effort under concurrent producers.
type Queue interface {
	// Push appends a job identifier. Duplicate pushes of the same ID are
	// tolerated; consumers discard deliveries for terminal jobs.
	Push(ctx context.Context, jobID string) error

	// Pop blocks up to timeout for the next delivery and returns ErrEmpty
	// when none arrives in time.
	Pop(ctx context.Context, timeout time.Duration) (*Delivery, error)
}
