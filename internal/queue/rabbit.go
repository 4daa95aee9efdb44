package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/thumbforge/thumbforge/shared/rabbitmq"
)

// jobMessage is the wire format carried on the queue.
type jobMessage struct {
	JobID string `json:"job_id"`
}

// Rabbit implements Queue on a durable RabbitMQ queue with manual acks.
type Rabbit struct {
	client      *rabbitmq.Client
	logger      *slog.Logger
	consumerTag string
	prefetch    int

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewRabbit creates a RabbitMQ-backed work queue. prefetch bounds the number
// of unacknowledged deliveries handed to this consumer.
func NewRabbit(client *rabbitmq.Client, logger *slog.Logger, consumerTag string, prefetch int) *Rabbit {
	return &Rabbit{
		client:      client,
		logger:      logger,
		consumerTag: consumerTag,
		prefetch:    prefetch,
	}
}

func (q *Rabbit) Push(ctx context.Context, jobID string) error {
	body, err := json.Marshal(jobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}
	if err := q.client.Publish(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	q.logger.Debug("Job enqueued",
		slog.String("job_id", jobID),
	)
	return nil
}

func (q *Rabbit) ensureConsumer() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.deliveries != nil {
		return q.deliveries, nil
	}
	if err := q.client.Qos(q.prefetch); err != nil {
		return nil, err
	}
	deliveries, err := q.client.Consume(q.consumerTag)
	if err != nil {
		return nil, err
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Pop waits for the next well-formed delivery. Malformed bodies and
// non-UUID identifiers are nacked without requeue and skipped.
func (q *Rabbit) Pop(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	deliveries, err := q.ensureConsumer()
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			return nil, ErrEmpty

		case delivery, ok := <-deliveries:
			if !ok {
				return nil, fmt.Errorf("rabbitmq delivery channel closed")
			}

			var msg jobMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				q.logger.Error("Failed to parse message JSON",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					q.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			if _, err := uuid.Parse(msg.JobID); err != nil {
				q.logger.Error("Invalid job_id in message",
					slog.String("job_id", msg.JobID),
					slog.String("error", err.Error()),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					q.logger.Error("Failed to NACK message with invalid job_id",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			d := delivery
			return &Delivery{
				JobID: msg.JobID,
				ack:   func() error { return d.Ack(false) },
				nack:  func(requeue bool) error { return d.Nack(false, requeue) },
			}, nil
		}
	}
}
