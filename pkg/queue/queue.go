package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueDeadLetters is the Redis list key for webhook deliveries that could not be routed.
	QueueDeadLetters = "webhooks:mux:dead_letters"
	// QueueDeadLettersFailed holds dead letters that could not be archived after retries.
	QueueDeadLettersFailed = "webhooks:mux:dead_letters:failed"
	// MaxRetries is the number of times to retry a job before moving it to QueueDeadLettersFailed.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// DequeueTimeout bounds each blocking pop so the worker notices cancellation.
	// BLPOP does not return on context cancellation, so this is also the worst-case shutdown delay.
	DequeueTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeDeadLetter JobType = "mux_dead_letter"
)

// DeadLetterPayload is a verified Mux delivery that was acknowledged but not applied.
type DeadLetterPayload struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Reason     string    `json:"reason"`
	Body       []byte    `json:"body"`      // raw bytes as received, base64 in JSON
	Signature  string    `json:"signature"` // Mux-Signature header, so the body can be re-verified
	ReceivedAt time.Time `json:"received_at"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis lists.
type Queue struct {
	client         *redis.Client
	dequeueTimeout time.Duration
	logger         *zap.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithDequeueTimeout overrides DequeueTimeout. Redis rounds anything under a second up to one second.
func WithDequeueTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.dequeueTimeout = d
		}
	}
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{client: client, dequeueTimeout: DequeueTimeout, logger: logger}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnqueueDeadLetter records an unroutable delivery for later inspection.
func (q *Queue) EnqueueDeadLetter(ctx context.Context, payload DeadLetterPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeDeadLetter,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueDeadLetters, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued dead letter", zap.String("job_id", job.ID), zap.String("event_id", payload.EventID), zap.String("reason", payload.Reason))
	return nil
}

// Dequeue blocks up to the dequeue timeout for a job. Returns nil job on timeout or undecodable entries.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := q.client.BLPop(ctx, q.dequeueTimeout, QueueDeadLetters).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, parks it on QueueDeadLettersFailed instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDeadLettersFailed, raw).Err(); err != nil {
			q.logger.Error("failed-list push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job parked after retries", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueDeadLetters, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// Len returns the number of pending jobs on key.
func (q *Queue) Len(ctx context.Context, key string) (int64, error) {
	return q.client.LLen(ctx, key).Result()
}
