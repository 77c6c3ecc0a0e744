package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/prepcoach/recordings/pkg/queue"
	"github.com/prepcoach/recordings/pkg/storage"
)

// Archiver stores a dead-letter document.
type Archiver interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// JobQueue is the part of queue.Queue the archiver consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// DeadLetterArchiver moves unroutable webhook deliveries from Redis to S3.
type DeadLetterArchiver struct {
	queue    JobQueue
	archive  Archiver
	provider string
	backoff  time.Duration
	logger   *zap.Logger
}

// NewDeadLetterArchiver creates an archiver for the given provider prefix (e.g. "mux").
func NewDeadLetterArchiver(q JobQueue, archive Archiver, provider string, logger *zap.Logger) *DeadLetterArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadLetterArchiver{queue: q, archive: archive, provider: provider, backoff: queue.RetryBackoff, logger: logger}
}

// Process archives one dead-letter job.
func (a *DeadLetterArchiver) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeDeadLetter {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.DeadLetterPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	name := payload.EventID
	if name == "" {
		name = job.ID
	}
	receivedAt := payload.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = job.CreatedAt
	}
	doc, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	key := storage.DeadLetterKey(a.provider, receivedAt, name)
	uri, err := a.archive.Upload(ctx, key, "application/json", bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("archive upload: %w", err)
	}
	a.logger.Info("dead letter archived", zap.String("job_id", job.ID), zap.String("event_id", payload.EventID), zap.String("reason", payload.Reason), zap.String("uri", uri))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (a *DeadLetterArchiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("dead letter worker stopping")
			return
		default:
		}

		job, err := a.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			a.logger.Warn("dequeue error", zap.Error(err))
			a.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		a.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := a.Process(ctx, job); err != nil {
			a.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := a.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				a.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			a.sleep(ctx)
		}
	}
}

func (a *DeadLetterArchiver) sleep(ctx context.Context) {
	t := time.NewTimer(a.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
