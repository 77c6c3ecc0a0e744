package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*miniredis.Miniredis, *Queue) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewQueue(client, nil)
}

func TestEnqueueDequeueDeadLetter(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	in := DeadLetterPayload{
		EventID:    "evt_1",
		EventType:  "video.asset.ready",
		Reason:     "missing_passthrough",
		Body:       []byte(`{"type":"video.asset.ready"}`),
		ReceivedAt: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}
	if err := q.EnqueueDeadLetter(ctx, in); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if n, _ := q.Len(ctx, QueueDeadLetters); n != 1 {
		t.Fatalf("queue length = %d, want 1", n)
	}

	job, err := q.Dequeue(ctx)
	if err != nil || job == nil {
		t.Fatalf("dequeue: job=%v err=%v", job, err)
	}
	if job.Type != JobTypeDeadLetter || job.Attempt != 0 || job.ID == "" {
		t.Fatalf("unexpected job: %+v", job)
	}
	var out DeadLetterPayload
	if err := json.Unmarshal(job.Payload, &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if out.EventID != "evt_1" || out.Reason != "missing_passthrough" || string(out.Body) != `{"type":"video.asset.ready"}` {
		t.Fatalf("unexpected payload: %+v", out)
	}
}

func TestDequeueSkipsInvalidEntries(t *testing.T) {
	mr, q := newTestQueue(t)
	if _, err := mr.Lpush(QueueDeadLetters, "not-json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	job, err := q.Dequeue(context.Background())
	if err != nil || job != nil {
		t.Fatalf("expected nil job, got %v, %v", job, err)
	}
}

func TestRetryParksAfterMaxRetries(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()
	job := &Job{ID: "job_1", Type: JobTypeDeadLetter, Payload: json.RawMessage(`{}`)}

	for i := 1; i < MaxRetries; i++ {
		if err := q.Retry(ctx, job); err != nil {
			t.Fatalf("retry %d: %v", i, err)
		}
	}
	if n, _ := q.Len(ctx, QueueDeadLetters); n != int64(MaxRetries-1) {
		t.Fatalf("pending = %d, want %d", n, MaxRetries-1)
	}
	if err := q.Retry(ctx, job); err != nil {
		t.Fatalf("final retry: %v", err)
	}
	if job.Attempt != MaxRetries {
		t.Fatalf("attempt = %d, want %d", job.Attempt, MaxRetries)
	}
	if n, _ := q.Len(ctx, QueueDeadLettersFailed); n != 1 {
		t.Fatalf("failed = %d, want 1", n)
	}
}

func TestDequeueTimeoutIsConfigurable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := NewQueue(client, nil, WithDequeueTimeout(time.Second))

	start := time.Now()
	job, err := q.Dequeue(context.Background())
	if err != nil || job != nil {
		t.Fatalf("expected empty dequeue, got %v, %v", job, err)
	}
	if elapsed := time.Since(start); elapsed >= DequeueTimeout {
		t.Fatalf("dequeue blocked %s, longer than the default timeout", elapsed)
	}
}

func TestDequeueReturnsOnDoneContext(t *testing.T) {
	_, q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatalf("expected context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("dequeue on a done context took %s", elapsed)
	}
}
