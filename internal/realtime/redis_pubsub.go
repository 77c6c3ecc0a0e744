package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prepcoach/recordings/internal/models"
)

const (
	channelPrefix = "recordings:"
	publishTTL    = 5 * time.Second
)

// StatusEvent is published whenever a recording's metadata row changes.
type StatusEvent struct {
	Collection models.Collection  `json:"collection"`
	ID         string             `json:"id"`
	EventType  string             `json:"event_type"`
	Status     models.AssetStatus `json:"status"`
	AssetID    string             `json:"asset_id"`
	PlaybackID *string            `json:"playback_id"`
	At         int64              `json:"at"`
}

// Channel returns the Redis channel for one recording.
func Channel(collection models.Collection, id string) string {
	return channelPrefix + string(collection) + ":" + id
}

// RedisPubSub fans status changes out to every instance via Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for recording status events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishStatus publishes ev on the recording's channel.
func (r *RedisPubSub) PublishStatus(ctx context.Context, ev StatusEvent) error {
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTTL)
	defer cancel()
	return r.client.Publish(ctx, Channel(ev.Collection, ev.ID), body).Err()
}

// Subscribe calls handler for each status event on the recording's channel until ctx is done.
// The subscription is confirmed before Subscribe returns.
func (r *RedisPubSub) Subscribe(ctx context.Context, collection models.Collection, id string, handler func(StatusEvent)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(ctx, Channel(collection, id))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev StatusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.Warn("drop malformed status event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler(ev)
			}
		}
	}()
	return cancelCtx, nil
}
