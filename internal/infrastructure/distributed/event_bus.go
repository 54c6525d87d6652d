package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"pairline/internal/core/domain"
	"pairline/pkg/batch"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// publishFunc sends one batch of encoded events, in order, to channel.
type publishFunc func(ctx context.Context, channel string, payloads [][]byte) error

// EventBus publishes lifecycle events to a Redis channel. Publish never
// blocks; events are batched by a single worker, sent through one pipeline
// per batch, and dropped when the queue is full.
type EventBus struct {
	client     *redis.Client
	publish    publishFunc
	channel    string
	instanceID string
	logger     *zap.SugaredLogger

	batcher *batch.Batcher[domain.LifecycleEvent]
	dropped atomic.Int64
}

func NewEventBus(client *redis.Client, channel, instanceID string, logger *zap.SugaredLogger) *EventBus {
	bus := newEventBus(func(ctx context.Context, ch string, payloads [][]byte) error {
		_, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, payload := range payloads {
				pipe.Publish(ctx, ch, payload)
			}
			return nil
		})
		return err
	}, channel, instanceID, batch.DefaultConfig(), logger)
	bus.client = client
	return bus
}

func newEventBus(publish publishFunc, channel, instanceID string, cfg batch.Config, logger *zap.SugaredLogger) *EventBus {
	eb := &EventBus{
		publish:    publish,
		channel:    channel,
		instanceID: instanceID,
		logger:     logger,
	}
	eb.batcher = batch.New(cfg, eb.send, eb.onSendError)
	return eb
}

// Publish implements ports.EventPublisher.
func (eb *EventBus) Publish(event domain.LifecycleEvent) {
	event.InstanceID = eb.instanceID
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if eb.batcher.TryAdd(event) {
		return
	}
	if n := eb.dropped.Add(1); n%100 == 1 {
		eb.logger.Warnw("event bus queue full, dropping events",
			"type", event.Type,
			"dropped_total", n,
		)
	}
}

func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}

func (eb *EventBus) send(ctx context.Context, events []domain.LifecycleEvent) error {
	payloads := make([][]byte, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			eb.logger.Errorw("failed to marshal event", "type", event.Type, "error", err)
			continue
		}
		payloads = append(payloads, data)
	}
	if len(payloads) == 0 {
		return nil
	}
	if err := eb.publish(ctx, eb.channel, payloads); err != nil {
		return err
	}
	eb.logger.Debugw("published events", "count", len(payloads))
	return nil
}

func (eb *EventBus) onSendError(err error, events []domain.LifecycleEvent) {
	eb.logger.Warnw("failed to publish events",
		"count", len(events),
		"first_type", events[0].Type,
		"error", err,
	)
}

// Subscribe delivers events published by other instances until ctx ends.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*domain.LifecycleEvent) error) error {
	if eb.client == nil {
		return fmt.Errorf("event bus has no redis client")
	}

	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := decodeEvent(msg.Payload)
			if err != nil {
				eb.logger.Warnw("failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}
			if event.InstanceID == eb.instanceID {
				continue
			}
			if err := handler(event); err != nil {
				eb.logger.Warnw("error handling event", "type", event.Type, "error", err)
			}
		}
	}
}

func decodeEvent(payload string) (*domain.LifecycleEvent, error) {
	var event domain.LifecycleEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Close flushes queued events and stops the worker.
func (eb *EventBus) Close() error {
	eb.batcher.Close()
	return nil
}
