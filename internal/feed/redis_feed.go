package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sentio/internal/domain"
)

type redisPubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisFeed comparte los eventos entre instancias via Redis pub/sub.
type RedisFeed struct {
	client  redisPubSub
	channel string
	logger  *zap.Logger
}

func NewRedisFeed(client *redis.Client, channel string, logger *zap.Logger) *RedisFeed {
	if channel == "" {
		channel = "sentio:events"
	}
	return &RedisFeed{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

func (f *RedisFeed) Publish(ctx context.Context, event domain.EmotionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return f.client.Publish(ctx, f.channel, payload).Err()
}

func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan domain.EmotionEvent, error) {
	ps := f.client.Subscribe(ctx, f.channel)
	// Receive confirma la suscripcion antes de devolver el canal.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan domain.EmotionEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				event, err := decodeEvent(msg.Payload)
				if err != nil {
					f.logger.Warn("invalid feed message", zap.Error(err), zap.String("channel", msg.Channel))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeEvent(payload string) (domain.EmotionEvent, error) {
	var event domain.EmotionEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return domain.EmotionEvent{}, err
	}
	if event.ID == "" {
		return domain.EmotionEvent{}, fmt.Errorf("event without id")
	}
	return event, nil
}
