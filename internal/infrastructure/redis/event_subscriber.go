package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type RedisEventSubscriber struct {
	client   *redis.Client
	baseWait time.Duration
	maxWait  time.Duration
	log      logger.Logger
}

func NewRedisEventSubscriber(client *redis.Client, baseWait, maxWait time.Duration, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client:   client,
		baseWait: baseWait,
		maxWait:  maxWait,
		log:      log,
	}
}

// Subscribe delivers messages from channels to handler until ctx is cancelled.
// A lost subscription is re-established with exponential backoff. Returns nil
// once ctx is done.
func (r *RedisEventSubscriber) Subscribe(ctx context.Context, handler domain.MessageHandler, channels ...string) error {
	wait := r.baseWait

	for {
		subscribed, err := r.consume(ctx, handler, channels)
		if ctx.Err() != nil {
			r.log.Info("Event subscriber stopped", "channels", channels)
			return nil
		}
		if subscribed {
			wait = r.baseWait
		}
		r.log.Warn("Subscription lost, reconnecting", "channels", channels, "error", err, "wait", wait)

		select {
		case <-ctx.Done():
			r.log.Info("Event subscriber stopped", "channels", channels)
			return nil
		case <-time.After(wait):
		}

		wait *= 2
		if wait > r.maxWait {
			wait = r.maxWait
		}
	}
}

// consume runs one subscription. It reports whether the subscription was confirmed.
func (r *RedisEventSubscriber) consume(ctx context.Context, handler domain.MessageHandler, channels []string) (bool, error) {
	pubsub := r.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	r.log.Info("Subscribed to channels", "channels", channels)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			pubsub.Close()
		case <-stop:
		}
	}()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, redis.ErrClosed) && ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, fmt.Errorf("receive: %w", err)
		}
		handler(ctx, msg.Channel, []byte(msg.Payload))
	}
}
