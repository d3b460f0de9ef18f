package pubsub

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
)

const connsPerCPU = 10
const maxIdleTime = 10 * time.Minute

type redisPubSub struct {
	client *redis.Client
}

func makePubSubFromRedis(ctx context.Context, cfg *config.Config) (PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:        cfg.Redis.Password,
		DB:              cfg.Redis.DB,
		PoolFIFO:        true,
		PoolSize:        runtime.GOMAXPROCS(0) * connsPerCPU,
		MinIdleConns:    runtime.GOMAXPROCS(0),
		ConnMaxIdleTime: maxIdleTime,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pubsub: connecting to redis: %w", err)
	}

	if cfg.Metrics.OTLPEndpoint != "" {
		if err := redisotel.InstrumentTracing(client); err != nil {
			return nil, fmt.Errorf("pubsub: instrumenting redis tracing: %w", err)
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			return nil, fmt.Errorf("pubsub: instrumenting redis metrics: %w", err)
		}
	}

	return &redisPubSub{client: client}, nil
}

func (r *redisPubSub) Publish(topic string, message []byte) error {
	if err := r.client.Publish(context.Background(), topic, message).Err(); err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", topic, err)
	}
	return nil
}

func (r *redisPubSub) Subscribe(topic string) Subscription {
	sub := r.client.Subscribe(context.Background(), topic)
	return newRedisSubscription(sub)
}

func (r *redisPubSub) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("pubsub: closing redis client: %w", err)
	}
	return nil
}

type redisSubscription struct {
	sub *redis.PubSub
	ch  chan []byte
}

func newRedisSubscription(sub *redis.PubSub) *redisSubscription {
	s := &redisSubscription{sub: sub, ch: make(chan []byte, subscriberChanSize)}
	go s.relay()
	return s
}

func (s *redisSubscription) relay() {
	defer close(s.ch)
	for msg := range s.sub.Channel() {
		select {
		case s.ch <- []byte(msg.Payload):
		default:
			// Slow in-process consumer: drop rather than block the relay goroutine.
		}
	}
}

func (s *redisSubscription) Close() error {
	if err := s.sub.Close(); err != nil {
		return fmt.Errorf("pubsub: closing redis subscription: %w", err)
	}
	return nil
}

func (s *redisSubscription) Channel() <-chan []byte { return s.ch }
