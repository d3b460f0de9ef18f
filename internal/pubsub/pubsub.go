// Package pubsub provides the topic fan-out used by the event broadcaster
// (§4.12) and the UDP voice engine's internal ingress/egress relay (§4.9),
// matching the teacher's dual Redis/in-memory pubsub abstraction.
package pubsub

import (
	"context"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
)

// PubSub is the capability every publisher/subscriber in this codebase uses.
type PubSub interface {
	Publish(topic string, message []byte) error
	Subscribe(topic string) Subscription
	Close() error
}

// Subscription is a single subscriber's view of a topic.
type Subscription interface {
	Close() error
	Channel() <-chan []byte
}

// MakePubSub creates a new pubsub client according to cfg.Redis.
func MakePubSub(ctx context.Context, cfg *config.Config) (PubSub, error) {
	if cfg.Redis.Enabled {
		return makePubSubFromRedis(ctx, cfg)
	}
	return makeInMemoryPubSub(), nil
}
