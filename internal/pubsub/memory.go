package pubsub

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// subscriberChanSize bounds how far a slow in-process subscriber can lag
// before Publish starts dropping for it; publishers never block on a
// subscriber (matches the "no blocking on a slow recipient" rule of §4.9).
const subscriberChanSize = 256

type inMemoryPubSub struct {
	topics *xsync.Map[string, *topicSubscribers]
}

type topicSubscribers struct {
	mu   sync.Mutex
	subs map[*inMemorySubscription]struct{}
}

func makeInMemoryPubSub() PubSub {
	return &inMemoryPubSub{topics: xsync.NewMap[string, *topicSubscribers]()}
}

func (ps *inMemoryPubSub) topic(name string) *topicSubscribers {
	t, _ := ps.topics.LoadOrCompute(name, func() (*topicSubscribers, bool) {
		return &topicSubscribers{subs: make(map[*inMemorySubscription]struct{})}, false
	})
	return t
}

func (ps *inMemoryPubSub) Publish(topic string, message []byte) error {
	t := ps.topic(topic)
	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		select {
		case sub.ch <- message:
		default:
			// Bounded channel full: drop for this subscriber rather than block.
		}
	}
	return nil
}

func (ps *inMemoryPubSub) Subscribe(topic string) Subscription {
	t := ps.topic(topic)
	sub := &inMemorySubscription{
		ch:    make(chan []byte, subscriberChanSize),
		owner: t,
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	return sub
}

func (ps *inMemoryPubSub) Close() error { return nil }

type inMemorySubscription struct {
	ch    chan []byte
	owner *topicSubscribers
	once  sync.Once
}

func (s *inMemorySubscription) Close() error {
	s.once.Do(func() {
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		s.owner.mu.Unlock()
		close(s.ch)
	})
	return nil
}

func (s *inMemorySubscription) Channel() <-chan []byte { return s.ch }
