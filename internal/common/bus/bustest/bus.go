// Package bustest provides an in-memory stand-in for the RabbitMQ bus so
// service and choreography tests can run without a broker. Delivery is
// synchronous and in publish order, which makes saga outcomes deterministic.
package bustest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"mini-pos/internal/common/bus"
)

type subscription struct {
	queue   string
	keys    map[string]bool
	handler bus.HandlerFunc
}

type Bus struct {
	mu   sync.Mutex
	subs []subscription

	// Published records every routing key in emission order.
	Published []string
}

func New() *Bus { return &Bus{} }

func (b *Bus) Subscribe(queue string, routingKeys []string, handler bus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make(map[string]bool, len(routingKeys))
	for _, k := range routingKeys {
		keys[k] = true
	}
	b.subs = append(b.subs, subscription{queue: queue, keys: keys, handler: handler})
}

// Publish marshals the payload and hands it synchronously to every
// subscription bound to the routing key. Handler errors are surfaced to
// the publisher instead of being requeued; tests want loud failures.
func (b *Bus) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.Published = append(b.Published, routingKey)
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if !s.keys[routingKey] {
			continue
		}
		if err := s.handler(ctx, body, routingKey); err != nil {
			return fmt.Errorf("%s handler for %s: %w", s.queue, routingKey, err)
		}
	}
	return nil
}

// Count returns how many times the routing key was published.
func (b *Bus) Count(routingKey string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, k := range b.Published {
		if k == routingKey {
			n++
		}
	}
	return n
}
