// Package bus is the event transport of the system: a topic exchange on
// RabbitMQ where the routing key of every message equals its event name.
// Each service owns one durable queue bound to the routing keys it reacts
// to; messages are acked only after the handler returns nil, otherwise
// they are requeued for redelivery (at-least-once).
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"mini-pos/internal/common/logger"
)

const (
	Exchange = "mini_pos_events"

	dlxExchange = "dlx"
	dlqQueue    = "dlq"

	reconnectDelay = 5 * time.Second
)

// ErrDeadLetter tells the dispatch loop a message can never be processed
// (e.g. unparsable payload) and must go to the DLQ instead of requeueing.
var ErrDeadLetter = errors.New("dead_letter")

var errNotConnected = errors.New("bus: not connected")

// HandlerFunc processes one delivery. Returning nil acks the message;
// any other error requeues it; ErrDeadLetter sends it to the DLQ.
type HandlerFunc func(ctx context.Context, body []byte, routingKey string) error

type subscription struct {
	queue   string
	keys    []string
	handler HandlerFunc
}

// Bus owns the broker connection and channel. Run drives a reconnect loop:
// dial, declare topology, re-register every subscription, then wait for the
// connection to drop and start over after a fixed backoff. There is no
// dead state, only "not yet reconnected"; Publish fails fast in between.
type Bus struct {
	url string
	lg  *logger.Logger

	mu    sync.Mutex
	conn  *amqp.Connection
	pubCh *amqp.Channel
	subs  []subscription
}

func New(url string, lg *logger.Logger) *Bus {
	return &Bus{url: url, lg: lg}
}

// Subscribe registers a durable queue bound to the given routing keys.
// Must be called before Run; consumption starts on every (re)connect.
func (b *Bus) Subscribe(queue string, routingKeys []string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{queue: queue, keys: routingKeys, handler: handler})
}

// Publish sends a persistent JSON message to the topic exchange. The
// routing key is the event name.
func (b *Bus) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", routingKey, err)
	}

	b.mu.Lock()
	ch := b.pubCh
	b.mu.Unlock()
	if ch == nil {
		return errNotConnected
	}

	return ch.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Run blocks until ctx is canceled, keeping the connection alive.
func (b *Bus) Run(ctx context.Context) error {
	for {
		closed, err := b.connect(ctx)
		if err != nil {
			b.lg.Error("rabbitmq_connect_failed", err, nil)
		} else {
			b.lg.Info("rabbitmq_connected", nil)
			select {
			case e := <-closed:
				b.lg.Error("rabbitmq_connection_lost", e, nil)
			case <-ctx.Done():
				b.close()
				return nil
			}
			b.close()
		}

		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *Bus) connect(ctx context.Context) (<-chan *amqp.Error, error) {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, err
	}
	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declareTopology(pubCh); err != nil {
		_ = conn.Close()
		return nil, err
	}

	b.mu.Lock()
	b.conn = conn
	b.pubCh = pubCh
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		if err := b.consume(ctx, conn, sub); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("consume %s: %w", sub.queue, err)
		}
	}

	return conn.NotifyClose(make(chan *amqp.Error, 1)), nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(dlqQueue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(dlqQueue, dlqQueue, dlxExchange, false, nil)
}

// consume declares and binds the subscription's queue on its own channel
// and starts a drain goroutine. Prefetch 1 keeps one in-flight message per
// consumer: strict per-queue ordering, simple failure isolation.
func (b *Bus) consume(ctx context.Context, conn *amqp.Connection, sub subscription) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(sub.queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": dlqQueue,
	}); err != nil {
		return err
	}
	for _, key := range sub.keys {
		if err := ch.QueueBind(sub.queue, key, Exchange, false, nil); err != nil {
			return err
		}
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}
	msgs, err := ch.Consume(sub.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			dispatch(ctx, sub.handler, d, b.lg)
		}
	}()
	return nil
}

// dispatch runs the handler and settles the delivery: ack on success,
// nack+requeue on failure, nack to the DLQ on ErrDeadLetter.
func dispatch(ctx context.Context, h HandlerFunc, d amqp.Delivery, lg *logger.Logger) {
	err := h(ctx, d.Body, d.RoutingKey)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrDeadLetter):
		lg.Error("event_dead_lettered", err, map[string]any{"routing_key": d.RoutingKey})
		_ = d.Nack(false, false)
	default:
		lg.Error("event_requeued", err, map[string]any{"routing_key": d.RoutingKey})
		_ = d.Nack(false, true)
	}
}

func (b *Bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubCh != nil {
		_ = b.pubCh.Close()
		b.pubCh = nil
	}
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
}
