package service

import (
	"context"
	"encoding/json"
	"fmt"

	"mini-pos/internal/common/bus"
	"mini-pos/internal/domain"
)

// QueueName is the order service's durable subscription.
const QueueName = "order_service_queue"

// RoutingKeys the order service reacts to.
var RoutingKeys = []string{
	domain.EventOrderEnriched,
	domain.EventOrderFailed,
	domain.EventTableOccupied,
	domain.EventTableOccupyFailed,
}

// HandleEvent dispatches one delivery to the matching reaction. Payloads
// that cannot be decoded are dead-lettered; they will never parse better
// on redelivery.
func (s *OrderService) HandleEvent(ctx context.Context, body []byte, routingKey string) error {
	switch routingKey {
	case domain.EventOrderEnriched:
		var ev domain.OrderEnrichedEvent
		if err := decode(body, routingKey, &ev); err != nil {
			return err
		}
		return s.handleOrderEnriched(ctx, ev)
	case domain.EventOrderFailed:
		var ev domain.OrderFailedEvent
		if err := decode(body, routingKey, &ev); err != nil {
			return err
		}
		return s.handleOrderFailed(ctx, ev)
	case domain.EventTableOccupied:
		var ev domain.TableOccupiedEvent
		if err := decode(body, routingKey, &ev); err != nil {
			return err
		}
		return s.handleTableOccupied(ctx, ev)
	case domain.EventTableOccupyFailed:
		var ev domain.TableOccupyFailedEvent
		if err := decode(body, routingKey, &ev); err != nil {
			return err
		}
		return s.handleTableOccupyFailed(ctx, ev)
	default:
		s.lg.Debug("event_ignored", map[string]any{"routing_key": routingKey})
		return nil
	}
}

func decode(body []byte, routingKey string, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", bus.ErrDeadLetter, routingKey, err)
	}
	return nil
}
