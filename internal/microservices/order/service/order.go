package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mini-pos/internal/common/logger"
	"mini-pos/internal/domain"
	"mini-pos/internal/microservices/order/repository"
)

// ValidationError rejects a malformed request before any state is created.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError rejects an operation invalid for the order's current
// status, e.g. completing an order that is not CONFIRMED.
type ConflictError struct{ CurrentStatus domain.OrderStatus }

func (e *ConflictError) Error() string {
	return fmt.Sprintf("only confirmed orders can be completed (current status %s)", e.CurrentStatus)
}

// Publisher is the slice of the event bus the service needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// StatusCache keeps a serialized order projection hot for reads. All
// methods are best-effort; a cold cache only costs a store round trip.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (string, bool)
	Set(ctx context.Context, orderID, payload string)
	Drop(ctx context.Context, orderID string)
}

type OrderServiceInterface interface {
	PlaceOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	CompleteOrder(ctx context.Context, id string) (domain.Order, error)

	HandleEvent(ctx context.Context, body []byte, routingKey string) error
}

type OrderService struct {
	repo  repository.OrderRepositoryInterface
	bus   Publisher
	cache StatusCache
	lg    *logger.Logger
}

func NewOrderService(repo repository.OrderRepositoryInterface, bus Publisher, cache StatusCache, lg *logger.Logger) *OrderService {
	return &OrderService{repo: repo, bus: bus, cache: cache, lg: lg}
}

// PlaceOrder validates the request, creates the PENDING order and kicks
// off the saga by emitting ORDER_CREATED and TABLE_OCCUPY_REQUESTED. The
// two emissions trigger independent reactions; no ordering between the
// menu and table paths is implied.
func (s *OrderService) PlaceOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	if req.TableID == "" {
		return domain.Order{}, &ValidationError{Msg: "table Id is required"}
	}
	if len(req.Items) == 0 {
		return domain.Order{}, &ValidationError{Msg: "At least one item is required"}
	}
	for _, it := range req.Items {
		if it.MenuID == "" {
			return domain.Order{}, &ValidationError{Msg: "menuId is required for all items"}
		}
		if it.Quantity <= 0 {
			return domain.Order{}, &ValidationError{Msg: "quantity must be greater than 0"}
		}
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:        uuid.NewString(),
		TableID:   req.TableID,
		TableName: req.TableName,
		Status:    domain.OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, it := range req.Items {
		order.Items = append(order.Items, domain.OrderItem{MenuID: it.MenuID, Quantity: it.Quantity})
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	if err := s.bus.Publish(ctx, domain.EventOrderCreated, domain.OrderCreatedEvent{
		OrderID: order.ID,
		TableID: order.TableID,
		Items:   order.Items,
	}); err != nil {
		return domain.Order{}, fmt.Errorf("publish %s: %w", domain.EventOrderCreated, err)
	}
	if err := s.bus.Publish(ctx, domain.EventTableOccupyRequested, domain.TableOccupyRequestedEvent{
		OrderID:   order.ID,
		TableID:   order.TableID,
		TableName: order.TableName,
	}); err != nil {
		return domain.Order{}, fmt.Errorf("publish %s: %w", domain.EventTableOccupyRequested, err)
	}

	s.lg.Info("order_placed", map[string]any{"order_id": order.ID, "table_id": order.TableID})
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		var o domain.Order
		if err := json.Unmarshal([]byte(cached), &o); err == nil {
			return o, nil
		}
	}
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if b, err := json.Marshal(o); err == nil {
		s.cache.Set(ctx, id, string(b))
	}
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx)
}

// CompleteOrder closes a CONFIRMED order and asks the table service to
// free the table. Any other status is a conflict naming the status.
func (s *OrderService) CompleteOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.OrderConfirmed {
		return domain.Order{}, &ConflictError{CurrentStatus: o.Status}
	}

	now := time.Now().UTC()
	applied, err := s.repo.CompleteOrder(ctx, id, now)
	if err != nil {
		return domain.Order{}, fmt.Errorf("complete order: %w", err)
	}
	if !applied {
		// Lost a race with another transition since the read above.
		o, err = s.repo.GetOrder(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		return domain.Order{}, &ConflictError{CurrentStatus: o.Status}
	}
	s.cache.Drop(ctx, id)

	if err := s.bus.Publish(ctx, domain.EventTableReleaseRequested, domain.TableReleaseRequestedEvent{
		OrderID:   id,
		TableID:   o.TableID,
		TableName: o.TableName,
	}); err != nil {
		return domain.Order{}, fmt.Errorf("publish %s: %w", domain.EventTableReleaseRequested, err)
	}

	o.Status = domain.OrderCompleted
	o.CompletedAt = &now
	o.UpdatedAt = now
	s.lg.Info("order_completed", map[string]any{"order_id": id, "table_id": o.TableID})
	return o, nil
}

// handleOrderEnriched reacts to the menu service's successful stock
// deduction: store the priced items and confirm. Safe to re-apply.
func (s *OrderService) handleOrderEnriched(ctx context.Context, ev domain.OrderEnrichedEvent) error {
	applied, err := s.repo.ConfirmOrder(ctx, ev.OrderID, ev.Items, ev.GrandTotal)
	if err != nil {
		return fmt.Errorf("confirm order %s: %w", ev.OrderID, err)
	}
	s.cache.Drop(ctx, ev.OrderID)
	if applied {
		s.lg.Info("order_confirmed", map[string]any{"order_id": ev.OrderID, "grand_total": ev.GrandTotal})
	} else {
		s.lg.Debug("order_enriched_skipped", map[string]any{"order_id": ev.OrderID})
	}
	return nil
}

func (s *OrderService) handleOrderFailed(ctx context.Context, ev domain.OrderFailedEvent) error {
	applied, err := s.repo.MarkFailed(ctx, ev.OrderID, ev.Reason)
	if err != nil {
		return fmt.Errorf("mark order %s failed: %w", ev.OrderID, err)
	}
	s.cache.Drop(ctx, ev.OrderID)
	if applied {
		s.lg.Info("order_failed", map[string]any{"order_id": ev.OrderID, "reason": ev.Reason})
	}
	return nil
}

func (s *OrderService) handleTableOccupied(ctx context.Context, ev domain.TableOccupiedEvent) error {
	if err := s.repo.SetTableStatus(ctx, ev.OrderID, ev.Status); err != nil {
		return fmt.Errorf("set table status on order %s: %w", ev.OrderID, err)
	}
	s.cache.Drop(ctx, ev.OrderID)
	return nil
}

// handleTableOccupyFailed is the compensating action: the order never
// became valid, so the aggregate is removed outright and an ORDER_FAILED
// is emitted so the failure is still observable downstream.
func (s *OrderService) handleTableOccupyFailed(ctx context.Context, ev domain.TableOccupyFailedEvent) error {
	deleted, err := s.repo.DeleteOrder(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("delete order %s: %w", ev.OrderID, err)
	}
	s.cache.Drop(ctx, ev.OrderID)
	if !deleted {
		return nil
	}
	s.lg.Info("order_deleted", map[string]any{"order_id": ev.OrderID, "reason": ev.Reason})

	return s.bus.Publish(ctx, domain.EventOrderFailed, domain.OrderFailedEvent{
		OrderID: ev.OrderID,
		Reason:  "Table occupation failed: " + ev.Reason,
	})
}
