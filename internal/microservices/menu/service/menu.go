package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mini-pos/internal/common/bus"
	"mini-pos/internal/common/logger"
	"mini-pos/internal/domain"
	"mini-pos/internal/microservices/menu/repository"
)

// QueueName is the menu service's durable subscription.
const QueueName = "menu_service_queue"

// The menu service reacts to new orders (deduct stock) and to failed
// table occupations (give the stock back for the dead order).
var RoutingKeys = []string{
	domain.EventOrderCreated,
	domain.EventTableOccupyFailed,
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Dedup interface {
	Seen(ctx context.Context, orderID, event string) bool
	MarkProcessed(ctx context.Context, orderID, event string)
}

type MenuServiceInterface interface {
	CreateMenuItem(ctx context.Context, req domain.UpsertMenuItemRequest) (domain.MenuItem, error)
	GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error)
	ListMenuItems(ctx context.Context) ([]domain.MenuItem, error)
	UpdateMenuItem(ctx context.Context, id string, req domain.UpsertMenuItemRequest) error
	DeleteMenuItem(ctx context.Context, id string) error

	HandleEvent(ctx context.Context, body []byte, routingKey string) error
}

type MenuService struct {
	repo  repository.MenuRepositoryInterface
	bus   Publisher
	dedup Dedup
	lg    *logger.Logger
}

func NewMenuService(repo repository.MenuRepositoryInterface, bus Publisher, dedup Dedup, lg *logger.Logger) *MenuService {
	return &MenuService{repo: repo, bus: bus, dedup: dedup, lg: lg}
}

func (s *MenuService) CreateMenuItem(ctx context.Context, req domain.UpsertMenuItemRequest) (domain.MenuItem, error) {
	m := domain.MenuItem{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Price:          req.Price,
		Category:       req.Category,
		TotalStock:     req.TotalStock,
		RemainingStock: req.RemainingStock,
	}
	if err := s.repo.CreateMenuItem(ctx, m); err != nil {
		return domain.MenuItem{}, fmt.Errorf("create menu item: %w", err)
	}
	return m, nil
}

func (s *MenuService) GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error) {
	return s.repo.GetMenuItem(ctx, id)
}

func (s *MenuService) ListMenuItems(ctx context.Context) ([]domain.MenuItem, error) {
	return s.repo.ListMenuItems(ctx)
}

func (s *MenuService) UpdateMenuItem(ctx context.Context, id string, req domain.UpsertMenuItemRequest) error {
	return s.repo.UpdateMenuItem(ctx, id, req)
}

func (s *MenuService) DeleteMenuItem(ctx context.Context, id string) error {
	return s.repo.DeleteMenuItem(ctx, id)
}

func (s *MenuService) HandleEvent(ctx context.Context, body []byte, routingKey string) error {
	switch routingKey {
	case domain.EventOrderCreated:
		var ev domain.OrderCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("%w: decode %s: %v", bus.ErrDeadLetter, routingKey, err)
		}
		return s.handleOrderCreated(ctx, ev)
	case domain.EventTableOccupyFailed:
		var ev domain.TableOccupyFailedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("%w: decode %s: %v", bus.ErrDeadLetter, routingKey, err)
		}
		return s.handleTableOccupyFailed(ctx, ev)
	default:
		s.lg.Debug("event_ignored", map[string]any{"routing_key": routingKey})
		return nil
	}
}

// handleOrderCreated validates and deducts stock for the whole order in
// one store transaction; every item passes or nothing is written. The
// outcome is always an event: ORDER_ENRICHED with the priced items, or
// ORDER_FAILED tagged OUT_OF_STOCK / VALIDATION_FAILED.
func (s *MenuService) handleOrderCreated(ctx context.Context, ev domain.OrderCreatedEvent) error {
	if s.dedup.Seen(ctx, ev.OrderID, domain.EventOrderCreated) {
		s.lg.Debug("order_created_deduplicated", map[string]any{"order_id": ev.OrderID})
		return nil
	}
	// The occupy failure for this order may have raced ahead of its
	// creation event; deducting now would hold stock for a dead order.
	if s.dedup.Seen(ctx, ev.OrderID, domain.EventTableOccupyFailed) {
		s.lg.Debug("order_created_after_occupy_failure", map[string]any{"order_id": ev.OrderID})
		return nil
	}

	// A redelivered event after a commit must re-emit the same
	// enrichment, not deduct twice.
	if items, total, found, err := s.repo.RecordedDeduction(ctx, ev.OrderID); err != nil {
		return fmt.Errorf("lookup deduction for %s: %w", ev.OrderID, err)
	} else if found {
		if perr := s.publishEnriched(ctx, ev.OrderID, items, total); perr != nil {
			return perr
		}
		s.dedup.MarkProcessed(ctx, ev.OrderID, domain.EventOrderCreated)
		return nil
	}

	items, total, err := s.repo.DeductForOrder(ctx, ev.OrderID, collapseItems(ev.Items))
	if err != nil {
		reason := domain.ReasonValidationFailed
		if errors.Is(err, repository.ErrOutOfStock) {
			reason = domain.ReasonOutOfStock
		}
		s.lg.Error("stock_deduction_failed", err, map[string]any{"order_id": ev.OrderID, "reason": reason})
		if perr := s.bus.Publish(ctx, domain.EventOrderFailed, domain.OrderFailedEvent{
			OrderID: ev.OrderID,
			Reason:  reason,
		}); perr != nil {
			return perr
		}
		s.dedup.MarkProcessed(ctx, ev.OrderID, domain.EventOrderCreated)
		return nil
	}

	if perr := s.publishEnriched(ctx, ev.OrderID, items, total); perr != nil {
		return perr
	}
	s.dedup.MarkProcessed(ctx, ev.OrderID, domain.EventOrderCreated)
	s.lg.Info("stock_deducted", map[string]any{"order_id": ev.OrderID, "grand_total": total})
	return nil
}

// collapseItems merges duplicate menu lines into one, summing quantities.
// The ledger keeps a single row per (order, menu item); without merging,
// duplicate lines would deduct the full amount but record only part of
// it, so a later restore would give back less than was taken.
func collapseItems(items []domain.OrderItem) []domain.OrderItem {
	idx := make(map[string]int, len(items))
	out := make([]domain.OrderItem, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.MenuID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.MenuID] = len(out)
		out = append(out, domain.OrderItem{MenuID: it.MenuID, Quantity: it.Quantity})
	}
	return out
}

func (s *MenuService) publishEnriched(ctx context.Context, orderID string, items []domain.OrderItem, total float64) error {
	return s.bus.Publish(ctx, domain.EventOrderEnriched, domain.OrderEnrichedEvent{
		OrderID:    orderID,
		Items:      items,
		GrandTotal: total,
	})
}

// handleTableOccupyFailed compensates a dead order: whatever stock its
// deduction took is put back. No-op when nothing was deducted.
func (s *MenuService) handleTableOccupyFailed(ctx context.Context, ev domain.TableOccupyFailedEvent) error {
	if s.dedup.Seen(ctx, ev.OrderID, domain.EventTableOccupyFailed) {
		return nil
	}
	if err := s.repo.RestoreForOrder(ctx, ev.OrderID); err != nil {
		return fmt.Errorf("restore stock for %s: %w", ev.OrderID, err)
	}
	s.dedup.MarkProcessed(ctx, ev.OrderID, domain.EventTableOccupyFailed)
	s.lg.Info("stock_restored", map[string]any{"order_id": ev.OrderID})
	return nil
}
