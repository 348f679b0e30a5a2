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
	"mini-pos/internal/microservices/table/repository"
)

// QueueName is the table service's durable subscription.
const QueueName = "table_service_queue"

var RoutingKeys = []string{
	domain.EventTableOccupyRequested,
	domain.EventTableReleaseRequested,
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Dedup short-circuits redelivered events whose first pass ran to
// completion. Redeliveries that crashed between the occupancy commit
// and the publish get past it; the occupied_by owner check in the
// repository turns those into a clean re-emit instead of a failure.
type Dedup interface {
	Seen(ctx context.Context, orderID, event string) bool
	MarkProcessed(ctx context.Context, orderID, event string)
}

type TableServiceInterface interface {
	CreateTable(ctx context.Context, req domain.CreateTableRequest) (domain.Table, error)
	GetTable(ctx context.Context, id string) (domain.Table, error)
	ListTables(ctx context.Context) ([]domain.Table, error)
	SetStatus(ctx context.Context, id string, status domain.TableStatus) error
	DeleteTable(ctx context.Context, id string) error

	HandleEvent(ctx context.Context, body []byte, routingKey string) error
}

type TableService struct {
	repo  repository.TableRepositoryInterface
	bus   Publisher
	dedup Dedup
	lg    *logger.Logger
}

func NewTableService(repo repository.TableRepositoryInterface, bus Publisher, dedup Dedup, lg *logger.Logger) *TableService {
	return &TableService{repo: repo, bus: bus, dedup: dedup, lg: lg}
}

func (s *TableService) CreateTable(ctx context.Context, req domain.CreateTableRequest) (domain.Table, error) {
	status := req.Status
	if status == "" {
		status = domain.TableAvailable
	}
	t := domain.Table{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Status:   status,
		Capacity: req.Capacity,
	}
	if err := s.repo.CreateTable(ctx, t); err != nil {
		return domain.Table{}, fmt.Errorf("create table: %w", err)
	}
	return t, nil
}

func (s *TableService) GetTable(ctx context.Context, id string) (domain.Table, error) {
	return s.repo.GetTable(ctx, id)
}

func (s *TableService) ListTables(ctx context.Context) ([]domain.Table, error) {
	return s.repo.ListTables(ctx)
}

func (s *TableService) SetStatus(ctx context.Context, id string, status domain.TableStatus) error {
	return s.repo.SetStatus(ctx, id, status)
}

func (s *TableService) DeleteTable(ctx context.Context, id string) error {
	return s.repo.DeleteTable(ctx, id)
}

func (s *TableService) HandleEvent(ctx context.Context, body []byte, routingKey string) error {
	switch routingKey {
	case domain.EventTableOccupyRequested:
		var ev domain.TableOccupyRequestedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("%w: decode %s: %v", bus.ErrDeadLetter, routingKey, err)
		}
		return s.handleOccupyRequested(ctx, ev)
	case domain.EventTableReleaseRequested:
		var ev domain.TableReleaseRequestedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("%w: decode %s: %v", bus.ErrDeadLetter, routingKey, err)
		}
		return s.handleReleaseRequested(ctx, ev)
	default:
		s.lg.Debug("event_ignored", map[string]any{"routing_key": routingKey})
		return nil
	}
}

// handleOccupyRequested guards the exclusivity invariant: at most one
// order holds a table occupied at a time. Every failure produces both a
// TABLE_OCCUPY_FAILED (for the compensation) and an ORDER_FAILED (for
// observability); success produces TABLE_OCCUPIED.
func (s *TableService) handleOccupyRequested(ctx context.Context, ev domain.TableOccupyRequestedEvent) error {
	if s.dedup.Seen(ctx, ev.OrderID, domain.EventTableOccupyRequested) {
		s.lg.Debug("occupy_request_deduplicated", map[string]any{"order_id": ev.OrderID})
		return nil
	}

	err := s.repo.Occupy(ctx, ev.TableID, ev.OrderID)
	switch {
	case err == nil:
		if perr := s.bus.Publish(ctx, domain.EventTableOccupied, domain.TableOccupiedEvent{
			OrderID:   ev.OrderID,
			TableID:   ev.TableID,
			TableName: ev.TableName,
			Status:    string(domain.TableOccupied),
		}); perr != nil {
			return perr
		}
		s.lg.Info("table_occupied", map[string]any{"order_id": ev.OrderID, "table_id": ev.TableID})
	case errors.Is(err, repository.ErrNotFound):
		if perr := s.publishOccupyFailure(ctx, ev, "Table not found", "Table not found"); perr != nil {
			return perr
		}
	case errors.Is(err, repository.ErrTableOccupied):
		if perr := s.publishOccupyFailure(ctx, ev, "Table already occupied", "Table already occupied"); perr != nil {
			return perr
		}
	default:
		if perr := s.publishOccupyFailure(ctx, ev, err.Error(), "Table occupation failed: "+err.Error()); perr != nil {
			return perr
		}
	}

	s.dedup.MarkProcessed(ctx, ev.OrderID, domain.EventTableOccupyRequested)
	return nil
}

func (s *TableService) publishOccupyFailure(ctx context.Context, ev domain.TableOccupyRequestedEvent, tableReason, orderReason string) error {
	s.lg.Info("table_occupy_failed", map[string]any{
		"order_id": ev.OrderID, "table_id": ev.TableID, "reason": tableReason,
	})
	if err := s.bus.Publish(ctx, domain.EventTableOccupyFailed, domain.TableOccupyFailedEvent{
		OrderID: ev.OrderID,
		TableID: ev.TableID,
		Reason:  tableReason,
	}); err != nil {
		return err
	}
	return s.bus.Publish(ctx, domain.EventOrderFailed, domain.OrderFailedEvent{
		OrderID: ev.OrderID,
		Reason:  orderReason,
	})
}

// handleReleaseRequested is fire-and-forget from the saga's point of
// view: no event on success, errors logged and swallowed.
func (s *TableService) handleReleaseRequested(ctx context.Context, ev domain.TableReleaseRequestedEvent) error {
	if _, err := s.repo.GetTable(ctx, ev.TableID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.lg.Error("table_release_failed", err, map[string]any{"table_id": ev.TableID})
		}
		return nil
	}
	if err := s.repo.Release(ctx, ev.TableID); err != nil {
		s.lg.Error("table_release_failed", err, map[string]any{"table_id": ev.TableID})
		return nil
	}
	s.lg.Info("table_released", map[string]any{"order_id": ev.OrderID, "table_id": ev.TableID})
	return nil
}
