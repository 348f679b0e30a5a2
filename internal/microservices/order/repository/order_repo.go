package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mini-pos/internal/domain"
)

var ErrNotFound = errors.New("order not found")

// OrderRepositoryInterface is the order aggregate store. Conditional
// mutations report whether they applied so handlers stay idempotent under
// redelivery: a false return means the aggregate was already past that
// transition (or gone) and the event can be acked without effect.
type OrderRepositoryInterface interface {
	CreateOrder(ctx context.Context, o domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)

	ConfirmOrder(ctx context.Context, id string, items []domain.OrderItem, grandTotal float64) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) (bool, error)
	SetTableStatus(ctx context.Context, id, tableStatus string) error
	CompleteOrder(ctx context.Context, id string, completedAt time.Time) (bool, error)
	DeleteOrder(ctx context.Context, id string) (bool, error)
}

type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) CreateOrder(ctx context.Context, o domain.Order) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, table_id, table_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.ID, o.TableID, o.TableName, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, menu_id, quantity)
			VALUES ($1, $2, $3)
		`, o.ID, it.MenuID, it.Quantity)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", it.MenuID, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.db.QueryRow(ctx, `
		SELECT id, table_id, table_name, status, grand_total,
		       COALESCE(failure_reason, ''), COALESCE(table_status, ''),
		       created_at, updated_at, completed_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.TableID, &o.TableName, &o.Status, &o.GrandTotal,
		&o.FailureReason, &o.TableStatus, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	items, err := r.itemsFor(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	o.Items = items
	return o, nil
}

func (r *OrderRepository) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, table_id, table_name, status, grand_total,
		       COALESCE(failure_reason, ''), COALESCE(table_status, ''),
		       created_at, updated_at, completed_at
		FROM orders ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.TableID, &o.TableName, &o.Status, &o.GrandTotal,
			&o.FailureReason, &o.TableStatus, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		items, err := r.itemsFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (r *OrderRepository) itemsFor(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT menu_id, quantity, menu_name, price, line_total
		FROM order_items WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		var name *string
		if err := rows.Scan(&it.MenuID, &it.Quantity, &name, &it.Price, &it.LineTotal); err != nil {
			return nil, err
		}
		if name != nil {
			it.MenuName = *name
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ConfirmOrder applies the enrichment: overwrite the item rows with the
// priced ones, store the total and flip PENDING/CONFIRMED -> CONFIRMED.
// Re-applying the same enrichment rewrites identical rows. Terminal
// statuses and missing orders are left alone.
func (r *OrderRepository) ConfirmOrder(ctx context.Context, id string, items []domain.OrderItem, grandTotal float64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status domain.OrderStatus
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if status.Terminal() {
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return false, err
	}
	for _, it := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, menu_id, quantity, menu_name, price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, it.MenuID, it.Quantity, it.MenuName, it.Price, it.LineTotal)
		if err != nil {
			return false, err
		}
	}
	_, err = tx.Exec(ctx, `
		UPDATE orders SET status = $2, grand_total = $3, updated_at = now()
		WHERE id = $1
	`, id, domain.OrderConfirmed, grandTotal)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// MarkFailed moves PENDING -> FAILED. Orders already confirmed, finished
// or deleted are not touched; FAILED is reachable from PENDING only.
func (r *OrderRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE orders SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, domain.OrderFailed, reason, domain.OrderPending)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// SetTableStatus records what the table service reported. Informational;
// a missing order is a no-op.
func (r *OrderRepository) SetTableStatus(ctx context.Context, id, tableStatus string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE orders SET table_status = $2, updated_at = now() WHERE id = $1
	`, id, tableStatus)
	return err
}

func (r *OrderRepository) CompleteOrder(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE orders SET status = $2, completed_at = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, domain.OrderCompleted, completedAt, domain.OrderConfirmed)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// DeleteOrder removes the aggregate entirely (compensation for a failed
// table occupation). Completed orders are kept; a late redelivered
// occupy-failure must not erase fulfilled business state.
func (r *OrderRepository) DeleteOrder(ctx context.Context, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status domain.OrderStatus
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if status == domain.OrderCompleted {
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
