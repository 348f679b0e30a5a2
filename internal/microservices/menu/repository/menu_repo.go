package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mini-pos/internal/domain"
)

var (
	ErrNotFound   = errors.New("menu item not found")
	ErrOutOfStock = errors.New("OUT_OF_STOCK")
)

type MenuRepositoryInterface interface {
	CreateMenuItem(ctx context.Context, m domain.MenuItem) error
	GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error)
	ListMenuItems(ctx context.Context) ([]domain.MenuItem, error)
	UpdateMenuItem(ctx context.Context, id string, req domain.UpsertMenuItemRequest) error
	DeleteMenuItem(ctx context.Context, id string) error

	// DeductForOrder validates and deducts stock for every item of the
	// order in one transaction: all rows or none. On success it returns
	// the enriched items (name, unit price, line total) and the grand
	// total, and records what was deducted so the deduction can be
	// replayed or reversed per order.
	DeductForOrder(ctx context.Context, orderID string, items []domain.OrderItem) ([]domain.OrderItem, float64, error)

	// RecordedDeduction rebuilds the enrichment from an earlier deduction,
	// if one exists. Lets a redelivered ORDER_CREATED re-emit the same
	// ORDER_ENRICHED without touching stock again.
	RecordedDeduction(ctx context.Context, orderID string) ([]domain.OrderItem, float64, bool, error)

	// RestoreForOrder puts back whatever DeductForOrder took for the
	// order and marks the records released. Idempotent.
	RestoreForOrder(ctx context.Context, orderID string) error
}

type MenuRepository struct {
	db *pgxpool.Pool
}

func NewMenuRepository(db *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{db: db}
}

func (r *MenuRepository) CreateMenuItem(ctx context.Context, m domain.MenuItem) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO menu_items (id, name, price, category, total_stock, remaining_stock)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.Name, m.Price, m.Category, m.TotalStock, m.RemainingStock)
	return err
}

func (r *MenuRepository) GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error) {
	var m domain.MenuItem
	err := r.db.QueryRow(ctx, `
		SELECT id, name, price, category, total_stock, remaining_stock
		FROM menu_items WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Price, &m.Category, &m.TotalStock, &m.RemainingStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MenuItem{}, ErrNotFound
	}
	return m, err
}

func (r *MenuRepository) ListMenuItems(ctx context.Context) ([]domain.MenuItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, price, category, total_stock, remaining_stock
		FROM menu_items ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MenuItem
	for rows.Next() {
		var m domain.MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Category, &m.TotalStock, &m.RemainingStock); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MenuRepository) UpdateMenuItem(ctx context.Context, id string, req domain.UpsertMenuItemRequest) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE menu_items
		SET name = $2, price = $3, category = $4, total_stock = $5, remaining_stock = $6
		WHERE id = $1
	`, id, req.Name, req.Price, req.Category, req.TotalStock, req.RemainingStock)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MenuRepository) DeleteMenuItem(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MenuRepository) DeductForOrder(ctx context.Context, orderID string, items []domain.OrderItem) ([]domain.OrderItem, float64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	enriched := make([]domain.OrderItem, 0, len(items))
	var grandTotal float64

	for _, it := range items {
		var (
			name      string
			price     float64
			remaining int
		)
		err := tx.QueryRow(ctx, `
			SELECT name, price, remaining_stock FROM menu_items WHERE id = $1 FOR UPDATE
		`, it.MenuID).Scan(&name, &price, &remaining)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, it.MenuID)
		}
		if err != nil {
			return nil, 0, err
		}
		if remaining < it.Quantity {
			return nil, 0, fmt.Errorf("%w: %s (requested: %d, available: %d)",
				ErrOutOfStock, name, it.Quantity, remaining)
		}

		lineTotal := price * float64(it.Quantity)
		grandTotal += lineTotal

		if _, err := tx.Exec(ctx, `
			UPDATE menu_items SET remaining_stock = remaining_stock - $2 WHERE id = $1
		`, it.MenuID, it.Quantity); err != nil {
			return nil, 0, err
		}
		// Callers merge duplicate lines per menu item; the additive
		// conflict clause keeps the ledger equal to the deducted total
		// even if a duplicate slips through.
		if _, err := tx.Exec(ctx, `
			INSERT INTO stock_deductions (order_id, menu_id, menu_name, quantity, price, line_total, status)
			VALUES ($1, $2, $3, $4, $5, $6, 'DEDUCTED')
			ON CONFLICT (order_id, menu_id) DO UPDATE
			SET quantity = stock_deductions.quantity + EXCLUDED.quantity,
			    line_total = stock_deductions.line_total + EXCLUDED.line_total
		`, orderID, it.MenuID, name, it.Quantity, price, lineTotal); err != nil {
			return nil, 0, err
		}

		p, lt := price, lineTotal
		enriched = append(enriched, domain.OrderItem{
			MenuID:    it.MenuID,
			Quantity:  it.Quantity,
			MenuName:  name,
			Price:     &p,
			LineTotal: &lt,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return enriched, grandTotal, nil
}

func (r *MenuRepository) RecordedDeduction(ctx context.Context, orderID string) ([]domain.OrderItem, float64, bool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT menu_id, menu_name, quantity, price, line_total
		FROM stock_deductions WHERE order_id = $1 AND status = 'DEDUCTED' ORDER BY id
	`, orderID)
	if err != nil {
		return nil, 0, false, err
	}
	defer rows.Close()

	var (
		items []domain.OrderItem
		total float64
	)
	for rows.Next() {
		var (
			it    domain.OrderItem
			price float64
			lt    float64
		)
		if err := rows.Scan(&it.MenuID, &it.MenuName, &it.Quantity, &price, &lt); err != nil {
			return nil, 0, false, err
		}
		it.Price, it.LineTotal = &price, &lt
		total += lt
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, false, err
	}
	return items, total, len(items) > 0, nil
}

func (r *MenuRepository) RestoreForOrder(ctx context.Context, orderID string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT menu_id, quantity FROM stock_deductions
		WHERE order_id = $1 AND status = 'DEDUCTED' FOR UPDATE
	`, orderID)
	if err != nil {
		return err
	}
	type rec struct {
		menuID string
		qty    int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.menuID, &x.qty); err != nil {
			rows.Close()
			return err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(recs) == 0 {
		return tx.Commit(ctx)
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx, `
			UPDATE menu_items SET remaining_stock = remaining_stock + $2 WHERE id = $1
		`, x.menuID, x.qty); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE stock_deductions SET status = 'RELEASED' WHERE order_id = $1 AND status = 'DEDUCTED'
	`, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
