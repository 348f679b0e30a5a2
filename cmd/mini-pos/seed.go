package main

import (
	"context"

	"github.com/google/uuid"

	"mini-pos/internal/common/config"
	"mini-pos/internal/common/db"
	"mini-pos/internal/common/logger"
	"mini-pos/internal/domain"
)

// seed loads a demo dataset: a small menu (one item deliberately out of
// stock) and three tables in mixed states. Re-running wipes and reloads.
func seed(ctx context.Context, cfg config.Config, lg *logger.Logger) error {
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	menus := []domain.MenuItem{
		{ID: uuid.NewString(), Name: "Pizza", Price: 10, Category: "Food", TotalStock: 100, RemainingStock: 100},
		{ID: uuid.NewString(), Name: "Burger", Price: 7, Category: "Food", TotalStock: 100, RemainingStock: 100},
		{ID: uuid.NewString(), Name: "Sandwich", Price: 5, Category: "Food", TotalStock: 100, RemainingStock: 100},
		{ID: uuid.NewString(), Name: "Icecream", Price: 4, Category: "Dessert", TotalStock: 100, RemainingStock: 100},
		{ID: uuid.NewString(), Name: "Cold drink", Price: 3, Category: "Beverage", TotalStock: 100, RemainingStock: 100},
		{ID: uuid.NewString(), Name: "Pasta", Price: 8, Category: "Food", TotalStock: 0, RemainingStock: 0},
	}
	tables := []domain.Table{
		{ID: uuid.NewString(), Name: "Table 1 (R0)", Status: domain.TableAvailable, Capacity: 4},
		{ID: uuid.NewString(), Name: "Table 2 (R1)", Status: domain.TableAvailable, Capacity: 2},
		{ID: uuid.NewString(), Name: "Table 3 (R2)", Status: domain.TableOccupied, Capacity: 6},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, t := range []string{"stock_deductions", "order_items", "orders", "menu_items", "tables"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+t); err != nil {
			return err
		}
	}
	for _, m := range menus {
		if _, err := tx.Exec(ctx, `
			INSERT INTO menu_items (id, name, price, category, total_stock, remaining_stock)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, m.ID, m.Name, m.Price, m.Category, m.TotalStock, m.RemainingStock); err != nil {
			return err
		}
	}
	for _, t := range tables {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tables (id, name, status, capacity) VALUES ($1, $2, $3, $4)
		`, t.ID, t.Name, t.Status, t.Capacity); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	lg.Info("seed_done", map[string]any{"menus": len(menus), "tables": len(tables)})
	return nil
}
