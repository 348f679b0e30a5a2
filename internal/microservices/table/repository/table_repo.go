package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mini-pos/internal/domain"
)

var (
	ErrNotFound      = errors.New("table not found")
	ErrTableOccupied = errors.New("table already occupied")
)

type TableRepositoryInterface interface {
	CreateTable(ctx context.Context, t domain.Table) error
	GetTable(ctx context.Context, id string) (domain.Table, error)
	ListTables(ctx context.Context) ([]domain.Table, error)
	SetStatus(ctx context.Context, id string, status domain.TableStatus) error
	DeleteTable(ctx context.Context, id string) error

	// Occupy flips available -> occupied for the given order atomically.
	// The status check and the write happen in one transaction with the
	// row locked, so two concurrent occupy requests for the same table
	// cannot both win. A table already occupied by the same order is a
	// success: a redelivered occupy request lands here after the commit
	// and must not read its own occupation as a conflict.
	Occupy(ctx context.Context, id, orderID string) error
	// Release sets the table back to available. Missing tables are a no-op.
	Release(ctx context.Context, id string) error
}

type TableRepository struct {
	db *pgxpool.Pool
}

func NewTableRepository(db *pgxpool.Pool) *TableRepository {
	return &TableRepository{db: db}
}

func (r *TableRepository) CreateTable(ctx context.Context, t domain.Table) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tables (id, name, status, capacity) VALUES ($1, $2, $3, $4)
	`, t.ID, t.Name, t.Status, t.Capacity)
	return err
}

func (r *TableRepository) GetTable(ctx context.Context, id string) (domain.Table, error) {
	var t domain.Table
	err := r.db.QueryRow(ctx, `
		SELECT id, name, status, COALESCE(occupied_by, ''), capacity FROM tables WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Status, &t.OccupiedBy, &t.Capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Table{}, ErrNotFound
	}
	return t, err
}

func (r *TableRepository) ListTables(ctx context.Context) ([]domain.Table, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, status, COALESCE(occupied_by, ''), capacity FROM tables ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Table
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.OccupiedBy, &t.Capacity); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetStatus is the administrative override; it bypasses the occupancy
// guard on purpose and drops any recorded owner.
func (r *TableRepository) SetStatus(ctx context.Context, id string, status domain.TableStatus) error {
	ct, err := r.db.Exec(ctx, `UPDATE tables SET status = $2, occupied_by = NULL WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TableRepository) DeleteTable(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM tables WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TableRepository) Occupy(ctx context.Context, id, orderID string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status     domain.TableStatus
		occupiedBy string
	)
	err = tx.QueryRow(ctx, `
		SELECT status, COALESCE(occupied_by, '') FROM tables WHERE id = $1 FOR UPDATE
	`, id).Scan(&status, &occupiedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status == domain.TableOccupied {
		if occupiedBy == orderID {
			return tx.Commit(ctx)
		}
		return ErrTableOccupied
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tables SET status = $2, occupied_by = $3 WHERE id = $1
	`, id, domain.TableOccupied, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *TableRepository) Release(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE tables SET status = $2, occupied_by = NULL WHERE id = $1
	`, id, domain.TableAvailable)
	return err
}
