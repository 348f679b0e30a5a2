package domain

import "time"

// Order is owned by the order service; table and menu services only
// observe it through events and never touch the store directly.
type Order struct {
	ID            string      `json:"id"`
	TableID       string      `json:"tableId"`
	TableName     string      `json:"tableName,omitempty"`
	Items         []OrderItem `json:"items"`
	Status        OrderStatus `json:"status"`
	GrandTotal    *float64    `json:"grandTotal,omitempty"`
	FailureReason string      `json:"failureReason,omitempty"`
	// TableStatus mirrors what the table service reported for this order.
	// Informational only, never drives the order's own status.
	TableStatus string     `json:"tableStatus,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// OrderItem starts with just menuId+quantity; name, price and lineTotal
// are filled in by the menu service during enrichment.
type OrderItem struct {
	MenuID    string   `json:"menuId"`
	Quantity  int      `json:"quantity"`
	MenuName  string   `json:"menuName,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	LineTotal *float64 `json:"lineTotal,omitempty"`
}

type Table struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Status TableStatus `json:"status"`
	// OccupiedBy is the id of the order holding the table while occupied.
	// Empty for available tables and for administrative overrides.
	OccupiedBy string `json:"occupiedBy,omitempty"`
	Capacity   int    `json:"capacity"`
}

type MenuItem struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	Category       string  `json:"category"`
	TotalStock     int     `json:"total_stock"`
	RemainingStock int     `json:"remaining_stock"`
}
