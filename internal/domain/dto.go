package domain

type CreateOrderItem struct {
	MenuID   string `json:"menuId"`
	Quantity int    `json:"quantity"`
}

type CreateOrderRequest struct {
	TableID   string            `json:"tableId"`
	TableName string            `json:"tableName,omitempty"`
	Items     []CreateOrderItem `json:"items"`
}

type CreateTableRequest struct {
	Name     string      `json:"name"`
	Capacity int         `json:"capacity"`
	Status   TableStatus `json:"status,omitempty"`
}

type UpdateTableRequest struct {
	Status TableStatus `json:"status"`
}

type UpsertMenuItemRequest struct {
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	Category       string  `json:"category"`
	TotalStock     int     `json:"total_stock"`
	RemainingStock int     `json:"remaining_stock"`
}
