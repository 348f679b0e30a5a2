package domain

// Event names double as routing keys on the topic exchange: every payload
// is published with its event name as the key and consumers bind exactly
// the names they react to.
const (
	EventOrderCreated  = "ORDER_CREATED"
	EventOrderEnriched = "ORDER_ENRICHED"
	EventOrderFailed   = "ORDER_FAILED"

	EventTableOccupyRequested  = "TABLE_OCCUPY_REQUESTED"
	EventTableOccupied         = "TABLE_OCCUPIED"
	EventTableOccupyFailed     = "TABLE_OCCUPY_FAILED"
	EventTableReleaseRequested = "TABLE_RELEASE_REQUESTED"
)

// Failure reason tags carried in ORDER_FAILED by the menu service.
const (
	ReasonOutOfStock       = "OUT_OF_STOCK"
	ReasonValidationFailed = "VALIDATION_FAILED"
)

type OrderCreatedEvent struct {
	OrderID string      `json:"orderId"`
	TableID string      `json:"tableId"`
	Items   []OrderItem `json:"items"`
}

type OrderEnrichedEvent struct {
	OrderID    string      `json:"orderId"`
	Items      []OrderItem `json:"items"`
	GrandTotal float64     `json:"grandTotal"`
}

type OrderFailedEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

type TableOccupyRequestedEvent struct {
	OrderID   string `json:"orderId"`
	TableID   string `json:"tableId"`
	TableName string `json:"tableName,omitempty"`
}

type TableOccupiedEvent struct {
	OrderID   string `json:"orderId"`
	TableID   string `json:"tableId"`
	TableName string `json:"tableName,omitempty"`
	Status    string `json:"status"`
}

type TableOccupyFailedEvent struct {
	OrderID string `json:"orderId"`
	TableID string `json:"tableId"`
	Reason  string `json:"reason"`
}

type TableReleaseRequestedEvent struct {
	OrderID   string `json:"orderId"`
	TableID   string `json:"tableId"`
	TableName string `json:"tableName,omitempty"`
}
