package domain

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderFailed    OrderStatus = "FAILED"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderConfirmed: true, OrderFailed: true},
	OrderConfirmed: {OrderCompleted: true},
	OrderCompleted: {},
	OrderFailed:    {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transition may leave the status.
// CONFIRMED is not terminal (completion is still pending) but it is
// already past the saga's decision point.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderFailed
}

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
)
