package order

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

type Order struct {
	ID             int64
	UserID         int64
	TotalAmount    int64
	ShippingAmount int64
	Status         Status

	ShippingName       string
	ShippingAddress    string
	ShippingCity       string
	ShippingPostalCode string
	ShippingPhone      string

	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []OrderItem
}

type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   int64
	Subtotal    int64
}
