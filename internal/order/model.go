package order

import "time"

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

type PaymentMethod string

const (
	PaymentBanking PaymentMethod = "banking"
	PaymentCOD     PaymentMethod = "cod"
)

type Order struct {
	ID        uint
	OrderCode int64
	// Nil for guest checkouts.
	UserID        *uint
	Status        OrderStatus
	Paid          bool
	Total         int64
	PaymentMethod PaymentMethod

	CustomerName string
	Phone        string
	Email        string
	Address      string
	Province     string
	District     string
	Ward         string

	// Only set for banking orders; the sweep deletes the order once this
	// passes without payment.
	ExpireBankingAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []OrderItem
}

type OrderItem struct {
	ID        uint
	OrderID   uint
	ProductID string
	Quantity  int
	// Price is the unit price snapshot taken at order creation. Catalog price
	// changes after that never touch it.
	Price       int64
	ProductName string
}

type OrderFilterInput struct {
	Search        *string
	Status        *OrderStatus
	PaymentMethod *PaymentMethod
	DateFrom      *time.Time
	DateTo        *time.Time
}

type OrderSortField string

const (
	OrderSortFieldCreatedAt OrderSortField = "CREATED_AT"
	OrderSortFieldTotal     OrderSortField = "TOTAL"
)

type SortDirection string

const (
	SortDirectionAsc  SortDirection = "ASC"
	SortDirectionDesc SortDirection = "DESC"
)

type OrderSortInput struct {
	Field     OrderSortField
	Direction SortDirection
}
