package models

import "time"

// Order status values. Paid and cancelled are terminal: once an order reaches
// either, no further transition is permitted.
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
	OrderStatusCancelled      = "cancelled"
)

// Order is a customer purchase. OrderNumber is the external reference handed
// to the payment provider; payment notifications are correlated back through
// it. StockReduced guards the one-time inventory decrement on payment.
type Order struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	OrderNumber   string      `gorm:"type:varchar(64);not null;uniqueIndex" json:"order_number"`
	CustomerName  string      `gorm:"type:varchar(255)" json:"customer_name"`
	CustomerEmail string      `gorm:"type:varchar(255);index" json:"customer_email"`
	TotalCents    int64       `gorm:"not null" json:"total_cents"`
	Currency      string      `gorm:"type:varchar(3);not null;default:'ARS'" json:"currency"`
	Status        string      `gorm:"type:varchar(32);not null;default:'pending_payment';index" json:"status"`
	PaymentID     string      `gorm:"type:varchar(64);index" json:"payment_id"`
	StockReduced  bool        `gorm:"default:false" json:"stock_reduced"`
	Items         []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt     time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderItem is a single line of an order.
type OrderItem struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrderID        uint   `gorm:"not null;index" json:"order_id"`
	ProductID      uint   `gorm:"not null" json:"product_id"`
	SKU            string `gorm:"type:varchar(64);not null" json:"sku"`
	Quantity       int    `gorm:"not null" json:"quantity"`
	UnitPriceCents int64  `gorm:"not null" json:"unit_price_cents"`
}

// IsTerminal reports whether the order status admits no further transitions.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusCancelled
}
