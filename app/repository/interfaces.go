package repository

import (
	"github.com/mercadito/tienda/app/models"
	"gorm.io/gorm"
)

// OrderRepository defines the interface for order-related database operations
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByOrderNumber(orderNumber string) (*models.Order, error)
	Update(order *models.Order) error
	MarkPaid(order *models.Order) error
	List(offset, limit int) ([]models.Order, error)
	Count() (int64, error)
}

// ProductRepository defines the interface for product-related database operations
type ProductRepository interface {
	Create(product *models.Product) error
	GetByID(id uint) (*models.Product, error)
	GetBySKU(sku string) (*models.Product, error)
	Update(product *models.Product) error
	DecrementStock(productID uint, quantity int) error
	List(offset, limit int) ([]models.Product, error)
}

// WebhookRepository defines the interface for webhook audit events and the
// payment idempotency ledger
type WebhookRepository interface {
	CreateEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkEventProcessed(id uint, processingError string) error
	GetLedgerEntry(paymentID string) (*models.PaymentLedgerEntry, error)
	ReserveLedgerEntry(paymentID string) (bool, *models.PaymentLedgerEntry, error)
	CommitLedgerEntry(paymentID, outcome string) error
	ReleaseLedgerEntry(paymentID string) error
}

// Repositories aggregates all repository instances
type Repositories struct {
	Order   OrderRepository
	Product ProductRepository
	Webhook WebhookRepository
}

// NewRepositories creates all repositories backed by the given DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:   NewOrderRepository(db),
		Product: NewProductRepository(db),
		Webhook: NewWebhookRepository(db),
	}
}
