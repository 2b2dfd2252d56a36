package controllers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/mercadito/tienda/app/models"
	"github.com/mercadito/tienda/app/repository"
	"gorm.io/gorm"
)

var validate = validator.New()

type createOrderItemRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type createOrderRequest struct {
	CustomerName  string                   `json:"customer_name" validate:"required,max=255"`
	CustomerEmail string                   `json:"customer_email" validate:"required,email"`
	Currency      string                   `json:"currency" validate:"omitempty,len=3"`
	Items         []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// HandleCreateOrder creates a pending_payment order from catalog products.
// The generated order number is the external reference later echoed back by
// the payment provider's notifications.
func HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "detail": err.Error()})
	}

	repos := repository.GetGlobalRepositories()

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	order := &models.Order{
		OrderNumber:   newOrderNumber(),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Status:        models.OrderStatusPendingPayment,
	}

	for _, item := range req.Items {
		product, err := repos.Product.GetBySKU(strings.TrimSpace(item.SKU))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_sku", "sku": item.SKU})
			}
			log.Errorf("[Orders] product lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
		}
		if !product.IsActive {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "inactive_product", "sku": item.SKU})
		}
		if currency == "" {
			currency = product.Currency
		}

		order.Items = append(order.Items, models.OrderItem{
			ProductID:      product.ID,
			SKU:            product.SKU,
			Quantity:       item.Quantity,
			UnitPriceCents: product.PriceCents,
		})
		order.TotalCents += product.PriceCents * int64(item.Quantity)
	}
	order.Currency = currency

	if err := repos.Order.Create(order); err != nil {
		log.Errorf("[Orders] creating order: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleGetOrder returns one order by its order number.
func HandleGetOrder(c *fiber.Ctx) error {
	orderNumber := strings.TrimSpace(c.Params("orderNumber"))
	if orderNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "order_number_required"})
	}

	order, err := repository.GetGlobalRepositories().Order.GetByOrderNumber(orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order_not_found"})
		}
		log.Errorf("[Orders] order lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	return c.Status(fiber.StatusOK).JSON(order)
}

func newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:12]
	return "ORD-" + suffix
}
