package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mercadito/tienda/app/controllers"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Webhook routes are deliberately outside the rate-limited API group:
	// throttling the provider's redeliveries only delays reconciliation.
	app.Post("/webhook/mercadopago", controllers.HandleMercadopagoWebhook)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
