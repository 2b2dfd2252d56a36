package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/mercadito/tienda/app/controllers"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	v1 := api.Group("/v1")
	v1.Post("/orders", controllers.HandleCreateOrder)
	v1.Get("/orders/:orderNumber", controllers.HandleGetOrder)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
