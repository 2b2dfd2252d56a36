package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mercadito/tienda/app/repository"
	"github.com/mercadito/tienda/internal/pkg/cache"
	"github.com/mercadito/tienda/internal/pkg/database"
	"github.com/mercadito/tienda/internal/pkg/env"
	"github.com/mercadito/tienda/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	cfg := fiber.Config{
		AppName: "Tienda",
	}
	// Behind a reverse proxy the source IP guard must read the forwarded
	// header, but only from proxies we explicitly trust.
	if proxies := strings.TrimSpace(env.GetEnv("TRUSTED_PROXIES", "")); proxies != "" {
		cfg.EnableTrustedProxyCheck = true
		cfg.ProxyHeader = fiber.HeaderXForwardedFor
		cfg.TrustedProxies = strings.Split(proxies, ",")
	}

	app := fiber.New(cfg)
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
