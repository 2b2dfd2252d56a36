package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/mercadito/tienda/app/repository"
	"github.com/mercadito/tienda/internal/pkg/mercadopago"
	"github.com/mercadito/tienda/internal/pkg/paymentconfig"
	"github.com/mercadito/tienda/internal/pkg/webhook"
)

// HandleMercadopagoWebhook receives asynchronous payment notifications from
// Mercadopago. The response code steers the provider's redelivery: any
// non-200 makes it retry later.
func HandleMercadopagoWebhook(c *fiber.Ctx) error {
	cfg, err := paymentconfig.Load()
	if err != nil {
		log.Errorf("[Webhook] loading payment config: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "config_unavailable"})
	}
	if !cfg.Mercadopago.Enabled {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	creds, err := paymentconfig.LoadCredentials()
	if err != nil {
		log.Errorf("[Webhook] loading payment credentials: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "config_unavailable"})
	}
	modeCreds, err := creds.ForMode(cfg.Mercadopago.Mode)
	if err != nil {
		log.Errorf("[Webhook] resolving credentials: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "config_unavailable"})
	}

	n := parseNotification(c)

	svc := webhook.NewService(
		cfg.Mercadopago,
		modeCreds,
		mercadopago.NewClient(modeCreds.AccessToken),
		repository.GetGlobalRepositories(),
		webhook.NewRedisLocker(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	outcome, err := svc.Process(ctx, n)
	if err != nil {
		return respondWebhookError(c, n, err)
	}

	resp := fiber.Map{"ok": true, "outcome": outcome.Code}
	if outcome.Code == webhook.OutcomeDuplicate {
		resp["duplicate"] = true
	}
	if outcome.OrderStatus != "" {
		resp["order_status"] = outcome.OrderStatus
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// parseNotification collects the provider-supplied identifiers from query,
// headers, and body. Only identifiers are read here; payment state claims in
// the body are untrusted and never used.
func parseNotification(c *fiber.Ctx) webhook.Notification {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	topic := strings.TrimSpace(c.Query("type", c.Query("topic")))
	dataID := strings.TrimSpace(c.Query("data.id", c.Query("id")))

	if topic == "" || dataID == "" {
		var body struct {
			Type  string `json:"type"`
			Topic string `json:"topic"`
			Data  struct {
				ID json.RawMessage `json:"id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rawBody, &body); err == nil {
			if topic == "" {
				topic = strings.TrimSpace(body.Type)
			}
			if topic == "" {
				topic = strings.TrimSpace(body.Topic)
			}
			if dataID == "" {
				// the provider sends data.id as string or number
				dataID = strings.Trim(strings.TrimSpace(string(body.Data.ID)), `"`)
			}
		}
	}

	return webhook.Notification{
		Topic:           topic,
		DataID:          dataID,
		RequestID:       strings.TrimSpace(c.Get("x-request-id")),
		SignatureHeader: strings.TrimSpace(c.Get("x-signature")),
		ClientIP:        c.IP(),
		PayloadJSON:     string(rawBody),
		ReceivedAt:      time.Now(),
	}
}

func respondWebhookError(c *fiber.Ctx, n webhook.Notification, err error) error {
	switch {
	case errors.Is(err, mercadopago.ErrSignatureMismatch),
		errors.Is(err, webhook.ErrStaleNotification),
		errors.Is(err, webhook.ErrFutureTimestamp),
		errors.Is(err, webhook.ErrUntrustedSource):
		log.Warnf("[Webhook] rejected notification (topic=%s data_id=%s ip=%s): %v", n.Topic, n.DataID, n.ClientIP, err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})

	case errors.Is(err, mercadopago.ErrPaymentNotFound):
		log.Warnf("[Webhook] payment not found at provider (data_id=%s): %v", n.DataID, err)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment_not_found"})

	case errors.Is(err, webhook.ErrOrderNotFound):
		// Provider may notify about test or orphan payments; acknowledge so
		// it does not retry an unfixable mismatch forever.
		log.Warnf("[Webhook] %v (data_id=%s)", err, n.DataID)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})

	case errors.Is(err, mercadopago.ErrProviderUnavailable),
		errors.Is(err, webhook.ErrInFlight):
		log.Warnf("[Webhook] retryable failure (data_id=%s): %v", n.DataID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_unavailable"})

	case errors.Is(err, webhook.ErrStockInvariant):
		log.Errorf("[Webhook] INVARIANT VIOLATION, operator attention required: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})

	default:
		log.Errorf("[Webhook] processing failed (topic=%s data_id=%s): %v", n.Topic, n.DataID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
}
