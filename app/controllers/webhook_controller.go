package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/membergate/membergate/internal/pkg/anet"
	"github.com/membergate/membergate/internal/pkg/billing"
)

// signatureHeader carries the HMAC-SHA512 digest Authorize.net computes over
// the raw request body.
const signatureHeader = "X-ANET-Signature"

// WebhookController terminates Authorize.net webhook deliveries. The
// processor retries until it sees a 2xx, so every outcome that must not be
// retried answers 200 "success".
type WebhookController struct {
	service *billing.Service
	config  anet.Config
}

func NewWebhookController(service *billing.Service, cfg anet.Config) *WebhookController {
	return &WebhookController{service: service, config: cfg}
}

func (wc *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(signatureHeader))

	if !anet.VerifyWebhookSignature(rawBody, signature, wc.config.SignatureKey) {
		return c.Status(fiber.StatusForbidden).SendString("Invalid signature.")
	}

	event, err := anet.ParseWebhookEvent(rawBody)
	if err != nil {
		if errors.Is(err, anet.ErrMissingEventType) {
			return c.Status(fiber.StatusInternalServerError).SendString("Missing event type.")
		}
		return c.Status(fiber.StatusInternalServerError).SendString("Invalid payload.")
	}

	created, stored, err := wc.service.RecordWebhookEvent(event.NotificationID, event.RawType, rawBody, true)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Webhook could not be recorded.")
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		// Retried delivery that already processed cleanly. Acknowledge so
		// the processor stops resending. Deliveries whose processing failed
		// fall through and are handled again; the transaction-level dedup
		// keeps that safe.
		return c.SendString("success")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	handleErr := wc.service.HandleEvent(ctx, event)
	_ = wc.service.MarkWebhookProcessed(stored.ID, handleErr)
	if handleErr != nil {
		if errors.Is(handleErr, anet.ErrMissingTransactionID) {
			return c.Status(fiber.StatusInternalServerError).SendString("Missing transaction ID.")
		}
		// Non-2xx makes the processor retry; the idempotent event store and
		// payment index make the retry safe.
		return c.Status(fiber.StatusInternalServerError).SendString("Event processing failed.")
	}

	return c.SendString("success")
}
