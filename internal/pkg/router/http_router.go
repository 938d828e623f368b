package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/membergate/membergate/app/controllers"
	"github.com/membergate/membergate/internal/pkg/anet"
	"github.com/membergate/membergate/internal/pkg/billing"
	"github.com/membergate/membergate/internal/pkg/cache"
	"github.com/membergate/membergate/internal/pkg/database"
	"github.com/membergate/membergate/internal/pkg/env"
)

type HttpRouter struct {
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	cfg := anet.NewConfigFromEnv()
	service := billing.NewService(
		billing.NewRepository(database.GetDB()),
		anet.NewClient(cfg),
		billing.NewMailNotifier(),
		billing.RedisTransactionCache{},
		cfg,
	)

	webhooks := controllers.NewWebhookController(service, cfg)
	checkout := controllers.NewCheckoutController(service)

	// Webhooks are not rate limited: the processor retries on non-2xx and a
	// 429 would only delay reconciliation. The signature check gates them.
	app.Post("/webhook/authorizenet", webhooks.HandleWebhook)

	limited := app.Group("/", limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	limited.Post("/checkout", checkout.HandleSignup)
	limited.Post("/memberships/:id/cancel", checkout.HandleCancelMembership)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances. Database 1 keeps limiter keys apart from the cache (DB 0).
func newLimiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
