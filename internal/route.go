package internal

import (
	"github.com/gofiber/fiber/v2"
	swagger "github.com/gofiber/swagger"

	"github.com/gdbrns/go-whatsapp-send-gateway/docs"
	"github.com/gdbrns/go-whatsapp-send-gateway/internal/config"
	"github.com/gdbrns/go-whatsapp-send-gateway/internal/webhook"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/auth"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/metrics"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"

	ctlAdmin "github.com/gdbrns/go-whatsapp-send-gateway/internal/admin"
	ctlDevice "github.com/gdbrns/go-whatsapp-send-gateway/internal/device"
	ctlHealth "github.com/gdbrns/go-whatsapp-send-gateway/internal/health"
	ctlIndex "github.com/gdbrns/go-whatsapp-send-gateway/internal/index"
	ctlMessage "github.com/gdbrns/go-whatsapp-send-gateway/internal/message"
)

// Deps are the long-lived components the HTTP routes are built over.
type Deps struct {
	Config   config.Config
	Manager  *whatsapp.Manager
	Versions *whatsapp.VersionNegotiator
	Webhooks *webhook.Engine
	Limiter  *router.RateLimiter
}

func Routes(app *fiber.App, deps Deps) {
	slot := deps.Manager.Slot()

	// Configure OpenAPI / Swagger
	specURL := router.BaseURL + "/docs/swagger.json"
	swaggerHandler := swagger.New(swagger.Config{
		URL: specURL,
	})

	// Route for Index
	// ---------------------------------------------
	index := ctlIndex.NewController(slot)
	if router.BaseURL == "" {
		app.Get("/", index.Index)
	} else {
		app.Get(router.BaseURL, index.Index)
		app.Get(router.BaseURL+"/", index.Index)
	}
	app.Get(router.BaseURL+"/qr", index.QR)

	// Route for Health and Metrics
	// ---------------------------------------------
	app.Get(router.BaseURL+"/health", ctlHealth.NewController(slot).Health)
	app.Get(router.BaseURL+"/metrics", metrics.Handler())

	// Route for OpenAPI / Swagger
	// ---------------------------------------------
	app.Get(router.BaseURL+"/docs/swagger.json", func(c *fiber.Ctx) error {
		c.Type("json", "utf-8")
		return c.Send(docs.SwaggerJSON)
	})
	app.Get(router.BaseURL+"/docs/*", swaggerHandler)

	// ============================================================
	// SEND (X-API-Key authentication, rate limited per IP)
	// ============================================================
	service := ctlMessage.NewService(slot, ctlMessage.Options{
		Normalizer:        deps.Config.Normalizer(),
		AdminNumber:       deps.Config.AdminNumber,
		ExistenceCacheTTL: deps.Config.ExistenceCacheTTL,
		NotFoundCacheTTL:  deps.Config.NotFoundCacheTTL,
		Events:            deps.Webhooks,
	})
	message := ctlMessage.NewController(service)
	sendChain := []fiber.Handler{
		auth.APIKeyAuth(deps.Config.APIToken),
		deps.Limiter.Middleware(),
		message.Send,
	}
	app.Post(router.BaseURL+"/send", sendChain...)
	app.Post(router.BaseURL+"/send-message", sendChain...)
	app.Post(router.BaseURL+"/api/send", sendChain...)

	// ============================================================
	// LINKED DEVICE (X-API-Key authentication)
	// ============================================================
	apiKeyMiddleware := auth.APIKeyAuth(deps.Config.APIToken)
	device := ctlDevice.NewController(slot, service)
	app.Get(router.BaseURL+"/devices/me", apiKeyMiddleware, device.GetDeviceMe)
	app.Get(router.BaseURL+"/devices/me/contacts/:phone/registered", apiKeyMiddleware, deps.Limiter.Middleware(), device.CheckRegistered)

	// ============================================================
	// ADMIN (X-Admin-Secret, or X-API-Key without an admin secret)
	// ============================================================
	adminMiddleware := auth.AdminAuth(deps.Config.AdminSecret, deps.Config.APIToken)
	admin := ctlAdmin.NewController(slot, deps.Manager, deps.Versions, deps.Webhooks)

	app.Get(router.BaseURL+"/admin/status", adminMiddleware, admin.GetStatus)
	app.Post(router.BaseURL+"/admin/reconnect", adminMiddleware, admin.Reconnect)
	app.Get(router.BaseURL+"/admin/webhooks/stats", adminMiddleware, admin.GetWebhookStats)
	app.Get(router.BaseURL+"/admin/whatsapp/version", adminMiddleware, admin.GetWhatsAppWebVersion)
	app.Post(router.BaseURL+"/admin/whatsapp/version/refresh", adminMiddleware, admin.RefreshWhatsAppWebVersion)
}
