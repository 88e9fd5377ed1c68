package main

// @title Go WhatsApp Send Gateway
// @version 1.0.0
// @description Single-account WhatsApp gateway: pair by QR code, then send text messages over HTTP

// @license.name MIT

// @BasePath /

// @securityDefinitions.apikey APIKeyAuth
// @in header
// @name X-API-Key
// @description Shared API token for sending messages

// @securityDefinitions.apikey AdminAuth
// @in header
// @name X-Admin-Secret
// @description Admin secret for operator endpoints (X-API-Key is accepted when no admin secret is configured)

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/gdbrns/go-whatsapp-send-gateway/internal"
	"github.com/gdbrns/go-whatsapp-send-gateway/internal/config"
	"github.com/gdbrns/go-whatsapp-send-gateway/internal/webhook"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/auth"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Print(nil).Fatal("Invalid configuration: " + err.Error())
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session Store
	container, err := whatsapp.OpenContainer(ctx, cfg.Store)
	if err != nil {
		log.Print(nil).Fatal("Failed to open WhatsApp session store: " + err.Error())
	}

	// Webhooks
	events, err := webhook.NewEngine(webhook.Options{
		URL:          cfg.WebhookURL,
		Secret:       cfg.WebhookSecret,
		Workers:      cfg.WebhookWorkers,
		RetryLimit:   cfg.WebhookRetryLimit,
		AllowPrivate: cfg.WebhookAllowPrivate,
	})
	if err != nil {
		log.Print(nil).Fatal(err.Error())
	}

	// Connection Manager
	versions := whatsapp.NewVersionNegotiator(nil, cfg.VersionRefreshInterval)
	manager := whatsapp.NewManager(
		whatsapp.NewMeowDialer(container, versions, cfg.ProxyURL),
		whatsapp.NewSlot(),
		whatsapp.WithBackOff(cfg.BackOff()),
		whatsapp.WithHooks(internal.Hooks(cfg, events)),
	)

	// Intialize Cron
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		ErrorHandler:          router.HttpErrorHandler,
		BodyLimit:             router.BodyLimitBytes(),
		DisableStartupMessage: true,

		EnableTrustedProxyCheck: true,
		TrustedProxies:          router.TrustedProxies,
	})

	// Request ID + panic recovery (structured JSON)
	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())

	// Router Compression
	app.Use(compress.New(compress.Config{
		Level: compress.Level(router.GZipLevel),
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Path(), "docs") || strings.HasSuffix(c.Path(), "/qr")
		},
	}))

	// Router CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins: router.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, " + auth.HeaderAPIKey + ", " + auth.HeaderAdminSecret,
		AllowMethods: "GET,POST",
	}))

	// Router Security
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))

	// Router Cache
	app.Use(router.HttpCacheInMemory(router.CacheTTLSeconds, "/docs"))

	// Router RealIP + request context enrichment
	app.Use(router.HttpRealIP())

	// Router Default Handler
	app.Get("/favicon.ico", router.ResponseNoContent)

	deps := internal.Deps{
		Config:   cfg,
		Manager:  manager,
		Versions: versions,
		Webhooks: events,
		Limiter:  router.NewRateLimiter(cfg.SendRatePerMinute, cfg.SendRateBurst),
	}

	// Load Internal Routes
	internal.Routes(app, deps)

	// Connect WhatsApp
	if err := manager.Start(ctx); err != nil {
		log.Print(nil).Fatal("Failed to start connection manager: " + err.Error())
	}

	// Running Routines Tasks
	internal.Routines(c, deps)

	// Start Server
	address := cfg.ServerAddress + ":" + cfg.Port
	go func() {
		log.Print(nil).Info("Listening on " + address)
		if err := app.Listen(address); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	// Watch for Shutdown Signal
	<-ctx.Done()
	stop()
	log.Print(nil).Info("Shutting down")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	// Try To Shutdown Server
	if err := app.ShutdownWithContext(ctxShutdown); err != nil {
		log.Print(nil).WithError(err).Error("Failed to shut down HTTP server")
	}

	// Try To Shutdown Cron
	<-c.Stop().Done()

	// Try To Drain Webhooks
	if err := events.Shutdown(ctxShutdown); err != nil {
		log.Print(nil).WithError(err).Warn("Webhook queue not drained before shutdown deadline")
	}

	// Try To Close WhatsApp, pending credential saves finish first
	if err := manager.Close(ctxShutdown); err != nil {
		log.Print(nil).WithError(err).Error("Connection manager did not close cleanly")
	}

	if err := container.Close(); err != nil {
		log.Print(nil).WithError(err).Error("Failed to close WhatsApp session store")
	}
}
