package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-send-gateway/internal/webhook"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"
)

const versionRefreshTimeout = 30 * time.Second

type Connector interface {
	Reconnect(ctx context.Context) error
}

type VersionSource interface {
	Status() whatsapp.VersionStatus
	Refresh(ctx context.Context, force bool) (whatsapp.VersionStatus, bool, error)
}

type StatusSource interface {
	Status() whatsapp.Status
}

type WebhookStats interface {
	Stats() webhook.Stats
}

type Controller struct {
	slot     StatusSource
	conn     Connector
	versions VersionSource
	webhooks WebhookStats
	started  time.Time
}

func NewController(slot StatusSource, conn Connector, versions VersionSource, webhooks WebhookStats) *Controller {
	return &Controller{
		slot:     slot,
		conn:     conn,
		versions: versions,
		webhooks: webhooks,
		started:  time.Now(),
	}
}

type ResponseStatus struct {
	Session  whatsapp.Status        `json:"session"`
	Version  whatsapp.VersionStatus `json:"version"`
	Webhooks *webhook.Stats         `json:"webhooks,omitempty"`
	Uptime   string                 `json:"uptime"`
}

type ResponseVersionRefresh struct {
	whatsapp.VersionStatus
	Refreshed bool `json:"refreshed"`
	Forced    bool `json:"forced"`
}

// GetStatus
// @Summary     Get Gateway Status
// @Description Session state, generation, protocol version and webhook counters
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret  header    string  false  "Admin secret (X-API-Key is accepted when no admin secret is configured)"
// @Success     200             {object}  router.Response
// @Failure     401             {object}  router.Response
// @Router      /admin/status [get]
func (ctl *Controller) GetStatus(c *fiber.Ctx) error {
	res := ResponseStatus{
		Session: ctl.slot.Status(),
		Version: ctl.versions.Status(),
		Uptime:  time.Since(ctl.started).Round(time.Second).String(),
	}
	if ctl.webhooks != nil {
		stats := ctl.webhooks.Stats()
		res.Webhooks = &stats
	}
	return router.ResponseSuccessWithData(c, "Gateway status", res)
}

// GetWebhookStats
// @Summary     Get Webhook Stats
// @Description Delivery counters of the lifecycle webhook
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret  header    string  false  "Admin secret (X-API-Key is accepted when no admin secret is configured)"
// @Success     200             {object}  router.Response
// @Failure     401             {object}  router.Response
// @Router      /admin/webhooks/stats [get]
func (ctl *Controller) GetWebhookStats(c *fiber.Ctx) error {
	var stats webhook.Stats
	if ctl.webhooks != nil {
		stats = ctl.webhooks.Stats()
	}
	return router.ResponseSuccessWithData(c, "Webhook stats", stats)
}

// Reconnect
// @Summary     Reconnect WhatsApp
// @Description Drop the current connection and dial again. After a logout this starts a new pairing
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret  header    string  false  "Admin secret (X-API-Key is accepted when no admin secret is configured)"
// @Success     200             {object}  router.Response
// @Failure     401             {object}  router.Response
// @Failure     503             {object}  router.Response
// @Failure     500             {object}  router.Response
// @Router      /admin/reconnect [post]
func (ctl *Controller) Reconnect(c *fiber.Ctx) error {
	err := ctl.conn.Reconnect(c.UserContext())
	switch {
	case errors.Is(err, whatsapp.ErrClosed):
		return router.ResponseServiceUnavailable(c, "Gateway is shutting down")
	case err != nil:
		log.Print(c).WithError(err).Error("Operator reconnect failed")
		return router.ResponseError(c, http.StatusInternalServerError, router.KindInternal, "Failed to reconnect")
	}

	log.Print(c).Info("Operator triggered a reconnect")
	return router.ResponseSuccessWithData(c, "Reconnect triggered", ctl.slot.Status())
}

// GetWhatsAppWebVersion
// @Summary     Get WhatsApp Web Version
// @Description Protocol version advertised to WhatsApp and the last refresh result
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret  header    string  false  "Admin secret (X-API-Key is accepted when no admin secret is configured)"
// @Success     200             {object}  router.Response
// @Failure     401             {object}  router.Response
// @Router      /admin/whatsapp/version [get]
func (ctl *Controller) GetWhatsAppWebVersion(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "WhatsApp Web version", ctl.versions.Status())
}

// RefreshWhatsAppWebVersion
// @Summary     Refresh WhatsApp Web Version
// @Description Fetch the latest WhatsApp Web version. Throttled unless force=true
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret  header    string  false  "Admin secret (X-API-Key is accepted when no admin secret is configured)"
// @Param       force           query     bool    false  "Skip the minimum refresh interval"
// @Success     200             {object}  router.Response
// @Failure     401             {object}  router.Response
// @Failure     502             {object}  router.Response
// @Router      /admin/whatsapp/version/refresh [post]
func (ctl *Controller) RefreshWhatsAppWebVersion(c *fiber.Ctx) error {
	force := c.QueryBool("force", false)

	ctx, cancel := context.WithTimeout(c.UserContext(), versionRefreshTimeout)
	defer cancel()

	status, refreshed, err := ctl.versions.Refresh(ctx, force)
	if err != nil {
		log.Print(c).WithError(err).WithField("version", status.CurrentVersion).Warn("WhatsApp Web version refresh failed")
		return router.ResponseErrorWithData(c, http.StatusBadGateway, router.KindUpstream,
			"Failed to fetch the latest WhatsApp Web version", status)
	}

	return router.ResponseSuccessWithData(c, "WhatsApp Web version refreshed", ResponseVersionRefresh{
		VersionStatus: status,
		Refreshed:     refreshed,
		Forced:        force,
	})
}
