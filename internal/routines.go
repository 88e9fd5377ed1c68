package internal

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	ctlHealth "github.com/gdbrns/go-whatsapp-send-gateway/internal/health"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
)

const (
	healthCheckSpec        = "0 */5 * * * *"
	limiterCleanupSpec     = "0 */10 * * * *"
	defaultVersionCronSpec = "0 0 3 * * *"
	versionRefreshTimeout  = 30 * time.Second
)

// Routines registers the periodic jobs and starts the scheduler.
func Routines(c *cron.Cron, deps Deps) {
	log.Print(nil).Info("Running Routine Tasks")

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_HEALTH_CHECK_CRON", true) {
		slot := deps.Manager.Slot()
		_, err := c.AddFunc(healthCheckSpec, func() {
			res, ok := ctlHealth.Check(slot)
			entry := log.Session(slot.Status().Generation).
				WithField("state", res.State).
				WithField("connected", res.Connected).
				WithField("logged_in", res.LoggedIn)
			if !ok {
				entry.Warn("WhatsApp session unhealthy")
				return
			}
			entry.Info("WhatsApp session healthy")
		})
		if err != nil {
			log.Print(nil).WithError(err).Error("Failed to add health check cron job")
		}
	} else {
		log.Print(nil).Info("Health check cron disabled; relying on whatsmeow event handlers")
	}

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_WAVERSION_REFRESH_CRON", false) {
		spec := strings.TrimSpace(env.GetEnvStringOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_SPEC", defaultVersionCronSpec))
		force := env.GetEnvBoolOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_FORCE", false)
		_, err := c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), versionRefreshTimeout)
			defer cancel()
			status, refreshed, err := deps.Versions.Refresh(ctx, force)
			entry := log.Print(nil).WithField("version", status.CurrentVersion).WithField("force", force)
			if err != nil {
				entry.WithError(err).Error("WA Web version refresh failed")
				return
			}
			entry.WithField("refreshed", refreshed).WithField("is_latest", status.IsLatest).Info("WA Web version refresh completed")
		})
		if err != nil {
			log.Print(nil).WithError(err).Error("Failed to add WA Web version refresh cron job")
		} else {
			log.Print(nil).WithField("spec", spec).WithField("force", force).Info("WA Web version refresh cron enabled")
		}
	}

	if deps.Limiter != nil {
		_, err := c.AddFunc(limiterCleanupSpec, func() {
			if removed := deps.Limiter.Cleanup(); removed > 0 {
				log.Print(nil).WithField("removed", removed).Debug("Dropped idle rate limit buckets")
			}
		})
		if err != nil {
			log.Print(nil).WithError(err).Error("Failed to add rate limiter cleanup cron job")
		}
	}

	c.Start()
}
