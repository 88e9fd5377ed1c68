package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
)

const HeaderAPIKey = "X-API-Key"

// APIKeyAuth validates the X-API-Key header against the configured shared secret.
// An empty secret rejects every request; configuration loading refuses to
// start without one, so this only guards against miswiring.
func APIKeyAuth(secret string) fiber.Handler {
	expected := []byte(secret)
	return func(c *fiber.Ctx) error {
		apiKey := strings.TrimSpace(c.Get(HeaderAPIKey))
		if apiKey == "" {
			return router.ResponseUnauthorized(c, "Missing "+HeaderAPIKey+" header")
		}

		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(apiKey), expected) != 1 {
			return router.ResponseUnauthorized(c, "Invalid API key")
		}

		return c.Next()
	}
}
