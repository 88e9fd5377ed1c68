package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
)

const HeaderAdminSecret = "X-Admin-Secret"

// AdminAuth guards operator endpoints. With a dedicated admin secret the
// X-Admin-Secret header is required; otherwise the send API key is accepted.
func AdminAuth(adminSecret string, apiKey string) fiber.Handler {
	if adminSecret == "" {
		return APIKeyAuth(apiKey)
	}

	expected := []byte(adminSecret)
	return func(c *fiber.Ctx) error {
		provided := strings.TrimSpace(c.Get(HeaderAdminSecret))
		if provided == "" {
			return router.ResponseUnauthorized(c, "Missing "+HeaderAdminSecret+" header")
		}

		if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			return router.ResponseUnauthorized(c, "Invalid admin secret")
		}

		return c.Next()
	}
}
