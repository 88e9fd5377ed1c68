package router

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

// HttpRealIP takes the client address from X-Forwarded-For or X-Real-IP.
// Headers are only honoured when the socket peer passes the app's trusted
// proxy check, so the app must set EnableTrustedProxyCheck.
func HttpRealIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !c.IsProxyTrusted() {
			return c.Next()
		}
		xForwardedFor := c.Get(http.CanonicalHeaderKey("X-Forwarded-For"))
		if xForwardedFor != "" {
			parts := strings.Split(xForwardedFor, ",")
			if len(parts) > 0 {
				c.Locals("remote_ip", strings.TrimSpace(parts[0]))
			}
		} else {
			xRealIP := c.Get(http.CanonicalHeaderKey("X-Real-IP"))
			if xRealIP != "" {
				c.Locals("remote_ip", strings.TrimSpace(xRealIP))
			}
		}
		return c.Next()
	}
}

// HttpRequestID propagates an incoming X-Request-ID or assigns a fresh one.
func HttpRequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := strings.TrimSpace(c.Get(HeaderRequestID))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Locals("request_id", requestID)
		c.Set(HeaderRequestID, requestID)
		return c.Next()
	}
}

// RemoteIP returns the address resolved by HttpRealIP, falling back to the socket peer.
func RemoteIP(c *fiber.Ctx) string {
	if v, ok := c.Locals("remote_ip").(string); ok && v != "" {
		return v
	}
	return c.IP()
}
