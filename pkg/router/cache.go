package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
)

// HttpCacheInMemory caches GET responses whose path starts with one of the
// given prefixes. Status and QR endpoints must never be cached since the
// pairing code rotates every few seconds.
func HttpCacheInMemory(ttl int, prefixes ...string) fiber.Handler {
	if ttl <= 0 {
		ttl = 5
	}
	return cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			if c.Method() != fiber.MethodGet {
				return true
			}
			for _, prefix := range prefixes {
				if strings.HasPrefix(c.Path(), BaseURL+prefix) {
					return false
				}
			}
			return true
		},
		Expiration: time.Duration(ttl) * time.Second,
	})
}
