package index

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/pairing"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
)

const noQRMessage = "No QR code available"

// QR
// @Summary     Get Pairing QR Code
// @Description Current pairing QR code as an image
// @Tags        Root
// @Produce     png
// @Produce     plain
// @Param       format  query  string  false  "png (default), jpg, gif, bmp or tif"
// @Param       size    query  int     false  "Image size in pixels"
// @Success     200
// @Failure     400     {object}  router.Response
// @Router      /qr [get]
func (ctl *Controller) QR(c *fiber.Ctx) error {
	code := ctl.source.Status().PairingCode
	if code == "" {
		return router.ResponseText(c, noQRMessage)
	}

	body, contentType, err := pairing.Render(code, c.QueryInt("size", pairing.DefaultSize), c.Query("format"))
	if err != nil {
		log.Print(c).WithError(err).Warn("Failed to render QR code")
		return router.ResponseBadRequest(c, "Unsupported QR image format")
	}
	return router.ResponseImage(c, contentType, body)
}
