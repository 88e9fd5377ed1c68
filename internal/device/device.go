package device

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-send-gateway/internal/message"
	typWhatsApp "github.com/gdbrns/go-whatsapp-send-gateway/internal/types"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"
)

// SessionSource is satisfied by *whatsapp.Slot.
type SessionSource interface {
	Current() (whatsapp.Session, uint64)
	Status() whatsapp.Status
}

type Controller struct {
	source  SessionSource
	service *message.Service
}

func NewController(source SessionSource, service *message.Service) *Controller {
	return &Controller{source: source, service: service}
}

// GetDeviceMe
// @Summary     Get Linked Device
// @Description Account linked to the gateway and its connection flags
// @Tags        Device
// @Produce     json
// @Param       X-API-Key  header    string  true  "Shared API token"
// @Success     200        {object}  router.Response
// @Failure     401        {object}  router.Response
// @Router      /devices/me [get]
func (ctl *Controller) GetDeviceMe(c *fiber.Ctx) error {
	st := ctl.source.Status()
	res := typWhatsApp.ResponseDevice{
		JID:   log.MaskJID(st.JID),
		State: string(st.State),
	}
	if sess, _ := ctl.source.Current(); sess != nil {
		res.Connected = sess.IsConnected()
		res.LoggedIn = sess.IsLoggedIn()
	}
	return router.ResponseSuccessWithData(c, "Device status", res)
}

// CheckRegistered
// @Summary     Check Registered Phone
// @Description Check whether a phone number has a WhatsApp account without sending anything
// @Tags        Device
// @Produce     json
// @Param       X-API-Key  header    string  true  "Shared API token"
// @Param       phone      path      string  true  "Phone number, local or international"
// @Success     200        {object}  router.Response
// @Failure     400        {object}  router.Response
// @Failure     401        {object}  router.Response
// @Failure     503        {object}  router.Response
// @Failure     502        {object}  router.Response
// @Router      /devices/me/contacts/{phone}/registered [get]
func (ctl *Controller) CheckRegistered(c *fiber.Ctx) error {
	phone := c.Params("phone")
	if whatsapp.Digits(phone) == "" {
		return router.ResponseBadRequest(c, "Phone number must contain digits")
	}

	registered, jid, err := ctl.service.Check(c.UserContext(), phone)
	switch {
	case errors.Is(err, whatsapp.ErrNotConnected):
		return router.ResponseServiceUnavailable(c, "WhatsApp is not connected, try again later")
	case err != nil:
		log.Print(c).WithField("to", log.MaskJID(jid)).WithError(err).Error("Failed to check registered phone")
		return router.ResponseError(c, http.StatusBadGateway, router.KindUpstream, "Failed to check registered phone")
	}

	return router.ResponseSuccessWithData(c, "Success check registered phone", typWhatsApp.ResponseCheckPhone{
		IsRegistered: registered,
		JID:          jid,
	})
}
