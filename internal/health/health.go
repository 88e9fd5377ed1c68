package health

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"
)

// SessionSource is satisfied by *whatsapp.Slot.
type SessionSource interface {
	Current() (whatsapp.Session, uint64)
	Status() whatsapp.Status
}

type Controller struct {
	source SessionSource
}

func NewController(source SessionSource) *Controller {
	return &Controller{source: source}
}

type ResponseHealth struct {
	State     whatsapp.State `json:"state"`
	Connected bool           `json:"connected"`
	LoggedIn  bool           `json:"logged_in"`
}

// Check reports the session state. Anything but a live open session is 503.
func Check(source SessionSource) (ResponseHealth, bool) {
	st := source.Status()
	res := ResponseHealth{State: st.State}
	if sess, _ := source.Current(); sess != nil {
		res.Connected = sess.IsConnected()
		res.LoggedIn = sess.IsLoggedIn()
	}
	return res, st.State == whatsapp.StateOpen && res.Connected && res.LoggedIn
}

// Health
// @Summary     Health Check
// @Description 200 while the WhatsApp session is open, 503 otherwise
// @Tags        Root
// @Produce     json
// @Success     200  {object}  router.Response
// @Failure     503  {object}  router.Response
// @Router      /health [get]
func (ctl *Controller) Health(c *fiber.Ctx) error {
	res, ok := Check(ctl.source)
	if !ok {
		return router.ResponseErrorWithData(c, http.StatusServiceUnavailable, router.KindNotConnected,
			"WhatsApp is not connected", res)
	}
	return router.ResponseSuccessWithData(c, "OK", res)
}
