package message

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	typMessage "github.com/gdbrns/go-whatsapp-send-gateway/internal/types"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/metrics"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/validation"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"
)

type Controller struct {
	service *Service
}

func NewController(service *Service) *Controller {
	return &Controller{service: service}
}

// Send
// @Summary     Send Text Message
// @Description Check the recipient is on WhatsApp and send a text message
// @Tags        Message
// @Accept      json
// @Produce     json
// @Param       X-API-Key  header    string                  true  "Shared API token"
// @Param       body       body      types.RequestSend       true  "Recipient number and message text"
// @Success     200        {object}  router.Response
// @Success     202        {object}  router.Response         "Recipient has no WhatsApp account, not sent"
// @Failure     400        {object}  router.Response
// @Failure     401        {object}  router.Response
// @Failure     429        {object}  router.Response
// @Failure     503        {object}  router.Response
// @Failure     500        {object}  router.Response
// @Router      /send [post]
func (ctl *Controller) Send(c *fiber.Ctx) error {
	started := time.Now()

	var reqSend typMessage.RequestSend
	if err := c.BodyParser(&reqSend); err != nil {
		metrics.ObserveSend("invalid", time.Time{})
		log.Print(c).WithError(err).Warn("Failed to parse send request body")
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	missing := validation.MissingFields(
		validation.Field{Name: "number", Value: reqSend.Number},
		validation.Field{Name: "message", Value: reqSend.Message},
	)
	if len(missing) > 0 {
		metrics.ObserveSend("invalid", time.Time{})
		return router.ResponseErrorWithData(c, http.StatusBadRequest, router.KindValidation,
			"Missing required fields: "+strings.Join(missing, ", "),
			typMessage.ResponseMissingFields{Missing: missing})
	}

	result, err := ctl.service.Send(c.UserContext(), reqSend.Number, reqSend.Message)
	switch {
	case errors.Is(err, whatsapp.ErrNotConnected), errors.Is(err, whatsapp.ErrStaleSession):
		metrics.ObserveSend("not_connected", time.Time{})
		return router.ResponseServiceUnavailable(c, "WhatsApp is not connected, try again later")
	case err != nil:
		metrics.ObserveSend("failed", started)
		log.Print(c).WithField("to", log.MaskJID(result.To)).WithError(err).Error("Failed to send message")
		return router.ResponseError(c, http.StatusInternalServerError, router.KindDispatchFailed, "Failed to send message")
	case result.Skipped:
		metrics.ObserveSend("skipped", started)
		return router.ResponseUnfulfilled(c, router.KindNotRegistered, "Recipient is not on WhatsApp, message skipped",
			typMessage.ResponseSend{Sent: false, Skipped: true, To: result.To})
	}

	metrics.ObserveSend("sent", started)
	return router.ResponseSuccessWithData(c, "Message sent", typMessage.ResponseSend{
		Sent:      true,
		MessageID: result.MessageID,
		To:        result.To,
	})
}
