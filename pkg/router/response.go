package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
)

// Kind classifies a failed (or unfulfilled) request for API callers.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindUnauthorized   Kind = "unauthorized"
	KindNotConnected   Kind = "not_connected"
	KindNotRegistered  Kind = "not_registered"
	KindDispatchFailed Kind = "dispatch_failed"
	KindRateLimited    Kind = "rate_limited"
	KindNotFound       Kind = "not_found"
	KindUpstream       Kind = "upstream"
	KindInternal       Kind = "internal"
)

const http500Message = "Internal Server Error"

type Response struct {
	Status  bool        `json:"status"`
	Code    int         `json:"code"`
	Kind    Kind        `json:"kind,omitempty"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"` // kept for backward compatibility
}

func kindForCode(code int) Kind {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return KindValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusServiceUnavailable:
		return KindNotConnected
	case http.StatusBadGateway:
		return KindUpstream
	}
	return KindInternal
}

func logSuccess(c *fiber.Ctx, code int, message string) {
	statusMessage := http.StatusText(code)

	if statusMessage == message || c.OriginalURL() == BaseURL {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, statusMessage))
	} else {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, message))
	}
}

func logError(c *fiber.Ctx, code int, message string) {
	statusMessage := http.StatusText(code)

	entry := log.Print(c)
	if code < http.StatusInternalServerError {
		if statusMessage == message {
			entry.Warn(fmt.Sprintf("%d %v", code, statusMessage))
		} else {
			entry.Warn(fmt.Sprintf("%d %v", code, message))
		}
		return
	}

	if statusMessage == message {
		entry.Error(fmt.Sprintf("%d %v", code, statusMessage))
	} else {
		entry.Error(fmt.Sprintf("%d %v", code, message))
	}
}

func respond(c *fiber.Ctx, code int, message string, data interface{}) error {
	response := Response{
		Status: true,
		Code:   code,
		Data:   data,
	}

	if strings.TrimSpace(message) == "" {
		message = http.StatusText(response.Code)
	}
	response.Message = message

	logSuccess(c, response.Code, response.Message)
	return c.Status(response.Code).JSON(response)
}

func ResponseSuccess(c *fiber.Ctx, message string) error {
	return respond(c, http.StatusOK, message, nil)
}

func ResponseSuccessWithData(c *fiber.Ctx, message string, data interface{}) error {
	return respond(c, http.StatusOK, message, data)
}

// ResponseUnfulfilled reports a request that was accepted but intentionally
// not carried out (e.g. recipient has no account). Status stays false so
// callers checking the boolean do not mistake it for a delivery.
func ResponseUnfulfilled(c *fiber.Ctx, kind Kind, message string, data interface{}) error {
	response := Response{
		Status:  false,
		Code:    http.StatusAccepted,
		Kind:    kind,
		Message: message,
		Data:    data,
	}

	logSuccess(c, response.Code, response.Message)
	return c.Status(response.Code).JSON(response)
}

func ResponseSuccessWithHTML(c *fiber.Ctx, html string) error {
	logSuccess(c, http.StatusOK, http.StatusText(http.StatusOK))
	c.Type("html", "utf-8")
	return c.Status(http.StatusOK).SendString(html)
}

func ResponseText(c *fiber.Ctx, text string) error {
	logSuccess(c, http.StatusOK, text)
	c.Type("txt", "utf-8")
	return c.Status(http.StatusOK).SendString(text)
}

func ResponseImage(c *fiber.Ctx, contentType string, body []byte) error {
	logSuccess(c, http.StatusOK, http.StatusText(http.StatusOK))
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(http.StatusOK).Send(body)
}

func ResponseNoContent(c *fiber.Ctx) error {
	return c.SendStatus(http.StatusNoContent)
}

// ResponseError writes the failure envelope with an explicit kind.
func ResponseError(c *fiber.Ctx, code int, kind Kind, message string) error {
	return ResponseErrorWithData(c, code, kind, message, nil)
}

func ResponseErrorWithData(c *fiber.Ctx, code int, kind Kind, message string, data interface{}) error {
	response := Response{
		Status: false,
		Code:   code,
		Kind:   kind,
		Data:   data,
	}

	if strings.TrimSpace(message) == "" {
		message = http.StatusText(response.Code)
	}
	response.Message = message
	response.Error = message

	logError(c, response.Code, response.Message)
	return c.Status(response.Code).JSON(response)
}

func ResponseNotFound(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusNotFound, KindNotFound, message)
}

func ResponseUnauthorized(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusUnauthorized, KindUnauthorized, message)
}

func ResponseBadRequest(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusBadRequest, KindValidation, message)
}

func ResponseTooManyRequests(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusTooManyRequests, KindRateLimited, message)
}

func ResponseServiceUnavailable(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusServiceUnavailable, KindNotConnected, message)
}

func ResponseInternalError(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusInternalServerError, KindInternal, message)
}

func ResponseBadGateway(c *fiber.Ctx, message string) error {
	return ResponseError(c, http.StatusBadGateway, KindUpstream, message)
}
