package index

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/pairing"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"
)

// StatusSource is satisfied by *whatsapp.Slot.
type StatusSource interface {
	Status() whatsapp.Status
}

type Controller struct {
	source StatusSource
}

func NewController(source StatusSource) *Controller {
	return &Controller{source: source}
}

type ResponseIndex struct {
	State      whatsapp.State  `json:"state"`
	Reason     whatsapp.Reason `json:"reason,omitempty"`
	Connected  bool            `json:"connected"`
	JID        string          `json:"jid,omitempty"`
	QRCode     string          `json:"qr_code,omitempty"`
	QRImage    template.URL    `json:"qr_image,omitempty"`
	Message    string          `json:"message"`
	Generation uint64          `json:"generation"`
}

var page = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{if .QRImage}}<meta http-equiv="refresh" content="20">{{else if not .Connected}}<meta http-equiv="refresh" content="5">{{end}}
<title>WhatsApp Send Gateway</title>
<style>body{font-family:sans-serif;text-align:center;margin-top:3em;color:#222}img{image-rendering:pixelated}</style>
</head>
<body>
<h1>WhatsApp Send Gateway</h1>
<p>{{.Message}}</p>
{{if .QRImage}}<img src="{{.QRImage}}" alt="WhatsApp pairing QR code" width="256" height="256">
<p>Open WhatsApp &gt; Linked devices &gt; Link a device and scan the code.</p>{{end}}
{{if .JID}}<p>Connected as <strong>{{.JID}}</strong></p>{{end}}
</body>
</html>
`))

func (ctl *Controller) describe() (ResponseIndex, error) {
	st := ctl.source.Status()
	res := ResponseIndex{
		State:      st.State,
		Reason:     st.Reason,
		Generation: st.Generation,
	}

	switch {
	case st.PairingCode != "":
		img, err := pairing.DataURL(st.PairingCode, pairing.DefaultSize)
		if err != nil {
			return res, err
		}
		res.QRCode = st.PairingCode
		res.QRImage = template.URL(img)
		res.Message = "Scan the QR code to link this gateway"
	case st.State == whatsapp.StateOpen:
		res.Connected = true
		res.JID = log.MaskJID(st.JID)
		res.Message = "Connected"
	case st.State == whatsapp.StateLoggedOut:
		res.Message = "Logged out, trigger a reconnect to pair again"
	default:
		res.Message = "Connecting..."
	}
	return res, nil
}

// Index
// @Summary     Show Gateway Status
// @Description Connection status, with the pairing QR code while pairing. JSON with ?output=json
// @Tags        Root
// @Produce     html
// @Produce     json
// @Param       output  query  string  false  "html (default) or json"
// @Success     200
// @Router      / [get]
func (ctl *Controller) Index(c *fiber.Ctx) error {
	res, err := ctl.describe()
	if err != nil {
		log.Print(c).WithError(err).Error("Failed to render pairing QR code")
		return router.ResponseInternalError(c, "Failed to render QR code")
	}

	if strings.EqualFold(c.Query("output"), "json") {
		return router.ResponseSuccessWithData(c, res.Message, res)
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, res); err != nil {
		log.Print(c).WithError(err).Error("Failed to render index page")
		return router.ResponseInternalError(c, "")
	}
	return router.ResponseSuccessWithHTML(c, buf.String())
}
