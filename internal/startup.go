package internal

import (
	"os"
	"time"

	"github.com/gdbrns/go-whatsapp-send-gateway/internal/config"
	"github.com/gdbrns/go-whatsapp-send-gateway/internal/webhook"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/metrics"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/pairing"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"
)

// Hooks connects manager notifications to the terminal, metrics and webhooks.
func Hooks(cfg config.Config, events *webhook.Engine) whatsapp.Hooks {
	return whatsapp.Hooks{
		OnPairingCode: func(code string) {
			log.Print(nil).Info("Scan the QR code in WhatsApp, or open " + router.BaseURL + "/qr")
			if cfg.QRTerminal {
				pairing.PrintTerminal(os.Stdout, code)
			}
		},
		OnStateChange: func(prev, next whatsapp.State, reason whatsapp.Reason) {
			metrics.SetSessionState(next)

			data := map[string]interface{}{
				"previous": prev,
				"state":    next,
			}
			if reason != whatsapp.ReasonNone {
				data["reason"] = reason
			}
			switch next {
			case whatsapp.StateOpen:
				events.Dispatch(webhook.EventConnectionOpen, data)
			case whatsapp.StateLoggedOut:
				events.Dispatch(webhook.EventConnectionLoggedOut, data)
			case whatsapp.StateConnecting, whatsapp.StateDisconnected:
				if prev == whatsapp.StateOpen {
					events.Dispatch(webhook.EventConnectionClosed, data)
				}
			}
		},
		OnCredentialsSaved: func(err error) {
			metrics.ObserveCredentialSave(err)
		},
		OnReconnectScheduled: func(int, time.Duration) {
			metrics.ObserveReconnectScheduled()
		},
	}
}
