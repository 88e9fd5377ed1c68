package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"
)

var (
	sendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_send_requests_total",
		Help: "Send requests by outcome",
	}, []string{"outcome"})

	sendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_send_duration_seconds",
		Help:    "Time from request to dispatch result for accepted sends",
		Buckets: prometheus.DefBuckets,
	})

	existenceLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_existence_lookups_total",
		Help: "Recipient existence checks by source (cache or backend)",
	}, []string{"source"})

	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_session_state",
		Help: "1 for the current session state, 0 otherwise",
	}, []string{"state"})

	reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_reconnects_scheduled_total",
		Help: "Reconnects scheduled after a recoverable close",
	})

	credentialSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_credential_saves_total",
		Help: "Credential persistence attempts by result",
	}, []string{"result"})
)

var trackedStates = []whatsapp.State{
	whatsapp.StateDisconnected,
	whatsapp.StateConnecting,
	whatsapp.StateOpen,
	whatsapp.StateLoggedOut,
}

func init() {
	SetSessionState(whatsapp.StateDisconnected)
}

func ObserveSend(outcome string, started time.Time) {
	sendRequests.WithLabelValues(outcome).Inc()
	if !started.IsZero() {
		sendDuration.Observe(time.Since(started).Seconds())
	}
}

func ObserveExistenceLookup(cached bool) {
	source := "backend"
	if cached {
		source = "cache"
	}
	existenceLookups.WithLabelValues(source).Inc()
}

func SetSessionState(state whatsapp.State) {
	for _, s := range trackedStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(string(s)).Set(v)
	}
}

func ObserveReconnectScheduled() {
	reconnects.Inc()
}

func ObserveCredentialSave(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	credentialSaves.WithLabelValues(result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
