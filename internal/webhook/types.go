package webhook

import (
	"time"
)

type EventType string

const (
	EventConnectionOpen      EventType = "connection.open"
	EventConnectionClosed    EventType = "connection.closed"
	EventConnectionLoggedOut EventType = "connection.logged_out"
	EventMessageSent         EventType = "message.sent"
	EventMessageSkipped      EventType = "message.skipped"
)

type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryDropped DeliveryStatus = "dropped"
)

type WebhookEvent struct {
	ID        string                 `json:"id"`
	EventType EventType              `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Stats counts deliveries since process start.
type Stats struct {
	Enabled   bool   `json:"enabled"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}
