package whatsapp

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"
)

func collect(s *meowSession) (func(interface{}), *[]Update, *int) {
	var updates []Update
	var credentials int
	handler := s.eventHandler(Observer{
		OnUpdate:      func(u Update) { updates = append(updates, u) },
		OnCredentials: func(Session) { credentials++ },
	})
	return handler, &updates, &credentials
}

func TestEventHandlerMapsLifecycleEvents(t *testing.T) {
	tests := []struct {
		name   string
		evt    interface{}
		state  State
		reason Reason
	}{
		{"connected", &events.Connected{}, StateOpen, ReasonNone},
		{"disconnected", &events.Disconnected{}, StateClosed, ReasonConnectionLost},
		{"logged out", &events.LoggedOut{Reason: events.ConnectFailureLoggedOut}, StateClosed, ReasonLoggedOut},
		{"stream replaced", &events.StreamReplaced{}, StateClosed, ReasonStreamReplaced},
		{"connect failure", &events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable}, StateClosed, ReasonConnectFailure},
		{"connect failure after unlink", &events.ConnectFailure{Reason: events.ConnectFailureMainDeviceGone}, StateClosed, ReasonLoggedOut},
		{"temporary ban", &events.TemporaryBan{Code: events.TempBanSentToTooManyPeople, Expire: time.Hour}, StateClosed, ReasonTemporaryBan},
		{
			"keepalive failing too long",
			&events.KeepAliveTimeout{ErrorCount: 20, LastSuccess: time.Now().Add(-whatsmeow.KeepAliveMaxFailTime - 3*time.Minute)},
			StateClosed, ReasonConnectionLost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, updates, _ := collect(&meowSession{})
			handler(tt.evt)
			if len(*updates) != 1 {
				t.Fatalf("got %d updates, want 1: %+v", len(*updates), *updates)
			}
			got := (*updates)[0]
			if got.State != tt.state || got.Reason != tt.reason {
				t.Fatalf("got %s/%s, want %s/%s", got.State, got.Reason, tt.state, tt.reason)
			}
		})
	}
}

func TestEventHandlerIgnoresShortKeepAliveFailures(t *testing.T) {
	handler, updates, _ := collect(&meowSession{})
	handler(&events.KeepAliveTimeout{ErrorCount: 1, LastSuccess: time.Now().Add(-30 * time.Second)})
	handler(&events.KeepAliveRestored{})
	if len(*updates) != 0 {
		t.Fatalf("updates = %+v, want none", *updates)
	}
}

func TestEventHandlerReportsCredentialChanges(t *testing.T) {
	handler, updates, credentials := collect(&meowSession{})
	handler(&events.PairSuccess{Platform: "android"})
	handler(&events.PushNameSetting{})
	if *credentials != 2 {
		t.Fatalf("credential notifications = %d, want 2", *credentials)
	}
	if len(*updates) != 0 {
		t.Fatalf("updates = %+v, want none", *updates)
	}
}
