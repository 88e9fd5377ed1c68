package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
)

var ErrNoDevice = errors.New("WhatsApp datastore returned no device")

const versionRefreshTimeout = 20 * time.Second

// MeowDialer builds whatsmeow clients backed by a sqlstore container.
type MeowDialer struct {
	container *sqlstore.Container
	versions  *VersionNegotiator
	proxyURL  string
}

func NewMeowDialer(container *sqlstore.Container, versions *VersionNegotiator, proxyURL string) *MeowDialer {
	store.DeviceProps.Os = proto.String(runtime.GOOS)
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	store.DeviceProps.RequireFullSync = proto.Bool(false)

	return &MeowDialer{
		container: container,
		versions:  versions,
		proxyURL:  strings.TrimSpace(proxyURL),
	}
}

func (d *MeowDialer) Dial(ctx context.Context, obs Observer) (Session, error) {
	device, err := d.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load WhatsApp device: %w", err)
	}
	if device == nil {
		return nil, ErrNoDevice
	}

	d.negotiateVersion(ctx, false)

	client := whatsmeow.NewClient(device, log.WhatsMeow("Client"))
	if d.proxyURL != "" {
		if err := client.SetProxyAddress(d.proxyURL); err != nil {
			return nil, fmt.Errorf("set WhatsApp proxy: %w", err)
		}
	}
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	sess := &meowSession{client: client}
	client.AddEventHandler(sess.eventHandler(obs))

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("open WhatsApp QR channel: %w", err)
		}
		go d.watchQR(ctx, qrChan, obs)
	}

	if err := client.Connect(); err != nil {
		client.RemoveEventHandlers()
		client.Disconnect()
		return nil, fmt.Errorf("connect WhatsApp client: %w", err)
	}
	return sess, nil
}

func (d *MeowDialer) negotiateVersion(ctx context.Context, force bool) {
	if d.versions == nil {
		return
	}
	refreshCtx, cancel := context.WithTimeout(ctx, versionRefreshTimeout)
	defer cancel()

	status, _, err := d.versions.Refresh(refreshCtx, force)
	entry := log.Print(nil).
		WithField("version", status.CurrentVersion).
		WithField("is_latest", status.IsLatest)
	if err != nil {
		entry.WithError(err).Warn("Could not fetch latest WA Web version, keeping current")
		return
	}
	entry.Info("Using WA Web version")
}

func (d *MeowDialer) watchQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem, obs Observer) {
	for evt := range qrChan {
		switch {
		case evt.Event == "code":
			obs.OnUpdate(Update{State: StateConnecting, PairingCode: evt.Code})
		case evt.Event == whatsmeow.QRChannelSuccess.Event:
			log.Print(nil).Info("WhatsApp QR code scanned")
		case evt.Event == whatsmeow.QRChannelTimeout.Event:
			obs.OnUpdate(Update{State: StateClosed, Reason: ReasonPairingTimeout})
		case evt.Event == whatsmeow.QRChannelClientOutdated.Event:
			d.negotiateVersion(ctx, true)
			obs.OnUpdate(Update{State: StateClosed, Reason: ReasonConnectFailure, Detail: "client version outdated"})
		case evt.Event == "error":
			detail := "QR channel reported an unspecified error"
			if evt.Error != nil {
				detail = evt.Error.Error()
			}
			obs.OnUpdate(Update{State: StateClosed, Reason: ReasonConnectFailure, Detail: detail})
		default:
			log.Print(nil).WithField("event", evt.Event).Debug("Unhandled WhatsApp QR channel event")
		}
	}
}

// meowSession adapts *whatsmeow.Client to Session.
type meowSession struct {
	client *whatsmeow.Client
}

func (s *meowSession) eventHandler(obs Observer) func(interface{}) {
	return func(evt interface{}) {
		switch e := evt.(type) {
		case *events.Connected:
			obs.OnUpdate(Update{State: StateOpen})
		case *events.PairSuccess:
			log.Print(nil).WithField("jid", log.MaskJID(e.ID.String())).WithField("platform", e.Platform).Info("WhatsApp device paired")
			obs.OnCredentials(s)
		case *events.PushNameSetting:
			obs.OnCredentials(s)
		case *events.Disconnected:
			obs.OnUpdate(Update{State: StateClosed, Reason: ReasonConnectionLost})
		case *events.LoggedOut:
			obs.OnUpdate(Update{State: StateClosed, Reason: ReasonLoggedOut, Detail: e.Reason.String()})
		case *events.StreamReplaced:
			obs.OnUpdate(Update{State: StateClosed, Reason: ReasonStreamReplaced})
		case *events.ConnectFailure:
			reason := ReasonConnectFailure
			if e.Reason.IsLoggedOut() {
				reason = ReasonLoggedOut
			}
			obs.OnUpdate(Update{State: StateClosed, Reason: reason, Detail: fmt.Sprintf("%s: %s", e.Reason, e.Message)})
		case *events.TemporaryBan:
			obs.OnUpdate(Update{State: StateClosed, Reason: ReasonTemporaryBan, Detail: e.String()})
		case *events.KeepAliveTimeout:
			log.Print(nil).Warn(fmt.Sprintf("Client keepalive timeout: errors=%d, lastSuccess=%s", e.ErrorCount, e.LastSuccess.Format(time.RFC3339)))
			// auto reconnect is off, so whatsmeow never drops a socket whose keepalives keep failing
			if failing := time.Since(e.LastSuccess); failing > whatsmeow.KeepAliveMaxFailTime {
				obs.OnUpdate(Update{
					State:  StateClosed,
					Reason: ReasonConnectionLost,
					Detail: fmt.Sprintf("keepalive failing for %s", failing.Round(time.Second)),
				})
			}
		}
	}
}

func (s *meowSession) IsConnected() bool {
	return s.client.IsConnected()
}

func (s *meowSession) IsLoggedIn() bool {
	return s.client.IsLoggedIn()
}

func (s *meowSession) ID() string {
	if s.client.Store == nil || s.client.Store.ID == nil {
		return ""
	}
	return s.client.Store.ID.ToNonAD().String()
}

func (s *meowSession) IsOnWhatsApp(ctx context.Context, jid string) (bool, string, error) {
	user, _, _ := strings.Cut(jid, "@")
	if user == "" {
		return false, "", nil
	}
	infos, err := s.client.IsOnWhatsApp(ctx, []string{"+" + user})
	if err != nil {
		return false, "", err
	}
	if len(infos) == 0 {
		return false, "", nil
	}
	return infos[0].IsIn, infos[0].JID.String(), nil
}

func (s *meowSession) SendText(ctx context.Context, jid string, text string) (string, error) {
	msgExtra := whatsmeow.SendRequestExtra{ID: s.client.GenerateMessageID()}
	msgContent := &waE2E.Message{
		Conversation: proto.String(text),
	}
	_, err := s.client.SendMessage(ctx, ParseUserJID(jid), msgContent, msgExtra)
	if err != nil {
		return "", err
	}
	return msgExtra.ID, nil
}

func (s *meowSession) SaveCredentials(ctx context.Context) error {
	if s.client.Store == nil {
		return ErrNoDevice
	}
	return s.client.Store.Save(ctx)
}

func (s *meowSession) Disconnect() {
	s.client.RemoveEventHandlers()
	s.client.Disconnect()
}
