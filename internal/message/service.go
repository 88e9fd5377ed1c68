package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/gomoji"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rivo/uniseg"

	"github.com/gdbrns/go-whatsapp-send-gateway/internal/webhook"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/metrics"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"
)

const (
	noticePreviewGraphemes = 100
	logPreviewGraphemes    = 40
	adminNoticeTimeout     = 15 * time.Second
)

var (
	ErrExistenceCheck = errors.New("recipient existence check failed")
	ErrDispatch       = errors.New("message dispatch failed")
)

// SessionSource exposes the live session handle. *whatsapp.Slot implements it.
type SessionSource interface {
	Current() (whatsapp.Session, uint64)
	IsCurrent(gen uint64) bool
}

// EventSink receives delivery events. *webhook.Engine implements it.
type EventSink interface {
	Dispatch(eventType webhook.EventType, data map[string]interface{})
}

type Options struct {
	Normalizer whatsapp.Normalizer
	// AdminNumber receives a short notice after every successful send.
	AdminNumber string
	// ExistenceCacheTTL caches lookups per recipient; zero disables the cache.
	ExistenceCacheTTL time.Duration
	// NotFoundCacheTTL caches recipients without an account. Zero caches
	// registered recipients only.
	NotFoundCacheTTL time.Duration
	Events           EventSink
}

type Result struct {
	Sent      bool
	Skipped   bool
	MessageID string
	To        string
}

type Service struct {
	source     SessionSource
	normalizer whatsapp.Normalizer
	adminJID   string
	existence  *gocache.Cache
	notFound   time.Duration
	events     EventSink
}

func NewService(source SessionSource, opts Options) *Service {
	s := &Service{
		source:     source,
		normalizer: opts.Normalizer,
		events:     opts.Events,
	}
	if strings.TrimSpace(opts.AdminNumber) != "" {
		s.adminJID = opts.Normalizer.Normalize(opts.AdminNumber)
	}
	if opts.ExistenceCacheTTL > 0 {
		s.existence = gocache.New(opts.ExistenceCacheTTL, 2*opts.ExistenceCacheTTL)
		s.notFound = min(opts.NotFoundCacheTTL, opts.ExistenceCacheTTL)
	}
	return s
}

func live(sess whatsapp.Session) bool {
	return sess != nil && sess.IsConnected() && sess.IsLoggedIn()
}

// Send checks the recipient exists and dispatches text exactly once. A
// recipient without an account yields Result.Skipped and no dispatch.
func (s *Service) Send(ctx context.Context, number string, text string) (Result, error) {
	sess, gen := s.source.Current()
	if !live(sess) {
		return Result{}, whatsapp.ErrNotConnected
	}

	jid := s.normalizer.Normalize(number)
	entry := log.Print(nil).WithField("to", log.MaskJID(jid))

	exists, err := s.exists(ctx, sess, jid)
	if err != nil {
		return Result{To: jid}, fmt.Errorf("%w: %v", ErrExistenceCheck, err)
	}
	if !exists {
		entry.Info("Recipient is not on WhatsApp, skipping send")
		s.emit(webhook.EventMessageSkipped, map[string]interface{}{"to": jid})
		return Result{Skipped: true, To: jid}, nil
	}

	// the handle may have been replaced while the lookup was in flight
	if !s.source.IsCurrent(gen) || !live(sess) {
		return Result{To: jid}, whatsapp.ErrStaleSession
	}

	messageID, err := sess.SendText(ctx, jid, text)
	if err != nil {
		return Result{To: jid}, fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	entry.WithField("message_id", messageID).WithField("preview", logPreview(text)).Info("Message sent")
	s.emit(webhook.EventMessageSent, map[string]interface{}{"to": jid, "message_id": messageID})

	s.notifyAdmin(ctx, sess, jid, text)
	return Result{Sent: true, MessageID: messageID, To: jid}, nil
}

// Check reports whether number belongs to a WhatsApp account without sending anything.
func (s *Service) Check(ctx context.Context, number string) (bool, string, error) {
	sess, _ := s.source.Current()
	if !live(sess) {
		return false, "", whatsapp.ErrNotConnected
	}
	jid := s.normalizer.Normalize(number)
	exists, err := s.exists(ctx, sess, jid)
	if err != nil {
		return false, jid, fmt.Errorf("%w: %v", ErrExistenceCheck, err)
	}
	return exists, jid, nil
}

func (s *Service) exists(ctx context.Context, sess whatsapp.Session, jid string) (bool, error) {
	if s.existence != nil {
		if v, ok := s.existence.Get(jid); ok {
			metrics.ObserveExistenceLookup(true)
			return v.(bool), nil
		}
	}
	metrics.ObserveExistenceLookup(false)
	exists, _, err := sess.IsOnWhatsApp(ctx, jid)
	if err != nil {
		return false, err
	}
	switch {
	case s.existence == nil:
	case exists:
		s.existence.SetDefault(jid, true)
	case s.notFound > 0:
		s.existence.Set(jid, false, s.notFound)
	}
	return exists, nil
}

// notifyAdmin is best-effort: failures are logged and never reach the caller.
func (s *Service) notifyAdmin(ctx context.Context, sess whatsapp.Session, jid string, text string) {
	if s.adminJID == "" || s.adminJID == jid {
		return
	}
	noticeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), adminNoticeTimeout)
	defer cancel()

	notice := "Message delivered to " + log.MaskJID(jid) + "\n\n" + truncateGraphemes(text, noticePreviewGraphemes)
	if _, err := sess.SendText(noticeCtx, s.adminJID, notice); err != nil {
		log.Print(nil).WithField("admin", log.MaskJID(s.adminJID)).WithError(err).Warn("Failed to send admin delivery notice")
	}
}

func (s *Service) emit(eventType webhook.EventType, data map[string]interface{}) {
	if s.events != nil {
		s.events.Dispatch(eventType, data)
	}
}

// truncateGraphemes keeps at most n user-perceived characters.
func truncateGraphemes(text string, n int) string {
	if uniseg.GraphemeClusterCount(text) <= n {
		return text
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(text)
	for i := 0; i < n && g.Next(); i++ {
		b.WriteString(g.Str())
	}
	return b.String() + "…"
}

func logPreview(text string) string {
	clean := strings.Join(strings.Fields(gomoji.RemoveEmojis(text)), " ")
	return truncateGraphemes(clean, logPreviewGraphemes)
}
