package message

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/auth"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"
)

const testToken = "gateway-test-token"

type sentText struct {
	jid  string
	text string
}

type fakeSession struct {
	mu           sync.Mutex
	exists       bool
	existsErr    error
	sendErr      error
	adminSendErr error
	disconnected bool
	onLookup     func()
	lookups      int
	sent         []sentText
}

func (f *fakeSession) IsConnected() bool { return !f.disconnected }
func (f *fakeSession) IsLoggedIn() bool  { return true }
func (f *fakeSession) ID() string        { return "15550001111@s.whatsapp.net" }

func (f *fakeSession) IsOnWhatsApp(ctx context.Context, jid string) (bool, string, error) {
	f.mu.Lock()
	f.lookups++
	hook := f.onLookup
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.exists, jid, f.existsErr
}

func (f *fakeSession) SendText(ctx context.Context, jid string, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentText{jid: jid, text: text})
	if len(f.sent) > 1 && f.adminSendErr != nil {
		return "", f.adminSendErr
	}
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "3EB0C0FFEE", nil
}

func (f *fakeSession) SaveCredentials(ctx context.Context) error { return nil }
func (f *fakeSession) Disconnect()                               { f.disconnected = true }

func (f *fakeSession) dispatches() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.sent...)
}

type fixture struct {
	app  *fiber.App
	slot *whatsapp.Slot
}

func newFixture(t *testing.T, opts Options, handlers ...fiber.Handler) *fixture {
	t.Helper()
	if opts.Normalizer == (whatsapp.Normalizer{}) {
		opts.Normalizer = whatsapp.Normalizer{DefaultCountryCode: "88", InternationalLength: 13}
	}
	slot := whatsapp.NewSlot()
	ctl := NewController(NewService(slot, opts))

	app := fiber.New(fiber.Config{ErrorHandler: router.HttpErrorHandler})
	chain := append([]fiber.Handler{auth.APIKeyAuth(testToken)}, handlers...)
	chain = append(chain, ctl.Send)
	app.Post("/send", chain...)
	return &fixture{app: app, slot: slot}
}

func (fx *fixture) post(t *testing.T, token string, body string) (int, router.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(auth.HeaderAPIKey, token)
	}
	resp, err := fx.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out router.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return resp.StatusCode, out
}

func dataField(t *testing.T, res router.Response, key string) interface{} {
	t.Helper()
	data, ok := res.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("response data is %T, want object", res.Data)
	}
	return data[key]
}

const validBody = `{"number":"01712345678","message":"Hello from the gateway"}`

func TestSendMissingMessage(t *testing.T) {
	fx := newFixture(t, Options{})
	sess := &fakeSession{exists: true}
	fx.slot.Install(sess, whatsapp.StateOpen)

	code, res := fx.post(t, testToken, `{"number":"01712345678"}`)
	if code != http.StatusBadRequest || res.Kind != router.KindValidation {
		t.Fatalf("got %d %+v, want 400 validation", code, res)
	}
	missing, _ := dataField(t, res, "missing").([]interface{})
	if len(missing) != 1 || missing[0] != "message" {
		t.Fatalf("missing = %v, want [message]", missing)
	}
	if n := len(sess.dispatches()); n != 0 {
		t.Fatalf("dispatched %d messages on invalid request", n)
	}
}

func TestSendMalformedBody(t *testing.T) {
	fx := newFixture(t, Options{})
	code, res := fx.post(t, testToken, `{"number":`)
	if code != http.StatusBadRequest || res.Kind != router.KindValidation {
		t.Fatalf("got %d %+v, want 400", code, res)
	}
}

func TestSendRejectsBadToken(t *testing.T) {
	fx := newFixture(t, Options{})
	sess := &fakeSession{exists: true}
	fx.slot.Install(sess, whatsapp.StateOpen)

	for _, token := range []string{"", "wrong-token"} {
		code, res := fx.post(t, token, validBody)
		if code != http.StatusUnauthorized || res.Kind != router.KindUnauthorized {
			t.Fatalf("token %q: got %d %+v, want 401", token, code, res)
		}
	}
	if n := len(sess.dispatches()); n != 0 {
		t.Fatalf("dispatched %d messages without a valid token", n)
	}
}

func TestSendWithoutSession(t *testing.T) {
	fx := newFixture(t, Options{})
	code, res := fx.post(t, testToken, validBody)
	if code != http.StatusServiceUnavailable || res.Kind != router.KindNotConnected {
		t.Fatalf("got %d %+v, want 503 not_connected", code, res)
	}

	sess := &fakeSession{exists: true, disconnected: true}
	fx.slot.Install(sess, whatsapp.StateDisconnected)
	if code, _ := fx.post(t, testToken, validBody); code != http.StatusServiceUnavailable {
		t.Fatalf("disconnected session: got %d, want 503", code)
	}
	if n := len(sess.dispatches()); n != 0 {
		t.Fatalf("dispatched %d messages while disconnected", n)
	}
}

func TestSendSkipsUnregisteredRecipient(t *testing.T) {
	fx := newFixture(t, Options{})
	sess := &fakeSession{exists: false}
	fx.slot.Install(sess, whatsapp.StateOpen)

	code, res := fx.post(t, testToken, validBody)
	if code != http.StatusAccepted || res.Status || res.Kind != router.KindNotRegistered {
		t.Fatalf("got %d %+v, want 202 not_registered", code, res)
	}
	if dataField(t, res, "skipped") != true || dataField(t, res, "sent") != false {
		t.Fatalf("data = %v, want sent=false skipped=true", res.Data)
	}
	if n := len(sess.dispatches()); n != 0 {
		t.Fatalf("dispatched %d messages to an unregistered recipient", n)
	}
}

func TestSendDispatchesOnce(t *testing.T) {
	fx := newFixture(t, Options{})
	sess := &fakeSession{exists: true}
	fx.slot.Install(sess, whatsapp.StateOpen)

	code, res := fx.post(t, testToken, validBody)
	if code != http.StatusOK || !res.Status {
		t.Fatalf("got %d %+v, want 200", code, res)
	}
	sent := sess.dispatches()
	if len(sent) != 1 {
		t.Fatalf("dispatched %d times, want 1", len(sent))
	}
	if sent[0].jid != "8801712345678@s.whatsapp.net" || sent[0].text != "Hello from the gateway" {
		t.Fatalf("dispatched %+v", sent[0])
	}
	if dataField(t, res, "message_id") != "3EB0C0FFEE" || dataField(t, res, "sent") != true {
		t.Fatalf("data = %v", res.Data)
	}
}

func TestSendRechecksHandleBeforeDispatch(t *testing.T) {
	fx := newFixture(t, Options{})
	replacement := &fakeSession{exists: true}
	sess := &fakeSession{exists: true}
	sess.onLookup = func() {
		fx.slot.Install(replacement, whatsapp.StateOpen)
	}
	fx.slot.Install(sess, whatsapp.StateOpen)

	code, res := fx.post(t, testToken, validBody)
	if code != http.StatusServiceUnavailable || res.Kind != router.KindNotConnected {
		t.Fatalf("got %d %+v, want 503", code, res)
	}
	if n := len(sess.dispatches()) + len(replacement.dispatches()); n != 0 {
		t.Fatalf("dispatched %d messages through a replaced handle", n)
	}
}

func TestSendBackendErrors(t *testing.T) {
	cases := map[string]*fakeSession{
		"existence check": {existsErr: errors.New("iq timeout")},
		"dispatch":        {exists: true, sendErr: errors.New("websocket closed")},
	}
	for name, sess := range cases {
		t.Run(name, func(t *testing.T) {
			fx := newFixture(t, Options{})
			fx.slot.Install(sess, whatsapp.StateOpen)

			code, res := fx.post(t, testToken, validBody)
			if code != http.StatusInternalServerError || res.Kind != router.KindDispatchFailed {
				t.Fatalf("got %d %+v, want 500 dispatch_failed", code, res)
			}
			if strings.Contains(res.Message, "iq timeout") || strings.Contains(res.Message, "websocket") {
				t.Fatalf("internal error leaked to caller: %q", res.Message)
			}
		})
	}
}

func TestSendAdminNoticeIsBestEffort(t *testing.T) {
	fx := newFixture(t, Options{AdminNumber: "8801999888777"})
	sess := &fakeSession{exists: true, adminSendErr: errors.New("admin offline")}
	fx.slot.Install(sess, whatsapp.StateOpen)

	code, _ := fx.post(t, testToken, validBody)
	if code != http.StatusOK {
		t.Fatalf("got %d, want 200 despite admin notice failure", code)
	}
	sent := sess.dispatches()
	if len(sent) != 2 {
		t.Fatalf("dispatched %d messages, want send + notice", len(sent))
	}
	if sent[1].jid != "8801999888777@s.whatsapp.net" || !strings.Contains(sent[1].text, "Hello from the gateway") {
		t.Fatalf("admin notice = %+v", sent[1])
	}
}

func TestSendCachesExistence(t *testing.T) {
	fx := newFixture(t, Options{ExistenceCacheTTL: time.Minute})
	sess := &fakeSession{exists: true}
	fx.slot.Install(sess, whatsapp.StateOpen)

	for i := 0; i < 2; i++ {
		if code, _ := fx.post(t, testToken, validBody); code != http.StatusOK {
			t.Fatalf("send %d: got %d", i, code)
		}
	}
	if sess.lookups != 1 {
		t.Fatalf("lookups = %d, want 1", sess.lookups)
	}
	if n := len(sess.dispatches()); n != 2 {
		t.Fatalf("dispatched %d, want 2", n)
	}
}

func TestSendRechecksUnregisteredRecipient(t *testing.T) {
	fx := newFixture(t, Options{ExistenceCacheTTL: time.Minute})
	sess := &fakeSession{exists: false}
	fx.slot.Install(sess, whatsapp.StateOpen)

	if code, res := fx.post(t, testToken, validBody); code != http.StatusAccepted || res.Kind != router.KindNotRegistered {
		t.Fatalf("unregistered: got %d %+v", code, res)
	}

	// the recipient signs up; the next send must see it
	sess.mu.Lock()
	sess.exists = true
	sess.mu.Unlock()
	if code, _ := fx.post(t, testToken, validBody); code != http.StatusOK {
		t.Fatalf("after registration: got %d", code)
	}
	if sess.lookups != 2 {
		t.Fatalf("lookups = %d, want 2", sess.lookups)
	}
}

func TestSendNotFoundCacheExpires(t *testing.T) {
	fx := newFixture(t, Options{ExistenceCacheTTL: time.Minute, NotFoundCacheTTL: 50 * time.Millisecond})
	sess := &fakeSession{exists: false}
	fx.slot.Install(sess, whatsapp.StateOpen)

	for i := 0; i < 2; i++ {
		if code, _ := fx.post(t, testToken, validBody); code != http.StatusAccepted {
			t.Fatalf("send %d: got %d", i, code)
		}
	}
	if sess.lookups != 1 {
		t.Fatalf("lookups = %d, want 1 while cached", sess.lookups)
	}

	time.Sleep(80 * time.Millisecond)
	if code, _ := fx.post(t, testToken, validBody); code != http.StatusAccepted {
		t.Fatalf("after expiry: got %d", code)
	}
	if sess.lookups != 2 {
		t.Fatalf("lookups = %d, want 2 after expiry", sess.lookups)
	}
}

func TestSendRateLimited(t *testing.T) {
	limiter := router.NewRateLimiter(1, 1)
	fx := newFixture(t, Options{}, limiter.Middleware())
	sess := &fakeSession{exists: true}
	fx.slot.Install(sess, whatsapp.StateOpen)

	if code, _ := fx.post(t, testToken, validBody); code != http.StatusOK {
		t.Fatalf("first send: got %d", code)
	}
	code, res := fx.post(t, testToken, validBody)
	if code != http.StatusTooManyRequests || res.Kind != router.KindRateLimited {
		t.Fatalf("got %d %+v, want 429", code, res)
	}
	if n := len(sess.dispatches()); n != 1 {
		t.Fatalf("dispatched %d, want 1", n)
	}
}

func TestTruncateGraphemes(t *testing.T) {
	if got := truncateGraphemes("héllo", 10); got != "héllo" {
		t.Fatalf("short text changed: %q", got)
	}
	// the family emoji is one grapheme cluster made of several runes
	got := truncateGraphemes("👨‍👩‍👧ab", 2)
	if got != "👨‍👩‍👧a…" {
		t.Fatalf("truncateGraphemes = %q", got)
	}
}
