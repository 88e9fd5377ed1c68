package whatsapp

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
)

const (
	// dialFailureFloor keeps an immediate strategy from spinning when the dial itself fails.
	dialFailureFloor      = time.Second
	credentialSaveTimeout = 30 * time.Second
)

// Hooks are optional notifications fired by the Manager. They run on the
// goroutine that produced the event and must not block.
type Hooks struct {
	OnPairingCode        func(code string)
	OnStateChange        func(prev, next State, reason Reason)
	OnCredentialsSaved   func(err error)
	OnReconnectScheduled func(attempt int, delay time.Duration)
}

type Option func(*Manager)

// WithBackOff sets the reconnect strategy. The default is backoff.ZeroBackOff,
// which reconnects immediately on every recoverable close.
func WithBackOff(b backoff.BackOff) Option {
	return func(m *Manager) {
		if b != nil {
			m.backOff = b
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(m *Manager) {
		m.hooks = h
	}
}

// Manager owns the single outbound session: it dials, watches lifecycle
// updates, persists credentials and reconnects.
type Manager struct {
	dialer Dialer
	slot   *Slot
	hooks  Hooks
	group  singleflight.Group

	mu           sync.Mutex
	backOff      backoff.BackOff
	timer        *time.Timer
	attempts     int
	scheduledGen uint64
	started      bool
	closed       bool
	ctx          context.Context
	cancel       context.CancelFunc

	saves sync.WaitGroup
}

func NewManager(dialer Dialer, slot *Slot, opts ...Option) *Manager {
	if slot == nil {
		slot = NewSlot()
	}
	m := &Manager{
		dialer:  dialer,
		slot:    slot,
		backOff: &backoff.ZeroBackOff{},
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Slot() *Slot {
	return m.slot
}

// Start dials in the background. Calling it twice is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	go func() {
		_ = m.connect()
	}()
	return nil
}

// Reconnect drops the current handle and dials a fresh one, resetting the
// backoff. It also leaves logged_out, which starts a new pairing. Concurrent
// calls share one dial.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.stopTimerLocked()
	m.backOff.Reset()
	m.attempts = 0
	m.mu.Unlock()

	log.Session(0).Info("Operator requested reconnect")

	ch := m.group.DoChan("connect", func() (interface{}, error) {
		return nil, m.connect()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops reconnecting, waits for in-flight credential saves and
// disconnects the live handle. Saves still pending when ctx expires are
// abandoned and ctx.Err() is returned.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopTimerLocked()
	cancel := m.cancel
	m.mu.Unlock()

	err := m.waitSaves(ctx)

	if sess := m.slot.release(); sess != nil {
		sess.Disconnect()
	}
	m.setState(0, StateDisconnected, ReasonShutdown)
	if cancel != nil {
		cancel()
	}
	log.Session(0).Info("Connection manager closed")
	return err
}

func (m *Manager) waitSaves(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.saves.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		log.Session(0).Warn("Shutdown deadline reached with credential saves still running")
		return ctx.Err()
	}
}

func (m *Manager) connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	ctx := m.ctx
	m.timer = nil
	m.mu.Unlock()

	gen, prev := m.slot.reserve()
	if prev != nil {
		prev.Disconnect()
	}
	m.setState(gen, StateConnecting, ReasonNone)

	sess, err := m.dialer.Dial(ctx, m.observer(gen))
	if err != nil {
		log.Session(gen).WithError(err).Error("Failed to dial WhatsApp session")
		m.setState(gen, StateDisconnected, ReasonDialFailed)
		m.scheduleReconnect(gen, true)
		return err
	}
	if !m.slot.install(gen, sess) {
		// superseded while dialing
		sess.Disconnect()
		return ErrStaleSession
	}
	log.Session(gen).Debug("WhatsApp session handle installed")
	return nil
}

func (m *Manager) observer(gen uint64) Observer {
	return Observer{
		OnUpdate: func(u Update) {
			m.handleUpdate(gen, u)
		},
		OnCredentials: func(sess Session) {
			m.saveCredentials(gen, sess)
		},
	}
}

func (m *Manager) handleUpdate(gen uint64, u Update) {
	if !m.slot.isGeneration(gen) {
		log.Session(gen).WithField("state", u.State).Debug("Ignoring update from superseded session")
		return
	}

	if u.PairingCode != "" && m.slot.setPairingCode(gen, u.PairingCode) {
		log.Session(gen).Info("New pairing QR code available")
		if m.hooks.OnPairingCode != nil {
			m.hooks.OnPairingCode(u.PairingCode)
		}
	}

	switch u.State {
	case StateConnecting:
		m.setState(gen, StateConnecting, ReasonNone)
	case StateOpen:
		m.slot.clearPairingCode(gen)
		if !m.setState(gen, StateOpen, ReasonNone) {
			return
		}
		m.mu.Lock()
		m.backOff.Reset()
		m.attempts = 0
		m.mu.Unlock()
		entry := log.Session(gen)
		if sess, _ := m.slot.Current(); sess != nil {
			entry = entry.WithField("jid", log.MaskJID(sess.ID()))
		}
		entry.Info("WhatsApp connection opened")
	case StateClosed:
		entry := log.Session(gen).WithField("reason", u.Reason)
		if u.Detail != "" {
			entry = entry.WithField("detail", u.Detail)
		}
		if !u.Reason.Recoverable() {
			m.slot.clearPairingCode(gen)
			m.setState(gen, StateLoggedOut, u.Reason)
			entry.Warn("WhatsApp session logged out, pair again to resume")
			return
		}
		entry.Warn("WhatsApp connection closed")
		m.setState(gen, StateConnecting, u.Reason)
		if !m.scheduleReconnect(gen, false) {
			m.setState(gen, StateDisconnected, u.Reason)
		}
	}
}

// saveCredentials persists through the handle that reported the change, even
// if it has since been superseded.
func (m *Manager) saveCredentials(gen uint64, sess Session) {
	if sess == nil {
		return
	}
	m.mu.Lock()
	tracked := !m.closed
	if tracked {
		m.saves.Add(1)
	}
	m.mu.Unlock()
	if tracked {
		defer m.saves.Done()
	} else {
		log.Session(gen).Warn("Credential update arrived after shutdown started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), credentialSaveTimeout)
	defer cancel()
	err := sess.SaveCredentials(ctx)
	if err != nil {
		log.Session(gen).WithError(err).Error("Failed to persist WhatsApp credentials")
	} else {
		log.Session(gen).Debug("WhatsApp credentials persisted")
	}
	if m.hooks.OnCredentialsSaved != nil {
		m.hooks.OnCredentialsSaved(err)
	}
}

// scheduleReconnect arms at most one reconnect per generation. It reports
// whether a reconnect for gen is pending.
func (m *Manager) scheduleReconnect(gen uint64, dialFailed bool) bool {
	m.mu.Lock()
	if m.closed || !m.slot.isGeneration(gen) {
		m.mu.Unlock()
		return false
	}
	if gen <= m.scheduledGen {
		pending := m.timer != nil
		m.mu.Unlock()
		return pending
	}
	m.scheduledGen = gen
	delay := m.backOff.NextBackOff()
	if delay == backoff.Stop {
		m.mu.Unlock()
		log.Session(gen).Error("Reconnect attempts exhausted, waiting for operator reconnect")
		return false
	}
	if dialFailed && delay < dialFailureFloor {
		delay = dialFailureFloor
	}
	m.attempts++
	attempt := m.attempts
	m.timer = time.AfterFunc(delay, func() {
		_ = m.connect()
	})
	m.mu.Unlock()

	log.Session(gen).WithField("attempt", attempt).WithField("delay", delay.String()).Info("Reconnect scheduled")
	if m.hooks.OnReconnectScheduled != nil {
		m.hooks.OnReconnectScheduled(attempt, delay)
	}
	return true
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) setState(gen uint64, next State, reason Reason) bool {
	prev, ok := m.slot.transition(gen, next, reason)
	if !ok {
		if prev != next {
			log.Session(gen).WithField("from", prev).WithField("to", next).Debug("Rejected state transition")
		}
		return false
	}
	if prev != next && m.hooks.OnStateChange != nil {
		m.hooks.OnStateChange(prev, next, reason)
	}
	return true
}
