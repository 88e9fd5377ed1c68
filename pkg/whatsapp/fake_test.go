package whatsapp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeSession struct {
	id           string
	saveDelay    time.Duration
	saveStarted  chan struct{}
	startOnce    sync.Once
	saves        atomic.Int32
	disconnected atomic.Bool
}

func (f *fakeSession) IsConnected() bool { return !f.disconnected.Load() }
func (f *fakeSession) IsLoggedIn() bool  { return !f.disconnected.Load() }
func (f *fakeSession) ID() string        { return f.id }

func (f *fakeSession) IsOnWhatsApp(ctx context.Context, jid string) (bool, string, error) {
	return true, jid, nil
}

func (f *fakeSession) SendText(ctx context.Context, jid string, text string) (string, error) {
	return "MSGID", nil
}

func (f *fakeSession) SaveCredentials(ctx context.Context) error {
	if f.saveStarted != nil {
		f.startOnce.Do(func() { close(f.saveStarted) })
	}
	if f.saveDelay > 0 {
		select {
		case <-time.After(f.saveDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.saves.Add(1)
	return nil
}

func (f *fakeSession) Disconnect() { f.disconnected.Store(true) }

// fakeDialer records every dial and the observer handed to it.
type fakeDialer struct {
	mu        sync.Mutex
	observers []Observer
	sessions  []*fakeSession
	failures  int
	saveDelay time.Duration
	dialed    chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan struct{}, 64)}
}

func (d *fakeDialer) Dial(ctx context.Context, obs Observer) (Session, error) {
	d.mu.Lock()
	d.observers = append(d.observers, obs)
	if d.failures > 0 {
		d.failures--
		d.mu.Unlock()
		d.dialed <- struct{}{}
		return nil, errors.New("dial failed")
	}
	sess := &fakeSession{
		id:          "8801712345678@s.whatsapp.net",
		saveDelay:   d.saveDelay,
		saveStarted: make(chan struct{}),
	}
	d.sessions = append(d.sessions, sess)
	d.mu.Unlock()
	d.dialed <- struct{}{}
	return sess, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observers)
}

func (d *fakeDialer) observer(i int) Observer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.observers[i]
}

func (d *fakeDialer) session(i int) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[i]
}
