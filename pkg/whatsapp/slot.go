package whatsapp

import (
	"sync"
	"time"
)

// transitions lists the legal state changes. Same-state writes are no-ops.
//
// disconnected -> connecting | logged_out
// connecting   -> open | disconnected | logged_out
// open         -> disconnected | logged_out | connecting
// logged_out   -> connecting | disconnected
var transitions = map[State]map[State]bool{
	StateDisconnected: {StateConnecting: true, StateLoggedOut: true},
	StateConnecting:   {StateOpen: true, StateDisconnected: true, StateLoggedOut: true},
	StateOpen:         {StateDisconnected: true, StateLoggedOut: true, StateConnecting: true},
	StateLoggedOut:    {StateConnecting: true, StateDisconnected: true},
}

func canTransition(from, to State) bool {
	if from == to {
		return true
	}
	return transitions[from][to]
}

// Slot holds the single live session handle. Only the Manager writes to it;
// HTTP handlers read through Current/IsCurrent and tests may install fakes.
type Slot struct {
	mu          sync.RWMutex
	session     Session
	generation  uint64
	state       State
	reason      Reason
	pairingCode string
	since       time.Time
}

func NewSlot() *Slot {
	return &Slot{
		state: StateDisconnected,
		since: time.Now(),
	}
}

// Current returns the live handle (nil before the first successful dial) and its generation.
func (s *Slot) Current() (Session, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.generation
}

// IsCurrent reports whether gen still identifies the installed handle.
func (s *Slot) IsCurrent(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gen != 0 && gen == s.generation && s.session != nil
}

func (s *Slot) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Slot) PairingCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairingCode
}

func (s *Slot) Status() Status {
	s.mu.RLock()
	st := Status{
		State:       s.state,
		Reason:      s.reason,
		PairingCode: s.pairingCode,
		Generation:  s.generation,
		Since:       s.since,
	}
	sess := s.session
	s.mu.RUnlock()

	if sess != nil && st.State == StateOpen {
		st.JID = sess.ID()
	}
	return st
}

// Install puts sess in place as a fresh generation, bypassing the dial path.
// Meant for tests and embedding; the previous handle is returned, not closed.
func (s *Slot) Install(sess Session, state State) (uint64, Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.session
	s.generation++
	s.session = sess
	s.state = state
	s.reason = ReasonNone
	s.since = time.Now()
	if state == StateOpen {
		s.pairingCode = ""
	}
	return s.generation, prev
}

// reserve starts a new generation with no handle yet and hands back the superseded one.
func (s *Slot) reserve() (uint64, Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.session
	s.generation++
	s.session = nil
	return s.generation, prev
}

// install attaches sess to gen if no newer generation was reserved meanwhile.
func (s *Slot) install(gen uint64, sess Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.session = sess
	return true
}

// release detaches the live handle, ending its generation.
func (s *Slot) release() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.session
	s.generation++
	s.session = nil
	s.pairingCode = ""
	return prev
}

func (s *Slot) isGeneration(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gen == s.generation
}

// transition applies a state change for gen. gen == 0 applies unconditionally.
func (s *Slot) transition(gen uint64, next State, reason Reason) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	if gen != 0 && gen != s.generation {
		return prev, false
	}
	if !canTransition(prev, next) {
		return prev, false
	}
	if prev != next {
		s.since = time.Now()
	}
	s.state = next
	s.reason = reason
	return prev, true
}

func (s *Slot) setPairingCode(gen uint64, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.state == StateOpen {
		return false
	}
	s.pairingCode = code
	return true
}

func (s *Slot) clearPairingCode(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		s.pairingCode = ""
	}
}
