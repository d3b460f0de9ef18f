package signaling

import (
	"sync"
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// ConnState is one node of the per-connection state machine in §4.4.
type ConnState int

const (
	StateConnected ConnState = iota
	StateAwaitingAuth
	StateAuthenticated
	StateInChannel
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAwaitingAuth:
		return "awaiting-auth"
	case StateAuthenticated:
		return "authenticated"
	case StateInChannel:
		return "in-channel"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultSendQueueDepth is the bound on a connection's outbound queue
// (§5 Resource caps: "send queue bounded (per-recipient)").
const DefaultSendQueueDepth = 256

// maxLoginAttempts is N in Awaiting-Auth --Login(fail, attempts=N)--> Closed.
const maxLoginAttempts = 5

// sendQueue is a bounded, non-blocking outbound frame queue. It
// implements presence.SendQueue and router.SendQueue, both of which
// only need a non-blocking Enqueue.
type sendQueue struct {
	ch chan []byte
}

func newSendQueue(depth int) *sendQueue {
	if depth <= 0 {
		depth = DefaultSendQueueDepth
	}
	return &sendQueue{ch: make(chan []byte, depth)}
}

// Enqueue returns false without blocking if the queue is full.
func (q *sendQueue) Enqueue(frame []byte) bool {
	select {
	case q.ch <- frame:
		return true
	default:
		return false
	}
}

func (q *sendQueue) Outbound() <-chan []byte { return q.ch }

// Session is the server-side state of one TCP control connection: its
// place in the §4.4 state machine, the user/channel it's bound to, and
// the outbound queue its writer goroutine drains.
type Session struct {
	ID identifiers.UserID // zero until Login succeeds

	mu            sync.Mutex
	state         ConnState
	channel       identifiers.ChannelID
	loginAttempts int
	token         string

	Queue *sendQueue

	closeOnce sync.Once
	done      chan struct{}

	ConnectedAt time.Time
}

// NewSession creates a session in StateConnected with a fresh send queue.
func NewSession(queueDepth int) *Session {
	return &Session{
		state:       StateConnected,
		Queue:       newSendQueue(queueDepth),
		done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}
}

// State returns the session's current state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Channel returns the channel the session currently occupies, if any.
func (s *Session) Channel() identifiers.ChannelID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// setState transitions the session to next, returning the state it was
// in before the transition.
func (s *Session) setState(next ConnState) ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = next
	return prev
}

// AuthenticateAs transitions Connected/Awaiting-Auth to Authenticated,
// binding the session to user and its session token. Resets the
// failed-login counter.
func (s *Session) AuthenticateAs(user identifiers.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ID = user
	s.state = StateAuthenticated
	s.loginAttempts = 0
}

// SetToken binds the session's active bearer token, used for Logout and
// TokenRefresh.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Token returns the session's active bearer token.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// RecordFailedLogin increments the failed-attempt counter and reports
// whether the rate-ban threshold (N attempts) has now been reached.
func (s *Session) RecordFailedLogin() (banned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginAttempts++
	if s.loginAttempts >= maxLoginAttempts {
		s.state = StateClosed
		return true
	}
	return false
}

// EnterChannel transitions Authenticated/InChannel to InChannel for ch.
func (s *Session) EnterChannel(ch identifiers.ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = ch
	s.state = StateInChannel
}

// LeaveChannel transitions InChannel back to Authenticated.
func (s *Session) LeaveChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = identifiers.ChannelID{}
	s.state = StateAuthenticated
}

// Close transitions the session to Closed and signals Done exactly once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.done)
	})
}

// Done is closed once the session transitions to Closed.
func (s *Session) Done() <-chan struct{} { return s.done }
