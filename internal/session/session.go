// Package session implements the per-connection state machine shared by
// the chat and checklist flows.
//
// A session starts Connecting, becomes Active after a successful handshake
// and ends Closed when the transport disconnects. Every group joined while
// Active is left on Close, so a closed session never leaves a dangling
// subscription behind. A new connection always starts a new session.
package session

import (
	"fmt"
	"sync"

	"github.com/codefionn/huddle/internal/fabric"
	"github.com/codefionn/huddle/internal/identity"
	"github.com/codefionn/huddle/internal/logger"
	"github.com/codefionn/huddle/internal/protocol"
)

// State is the lifecycle state of a session.
type State int

const (
	Connecting State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session binds one connection and its principal to the fabric.
type Session struct {
	conn      fabric.Conn
	principal identity.Principal
	fabric    fabric.Fabric
	log       *logger.Logger

	mu      sync.Mutex
	state   State
	groups  []string
	onClose []func()
}

// New creates a session in the Connecting state.
func New(conn fabric.Conn, principal identity.Principal, f fabric.Fabric) *Session {
	return &Session{
		conn:      conn,
		principal: principal,
		fabric:    f,
		log:       logger.Global().WithPrefix("session:" + conn.ID()),
	}
}

// Principal returns the identity the session was opened with.
func (s *Session) Principal() identity.Principal { return s.principal }

// Conn returns the underlying connection.
func (s *Session) Conn() fabric.Conn { return s.conn }

// Fabric returns the fabric the session is bound to.
func (s *Session) Fabric() fabric.Fabric { return s.fabric }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Activate moves a Connecting session to Active.
func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connecting {
		return fmt.Errorf("cannot activate session in state %s", s.state)
	}
	s.state = Active
	s.log.Debug("active as %s", s.principal)
	return nil
}

// Join subscribes the connection to group and records the membership so
// Close can undo it. Joining a group twice is a no-op.
func (s *Session) Join(group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return fmt.Errorf("cannot join %s in state %s", group, s.state)
	}
	for _, g := range s.groups {
		if g == group {
			return nil
		}
	}
	s.fabric.Subscribe(group, s.conn)
	s.groups = append(s.groups, group)
	return nil
}

// Groups returns the groups joined by this session.
func (s *Session) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.groups...)
}

// OnClose registers fn to run once the session's groups have been left.
// Callbacks run in registration order.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Close leaves every joined group and runs the close callbacks. It reports
// whether this call performed the transition; later calls do nothing.
func (s *Session) Close() bool {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return false
	}
	s.state = Closed
	groups := s.groups
	s.groups = nil
	callbacks := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	for _, g := range groups {
		s.fabric.Unsubscribe(g, s.conn)
	}
	for _, fn := range callbacks {
		fn()
	}
	s.log.Debug("closed, left %d groups", len(groups))
	return true
}

// Send delivers ev to this connection only.
func (s *Session) Send(ev protocol.Event) bool {
	if !s.conn.Deliver(ev) {
		s.log.Warn("Dropped private %s: send queue full or closed", ev.Type())
		return false
	}
	return true
}

// Broadcast delivers ev to every member of group, including this
// connection if it is a member.
func (s *Session) Broadcast(group string, ev protocol.Event) fabric.Result {
	return s.fabric.Broadcast(group, ev)
}
