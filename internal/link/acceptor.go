package link

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultActivityTimeout is how long the acceptor tolerates silence before
// force-disconnecting the peer. Heartbeats arrive well inside it.
const DefaultActivityTimeout = 60 * time.Second

// ErrNotConnected is returned by Send when no peer is attached.
var ErrNotConnected = errors.New("link: no connected peer")

// Acceptor is the executor side of the link: an HTTP handler that upgrades
// exactly one peer at a time, answers heartbeats in-line and surfaces
// everything else on Events(). A second concurrent peer is rejected with a
// protocol_violation log before the close.
type Acceptor struct {
	activityTimeout time.Duration
	upgrader        websocket.Upgrader
	events          chan Event

	// OnPeerRejected, when set, is invoked with the remote address of every
	// peer turned away by the single-controller guard.
	OnPeerRejected func(remoteAddr string)

	mu      sync.Mutex
	current *session
	nextID  uint64
}

// NewAcceptor builds an acceptor with the given silence budget.
// A non-positive timeout falls back to DefaultActivityTimeout.
func NewAcceptor(activityTimeout time.Duration) *Acceptor {
	if activityTimeout <= 0 {
		activityTimeout = DefaultActivityTimeout
	}
	return &Acceptor{
		activityTimeout: activityTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		events: make(chan Event, 64),
	}
}

// Events is consumed by the executor's event loop.
func (a *Acceptor) Events() <-chan Event { return a.events }

// Connected reports whether a peer is currently attached.
func (a *Acceptor) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil
}

// Send writes a frame to the attached peer.
func (a *Acceptor) Send(kind Kind, payload any) error {
	a.mu.Lock()
	s := a.current
	a.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	return s.writeFrame(kind, payload)
}

// Close tears down the attached peer, if any.
func (a *Acceptor) Close() {
	a.mu.Lock()
	s := a.current
	a.mu.Unlock()
	if s != nil {
		s.close()
	}
}

// ServeHTTP upgrades the peer and runs its read loop until disconnect.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[link] upgrade failed: %v", err)
		return
	}

	a.mu.Lock()
	if a.current != nil {
		a.mu.Unlock()
		log.Printf("[link] rejecting second peer from %s", r.RemoteAddr)
		if a.OnPeerRejected != nil {
			a.OnPeerRejected(r.RemoteAddr)
		}
		reject := newSession(0, conn)
		reject.writeFrame(KindExecutionLog, ExecutionLog{
			Level:    LogError,
			Category: CategoryProtocolViolation,
			Message:  "another controller is already connected",
		})
		reject.close()
		return
	}
	a.nextID++
	s := newSession(a.nextID, conn)
	a.current = s
	a.mu.Unlock()

	log.Printf("[link] peer connected from %s, session=%d", r.RemoteAddr, s.id)
	if err := s.writeFrame(KindHello, Hello{
		SessionID:   s.id,
		ConnectedAt: time.Now().UnixMilli(),
	}); err != nil {
		log.Printf("[link] hello write failed: %v", err)
		a.detach(s, err)
		return
	}
	a.events <- Event{Type: EventConnected, Session: s.id}

	a.readLoop(s)
}

func (a *Acceptor) readLoop(s *session) {
	s.conn.SetReadLimit(1 << 20)
	s.conn.SetReadDeadline(time.Now().Add(a.activityTimeout))

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Printf("[link] session %d read ended: %v", s.id, err)
			a.detach(s, err)
			return
		}
		// Any inbound traffic counts as activity.
		s.conn.SetReadDeadline(time.Now().Add(a.activityTimeout))

		msg, err := Decode(data)
		if err != nil {
			if errors.Is(err, ErrUnknownKind) {
				log.Printf("[link] session %d: ignoring unknown kind %q", s.id, msg.Kind)
				continue
			}
			log.Printf("[link] session %d: bad frame dropped: %v", s.id, err)
			continue
		}
		if msg.Session != 0 && msg.Session != s.id {
			log.Printf("[link] session %d: dropping frame from stale session %d", s.id, msg.Session)
			continue
		}

		if msg.Kind == KindHeartbeat {
			hb, _ := msg.Payload.(Heartbeat)
			if err := s.writeFrame(KindHeartbeatAck, HeartbeatAck{
				ServerTS: time.Now().UnixMilli(),
				Echo:     hb.TS,
			}); err != nil {
				log.Printf("[link] session %d heartbeat ack failed: %v", s.id, err)
			}
			continue
		}

		a.events <- Event{Type: EventMessage, Session: s.id, Msg: msg}
	}
}

// detach closes the session and clears it if still current.
func (a *Acceptor) detach(s *session, err error) {
	s.close()
	a.mu.Lock()
	if a.current == s {
		a.current = nil
	}
	a.mu.Unlock()
	a.events <- Event{Type: EventDisconnected, Session: s.id, Err: err}
}
