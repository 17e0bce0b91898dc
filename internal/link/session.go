package link

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// EventType classifies what the link surfaces to its owner's event loop.
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventMessage
)

// Event is delivered on the link's event channel. Connected/Disconnected
// carry the session id; Message carries the decoded frame.
type Event struct {
	Type    EventType
	Session uint64
	Msg     Message
	Err     error
}

// session wraps one live websocket with a write lock. gorilla/websocket
// allows a single concurrent writer; heartbeats and application sends share
// the connection, so every write goes through writeFrame.
type session struct {
	id   uint64
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

func newSession(id uint64, conn *websocket.Conn) *session {
	return &session{id: id, conn: conn}
}

func (s *session) writeFrame(kind Kind, payload any) error {
	data, err := Encode(kind, s.id, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("link: session %d closed", s.id)
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// close tears the socket down once; later writeFrame calls fail fast.
func (s *session) close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.conn.Close()
}
