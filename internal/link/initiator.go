package link

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

// Heartbeat cadence and the silence budget before the initiator gives up on
// a connection and redials.
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultAckTimeout        = 25 * time.Second
)

// Initiator is the signal-engine side of the link: it dials the executor,
// retries forever with exponential backoff, sends heartbeats and drops the
// connection itself when acks stop coming. On every (re)connect it requests
// a fresh wallet/positions snapshot.
type Initiator struct {
	url        string
	hbInterval time.Duration
	ackTimeout time.Duration
	dialer     *websocket.Dialer
	events     chan Event

	mu      sync.Mutex
	current *session

	lastAck atomic.Int64 // unix nanos of the most recent heartbeat_ack
}

// NewInitiator builds an initiator for the executor at url. Non-positive
// timings fall back to the defaults.
func NewInitiator(url string, hbInterval, ackTimeout time.Duration) *Initiator {
	if hbInterval <= 0 {
		hbInterval = DefaultHeartbeatInterval
	}
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	return &Initiator{
		url:        url,
		hbInterval: hbInterval,
		ackTimeout: ackTimeout,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events:     make(chan Event, 64),
	}
}

// Events is consumed by the signal engine's event loop.
func (in *Initiator) Events() <-chan Event { return in.events }

// Connected reports whether a session is currently live.
func (in *Initiator) Connected() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.current != nil
}

// Send writes a frame on the live session.
func (in *Initiator) Send(kind Kind, payload any) error {
	in.mu.Lock()
	s := in.current
	in.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	return s.writeFrame(kind, payload)
}

// Run dials, serves and redials until ctx is cancelled. It never returns an
// error: connection failures are retried forever.
func (in *Initiator) Run(ctx context.Context) {
	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true}
	for {
		if ctx.Err() != nil {
			return
		}
		s, err := in.connect(ctx)
		if err != nil {
			d := b.Duration()
			log.Printf("[link] connect to %s failed: %v, retrying in %s", in.url, err, d)
			select {
			case <-time.After(d):
				continue
			case <-ctx.Done():
				return
			}
		}
		b.Reset()

		in.serve(ctx, s)

		in.mu.Lock()
		if in.current == s {
			in.current = nil
		}
		in.mu.Unlock()
		in.events <- Event{Type: EventDisconnected, Session: s.id}
	}
}

// connect dials and waits for the acceptor's hello, which fixes the session
// id for this connection.
func (in *Initiator) connect(ctx context.Context) (*session, error) {
	conn, _, err := in.dialer.DialContext(ctx, in.url, nil)
	if err != nil {
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("waiting for hello: %w", err)
	}
	msg, err := Decode(data)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("decoding hello: %w", err)
	}
	hello, ok := msg.Payload.(Hello)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("expected hello, got %q", msg.Kind)
	}

	s := newSession(hello.SessionID, conn)
	in.mu.Lock()
	in.current = s
	in.mu.Unlock()
	in.lastAck.Store(time.Now().UnixNano())

	log.Printf("[link] connected to %s, session=%d", in.url, s.id)
	in.events <- Event{Type: EventConnected, Session: s.id}

	// The executor's wallet and position state may have moved while we were
	// away; ask for a fresh snapshot before trusting anything cached.
	if err := s.writeFrame(KindSnapshotRequest, SnapshotRequest{}); err != nil {
		log.Printf("[link] snapshot request failed: %v", err)
	}
	return s, nil
}

// serve runs the heartbeat and read loops until the connection dies or ctx
// is cancelled.
func (in *Initiator) serve(ctx context.Context, s *session) {
	done := make(chan struct{})
	go in.heartbeatLoop(ctx, s, done)
	in.readLoop(s)
	close(done)
	s.close()
}

func (in *Initiator) heartbeatLoop(ctx context.Context, s *session, done <-chan struct{}) {
	ping := time.NewTicker(in.hbInterval)
	watchdog := time.NewTicker(time.Second)
	defer ping.Stop()
	defer watchdog.Stop()

	for {
		select {
		case <-ping.C:
			if err := s.writeFrame(KindHeartbeat, Heartbeat{TS: time.Now().UnixMilli()}); err != nil {
				log.Printf("[link] session %d heartbeat write failed: %v", s.id, err)
				s.close()
				return
			}
		case <-watchdog.C:
			silent := time.Since(time.Unix(0, in.lastAck.Load()))
			if silent > in.ackTimeout {
				log.Printf("[link] session %d: no heartbeat ack for %s, disconnecting", s.id, silent.Round(time.Second))
				s.close()
				return
			}
		case <-ctx.Done():
			s.close()
			return
		case <-done:
			return
		}
	}
}

func (in *Initiator) readLoop(s *session) {
	s.conn.SetReadLimit(1 << 20)
	s.conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Printf("[link] session %d read ended: %v", s.id, err)
			return
		}
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

		if msg.Kind == KindHeartbeatAck {
			in.lastAck.Store(time.Now().UnixNano())
		}
		// Heartbeat acks are forwarded too so the owner can track RTT.
		in.events <- Event{Type: EventMessage, Session: s.id, Msg: msg}
	}
}
