// Package link carries the control channel between the signal engine
// (initiator) and the order executor (acceptor): a single websocket with an
// application-level heartbeat, session ids and a closed set of message kinds.
package link

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stochbot/internal/model"
)

// Kind tags every envelope on the wire.
type Kind string

const (
	KindHello           Kind = "hello"
	KindHeartbeat       Kind = "heartbeat"
	KindHeartbeatAck    Kind = "heartbeat_ack"
	KindTradeIntent     Kind = "trade_intent"
	KindExecutionLog    Kind = "execution_log"
	KindExecutionAck    Kind = "execution_ack"
	KindModifyTPSL      Kind = "modify_tpsl"
	KindCancelPosition  Kind = "cancel_position"
	KindSnapshotRequest Kind = "snapshot_request"
	KindWalletBalance   Kind = "wallet_balance"
	KindPositions       Kind = "positions"
)

// ErrUnknownKind is returned by Decode for kinds outside the closed set.
// Receivers log it and drop the frame; it is never fatal.
var ErrUnknownKind = errors.New("link: unknown message kind")

// Envelope is the raw wire frame.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Session uint64          `json:"session"`
	TS      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hello is sent by the acceptor immediately after the upgrade and fixes the
// session id for the lifetime of the connection.
type Hello struct {
	SessionID   uint64 `json:"sessionID"`
	ConnectedAt int64  `json:"connectedAt"`
}

// Heartbeat carries the initiator's send timestamp in unix millis.
type Heartbeat struct {
	TS int64 `json:"ts"`
}

// HeartbeatAck echoes the heartbeat timestamp so the initiator can measure
// round-trip time.
type HeartbeatAck struct {
	ServerTS int64 `json:"serverTs"`
	Echo     int64 `json:"echo"`
}

// Execution log levels.
const (
	LogSuccess = "success"
	LogError   = "error"
	LogWarning = "warning"
	LogInfo    = "info"
)

// Error categories attached to execution logs.
const (
	CategoryTransient         = "transient"
	CategoryExchangeRejected  = "exchange_rejected"
	CategoryProtocolViolation = "protocol_violation"
)

// ExecutionLog reports an execution outcome back to the initiator. A success
// level confirms the pending entry; error levels carry a category tag.
type ExecutionLog struct {
	Level    string `json:"level"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
}

// ExecutionAck acknowledges receipt of an execution log.
type ExecutionAck struct {
	ReceivedMessage string `json:"receivedMessage"`
}

// ModifyTPSL asks the executor to replace one protective stop.
type ModifyTPSL struct {
	OrderKind model.OrderKind `json:"orderKind"`
	NewPrice  float64         `json:"newPrice"`
	Symbol    string          `json:"symbol"`
}

// CancelPosition asks the executor to cancel all open orders and flatten.
type CancelPosition struct {
	Symbol string `json:"symbol"`
}

// SnapshotRequest triggers an immediate wallet + positions push.
type SnapshotRequest struct{}

// Positions is the executor's open-position snapshot.
type Positions struct {
	Positions []model.Position `json:"positions"`
	TS        int64            `json:"ts"`
}

// Message is a decoded envelope. Payload holds the concrete struct for the
// kind (value, not pointer); receivers type-switch on it.
type Message struct {
	Kind    Kind
	Session uint64
	TS      int64
	Payload any
}

// Encode marshals a payload into a wire frame for the given session.
func Encode(kind Kind, session uint64, payload any) ([]byte, error) {
	env := Envelope{Kind: kind, Session: session, TS: time.Now().UnixMilli()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("link: marshal %s payload: %w", kind, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode parses a wire frame and its payload. Unknown kinds return
// ErrUnknownKind with the envelope fields still populated so the caller can
// log which kind arrived.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("link: decode envelope: %w", err)
	}
	msg := Message{Kind: env.Kind, Session: env.Session, TS: env.TS}

	var err error
	switch env.Kind {
	case KindHello:
		var p Hello
		err = unmarshalPayload(env.Payload, &p)
		msg.Payload = p
	case KindHeartbeat:
		var p Heartbeat
		err = unmarshalPayload(env.Payload, &p)
		msg.Payload = p
	case KindHeartbeatAck:
		var p HeartbeatAck
		err = unmarshalPayload(env.Payload, &p)
		msg.Payload = p
	case KindTradeIntent:
		var p model.TradeIntent
		err = unmarshalPayload(env.Payload, &p)
		msg.Payload = p
	case KindExecutionLog:
		var p ExecutionLog
		err = unmarshalPayload(env.Payload, &p)
		msg.Payload = p
	case KindExecutionAck:
		var p ExecutionAck
		err = unmarshalPayload(env.Payload, &p)
		msg.Payload = p
	case KindModifyTPSL:
		var p ModifyTPSL
		err = unmarshalPayload(env.Payload, &p)
		msg.Payload = p
	case KindCancelPosition:
		var p CancelPosition
		err = unmarshalPayload(env.Payload, &p)
		msg.Payload = p
	case KindSnapshotRequest:
		msg.Payload = SnapshotRequest{}
	case KindWalletBalance:
		var p model.WalletBalance
		err = unmarshalPayload(env.Payload, &p)
		msg.Payload = p
	case KindPositions:
		var p Positions
		err = unmarshalPayload(env.Payload, &p)
		msg.Payload = p
	default:
		return msg, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if err != nil {
		return msg, fmt.Errorf("link: decode %s payload: %w", env.Kind, err)
	}
	return msg, nil
}

func unmarshalPayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
