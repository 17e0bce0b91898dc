package link

import (
	"encoding/json"
	"errors"
	"testing"

	"stochbot/internal/model"
)

func TestEncodeDecode_TradeIntent(t *testing.T) {
	intent := model.TradeIntent{
		Symbol:             "BTCUSDT",
		Side:               model.SideBuy,
		OrderType:          "MARKET",
		ReferencePrice:     64250.5,
		OriginalClosePrice: 64260.0,
		Timestamp:          1700000000000,
		SignalType:         model.SignalLong,
	}
	data, err := Encode(KindTradeIntent, 7, intent)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Kind != KindTradeIntent || msg.Session != 7 {
		t.Errorf("envelope = %s/%d, want trade_intent/7", msg.Kind, msg.Session)
	}
	if msg.TS == 0 {
		t.Error("envelope ts not stamped")
	}
	got, ok := msg.Payload.(model.TradeIntent)
	if !ok {
		t.Fatalf("payload type = %T", msg.Payload)
	}
	if got != intent {
		t.Errorf("payload = %+v, want %+v", got, intent)
	}
}

func TestEncodeDecode_AllKinds(t *testing.T) {
	cases := []struct {
		kind    Kind
		payload any
	}{
		{KindHello, Hello{SessionID: 3, ConnectedAt: 1}},
		{KindHeartbeat, Heartbeat{TS: 42}},
		{KindHeartbeatAck, HeartbeatAck{ServerTS: 43, Echo: 42}},
		{KindExecutionLog, ExecutionLog{Level: LogSuccess, Message: "filled"}},
		{KindExecutionAck, ExecutionAck{ReceivedMessage: "filled"}},
		{KindModifyTPSL, ModifyTPSL{OrderKind: model.OrderKindTP, NewPrice: 65000, Symbol: "BTCUSDT"}},
		{KindCancelPosition, CancelPosition{Symbol: "BTCUSDT"}},
		{KindSnapshotRequest, SnapshotRequest{}},
		{KindWalletBalance, model.WalletBalance{Asset: "USDT", Free: 100, Total: 120, TS: 9}},
		{KindPositions, Positions{Positions: []model.Position{{Symbol: "BTCUSDT", Side: model.SignalLong, Qty: 0.01}}, TS: 9}},
	}
	for _, tc := range cases {
		data, err := Encode(tc.kind, 1, tc.payload)
		if err != nil {
			t.Fatalf("%s: encode: %v", tc.kind, err)
		}
		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.kind, err)
		}
		if msg.Kind != tc.kind {
			t.Errorf("kind = %s, want %s", msg.Kind, tc.kind)
		}
		if msg.Payload == nil {
			t.Errorf("%s: nil payload", tc.kind)
		}
	}
}

func TestDecode_UnknownKindIsNotFatal(t *testing.T) {
	frame, _ := json.Marshal(Envelope{Kind: "hug", Session: 5, TS: 1})
	msg, err := Decode(frame)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	// The envelope still identifies the offender for logging.
	if msg.Kind != "hug" || msg.Session != 5 {
		t.Errorf("envelope fields lost: %+v", msg)
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Error("garbage frame decoded without error")
	}
	frame := []byte(`{"kind":"heartbeat","session":1,"ts":1,"payload":"nope"}`)
	if _, err := Decode(frame); err == nil {
		t.Error("mistyped payload decoded without error")
	}
}
