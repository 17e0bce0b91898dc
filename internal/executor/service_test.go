package executor

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stochbot/internal/exchange"
	"stochbot/internal/link"
	"stochbot/internal/metrics"
	"stochbot/internal/model"
	"stochbot/internal/order"
)

var execMetrics = metrics.NewExecutorMetrics()

type harness struct {
	venue  *exchange.Paper
	srv    *httptest.Server
	conn   *websocket.Conn
	sess   uint64
	cancel context.CancelFunc
}

// startHarness boots the full executor stack against the paper venue and
// attaches a raw websocket client playing the controller role.
func startHarness(t *testing.T) *harness {
	t.Helper()

	venue := exchange.NewPaper("USDT", 1000, 50000)
	orders := order.NewService(venue, order.Config{
		Asset:           "USDT",
		CapitalFraction: 0.10,
		Leverage:        5,
		TakeProfitROI:   0.03,
		StopLossROI:     0.015,
	})
	acceptor := link.NewAcceptor(0)
	svc := New(Config{
		Symbol:               "BTCUSDT",
		Asset:                "USDT",
		WalletPollInterval:   time.Hour,
		PositionPollInterval: time.Hour,
	}, acceptor, orders, venue, execMetrics, metrics.NewHealthStatus(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)

	srv := httptest.NewServer(acceptor)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		cancel()
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	h := &harness{venue: venue, srv: srv, conn: conn, cancel: cancel}
	hello := h.read(t)
	if hello.Kind != link.KindHello {
		t.Fatalf("first frame = %s, want hello", hello.Kind)
	}
	h.sess = hello.Payload.(link.Hello).SessionID
	return h
}

func (h *harness) stop() {
	h.conn.Close()
	h.srv.Close()
	h.cancel()
}

func (h *harness) send(t *testing.T, kind link.Kind, payload any) {
	t.Helper()
	frame, err := link.Encode(kind, h.sess, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", kind, err)
	}
	if err := h.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", kind, err)
	}
}

func (h *harness) read(t *testing.T) link.Message {
	t.Helper()
	h.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := h.conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := link.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

// readKind skips frames until the wanted kind arrives.
func (h *harness) readKind(t *testing.T, want link.Kind) link.Message {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := h.read(t)
		if msg.Kind == want {
			return msg
		}
	}
	t.Fatalf("no %s frame arrived", want)
	return link.Message{}
}

func TestService_ExecutesIntent(t *testing.T) {
	h := startHarness(t)
	defer h.stop()

	h.send(t, link.KindTradeIntent, model.TradeIntent{
		Symbol:     "BTCUSDT",
		Side:       model.SideBuy,
		OrderType:  "MARKET",
		SignalType: model.SignalLong,
	})

	lg := h.readKind(t, link.KindExecutionLog).Payload.(link.ExecutionLog)
	if lg.Level != link.LogSuccess {
		t.Fatalf("execution log = %+v", lg)
	}

	// The fill is followed by an unsolicited position push.
	pos := h.readKind(t, link.KindPositions).Payload.(link.Positions)
	if len(pos.Positions) != 1 || pos.Positions[0].Side != model.SignalLong {
		t.Errorf("positions = %+v", pos)
	}

	if open := h.venue.OpenOrders("BTCUSDT"); len(open) != 2 {
		t.Errorf("armed stops = %d, want 2", len(open))
	}
}

func TestService_ReportsSizingRejection(t *testing.T) {
	h := startHarness(t)
	defer h.stop()

	ctx := context.Background()

	// A price this high truncates the computed quantity to zero.
	h.venue.SetPrice(1e12)
	h.send(t, link.KindTradeIntent, model.TradeIntent{
		Symbol:     "BTCUSDT",
		Side:       model.SideBuy,
		OrderType:  "MARKET",
		SignalType: model.SignalLong,
	})

	lg := h.readKind(t, link.KindExecutionLog).Payload.(link.ExecutionLog)
	if lg.Level != link.LogError || lg.Category != order.CategoryExchangeRejected {
		t.Fatalf("execution log = %+v", lg)
	}
	if positions, _ := h.venue.Positions(ctx, "BTCUSDT"); len(positions) != 0 {
		t.Errorf("position opened despite rejection: %+v", positions)
	}
}

func TestService_SnapshotRequest(t *testing.T) {
	h := startHarness(t)
	defer h.stop()

	h.send(t, link.KindSnapshotRequest, link.SnapshotRequest{})

	wallet := h.readKind(t, link.KindWalletBalance).Payload.(model.WalletBalance)
	if wallet.Asset != "USDT" || wallet.Free != 1000 {
		t.Errorf("wallet = %+v", wallet)
	}
	h.readKind(t, link.KindPositions)
}

func TestService_ModifyAndCancel(t *testing.T) {
	h := startHarness(t)
	defer h.stop()

	h.send(t, link.KindTradeIntent, model.TradeIntent{
		Symbol:     "BTCUSDT",
		Side:       model.SideSell,
		OrderType:  "MARKET",
		SignalType: model.SignalShort,
	})
	h.readKind(t, link.KindExecutionLog)
	h.readKind(t, link.KindPositions)

	h.send(t, link.KindModifyTPSL, link.ModifyTPSL{OrderKind: model.OrderKindSL, NewPrice: 50500, Symbol: "BTCUSDT"})
	lg := h.readKind(t, link.KindExecutionLog).Payload.(link.ExecutionLog)
	if lg.Level != link.LogSuccess {
		t.Fatalf("modify log = %+v", lg)
	}

	h.send(t, link.KindCancelPosition, link.CancelPosition{Symbol: "BTCUSDT"})
	lg = h.readKind(t, link.KindExecutionLog).Payload.(link.ExecutionLog)
	if lg.Level != link.LogSuccess {
		t.Fatalf("cancel log = %+v", lg)
	}

	ctx := context.Background()
	if positions, _ := h.venue.Positions(ctx, "BTCUSDT"); len(positions) != 0 {
		t.Errorf("position survived cancel: %+v", positions)
	}
	if open := h.venue.OpenOrders("BTCUSDT"); len(open) != 0 {
		t.Errorf("stops survived cancel: %+v", open)
	}
}

func TestService_UnexpectedKindIsWarned(t *testing.T) {
	h := startHarness(t)
	defer h.stop()

	// Executor-originated kinds must never arrive inbound.
	h.send(t, link.KindWalletBalance, model.WalletBalance{Asset: "USDT"})

	lg := h.readKind(t, link.KindExecutionLog).Payload.(link.ExecutionLog)
	if lg.Level != link.LogWarning || lg.Category != link.CategoryProtocolViolation {
		t.Fatalf("violation log = %+v", lg)
	}
}
