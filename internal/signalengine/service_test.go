package signalengine

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"stochbot/internal/indicator"
	"stochbot/internal/link"
	"stochbot/internal/metrics"
	"stochbot/internal/model"
	"stochbot/internal/signal"
)

var sigMetrics = metrics.NewSignalMetrics()

type fakeSource struct {
	ch chan model.Candle
}

func (f *fakeSource) Events() <-chan model.Candle { return f.ch }

type fakeLink struct {
	ch chan link.Event

	mu        sync.Mutex
	connected bool
	sent      []link.Kind
	payloads  []any
}

func (f *fakeLink) Events() <-chan link.Event { return f.ch }

func (f *fakeLink) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLink) Send(kind link.Kind, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, kind)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeLink) sentKinds() []link.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]link.Kind(nil), f.sent...)
}

func (f *fakeLink) lastPayloadOf(kind link.Kind) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i] == kind {
			return f.payloads[i], true
		}
	}
	return nil, false
}

// fastConfig shrinks every period so five bars are enough for a signal.
func fastConfig() Config {
	return Config{
		Symbol:         "BTCUSDT",
		WindowCapacity: 50,
		PendingTimeout: 200 * time.Millisecond,
		Indicator: indicator.Config{
			EMAPeriod:   2,
			RSIPeriod:   2,
			StochPeriod: 2,
			KPeriod:     1,
			DPeriod:     1,
			BBPeriod:    2,
			BBStdDev:    2.0,
			CCIPeriod:   2,
		},
		Thresholds: signal.DefaultThresholds(),
	}
}

// flatBar builds a candle with o=h=l=c so the HA close equals the raw close.
func flatBar(t int64, price float64) model.Candle {
	return model.Candle{Time: t, Open: price, High: price, Low: price, Close: price, Closed: true}
}

// longScenario is a decline followed by a recovery bar: RSI turns up from
// the bottom of its window (%K crosses 20) on a bullish HA bar above the
// short EMA.
func longScenario() []model.Candle {
	prices := []float64{100, 90, 80, 70, 85}
	bars := make([]model.Candle, len(prices))
	for i, p := range prices {
		bars[i] = flatBar(int64(60*(i+1)), p)
	}
	return bars
}

func positionState(t *testing.T, h *metrics.HealthStatus) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	var body struct {
		PositionState string `json:"position_state"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return body.PositionState
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func startService(t *testing.T, cfg Config) (*fakeSource, *fakeLink, *metrics.HealthStatus, context.CancelFunc) {
	t.Helper()
	source := &fakeSource{ch: make(chan model.Candle, 16)}
	lnk := &fakeLink{ch: make(chan link.Event, 16), connected: true}
	health := metrics.NewHealthStatus()
	svc := New(cfg, source, lnk, nil, sigMetrics, health, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)
	return source, lnk, health, cancel
}

func TestService_DispatchesLongAndConfirms(t *testing.T) {
	source, lnk, health, cancel := startService(t, fastConfig())
	defer cancel()

	for _, bar := range longScenario() {
		source.ch <- bar
	}

	waitFor(t, func() bool {
		for _, k := range lnk.sentKinds() {
			if k == link.KindTradeIntent {
				return true
			}
		}
		return false
	})

	payload, _ := lnk.lastPayloadOf(link.KindTradeIntent)
	intent := payload.(model.TradeIntent)
	if intent.SignalType != model.SignalLong || intent.Side != model.SideBuy {
		t.Fatalf("intent = %+v", intent)
	}
	if intent.Symbol != "BTCUSDT" || intent.OriginalClosePrice != 85 {
		t.Errorf("intent fields = %+v", intent)
	}
	if !strings.HasPrefix(intent.SignalID, "BTCUSDT-") {
		t.Errorf("signal id = %q, want BTCUSDT-<nanos>", intent.SignalID)
	}
	waitFor(t, func() bool { return positionState(t, health) == "PENDING_LONG" })

	// The executor confirms the fill; the tracker promotes to LONG and the
	// log is acked.
	lnk.ch <- link.Event{Type: link.EventMessage, Session: 1, Msg: link.Message{
		Kind:    link.KindExecutionLog,
		Payload: link.ExecutionLog{Level: link.LogSuccess, Message: "entered BUY BTCUSDT qty=0.01"},
	}}
	waitFor(t, func() bool { return positionState(t, health) == "LONG" })
	waitFor(t, func() bool {
		for _, k := range lnk.sentKinds() {
			if k == link.KindExecutionAck {
				return true
			}
		}
		return false
	})
}

func TestService_RejectionRevertsPending(t *testing.T) {
	source, lnk, health, cancel := startService(t, fastConfig())
	defer cancel()

	for _, bar := range longScenario() {
		source.ch <- bar
	}
	waitFor(t, func() bool { return positionState(t, health) == "PENDING_LONG" })

	lnk.ch <- link.Event{Type: link.EventMessage, Session: 1, Msg: link.Message{
		Kind:    link.KindExecutionLog,
		Payload: link.ExecutionLog{Level: link.LogError, Category: "exchange_rejected", Message: "entry failed"},
	}}
	waitFor(t, func() bool { return positionState(t, health) == "NONE" })
}

func TestService_PendingExpires(t *testing.T) {
	source, _, health, cancel := startService(t, fastConfig())
	defer cancel()

	for _, bar := range longScenario() {
		source.ch <- bar
	}
	waitFor(t, func() bool { return positionState(t, health) == "PENDING_LONG" })

	// No confirmation arrives; the 200ms pending timeout reverts to flat.
	waitFor(t, func() bool { return positionState(t, health) == "NONE" })
}

func TestService_DropsIntentWhenLinkDown(t *testing.T) {
	source := &fakeSource{ch: make(chan model.Candle, 16)}
	lnk := &fakeLink{ch: make(chan link.Event, 16), connected: false}
	health := metrics.NewHealthStatus()
	svc := New(fastConfig(), source, lnk, nil, sigMetrics, health, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	for _, bar := range longScenario() {
		source.ch <- bar
	}

	// The signal fires but nothing goes out and the tracker stays flat.
	time.Sleep(300 * time.Millisecond)
	if kinds := lnk.sentKinds(); len(kinds) != 0 {
		t.Errorf("sent over a dead link: %v", kinds)
	}
	if state := positionState(t, health); state != "" && state != "NONE" {
		t.Errorf("state = %s, want flat", state)
	}
}

func TestService_ReconcilesPositions(t *testing.T) {
	source, lnk, health, cancel := startService(t, fastConfig())
	defer cancel()

	// Executor reports an open SHORT we know nothing about (restart case).
	lnk.ch <- link.Event{Type: link.EventMessage, Session: 1, Msg: link.Message{
		Kind: link.KindPositions,
		Payload: link.Positions{Positions: []model.Position{
			{Symbol: "BTCUSDT", Side: model.SignalShort, Qty: 0.01, EntryPrice: 50000},
		}},
	}}
	waitFor(t, func() bool { return positionState(t, health) == "SHORT" })

	// The position disappears (TP or SL fired): back to flat.
	lnk.ch <- link.Event{Type: link.EventMessage, Session: 1, Msg: link.Message{
		Kind:    link.KindPositions,
		Payload: link.Positions{},
	}}
	waitFor(t, func() bool { return positionState(t, health) == "NONE" })

	_ = source
}

func TestService_IgnoresFormingBars(t *testing.T) {
	source, lnk, _, cancel := startService(t, fastConfig())
	defer cancel()

	bars := longScenario()
	// The final, signal-producing bar arrives still forming.
	bars[len(bars)-1].Closed = false
	for _, bar := range bars {
		source.ch <- bar
	}

	time.Sleep(300 * time.Millisecond)
	for _, k := range lnk.sentKinds() {
		if k == link.KindTradeIntent {
			t.Fatal("intent dispatched on a forming bar")
		}
	}
}
