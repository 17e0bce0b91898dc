// Package signalengine runs the initiator-side event loop: market data in,
// indicators over the window, entry evaluation on closed bars, intents out
// over the executor link.
package signalengine

import (
	"context"
	"log"
	"time"

	"stochbot/internal/candlestore"
	"stochbot/internal/indicator"
	"stochbot/internal/link"
	"stochbot/internal/logger"
	"stochbot/internal/metrics"
	"stochbot/internal/model"
	"stochbot/internal/notification"
	"stochbot/internal/signal"
	"stochbot/internal/telemetry"
)

// Config wires the service together.
type Config struct {
	Symbol         string
	WindowCapacity int
	PendingTimeout time.Duration
	Indicator      indicator.Config
	Thresholds     signal.Thresholds
}

// CandleSource is the live feed the loop consumes. *marketdata.Stream
// satisfies it; tests inject their own.
type CandleSource interface {
	Events() <-chan model.Candle
}

// Link is the initiator surface the loop needs.
type Link interface {
	Events() <-chan link.Event
	Connected() bool
	Send(kind link.Kind, payload any) error
}

// Service owns all mutable trading state: the candle window and the
// tracker. Only Run's goroutine touches them.
type Service struct {
	cfg     Config
	store   *candlestore.Store
	engine  *signal.Engine
	tracker *signal.Tracker
	source  CandleSource
	lnk     Link

	broadcaster *telemetry.Broadcaster
	metrics     *metrics.SignalMetrics
	health      *metrics.HealthStatus
	notifier    notification.Notifier

	everLinked bool

	// lastSignalID correlates the pending intent with its execution log.
	lastSignalID string
}

// New builds the signal engine service.
func New(cfg Config, source CandleSource, lnk Link, broadcaster *telemetry.Broadcaster, m *metrics.SignalMetrics, health *metrics.HealthStatus, notifier notification.Notifier) *Service {
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = signal.DefaultPendingTimeout
	}
	if notifier == nil {
		notifier = notification.NewLogNotifier()
	}
	return &Service{
		cfg:         cfg,
		store:       candlestore.New(cfg.WindowCapacity),
		engine:      signal.NewEngine(cfg.Symbol, cfg.Thresholds),
		tracker:     signal.NewTracker(),
		source:      source,
		lnk:         lnk,
		broadcaster: broadcaster,
		metrics:     m,
		health:      health,
		notifier:    notifier,
	}
}

// Seed preloads the window with bootstrapped history.
func (s *Service) Seed(candles []model.Candle) {
	for _, c := range candles {
		s.store.Upsert(c)
	}
	log.Printf("[signalengine] window seeded with %d bars", s.store.Len())
}

// Run drives the event loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	housekeeping := time.NewTicker(time.Second)
	defer housekeeping.Stop()

	log.Printf("[signalengine] trading %s", s.cfg.Symbol)
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-s.source.Events():
			s.handleCandle(ctx, c)

		case ev := <-s.lnk.Events():
			s.handleLinkEvent(ctx, ev)

		case <-housekeeping.C:
			if s.tracker.ExpirePending(time.Now(), s.cfg.PendingTimeout) {
				s.metrics.PendingExpired.Inc()
				log.Printf("[signalengine] pending entry expired, back to flat")
				s.publishState(ctx)
			}
		}
	}
}

func (s *Service) handleCandle(ctx context.Context, c model.Candle) {
	s.metrics.CandlesIngested.Inc()
	s.store.Upsert(c)
	s.health.SetStreamConnected(true)
	s.health.SetLastBarTime(time.Unix(c.Time, 0))
	s.broadcaster.PublishCandle(ctx, c)

	// Entries are decided once per bar, on the close.
	if !c.Closed {
		return
	}
	s.metrics.BarsClosed.Inc()

	start := time.Now()
	snap := indicator.Compute(s.store.Window(), s.cfg.Indicator)
	s.metrics.ComputeDur.Observe(time.Since(start).Seconds())

	s.broadcaster.PublishIndicators(ctx, snap)
	s.metrics.TelemetryPublish.Inc()

	intent, ok := s.engine.Evaluate(snap, s.tracker.Get(), c.Close, time.Now().UnixMilli())
	if !ok {
		return
	}
	s.metrics.SignalsTotal.WithLabelValues(string(intent.SignalType)).Inc()
	s.dispatch(ctx, intent)
}

// dispatch sends the intent and parks the tracker in the pending state. A
// dead link drops the intent: the market will offer another entry, a blind
// order will not.
func (s *Service) dispatch(ctx context.Context, intent model.TradeIntent) {
	if !s.lnk.Connected() {
		s.metrics.IntentsDropped.WithLabelValues("link_down").Inc()
		log.Printf("[signalengine] %s signal dropped, executor link is down", intent.SignalType)
		return
	}
	intent.SignalID = logger.GenerateSignalID(intent.Symbol, time.Now())
	s.lastSignalID = intent.SignalID
	if err := s.lnk.Send(link.KindTradeIntent, intent); err != nil {
		s.metrics.IntentsDropped.WithLabelValues("send_failed").Inc()
		log.Printf("[signalengine] intent send failed: %v", err)
		return
	}
	if err := s.tracker.MarkPending(intent.SignalType, time.Now()); err != nil {
		// Evaluate only fires from NONE, so this cannot happen; log loudly.
		log.Printf("[signalengine] tracker refused dispatch: %v", err)
		return
	}
	s.metrics.IntentsSent.Inc()
	log.Printf("[signalengine] %s intent dispatched at ref=%.2f signal=%s", intent.SignalType, intent.ReferencePrice, intent.SignalID)
	s.publishState(ctx)
}

func (s *Service) handleLinkEvent(ctx context.Context, ev link.Event) {
	switch ev.Type {
	case link.EventConnected:
		s.health.SetLinkUp(true)
		if s.everLinked {
			s.metrics.LinkReconnects.Inc()
		}
		s.everLinked = true
		s.publishState(ctx)

	case link.EventDisconnected:
		s.health.SetLinkUp(false)
		s.notifier.Send(ctx, notification.LinkLost("signal engine"))
		s.publishState(ctx)

	case link.EventMessage:
		s.handleMessage(ctx, ev.Msg)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg link.Message) {
	switch msg.Kind {
	case link.KindHeartbeatAck:
		ack := msg.Payload.(link.HeartbeatAck)
		if ack.Echo > 0 {
			rtt := time.Duration(time.Now().UnixMilli()-ack.Echo) * time.Millisecond
			if rtt >= 0 {
				s.metrics.HeartbeatRTT.Observe(rtt.Seconds())
			}
		}

	case link.KindExecutionLog:
		s.handleExecutionLog(ctx, msg.Payload.(link.ExecutionLog))

	case link.KindWalletBalance:
		w := msg.Payload.(model.WalletBalance)
		log.Printf("[signalengine] wallet: %.4f %s free of %.4f", w.Free, w.Asset, w.Total)

	case link.KindPositions:
		s.reconcilePositions(ctx, msg.Payload.(link.Positions))

	default:
		log.Printf("[signalengine] unexpected %s from executor", msg.Kind)
	}
}

func (s *Service) handleExecutionLog(ctx context.Context, lg link.ExecutionLog) {
	switch lg.Level {
	case link.LogSuccess:
		s.tracker.Confirm()
		log.Printf("[signalengine] execution confirmed: %s signal=%s", lg.Message, s.lastSignalID)
		s.publishState(ctx)
	case link.LogError:
		if s.tracker.Get().Pending() {
			s.tracker.Revert()
			log.Printf("[signalengine] entry rejected (%s), back to flat: %s signal=%s", lg.Category, lg.Details, s.lastSignalID)
			s.publishState(ctx)
		} else {
			log.Printf("[signalengine] executor error (%s): %s", lg.Category, lg.Message)
		}
	default:
		log.Printf("[signalengine] executor %s: %s", lg.Level, lg.Message)
	}

	if err := s.lnk.Send(link.KindExecutionAck, link.ExecutionAck{ReceivedMessage: lg.Message}); err != nil {
		log.Printf("[signalengine] execution ack failed: %v", err)
	}
}

// reconcilePositions aligns the tracker with the executor's view. The
// executor's snapshot wins: a vanished position means the TP or SL fired,
// an unknown one means we restarted mid-trade.
func (s *Service) reconcilePositions(ctx context.Context, snap link.Positions) {
	var held *model.Position
	for i := range snap.Positions {
		if snap.Positions[i].Symbol == s.cfg.Symbol {
			held = &snap.Positions[i]
			break
		}
	}

	state := s.tracker.Get()
	switch {
	case held == nil && (state == model.PositionLong || state == model.PositionShort):
		s.tracker.Clear()
		log.Printf("[signalengine] position closed on the venue, back to flat")
		s.publishState(ctx)
	case held != nil && state == model.PositionNone:
		s.tracker.MarkPending(held.Side, time.Now())
		s.tracker.Confirm()
		log.Printf("[signalengine] adopted open %s position from the executor", held.Side)
		s.publishState(ctx)
	}
}

func (s *Service) publishState(ctx context.Context) {
	s.health.SetPositionState(string(s.tracker.Get()))
	s.broadcaster.PublishState(ctx, s.tracker.Get(), s.lnk.Connected())
}
