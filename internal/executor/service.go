// Package executor runs the acceptor-side event loop: it owns the link
// acceptor, executes trade intents against the venue and keeps the
// controller fed with wallet and position snapshots.
package executor

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"stochbot/internal/exchange"
	"stochbot/internal/link"
	"stochbot/internal/logger"
	"stochbot/internal/metrics"
	"stochbot/internal/model"
	"stochbot/internal/notification"
	"stochbot/internal/order"
)

// Default snapshot poll cadences.
const (
	DefaultWalletPollInterval   = 30 * time.Second
	DefaultPositionPollInterval = 10 * time.Second

	executionTimeout = 30 * time.Second
)

// Config wires the service together.
type Config struct {
	Symbol               string
	Asset                string
	WalletPollInterval   time.Duration
	PositionPollInterval time.Duration
}

// Service is the order executor. All mutable state (the order service's
// stop bookkeeping included) is touched only from Run's goroutine.
type Service struct {
	cfg      Config
	acceptor *link.Acceptor
	orders   *order.Service
	trader   exchange.Trader
	metrics  *metrics.ExecutorMetrics
	health   *metrics.HealthStatus
	notifier notification.Notifier
}

// New builds the executor service.
func New(cfg Config, acceptor *link.Acceptor, orders *order.Service, trader exchange.Trader, m *metrics.ExecutorMetrics, health *metrics.HealthStatus, notifier notification.Notifier) *Service {
	if cfg.WalletPollInterval <= 0 {
		cfg.WalletPollInterval = DefaultWalletPollInterval
	}
	if cfg.PositionPollInterval <= 0 {
		cfg.PositionPollInterval = DefaultPositionPollInterval
	}
	if notifier == nil {
		notifier = notification.NewLogNotifier()
	}
	s := &Service{
		cfg:      cfg,
		acceptor: acceptor,
		orders:   orders,
		trader:   trader,
		metrics:  m,
		health:   health,
		notifier: notifier,
	}
	acceptor.OnPeerRejected = func(addr string) {
		s.metrics.PeersRejected.Inc()
		s.notifier.Send(context.Background(), notification.PeerRejected(addr))
	}
	return s
}

// Run drives the event loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	walletTicker := time.NewTicker(s.cfg.WalletPollInterval)
	positionTicker := time.NewTicker(s.cfg.PositionPollInterval)
	defer walletTicker.Stop()
	defer positionTicker.Stop()

	log.Printf("[executor] serving %s", s.cfg.Symbol)
	for {
		select {
		case <-ctx.Done():
			s.acceptor.Close()
			return

		case ev := <-s.acceptor.Events():
			s.handleLinkEvent(ctx, ev)

		case <-walletTicker.C:
			if s.acceptor.Connected() {
				s.pushWallet(ctx)
			}

		case <-positionTicker.C:
			if s.acceptor.Connected() {
				s.pushPositions(ctx)
			}
		}
	}
}

func (s *Service) handleLinkEvent(ctx context.Context, ev link.Event) {
	switch ev.Type {
	case link.EventConnected:
		s.health.SetLinkUp(true)
		log.Printf("[executor] controller attached, session=%d", ev.Session)

	case link.EventDisconnected:
		s.health.SetLinkUp(false)
		if os.IsTimeout(ev.Err) {
			s.metrics.ActivityDrops.Inc()
		}
		s.notifier.Send(ctx, notification.LinkLost("executor"))
		log.Printf("[executor] controller detached, session=%d", ev.Session)

	case link.EventMessage:
		s.handleMessage(ctx, ev.Msg)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg link.Message) {
	switch msg.Kind {
	case link.KindTradeIntent:
		intent, ok := msg.Payload.(model.TradeIntent)
		if !ok {
			s.protocolViolation(ctx, msg.Kind)
			return
		}
		s.executeIntent(ctx, intent)

	case link.KindModifyTPSL:
		req, ok := msg.Payload.(link.ModifyTPSL)
		if !ok {
			s.protocolViolation(ctx, msg.Kind)
			return
		}
		s.modifyStop(ctx, req)

	case link.KindCancelPosition:
		req, ok := msg.Payload.(link.CancelPosition)
		if !ok {
			s.protocolViolation(ctx, msg.Kind)
			return
		}
		s.cancelPosition(ctx, req.Symbol)

	case link.KindSnapshotRequest:
		s.pushWallet(ctx)
		s.pushPositions(ctx)

	case link.KindExecutionAck:
		// Controller confirmed receipt of a log; nothing to do.

	default:
		// hello, heartbeats and executor-originated kinds never arrive here.
		s.protocolViolation(ctx, msg.Kind)
	}
}

func (s *Service) executeIntent(ctx context.Context, intent model.TradeIntent) {
	s.metrics.IntentsReceived.Inc()
	if intent.SignalID != "" {
		ctx = logger.WithSignalID(ctx, intent.SignalID)
	}
	slog.Info("executing trade intent", append([]any{
		slog.String("symbol", intent.Symbol),
		slog.String("side", string(intent.Side)),
		slog.String("signal_type", string(intent.SignalType)),
	}, logger.LogWithSignal(ctx)...)...)

	execCtx, cancel := context.WithTimeout(ctx, executionTimeout)
	defer cancel()

	start := time.Now()
	report, err := s.orders.ExecuteIntent(execCtx, intent)
	s.metrics.ExecutionDur.Observe(time.Since(start).Seconds())

	if err != nil {
		category := order.Categorize(err)
		s.metrics.OrdersRejected.WithLabelValues(category).Inc()
		s.notifier.Send(ctx, notification.ExecutionFailed(intent.Symbol, category, err))
		s.sendLog(link.ExecutionLog{
			Level:    link.LogError,
			Category: category,
			Message:  fmt.Sprintf("entry failed for %s", intent.Symbol),
			Details:  err.Error(),
		})
		return
	}

	s.metrics.OrdersPlaced.WithLabelValues("MARKET").Inc()
	s.metrics.OrdersPlaced.WithLabelValues(report.TakeProfit.Type).Inc()
	s.metrics.OrdersPlaced.WithLabelValues(report.StopLoss.Type).Inc()
	s.notifier.Send(ctx, notification.EntryFilled(intent.Symbol, string(intent.Side), report.Qty, report.TPPrice, report.SLPrice))
	s.sendLog(link.ExecutionLog{
		Level:   link.LogSuccess,
		Message: fmt.Sprintf("entered %s %s qty=%s", intent.Side, intent.Symbol, report.Qty),
		Details: fmt.Sprintf("entry~%.2f TP=%s SL=%s", report.EntryPrice, report.TPPrice, report.SLPrice),
	})

	// The position changed; don't make the controller wait for the next poll.
	s.pushPositions(ctx)
}

func (s *Service) modifyStop(ctx context.Context, req link.ModifyTPSL) {
	if err := s.orders.ModifyStop(ctx, req.Symbol, req.OrderKind, req.NewPrice); err != nil {
		category := order.Categorize(err)
		s.metrics.OrdersRejected.WithLabelValues(category).Inc()
		s.sendLog(link.ExecutionLog{
			Level:    link.LogError,
			Category: category,
			Message:  fmt.Sprintf("modify %s failed for %s", req.OrderKind, req.Symbol),
			Details:  err.Error(),
		})
		return
	}
	s.metrics.OrdersPlaced.WithLabelValues("STOP_REPLACE").Inc()
	s.sendLog(link.ExecutionLog{
		Level:   link.LogSuccess,
		Message: fmt.Sprintf("%s moved to %.4f on %s", req.OrderKind, req.NewPrice, req.Symbol),
	})
}

func (s *Service) cancelPosition(ctx context.Context, symbol string) {
	if err := s.orders.CancelPosition(ctx, symbol); err != nil {
		category := order.Categorize(err)
		s.metrics.OrdersRejected.WithLabelValues(category).Inc()
		s.sendLog(link.ExecutionLog{
			Level:    link.LogError,
			Category: category,
			Message:  fmt.Sprintf("cancel failed for %s", symbol),
			Details:  err.Error(),
		})
		return
	}
	s.sendLog(link.ExecutionLog{
		Level:   link.LogSuccess,
		Message: fmt.Sprintf("position cancelled on %s", symbol),
	})
	s.pushPositions(ctx)
}

func (s *Service) pushWallet(ctx context.Context) {
	balance, err := s.trader.Balance(ctx, s.cfg.Asset)
	if err != nil {
		log.Printf("[executor] wallet poll failed: %v", err)
		return
	}
	if err := s.acceptor.Send(link.KindWalletBalance, balance); err != nil {
		log.Printf("[executor] wallet push failed: %v", err)
		return
	}
	s.metrics.SnapshotsPushed.Inc()
}

func (s *Service) pushPositions(ctx context.Context) {
	positions, err := s.trader.Positions(ctx, s.cfg.Symbol)
	if err != nil {
		log.Printf("[executor] position poll failed: %v", err)
		return
	}
	if err := s.acceptor.Send(link.KindPositions, link.Positions{
		Positions: positions,
		TS:        time.Now().UnixMilli(),
	}); err != nil {
		log.Printf("[executor] position push failed: %v", err)
		return
	}
	s.metrics.SnapshotsPushed.Inc()
}

func (s *Service) sendLog(entry link.ExecutionLog) {
	if err := s.acceptor.Send(link.KindExecutionLog, entry); err != nil {
		log.Printf("[executor] execution log not delivered (%s): %v", entry.Message, err)
	}
}

func (s *Service) protocolViolation(ctx context.Context, kind link.Kind) {
	log.Printf("[executor] unexpected %s from controller", kind)
	s.sendLog(link.ExecutionLog{
		Level:    link.LogWarning,
		Category: link.CategoryProtocolViolation,
		Message:  fmt.Sprintf("unexpected message kind %q", kind),
	})
}
