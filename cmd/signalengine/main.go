package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stochbot/config"
	"stochbot/internal/indicator"
	"stochbot/internal/link"
	"stochbot/internal/logger"
	"stochbot/internal/marketdata"
	"stochbot/internal/metrics"
	"stochbot/internal/notification"
	tradesignal "stochbot/internal/signal"
	"stochbot/internal/signalengine"
	"stochbot/internal/telemetry"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[signalengine] starting...")

	// ---- Load config from env ----
	cfg := config.Load()
	logger.Init("signalengine", slog.LevelInfo)
	log.Printf("[signalengine] instrument %s %s", cfg.Symbol, cfg.Interval)

	// ---- Setup metrics & health ----
	prom := metrics.NewSignalMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Telemetry broadcaster (optional) ----
	broadcaster, err := telemetry.New(telemetry.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, cfg.Symbol)
	if err != nil {
		log.Printf("[signalengine] WARNING: redis init failed: %v (continuing without telemetry)", err)
	}
	if broadcaster != nil {
		defer broadcaster.Close()
		health.SetRedisConnected(true)
	}
	health.StartLivenessChecker(ctx, broadcaster.Client(), 10*time.Second)

	// ---- Notifications ----
	notifier := buildNotifier(cfg)

	// ---- Market data stream ----
	stream := marketdata.NewStream(cfg.Symbol, cfg.Interval)
	stream.OnReconnect = prom.StreamReconnects.Inc

	bootCtx, bootCancel := context.WithTimeout(ctx, 30*time.Second)
	history, err := stream.Bootstrap(bootCtx, cfg.WindowCapacity)
	bootCancel()
	if err != nil {
		log.Printf("[signalengine] WARNING: bootstrap failed: %v (window fills from live bars)", err)
	}

	// ---- Executor link ----
	initiator := link.NewInitiator(cfg.ExecutorURL, cfg.HeartbeatInterval, cfg.AckTimeout)

	// ---- Signal engine event loop ----
	svc := signalengine.New(signalengine.Config{
		Symbol:         cfg.Symbol,
		WindowCapacity: cfg.WindowCapacity,
		PendingTimeout: cfg.PendingTimeout,
		Indicator: indicator.Config{
			EMAPeriod:   cfg.EMAPeriod,
			RSIPeriod:   cfg.RSIPeriod,
			StochPeriod: cfg.StochPeriod,
			KPeriod:     cfg.StochKPeriod,
			DPeriod:     cfg.StochDPeriod,
			BBPeriod:    cfg.BBPeriod,
			BBStdDev:    cfg.BBStdDev,
			CCIPeriod:   cfg.CCIPeriod,
		},
		Thresholds: tradesignal.Thresholds{
			Oversold:   cfg.OversoldLevel,
			Overbought: cfg.OverboughtLevel,
		},
	}, stream, initiator, broadcaster, prom, health, notifier)
	svc.Seed(history)

	go stream.Run(ctx)
	go initiator.Run(ctx)
	go svc.Run(ctx)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[signalengine] shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[signalengine] stopped")
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL, "signalengine"))
		log.Println("[signalengine] webhook notifications enabled")
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[signalengine] telegram notifications enabled")
	}
	return notification.NewMulti(backends...)
}
