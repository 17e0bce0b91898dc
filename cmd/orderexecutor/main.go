package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stochbot/config"
	"stochbot/internal/exchange"
	"stochbot/internal/executor"
	"stochbot/internal/link"
	"stochbot/internal/logger"
	"stochbot/internal/metrics"
	"stochbot/internal/notification"
	"stochbot/internal/order"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[orderexecutor] starting...")

	// ---- Load config from env ----
	cfg := config.Load()
	logger.Init("orderexecutor", slog.LevelInfo)

	// ---- Setup metrics & health ----
	prom := metrics.NewExecutorMetrics()
	health := metrics.NewHealthStatus()
	// The executor has no market stream of its own; /healthz tracks the
	// controller link only.
	health.SetStreamConnected(true)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Trading venue ----
	var trader exchange.Trader
	if cfg.PaperTrading {
		log.Printf("[orderexecutor] *** PAPER TRADING — simulated fills, %.2f %s balance ***", cfg.PaperBalance, cfg.Asset)
		paper := exchange.NewPaper(cfg.Asset, cfg.PaperBalance, 0)
		go refreshPaperQuotes(ctx, paper, cfg)
		trader = paper
	} else {
		cfg.RequireKeys()
		if cfg.BinanceTestnet {
			log.Println("[orderexecutor] using Binance futures testnet")
		}
		trader = exchange.NewBinance(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.BinanceTestnet)
	}

	// ---- Order service ----
	orders := order.NewService(trader, order.Config{
		Asset:           cfg.Asset,
		CapitalFraction: cfg.CapitalFraction,
		Leverage:        cfg.Leverage,
		TakeProfitROI:   cfg.TakeProfitROI,
		StopLossROI:     cfg.StopLossROI,
	})

	// ---- Controller link ----
	acceptor := link.NewAcceptor(cfg.ActivityTimeout)
	mux := http.NewServeMux()
	mux.Handle("/link", acceptor)
	linkSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("[orderexecutor] link listening on %s/link", cfg.ListenAddr)
		if err := linkSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[orderexecutor] link server failed: %v", err)
		}
	}()

	// ---- Executor event loop ----
	svc := executor.New(executor.Config{
		Symbol:               cfg.Symbol,
		Asset:                cfg.Asset,
		WalletPollInterval:   cfg.WalletPollInterval,
		PositionPollInterval: cfg.PositionPollInterval,
	}, acceptor, orders, trader, prom, health, buildNotifier(cfg))
	go svc.Run(ctx)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[orderexecutor] shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	acceptor.Close()
	linkSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[orderexecutor] stopped")
}

// refreshPaperQuotes feeds the paper venue with live mark prices so sizing
// and simulated fills track the real market. The premium index endpoint is
// public, no keys needed.
func refreshPaperQuotes(ctx context.Context, paper *exchange.Paper, cfg *config.Config) {
	quotes := exchange.NewBinance("", "", cfg.BinanceTestnet)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	fetch := func() {
		qctx, qcancel := context.WithTimeout(ctx, 5*time.Second)
		defer qcancel()
		price, err := quotes.MarkPrice(qctx, cfg.Symbol)
		if err != nil {
			log.Printf("[orderexecutor] mark price fetch failed: %v", err)
			return
		}
		paper.SetPrice(price)
	}

	fetch()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetch()
		}
	}
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL, "orderexecutor"))
		log.Println("[orderexecutor] webhook notifications enabled")
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[orderexecutor] telegram notifications enabled")
	}
	return notification.NewMulti(backends...)
}
