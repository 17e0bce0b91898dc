// Package metrics exposes Prometheus metrics and the /healthz endpoint for
// both processes.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SignalMetrics holds the signal-engine side counters.
type SignalMetrics struct {
	CandlesIngested  prometheus.Counter
	BarsClosed       prometheus.Counter
	StreamReconnects prometheus.Counter
	SignalsTotal     *prometheus.CounterVec // labels: side
	IntentsSent      prometheus.Counter
	IntentsDropped   *prometheus.CounterVec // labels: reason
	PendingExpired   prometheus.Counter
	LinkReconnects   prometheus.Counter
	HeartbeatRTT     prometheus.Histogram
	ComputeDur       prometheus.Histogram
	TelemetryPublish prometheus.Counter
}

// NewSignalMetrics registers and returns the signal-engine metrics.
func NewSignalMetrics() *SignalMetrics {
	m := &SignalMetrics{
		CandlesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_candles_ingested_total",
			Help: "Kline updates received from the market data stream",
		}),
		BarsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_bars_closed_total",
			Help: "Closed bars evaluated by the signal engine",
		}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_stream_reconnects_total",
			Help: "Market data stream reconnection attempts",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_signals_total",
			Help: "Entry signals produced (by side)",
		}, []string{"side"}),
		IntentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_intents_sent_total",
			Help: "Trade intents dispatched over the link",
		}),
		IntentsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_intents_dropped_total",
			Help: "Trade intents not dispatched (by reason)",
		}, []string{"reason"}),
		PendingExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_pending_expired_total",
			Help: "Pending entries reverted after the confirmation timeout",
		}),
		LinkReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_link_reconnects_total",
			Help: "Executor link reconnections",
		}),
		HeartbeatRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_heartbeat_rtt_seconds",
			Help:    "Round-trip time of link heartbeats",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_indicator_compute_duration_seconds",
			Help:    "Full-window indicator recompute latency",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		TelemetryPublish: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_telemetry_publishes_total",
			Help: "Telemetry frames published to Redis",
		}),
	}

	prometheus.MustRegister(
		m.CandlesIngested,
		m.BarsClosed,
		m.StreamReconnects,
		m.SignalsTotal,
		m.IntentsSent,
		m.IntentsDropped,
		m.PendingExpired,
		m.LinkReconnects,
		m.HeartbeatRTT,
		m.ComputeDur,
		m.TelemetryPublish,
	)
	return m
}

// ExecutorMetrics holds the order-executor side counters.
type ExecutorMetrics struct {
	IntentsReceived prometheus.Counter
	OrdersPlaced    *prometheus.CounterVec // labels: type
	OrdersRejected  *prometheus.CounterVec // labels: category
	PeersRejected   prometheus.Counter
	ActivityDrops   prometheus.Counter
	SnapshotsPushed prometheus.Counter
	ExecutionDur    prometheus.Histogram
}

// NewExecutorMetrics registers and returns the executor metrics.
func NewExecutorMetrics() *ExecutorMetrics {
	m := &ExecutorMetrics{
		IntentsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderexecutor_intents_received_total",
			Help: "Trade intents received over the link",
		}),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderexecutor_orders_placed_total",
			Help: "Orders placed on the venue (by type)",
		}, []string{"type"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderexecutor_orders_rejected_total",
			Help: "Failed executions (by error category)",
		}, []string{"category"}),
		PeersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderexecutor_peers_rejected_total",
			Help: "Concurrent peers rejected by the single-controller guard",
		}),
		ActivityDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderexecutor_activity_drops_total",
			Help: "Peers dropped after the activity timeout",
		}),
		SnapshotsPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderexecutor_snapshots_pushed_total",
			Help: "Wallet/position snapshots pushed to the controller",
		}),
		ExecutionDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "orderexecutor_execution_duration_seconds",
			Help:    "Full entry sequence latency (sizing through stop placement)",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
	}

	prometheus.MustRegister(
		m.IntentsReceived,
		m.OrdersPlaced,
		m.OrdersRejected,
		m.PeersRejected,
		m.ActivityDrops,
		m.SnapshotsPushed,
		m.ExecutionDur,
	)
	return m
}

// HealthStatus represents the process health served at /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool      `json:"stream_connected"`
	LinkUp          bool      `json:"link_up"`
	RedisConnected  bool      `json:"redis_connected"`
	LastBarTime     time.Time `json:"last_bar_time"`
	PositionState   string    `json:"position_state"`

	RedisLatencyMs float64   `json:"redis_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLinkUp(v bool) {
	h.mu.Lock()
	h.LinkUp = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetPositionState(s string) {
	h.mu.Lock()
	h.PositionState = s
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.StreamConnected && !h.LinkUp {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.StreamConnected || !h.LinkUp {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		StreamConnected bool    `json:"stream_connected"`
		LinkUp          bool    `json:"link_up"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		LastBarTime     string  `json:"last_bar_time"`
		BarAge          string  `json:"bar_age"`
		PositionState   string  `json:"position_state"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		LinkUp:          h.LinkUp,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		BarAge:          barAge,
		PositionState:   h.PositionState,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
