// Package telemetry publishes live engine state over Redis PubSub for
// dashboards. PubSub only: nothing is persisted, subscribers that miss a
// message just wait for the next tick.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"stochbot/internal/indicator"
	"stochbot/internal/model"
)

// Config configures the broadcaster. An empty Addr disables it.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// IndicatorFrame is the per-bar indicator readout published for charting.
type IndicatorFrame struct {
	Symbol    string  `json:"symbol"`
	Time      int64   `json:"time"`
	HAOpen    float64 `json:"ha_open"`
	HAClose   float64 `json:"ha_close"`
	HAEMA     float64 `json:"ha_ema"`
	RSI       float64 `json:"rsi"`
	StochK    float64 `json:"stoch_k"`
	StochD    float64 `json:"stoch_d"`
	BBUpper   float64 `json:"bb_upper"`
	BBMiddle  float64 `json:"bb_middle"`
	BBLower   float64 `json:"bb_lower"`
	CCI       float64 `json:"cci"`
	Published int64   `json:"published"`
}

// StateFrame reports the tracker and link status.
type StateFrame struct {
	Symbol    string              `json:"symbol"`
	State     model.PositionState `json:"state"`
	LinkUp    bool                `json:"link_up"`
	Published int64               `json:"published"`
}

// Broadcaster publishes candle, indicator and state frames on the pub:*
// channel namespace.
type Broadcaster struct {
	client *goredis.Client
	symbol string
}

// New connects and pings Redis. Returns nil (no error) when cfg.Addr is
// empty so callers can treat telemetry as optional.
func New(cfg Config, symbol string) (*Broadcaster, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[telemetry] connected to %s", cfg.Addr)
	return &Broadcaster{client: client, symbol: symbol}, nil
}

// PublishCandle pushes the latest bar.
func (b *Broadcaster) PublishCandle(ctx context.Context, c model.Candle) {
	if b == nil {
		return
	}
	if err := b.client.Publish(ctx, "pub:candle:"+b.symbol, string(c.JSON())).Err(); err != nil {
		log.Printf("[telemetry] candle publish failed: %v", err)
	}
}

// PublishIndicators pushes the latest values of every computed series.
func (b *Broadcaster) PublishIndicators(ctx context.Context, snap indicator.Snapshot) {
	if b == nil || len(snap.HA) == 0 {
		return
	}
	ha := snap.HA[len(snap.HA)-1]
	frame := IndicatorFrame{
		Symbol:    b.symbol,
		Time:      ha.Time,
		HAOpen:    ha.Open,
		HAClose:   ha.Close,
		Published: time.Now().UnixMilli(),
	}
	if v, ok := model.LastValue(snap.HAEMA); ok {
		frame.HAEMA = v
	}
	if v, ok := model.LastValue(snap.RSI); ok {
		frame.RSI = v
	}
	if v, ok := model.LastValue(snap.StochRSI.K); ok {
		frame.StochK = v
	}
	if v, ok := model.LastValue(snap.StochRSI.D); ok {
		frame.StochD = v
	}
	if len(snap.Bollinger) > 0 {
		band := snap.Bollinger[len(snap.Bollinger)-1]
		frame.BBUpper, frame.BBMiddle, frame.BBLower = band.Upper, band.Middle, band.Lower
	}
	if v, ok := model.LastValue(snap.CCI); ok {
		frame.CCI = v
	}

	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("[telemetry] indicator frame marshal failed: %v", err)
		return
	}
	if err := b.client.Publish(ctx, "pub:ind:"+b.symbol, string(data)).Err(); err != nil {
		log.Printf("[telemetry] indicator publish failed: %v", err)
	}
}

// PublishState pushes the tracker state and link status.
func (b *Broadcaster) PublishState(ctx context.Context, state model.PositionState, linkUp bool) {
	if b == nil {
		return
	}
	data, err := json.Marshal(StateFrame{
		Symbol:    b.symbol,
		State:     state,
		LinkUp:    linkUp,
		Published: time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("[telemetry] state frame marshal failed: %v", err)
		return
	}
	if err := b.client.Publish(ctx, "pub:state:"+b.symbol, string(data)).Err(); err != nil {
		log.Printf("[telemetry] state publish failed: %v", err)
	}
}

// Client returns the underlying Redis client for health checks. Nil when
// telemetry is disabled.
func (b *Broadcaster) Client() *goredis.Client {
	if b == nil {
		return nil
	}
	return b.client
}

// Close closes the Redis client. Safe on a nil broadcaster.
func (b *Broadcaster) Close() error {
	if b == nil {
		return nil
	}
	return b.client.Close()
}
