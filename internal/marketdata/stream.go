// Package marketdata feeds the signal engine with futures klines: a
// historical bootstrap to warm the candle window, then the live stream.
package marketdata

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"stochbot/internal/model"
)

// Stream subscribes to one symbol/interval kline feed and republishes every
// update as a model.Candle on Events(). In-progress updates arrive with
// Closed=false; the final update of a bar has Closed=true.
type Stream struct {
	symbol   string
	interval string
	client   *futures.Client
	events   chan model.Candle

	// OnReconnect, when set, is invoked on every resubscribe attempt after
	// the initial connect.
	OnReconnect func()
}

// NewStream builds a stream for one instrument. The REST client is only
// used for the historical bootstrap and needs no API keys.
func NewStream(symbol, interval string) *Stream {
	return &Stream{
		symbol:   symbol,
		interval: interval,
		client:   futures.NewClient("", ""),
		events:   make(chan model.Candle, 256),
	}
}

// Events is consumed by the signal engine's event loop.
func (s *Stream) Events() <-chan model.Candle { return s.events }

// Bootstrap fetches the most recent limit bars so indicators have a full
// window before the first live update.
func (s *Stream) Bootstrap(ctx context.Context, limit int) ([]model.Candle, error) {
	klines, err := s.client.NewKlinesService().
		Symbol(s.symbol).
		Interval(s.interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %d klines for %s %s: %w", limit, s.symbol, s.interval, err)
	}

	candles := make([]model.Candle, 0, len(klines))
	for i, k := range klines {
		c, err := candleFromKline(k)
		if err != nil {
			return nil, err
		}
		// Every bar but the newest is closed; the newest may still be forming.
		c.Closed = i < len(klines)-1
		candles = append(candles, c)
	}
	log.Printf("[marketdata] bootstrapped %d bars for %s %s", len(candles), s.symbol, s.interval)
	return candles, nil
}

// Run keeps the kline subscription alive until ctx is cancelled, redialing
// with exponential backoff whenever the stream drops.
func (s *Stream) Run(ctx context.Context) {
	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true}
	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if !first && s.OnReconnect != nil {
			s.OnReconnect()
		}
		first = false

		errC := make(chan error, 1)
		doneC, stopC, err := futures.WsKlineServe(s.symbol, s.interval,
			func(ev *futures.WsKlineEvent) {
				c, err := candleFromWsKline(ev.Kline)
				if err != nil {
					log.Printf("[marketdata] dropping malformed kline: %v", err)
					return
				}
				select {
				case s.events <- c:
				default:
					log.Printf("[marketdata] event buffer full, dropping bar t=%d", c.Time)
				}
			},
			func(err error) {
				select {
				case errC <- err:
				default:
				}
			})
		if err != nil {
			d := b.Duration()
			log.Printf("[marketdata] subscribe %s %s failed: %v, retrying in %s", s.symbol, s.interval, err, d)
			select {
			case <-time.After(d):
				continue
			case <-ctx.Done():
				return
			}
		}
		b.Reset()
		log.Printf("[marketdata] streaming %s %s klines", s.symbol, s.interval)

		select {
		case err := <-errC:
			log.Printf("[marketdata] stream error: %v, reconnecting", err)
			close(stopC)
			<-doneC
		case <-doneC:
			log.Printf("[marketdata] stream closed, reconnecting")
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		}
	}
}

func candleFromWsKline(k futures.WsKline) (model.Candle, error) {
	return parseCandle(k.StartTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.IsFinal)
}

func candleFromKline(k *futures.Kline) (model.Candle, error) {
	return parseCandle(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume, true)
}

func parseCandle(openTimeMillis int64, open, high, low, closeP, volume string, closed bool) (model.Candle, error) {
	o, err := strconv.ParseFloat(open, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse open %q: %w", open, err)
	}
	h, err := strconv.ParseFloat(high, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse high %q: %w", high, err)
	}
	l, err := strconv.ParseFloat(low, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse low %q: %w", low, err)
	}
	c, err := strconv.ParseFloat(closeP, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse close %q: %w", closeP, err)
	}
	v, err := strconv.ParseFloat(volume, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse volume %q: %w", volume, err)
	}
	return model.Candle{
		Time:   openTimeMillis / 1000,
		Open:   o,
		High:   h,
		Low:    l,
		Close:  c,
		Volume: v,
		Closed: closed,
	}, nil
}
