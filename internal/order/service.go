// Package order turns trade intents into venue orders: balance-based sizing,
// leveraged market entry and the reduce-only TP/SL pair guarding it.
package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/adshao/go-binance/v2/common"

	"stochbot/internal/exchange"
	"stochbot/internal/model"
)

// Error categories reported on execution logs.
const (
	CategoryTransient        = "transient"
	CategoryExchangeRejected = "exchange_rejected"
)

// Sizing failures are deterministic rejections, not retryable faults.
var (
	ErrInsufficientBalance = errors.New("order: insufficient balance")
	ErrBelowMinQty         = errors.New("order: quantity below venue minimum")
)

// Config fixes the risk parameters for every entry.
type Config struct {
	Asset           string  // quote asset backing the margin, e.g. USDT
	CapitalFraction float64 // share of the free balance committed per trade
	Leverage        int
	TakeProfitROI   float64 // return on margin, e.g. 0.03
	StopLossROI     float64 // e.g. 0.015
}

// Report summarizes one executed entry for the execution log.
type Report struct {
	Entry      exchange.Order
	TakeProfit exchange.Order
	StopLoss   exchange.Order
	Qty        string
	EntryPrice float64
	TPPrice    string
	SLPrice    string
}

// stopPair remembers the protective orders attached to the open position so
// a modify request can cancel and re-arm the pair.
type stopPair struct {
	exitSide model.Side
	qty      string
	tpPrice  string
	slPrice  string
}

// Service executes intents against a Trader. It is owned by the executor's
// event loop; no locking.
type Service struct {
	trader exchange.Trader
	cfg    Config
	stops  map[string]stopPair
}

// NewService builds an order service over the given venue.
func NewService(trader exchange.Trader, cfg Config) *Service {
	return &Service{trader: trader, cfg: cfg, stops: make(map[string]stopPair)}
}

// ExecuteIntent runs the full entry sequence: size from the free balance,
// set leverage, enter at market, then arm the TP/SL pair. Any failure before
// the market order aborts with nothing placed.
func (s *Service) ExecuteIntent(ctx context.Context, intent model.TradeIntent) (Report, error) {
	balance, err := s.trader.Balance(ctx, s.cfg.Asset)
	if err != nil {
		return Report{}, fmt.Errorf("fetch balance: %w", err)
	}
	if balance.Free <= 0 {
		return Report{}, fmt.Errorf("%w: %.8f %s free", ErrInsufficientBalance, balance.Free, s.cfg.Asset)
	}

	price, err := s.trader.MarkPrice(ctx, intent.Symbol)
	if err != nil {
		return Report{}, fmt.Errorf("fetch price: %w", err)
	}
	if price <= 0 {
		return Report{}, fmt.Errorf("no usable price for %s", intent.Symbol)
	}

	if err := s.trader.SetLeverage(ctx, intent.Symbol, s.cfg.Leverage); err != nil {
		return Report{}, err
	}

	rawQty := balance.Free * s.cfg.CapitalFraction * float64(s.cfg.Leverage) / price
	qty, err := s.trader.AmountToPrecision(ctx, intent.Symbol, rawQty)
	if err != nil {
		return Report{}, fmt.Errorf("quantity precision: %w", err)
	}
	qtyF, err := strconv.ParseFloat(qty, 64)
	if err != nil {
		return Report{}, fmt.Errorf("parse quantity %q: %w", qty, err)
	}
	minQty, err := s.trader.MinQty(ctx, intent.Symbol)
	if err != nil {
		return Report{}, fmt.Errorf("min quantity: %w", err)
	}
	if qtyF <= 0 || qtyF < minQty {
		return Report{}, fmt.Errorf("%w: computed %s, minimum %v for %s", ErrBelowMinQty, qty, minQty, intent.Symbol)
	}

	entry, err := s.trader.MarketOrder(ctx, intent.Symbol, intent.Side, qty)
	if err != nil {
		return Report{}, err
	}
	log.Printf("[order] entered %s %s %s at ~%.2f", intent.Side, qty, intent.Symbol, price)

	tpPrice, slPrice := s.stopPrices(intent.Side, price)
	tpStr, err := s.trader.PriceToPrecision(ctx, intent.Symbol, tpPrice)
	if err != nil {
		return Report{}, fmt.Errorf("tp precision: %w", err)
	}
	slStr, err := s.trader.PriceToPrecision(ctx, intent.Symbol, slPrice)
	if err != nil {
		return Report{}, fmt.Errorf("sl precision: %w", err)
	}

	exitSide := intent.Side.Opposite()
	tp, err := s.trader.StopOrder(ctx, intent.Symbol, exitSide, model.OrderKindTP, tpStr, qty)
	if err != nil {
		return Report{}, fmt.Errorf("arm take profit: %w", err)
	}
	sl, err := s.trader.StopOrder(ctx, intent.Symbol, exitSide, model.OrderKindSL, slStr, qty)
	if err != nil {
		return Report{}, fmt.Errorf("arm stop loss: %w", err)
	}
	log.Printf("[order] %s protected: TP %s / SL %s", intent.Symbol, tpStr, slStr)

	s.stops[intent.Symbol] = stopPair{exitSide: exitSide, qty: qty, tpPrice: tpStr, slPrice: slStr}

	return Report{
		Entry:      entry,
		TakeProfit: tp,
		StopLoss:   sl,
		Qty:        qty,
		EntryPrice: price,
		TPPrice:    tpStr,
		SLPrice:    slStr,
	}, nil
}

// stopPrices converts the ROI targets into price levels. ROI is measured on
// the margin, so the price move is ROI divided by leverage.
func (s *Service) stopPrices(side model.Side, entry float64) (tp, sl float64) {
	tpMove := s.cfg.TakeProfitROI / float64(s.cfg.Leverage)
	slMove := s.cfg.StopLossROI / float64(s.cfg.Leverage)
	if side == model.SideBuy {
		return entry * (1 + tpMove), entry * (1 - slMove)
	}
	return entry * (1 - tpMove), entry * (1 + slMove)
}

// ModifyStop re-arms the protective pair with one leg moved to newPrice.
// The venue has no stop-amend call, so the pair is cancelled and re-placed.
func (s *Service) ModifyStop(ctx context.Context, symbol string, kind model.OrderKind, newPrice float64) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid order kind %q", kind)
	}
	pair, ok := s.stops[symbol]
	if !ok {
		return fmt.Errorf("no protected position on %s", symbol)
	}

	priceStr, err := s.trader.PriceToPrecision(ctx, symbol, newPrice)
	if err != nil {
		return fmt.Errorf("stop precision: %w", err)
	}
	if kind == model.OrderKindTP {
		pair.tpPrice = priceStr
	} else {
		pair.slPrice = priceStr
	}

	if err := s.trader.CancelAllOrders(ctx, symbol); err != nil {
		return err
	}
	if _, err := s.trader.StopOrder(ctx, symbol, pair.exitSide, model.OrderKindTP, pair.tpPrice, pair.qty); err != nil {
		return fmt.Errorf("re-arm take profit: %w", err)
	}
	if _, err := s.trader.StopOrder(ctx, symbol, pair.exitSide, model.OrderKindSL, pair.slPrice, pair.qty); err != nil {
		return fmt.Errorf("re-arm stop loss: %w", err)
	}
	s.stops[symbol] = pair
	log.Printf("[order] %s stops moved: TP %s / SL %s", symbol, pair.tpPrice, pair.slPrice)
	return nil
}

// CancelPosition cancels every open order on the symbol and flattens any
// remaining position at market.
func (s *Service) CancelPosition(ctx context.Context, symbol string) error {
	if err := s.trader.CancelAllOrders(ctx, symbol); err != nil {
		return err
	}
	delete(s.stops, symbol)

	positions, err := s.trader.Positions(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}
	for _, pos := range positions {
		qty, err := s.trader.AmountToPrecision(ctx, symbol, pos.Qty)
		if err != nil {
			return fmt.Errorf("flatten precision: %w", err)
		}
		if _, err := s.trader.MarketOrder(ctx, symbol, pos.Side.Side().Opposite(), qty); err != nil {
			return fmt.Errorf("flatten %s: %w", symbol, err)
		}
		log.Printf("[order] flattened %s %s %s", pos.Side, qty, symbol)
	}
	return nil
}

// Categorize maps an execution error onto the log taxonomy: venue rejections
// carry an API error code, everything else is assumed transient.
func Categorize(err error) string {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return CategoryExchangeRejected
	}
	if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrBelowMinQty) {
		return CategoryExchangeRejected
	}
	return CategoryTransient
}
