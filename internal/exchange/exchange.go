// Package exchange abstracts the futures venue behind a Trader interface so
// the order service can run against the live Binance adapter or the paper
// implementation.
package exchange

import (
	"context"
	"errors"

	"stochbot/internal/model"
)

// ErrUnknownSymbol is returned by the precision helpers when the venue has
// no filters for the requested symbol.
var ErrUnknownSymbol = errors.New("exchange: unknown symbol")

// Order is the subset of the venue's order response the executor cares about.
type Order struct {
	ID        int64
	Symbol    string
	Side      model.Side
	Type      string
	Qty       string
	StopPrice string
	Status    string
}

// Trader is the execution surface of one futures venue.
type Trader interface {
	// Balance returns the wallet balance for one asset.
	Balance(ctx context.Context, asset string) (model.WalletBalance, error)

	// MarkPrice returns the current mark price for a symbol.
	MarkPrice(ctx context.Context, symbol string) (float64, error)

	// SetLeverage sets the account leverage for a symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// MarketOrder places an immediate entry or exit at market.
	MarketOrder(ctx context.Context, symbol string, side model.Side, qty string) (Order, error)

	// StopOrder places a reduce-only protective stop (TAKE_PROFIT_MARKET or
	// STOP_MARKET depending on kind) that closes qty at stopPrice.
	StopOrder(ctx context.Context, symbol string, side model.Side, kind model.OrderKind, stopPrice, qty string) (Order, error)

	// CancelAllOrders cancels every open order on the symbol.
	CancelAllOrders(ctx context.Context, symbol string) error

	// Positions returns the open positions for a symbol (empty when flat).
	Positions(ctx context.Context, symbol string) ([]model.Position, error)

	// AmountToPrecision truncates a quantity to the symbol's lot step.
	AmountToPrecision(ctx context.Context, symbol string, qty float64) (string, error)

	// PriceToPrecision truncates a price to the symbol's tick size.
	PriceToPrecision(ctx context.Context, symbol string, price float64) (string, error)

	// MinQty returns the symbol's minimum order quantity.
	MinQty(ctx context.Context, symbol string) (float64, error)
}
