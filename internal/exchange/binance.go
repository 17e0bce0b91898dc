package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"stochbot/internal/model"
)

// symbolFilters caches the lot/price filters fetched from exchange info.
type symbolFilters struct {
	step   decimal.Decimal
	tick   decimal.Decimal
	minQty decimal.Decimal
}

// Binance is the live futures adapter.
type Binance struct {
	client *futures.Client

	mu      sync.Mutex
	filters map[string]symbolFilters
}

// NewBinance creates a futures adapter. Testnet switches the whole process
// to the futures testnet endpoints.
func NewBinance(apiKey, apiSecret string, testnet bool) *Binance {
	if testnet {
		futures.UseTestnet = true
	}
	return &Binance{
		client:  futures.NewClient(apiKey, apiSecret),
		filters: make(map[string]symbolFilters),
	}
}

func (b *Binance) Balance(ctx context.Context, asset string) (model.WalletBalance, error) {
	balances, err := b.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return model.WalletBalance{}, fmt.Errorf("fetch balance: %w", err)
	}
	for _, bal := range balances {
		if bal.Asset != asset {
			continue
		}
		free, err := strconv.ParseFloat(bal.AvailableBalance, 64)
		if err != nil {
			return model.WalletBalance{}, fmt.Errorf("parse available balance %q: %w", bal.AvailableBalance, err)
		}
		total, err := strconv.ParseFloat(bal.Balance, 64)
		if err != nil {
			return model.WalletBalance{}, fmt.Errorf("parse balance %q: %w", bal.Balance, err)
		}
		return model.WalletBalance{Asset: asset, Free: free, Total: total, TS: time.Now().UnixMilli()}, nil
	}
	return model.WalletBalance{}, fmt.Errorf("fetch balance: asset %s not found", asset)
}

func (b *Binance) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	premiums, err := b.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch mark price: %w", err)
	}
	if len(premiums) == 0 {
		return 0, fmt.Errorf("fetch mark price: no premium index for %s", symbol)
	}
	price, err := strconv.ParseFloat(premiums[0].MarkPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("parse mark price %q: %w", premiums[0].MarkPrice, err)
	}
	return price, nil
}

func (b *Binance) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := b.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return fmt.Errorf("set leverage %dx on %s: %w", leverage, symbol, err)
	}
	return nil
}

func (b *Binance) MarketOrder(ctx context.Context, symbol string, side model.Side, qty string) (Order, error) {
	resp, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		Do(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("market %s %s %s: %w", side, qty, symbol, err)
	}
	return Order{
		ID:     resp.OrderID,
		Symbol: symbol,
		Side:   side,
		Type:   string(futures.OrderTypeMarket),
		Qty:    qty,
		Status: string(resp.Status),
	}, nil
}

func (b *Binance) StopOrder(ctx context.Context, symbol string, side model.Side, kind model.OrderKind, stopPrice, qty string) (Order, error) {
	orderType := futures.OrderTypeStopMarket
	if kind == model.OrderKindTP {
		orderType = futures.OrderTypeTakeProfitMarket
	}
	resp, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(orderType).
		StopPrice(stopPrice).
		Quantity(qty).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("%s stop %s %s @ %s: %w", kind, side, symbol, stopPrice, err)
	}
	return Order{
		ID:        resp.OrderID,
		Symbol:    symbol,
		Side:      side,
		Type:      string(orderType),
		Qty:       qty,
		StopPrice: stopPrice,
		Status:    string(resp.Status),
	}, nil
}

func (b *Binance) CancelAllOrders(ctx context.Context, symbol string) error {
	if err := b.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return fmt.Errorf("cancel all orders on %s: %w", symbol, err)
	}
	return nil
}

func (b *Binance) Positions(ctx context.Context, symbol string) ([]model.Position, error) {
	risks, err := b.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	var out []model.Position
	for _, r := range risks {
		amt, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil || amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		pnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		lev, _ := strconv.Atoi(r.Leverage)
		side := model.SignalLong
		if amt < 0 {
			side = model.SignalShort
			amt = -amt
		}
		out = append(out, model.Position{
			Symbol:        r.Symbol,
			Side:          side,
			Qty:           amt,
			EntryPrice:    entry,
			UnrealizedPnL: pnl,
			Leverage:      lev,
		})
	}
	return out, nil
}

func (b *Binance) AmountToPrecision(ctx context.Context, symbol string, qty float64) (string, error) {
	f, err := b.symbolFilters(ctx, symbol)
	if err != nil {
		return "", err
	}
	return truncateToStep(qty, f.step), nil
}

func (b *Binance) PriceToPrecision(ctx context.Context, symbol string, price float64) (string, error) {
	f, err := b.symbolFilters(ctx, symbol)
	if err != nil {
		return "", err
	}
	return roundToStep(price, f.tick), nil
}

func (b *Binance) MinQty(ctx context.Context, symbol string) (float64, error) {
	f, err := b.symbolFilters(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return f.minQty.InexactFloat64(), nil
}

// symbolFilters returns the cached lot/price filters, fetching exchange
// info on the first call for a symbol.
func (b *Binance) symbolFilters(ctx context.Context, symbol string) (symbolFilters, error) {
	b.mu.Lock()
	f, ok := b.filters[symbol]
	b.mu.Unlock()
	if ok {
		return f, nil
	}

	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return symbolFilters{}, fmt.Errorf("fetch exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		lot := s.LotSizeFilter()
		price := s.PriceFilter()
		if lot == nil || price == nil {
			return symbolFilters{}, fmt.Errorf("%w: %s has no lot/price filters", ErrUnknownSymbol, symbol)
		}
		step, err := decimal.NewFromString(lot.StepSize)
		if err != nil {
			return symbolFilters{}, fmt.Errorf("parse step size %q: %w", lot.StepSize, err)
		}
		tick, err := decimal.NewFromString(price.TickSize)
		if err != nil {
			return symbolFilters{}, fmt.Errorf("parse tick size %q: %w", price.TickSize, err)
		}
		minQty, err := decimal.NewFromString(lot.MinQuantity)
		if err != nil {
			return symbolFilters{}, fmt.Errorf("parse min quantity %q: %w", lot.MinQuantity, err)
		}
		f = symbolFilters{step: step, tick: tick, minQty: minQty}
		b.mu.Lock()
		b.filters[symbol] = f
		b.mu.Unlock()
		return f, nil
	}
	return symbolFilters{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
}

// truncateToStep floors a value onto the venue's step grid. Truncation, not
// rounding: rounding up can exceed the available balance.
func truncateToStep(v float64, step decimal.Decimal) string {
	d := decimal.NewFromFloat(v)
	if step.IsZero() {
		return d.String()
	}
	return d.Div(step).Floor().Mul(step).String()
}

// roundToStep snaps a price onto the venue's tick grid.
func roundToStep(v float64, step decimal.Decimal) string {
	d := decimal.NewFromFloat(v)
	if step.IsZero() {
		return d.String()
	}
	return d.Div(step).Round(0).Mul(step).String()
}
