package exchange

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stochbot/internal/model"
)

// Paper simulates the Trader surface without broker calls. Market orders
// fill immediately at the configured mark price; stop orders are recorded as
// open until cancelled. Useful for dry runs of the full executor pipeline.
type Paper struct {
	mu       sync.Mutex
	asset    string
	balance  float64
	price    float64
	leverage map[string]int
	position map[string]model.Position
	open     map[string][]Order
	orderSeq int64

	step   decimal.Decimal
	tick   decimal.Decimal
	minQty float64
}

// NewPaper creates a paper venue with a starting balance and mark price.
func NewPaper(asset string, balance, price float64) *Paper {
	return &Paper{
		asset:    asset,
		balance:  balance,
		price:    price,
		leverage: make(map[string]int),
		position: make(map[string]model.Position),
		open:     make(map[string][]Order),
		step:     decimal.RequireFromString("0.001"),
		tick:     decimal.RequireFromString("0.1"),
		minQty:   0.001,
	}
}

// SetPrice moves the simulated mark price.
func (p *Paper) SetPrice(price float64) {
	p.mu.Lock()
	p.price = price
	p.mu.Unlock()
}

func (p *Paper) Balance(ctx context.Context, asset string) (model.WalletBalance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if asset != p.asset {
		return model.WalletBalance{}, fmt.Errorf("paper: asset %s not found", asset)
	}
	return model.WalletBalance{Asset: asset, Free: p.balance, Total: p.balance, TS: time.Now().UnixMilli()}, nil
}

func (p *Paper) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.price, nil
}

func (p *Paper) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	p.mu.Lock()
	p.leverage[symbol] = leverage
	p.mu.Unlock()
	return nil
}

func (p *Paper) MarketOrder(ctx context.Context, symbol string, side model.Side, qty string) (Order, error) {
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return Order{}, fmt.Errorf("paper: bad quantity %q: %w", qty, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.orderSeq++
	order := Order{
		ID:     p.orderSeq,
		Symbol: symbol,
		Side:   side,
		Type:   "MARKET",
		Qty:    qty,
		Status: "FILLED",
	}

	dir := model.SignalLong
	if side == model.SideSell {
		dir = model.SignalShort
	}
	pos, held := p.position[symbol]
	switch {
	case !held:
		p.position[symbol] = model.Position{
			Symbol:     symbol,
			Side:       dir,
			Qty:        q.InexactFloat64(),
			EntryPrice: p.price,
			Leverage:   p.leverage[symbol],
		}
	case pos.Side != dir:
		// Opposite side reduces and may flatten.
		remaining := pos.Qty - q.InexactFloat64()
		if remaining <= 0 {
			delete(p.position, symbol)
		} else {
			pos.Qty = remaining
			p.position[symbol] = pos
		}
	default:
		pos.Qty += q.InexactFloat64()
		p.position[symbol] = pos
	}

	log.Printf("[paper] %s %s %s filled at %.2f", side, qty, symbol, p.price)
	return order, nil
}

func (p *Paper) StopOrder(ctx context.Context, symbol string, side model.Side, kind model.OrderKind, stopPrice, qty string) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.orderSeq++
	orderType := "STOP_MARKET"
	if kind == model.OrderKindTP {
		orderType = "TAKE_PROFIT_MARKET"
	}
	order := Order{
		ID:        p.orderSeq,
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Qty:       qty,
		StopPrice: stopPrice,
		Status:    "NEW",
	}
	p.open[symbol] = append(p.open[symbol], order)
	log.Printf("[paper] %s %s %s armed at %s", orderType, side, symbol, stopPrice)
	return order, nil
}

func (p *Paper) CancelAllOrders(ctx context.Context, symbol string) error {
	p.mu.Lock()
	delete(p.open, symbol)
	p.mu.Unlock()
	return nil
}

// OpenOrders returns the armed stop orders for a symbol.
func (p *Paper) OpenOrders(symbol string) []Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Order, len(p.open[symbol]))
	copy(out, p.open[symbol])
	return out
}

func (p *Paper) Positions(ctx context.Context, symbol string) ([]model.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.position[symbol]
	if !ok {
		return nil, nil
	}
	if pos.Side == model.SignalLong {
		pos.UnrealizedPnL = (p.price - pos.EntryPrice) * pos.Qty
	} else {
		pos.UnrealizedPnL = (pos.EntryPrice - p.price) * pos.Qty
	}
	return []model.Position{pos}, nil
}

func (p *Paper) AmountToPrecision(ctx context.Context, symbol string, qty float64) (string, error) {
	return truncateToStep(qty, p.step), nil
}

func (p *Paper) PriceToPrecision(ctx context.Context, symbol string, price float64) (string, error) {
	return roundToStep(price, p.tick), nil
}

func (p *Paper) MinQty(ctx context.Context, symbol string) (float64, error) {
	return p.minQty, nil
}
