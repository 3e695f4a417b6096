package portfolio

import (
	"sync"
	"time"

	"github.com/ducminhle1904/crypto-signal-trader/pkg/types"
)

// TradeFill is the post-trade accounting record handed to the portfolio
// collaborator. Quantity is positive for accumulation, negative for
// reduction.
type TradeFill struct {
	Symbol    string
	Quantity  float64
	Price     float64
	Timestamp time.Time
}

// Snapshot is a point-in-time view of holdings.
type Snapshot struct {
	TotalValue float64
	Positions  map[string]types.Position
}

// Portfolio is the narrow interface this core consumes for post-trade
// accounting. The real implementation (persistence, valuation) lives
// outside this core.
type Portfolio interface {
	GetPortfolio() (*Snapshot, error)
	UpdateAfterTrade(fill TradeFill) error
	CloseAllPositions() error
}

// InMemoryPortfolio is a simple Portfolio used for paper trading and
// tests. Valuation is cost-basis only.
type InMemoryPortfolio struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]types.Position
}

func NewInMemoryPortfolio(initialCash float64) *InMemoryPortfolio {
	return &InMemoryPortfolio{
		cash:      initialCash,
		positions: make(map[string]types.Position),
	}
}

func (p *InMemoryPortfolio) GetPortfolio() (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.cash
	positions := make(map[string]types.Position, len(p.positions))
	for sym, pos := range p.positions {
		positions[sym] = pos
		total += pos.Size * pos.EntryPrice
	}
	return &Snapshot{TotalValue: total, Positions: positions}, nil
}

func (p *InMemoryPortfolio) UpdateAfterTrade(fill TradeFill) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cash -= fill.Quantity * fill.Price

	pos := p.positions[fill.Symbol]
	newSize := pos.Size + fill.Quantity
	if newSize == 0 {
		delete(p.positions, fill.Symbol)
		return nil
	}

	// Average entry on accumulation, keep entry on reduction.
	if fill.Quantity > 0 {
		totalCost := pos.Size*pos.EntryPrice + fill.Quantity*fill.Price
		pos.EntryPrice = totalCost / newSize
	}
	pos.Symbol = fill.Symbol
	pos.Size = newSize
	if pos.Side == "" {
		if fill.Quantity > 0 {
			pos.Side = types.SideBuy
		} else {
			pos.Side = types.SideSell
		}
	}
	p.positions[fill.Symbol] = pos
	return nil
}

func (p *InMemoryPortfolio) CloseAllPositions() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for sym, pos := range p.positions {
		p.cash += pos.Size * pos.EntryPrice
		delete(p.positions, sym)
	}
	return nil
}
