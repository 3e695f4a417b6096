package exchange

import (
	"context"
	"fmt"
	"sync"
)

// PaperGateway is an in-memory gateway used for dry-run operation and
// tests. Orders are accepted immediately; prices and symbol filters are
// seeded by the caller.
type PaperGateway struct {
	mu      sync.Mutex
	nextID  int
	open    map[string]OrderRequest // exchange order id -> request
	prices  map[string]float64
	filters map[string]*SymbolFilter

	// FailNextPlace / FailNextCancel make the next call fail with the
	// given error, for exercising partial-failure paths.
	FailNextPlace  error
	FailNextCancel error
}

func NewPaperGateway() *PaperGateway {
	return &PaperGateway{
		open:    make(map[string]OrderRequest),
		prices:  make(map[string]float64),
		filters: make(map[string]*SymbolFilter),
	}
}

func (g *PaperGateway) GetName() string { return "paper" }

// SetPrice seeds the quoted price for a symbol.
func (g *PaperGateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

// SetFilter seeds the lot-size filter for a symbol.
func (g *PaperGateway) SetFilter(f SymbolFilter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filters[f.Symbol] = &f
}

func (g *PaperGateway) PlaceOrder(_ context.Context, req OrderRequest) (*PlacedOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.FailNextPlace; err != nil {
		g.FailNextPlace = nil
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, &GatewayError{Code: "INVALID_REQUEST", Message: "quantity must be positive"}
	}
	if f, ok := g.filters[req.Symbol]; ok && req.Quantity < f.MinOrderQty {
		return nil, &GatewayError{
			Code:    "LOT_SIZE",
			Message: fmt.Sprintf("quantity %v below minimum %v", req.Quantity, f.MinOrderQty),
		}
	}

	g.nextID++
	id := fmt.Sprintf("paper-%d", g.nextID)
	g.open[id] = req

	return &PlacedOrder{ExchangeOrderID: id, Symbol: req.Symbol}, nil
}

func (g *PaperGateway) CancelOrder(_ context.Context, _, exchangeOrderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.FailNextCancel; err != nil {
		g.FailNextCancel = nil
		return err
	}
	if _, ok := g.open[exchangeOrderID]; !ok {
		return &GatewayError{Code: "ORDER_NOT_FOUND", Message: "unknown order " + exchangeOrderID}
	}
	delete(g.open, exchangeOrderID)
	return nil
}

func (g *PaperGateway) GetLatestPrice(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price, ok := g.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return price, nil
}

func (g *PaperGateway) GetSymbolFilter(_ context.Context, symbol string) (*SymbolFilter, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f, ok := g.filters[symbol]; ok {
		return f, nil
	}
	// Unconstrained default keeps dry-run usable without seeding.
	return &SymbolFilter{Symbol: symbol, MinOrderQty: 0, QtyStep: 0}, nil
}

// OpenOrderCount reports orders accepted and not yet cancelled.
func (g *PaperGateway) OpenOrderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.open)
}
