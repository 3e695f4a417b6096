package exchange

import (
	"context"

	"github.com/ducminhle1904/crypto-signal-trader/pkg/types"
)

// OrderRequest is the gateway-facing shape of a single order. Price is
// ignored for market orders.
type OrderRequest struct {
	Symbol   string
	Side     types.Side
	Type     types.OrderType
	Quantity float64
	Price    float64
}

// PlacedOrder is the gateway's acknowledgement of an accepted order.
type PlacedOrder struct {
	ExchangeOrderID string
	Symbol          string
	AvgPrice        float64
}

// SymbolFilter is the exchange-imposed lot-size contract for a symbol:
// minimum order quantity and quantization step.
type SymbolFilter struct {
	Symbol      string
	MinOrderQty float64
	QtyStep     float64
	MinNotional float64
}

// Gateway is the narrow interface this core consumes from the exchange
// collaborator. Implementations own their own timeouts; on timeout the
// execution layer treats the call as failed and does not retry.
type Gateway interface {
	GetName() string

	// PlaceOrder submits an order and returns the exchange order id.
	// Rejections (including symbol filter violations) come back as
	// errors with a distinguishable reason string.
	PlaceOrder(ctx context.Context, req OrderRequest) (*PlacedOrder, error)

	// CancelOrder requests cancellation of an open order. A nil return
	// means the exchange confirmed the cancel.
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error

	// GetLatestPrice returns the current best-effort price for a symbol.
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)

	// GetSymbolFilter returns the lot-size constraints for a symbol.
	GetSymbolFilter(ctx context.Context, symbol string) (*SymbolFilter, error)
}

// GatewayError is a structured error surfaced by gateway adapters.
type GatewayError struct {
	Code      string
	Message   string
	Details   string
	Retryable bool
}

func (e *GatewayError) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + " (" + e.Details + ")"
	}
	return e.Code + ": " + e.Message
}
