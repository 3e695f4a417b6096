package types

import "time"

// Side is the direction of a trade signal or order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType classifies an order placed through the exchange gateway.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopLoss   OrderType = "STOP_LOSS"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
)

// OrderStatus is the local lifecycle state of an order record.
// SUBMITTED is the only state set at placement time; the rest are
// terminal and set by out-of-band reconciliation.
type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// IsTerminal reports whether the status can no longer change.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusFailed
}

// BreakerState is the circuit breaker latch state.
type BreakerState string

const (
	BreakerNormal  BreakerState = "NORMAL"
	BreakerTripped BreakerState = "TRIPPED"
)

// TradeSignal is a probabilistic trade signal produced by an external
// scoring collaborator. Signals are immutable once emitted; the risk
// engine may construct an adjusted copy but never mutates the original.
type TradeSignal struct {
	Symbol         string
	Side           Side
	Confidence     float64 // (0,1]
	Price          float64 // best-effort price at signal time
	ExpectedReturn float64 // optional, fraction (0.05 = 5%)
	WinProbability float64 // optional, (0,1)
	StopLoss       float64 // optional caller-supplied hint
	TakeProfit     float64 // optional caller-supplied hint
	Timestamp      time.Time
}

// RiskAssessment is the outcome of a single risk evaluation. It is
// created per call, consumed immediately by the execution layer and
// never persisted.
type RiskAssessment struct {
	Approved       bool
	PositionSize   float64 // unit quantity, >= 0
	RiskScore      float64 // [0,100], informational
	Reason         string  // set when rejected
	AdjustedSignal *TradeSignal
}

// TradeResult is the structured outcome of a full admission/execution
// pass. Rejections are values, never errors, at this boundary.
type TradeResult struct {
	Success            bool
	OrderID            string
	Reason             string
	PositionSize       float64
	RiskScore          float64
	ProtectiveWarnings []string
}

// Position is an open holding tracked by the risk engine.
type Position struct {
	Symbol     string
	Size       float64
	EntryPrice float64
	Side       Side
}
