package execution

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	tradeerrors "github.com/ducminhle1904/crypto-signal-trader/internal/errors"
	"github.com/ducminhle1904/crypto-signal-trader/internal/exchange"
	"github.com/ducminhle1904/crypto-signal-trader/pkg/types"
)

const component = "executor"

// OrderRecord is the locally tracked lifecycle of one exchange order.
// Records are created on submission, mutated on status transitions and
// never deleted; they form the audit trail behind Stats and the order
// journal export.
type OrderRecord struct {
	ID              string
	Symbol          string
	Side            types.Side
	Type            types.OrderType
	Quantity        float64
	Price           float64
	Status          types.OrderStatus
	Timestamp       time.Time
	ExchangeOrderID string
	RiskScore       float64
}

// Result is the outcome of executing one approved signal. Protective
// order failures surface as warnings on a successful result; they never
// roll back the primary order.
type Result struct {
	OrderID            string
	ExchangeOrderID    string
	Quantity           float64
	ProtectiveWarnings []string
}

// Stats are order lifecycle counts, recomputed on demand.
type Stats struct {
	Total       int
	Active      int
	Filled      int
	Cancelled   int
	Failed      int
	SuccessRate float64 // filled / total
}

// Executor turns approved, sized signals into exchange orders and
// tracks their lifecycle. It never places an order without a preceding
// approved RiskAssessment.
type Executor struct {
	gateway exchange.Gateway

	mu     sync.RWMutex
	orders map[string]*OrderRecord
}

func NewExecutor(gateway exchange.Gateway) *Executor {
	return &Executor{
		gateway: gateway,
		orders:  make(map[string]*OrderRecord),
	}
}

// ExecuteSignal places the primary market order for an approved
// assessment, then attempts stop-loss and take-profit protective orders
// independently. The returned error is non-nil only for primary-order
// failures; a filled primary with failed protective orders is a valid
// (if risky) outcome reported through Result.ProtectiveWarnings.
func (x *Executor) ExecuteSignal(ctx context.Context, signal types.TradeSignal, assessment *types.RiskAssessment, currentPrice float64) (*Result, error) {
	if assessment == nil || !assessment.Approved {
		return nil, tradeerrors.New(tradeerrors.ErrorCategoryValidation, component, "execute",
			"signal has no approved risk assessment")
	}

	quantity, err := x.formatQuantity(ctx, signal.Symbol, assessment.PositionSize, currentPrice)
	if err != nil {
		return nil, err
	}

	placed, err := x.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   signal.Symbol,
		Side:     signal.Side,
		Type:     types.OrderTypeMarket,
		Quantity: quantity,
	})
	if err != nil {
		x.record(signal.Symbol, signal.Side, types.OrderTypeMarket, quantity, currentPrice, assessment.RiskScore, "", types.OrderStatusFailed)
		return nil, tradeerrors.Categorize(err, component, "place primary order")
	}

	primary := x.record(signal.Symbol, signal.Side, types.OrderTypeMarket, quantity, currentPrice, assessment.RiskScore, placed.ExchangeOrderID, types.OrderStatusSubmitted)

	result := &Result{
		OrderID:         primary.ID,
		ExchangeOrderID: placed.ExchangeOrderID,
		Quantity:        quantity,
	}

	effective := signal
	if assessment.AdjustedSignal != nil {
		effective = *assessment.AdjustedSignal
	}

	if warn := x.placeProtective(ctx, effective, types.OrderTypeStopLoss, effective.StopLoss, quantity, assessment.RiskScore); warn != "" {
		result.ProtectiveWarnings = append(result.ProtectiveWarnings, warn)
	}
	if warn := x.placeProtective(ctx, effective, types.OrderTypeTakeProfit, effective.TakeProfit, quantity, assessment.RiskScore); warn != "" {
		result.ProtectiveWarnings = append(result.ProtectiveWarnings, warn)
	}

	return result, nil
}

// placeProtective places one stop-loss or take-profit order. A failure
// is reported as a warning string, never as an error.
func (x *Executor) placeProtective(ctx context.Context, signal types.TradeSignal, orderType types.OrderType, triggerPrice, quantity, riskScore float64) string {
	if triggerPrice <= 0 {
		return ""
	}

	// Protective orders close the position, so they take the opposite side.
	side := types.SideSell
	if signal.Side == types.SideSell {
		side = types.SideBuy
	}

	placed, err := x.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   signal.Symbol,
		Side:     side,
		Type:     orderType,
		Quantity: quantity,
		Price:    triggerPrice,
	})
	if err != nil {
		x.record(signal.Symbol, side, orderType, quantity, triggerPrice, riskScore, "", types.OrderStatusFailed)
		return fmt.Sprintf("%s order failed: %s", orderType, tradeerrors.Reason(tradeerrors.Categorize(err, component, "place protective order")))
	}

	x.record(signal.Symbol, side, orderType, quantity, triggerPrice, riskScore, placed.ExchangeOrderID, types.OrderStatusSubmitted)
	return ""
}

// formatQuantity rounds the requested quantity down to the symbol's
// step size, at or above its minimum. A quantity that formats to an
// invalid value is a hard failure, never a silent zero.
func (x *Executor) formatQuantity(ctx context.Context, symbol string, quantity, currentPrice float64) (float64, error) {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity <= 0 {
		return 0, tradeerrors.New(tradeerrors.ErrorCategoryValidation, component, "format quantity",
			fmt.Sprintf("invalid quantity %v for %s", quantity, symbol))
	}

	filter, err := x.gateway.GetSymbolFilter(ctx, symbol)
	if err != nil {
		// No filter means no formatting contract; pass the raw quantity
		// through and let the exchange be the authority.
		return quantity, nil
	}

	formatted := quantity
	if filter.QtyStep > 0 {
		formatted = math.Floor(quantity/filter.QtyStep) * filter.QtyStep
	}
	if formatted < filter.MinOrderQty {
		return 0, tradeerrors.New(tradeerrors.ErrorCategoryLotSize, component, "format quantity",
			fmt.Sprintf("quantity %v for %s rounds below exchange minimum %v", quantity, symbol, filter.MinOrderQty))
	}
	if filter.MinNotional > 0 && formatted*currentPrice < filter.MinNotional {
		return 0, tradeerrors.New(tradeerrors.ErrorCategoryLotSize, component, "format quantity",
			fmt.Sprintf("notional %.2f for %s below exchange minimum %.2f", formatted*currentPrice, symbol, filter.MinNotional))
	}
	if math.IsNaN(formatted) || formatted <= 0 {
		return 0, tradeerrors.New(tradeerrors.ErrorCategoryLotSize, component, "format quantity",
			fmt.Sprintf("quantity %v for %s formats to an invalid value", quantity, symbol))
	}
	return formatted, nil
}

func (x *Executor) record(symbol string, side types.Side, orderType types.OrderType, quantity, price, riskScore float64, exchangeOrderID string, status types.OrderStatus) *OrderRecord {
	rec := &OrderRecord{
		ID:              uuid.NewString(),
		Symbol:          symbol,
		Side:            side,
		Type:            orderType,
		Quantity:        quantity,
		Price:           price,
		Status:          status,
		Timestamp:       time.Now(),
		ExchangeOrderID: exchangeOrderID,
		RiskScore:       riskScore,
	}

	x.mu.Lock()
	x.orders[rec.ID] = rec
	x.mu.Unlock()
	return rec
}

// CancelOrder requests cancellation through the gateway and marks the
// record CANCELLED only after the gateway confirms. A failed cancel
// leaves the order SUBMITTED; cancelling a terminal order is a no-op.
func (x *Executor) CancelOrder(ctx context.Context, id string) error {
	x.mu.RLock()
	rec, ok := x.orders[id]
	x.mu.RUnlock()
	if !ok {
		return tradeerrors.New(tradeerrors.ErrorCategoryValidation, component, "cancel", "unknown order "+id)
	}
	if rec.Status.IsTerminal() {
		return nil
	}

	if err := x.gateway.CancelOrder(ctx, rec.Symbol, rec.ExchangeOrderID); err != nil {
		return tradeerrors.Categorize(err, component, "cancel order")
	}

	x.transition(id, types.OrderStatusCancelled)
	return nil
}

// CancelAll cancels every non-terminal order, best effort: one failed
// cancel never aborts the batch. It returns the per-order failures.
func (x *Executor) CancelAll(ctx context.Context) map[string]error {
	x.mu.RLock()
	var active []string
	for id, rec := range x.orders {
		if !rec.Status.IsTerminal() {
			active = append(active, id)
		}
	}
	x.mu.RUnlock()

	failures := make(map[string]error)
	for _, id := range active {
		if err := x.CancelOrder(ctx, id); err != nil {
			failures[id] = err
		}
	}
	return failures
}

// MarkFilled records an out-of-band fill notification.
func (x *Executor) MarkFilled(id string) bool {
	return x.transition(id, types.OrderStatusFilled)
}

// MarkFailed records an out-of-band failure notification.
func (x *Executor) MarkFailed(id string) bool {
	return x.transition(id, types.OrderStatusFailed)
}

// transition applies a status change, enforcing monotonicity: terminal
// states never regress.
func (x *Executor) transition(id string, status types.OrderStatus) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	rec, ok := x.orders[id]
	if !ok || rec.Status.IsTerminal() {
		return false
	}
	rec.Status = status
	return true
}

// ActiveOrderCount reports non-terminal orders for a symbol, used by
// the admission gate's per-symbol order cap.
func (x *Executor) ActiveOrderCount(symbol string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	count := 0
	for _, rec := range x.orders {
		if rec.Symbol == symbol && !rec.Status.IsTerminal() {
			count++
		}
	}
	return count
}

// GetOrder returns a copy of a tracked order record.
func (x *Executor) GetOrder(id string) (OrderRecord, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	rec, ok := x.orders[id]
	if !ok {
		return OrderRecord{}, false
	}
	return *rec, true
}

// Orders returns all records ordered by submission time, for the audit
// journal.
func (x *Executor) Orders() []OrderRecord {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]OrderRecord, 0, len(x.orders))
	for _, rec := range x.orders {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Stats recomputes lifecycle counts on demand; nothing is cached.
func (x *Executor) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	s := Stats{Total: len(x.orders)}
	for _, rec := range x.orders {
		switch rec.Status {
		case types.OrderStatusSubmitted:
			s.Active++
		case types.OrderStatusFilled:
			s.Filled++
		case types.OrderStatusCancelled:
			s.Cancelled++
		case types.OrderStatusFailed:
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Filled) / float64(s.Total)
	}
	return s
}
