package execution

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tradeerrors "github.com/ducminhle1904/crypto-signal-trader/internal/errors"
	"github.com/ducminhle1904/crypto-signal-trader/internal/exchange"
	"github.com/ducminhle1904/crypto-signal-trader/pkg/types"
)

// fakeGateway scripts gateway behavior per call, so partial-failure
// paths (protective order fails, cancel fails) can be exercised.
type fakeGateway struct {
	placeErrs  []error // consumed in call order; nil entry = success
	cancelErr  error
	filter     *exchange.SymbolFilter
	placed     []exchange.OrderRequest
	cancelled  []string
	placeCalls int
}

func (g *fakeGateway) GetName() string { return "fake" }

func (g *fakeGateway) PlaceOrder(_ context.Context, req exchange.OrderRequest) (*exchange.PlacedOrder, error) {
	idx := g.placeCalls
	g.placeCalls++
	if idx < len(g.placeErrs) && g.placeErrs[idx] != nil {
		return nil, g.placeErrs[idx]
	}
	g.placed = append(g.placed, req)
	return &exchange.PlacedOrder{ExchangeOrderID: fmt.Sprintf("ex-%d", idx), Symbol: req.Symbol}, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, _, exchangeOrderID string) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, exchangeOrderID)
	return nil
}

func (g *fakeGateway) GetLatestPrice(_ context.Context, _ string) (float64, error) {
	return 50000, nil
}

func (g *fakeGateway) GetSymbolFilter(_ context.Context, symbol string) (*exchange.SymbolFilter, error) {
	if g.filter == nil {
		return &exchange.SymbolFilter{Symbol: symbol}, nil
	}
	return g.filter, nil
}

func approvedAssessment(quantity float64) *types.RiskAssessment {
	return &types.RiskAssessment{
		Approved:     true,
		PositionSize: quantity,
		RiskScore:    25,
		AdjustedSignal: &types.TradeSignal{
			Symbol:     "BTCUSDT",
			Side:       types.SideBuy,
			StopLoss:   49000,
			TakeProfit: 52000,
		},
	}
}

func buySignal() types.TradeSignal {
	return types.TradeSignal{
		Symbol:     "BTCUSDT",
		Side:       types.SideBuy,
		Confidence: 0.8,
		Price:      50000,
		Timestamp:  time.Now(),
	}
}

func TestExecuteSignal_RequiresApprovedAssessment(t *testing.T) {
	gw := &fakeGateway{}
	x := NewExecutor(gw)

	_, err := x.ExecuteSignal(context.Background(), buySignal(), nil, 50000)
	assert.Error(t, err)

	_, err = x.ExecuteSignal(context.Background(), buySignal(), &types.RiskAssessment{Approved: false}, 50000)
	assert.Error(t, err)

	assert.Equal(t, 0, gw.placeCalls, "no gateway call without approval")
}

func TestExecuteSignal_PlacesPrimaryAndProtectiveOrders(t *testing.T) {
	gw := &fakeGateway{}
	x := NewExecutor(gw)

	result, err := x.ExecuteSignal(context.Background(), buySignal(), approvedAssessment(0.02), 50000)
	require.NoError(t, err)
	assert.NotEmpty(t, result.OrderID)
	assert.Empty(t, result.ProtectiveWarnings)

	require.Len(t, gw.placed, 3)
	assert.Equal(t, types.OrderTypeMarket, gw.placed[0].Type)
	assert.Equal(t, types.SideBuy, gw.placed[0].Side)
	assert.Equal(t, types.OrderTypeStopLoss, gw.placed[1].Type)
	assert.Equal(t, types.SideSell, gw.placed[1].Side, "protective orders close the position")
	assert.Equal(t, 49000.0, gw.placed[1].Price)
	assert.Equal(t, types.OrderTypeTakeProfit, gw.placed[2].Type)
	assert.Equal(t, 52000.0, gw.placed[2].Price)

	stats := x.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Active)
	assert.Equal(t, 3, x.ActiveOrderCount("BTCUSDT"))
}

func TestExecuteSignal_PrimaryFailure(t *testing.T) {
	gw := &fakeGateway{placeErrs: []error{errors.New("connection refused")}}
	x := NewExecutor(gw)

	_, err := x.ExecuteSignal(context.Background(), buySignal(), approvedAssessment(0.02), 50000)
	require.Error(t, err)

	var tradeErr *tradeerrors.TradeError
	require.ErrorAs(t, err, &tradeErr)
	assert.Equal(t, tradeerrors.ErrorCategoryNetwork, tradeErr.Category)

	// The failed primary is still recorded for the audit trail and no
	// protective orders were attempted.
	assert.Equal(t, 1, gw.placeCalls)
	assert.Equal(t, 1, x.Stats().Failed)
}

// TestExecuteSignal_ProtectiveFailureDoesNotRollBack verifies the
// partial-failure contract: a failed stop-loss surfaces as a warning on
// a successful result and the primary order stays in place.
func TestExecuteSignal_ProtectiveFailureDoesNotRollBack(t *testing.T) {
	gw := &fakeGateway{placeErrs: []error{nil, errors.New("rate limit exceeded")}}
	x := NewExecutor(gw)

	result, err := x.ExecuteSignal(context.Background(), buySignal(), approvedAssessment(0.02), 50000)
	require.NoError(t, err)

	require.Len(t, result.ProtectiveWarnings, 1)
	assert.Contains(t, result.ProtectiveWarnings[0], "STOP_LOSS")
	assert.Contains(t, result.ProtectiveWarnings[0], "RATE_LIMIT")

	// Primary + take-profit placed, stop-loss recorded as failed.
	assert.Len(t, gw.placed, 2)
	assert.Equal(t, 0, len(gw.cancelled), "primary is never rolled back")

	rec, ok := x.GetOrder(result.OrderID)
	require.True(t, ok)
	assert.Equal(t, types.OrderStatusSubmitted, rec.Status)
}

func TestFormatQuantity_StepRounding(t *testing.T) {
	gw := &fakeGateway{filter: &exchange.SymbolFilter{Symbol: "BTCUSDT", MinOrderQty: 0.001, QtyStep: 0.001}}
	x := NewExecutor(gw)

	qty, err := x.formatQuantity(context.Background(), "BTCUSDT", 0.0025, 50000)
	require.NoError(t, err)
	assert.InDelta(t, 0.002, qty, 1e-9)
}

func TestFormatQuantity_BelowMinimumIsHardFailure(t *testing.T) {
	gw := &fakeGateway{filter: &exchange.SymbolFilter{Symbol: "BTCUSDT", MinOrderQty: 0.001, QtyStep: 0.001}}
	x := NewExecutor(gw)

	_, err := x.formatQuantity(context.Background(), "BTCUSDT", 0.0004, 50000)
	require.Error(t, err)

	var tradeErr *tradeerrors.TradeError
	require.ErrorAs(t, err, &tradeErr)
	assert.Equal(t, tradeerrors.ErrorCategoryLotSize, tradeErr.Category)
}

func TestFormatQuantity_InvalidInput(t *testing.T) {
	x := NewExecutor(&fakeGateway{})

	for _, qty := range []float64{0, -1} {
		_, err := x.formatQuantity(context.Background(), "BTCUSDT", qty, 50000)
		assert.Error(t, err, "quantity %v must not pass silently", qty)
	}
}

func TestCancelOrder_MarksCancelledOnConfirmation(t *testing.T) {
	gw := &fakeGateway{}
	x := NewExecutor(gw)

	result, err := x.ExecuteSignal(context.Background(), buySignal(), approvedAssessment(0.02), 50000)
	require.NoError(t, err)

	require.NoError(t, x.CancelOrder(context.Background(), result.OrderID))

	rec, _ := x.GetOrder(result.OrderID)
	assert.Equal(t, types.OrderStatusCancelled, rec.Status)
}

// TestCancelOrder_FailureLeavesSubmitted checks that optimistic
// cancellation is not permitted: a failed cancel leaves the record in
// SUBMITTED.
func TestCancelOrder_FailureLeavesSubmitted(t *testing.T) {
	gw := &fakeGateway{}
	x := NewExecutor(gw)

	result, err := x.ExecuteSignal(context.Background(), buySignal(), approvedAssessment(0.02), 50000)
	require.NoError(t, err)

	gw.cancelErr = errors.New("timeout")
	assert.Error(t, x.CancelOrder(context.Background(), result.OrderID))

	rec, _ := x.GetOrder(result.OrderID)
	assert.Equal(t, types.OrderStatusSubmitted, rec.Status)
}

func TestCancelOrder_TerminalIsNoOp(t *testing.T) {
	gw := &fakeGateway{}
	x := NewExecutor(gw)

	result, err := x.ExecuteSignal(context.Background(), buySignal(), approvedAssessment(0.02), 50000)
	require.NoError(t, err)

	require.True(t, x.MarkFilled(result.OrderID))
	require.NoError(t, x.CancelOrder(context.Background(), result.OrderID))

	rec, _ := x.GetOrder(result.OrderID)
	assert.Equal(t, types.OrderStatusFilled, rec.Status)
	assert.Empty(t, gw.cancelled, "terminal cancel never reaches the gateway")
}

func TestStatusTransitions_Monotonic(t *testing.T) {
	gw := &fakeGateway{}
	x := NewExecutor(gw)

	result, err := x.ExecuteSignal(context.Background(), buySignal(), approvedAssessment(0.02), 50000)
	require.NoError(t, err)

	require.True(t, x.MarkFilled(result.OrderID))
	assert.False(t, x.MarkFailed(result.OrderID), "terminal status must not regress")

	rec, _ := x.GetOrder(result.OrderID)
	assert.Equal(t, types.OrderStatusFilled, rec.Status)
}

func TestCancelAll_BestEffort(t *testing.T) {
	gw := &fakeGateway{}
	x := NewExecutor(gw)

	first, err := x.ExecuteSignal(context.Background(), buySignal(), approvedAssessment(0.02), 50000)
	require.NoError(t, err)
	// Fill the first trade's orders so only the second batch is active.
	for _, rec := range x.Orders() {
		x.MarkFilled(rec.ID)
	}

	second, err := x.ExecuteSignal(context.Background(), buySignal(), approvedAssessment(0.02), 50000)
	require.NoError(t, err)

	failures := x.CancelAll(context.Background())
	assert.Empty(t, failures)

	firstRec, _ := x.GetOrder(first.OrderID)
	assert.Equal(t, types.OrderStatusFilled, firstRec.Status)
	secondRec, _ := x.GetOrder(second.OrderID)
	assert.Equal(t, types.OrderStatusCancelled, secondRec.Status)
}

func TestStats_SuccessRate(t *testing.T) {
	gw := &fakeGateway{}
	x := NewExecutor(gw)

	result, err := x.ExecuteSignal(context.Background(), buySignal(), approvedAssessment(0.02), 50000)
	require.NoError(t, err)

	x.MarkFilled(result.OrderID)

	stats := x.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Filled)
	assert.Equal(t, 2, stats.Active)
	assert.InDelta(t, 1.0/3.0, stats.SuccessRate, 1e-9)
}
