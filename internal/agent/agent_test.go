package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-signal-trader/internal/events"
	"github.com/ducminhle1904/crypto-signal-trader/internal/exchange"
	"github.com/ducminhle1904/crypto-signal-trader/internal/execution"
	"github.com/ducminhle1904/crypto-signal-trader/internal/portfolio"
	"github.com/ducminhle1904/crypto-signal-trader/internal/risk"
	"github.com/ducminhle1904/crypto-signal-trader/pkg/types"
)

type agentFixture struct {
	agent   *Agent
	gateway *exchange.PaperGateway
	engine  *risk.Engine
	exec    *execution.Executor
	bus     *events.Bus
}

func newFixture(t *testing.T, cfg Config) *agentFixture {
	t.Helper()

	gateway := exchange.NewPaperGateway()
	gateway.SetPrice("BTCUSDT", 50000)

	engine := risk.NewEngine(risk.DefaultLimits(), 10000)
	exec := execution.NewExecutor(gateway)
	pf := portfolio.NewInMemoryPortfolio(10000)
	bus := events.NewBus()

	return &agentFixture{
		agent:   New(cfg, engine, exec, pf, bus, nil),
		gateway: gateway,
		engine:  engine,
		exec:    exec,
		bus:     bus,
	}
}

func btcSignal(confidence, price float64) types.TradeSignal {
	return types.TradeSignal{
		Symbol:         "BTCUSDT",
		Side:           types.SideBuy,
		Confidence:     confidence,
		Price:          price,
		ExpectedReturn: 0.05,
		WinProbability: 0.65,
		Timestamp:      time.Now(),
	}
}

func TestExecuteTrade_Success(t *testing.T) {
	fx := newFixture(t, DefaultConfig())
	ch := fx.bus.Subscribe(8)

	result := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 50000))
	require.True(t, result.Success, "reason: %s", result.Reason)
	assert.NotEmpty(t, result.OrderID)
	assert.Greater(t, result.PositionSize, 0.0)
	assert.Empty(t, result.ProtectiveWarnings)

	// Primary plus both protective orders land on the exchange.
	assert.Equal(t, 3, fx.gateway.OpenOrderCount())

	select {
	case ev := <-ch:
		assert.Equal(t, events.EventTradeExecuted, ev.Type)
		assert.Equal(t, "BTCUSDT", ev.Symbol)
	default:
		t.Fatal("expected a trade_executed event")
	}
}

// TestExecuteTrade_DuplicateSuppressed is the core dedup behavior: the
// same side within the window with a sub-threshold price move is a
// duplicate, regardless of what happened to the first signal downstream.
func TestExecuteTrade_DuplicateSuppressed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = 0
	cfg.MaxOrdersPerSymbol = 10
	fx := newFixture(t, cfg)

	first := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 50000))
	require.True(t, first.Success, "reason: %s", first.Reason)

	// 50000 -> 50010 is a 0.02% move, below the 0.1% threshold.
	second := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 50010))
	assert.False(t, second.Success)
	assert.Contains(t, second.Reason, "duplicate")
}

func TestExecuteTrade_SideChangeBreaksDedup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = 0
	cfg.MaxOrdersPerSymbol = 10
	fx := newFixture(t, cfg)

	first := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 50000))
	require.True(t, first.Success, "reason: %s", first.Reason)

	sell := btcSignal(0.8, 50000)
	sell.Side = types.SideSell
	second := fx.agent.ExecuteTrade(context.Background(), sell)
	assert.NotContains(t, second.Reason, "duplicate")
}

func TestExecuteTrade_ConfidenceFloorRejectsBeforeGateway(t *testing.T) {
	fx := newFixture(t, DefaultConfig())

	result := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.5, 50000))
	assert.False(t, result.Success)
	assert.Contains(t, result.Reason, "confidence")
	assert.Equal(t, 0, fx.gateway.OpenOrderCount(), "low confidence must never reach the exchange")
}

func TestExecuteTrade_OrderCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DedupWindow = 0
	cfg.Cooldown = 0
	cfg.MaxOrdersPerSymbol = 1
	fx := newFixture(t, cfg)

	first := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 50000))
	require.True(t, first.Success, "reason: %s", first.Reason)

	second := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 51000))
	assert.False(t, second.Success)
	assert.Contains(t, second.Reason, "order cap")
}

func TestExecuteTrade_Cooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DedupWindow = 0
	cfg.MaxOrdersPerSymbol = 100
	fx := newFixture(t, cfg)

	first := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 50000))
	require.True(t, first.Success, "reason: %s", first.Reason)

	second := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 51000))
	assert.False(t, second.Success)
	assert.Contains(t, second.Reason, "cooldown")
}

// TestCheckCooldown_StartsOnlyOnSuccess verifies a rejected attempt does
// not restart the cooldown clock.
func TestCheckCooldown_StartsOnlyOnSuccess(t *testing.T) {
	fx := newFixture(t, DefaultConfig())

	rejected := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.4, 50000))
	require.False(t, rejected.Success)

	assert.Equal(t, time.Duration(0), fx.agent.CheckCooldown("BTCUSDT"))
}

func TestShouldProcess_InvalidPrice(t *testing.T) {
	fx := newFixture(t, DefaultConfig())

	ok, reason := fx.agent.ShouldProcess(btcSignal(0.8, 0))
	assert.False(t, ok)
	assert.Contains(t, reason, "invalid signal price")
}

func TestEmergencyStop_CancelsAndHaltsAdmission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DedupWindow = 0
	cfg.Cooldown = 0
	fx := newFixture(t, cfg)

	first := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 50000))
	require.True(t, first.Success, "reason: %s", first.Reason)
	require.Equal(t, 3, fx.gateway.OpenOrderCount())

	fx.agent.EmergencyStop(context.Background())

	assert.False(t, fx.agent.IsActive())
	assert.Equal(t, 0, fx.gateway.OpenOrderCount(), "all open orders cancelled")
	assert.Equal(t, 0, fx.exec.Stats().Active)

	halted := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.9, 52000))
	assert.False(t, halted.Success)
	assert.Contains(t, halted.Reason, "halted")

	fx.agent.Resume()
	assert.True(t, fx.agent.IsActive())
}

func TestEmergencyStop_CancelFailureDoesNotAbortBatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DedupWindow = 0
	cfg.Cooldown = 0
	fx := newFixture(t, cfg)

	first := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 50000))
	require.True(t, first.Success, "reason: %s", first.Reason)

	fx.gateway.FailNextCancel = assert.AnError
	fx.agent.EmergencyStop(context.Background())

	// One cancel failed, the rest went through.
	assert.Equal(t, 1, fx.exec.Stats().Active)
	assert.False(t, fx.agent.IsActive())
}

func TestCircuitBreaker_BlocksTradesUntilReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DedupWindow = 0
	cfg.Cooldown = 0
	fx := newFixture(t, cfg)

	// A 10% intraday loss breaches the 5% daily drawdown limit; the
	// breaker latches on the next assessment.
	fx.engine.UpdatePortfolioValue(9000)

	blocked := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 50000))
	assert.False(t, blocked.Success)
	assert.Contains(t, blocked.Reason, "circuit breaker")
	assert.Equal(t, 0, fx.gateway.OpenOrderCount())
	assert.True(t, fx.agent.IsCircuitBreakerActive())

	stillBlocked := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.9, 51000))
	assert.False(t, stillBlocked.Success)

	fx.agent.ResetCircuitBreaker()
	assert.False(t, fx.agent.IsCircuitBreakerActive())
}

func TestExecuteTrade_ExecutionFailureReturnsReason(t *testing.T) {
	fx := newFixture(t, DefaultConfig())
	fx.gateway.FailNextPlace = assert.AnError

	result := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 50000))
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Reason)
	assert.Equal(t, 1, fx.exec.Stats().Failed)
}

func TestGetTradingStats(t *testing.T) {
	fx := newFixture(t, DefaultConfig())

	result := fx.agent.ExecuteTrade(context.Background(), btcSignal(0.8, 50000))
	require.True(t, result.Success, "reason: %s", result.Reason)

	stats := fx.agent.GetTradingStats()
	assert.Equal(t, 3, stats.Orders.Total)
	assert.Equal(t, 1, stats.Risk.DailyTrades)
	assert.Equal(t, 1, stats.Risk.OpenPositions)
}

func TestGetRiskLimits(t *testing.T) {
	fx := newFixture(t, DefaultConfig())

	limits := fx.agent.GetRiskLimits()
	assert.Equal(t, risk.DefaultLimits().MaxPositionSize, limits.MaxPositionSize)
}
