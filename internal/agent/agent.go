package agent

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	tradeerrors "github.com/ducminhle1904/crypto-signal-trader/internal/errors"
	"github.com/ducminhle1904/crypto-signal-trader/internal/events"
	"github.com/ducminhle1904/crypto-signal-trader/internal/execution"
	"github.com/ducminhle1904/crypto-signal-trader/internal/logger"
	"github.com/ducminhle1904/crypto-signal-trader/internal/monitoring"
	"github.com/ducminhle1904/crypto-signal-trader/internal/portfolio"
	"github.com/ducminhle1904/crypto-signal-trader/internal/risk"
	"github.com/ducminhle1904/crypto-signal-trader/pkg/types"
)

// Config holds the admission gate's throttling knobs.
type Config struct {
	DedupWindow        time.Duration // window for duplicate-signal suppression
	MinPriceChangePct  float64       // % price move that breaks dedup (0.1 = 0.1%)
	Cooldown           time.Duration // per-symbol pause after a successful trade
	MaxOrdersPerSymbol int           // cap on concurrent non-terminal orders
	MinConfidence      float64       // cheap pre-risk confidence floor
}

// DefaultConfig returns the gate's production defaults.
func DefaultConfig() Config {
	return Config{
		DedupWindow:        60 * time.Second,
		MinPriceChangePct:  0.1,
		Cooldown:           5 * time.Minute,
		MaxOrdersPerSymbol: 2,
		MinConfidence:      0.60,
	}
}

// signalCacheEntry is the last accepted signal per symbol, kept purely
// for deduplication and overwritten on every accept.
type signalCacheEntry struct {
	side  types.Side
	price float64
	at    time.Time
}

// Agent is the admission gate: it deduplicates and throttles incoming
// signals, orchestrates risk assessment and execution, and owns the
// emergency-stop control.
type Agent struct {
	cfg       Config
	risk      *risk.Engine
	exec      *execution.Executor
	portfolio portfolio.Portfolio
	bus       *events.Bus
	log       *logger.Logger

	mu          sync.Mutex
	active      bool
	lastSignals map[string]signalCacheEntry
	lastTradeAt map[string]time.Time
	symLocks    map[string]*sync.Mutex
	now         func() time.Time
}

// New wires the admission gate to its collaborators. The logger may be
// nil for embedded/test use.
func New(cfg Config, riskEngine *risk.Engine, exec *execution.Executor, pf portfolio.Portfolio, bus *events.Bus, log *logger.Logger) *Agent {
	a := &Agent{
		cfg:         cfg,
		risk:        riskEngine,
		exec:        exec,
		portfolio:   pf,
		bus:         bus,
		log:         log,
		active:      true,
		lastSignals: make(map[string]signalCacheEntry),
		lastTradeAt: make(map[string]time.Time),
		symLocks:    make(map[string]*sync.Mutex),
		now:         time.Now,
	}

	riskEngine.OnBreakerTrip(func(reason string) {
		monitoring.SetBreakerActive(true)
		bus.Publish(events.Event{Type: events.EventCircuitBreaker, Reason: reason})
		if a.log != nil {
			a.log.Risk("circuit breaker tripped: %s", reason)
		}
	})

	return a
}

// ShouldProcess applies the dedup gate. Accepting a signal overwrites
// the cache entry unconditionally, even when a later pipeline stage
// rejects the trade.
func (a *Agent) ShouldProcess(signal types.TradeSignal) (bool, string) {
	if math.IsNaN(signal.Price) || signal.Price <= 0 {
		return false, fmt.Sprintf("invalid signal price %v", signal.Price)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if prev, ok := a.lastSignals[signal.Symbol]; ok {
		elapsed := now.Sub(prev.at)
		changePct := math.Abs(signal.Price-prev.price) / prev.price * 100
		if elapsed < a.cfg.DedupWindow && signal.Side == prev.side && changePct < a.cfg.MinPriceChangePct {
			return false, fmt.Sprintf("duplicate signal: %s %s within %s, price moved %.3f%% (< %.3f%%)",
				signal.Side, signal.Symbol, a.cfg.DedupWindow, changePct, a.cfg.MinPriceChangePct)
		}
	}

	a.lastSignals[signal.Symbol] = signalCacheEntry{side: signal.Side, price: signal.Price, at: now}
	return true, ""
}

// CheckOrderCap reports whether the symbol has capacity for another
// non-terminal order.
func (a *Agent) CheckOrderCap(symbol string) bool {
	return a.exec.ActiveOrderCount(symbol) < a.cfg.MaxOrdersPerSymbol
}

// CheckCooldown returns the remaining cooldown for a symbol. The clock
// starts only on successful execution, never on rejected attempts.
func (a *Agent) CheckCooldown(symbol string) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	last, ok := a.lastTradeAt[symbol]
	if !ok {
		return 0
	}
	remaining := a.cfg.Cooldown - a.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExecuteTrade runs the full admission pipeline for one signal. Every
// rejection is a structured value; the only side effect on rejection
// paths is the dedup-cache update on accept.
//
// Signals for the same symbol are serialized by a per-symbol lock held
// across the pipeline; the risk engine's own lock is released before
// the blocking gateway calls begin, so a slow exchange call for one
// symbol never stalls assessments for another.
func (a *Agent) ExecuteTrade(ctx context.Context, signal types.TradeSignal) *types.TradeResult {
	lock := a.symbolLock(signal.Symbol)
	lock.Lock()
	defer lock.Unlock()

	if !a.IsActive() {
		return a.reject(signal, "inactive", "trading halted: emergency stop active")
	}

	// Cheap rejection first: no risk evaluation below the floor.
	if signal.Confidence < a.cfg.MinConfidence {
		return a.reject(signal, "confidence",
			fmt.Sprintf("confidence %.2f below floor %.2f", signal.Confidence, a.cfg.MinConfidence))
	}

	if ok, reason := a.ShouldProcess(signal); !ok {
		return a.reject(signal, "duplicate", reason)
	}

	if !a.CheckOrderCap(signal.Symbol) {
		return a.reject(signal, "order_cap",
			fmt.Sprintf("order cap reached: %d active orders for %s", a.exec.ActiveOrderCount(signal.Symbol), signal.Symbol))
	}

	if remaining := a.CheckCooldown(signal.Symbol); remaining > 0 {
		return a.reject(signal, "cooldown",
			fmt.Sprintf("cooldown active for %s: %s remaining", signal.Symbol, remaining.Round(time.Millisecond)))
	}

	assessment := a.risk.AssessTradeRisk(signal, signal.Price)
	monitoring.UpdateRiskScore(signal.Symbol, assessment.RiskScore)
	if !assessment.Approved {
		res := a.reject(signal, "risk", assessment.Reason)
		res.RiskScore = assessment.RiskScore
		return res
	}

	execResult, err := a.exec.ExecuteSignal(ctx, signal, assessment, signal.Price)
	if err != nil {
		reason := tradeerrors.Reason(err)
		monitoring.RecordSignal("failed", "execution")
		monitoring.RecordGatewayError(categoryOf(err))
		a.bus.Publish(events.Event{Type: events.EventError, Symbol: signal.Symbol, Reason: reason})
		if a.log != nil {
			a.log.Error("execution failed for %s: %s", signal.Symbol, reason)
		}
		return &types.TradeResult{Success: false, Reason: reason, RiskScore: assessment.RiskScore}
	}

	a.mu.Lock()
	a.lastTradeAt[signal.Symbol] = a.now()
	a.mu.Unlock()

	a.risk.ApplyFill(signal.Symbol, execResult.Quantity, signal.Price, signal.Side)

	fillQty := execResult.Quantity
	if signal.Side == types.SideSell {
		fillQty = -fillQty
	}
	if err := a.portfolio.UpdateAfterTrade(portfolio.TradeFill{
		Symbol:    signal.Symbol,
		Quantity:  fillQty,
		Price:     signal.Price,
		Timestamp: a.now(),
	}); err != nil && a.log != nil {
		a.log.Error("portfolio update failed for %s: %v", signal.Symbol, err)
	}

	monitoring.RecordSignal("executed", "ok")
	monitoring.RecordTrade(signal.Symbol, string(signal.Side), execResult.Quantity*signal.Price)
	a.bus.Publish(events.Event{
		Type:         events.EventTradeExecuted,
		Symbol:       signal.Symbol,
		OrderID:      execResult.OrderID,
		PositionSize: execResult.Quantity,
		RiskScore:    assessment.RiskScore,
	})
	if a.log != nil {
		a.log.LogTradeExecution(signal.Symbol, string(signal.Side), execResult.OrderID,
			execResult.Quantity, signal.Price, assessment.RiskScore, execResult.ProtectiveWarnings)
	}

	return &types.TradeResult{
		Success:            true,
		OrderID:            execResult.OrderID,
		PositionSize:       execResult.Quantity,
		RiskScore:          assessment.RiskScore,
		ProtectiveWarnings: execResult.ProtectiveWarnings,
	}
}

// AssessTradeRisk exposes a dry-run risk evaluation without executing.
func (a *Agent) AssessTradeRisk(signal types.TradeSignal, currentPrice float64) *types.RiskAssessment {
	return a.risk.AssessTradeRisk(signal, currentPrice)
}

// EmergencyStop halts admission, cancels every non-terminal order best
// effort and liquidates all open positions. It is the only operation
// that bypasses cooldown and cap checks; per-order cancel failures are
// logged individually and never abort the batch.
func (a *Agent) EmergencyStop(ctx context.Context) {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()

	stats := a.exec.Stats()
	failures := a.exec.CancelAll(ctx)
	cancelled := stats.Active - len(failures)

	if err := a.portfolio.CloseAllPositions(); err != nil && a.log != nil {
		a.log.Error("liquidation failed: %v", err)
	}

	a.bus.Publish(events.Event{
		Type:   events.EventEmergencyStop,
		Reason: fmt.Sprintf("%d orders cancelled, %d cancel failures", cancelled, len(failures)),
	})
	if a.log != nil {
		a.log.LogEmergencyStop(cancelled, failures)
	}
}

// Resume reactivates signal admission after an emergency stop.
func (a *Agent) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = true
}

// IsActive reports whether the agent admits signals.
func (a *Agent) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// ResetCircuitBreaker manually returns the risk engine's breaker to
// NORMAL. Privileged, operator-only.
func (a *Agent) ResetCircuitBreaker() {
	a.risk.ResetCircuitBreaker()
	monitoring.SetBreakerActive(false)
	if a.log != nil {
		a.log.Risk("circuit breaker manually reset")
	}
}

// IsCircuitBreakerActive reports the breaker latch.
func (a *Agent) IsCircuitBreakerActive() bool {
	return a.risk.IsCircuitBreakerActive()
}

// TradingStats is the read-only introspection view for operators.
type TradingStats struct {
	Orders execution.Stats
	Risk   risk.StateSnapshot
}

// GetTradingStats returns order and portfolio statistics, recomputed on
// demand.
func (a *Agent) GetTradingStats() TradingStats {
	return TradingStats{
		Orders: a.exec.Stats(),
		Risk:   a.risk.Snapshot(),
	}
}

// GetRiskLimits returns the engine's read-only limits.
func (a *Agent) GetRiskLimits() risk.Limits {
	return a.risk.GetLimits()
}

func (a *Agent) reject(signal types.TradeSignal, category, reason string) *types.TradeResult {
	monitoring.RecordSignal("rejected", category)
	a.bus.Publish(events.Event{Type: events.EventTradeRejected, Symbol: signal.Symbol, Reason: reason})
	if a.log != nil {
		a.log.LogRejection(signal.Symbol, reason)
	}
	return &types.TradeResult{Success: false, Reason: reason}
}

func (a *Agent) symbolLock(symbol string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.symLocks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		a.symLocks[symbol] = lock
	}
	return lock
}

func categoryOf(err error) string {
	if tradeErr, ok := err.(*tradeerrors.TradeError); ok {
		return string(tradeErr.Category)
	}
	return "unknown"
}
