package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ducminhle1904/crypto-signal-trader/pkg/types"
)

// CorrelationSource supplies pairwise symbol correlations. It is an
// external collaborator; a nil source or a lookup error is treated as
// zero correlated exposure.
type CorrelationSource interface {
	Correlation(a, b string) (float64, error)
}

// negligibleKelly is the fraction below which a Kelly result is treated
// as degenerate and sizing falls through to the fallback path.
const negligibleKelly = 0.001

// Engine is the sole authority for whether a trade may happen and with
// how much capital. All state is guarded by a single mutex; assessments
// are quick and never perform network calls, so the global lock is the
// simplest correct serialization (per-symbol exposure, daily counters
// and the breaker latch are shared across symbols).
type Engine struct {
	mu     sync.Mutex
	limits Limits

	portfolioValue    float64
	initialValue      float64
	maxPortfolioValue float64 // high-water mark, non-decreasing outside resets
	dailyTrades       int
	dailyPnL          float64
	startOfDay        time.Time
	breakerTripped    bool

	positions map[string]types.Position

	// Running win/loss averages (quote currency) feeding the Kelly
	// payoff ratio. Until real outcomes accumulate, the signal's
	// expected return and the configured stop distance seed the ratio.
	winSum    float64
	winCount  int
	lossSum   float64
	lossCount int

	corr   CorrelationSource
	onTrip func(reason string)
	now    func() time.Time
}

// NewEngine creates a risk engine with the given limits and starting
// capital.
func NewEngine(limits Limits, initialValue float64) *Engine {
	return &Engine{
		limits:            limits.normalize(),
		portfolioValue:    initialValue,
		initialValue:      initialValue,
		maxPortfolioValue: initialValue,
		startOfDay:        time.Now(),
		positions:         make(map[string]types.Position),
		now:               time.Now,
	}
}

// SetCorrelationSource attaches the external correlation collaborator.
func (e *Engine) SetCorrelationSource(src CorrelationSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.corr = src
}

// OnBreakerTrip registers a callback invoked whenever the circuit
// breaker latches. The callback must not block.
func (e *Engine) OnBreakerTrip(fn func(reason string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrip = fn
}

// AssessTradeRisk evaluates a signal against the portfolio state and,
// when approved, returns a sized assessment with an adjusted signal
// carrying risk-computed protective levels. Every rejection is a value;
// this method never returns an error.
func (e *Engine) AssessTradeRisk(signal types.TradeSignal, currentPrice float64) *types.RiskAssessment {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !isFinite(currentPrice) || currentPrice <= 0 {
		return rejected(fmt.Sprintf("invalid current price %v", currentPrice), 100)
	}

	e.rollOverDayLocked()

	if e.breakerTripped {
		return rejected("circuit breaker tripped: trading halted until manual reset", 100)
	}

	// Atomic check-and-increment: the slot is taken up front and given
	// back on every rejection below.
	e.dailyTrades++
	if e.dailyTrades > e.limits.MaxTradesPerDay {
		e.dailyTrades--
		return rejected(fmt.Sprintf("daily trade limit reached (%d)", e.limits.MaxTradesPerDay), e.scoreLocked(0, signal.Confidence))
	}

	if dd := e.dailyDrawdownLocked(); dd >= e.limits.MaxDailyDrawdown {
		e.dailyTrades--
		e.tripBreakerLocked(fmt.Sprintf("daily drawdown %.2f%% breached limit %.2f%%", dd*100, e.limits.MaxDailyDrawdown*100))
		return rejected(fmt.Sprintf("daily drawdown %.2f%% exceeds limit: circuit breaker tripped", dd*100), 100)
	}

	if dd := e.totalDrawdownLocked(); dd >= e.limits.MaxTotalDrawdown {
		e.dailyTrades--
		e.tripBreakerLocked(fmt.Sprintf("total drawdown %.2f%% breached limit %.2f%%", dd*100, e.limits.MaxTotalDrawdown*100))
		return rejected(fmt.Sprintf("total drawdown %.2f%% exceeds limit: circuit breaker tripped", dd*100), 100)
	}

	if signal.Confidence < e.limits.MinConfidence {
		e.dailyTrades--
		return rejected(fmt.Sprintf("confidence %.2f below minimum %.2f", signal.Confidence, e.limits.MinConfidence), e.scoreLocked(0, signal.Confidence))
	}

	quantity, ok := e.kellySizeLocked(signal, currentPrice)
	if !ok {
		quantity = e.fallbackSizeLocked(signal, currentPrice)
	}

	quantity, reason := e.concentrationLocked(signal.Symbol, quantity, currentPrice)
	if reason != "" {
		e.dailyTrades--
		return rejected(reason, e.scoreLocked(quantity*currentPrice, signal.Confidence))
	}

	if reason := e.correlationLocked(signal.Symbol); reason != "" {
		e.dailyTrades--
		return rejected(reason, e.scoreLocked(quantity*currentPrice, signal.Confidence))
	}

	adjusted := e.adjustSignalLocked(signal, currentPrice)

	return &types.RiskAssessment{
		Approved:       true,
		PositionSize:   quantity,
		RiskScore:      e.scoreLocked(quantity*currentPrice, signal.Confidence),
		AdjustedSignal: &adjusted,
	}
}

// kellySizeLocked computes the Kelly-sized unit quantity. ok is false
// whenever an input or intermediate is degenerate, routing sizing to
// the fallback path instead of failing the trade.
func (e *Engine) kellySizeLocked(signal types.TradeSignal, currentPrice float64) (float64, bool) {
	avgWin := signal.ExpectedReturn
	avgLoss := e.limits.StopLossPct
	if e.winCount > 0 && e.lossCount > 0 {
		avgWin = e.winSum / float64(e.winCount)
		avgLoss = math.Abs(e.lossSum / float64(e.lossCount))
	}

	p := signal.WinProbability
	if !isFinite(avgWin) || avgWin <= 0 || !isFinite(avgLoss) || avgLoss <= 0 || !isFinite(p) || p <= 0 || p >= 1 {
		return 0, false
	}

	b := avgWin / avgLoss
	f := (b*p - (1 - p)) / b
	if !isFinite(f) {
		return 0, false
	}
	if f > e.limits.KellyFraction {
		f = e.limits.KellyFraction
	}
	if f < negligibleKelly {
		return 0, false
	}

	// Confidence enters twice: in the Kelly probability and again here
	// as a super-linear scalar. The bias is always toward smaller sizes.
	value := e.portfolioValue * f * math.Pow(signal.Confidence, 1.5)
	if maxValue := e.portfolioValue * e.limits.MaxPositionSize; value > maxValue {
		value = maxValue
	}

	quantity := value / currentPrice
	if !isFinite(quantity) || quantity <= 0 {
		return 0, false
	}
	return quantity, true
}

// fallbackSizeLocked sizes a trade when Kelly inputs are unusable:
// either a fixed base trade value scaled by confidence, or 2% of the
// portfolio scaled super-linearly by confidence.
func (e *Engine) fallbackSizeLocked(signal types.TradeSignal, currentPrice float64) float64 {
	var value float64
	if e.limits.BaseTradeSize > 0 {
		value = e.limits.BaseTradeSize * signal.Confidence
	} else {
		value = e.portfolioValue * 0.02 * math.Pow(signal.Confidence, 1.5)
	}
	if maxValue := e.portfolioValue * e.limits.MaxPositionSize; value > maxValue {
		value = maxValue
	}

	quantity := value / currentPrice
	if !isFinite(quantity) || quantity < 0 {
		quantity = 0
	}
	if floor := minUnitQty(currentPrice); quantity > 0 && quantity < floor {
		quantity = floor
	}
	return quantity
}

// minUnitQty is the smallest tradable unit size: high-unit-price assets
// get a proportionally smaller minimum.
func minUnitQty(price float64) float64 {
	switch {
	case price >= 10000:
		return 0.0001
	case price >= 100:
		return 0.001
	default:
		return 0.1
	}
}

// concentrationLocked shrinks the requested quantity to fit under the
// per-symbol exposure cap, or rejects when the shrink would remove more
// than the configured fraction of the request.
func (e *Engine) concentrationLocked(symbol string, quantity, currentPrice float64) (float64, string) {
	maxExposure := e.portfolioValue * e.limits.MaxPositionSize
	existing := 0.0
	if pos, ok := e.positions[symbol]; ok {
		existing = math.Abs(pos.Size) * currentPrice
	}

	newValue := quantity * currentPrice
	if existing+newValue <= maxExposure {
		return quantity, ""
	}

	allowed := maxExposure - existing
	if allowed < (1-e.limits.ConcentrationShrinkLimit)*newValue {
		return quantity, fmt.Sprintf("concentration limit: %s exposure %.2f + %.2f exceeds cap %.2f", symbol, existing, newValue, maxExposure)
	}
	return allowed / currentPrice, ""
}

// correlationLocked rejects when the correlated exposure around the
// target symbol exceeds twice the per-symbol cap. Lookup failures are
// downgraded to zero correlation.
func (e *Engine) correlationLocked(symbol string) string {
	if e.corr == nil {
		return ""
	}

	exposure := 0.0
	for sym, pos := range e.positions {
		if sym == symbol {
			continue
		}
		c, err := e.corr.Correlation(symbol, sym)
		if err != nil || !isFinite(c) {
			continue
		}
		if math.Abs(c) < e.limits.MaxCorrelation {
			continue
		}
		exposure += math.Abs(pos.Size*pos.EntryPrice) * math.Abs(c)
	}

	limit := 2 * e.portfolioValue * e.limits.MaxPositionSize
	if exposure > limit {
		return fmt.Sprintf("correlated exposure %.2f exceeds limit %.2f", exposure, limit)
	}
	return ""
}

// scoreLocked computes the informational 0-100 risk score. It never
// gates a trade on its own; non-finite intermediates collapse to a
// neutral 50.
func (e *Engine) scoreLocked(positionValue, confidence float64) float64 {
	const baseVolatility = 10.0

	posRatio := 0.0
	if e.portfolioValue > 0 {
		posRatio = positionValue / e.portfolioValue
	}
	drawdown := math.Max(e.dailyDrawdownLocked(), e.totalDrawdownLocked())

	score := posRatio*100*0.35 + (1-confidence)*100*0.25 + baseVolatility + drawdown*100*0.50
	if !isFinite(score) {
		return 50
	}
	return math.Min(100, math.Max(0, score))
}

// adjustSignalLocked copies the signal and fills protective levels the
// caller left unset: a symmetric stop-loss offset and a take-profit
// offset scaled by confidence.
func (e *Engine) adjustSignalLocked(signal types.TradeSignal, entry float64) types.TradeSignal {
	adjusted := signal

	direction := 1.0
	if signal.Side == types.SideSell {
		direction = -1.0
	}
	if adjusted.StopLoss <= 0 {
		adjusted.StopLoss = entry * (1 - direction*e.limits.StopLossPct)
	}
	if adjusted.TakeProfit <= 0 {
		adjusted.TakeProfit = entry * (1 + direction*e.limits.TakeProfitPct*signal.Confidence)
	}
	return adjusted
}

// rollOverDayLocked resets the daily counters when the local calendar
// day has advanced past startOfDay.
func (e *Engine) rollOverDayLocked() {
	now := e.now()
	y1, m1, d1 := e.startOfDay.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return
	}
	e.dailyTrades = 0
	e.dailyPnL = 0
	e.startOfDay = now
}

func (e *Engine) dailyDrawdownLocked() float64 {
	if e.maxPortfolioValue <= 0 {
		return 0
	}
	dd := (e.maxPortfolioValue - e.portfolioValue) / e.maxPortfolioValue
	if !isFinite(dd) || dd < 0 {
		return 0
	}
	return dd
}

func (e *Engine) totalDrawdownLocked() float64 {
	if e.initialValue <= 0 {
		return 0
	}
	dd := (e.initialValue - e.portfolioValue) / e.initialValue
	if !isFinite(dd) || dd < 0 {
		return 0
	}
	return dd
}

func (e *Engine) tripBreakerLocked(reason string) {
	if e.breakerTripped {
		return
	}
	e.breakerTripped = true
	if e.onTrip != nil {
		e.onTrip(reason)
	}
}

// UpdatePortfolioValue applies a fresh portfolio valuation and advances
// the high-water mark.
func (e *Engine) UpdatePortfolioValue(value float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !isFinite(value) || value < 0 {
		return
	}
	e.portfolioValue = value
	if value > e.maxPortfolioValue {
		e.maxPortfolioValue = value
	}
}

// RecordTradeOutcome feeds a realized trade result (quote currency)
// into the daily PnL and the running win/loss averages used by Kelly.
func (e *Engine) RecordTradeOutcome(pnl float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !isFinite(pnl) {
		return
	}
	e.rollOverDayLocked()
	e.dailyPnL += pnl
	if pnl > 0 {
		e.winSum += pnl
		e.winCount++
	} else if pnl < 0 {
		e.lossSum += pnl
		e.lossCount++
	}
}

// ApplyFill accumulates an executed trade into the per-symbol exposure
// used by the concentration and correlation checks. Buys add, sells
// reduce; a flat position removes the entry.
func (e *Engine) ApplyFill(symbol string, quantity, price float64, side types.Side) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !isFinite(quantity) || quantity <= 0 || !isFinite(price) || price <= 0 {
		return
	}

	signed := quantity
	if side == types.SideSell {
		signed = -quantity
	}

	pos := e.positions[symbol]
	newSize := pos.Size + signed
	if newSize == 0 {
		delete(e.positions, symbol)
		return
	}
	if signed > 0 && newSize > 0 {
		totalCost := pos.Size*pos.EntryPrice + signed*price
		pos.EntryPrice = totalCost / newSize
	} else if pos.Size == 0 {
		pos.EntryPrice = price
	}
	pos.Symbol = symbol
	pos.Size = newSize
	pos.Side = side
	e.positions[symbol] = pos
}

// SetPosition records the current open position for a symbol. A zero
// size removes the entry.
func (e *Engine) SetPosition(symbol string, size, entryPrice float64, side types.Side) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if size == 0 {
		delete(e.positions, symbol)
		return
	}
	e.positions[symbol] = types.Position{
		Symbol:     symbol,
		Size:       size,
		EntryPrice: entryPrice,
		Side:       side,
	}
}

// ResetCircuitBreaker returns the breaker to NORMAL. Manual-only and
// idempotent.
func (e *Engine) ResetCircuitBreaker() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breakerTripped = false
}

// IsCircuitBreakerActive reports whether the breaker is latched.
func (e *Engine) IsCircuitBreakerActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breakerTripped
}

// BreakerState returns the breaker latch as an enum.
func (e *Engine) BreakerState() types.BreakerState {
	if e.IsCircuitBreakerActive() {
		return types.BreakerTripped
	}
	return types.BreakerNormal
}

// GetLimits returns the engine's read-only limit configuration.
func (e *Engine) GetLimits() Limits {
	return e.limits
}

// StateSnapshot is a read-only view of the engine's portfolio state.
type StateSnapshot struct {
	PortfolioValue    float64
	InitialValue      float64
	MaxPortfolioValue float64
	DailyTrades       int
	DailyPnL          float64
	Breaker           types.BreakerState
	OpenPositions     int
}

// Snapshot returns the current portfolio state for introspection.
func (e *Engine) Snapshot() StateSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	breaker := types.BreakerNormal
	if e.breakerTripped {
		breaker = types.BreakerTripped
	}
	return StateSnapshot{
		PortfolioValue:    e.portfolioValue,
		InitialValue:      e.initialValue,
		MaxPortfolioValue: e.maxPortfolioValue,
		DailyTrades:       e.dailyTrades,
		DailyPnL:          e.dailyPnL,
		Breaker:           breaker,
		OpenPositions:     len(e.positions),
	}
}

func rejected(reason string, score float64) *types.RiskAssessment {
	return &types.RiskAssessment{Approved: false, Reason: reason, RiskScore: score}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
