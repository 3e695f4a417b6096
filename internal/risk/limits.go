package risk

// hardTotalDrawdownCeiling is the absolute ceiling on configured total
// drawdown. No configuration may loosen it.
const hardTotalDrawdownCeiling = 0.20

// Limits is the read-only risk configuration. Values are fractions
// unless noted.
type Limits struct {
	MaxPositionSize  float64 // max position value as fraction of portfolio
	MaxDailyDrawdown float64
	MaxTotalDrawdown float64 // clamped to the hard 20% ceiling
	MaxCorrelation   float64 // |corr| at or above this counts as correlated
	MaxLeverage      float64
	MaxTradesPerDay  int
	KellyFraction    float64 // cap on the raw Kelly output
	MinConfidence    float64 // floor checked inside the assessment

	// BaseTradeSize, when positive, is the fixed fallback trade value in
	// quote currency, scaled by confidence. Zero selects the 2%-of-
	// portfolio fallback rule instead.
	BaseTradeSize float64

	StopLossPct   float64 // symmetric stop-loss offset from entry
	TakeProfitPct float64 // take-profit offset, scaled by confidence

	// ConcentrationShrinkLimit is the largest fraction of a requested
	// position the concentration check may shave off before rejecting
	// outright. Heuristic with no documented derivation, so it stays
	// configurable.
	ConcentrationShrinkLimit float64
}

// DefaultLimits returns conservative production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:          0.10,
		MaxDailyDrawdown:         0.05,
		MaxTotalDrawdown:         0.20,
		MaxCorrelation:           0.70,
		MaxLeverage:              3.0,
		MaxTradesPerDay:          50,
		KellyFraction:            0.25,
		MinConfidence:            0.60,
		StopLossPct:              0.02,
		TakeProfitPct:            0.05,
		ConcentrationShrinkLimit: 0.50,
	}
}

// normalize clamps limits to their hard ceilings and fills zero-valued
// heuristics with defaults.
func (l Limits) normalize() Limits {
	if l.MaxTotalDrawdown <= 0 || l.MaxTotalDrawdown > hardTotalDrawdownCeiling {
		l.MaxTotalDrawdown = hardTotalDrawdownCeiling
	}
	if l.ConcentrationShrinkLimit <= 0 || l.ConcentrationShrinkLimit >= 1 {
		l.ConcentrationShrinkLimit = 0.50
	}
	if l.StopLossPct <= 0 {
		l.StopLossPct = 0.02
	}
	if l.TakeProfitPct <= 0 {
		l.TakeProfitPct = 0.05
	}
	return l
}
