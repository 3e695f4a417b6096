package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Signals processed by the admission gate, by outcome",
		},
		[]string{"result", "reason"},
	)

	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Trades executed",
		},
		[]string{"symbol", "side"},
	)

	positionValue = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trader_position_value",
			Help:    "Distribution of approved position values (quote currency)",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
		[]string{"symbol"},
	)

	breakerActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_circuit_breaker_active",
			Help: "1 while the circuit breaker is tripped",
		},
	)

	riskScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_risk_score",
			Help: "Risk score of the most recent assessment",
		},
		[]string{"symbol"},
	)

	gatewayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_gateway_errors_total",
			Help: "Exchange gateway errors by category",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(positionValue)
	prometheus.MustRegister(breakerActive)
	prometheus.MustRegister(riskScore)
	prometheus.MustRegister(gatewayErrors)
}

// Handler returns the Prometheus metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSignal records an admission-gate outcome. reason should be a
// low-cardinality category, not the full human-readable message.
func RecordSignal(result, reason string) {
	signalsTotal.WithLabelValues(result, reason).Inc()
}

// RecordTrade records an executed trade.
func RecordTrade(symbol, side string, value float64) {
	tradesTotal.WithLabelValues(symbol, side).Inc()
	positionValue.WithLabelValues(symbol).Observe(value)
}

// SetBreakerActive updates the circuit breaker gauge.
func SetBreakerActive(active bool) {
	if active {
		breakerActive.Set(1)
	} else {
		breakerActive.Set(0)
	}
}

// UpdateRiskScore updates the last-assessment risk score gauge.
func UpdateRiskScore(symbol string, score float64) {
	riskScore.WithLabelValues(symbol).Set(score)
}

// RecordGatewayError records an exchange gateway failure.
func RecordGatewayError(category string) {
	gatewayErrors.WithLabelValues(category).Inc()
}
