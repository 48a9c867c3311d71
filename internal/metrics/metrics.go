// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the calorie log. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MealParses        *prometheus.CounterVec
	ParserFallbacks   *prometheus.CounterVec
	GatewayDuration   prometheus.Histogram
	MealsStored       *prometheus.CounterVec
	Rollovers         prometheus.Counter
	PersistenceErrors *prometheus.CounterVec
	ActiveLedgers     prometheus.Gauge
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		MealParses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calorielog_meal_parses_total",
				Help: "Meal descriptions parsed, by resulting source",
			},
			[]string{"source"},
		),
		ParserFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calorielog_parser_fallbacks_total",
				Help: "Parses that fell back to the local estimator, by reason",
			},
			[]string{"reason"},
		),
		GatewayDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "calorielog_gateway_duration_seconds",
				Help:    "Duration of completion calls to the LLM gateway",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
		),
		MealsStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calorielog_meals_stored_total",
				Help: "Meals appended to a daily ledger, by source",
			},
			[]string{"source"},
		),
		Rollovers: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "calorielog_ledger_rollovers_total",
				Help: "Ledgers that discarded a previous day's meals",
			},
		),
		PersistenceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calorielog_persistence_errors_total",
				Help: "Failed ledger storage operations, by operation",
			},
			[]string{"op"},
		),
		ActiveLedgers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "calorielog_active_ledgers",
				Help: "Ledgers currently held in memory",
			},
		),
	}

	m.registry.MustRegister(
		m.MealParses,
		m.ParserFallbacks,
		m.GatewayDuration,
		m.MealsStored,
		m.Rollovers,
		m.PersistenceErrors,
		m.ActiveLedgers,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveParse(source string) {
	if m == nil {
		return
	}
	m.MealParses.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.ParserFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveGatewayCall(seconds float64) {
	if m == nil {
		return
	}
	m.GatewayDuration.Observe(seconds)
}

func (m *Metrics) ObserveStored(source string) {
	if m == nil {
		return
	}
	m.MealsStored.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveRollover() {
	if m == nil {
		return
	}
	m.Rollovers.Inc()
}

func (m *Metrics) ObservePersistenceError(op string) {
	if m == nil {
		return
	}
	m.PersistenceErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) SetActiveLedgers(n int) {
	if m == nil {
		return
	}
	m.ActiveLedgers.Set(float64(n))
}
