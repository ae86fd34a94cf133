package metrics

import (
	"github.com/bnema/ha-billing/internal/application"
	"github.com/bnema/ha-billing/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "habill"

var _ application.Metrics = (*Recorder)(nil)

// Recorder exports entitlement engine events as Prometheus series.
type Recorder struct {
	activationsTotal   *prometheus.CounterVec
	rateLimitBlocks    prometheus.Counter
	verificationsTotal *prometheus.CounterVec
	planGauge          *prometheus.GaugeVec
}

func NewRecorder(registerer prometheus.Registerer) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		activationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "license",
				Name:      "activations_total",
				Help:      "License key activation attempts by result",
			},
			[]string{"result"},
		),
		rateLimitBlocks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "license",
				Name:      "rate_limit_blocks_total",
				Help:      "Activation attempts refused by the failed-attempt limiter",
			},
		),
		verificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "subscription",
				Name:      "verifications_total",
				Help:      "Subscription verification outcomes by payment method",
			},
			[]string{"method", "outcome"},
		),
		planGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "subscription",
				Name:      "plan",
				Help:      "1 for the plan currently in effect, 0 otherwise",
			},
			[]string{"plan"},
		),
	}

	r.activationsTotal = registerCollector(registerer, r.activationsTotal)
	r.rateLimitBlocks = registerCollector(registerer, r.rateLimitBlocks)
	r.verificationsTotal = registerCollector(registerer, r.verificationsTotal)
	r.planGauge = registerCollector(registerer, r.planGauge)

	return r
}

// registerCollector reuses an identical collector that is already registered.
func registerCollector[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegisteredErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := alreadyRegisteredErr.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

func (r *Recorder) ObserveActivation(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	r.activationsTotal.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveRateLimitBlock() {
	r.rateLimitBlocks.Inc()
}

func (r *Recorder) ObserveVerification(method, outcome string) {
	r.verificationsTotal.WithLabelValues(defaultLabel(method), defaultLabel(outcome)).Inc()
}

func (r *Recorder) SetPlan(plan domain.Plan) {
	for _, known := range []domain.Plan{domain.PlanCommunity, domain.PlanBeta} {
		value := 0.0
		if known == plan {
			value = 1
		}
		r.planGauge.WithLabelValues(string(known)).Set(value)
	}
}

func defaultLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
