package sink

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

// Metric names exposed on /metrics
const (
	MetricValue         = "quasar_teradata_metric"
	MetricServiceCheck  = "quasar_teradata_service_check"
	MetricCyclesTotal   = "quasar_teradata_cycles_total"
	MetricCycleDuration = "quasar_teradata_cycle_duration_seconds"
	MetricQueryErrors   = "quasar_teradata_query_errors_total"
)

// Cycle results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// PrometheusSink exposes the last value of every Teradata metric and the
// health of each cycle. All operations are thread-safe.
type PrometheusSink struct {
	values        *prometheus.GaugeVec
	serviceChecks *prometheus.GaugeVec
	cycles        *prometheus.CounterVec
	duration      prometheus.Histogram
	queryErrors   prometheus.Counter
}

// NewPrometheusSink creates the collectors. They are not registered; call
// Register to expose them.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		values: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricValue,
				Help: "Last value reported by a Teradata query column",
			},
			[]string{"name", "tags"},
		),
		serviceChecks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricServiceCheck,
				Help: "Last service check status (0 OK, 1 WARNING, 2 CRITICAL, 3 UNKNOWN)",
			},
			[]string{"check"},
		),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCyclesTotal,
				Help: "Total number of check cycles by result",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricCycleDuration,
				Help:    "Histogram of check cycle duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
		),
		queryErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricQueryErrors,
				Help: "Total number of query errors across all cycles",
			},
		),
	}
}

// Register registers all collectors with the given registry
func (p *PrometheusSink) Register(reg prometheus.Registerer) error {
	for _, c := range p.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors
func (p *PrometheusSink) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.values,
		p.serviceChecks,
		p.cycles,
		p.duration,
		p.queryErrors,
	}
}

// SubmitMetric stores the latest value of m
func (p *PrometheusSink) SubmitMetric(m types.Metric) {
	p.values.WithLabelValues(m.Name, strings.Join(m.Tags, ",")).Set(m.Value)
}

// SubmitServiceCheck stores the status of sc
func (p *PrometheusSink) SubmitServiceCheck(sc types.ServiceCheck) {
	p.serviceChecks.WithLabelValues(sc.Name).Set(float64(sc.Status))
}

// ObserveCycle records the outcome of one cycle
func (p *PrometheusSink) ObserveCycle(seconds float64, queryErrors int, failed bool) {
	result := ResultSuccess
	if failed {
		result = ResultFailure
	}
	p.cycles.WithLabelValues(result).Inc()
	p.duration.Observe(seconds)
	if queryErrors > 0 {
		p.queryErrors.Add(float64(queryErrors))
	}
}
