package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AttemptsTotal *prometheus.CounterVec
	Enqueued      prometheus.Counter
	DeadLettered  prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stampgate_transmission_attempts_total",
			Help: "Total number of finished transmission attempts by outcome",
		}, []string{"outcome"}),
		Enqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stampgate_transmissions_enqueued_total",
			Help: "Total number of records accepted into the transmission queue",
		}),
		DeadLettered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stampgate_transmissions_dead_lettered",
			Help: "Number of records currently dead-lettered",
		}),
	}
}

func (m *Metrics) ObserveAttempt(outcome string) {
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementEnqueued() {
	m.Enqueued.Inc()
}

func (m *Metrics) SetDeadLettered(n int64) {
	m.DeadLettered.Set(float64(n))
}
