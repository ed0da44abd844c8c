package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CertificatesExpiring prometheus.Gauge
	ActivationsTotal     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		CertificatesExpiring: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stampgate_certificates_expiring",
			Help: "Number of certificates currently inside the expiry warning window",
		}),
		ActivationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stampgate_certificate_activations_total",
			Help: "Total number of certificate activations",
		}),
	}
}

func (m *Metrics) SetExpiring(count int) {
	m.CertificatesExpiring.Set(float64(count))
}

func (m *Metrics) IncrementActivations() {
	m.ActivationsTotal.Inc()
}
