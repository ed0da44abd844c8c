package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ReferencesIssued prometheus.Counter
	DuplicateHits    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ReferencesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stampgate_references_issued_total",
			Help: "Total number of IRNs issued",
		}),
		DuplicateHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stampgate_reference_duplicate_hits_total",
			Help: "Total number of reference requests answered from the duplicate index",
		}),
	}
}

func (m *Metrics) IncrementIssued() {
	m.ReferencesIssued.Inc()
}

func (m *Metrics) IncrementDuplicateHits() {
	m.DuplicateHits.Inc()
}
