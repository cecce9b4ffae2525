package association

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/caio-sobreiro/dicomul/pdu"
)

type associationMetrics struct {
	open       prometheus.Gauge
	total      *prometheus.CounterVec
	pending    prometheus.Gauge
	pdus       *prometheus.CounterVec
	durations  prometheus.Observer
	rspTimeout prometheus.Counter
}

var (
	associationMetricsOnce sync.Once
	associationMetricsInst *associationMetrics
)

func globalAssociationMetrics() *associationMetrics {
	associationMetricsOnce.Do(func() {
		associationMetricsInst = newAssociationMetrics()
	})
	return associationMetricsInst
}

func newAssociationMetrics() *associationMetrics {
	return &associationMetrics{
		open: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "dicomul",
			Subsystem: "association",
			Name:      "open",
			Help:      "Associations whose reader loop is running",
		}),
		total: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dicomul",
			Subsystem: "association",
			Name:      "closed_total",
			Help:      "Closed associations, labeled by role and outcome",
		}, []string{"role", "outcome"}),
		pending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "dicomul",
			Subsystem: "association",
			Name:      "pending_operations",
			Help:      "Outgoing DIMSE requests awaiting their final response",
		}),
		pdus: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dicomul",
			Subsystem: "association",
			Name:      "pdus_total",
			Help:      "PDUs exchanged, labeled by direction and type",
		}, []string{"direction", "type"}),
		durations: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dicomul",
			Subsystem: "association",
			Name:      "duration_seconds",
			Help:      "Lifetime of associations from transport open to close",
			Buckets:   prometheus.DefBuckets,
		}),
		rspTimeout: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "dicomul",
			Subsystem: "association",
			Name:      "response_timeouts_total",
			Help:      "DIMSE requests failed by their response timeout",
		}),
	}
}

func (m *associationMetrics) opened() {
	if m == nil {
		return
	}
	m.open.Inc()
}

func (m *associationMetrics) closed(isInitiator bool, cause error, started time.Time) {
	if m == nil {
		return
	}
	role := "acceptor"
	if isInitiator {
		role = "initiator"
	}
	m.open.Dec()
	m.total.WithLabelValues(role, outcome(cause)).Inc()
	m.durations.Observe(time.Since(started).Seconds())
}

func (m *associationMetrics) pdu(direction string, p pdu.PDU) {
	if m == nil {
		return
	}
	m.pdus.WithLabelValues(direction, pdu.Name(p.Type())).Inc()
}

func (m *associationMetrics) pendingDelta(delta int) {
	if m == nil {
		return
	}
	m.pending.Add(float64(delta))
}

func (m *associationMetrics) responseTimeout() {
	if m == nil {
		return
	}
	m.rspTimeout.Inc()
}
