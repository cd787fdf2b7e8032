package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts Manager outcomes.
type Metrics struct {
	outcomes *prometheus.CounterVec
	reuse    prometheus.Counter
	revoked  *prometheus.CounterVec
}

// NewMetrics registers the session collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "candidash",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session operations by operation and result.",
		}, []string{"op", "result"}),
		reuse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "candidash",
			Subsystem: "session",
			Name:      "refresh_reuse_detected_total",
			Help:      "Refresh credentials presented again after rotation or revocation.",
		}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "candidash",
			Subsystem: "session",
			Name:      "records_revoked_total",
			Help:      "Refresh records revoked outside rotation, by cause.",
		}, []string{"cause"}),
	}
	if reg != nil {
		reg.MustRegister(m.outcomes, m.reuse, m.revoked)
	}
	return m
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	m.outcomes.WithLabelValues(op, result).Inc()
}

func (m *Metrics) reuseDetected() {
	if m == nil {
		return
	}
	m.reuse.Inc()
}

func (m *Metrics) revokedRecords(cause string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.WithLabelValues(cause).Add(float64(n))
}
