// Package monitoring holds the Prometheus collectors exported by the service.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors updated by the application services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	QuotaDecisions *prometheus.CounterVec
	LoginResults   *prometheus.CounterVec
	SweptEntries   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QuotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journal",
			Name:      "quota_decisions_total",
			Help:      "Quota ledger decisions by operation and result.",
		}, []string{"operation", "result"}),
		LoginResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journal",
			Name:      "login_results_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		SweptEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journal",
			Name:      "swept_entries_total",
			Help:      "Expired entries reclaimed by background sweepers.",
		}, []string{"target"}),
	}
	reg.MustRegister(m.QuotaDecisions, m.LoginResults, m.SweptEntries)
	return m
}

// ObserveQuota counts a quota decision for operation.
func (m *Metrics) ObserveQuota(operation string, admitted bool) {
	if m == nil {
		return
	}
	result := "admitted"
	if !admitted {
		result = "rejected"
	}
	m.QuotaDecisions.WithLabelValues(operation, result).Inc()
}

// ObserveLogin counts a login attempt outcome.
func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.LoginResults.WithLabelValues(result).Inc()
}

// ObserveSweep adds n reclaimed entries for target.
func (m *Metrics) ObserveSweep(target string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptEntries.WithLabelValues(target).Add(float64(n))
}
