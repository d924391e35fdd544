// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	quotes     *prometheus.CounterVec
	syncs      *prometheus.CounterVec
	importRows *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuotificador",
			Name:      "quotes_total",
			Help:      "Installment quotes computed, by source and rate tier.",
		}, []string{"source", "tier"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuotificador",
			Name:      "bank_syncs_total",
			Help:      "Per-bank external rate reconciliations, by result.",
		}, []string{"bank", "result"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuotificador",
			Name:      "import_rows_total",
			Help:      "Bulk import rows processed, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.quotes, m.syncs, m.importRows)
	return m
}

// Quote counts a computed quote
func (m *Metrics) Quote(source, tier string) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(source, tier).Inc()
}

// BankSync counts one bank's reconciliation
func (m *Metrics) BankSync(bankCode string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.syncs.WithLabelValues(bankCode, result).Inc()
}

// ImportRows counts imported and rejected rows
func (m *Metrics) ImportRows(imported, rejected int) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues("imported").Add(float64(imported))
	m.importRows.WithLabelValues("rejected").Add(float64(rejected))
}
