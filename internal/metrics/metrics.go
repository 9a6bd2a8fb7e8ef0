// Package metrics holds the Prometheus instruments of the settlement engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vereinsledger"

// Metrics groups the engine's counters.
type Metrics struct {
	importRows      *prometheus.CounterVec
	matches         *prometheus.CounterVec
	vouchers        *prometheus.CounterVec
	rejectedAllocs  prometheus.Counter
	yearClosings    prometheus.Counter
	donationsPosted prometheus.Counter
}

// New registers the instruments with reg. Passing prometheus.DefaultRegisterer
// exposes them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		importRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statement_rows_total",
			Help:      "Imported bank statement rows by outcome.",
		}, []string{"outcome"}),
		matches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bank_matches_total",
			Help:      "Bank transactions matched to a member, by matching rule.",
		}, []string{"rule"}),
		vouchers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouchers_posted_total",
			Help:      "Cash book entries posted, by amount column.",
		}, []string{"column"}),
		rejectedAllocs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_rejected_total",
			Help:      "Allocations rejected because they would exceed a claim or payment.",
		}),
		yearClosings: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "year_closings_total",
			Help:      "Cash book years closed.",
		}),
		donationsPosted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "donation_protocols_total",
			Help:      "Donation protocols recorded.",
		}),
	}
}

// ImportRow counts one statement row: success, skipped, failed or unmatched.
func (m *Metrics) ImportRow(outcome string) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues(outcome).Inc()
}

// Matched counts a bank transaction settled through the given rule.
func (m *Metrics) Matched(rule string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(rule).Inc()
}

// VoucherPosted counts a cash book entry in the given column.
func (m *Metrics) VoucherPosted(column string) {
	if m == nil {
		return
	}
	m.vouchers.WithLabelValues(column).Inc()
}

func (m *Metrics) AllocationRejected() {
	if m == nil {
		return
	}
	m.rejectedAllocs.Inc()
}

func (m *Metrics) YearClosed() {
	if m == nil {
		return
	}
	m.yearClosings.Inc()
}

func (m *Metrics) DonationRecorded() {
	if m == nil {
		return
	}
	m.donationsPosted.Inc()
}
