package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ImportRow("success")
	m.ImportRow("success")
	m.ImportRow("skipped")
	m.Matched("REFERENCE")
	m.VoucherPosted("BANK_IN")
	m.AllocationRejected()
	m.YearClosed()
	m.DonationRecorded()

	if got := testutil.ToFloat64(m.importRows.WithLabelValues("success")); got != 2 {
		t.Errorf("success rows = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.importRows.WithLabelValues("skipped")); got != 1 {
		t.Errorf("skipped rows = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rejectedAllocs); got != 1 {
		t.Errorf("rejected allocations = %v, want 1", got)
	}

	count, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	// Two import outcomes plus one series for every other instrument.
	if count != 7 {
		t.Errorf("series = %d, want 7", count)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ImportRow("failed")
	m.Matched("IBAN")
	m.VoucherPosted("CASH_OUT")
	m.AllocationRejected()
	m.YearClosed()
	m.DonationRecorded()
}
