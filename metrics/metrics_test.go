package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPricingObserver(t *testing.T) {
	m := NewMetrics("test")
	obs := m.NewPricingObserver()

	obs.NonFinite("AAPL240621C00100000", "speed")
	obs.NonFinite("AAPL240621C00100000", "speed")
	obs.IVFailure("AAPL240621C00100000", "bracketed_newton")
	obs.GreeksComputed("american", 3*time.Millisecond)

	if got := testutil.ToFloat64(m.NonFiniteTotal.WithLabelValues("speed")); got != 2 {
		t.Errorf("nonfinite = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.IVFailuresTotal.WithLabelValues("bracketed_newton")); got != 1 {
		t.Errorf("iv failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GreeksTotal.WithLabelValues("american")); got != 1 {
		t.Errorf("greeks total = %v, want 1", got)
	}
}

func TestNilObserverIsSafe(t *testing.T) {
	var obs *PricingObserver
	obs.NonFinite("x", "delta")
	obs.IVFailure("x", "tree_newton")
	obs.GreeksComputed("european", time.Millisecond)

	var m *Metrics
	m.NewPricingObserver().GreeksComputed("european", time.Millisecond)
	m.BindPricing(func() int { return 0 }, func() int64 { return 0 })
}

func TestBindPricing(t *testing.T) {
	m := NewMetrics("test")
	n := 3
	m.BindPricing(func() int { return n }, func() int64 { return 7 })

	count, err := testutil.GatherAndCount(m.Registry(), "pricing_engines_cached", "pricing_clock_changes_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Errorf("metric count = %d, want 2", count)
	}
}
