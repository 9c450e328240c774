package telemetry

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Percentiles summarizes a histogram snapshot. Reported by the TUI/dashboard
// collaborator (out of scope here) but computed inside the core so every
// reader sees the same numbers.
type Percentiles struct {
	P50, P95, P99 float64
	Count         int
}

// Summarize computes p50/p95/p99 over a histogram's current samples using
// gonum's quantile estimator (inverse empirical CDF, no interpolation).
func (h *Histogram) Summarize() Percentiles {
	samples := h.Snapshot()
	if len(samples) == 0 {
		return Percentiles{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return Percentiles{
		P50:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
		Count: len(sorted),
	}
}
