package telemetry

import "math"

// LevelMeter computes peak and RMS levels in dBFS for a block of mono f32
// samples in [-1, 1]. Supplements the bare threshold check the capture
// engine needs for silence classification (spec.md §4.2 item 3) and feeds
// the "current audio level in dBFS*10" gauge (§4.10).
type LevelMeter struct{}

// DBFS converts a linear amplitude in [0,1] to decibels relative to full
// scale. Zero amplitude maps to a floor of -120 dBFS instead of -Inf so
// downstream consumers (gauges, comparisons) never have to special-case it.
func DBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return -120
	}
	db := 20 * math.Log10(amplitude)
	if db < -120 {
		return -120
	}
	return db
}

// Peak returns the maximum absolute sample value in the block.
func (LevelMeter) Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		a := math.Abs(float64(s))
		if a > peak {
			peak = a
		}
	}
	return peak
}

// RMS returns the root-mean-square amplitude of the block.
func (LevelMeter) RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// IsSilent reports whether the block's peak amplitude is below the given
// linear threshold (e.g. 0.01 for roughly -40 dBFS).
func (m LevelMeter) IsSilent(samples []float32, peakThreshold float64) bool {
	return m.Peak(samples) < peakThreshold
}
