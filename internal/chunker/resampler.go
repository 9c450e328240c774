// Package chunker implements C3 Frame Reader + Chunker/Resampler: reads the
// capture ring buffer, resamples to mono 16 kHz, and emits fixed 512-sample
// frames onto a broadcast bus.
package chunker

import "math"

// Quality selects a resampler preset trading CPU for anti-aliasing quality
// (spec.md §4.3).
type Quality int

const (
	Fast Quality = iota
	Balanced
	HighQuality
)

func (q Quality) String() string {
	switch q {
	case Fast:
		return "fast"
	case Balanced:
		return "balanced"
	case HighQuality:
		return "quality"
	default:
		return "unknown"
	}
}

type preset struct {
	taps   int
	window func(i, n int) float64
	cutoff float64 // fraction of output Nyquist; <1 tightens the anti-alias margin
	cubic  bool    // use cubic (vs linear) interpolation between filtered taps
}

func hammingWindow(i, n int) float64 {
	return 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
}

func blackmanWindow(i, n int) float64 {
	x := 2 * math.Pi * float64(i) / float64(n-1)
	return 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
}

func presetFor(q Quality) preset {
	switch q {
	case Fast:
		return preset{taps: 32, window: hammingWindow, cutoff: 1.0, cubic: false}
	case HighQuality:
		return preset{taps: 128, window: blackmanWindow, cutoff: 1.0, cubic: true}
	default: // Balanced
		return preset{taps: 64, window: hammingWindow, cutoff: 0.95, cubic: true}
	}
}

// Resampler converts mono float32 audio between arbitrary sample rates using
// a sinc+window FIR filter for downsampling and interpolation (linear or
// cubic, depending on preset) for upsampling. Stateful: retains filter
// history across calls so frame boundaries don't introduce clicks.
// Generalizes teacher's PolyphaseResampler (single hardcoded 64-tap Hamming
// preset) into the Fast/Balanced/Quality presets spec.md §4.3 calls for.
type Resampler struct {
	fromRate, toRate int
	ratio            float64
	bypass           bool

	filterLen int
	filter    []float32
	history   []float32
	cubic     bool

	lastSamples [3]float32 // trailing context for cubic upsample interpolation
}

// NewResampler builds a resampler for the given rate conversion and quality
// preset. If fromRate == toRate, Resample becomes a pure passthrough.
func NewResampler(fromRate, toRate int, quality Quality) *Resampler {
	r := &Resampler{fromRate: fromRate, toRate: toRate}
	if fromRate == toRate {
		r.bypass = true
		return r
	}
	r.ratio = float64(toRate) / float64(fromRate)

	p := presetFor(quality)
	r.cubic = p.cubic
	cutoff := 0.5 * p.cutoff
	if r.ratio < 1.0 {
		cutoff = r.ratio * 0.5 * p.cutoff
	}

	r.filterLen = p.taps
	r.filter = make([]float32, p.taps)
	for i := 0; i < p.taps; i++ {
		n := float64(i) - float64(p.taps-1)/2.0
		var val float64
		if n == 0 {
			val = 2.0 * cutoff
		} else {
			val = math.Sin(2*math.Pi*cutoff*n) / (math.Pi * n)
		}
		r.filter[i] = float32(val * p.window(i, p.taps))
	}
	var sum float32
	for _, f := range r.filter {
		sum += f
	}
	if sum != 0 {
		for i := range r.filter {
			r.filter[i] /= sum
		}
	}
	r.history = make([]float32, p.taps)
	return r
}

// Resample converts input (at fromRate) to output (at toRate), retaining
// filter/interpolation history across calls.
func (r *Resampler) Resample(input []float32) []float32 {
	if r.bypass || len(input) == 0 {
		return input
	}
	if r.ratio > 1.0 {
		return r.upsample(input)
	}
	return r.downsample(input)
}

func (r *Resampler) upsample(input []float32) []float32 {
	inputLen := len(input)
	outputLen := int(float64(inputLen) * r.ratio)
	output := make([]float32, outputLen)

	sampleAt := func(idx int) float32 {
		switch {
		case idx < 0:
			return r.lastSamples[2]
		case idx < inputLen:
			return input[idx]
		default:
			return input[inputLen-1]
		}
	}

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / r.ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if r.cubic {
			p0 := sampleAt(srcIdx - 1)
			p1 := sampleAt(srcIdx)
			p2 := sampleAt(srcIdx + 1)
			p3 := sampleAt(srcIdx + 2)
			output[i] = cubicInterpolate(p0, p1, p2, p3, frac)
		} else {
			s1 := sampleAt(srcIdx)
			s2 := sampleAt(srcIdx + 1)
			output[i] = s1 + (s2-s1)*frac
		}
	}

	if inputLen >= 3 {
		copy(r.lastSamples[:], input[inputLen-3:])
	} else if inputLen > 0 {
		r.lastSamples[2] = input[inputLen-1]
	}
	return output
}

func cubicInterpolate(p0, p1, p2, p3, t float32) float32 {
	a0 := p3 - p2 - p0 + p1
	a1 := p0 - p1 - a0
	a2 := p2 - p0
	a3 := p1
	return a0*t*t*t + a1*t*t + a2*t + a3
}

func (r *Resampler) downsample(input []float32) []float32 {
	inputLen := len(input)
	outputLen := int(float64(inputLen) * r.ratio)
	output := make([]float32, outputLen)

	combined := append(append([]float32(nil), r.history...), input...)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / r.ratio
		srcIdx := int(srcPos) + len(r.history)

		var sample float32
		for j := 0; j < r.filterLen; j++ {
			idx := srcIdx - r.filterLen/2 + j
			if idx >= 0 && idx < len(combined) {
				sample += combined[idx] * r.filter[j]
			}
		}
		output[i] = sample
	}

	if inputLen >= r.filterLen {
		copy(r.history, input[inputLen-r.filterLen:])
	} else {
		shift := r.filterLen - inputLen
		copy(r.history, r.history[inputLen:])
		copy(r.history[shift:], input)
	}
	return output
}
