// Package telemetry provides the abstract metrics sink shared by every
// pipeline stage. It owns no singletons: a Sink is constructed once by the
// supervisor and passed down to whatever component needs it.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// PipelineStage identifies a stage for FPS and activity tracking.
type PipelineStage int

const (
	StageCapture PipelineStage = iota
	StageChunker
	StageVAD
	StageSTT
	StageInjection
)

func (s PipelineStage) String() string {
	switch s {
	case StageCapture:
		return "capture"
	case StageChunker:
		return "chunker"
	case StageVAD:
		return "vad"
	case StageSTT:
		return "stt"
	case StageInjection:
		return "injection"
	default:
		return "unknown"
	}
}

// Counter is a monotonically increasing atomic counter.
type Counter struct {
	v atomic.Uint64
}

func (c *Counter) Add(delta uint64) { c.v.Add(delta) }
func (c *Counter) Inc()             { c.v.Add(1) }
func (c *Counter) Load() uint64     { return c.v.Load() }

// Gauge is an atomic last-value gauge, stored as fixed-point milli-units so
// it can use atomic int64 instead of a mutex-guarded float64.
type Gauge struct {
	v atomic.Int64
}

func (g *Gauge) Set(value float64)  { g.v.Store(int64(value * 1000)) }
func (g *Gauge) Load() float64      { return float64(g.v.Load()) / 1000 }
func (g *Gauge) SetInt(value int64) { g.v.Store(value) }
func (g *Gauge) LoadInt() int64     { return g.v.Load() }

// Histogram accumulates latency samples and exposes percentile summaries.
// Bucketing and percentile math live in percentile.go (gonum-backed).
type Histogram struct {
	mu      sync.Mutex
	samples []float64
	cap     int
}

// NewHistogram creates a histogram that retains at most capSamples recent
// observations (ring-buffer trim), bounding memory on a long-running sink.
func NewHistogram(capSamples int) *Histogram {
	if capSamples <= 0 {
		capSamples = 4096
	}
	return &Histogram{cap: capSamples}
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, v)
	if len(h.samples) > h.cap {
		h.samples = h.samples[len(h.samples)-h.cap:]
	}
}

// Snapshot returns a copy of the current samples for percentile computation.
func (h *Histogram) Snapshot() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.samples))
	copy(out, h.samples)
	return out
}

// StageMetrics groups the per-stage counters spec.md §4.10 names.
type StageMetrics struct {
	FramesProcessed Counter
	FPS             Gauge
	BufferFill      Gauge
	LastActiveAt    atomic.Int64 // unix nanos
}

func (m *StageMetrics) MarkActive() {
	m.FramesProcessed.Inc()
	m.LastActiveAt.Store(time.Now().UnixNano())
}

// Sink aggregates counters, gauges, and histograms across every component.
// All reads use Load(Relaxed)-equivalent atomics: this is metrics, not
// synchronization state, so readers never block writers.
type Sink struct {
	Stages map[PipelineStage]*StageMetrics

	AudioLevelDBFSx10 Gauge // current level in dBFS * 10 (integer-friendly)
	FramesDropped     Counter
	Disconnections    Counter
	Reconnections     Counter

	EndToEndLatencyMs    *Histogram
	VadDetectionLatency  *Histogram
	VadToSttHandoffMs    *Histogram
	SttLoadDurationMs    *Histogram
	SttInitDurationMs    *Histogram
	SttUnloadDurationMs  *Histogram
	InjectionLatencyMs   *Histogram

	SttFailoverCount Counter
	SttGCCount       Counter

	InjectionAttempts  map[string]*Counter
	InjectionSuccesses map[string]*Counter
	InjectionFailures  map[string]*Counter

	mu sync.Mutex
}

// NewSink constructs a fully wired telemetry sink. Call once per process and
// pass the pointer down through every component constructor.
func NewSink() *Sink {
	s := &Sink{
		Stages:              make(map[PipelineStage]*StageMetrics),
		EndToEndLatencyMs:   NewHistogram(2048),
		VadDetectionLatency: NewHistogram(2048),
		VadToSttHandoffMs:   NewHistogram(2048),
		SttLoadDurationMs:   NewHistogram(256),
		SttInitDurationMs:   NewHistogram(256),
		SttUnloadDurationMs: NewHistogram(256),
		InjectionLatencyMs:  NewHistogram(2048),
		InjectionAttempts:   make(map[string]*Counter),
		InjectionSuccesses:  make(map[string]*Counter),
		InjectionFailures:   make(map[string]*Counter),
	}
	for _, stage := range []PipelineStage{StageCapture, StageChunker, StageVAD, StageSTT, StageInjection} {
		s.Stages[stage] = &StageMetrics{}
	}
	return s
}

// MarkStageActive increments the frame counter for a stage (called by the
// chunker and STT processor hot paths).
func (s *Sink) MarkStageActive(stage PipelineStage) {
	if m, ok := s.Stages[stage]; ok {
		m.MarkActive()
	}
}

func (s *Sink) injectionCounter(set map[string]*Counter, method string) *Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := set[method]
	if !ok {
		c = &Counter{}
		set[method] = c
	}
	return c
}

func (s *Sink) RecordInjectionAttempt(method string)  { s.injectionCounter(s.InjectionAttempts, method).Inc() }
func (s *Sink) RecordInjectionSuccess(method string)  { s.injectionCounter(s.InjectionSuccesses, method).Inc() }
func (s *Sink) RecordInjectionFailure(method string)  { s.injectionCounter(s.InjectionFailures, method).Inc() }
