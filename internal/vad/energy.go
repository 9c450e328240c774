package vad

import "math"

// EnergyConfig parameterizes the Energy/Level-3 fallback engine (spec.md
// §4.4). Defaults match the spec's stated values.
type EnergyConfig struct {
	SampleRateHz      int
	FrameSizeSamples  int
	EMAAlpha          float32 // adaptive floor smoothing factor, clamped [0.001, 1.0]
	OnsetOffsetDB     float32 // onset = floor + this many dB
	OffsetOffsetDB    float32 // offset = floor + this many dB (must be < OnsetOffsetDB)
	SpeechDebounceMs  int
	SilenceDebounceMs int
	InitialFloorDB    float32
}

// DefaultEnergyConfig returns spec.md §4.4's defaults: 512-sample/16 kHz
// frames, EMA alpha 0.02, onset floor+9dB, offset floor+6dB.
func DefaultEnergyConfig() EnergyConfig {
	return EnergyConfig{
		SampleRateHz:      16000,
		FrameSizeSamples:  512,
		EMAAlpha:          0.02,
		OnsetOffsetDB:     9,
		OffsetOffsetDB:    6,
		SpeechDebounceMs:  30,
		SilenceDebounceMs: 30,
		InitialFloorDB:    -60,
	}
}

// adaptiveThreshold tracks a noise floor via EMA, updated only on non-speech
// frames, and exposes onset/offset decisions relative to that floor
// (grounded on original_source/crates/coldvox-vad/src/level3.rs's
// AdaptiveThreshold).
type adaptiveThreshold struct {
	cfg   EnergyConfig
	floor float32
}

func newAdaptiveThreshold(cfg EnergyConfig) *adaptiveThreshold {
	return &adaptiveThreshold{cfg: cfg, floor: cfg.InitialFloorDB}
}

func (a *adaptiveThreshold) shouldActivate(energyDB float32) bool {
	return energyDB >= a.floor+a.cfg.OnsetOffsetDB
}

func (a *adaptiveThreshold) shouldDeactivate(energyDB float32) bool {
	return energyDB < a.floor+a.cfg.OffsetOffsetDB
}

func (a *adaptiveThreshold) update(energyDB float32, isSpeech bool) {
	if isSpeech {
		return
	}
	alpha := a.cfg.EMAAlpha
	if alpha < 0.001 {
		alpha = 0.001
	} else if alpha > 1.0 {
		alpha = 1.0
	}
	a.floor = a.floor + alpha*(energyDB-a.floor)
}

func (a *adaptiveThreshold) reset() {
	a.floor = a.cfg.InitialFloorDB
}

// debounceMachine gates state transitions behind a minimum dwell time so a
// single anomalous frame can't flip state.
type debounceMachine struct {
	cfg               EnergyConfig
	state             State
	candidateState    State
	candidateSinceMs  uint64
	candidateArmed    bool
	speechStartMs     uint64
}

func newDebounceMachine(cfg EnergyConfig) *debounceMachine {
	return &debounceMachine{cfg: cfg, state: StateSilence}
}

func (d *debounceMachine) process(isSpeechCandidate bool, nowMs uint64, energyDB float32) *Event {
	target := StateSilence
	if isSpeechCandidate {
		target = StateSpeech
	}

	if target == d.state {
		d.candidateArmed = false
		return nil
	}

	if !d.candidateArmed || d.candidateState != target {
		d.candidateArmed = true
		d.candidateState = target
		d.candidateSinceMs = nowMs
		return nil
	}

	debounceMs := uint64(d.cfg.SpeechDebounceMs)
	if target == StateSilence {
		debounceMs = uint64(d.cfg.SilenceDebounceMs)
	}
	if nowMs-d.candidateSinceMs < debounceMs {
		return nil
	}

	d.candidateArmed = false
	d.state = target
	if target == StateSpeech {
		d.speechStartMs = nowMs
		return &Event{Kind: EventSpeechStart, TimestampMs: nowMs, EnergyDB: energyDB}
	}
	return &Event{
		Kind:        EventSpeechEnd,
		TimestampMs: nowMs,
		EnergyDB:    energyDB,
		DurationMs:  nowMs - d.speechStartMs,
	}
}

func (d *debounceMachine) reset() {
	d.state = StateSilence
	d.candidateArmed = false
}

// EnergyEngine implements Engine using per-frame dBFS against an adaptive
// noise floor with onset/offset hysteresis (spec.md §4.4 "Energy/Level-3
// fallback").
type EnergyEngine struct {
	cfg       EnergyConfig
	threshold *adaptiveThreshold
	machine   *debounceMachine
	framesIn  uint64
}

// NewEnergyEngine constructs an Energy engine with cfg.
func NewEnergyEngine(cfg EnergyConfig) *EnergyEngine {
	return &EnergyEngine{
		cfg:       cfg,
		threshold: newAdaptiveThreshold(cfg),
		machine:   newDebounceMachine(cfg),
	}
}

// Process implements Engine.
func (e *EnergyEngine) Process(frame []float32) (*Event, error) {
	if len(frame) != e.cfg.FrameSizeSamples {
		return nil, ErrWrongFrameSize
	}

	energyDB := dbfsRMS(frame)
	e.framesIn++
	nowMs := e.framesIn * uint64(e.cfg.FrameSizeSamples) * 1000 / uint64(e.cfg.SampleRateHz)

	var isSpeechCandidate bool
	switch e.machine.state {
	case StateSilence:
		isSpeechCandidate = e.threshold.shouldActivate(energyDB)
	case StateSpeech:
		isSpeechCandidate = !e.threshold.shouldDeactivate(energyDB)
	}

	e.threshold.update(energyDB, e.machine.state == StateSpeech)

	return e.machine.process(isSpeechCandidate, nowMs, energyDB), nil
}

// Reset restores the initial floor and clears debounce/state.
func (e *EnergyEngine) Reset() {
	e.threshold.reset()
	e.machine.reset()
	e.framesIn = 0
}

func (e *EnergyEngine) CurrentState() State           { return e.machine.state }
func (e *EnergyEngine) RequiredSampleRate() int        { return e.cfg.SampleRateHz }
func (e *EnergyEngine) RequiredFrameSizeSamples() int { return e.cfg.FrameSizeSamples }

// dbfsRMS computes the frame's RMS level in dBFS, floored at -120 to avoid
// -Inf for a silent frame.
func dbfsRMS(frame []float32) float32 {
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	if rms <= 0 {
		return -120
	}
	db := 20 * math.Log10(rms)
	if db < -120 {
		return -120
	}
	return float32(db)
}
