package vad

import (
	"fmt"

	"github.com/coldvox/coldvox/internal/sileroengine"
)

// SileroConfig parameterizes the neural VAD (spec.md §4.4 defaults).
type SileroConfig struct {
	ModelPath             string
	SampleRateHz          int
	Threshold             float32
	MinSpeechDurationMs   int
	MinSilenceDurationMs  int
	WindowSizeSamples     int
	NumThreads            int
	BufferSizeSeconds     float32
}

// DefaultSileroConfig returns spec.md's stated defaults: probability
// threshold 0.3, min_speech_duration_ms 250, min_silence_duration_ms 500.
// The unusually long silence window stitches utterances across brief
// pauses at the cost of ~500ms added latency — deliberate per spec.md.
func DefaultSileroConfig(modelPath string) SileroConfig {
	return SileroConfig{
		ModelPath:            modelPath,
		SampleRateHz:         16000,
		Threshold:            0.3,
		MinSpeechDurationMs:  250,
		MinSilenceDurationMs: 500,
		WindowSizeSamples:    512,
		NumThreads:           1,
		BufferSizeSeconds:    60.0,
	}
}

// SileroEngine wraps sherpa-onnx's VoiceActivityDetector behind the common
// Engine interface (grounded on teacher's internal/stt/recognizer.go, which
// drives the same sherpa VAD type but mixes it with Whisper transcription;
// here it is isolated to just the VAD responsibility per spec.md's C4/C7
// split).
type SileroEngine struct {
	cfg   SileroConfig
	vad   *sileroengine.VoiceActivityDetector
	state State

	framesIn      uint64
	speechStartMs uint64
}

// NewSileroEngine loads the Silero ONNX model at cfg.ModelPath.
func NewSileroEngine(cfg SileroConfig) (*SileroEngine, error) {
	modelCfg := &sileroengine.VadModelConfig{}
	modelCfg.SileroVad.Model = cfg.ModelPath
	modelCfg.SileroVad.Threshold = cfg.Threshold
	modelCfg.SileroVad.MinSilenceDuration = float32(cfg.MinSilenceDurationMs) / 1000.0
	modelCfg.SileroVad.MinSpeechDuration = float32(cfg.MinSpeechDurationMs) / 1000.0
	modelCfg.SileroVad.WindowSize = cfg.WindowSizeSamples
	modelCfg.SampleRate = cfg.SampleRateHz
	modelCfg.NumThreads = cfg.NumThreads

	v := sileroengine.NewVoiceActivityDetector(modelCfg, cfg.BufferSizeSeconds)
	if v == nil {
		return nil, fmt.Errorf("vad: failed to initialize silero model %q", cfg.ModelPath)
	}
	return &SileroEngine{cfg: cfg, vad: v}, nil
}

// Process implements Engine. sherpa-onnx's VAD is itself event-driven
// (IsSpeechDetected / segment popping); this adapts that shape into the
// frame-in/event-out contract the rest of the pipeline expects.
func (s *SileroEngine) Process(frame []float32) (*Event, error) {
	if len(frame) != s.cfg.WindowSizeSamples {
		return nil, ErrWrongFrameSize
	}

	s.framesIn++
	nowMs := s.framesIn * uint64(s.cfg.WindowSizeSamples) * 1000 / uint64(s.cfg.SampleRateHz)

	s.vad.AcceptWaveform(frame)
	speaking := s.vad.IsSpeech()

	if speaking && s.state == StateSilence {
		s.state = StateSpeech
		s.speechStartMs = nowMs
		return &Event{Kind: EventSpeechStart, TimestampMs: nowMs}, nil
	}

	// A completed segment becoming available is sherpa-onnx's own signal
	// that silence has persisted past min_silence_duration_ms, so that's
	// the authoritative SpeechEnd boundary rather than !IsSpeech() alone
	// (which can be true mid-utterance during brief pauses the engine is
	// deliberately stitching across).
	if !s.vad.IsEmpty() {
		s.vad.Pop()
		if s.state == StateSpeech {
			s.state = StateSilence
			return &Event{Kind: EventSpeechEnd, TimestampMs: nowMs, DurationMs: nowMs - s.speechStartMs}, nil
		}
	}

	return nil, nil
}

// Reset clears the underlying detector's internal buffers.
func (s *SileroEngine) Reset() {
	s.vad.Clear()
	s.state = StateSilence
	s.framesIn = 0
}

func (s *SileroEngine) CurrentState() State           { return s.state }
func (s *SileroEngine) RequiredSampleRate() int        { return s.cfg.SampleRateHz }
func (s *SileroEngine) RequiredFrameSizeSamples() int { return s.cfg.WindowSizeSamples }

// Close releases the underlying sherpa-onnx detector. Must be called
// exactly once when the engine is no longer needed.
func (s *SileroEngine) Close() {
	sileroengine.DeleteVoiceActivityDetector(s.vad)
}
