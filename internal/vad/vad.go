// Package vad implements C4: two VAD engines (Silero neural, Energy
// fallback) behind a common Engine interface, each consuming one 512-sample
// frame at a time and emitting at most one VadEvent.
package vad

import "errors"

// ErrWrongFrameSize is returned when a frame doesn't match the engine's
// required size.
var ErrWrongFrameSize = errors.New("vad: frame size does not match engine requirement")

// EventKind tags a VadEvent.
type EventKind int

const (
	EventSpeechStart EventKind = iota
	EventSpeechEnd
)

// Event is the tagged VadEvent variant from spec.md §3.
type Event struct {
	Kind        EventKind
	TimestampMs uint64
	EnergyDB    float32
	DurationMs  uint64 // only set on EventSpeechEnd
}

// State is the engine's two-state speech/silence machine.
type State int

const (
	StateSilence State = iota
	StateSpeech
)

// Engine is the common contract for both VAD implementations. Engines are
// stateful and single-threaded: concurrent calls to Process are forbidden
// (spec.md §4.4).
type Engine interface {
	// Process consumes exactly one frame of RequiredFrameSizeSamples samples at
	// RequiredSampleRate and returns at most one event.
	Process(frame []float32) (*Event, error)
	Reset()
	CurrentState() State
	RequiredSampleRate() int
	RequiredFrameSizeSamples() int
}
