//go:build linux

// Package sileroengine re-exports the platform-specific sherpa-onnx VAD
// bindings used by internal/vad's Silero engine. Kept as its own package
// (rather than importing k2-fsa/sherpa-onnx-go-linux directly from
// internal/vad) so only one file per platform needs a build tag, following
// the teacher's internal/sherpa split.
package sileroengine

import impl "github.com/k2-fsa/sherpa-onnx-go-linux"

type VoiceActivityDetector = impl.VoiceActivityDetector
type VadModelConfig = impl.VadModelConfig
type SpeechSegment = impl.SpeechSegment

var NewVoiceActivityDetector = impl.NewVoiceActivityDetector
var DeleteVoiceActivityDetector = impl.DeleteVoiceActivityDetector
