//go:build linux

// Package whisperengine re-exports the platform-specific sherpa-onnx
// offline-recognizer bindings used by the optional Whisper STT plugin.
// Kept separate from internal/sileroengine (which only re-exports the VAD
// half of the same upstream package) so each engine's build-tag surface
// stays minimal, following the teacher's internal/sherpa split.
package whisperengine

import impl "github.com/k2-fsa/sherpa-onnx-go-linux"

type OfflineRecognizer = impl.OfflineRecognizer
type OfflineRecognizerConfig = impl.OfflineRecognizerConfig
type OfflineStream = impl.OfflineStream
type OfflineRecognizerResult = impl.OfflineRecognizerResult

var NewOfflineRecognizer = impl.NewOfflineRecognizer
var DeleteOfflineRecognizer = impl.DeleteOfflineRecognizer
var NewOfflineStream = impl.NewOfflineStream
var DeleteOfflineStream = impl.DeleteOfflineStream
