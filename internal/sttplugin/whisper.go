//go:build whisper

package sttplugin

import (
	"context"
	"fmt"
	"os"
	"strings"

	whisper "github.com/coldvox/coldvox/internal/whisperengine"
)

// WhisperPlugin wraps a sherpa-onnx offline Whisper recognizer. Only
// compiled with `-tags whisper`, the same opt-in convention vosk.go uses.
// Model paths come from WHISPER_ENCODER_PATH/WHISPER_DECODER_PATH/
// WHISPER_TOKENS_PATH (spec.md's supplemented config-surface expansion,
// alongside VOSK_MODEL_PATH), adapted from the teacher's stt.Recognizer,
// minus its own VAD/segment-channel half: C8's sttproc already owns
// utterance buffering, so this plugin only decodes whatever buffer it is
// handed.
type WhisperPlugin struct {
	state        State
	rec          *whisper.OfflineRecognizer
	sampleRateHz int
	buffered     []int16
}

func NewWhisperFactory() Factory { return whisperFactory{} }

type whisperFactory struct{}

func (whisperFactory) ID() string { return "whisper" }
func (whisperFactory) Info() Info {
	return Info{ID: "whisper", Name: "Whisper (sherpa-onnx)", Description: "Offline Whisper encoder/decoder", IsLocal: true, MemoryEstimateMB: 1024}
}

func (whisperFactory) New() (Plugin, error) {
	return &WhisperPlugin{state: StateUninitialized}, nil
}

func (p *WhisperPlugin) Info() Info { return whisperFactory{}.Info() }
func (p *WhisperPlugin) Capabilities() Capabilities {
	return Capabilities{Languages: []string{"en", "auto"}}
}
func (p *WhisperPlugin) IsAvailable() bool {
	return os.Getenv("WHISPER_ENCODER_PATH") != "" && os.Getenv("WHISPER_DECODER_PATH") != "" && os.Getenv("WHISPER_TOKENS_PATH") != ""
}
func (p *WhisperPlugin) State() State { return p.state }

func (p *WhisperPlugin) Initialize(ctx context.Context) error {
	if !p.IsAvailable() {
		return fmt.Errorf("sttplugin: whisper: WHISPER_ENCODER_PATH/WHISPER_DECODER_PATH/WHISPER_TOKENS_PATH not set")
	}
	return p.LoadModel(ctx, "")
}

// LoadModel ignores path (encoder/decoder/tokens are three separate files,
// named via env vars above) and builds the recognizer from the env config.
func (p *WhisperPlugin) LoadModel(_ context.Context, _ string) error {
	p.state = StateLoading

	cfg := &whisper.OfflineRecognizerConfig{}
	cfg.ModelConfig.Whisper.Encoder = os.Getenv("WHISPER_ENCODER_PATH")
	cfg.ModelConfig.Whisper.Decoder = os.Getenv("WHISPER_DECODER_PATH")
	cfg.ModelConfig.Whisper.Task = "transcribe"
	cfg.ModelConfig.Whisper.TailPaddings = -1
	cfg.ModelConfig.Tokens = os.Getenv("WHISPER_TOKENS_PATH")
	cfg.ModelConfig.NumThreads = 1
	cfg.DecodingMethod = "greedy_search"

	rec := whisper.NewOfflineRecognizer(cfg)
	if rec == nil {
		p.state = StateError
		return fmt.Errorf("sttplugin: whisper: failed to create offline recognizer")
	}
	p.rec = rec
	p.sampleRateHz = 16000
	p.state = StateReady
	return nil
}

// ProcessAudio accumulates samples; Whisper is not a streaming decoder, so
// the whole utterance is decoded in one shot inside Finalize (unlike
// Vosk, which decodes incrementally).
func (p *WhisperPlugin) ProcessAudio(_ context.Context, samples []int16) (*TranscriptionEvent, error) {
	if p.rec == nil {
		return nil, &PluginError{Class: ErrorFatal, Err: fmt.Errorf("sttplugin: whisper not initialized")}
	}
	p.buffered = append(p.buffered, samples...)
	return nil, nil
}

func (p *WhisperPlugin) Finalize(context.Context) (*TranscriptionEvent, error) {
	if p.rec == nil {
		return nil, &PluginError{Class: ErrorFatal, Err: fmt.Errorf("sttplugin: whisper not initialized")}
	}
	defer func() { p.buffered = nil }()
	if len(p.buffered) == 0 {
		return &TranscriptionEvent{Kind: EventFinal, Text: ""}, nil
	}

	p.state = StateProcessing
	defer func() { p.state = StateReady }()

	stream := whisper.NewOfflineStream(p.rec)
	if stream == nil {
		return nil, &PluginError{Class: ErrorTransient, Err: fmt.Errorf("sttplugin: whisper: failed to create stream")}
	}
	defer whisper.DeleteOfflineStream(stream)

	stream.AcceptWaveform(p.sampleRateHz, int16ToFloat32(p.buffered))
	p.rec.Decode(stream)

	text := strings.TrimSpace(stream.GetResult().Text)
	return &TranscriptionEvent{Kind: EventFinal, Text: text}, nil
}

func (p *WhisperPlugin) Reset() error {
	p.buffered = nil
	return nil
}

func (p *WhisperPlugin) Unload() error {
	if p.state == StateUninitialized {
		return ErrAlreadyUnloaded
	}
	if p.rec != nil {
		whisper.DeleteOfflineRecognizer(p.rec)
		p.rec = nil
	}
	p.state = StateUninitialized
	return nil
}

func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
