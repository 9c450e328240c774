//go:build vosk

package sttplugin

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	vosk "github.com/alphacep/vosk-api/go"
)

// VoskPlugin wraps the Vosk offline recognizer. Only compiled with
// `-tags vosk`, mirroring original_source's `#[cfg(feature = "vosk")]`
// conditional registration; the model path comes from VOSK_MODEL_PATH
// (spec.md's supplemented config-surface expansion).
type VoskPlugin struct {
	state State
	model *vosk.VoskModel
	rec   *vosk.VoskRecognizer
}

// NewVoskFactory returns a Factory for VoskPlugin, reading the model path
// from VOSK_MODEL_PATH at New() time.
func NewVoskFactory() Factory { return voskFactory{} }

type voskFactory struct{}

func (voskFactory) ID() string { return "vosk" }
func (voskFactory) Info() Info {
	return Info{ID: "vosk", Name: "Vosk", Description: "Offline Kaldi-based recognizer", IsLocal: true, MemoryEstimateMB: 512}
}

func (voskFactory) New() (Plugin, error) {
	return &VoskPlugin{state: StateUninitialized}, nil
}

func (p *VoskPlugin) Info() Info                 { return voskFactory{}.Info() }
func (p *VoskPlugin) Capabilities() Capabilities { return Capabilities{Languages: []string{"en"}} }
func (p *VoskPlugin) IsAvailable() bool          { return os.Getenv("VOSK_MODEL_PATH") != "" }
func (p *VoskPlugin) State() State               { return p.state }

func (p *VoskPlugin) Initialize(ctx context.Context) error {
	path := os.Getenv("VOSK_MODEL_PATH")
	if path == "" {
		return fmt.Errorf("sttplugin: vosk: VOSK_MODEL_PATH not set")
	}
	return p.LoadModel(ctx, path)
}

func (p *VoskPlugin) LoadModel(_ context.Context, path string) error {
	p.state = StateLoading
	model, err := vosk.NewModel(path)
	if err != nil {
		p.state = StateError
		return fmt.Errorf("sttplugin: vosk: load model %q: %w", path, err)
	}
	rec, err := vosk.NewRecognizer(model, 16000.0)
	if err != nil {
		p.state = StateError
		return fmt.Errorf("sttplugin: vosk: create recognizer: %w", err)
	}
	p.model = model
	p.rec = rec
	p.state = StateReady
	return nil
}

func (p *VoskPlugin) ProcessAudio(_ context.Context, samples []int16) (*TranscriptionEvent, error) {
	if p.rec == nil {
		return nil, &PluginError{Class: ErrorFatal, Err: fmt.Errorf("sttplugin: vosk not initialized")}
	}
	p.state = StateProcessing
	p.rec.AcceptWaveform(int16ToPCMBytes(samples))
	p.state = StateReady
	return nil, nil
}

func (p *VoskPlugin) Finalize(context.Context) (*TranscriptionEvent, error) {
	if p.rec == nil {
		return nil, &PluginError{Class: ErrorFatal, Err: fmt.Errorf("sttplugin: vosk not initialized")}
	}
	text := p.rec.FinalResult()
	return &TranscriptionEvent{Kind: EventFinal, Text: text}, nil
}

func (p *VoskPlugin) Reset() error {
	if p.rec != nil {
		p.rec.Reset()
	}
	return nil
}

func (p *VoskPlugin) Unload() error {
	if p.state == StateUninitialized {
		return ErrAlreadyUnloaded
	}
	p.rec = nil
	p.model = nil
	p.state = StateUninitialized
	return nil
}

func int16ToPCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
