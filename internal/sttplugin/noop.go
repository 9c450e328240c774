package sttplugin

import "context"

// NoOpPlugin discards all audio and emits nothing. It is the ultimate
// fallback when no other plugin is available (spec.md §4.7).
type NoOpPlugin struct {
	state State
}

// NewNoOpFactory returns a Factory for NoOpPlugin.
func NewNoOpFactory() Factory { return noopFactory{} }

type noopFactory struct{}

func (noopFactory) ID() string { return "noop" }
func (noopFactory) Info() Info {
	return Info{ID: "noop", Name: "No-Op", Description: "Discards audio, emits nothing", IsLocal: true}
}
func (noopFactory) New() (Plugin, error) { return &NoOpPlugin{state: StateUninitialized}, nil }

func (p *NoOpPlugin) Info() Info                 { return noopFactory{}.Info() }
func (p *NoOpPlugin) Capabilities() Capabilities { return Capabilities{} }
func (p *NoOpPlugin) IsAvailable() bool          { return true }
func (p *NoOpPlugin) State() State               { return p.state }

func (p *NoOpPlugin) Initialize(context.Context) error {
	p.state = StateReady
	return nil
}

func (p *NoOpPlugin) LoadModel(context.Context, string) error { return nil }

func (p *NoOpPlugin) ProcessAudio(context.Context, []int16) (*TranscriptionEvent, error) {
	return nil, nil
}

func (p *NoOpPlugin) Finalize(context.Context) (*TranscriptionEvent, error) {
	return nil, nil
}

func (p *NoOpPlugin) Reset() error {
	p.state = StateReady
	return nil
}

func (p *NoOpPlugin) Unload() error {
	if p.state == StateUninitialized {
		return ErrAlreadyUnloaded
	}
	p.state = StateUninitialized
	return nil
}
