package sttplugin

import (
	"context"
	"fmt"
)

// MockPlugin accumulates audio and emits a deterministic Final transcript
// summarizing sample count, for tests and the probe subcommand's synthetic
// harness (spec.md's original_source supplement: mic-probe / synthetic STT
// test harnesses).
type MockPlugin struct {
	state       State
	utteranceID uint64
	buffered    int
}

// NewMockFactory returns a Factory for MockPlugin.
func NewMockFactory() Factory { return mockFactory{} }

type mockFactory struct{}

func (mockFactory) ID() string { return "mock" }
func (mockFactory) Info() Info {
	return Info{ID: "mock", Name: "Mock", Description: "Deterministic transcript for tests/probing", IsLocal: true}
}
func (mockFactory) New() (Plugin, error) { return &MockPlugin{state: StateUninitialized}, nil }

func (p *MockPlugin) Info() Info                 { return mockFactory{}.Info() }
func (p *MockPlugin) Capabilities() Capabilities { return Capabilities{Languages: []string{"en"}} }
func (p *MockPlugin) IsAvailable() bool          { return true }
func (p *MockPlugin) State() State               { return p.state }

func (p *MockPlugin) Initialize(context.Context) error {
	p.state = StateReady
	return nil
}

func (p *MockPlugin) LoadModel(context.Context, string) error { return nil }

func (p *MockPlugin) ProcessAudio(_ context.Context, samples []int16) (*TranscriptionEvent, error) {
	p.state = StateProcessing
	p.buffered += len(samples)
	return nil, nil
}

func (p *MockPlugin) Finalize(context.Context) (*TranscriptionEvent, error) {
	p.utteranceID++
	n := p.buffered
	p.buffered = 0
	p.state = StateReady
	return &TranscriptionEvent{
		Kind:        EventFinal,
		UtteranceID: p.utteranceID,
		Text:        fmt.Sprintf("[mock transcript: %d samples]", n),
	}, nil
}

func (p *MockPlugin) Reset() error {
	p.buffered = 0
	p.state = StateReady
	return nil
}

func (p *MockPlugin) Unload() error {
	if p.state == StateUninitialized {
		return ErrAlreadyUnloaded
	}
	p.state = StateUninitialized
	return nil
}
