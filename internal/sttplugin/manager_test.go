package sttplugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldvox/coldvox/internal/telemetry"
)

func TestRegistryRegisterBuiltinsIncludesNoopAndMock(t *testing.T) {
	reg := NewRegistry()
	RegisterBuiltins(reg)

	ids := map[string]bool{}
	for _, info := range reg.Available() {
		ids[info.ID] = true
	}
	assert.True(t, ids["noop"])
	assert.True(t, ids["mock"])
}

func TestManagerInitializeFallsThroughToMockThenNoop(t *testing.T) {
	cfg := DefaultSelectionConfig()
	m := New(cfg, telemetry.NewSink(), nil)

	id, err := m.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mock", id, "first working fallback in the default list should win")
}

func TestManagerInitializeUsesNoopWhenNoFallbacksConfigured(t *testing.T) {
	cfg := SelectionConfig{FailoverThreshold: 3, FailoverCooldown: time.Second, ModelTTL: time.Minute}
	m := New(cfg, telemetry.NewSink(), nil)

	id, err := m.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "noop", id)
}

func TestManagerSwitchWarmStartsFromIdlePool(t *testing.T) {
	m := New(DefaultSelectionConfig(), telemetry.NewSink(), nil)
	_, err := m.Initialize(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Switch(context.Background(), "noop"))
	assert.Equal(t, "noop", m.Current())

	require.NoError(t, m.Switch(context.Background(), "mock"))
	assert.Equal(t, "mock", m.Current())
}

func TestManagerProcessAudioWithoutSelectionErrors(t *testing.T) {
	m := New(DefaultSelectionConfig(), telemetry.NewSink(), nil)
	_, err := m.ProcessAudio(context.Background(), []int16{1, 2, 3})
	assert.ErrorIs(t, err, ErrNoPluginSelected)
}

func TestManagerProcessAudioAndFinalizeRoundTrip(t *testing.T) {
	m := New(DefaultSelectionConfig(), telemetry.NewSink(), nil)
	id, err := m.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, "mock", id)

	_, err = m.ProcessAudio(context.Background(), make([]int16, 100))
	require.NoError(t, err)

	ev, err := m.Finalize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventFinal, ev.Kind)
}

func TestManagerUnloadAllClearsCurrent(t *testing.T) {
	m := New(DefaultSelectionConfig(), telemetry.NewSink(), nil)
	_, err := m.Initialize(context.Background())
	require.NoError(t, err)

	m.UnloadAll()
	assert.Equal(t, "", m.Current())
	_, err = m.ProcessAudio(context.Background(), []int16{1})
	assert.ErrorIs(t, err, ErrNoPluginSelected)
}

func TestManagerGCUnloadsOnlyIdlePluginsPastTTL(t *testing.T) {
	m := New(DefaultSelectionConfig(), telemetry.NewSink(), nil)
	_, err := m.Initialize(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Switch(context.Background(), "noop"))

	// force the previously-loaded mock plugin to look stale
	m.mu.Lock()
	m.idle["mock"].lastActiveAt = time.Now().Add(-time.Hour)
	m.cfg.ModelTTL = time.Minute
	m.mu.Unlock()

	m.GC()

	m.mu.Lock()
	_, stillIdle := m.idle["mock"]
	_, currentStillIdle := m.idle["noop"]
	m.mu.Unlock()
	assert.False(t, stillIdle, "stale non-current plugin should be GC'd")
	assert.True(t, currentStillIdle, "current plugin must survive GC")
}

func TestManagerGCDisabledIsNoOp(t *testing.T) {
	cfg := DefaultSelectionConfig()
	cfg.GCDisabled = true
	m := New(cfg, telemetry.NewSink(), nil)
	_, err := m.Initialize(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Switch(context.Background(), "noop"))

	m.mu.Lock()
	m.idle["mock"].lastActiveAt = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	m.GC()

	m.mu.Lock()
	_, stillIdle := m.idle["mock"]
	m.mu.Unlock()
	assert.True(t, stillIdle)
}

func TestNoOpPluginLifecycle(t *testing.T) {
	f := NewNoOpFactory()
	p, err := f.New()
	require.NoError(t, err)

	require.NoError(t, p.Initialize(context.Background()))
	assert.Equal(t, StateReady, p.State())

	ev, err := p.ProcessAudio(context.Background(), []int16{1, 2, 3})
	require.NoError(t, err)
	assert.Nil(t, ev)

	require.NoError(t, p.Unload())
	assert.Equal(t, StateUninitialized, p.State())
}

func TestUnloadTwiceReturnsErrAlreadyUnloaded(t *testing.T) {
	f := NewMockFactory()
	p, err := f.New()
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))

	require.NoError(t, p.Unload())
	assert.ErrorIs(t, p.Unload(), ErrAlreadyUnloaded)
}

func TestMockPluginProducesDeterministicFinal(t *testing.T) {
	f := NewMockFactory()
	p, err := f.New()
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))

	_, err = p.ProcessAudio(context.Background(), make([]int16, 50))
	require.NoError(t, err)

	ev, err := p.Finalize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, uint64(1), ev.UtteranceID)

	ev2, err := p.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ev2.UtteranceID, "utterance ids must be monotonic")
}

// fatalPlugin always returns a Fatal PluginError from ProcessAudio, to drive
// Manager.handleFatal's failover path deterministically.
type fatalPlugin struct {
	state State
}

func newFatalFactory() Factory { return fatalFactory{} }

type fatalFactory struct{}

func (fatalFactory) ID() string { return "fatal" }
func (fatalFactory) Info() Info { return Info{ID: "fatal", Name: "Fatal"} }
func (fatalFactory) New() (Plugin, error) { return &fatalPlugin{state: StateUninitialized}, nil }

func (p *fatalPlugin) Info() Info                 { return fatalFactory{}.Info() }
func (p *fatalPlugin) Capabilities() Capabilities { return Capabilities{} }
func (p *fatalPlugin) IsAvailable() bool          { return true }
func (p *fatalPlugin) State() State               { return p.state }
func (p *fatalPlugin) Initialize(context.Context) error {
	p.state = StateReady
	return nil
}
func (p *fatalPlugin) LoadModel(context.Context, string) error { return nil }
func (p *fatalPlugin) ProcessAudio(context.Context, []int16) (*TranscriptionEvent, error) {
	return nil, &PluginError{Class: ErrorFatal, Err: errors.New("fatal boom")}
}
func (p *fatalPlugin) Finalize(context.Context) (*TranscriptionEvent, error) { return nil, nil }
func (p *fatalPlugin) Reset() error                                         { return nil }
func (p *fatalPlugin) Unload() error {
	if p.state == StateUninitialized {
		return ErrAlreadyUnloaded
	}
	p.state = StateUninitialized
	return nil
}

func TestSttFailoverCountIncrementsOncePerSwitchNotPerFault(t *testing.T) {
	cfg := DefaultSelectionConfig()
	cfg.FailoverThreshold = 3
	sink := telemetry.NewSink()
	m := New(cfg, sink, nil)
	m.Registry().Register(newFatalFactory())

	require.NoError(t, m.Switch(context.Background(), "fatal"))

	for i := 0; i < 3; i++ {
		_, err := m.ProcessAudio(context.Background(), []int16{1})
		require.Error(t, err)
	}

	assert.Equal(t, "mock", m.Current(), "threshold trip should fail over to the first configured fallback")
	assert.Equal(t, uint64(1), sink.SttFailoverCount.Load(), "three fatal errors trip one switch, not three increments")
}

func TestPluginErrorClassification(t *testing.T) {
	base := errors.New("boom")
	pe := &PluginError{Class: ErrorFatal, Err: base}
	assert.ErrorIs(t, pe, base)
	assert.Equal(t, ErrorFatal, pe.Class)
}
