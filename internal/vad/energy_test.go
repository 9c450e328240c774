package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentFrame(n int) []float32 {
	return make([]float32, n)
}

func loudFrame(n int) []float32 {
	f := make([]float32, n)
	for i := range f {
		f[i] = 0.8
	}
	return f
}

func fastDebounce() EnergyConfig {
	cfg := DefaultEnergyConfig()
	cfg.SpeechDebounceMs = 0
	cfg.SilenceDebounceMs = 0
	return cfg
}

func TestEnergyEngineRejectsWrongFrameSize(t *testing.T) {
	e := NewEnergyEngine(DefaultEnergyConfig())
	_, err := e.Process(make([]float32, 10))
	assert.ErrorIs(t, err, ErrWrongFrameSize)
}

func TestEnergyEngineStaysIdleOnSilence(t *testing.T) {
	e := NewEnergyEngine(fastDebounce())
	for i := 0; i < 10; i++ {
		ev, err := e.Process(silentFrame(512))
		require.NoError(t, err)
		assert.Nil(t, ev)
	}
	assert.Equal(t, StateSilence, e.CurrentState())
}

func TestEnergyEngineEmitsSpeechStartThenEnd(t *testing.T) {
	e := NewEnergyEngine(fastDebounce())

	// warm up the floor with several silent frames
	for i := 0; i < 5; i++ {
		_, _ = e.Process(silentFrame(512))
	}

	// first loud frame only arms the candidate transition; the debounce
	// machine requires a second consecutive candidate frame before firing,
	// even with a zero-length debounce window.
	ev, err := e.Process(loudFrame(512))
	require.NoError(t, err)
	assert.Nil(t, ev)

	ev, err = e.Process(loudFrame(512))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventSpeechStart, ev.Kind)
	assert.Equal(t, StateSpeech, e.CurrentState())

	// hold speech for a few frames
	for i := 0; i < 3; i++ {
		ev, err = e.Process(loudFrame(512))
		require.NoError(t, err)
		assert.Nil(t, ev)
	}

	// symmetric to onset: the first silent frame only arms the candidate.
	ev, err = e.Process(silentFrame(512))
	require.NoError(t, err)
	assert.Nil(t, ev)

	ev, err = e.Process(silentFrame(512))
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventSpeechEnd, ev.Kind)
	assert.Equal(t, StateSilence, e.CurrentState())
	assert.Greater(t, ev.DurationMs, uint64(0))
}

func TestEnergyEngineResetRestoresInitialFloor(t *testing.T) {
	cfg := fastDebounce()
	e := NewEnergyEngine(cfg)

	for i := 0; i < 20; i++ {
		_, _ = e.Process(loudFrame(512))
	}
	e.Reset()

	assert.Equal(t, cfg.InitialFloorDB, e.threshold.floor)
	assert.Equal(t, StateSilence, e.CurrentState())
}

func TestDebounceMachineRequiresSustainedCandidate(t *testing.T) {
	cfg := DefaultEnergyConfig()
	cfg.SpeechDebounceMs = 100
	m := newDebounceMachine(cfg)

	assert.Nil(t, m.process(true, 0, -10))
	assert.Nil(t, m.process(true, 50, -10), "not enough elapsed time yet")
	ev := m.process(true, 120, -10)
	require.NotNil(t, ev)
	assert.Equal(t, EventSpeechStart, ev.Kind)
}

func TestDebounceMachineResetsCandidateOnFlap(t *testing.T) {
	cfg := DefaultEnergyConfig()
	cfg.SpeechDebounceMs = 100
	m := newDebounceMachine(cfg)

	assert.Nil(t, m.process(true, 0, -10))
	assert.Nil(t, m.process(false, 10, -10), "candidate flapped back to current state")
	assert.Nil(t, m.process(true, 20, -10), "re-armed, clock restarts")
	assert.Nil(t, m.process(true, 100, -10), "only 80ms since re-arm")
}

func TestAdaptiveThresholdOnlyUpdatesOnSilence(t *testing.T) {
	cfg := DefaultEnergyConfig()
	a := newAdaptiveThreshold(cfg)
	before := a.floor
	a.update(0, true)
	assert.Equal(t, before, a.floor, "speech frames must not move the floor")

	a.update(-40, false)
	assert.NotEqual(t, before, a.floor)
}
