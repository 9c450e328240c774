package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldvox/coldvox/internal/activation"
	"github.com/coldvox/coldvox/internal/chunker"
)

func TestDefaultOptionsPicksVADActivationAndBalancedQuality(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, activation.ModeVAD, opts.ActivationMode)
	assert.Equal(t, chunker.Balanced, opts.ChunkerQuality)
	assert.False(t, opts.InjectionEnabled)
	assert.Equal(t, []string{"mock", "noop"}, opts.STTSelection.Fallbacks)
}

func TestFanoutFramesToVADForwardsSamples(t *testing.T) {
	in := make(chan chunker.AudioFrame, 2)
	out := make(chan []float32, 2)

	in <- chunker.AudioFrame{Samples: []float32{0.1, 0.2}}
	in <- chunker.AudioFrame{Samples: []float32{0.3}}
	close(in)

	fanoutFramesToVAD(in, out)

	var got [][]float32
	for samples := range out {
		got = append(got, samples)
	}
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0.1, 0.2}, got[0])
	assert.Equal(t, []float32{0.3}, got[1])
}

func TestFanoutFramesToVADClosesOutputWhenInputCloses(t *testing.T) {
	in := make(chan chunker.AudioFrame)
	out := make(chan []float32)
	close(in)

	done := make(chan struct{})
	go func() {
		fanoutFramesToVAD(in, out)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fanoutFramesToVAD should return promptly when the input channel is closed")
	}

	_, ok := <-out
	assert.False(t, ok, "output channel should be closed")
}

func TestStopIsNoOpBeforeStart(t *testing.T) {
	s := &Supervisor{}
	assert.NotPanics(t, func() { s.Stop() })
}
