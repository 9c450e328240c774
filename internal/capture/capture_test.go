package capture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldvox/coldvox/internal/ringbuffer"
	"github.com/coldvox/coldvox/internal/telemetry"
)

func newTestEngine() *Engine {
	return New(nil, ringbuffer.New(), telemetry.NewSink(), nil)
}

func float32ToLEBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(s)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

func TestBytesToFloat32RoundTrip(t *testing.T) {
	in := []float32{0.25, -0.5, 1.0, 0}
	got := bytesToFloat32(float32ToLEBytes(in))
	assert.Equal(t, in, got)
}

func TestOnRecvFramesDropsWhenNotRunning(t *testing.T) {
	e := newTestEngine()
	e.onRecvFrames(nil, float32ToLEBytes([]float32{0.1, 0.2}), 2)
	assert.Equal(t, uint64(0), e.Counters().FramesCaptured.Load())
}

func TestOnRecvFramesPushesToRingAndCounts(t *testing.T) {
	e := newTestEngine()
	e.running.Store(true)

	e.onRecvFrames(nil, float32ToLEBytes([]float32{0.1, 0.2, 0.3}), 3)

	assert.Equal(t, uint64(3), e.Counters().FramesCaptured.Load())
	out := e.ring.Pop()
	require.NotNil(t, out)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, out)
}

func TestOnRecvFramesCountsDropsOnOverflow(t *testing.T) {
	e := newTestEngine()
	e.running.Store(true)

	for i := 0; i < e.ring.Capacity(); i++ {
		e.onRecvFrames(nil, float32ToLEBytes([]float32{0.1}), 1)
	}
	require.Equal(t, uint64(0), e.Counters().FramesDropped.Load())

	e.onRecvFrames(nil, float32ToLEBytes([]float32{0.1}), 1)
	assert.Equal(t, uint64(1), e.Counters().FramesDropped.Load())
	assert.Equal(t, uint64(1), e.sink.FramesDropped.Load())
}

func TestIsSilentUsesPeakThreshold(t *testing.T) {
	e := newTestEngine()
	assert.True(t, e.IsSilent([]float32{0.001, -0.002}))
	assert.False(t, e.IsSilent([]float32{0.5, -0.1}))
}
