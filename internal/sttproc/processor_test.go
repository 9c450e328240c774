package sttproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldvox/coldvox/internal/chunker"
	"github.com/coldvox/coldvox/internal/sttplugin"
	"github.com/coldvox/coldvox/internal/telemetry"
	"github.com/coldvox/coldvox/internal/vad"
)

func newTestProcessor(t *testing.T) (*Processor, chan chunker.AudioFrame, chan vad.Event) {
	t.Helper()
	audioCh := make(chan chunker.AudioFrame, 16)
	vadCh := make(chan vad.Event, 4)

	m := sttplugin.New(sttplugin.DefaultSelectionConfig(), telemetry.NewSink(), nil)
	_, err := m.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, "mock", m.Current())

	p := New(audioCh, vadCh, m, telemetry.NewSink(), nil)
	return p, audioCh, vadCh
}

func frame(n int) chunker.AudioFrame {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.1
	}
	return chunker.AudioFrame{Samples: samples, SampleRateHz: 16000}
}

func TestProcessorDiscardsAudioOutsideSpeechWindow(t *testing.T) {
	p, audioCh, _ := newTestProcessor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	audioCh <- frame(512)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, len(p.audioBuffer), "audio outside SpeechActive must be dropped, not buffered")
	assert.Equal(t, uint64(1), p.metrics.FramesIn.Load())
	assert.Equal(t, uint64(0), p.metrics.FramesOut.Load())
}

func TestProcessorBuffersAudioDuringSpeechActiveAndFinalizesOnSpeechEnd(t *testing.T) {
	p, audioCh, vadCh := newTestProcessor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	vadCh <- vad.Event{Kind: vad.EventSpeechStart, TimestampMs: 1000}
	time.Sleep(10 * time.Millisecond)

	audioCh <- frame(512)
	audioCh <- frame(512)
	time.Sleep(20 * time.Millisecond)

	vadCh <- vad.Event{Kind: vad.EventSpeechEnd, TimestampMs: 1050, DurationMs: 50}

	select {
	case ev := <-p.Events():
		assert.Equal(t, sttplugin.EventFinal, ev.Kind)
		assert.Contains(t, ev.Text, "mock transcript")
		assert.Equal(t, uint64(1), ev.UtteranceID)
	case <-time.After(time.Second):
		t.Fatal("expected a final transcription event")
	}

	assert.Equal(t, uint64(2), p.metrics.FramesOut.Load())
}

func TestProcessorPreallocatesTenSecondBufferOnSpeechStart(t *testing.T) {
	p, _, vadCh := newTestProcessor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	vadCh <- vad.Event{Kind: vad.EventSpeechStart}
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, preallocBufferSamples, cap(p.audioBuffer))
}

func TestProcessorFloatToInt16ClampsRange(t *testing.T) {
	assert.Equal(t, int16(32767), floatToInt16(2.0))
	assert.Equal(t, int16(-32768), floatToInt16(-2.0))
	assert.Equal(t, int16(0), floatToInt16(0))
}

func TestProcessorUtteranceIDsAreMonotonic(t *testing.T) {
	p, audioCh, vadCh := newTestProcessor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	for i := 0; i < 2; i++ {
		vadCh <- vad.Event{Kind: vad.EventSpeechStart}
		time.Sleep(5 * time.Millisecond)
		audioCh <- frame(512)
		time.Sleep(5 * time.Millisecond)
		vadCh <- vad.Event{Kind: vad.EventSpeechEnd}

		select {
		case ev := <-p.Events():
			assert.Equal(t, uint64(i+1), ev.UtteranceID)
		case <-time.After(time.Second):
			t.Fatalf("expected final event for utterance %d", i+1)
		}
	}
}

func TestProcessorDropsEventWhenOutputChannelStaysFull(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	// don't run Run(); fill the channel manually and call deliver directly
	for i := 0; i < outputChannelDepth; i++ {
		p.outCh <- sttplugin.TranscriptionEvent{Kind: sttplugin.EventFinal}
	}

	done := make(chan struct{})
	go func() {
		p.deliver(sttplugin.TranscriptionEvent{Kind: sttplugin.EventFinal})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(sendTimeout + 2*time.Second):
		t.Fatal("deliver should give up and drop after sendTimeout")
	}
	assert.Equal(t, uint64(1), p.metrics.FramesDropped.Load())
}
