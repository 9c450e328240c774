// Package sttproc implements C8 STT Processor: buffers audio between
// SpeechStart/SpeechEnd and feeds the active STT plugin exactly once per
// utterance.
package sttproc

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/coldvox/coldvox/internal/chunker"
	"github.com/coldvox/coldvox/internal/sttplugin"
	"github.com/coldvox/coldvox/internal/telemetry"
	"github.com/coldvox/coldvox/internal/vad"
)

// preallocBufferSamples is a 10-second i16 buffer at 16kHz mono, matching
// original_source's `Vec::with_capacity(16000 * 10)` pre-allocation.
const preallocBufferSamples = 16000 * 10

// outputChannelDepth bounds the transcription event channel; spec.md §8's
// back-pressure decision (see DESIGN.md Open Questions) is drop + metric.
const outputChannelDepth = 100

// sendTimeout is how long Run waits for room in the output channel before
// dropping an event.
const sendTimeout = 5 * time.Second

// UtteranceStateKind tags the processor's state.
type UtteranceStateKind int

const (
	StateIdle UtteranceStateKind = iota
	StateSpeechActive
)

// Metrics mirrors original_source's SttMetrics, exposed for the supervisor
// to fold into the telemetry sink.
type Metrics struct {
	FramesIn       atomic.Uint64
	FramesOut      atomic.Uint64
	FramesDropped  atomic.Uint64
	PartialCount   atomic.Uint64
	FinalCount     atomic.Uint64
	ErrorCount     atomic.Uint64
	LastEventUnix  atomic.Int64
}

// Processor gates the STT plugin manager behind VAD events: audio frames
// are only ever forwarded to the plugin inside a SpeechActive window
// (spec.md §4.8, §3 invariant "never processes audio outside a
// SpeechStart...SpeechEnd window").
type Processor struct {
	audioCh    <-chan chunker.AudioFrame
	vadEventCh <-chan vad.Event
	outCh      chan sttplugin.TranscriptionEvent
	plugins    *sttplugin.Manager
	sink       *telemetry.Sink
	log        *slog.Logger

	metrics Metrics

	state         UtteranceStateKind
	startedAtMs   uint64
	audioBuffer   []int16
	framesBuffered uint64

	nextUtteranceID atomic.Uint64
}

// New constructs a Processor. audioCh and vadEventCh are typically
// subscriptions off the chunker's Broadcaster and the activation Switch.
func New(audioCh <-chan chunker.AudioFrame, vadEventCh <-chan vad.Event, plugins *sttplugin.Manager, sink *telemetry.Sink, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		audioCh:    audioCh,
		vadEventCh: vadEventCh,
		outCh:      make(chan sttplugin.TranscriptionEvent, outputChannelDepth),
		plugins:    plugins,
		sink:       sink,
		log:        log,
		state:      StateIdle,
	}
}

// Events returns the output transcription event stream.
func (p *Processor) Events() <-chan sttplugin.TranscriptionEvent { return p.outCh }

// Metrics returns the live metrics set.
func (p *Processor) Metrics() *Metrics { return &p.metrics }

// Run drains audio and VAD events until ctx is canceled or both input
// channels close.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.vadEventCh:
			if !ok {
				p.vadEventCh = nil
				if p.audioCh == nil {
					return
				}
				continue
			}
			p.handleVadEvent(ctx, ev)
		case frame, ok := <-p.audioCh:
			if !ok {
				p.audioCh = nil
				if p.vadEventCh == nil {
					return
				}
				continue
			}
			p.handleAudioFrame(frame)
		}
	}
}

func (p *Processor) handleVadEvent(ctx context.Context, ev vad.Event) {
	switch ev.Kind {
	case vad.EventSpeechStart:
		p.state = StateSpeechActive
		p.startedAtMs = ev.TimestampMs
		p.audioBuffer = make([]int16, 0, preallocBufferSamples)
		p.framesBuffered = 0
	case vad.EventSpeechEnd:
		p.finishUtterance(ctx)
	}
}

func (p *Processor) handleAudioFrame(frame chunker.AudioFrame) {
	p.metrics.FramesIn.Add(1)
	if p.state != StateSpeechActive {
		return
	}
	for _, s := range frame.Samples {
		p.audioBuffer = append(p.audioBuffer, floatToInt16(s))
	}
	p.framesBuffered++
	p.metrics.FramesOut.Add(1)
	if p.sink != nil {
		p.sink.MarkStageActive(telemetry.StageSTT)
	}
}

func (p *Processor) finishUtterance(ctx context.Context) {
	if p.state != StateSpeechActive {
		return
	}
	p.state = StateIdle

	id := p.nextUtteranceID.Add(1)
	buffer := p.audioBuffer
	p.audioBuffer = nil

	ev, err := p.plugins.ProcessAudio(ctx, buffer)
	if err != nil {
		p.recordError(id, err)
		return
	}
	if ev != nil {
		p.deliver(stampUtterance(*ev, id))
	}

	final, err := p.plugins.Finalize(ctx)
	if err != nil {
		p.recordError(id, err)
		return
	}
	if final != nil {
		p.deliver(stampUtterance(*final, id))
	}
}

func stampUtterance(ev sttplugin.TranscriptionEvent, id uint64) sttplugin.TranscriptionEvent {
	ev.UtteranceID = id
	return ev
}

func (p *Processor) recordError(id uint64, cause error) {
	p.metrics.ErrorCount.Add(1)
	p.deliver(sttplugin.TranscriptionEvent{
		Kind:         sttplugin.EventError,
		UtteranceID:  id,
		ErrorCode:    "stt_process_failed",
		ErrorMessage: cause.Error(),
	})
}

// deliver pushes ev to the output channel, dropping it (and counting the
// drop) if no room opens within sendTimeout — the spec's chosen
// back-pressure policy for a bounded STT output channel.
func (p *Processor) deliver(ev sttplugin.TranscriptionEvent) {
	switch ev.Kind {
	case sttplugin.EventPartial:
		p.metrics.PartialCount.Add(1)
	case sttplugin.EventFinal:
		p.metrics.FinalCount.Add(1)
	}
	p.metrics.LastEventUnix.Store(time.Now().UnixNano())

	select {
	case p.outCh <- ev:
		return
	default:
	}

	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	select {
	case p.outCh <- ev:
	case <-timer.C:
		p.metrics.FramesDropped.Add(1)
		p.log.Warn("sttproc: output channel full, dropping event", "kind", ev.Kind, "utterance_id", ev.UtteranceID)
	}
}

// floatToInt16 converts one f32 sample in [-1,1] to i16 PCM, matching
// original_source's per-sample f32<->i16 conversion boundary.
func floatToInt16(s float32) int16 {
	v := float64(s) * math.MaxInt16
	if v > math.MaxInt16 {
		v = math.MaxInt16
	} else if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int16(v)
}
