package vad

import (
	"context"
	"log/slog"
)

// Runner drives an Engine from a channel of audio frames and republishes
// the resulting speech-start/speech-end events on its own channel,
// implementing the activation package's Source interface (Events/Run)
// so a VAD engine can be swapped with the hotkey listener behind the
// activation switch.
type Runner struct {
	engine  Engine
	framesCh <-chan []float32
	events  chan Event
	log     *slog.Logger
}

// NewRunner builds a Runner that reads mono frames from framesCh (already
// resampled to engine.RequiredSampleRate() / sized to
// engine.RequiredFrameSizeSamples()) and emits Events on a buffered
// channel.
func NewRunner(engine Engine, framesCh <-chan []float32, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{engine: engine, framesCh: framesCh, events: make(chan Event, 32), log: log}
}

// Events returns the VAD event stream.
func (r *Runner) Events() <-chan Event { return r.events }

// Run feeds frames to the engine until ctx is canceled or framesCh closes.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.events)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-r.framesCh:
			if !ok {
				return nil
			}
			ev, err := r.engine.Process(frame)
			if err != nil {
				r.log.Warn("vad: process error", "error", err)
				continue
			}
			if ev == nil {
				continue
			}
			select {
			case r.events <- *ev:
			case <-ctx.Done():
				return ctx.Err()
			default:
				r.log.Warn("vad: event channel full, dropping event", "kind", ev.Kind)
			}
		}
	}
}
