package chunker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coldvox/coldvox/internal/ringbuffer"
	"github.com/coldvox/coldvox/internal/telemetry"
)

// frameSizeSamples is the fixed chunker output frame size: 512 samples at
// 16 kHz is exactly 32 ms (spec.md §4.3).
const frameSizeSamples = 512

// outputRateHz is the chunker's fixed output sample rate.
const outputRateHz = 16000

// pollInterval is how often the chunker checks the ring buffer when it was
// last found empty. 25 ms covers one 32 ms source frame with headroom while
// keeping CPU low (grounded on original_source's chunker.rs poll comment).
const pollInterval = 25 * time.Millisecond

// readBlockSamples bounds how many samples are drained from the ring buffer
// per iteration before yielding back to the poll loop.
const readBlockSamples = 4096

// AudioFrame is the chunker's output unit: exactly frameSizeSamples mono
// float32 samples at outputRateHz, with a capture timestamp derived from
// the cumulative sample count (so it advances deterministically under the
// playback-mode virtual clock, not wall-clock time).
type AudioFrame struct {
	Samples      []float32
	SampleRateHz uint32
	TimestampMs  uint64
}

// DeviceConfig is the chunker's view of the upstream device's negotiated
// format; changing it triggers a resampler rebuild.
type DeviceConfig struct {
	SampleRateHz uint32
	Channels     uint32
}

// Config configures a Chunker's output shape and resampling quality.
type Config struct {
	Quality Quality
}

// DefaultConfig returns spec.md's default: Balanced quality.
func DefaultConfig() Config {
	return Config{Quality: Balanced}
}

// Clock abstracts the poll-loop idle wait so the runtime supervisor can
// substitute a virtual clock in accelerated/deterministic playback mode
// (spec.md's supplemented COLDVOX_PLAYBACK_MODE knob) instead of sleeping
// in wall-clock time.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Option configures optional Chunker behavior.
type Option func(*Chunker)

// WithClock overrides the poll-loop clock; defaults to wall-clock time.
func WithClock(c Clock) Option {
	return func(ch *Chunker) { ch.clock = c }
}

// Chunker reads the capture ring buffer, downmixes to mono, resamples to
// 16 kHz, and emits fixed 512-sample frames on its Broadcaster. One Chunker
// per active capture stream; lives as long as the Run context.
type Chunker struct {
	ring  *ringbuffer.RingBuffer
	sink  *telemetry.Sink
	log   *slog.Logger
	cfg   Config
	out   *Broadcaster
	clock Clock

	deviceCfg atomic.Pointer[DeviceConfig]

	current        DeviceConfig
	resampler      *Resampler
	accum          []float32
	samplesEmitted uint64
}

// New constructs a Chunker bound to ring, with events delivered through its
// own Broadcaster (retrieve it via Broadcaster()).
func New(ring *ringbuffer.RingBuffer, sink *telemetry.Sink, log *slog.Logger, cfg Config, opts ...Option) *Chunker {
	if log == nil {
		log = slog.Default()
	}
	c := &Chunker{
		ring:  ring,
		sink:  sink,
		log:   log,
		cfg:   cfg,
		out:   NewBroadcaster(),
		clock: realClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Broadcaster returns the frame fan-out; subscribe before calling Run.
func (c *Chunker) Broadcaster() *Broadcaster { return c.out }

// SetDeviceConfig informs the chunker of the upstream device's current
// rate/channels. Safe to call concurrently with Run (e.g. from a hotplug
// handler); the new config takes effect on the next poll iteration.
func (c *Chunker) SetDeviceConfig(cfg DeviceConfig) {
	c.deviceCfg.Store(&cfg)
}

// Run drains the ring buffer until ctx is canceled, emitting frames onto
// the broadcaster as they become available.
func (c *Chunker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		c.reconfigureIfChanged()

		drained := c.drainRingBuffer()
		if drained == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-c.clock.After(pollInterval):
			}
			continue
		}
	}
}

// reconfigureIfChanged rebuilds the resampler when the device config has
// changed since the last check (spec.md §4.3: "on device-config change,
// rebuild the resampler").
func (c *Chunker) reconfigureIfChanged() {
	cfg := c.deviceCfg.Load()
	if cfg == nil {
		return
	}
	if *cfg == c.current {
		return
	}
	c.current = *cfg
	c.resampler = NewResampler(int(cfg.SampleRateHz), outputRateHz, c.cfg.Quality)
	c.log.Info("chunker: reconfigured for device change", "sample_rate_hz", cfg.SampleRateHz, "channels", cfg.Channels)
}

// drainRingBuffer pulls up to readBlockSamples samples from the ring
// buffer, processes them, and returns the number of raw samples consumed.
func (c *Chunker) drainRingBuffer() int {
	total := 0
	for total < readBlockSamples {
		chunk := c.ring.Pop()
		if chunk == nil {
			break
		}
		total += len(chunk)
		c.process(chunk)
	}
	return total
}

// process downmixes one raw chunk to mono, resamples it, accumulates the
// result, and flushes any complete 512-sample frames.
func (c *Chunker) process(raw []float32) {
	mono := c.downmix(raw)

	var resampled []float32
	if c.resampler != nil {
		resampled = c.resampler.Resample(mono)
	} else {
		resampled = mono
	}

	c.accum = append(c.accum, resampled...)
	c.flushReadyFrames()

	if c.sink != nil {
		c.sink.MarkStageActive(telemetry.StageChunker)
	}
}

// downmix averages all channels to mono. With channels <= 1 (unknown or
// already mono) it is a passthrough.
func (c *Chunker) downmix(raw []float32) []float32 {
	ch := int(c.current.Channels)
	if ch <= 1 || len(raw)%ch != 0 {
		return raw
	}
	frames := len(raw) / ch
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for j := 0; j < ch; j++ {
			sum += raw[i*ch+j]
		}
		out[i] = sum / float32(ch)
	}
	return out
}

// flushReadyFrames pops exactly frameSizeSamples at a time off the front of
// the accumulator and broadcasts each as an AudioFrame, mirroring
// original_source's VecDeque-based chunker.
func (c *Chunker) flushReadyFrames() {
	for len(c.accum) >= frameSizeSamples {
		samples := make([]float32, frameSizeSamples)
		copy(samples, c.accum[:frameSizeSamples])
		c.accum = c.accum[frameSizeSamples:]

		c.samplesEmitted += frameSizeSamples
		frame := AudioFrame{
			Samples:      samples,
			SampleRateHz: outputRateHz,
			TimestampMs:  c.samplesEmitted * 1000 / outputRateHz,
		}

		delivered := c.out.Send(frame)
		if delivered == 0 {
			c.log.Debug("chunker: no subscribers, discarding frame")
		}
	}
}
