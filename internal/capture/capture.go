// Package capture implements C2 Capture Engine: the malgo audio callback,
// a watchdog against stalled streams, peak-based silence classification, and
// the ring-buffer producer side.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/coldvox/coldvox/internal/device"
	"github.com/coldvox/coldvox/internal/ringbuffer"
	"github.com/coldvox/coldvox/internal/telemetry"
)

const (
	// watchdogTimeout is how long the engine waits for a frame before
	// declaring the stream stalled (spec.md §4.2).
	watchdogTimeout = 5 * time.Second
	// recoverDelay is the pause before reopening after a watchdog trip.
	recoverDelay = 2 * time.Second
	// maxRecoveryAttempts bounds consecutive watchdog-triggered reopens
	// before the engine gives up and reports a fatal error.
	maxRecoveryAttempts = 3
	// silencePeakThreshold is the default linear-amplitude cutoff below
	// which a frame is classified silent.
	silencePeakThreshold = 0.02
)

// Counters exposes the atomic counters named in spec.md §4.2.
type Counters struct {
	FramesCaptured atomic.Uint64
	FramesDropped  atomic.Uint64
	Disconnections atomic.Uint64
	Reconnections  atomic.Uint64
	LastFrameUnix  atomic.Int64 // unix nanos
}

// Engine owns one opened device and feeds the ring buffer. One Engine per
// active capture stream; the supervisor recreates it on watchdog failure.
type Engine struct {
	devMgr  *device.Manager
	ring    *ringbuffer.RingBuffer
	sink    *telemetry.Sink
	log     *slog.Logger
	levels  telemetry.LevelMeter
	counters Counters

	deviceName        string
	preferredRate     uint32
	preferredChannels uint32

	mu      sync.Mutex
	running atomic.Bool
	opened  *device.Opened

	watchdogKick chan struct{}
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithDeviceName pins the engine to a specific capture device name.
func WithDeviceName(name string) Option {
	return func(e *Engine) { e.deviceName = name }
}

// WithPreferredFormat sets the negotiated input rate/channels before
// falling back to whatever the device actually supports.
func WithPreferredFormat(rateHz, channels uint32) Option {
	return func(e *Engine) {
		e.preferredRate = rateHz
		e.preferredChannels = channels
	}
}

// New constructs a capture engine bound to devMgr and ring.
func New(devMgr *device.Manager, ring *ringbuffer.RingBuffer, sink *telemetry.Sink, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		devMgr:            devMgr,
		ring:              ring,
		sink:              sink,
		log:               log,
		preferredRate:     16000,
		preferredChannels: 1,
		watchdogKick:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Counters returns the live counter set for telemetry readers.
func (e *Engine) Counters() *Counters { return &e.counters }

// OpenedConfig returns the most recently negotiated device config and
// whether the engine has opened a device yet. Callers (the supervisor) poll
// this to keep the chunker's resampler in sync with whatever malgo actually
// negotiated, since the preferred format passed to Open is only a request.
func (e *Engine) OpenedConfig() (device.Config, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opened == nil {
		return device.Config{}, false
	}
	return e.opened.Config, true
}

// Run opens the device and blocks, supervising the watchdog, until ctx is
// canceled or recovery attempts are exhausted. On watchdog trips it closes
// and reopens the stream in place; callers that want device-switch handling
// should run Run again with a different device name.
func (e *Engine) Run(ctx context.Context) error {
	attempts := 0
	for {
		if err := e.openAndCapture(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempts++
			e.counters.Disconnections.Add(1)
			e.log.Warn("capture: stream stalled or failed", "error", err, "attempt", attempts)
			if attempts > maxRecoveryAttempts {
				return fmt.Errorf("capture: exhausted %d recovery attempts: %w", maxRecoveryAttempts, err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(recoverDelay):
			}
			e.counters.Reconnections.Add(1)
			continue
		}
		return nil
	}
}

// openAndCapture opens the device, runs until the watchdog trips, a fatal
// device error occurs, or ctx is canceled (in which case it returns nil).
func (e *Engine) openAndCapture(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)

	callbacks := malgo.DeviceCallbacks{
		Data: e.onRecvFrames,
	}

	opened, err := e.devMgr.Open(e.deviceName, e.preferredRate, e.preferredChannels, callbacks)
	if err != nil {
		return fmt.Errorf("capture: open device: %w", err)
	}
	e.mu.Lock()
	e.opened = opened
	e.mu.Unlock()

	if err := opened.Device.Start(); err != nil {
		opened.Device.Uninit()
		return fmt.Errorf("capture: start device: %w", err)
	}
	defer func() {
		opened.Device.Uninit()
	}()

	e.counters.LastFrameUnix.Store(time.Now().UnixNano())
	watchdog := time.NewTimer(watchdogTimeout)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.watchdogKick:
			if !watchdog.Stop() {
				<-watchdog.C
			}
			watchdog.Reset(watchdogTimeout)
		case <-watchdog.C:
			return fmt.Errorf("capture: watchdog timeout after %s", watchdogTimeout)
		}
	}
}

// onRecvFrames is the malgo audio callback. It must never block: all work
// is O(frame size); it allocates one slice per callback to decode the
// samples, which are then copied into ring buffer slots (grounded on
// teacher's capture loop and ColonelBlimp's atomic-swap callback pattern).
func (e *Engine) onRecvFrames(_, input []byte, frameCount uint32) {
	if !e.running.Load() {
		return
	}

	samples := bytesToFloat32(input)

	e.counters.FramesCaptured.Add(uint64(len(samples)))
	e.counters.LastFrameUnix.Store(time.Now().UnixNano())
	select {
	case e.watchdogKick <- struct{}{}:
	default:
	}

	if e.sink != nil {
		peak := e.levels.Peak(samples)
		e.sink.AudioLevelDBFSx10.SetInt(int64(telemetry.DBFS(peak) * 10))
	}

	// split into pushes of at most one ring buffer slot (512 samples)
	const slotSamples = 512
	for len(samples) > 0 {
		n := len(samples)
		if n > slotSamples {
			n = slotSamples
		}
		if !e.ring.Push(samples[:n]) {
			e.counters.FramesDropped.Add(1)
			if e.sink != nil {
				e.sink.FramesDropped.Add(1)
			}
		}
		samples = samples[n:]
	}
}

// IsSilent classifies a frame using the default peak threshold; exposed so
// the chunker/VAD layer can reuse the same rule if it chooses to.
func (e *Engine) IsSilent(samples []float32) bool {
	return e.levels.IsSilent(samples, silencePeakThreshold)
}

// bytesToFloat32 decodes a little-endian f32 PCM byte slice into a newly
// allocated []float32; the byte buffer (which malgo owns and reuses between
// callbacks) is not retained.
func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
