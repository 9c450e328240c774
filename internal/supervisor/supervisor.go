// Package supervisor implements C11 Runtime Supervisor: it wires every
// other component together in spec.md §4.11's exact startup order and
// tears them down in the matching bounded-shutdown order, mirroring the
// teacher's cmd/assistant/main.go orchestration.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coldvox/coldvox/internal/activation"
	"github.com/coldvox/coldvox/internal/capture"
	"github.com/coldvox/coldvox/internal/chunker"
	"github.com/coldvox/coldvox/internal/device"
	"github.com/coldvox/coldvox/internal/hotkey"
	"github.com/coldvox/coldvox/internal/injection"
	"github.com/coldvox/coldvox/internal/playback"
	"github.com/coldvox/coldvox/internal/ringbuffer"
	"github.com/coldvox/coldvox/internal/sttplugin"
	"github.com/coldvox/coldvox/internal/sttproc"
	"github.com/coldvox/coldvox/internal/telemetry"
	"github.com/coldvox/coldvox/internal/vad"
)

// shutdownTimeout bounds how long Stop waits for all spawned tasks to
// finish before forcing a return (spec.md §4.11's "await all tasks with a
// 5 s cap").
const shutdownTimeout = 5 * time.Second

// deviceConfigPollInterval bounds how long it takes to notice the capture
// engine's first negotiated device config after startup; it matches
// internal/device's own hotplug scan cadence. Every hotplug event from the
// device manager also triggers an immediate, out-of-band resync.
const deviceConfigPollInterval = 250 * time.Millisecond

// Options configures the full pipeline. Zero values pick spec.md's
// defaults where one exists.
type Options struct {
	DeviceName            string
	PreferredSampleRateHz uint32
	PreferredChannels     uint32
	ChunkerQuality        chunker.Quality
	ActivationMode        activation.Mode
	HotkeyBinding         *hotkey.Binding // nil uses hotkey.DefaultBinding
	VADConfig             vad.EnergyConfig
	STTSelection          sttplugin.SelectionConfig
	InjectionEnabled      bool
	InjectionConfig       injection.Config
	// InjectionTargetAppFunc resolves the focused app/window at injection
	// time; nil uses an empty Context.
	InjectionTargetAppFunc func() injection.Context
}

// DefaultOptions returns spec.md's defaults: VAD activation, energy VAD,
// Balanced resampling, permissive STT fallback, injection disabled.
func DefaultOptions() Options {
	return Options{
		ChunkerQuality:   chunker.Balanced,
		ActivationMode:   activation.ModeVAD,
		VADConfig:        vad.DefaultEnergyConfig(),
		STTSelection:     sttplugin.DefaultSelectionConfig(),
		InjectionEnabled: false,
		InjectionConfig:  injection.DefaultConfig(),
	}
}

// Supervisor owns every pipeline component and the goroutines driving them.
type Supervisor struct {
	opts Options
	log  *slog.Logger

	sink     *telemetry.Sink
	devMgr   *device.Manager
	ring     *ringbuffer.RingBuffer
	capEng   *capture.Engine
	chunk    *chunker.Chunker
	sw       *activation.Switch
	plugins  *sttplugin.Manager
	proc     *sttproc.Processor
	injector *injection.Manager // nil when injection is disabled

	cancel context.CancelFunc
	wg     sync.WaitGroup

	unsubChunkerForSTT    func()
	unsubChunkerForVAD    func()
	unsubActivationForSTT func()
}

// New assembles every component per spec.md §4.11 steps 1-7 but does not
// start any goroutines yet; call Start to begin running.
func New(opts Options, log *slog.Logger) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}

	// Step 1: telemetry sink.
	sink := telemetry.NewSink()

	// Step 2 (part one): open the device manager (capture.Engine performs
	// the actual Open call internally once Run starts).
	devMgr, err := device.New(log)
	if err != nil {
		return nil, fmt.Errorf("supervisor: device manager: %w", err)
	}

	ring := ringbuffer.New()
	capEng := capture.New(devMgr, ring, sink, log,
		capture.WithDeviceName(opts.DeviceName),
		capture.WithPreferredFormat(opts.PreferredSampleRateHz, opts.PreferredChannels),
	)

	// Step 3: chunker, with the playback-mode virtual clock wired in.
	mode, speed := playback.ModeFromEnv()
	chunkerCfg := chunker.Config{Quality: opts.ChunkerQuality}
	chunk := chunker.New(ring, sink, log, chunkerCfg, chunker.WithClock(playback.New(mode, speed)))

	// Step 4: VAD or hotkey listener as the activation source.
	vadFramesCh := make(chan []float32, 8)
	energyEngine := vad.NewEnergyEngine(opts.VADConfig)
	vadRunner := vad.NewRunner(energyEngine, vadFramesCh, log)

	binding := hotkey.DefaultBinding()
	if opts.HotkeyBinding != nil {
		binding = *opts.HotkeyBinding
	}
	hotkeyListener := hotkey.New(binding, log)

	plugins := sttplugin.New(opts.STTSelection, sink, log)

	sources := map[activation.Mode]activation.Source{
		activation.ModeVAD:    vadRunner,
		activation.ModeHotkey: hotkeyListener,
	}
	sw, err := activation.New(opts.ActivationMode, sources, plugins.UnloadAll, log)
	if err != nil {
		return nil, fmt.Errorf("supervisor: activation switch: %w", err)
	}

	var injector *injection.Manager
	if opts.InjectionEnabled {
		injector, err = injection.New(opts.InjectionConfig, sink, log)
		if err != nil {
			return nil, fmt.Errorf("supervisor: injection manager: %w", err)
		}
	}

	s := &Supervisor{
		opts:     opts,
		log:      log,
		sink:     sink,
		devMgr:   devMgr,
		ring:     ring,
		capEng:   capEng,
		chunk:    chunk,
		sw:       sw,
		plugins:  plugins,
		injector: injector,
	}

	// Step 5 (fanout mpsc -> broadcast for VAD events) is realized by
	// feeding the chunker's own broadcaster: one subscription drives the
	// VAD runner's frame channel, another feeds the STT processor
	// directly with whole AudioFrames.
	audioFramesCh, unsubSTT := chunk.Broadcaster().Subscribe(32)
	s.unsubChunkerForSTT = unsubSTT

	rawFramesCh, unsubVAD := chunk.Broadcaster().Subscribe(32)
	s.unsubChunkerForVAD = unsubVAD
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fanoutFramesToVAD(rawFramesCh, vadFramesCh)
	}()

	vadEventCh, unsubActivation := sw.Subscribe(32)
	s.unsubActivationForSTT = unsubActivation

	// Step 6/7: STT processor consumes the fanned-out audio and VAD
	// events; if injection is enabled it subscribes to Final events.
	proc := sttproc.New(audioFramesCh, vadEventCh, plugins, sink, log)
	s.proc = proc

	return s, nil
}

// fanoutFramesToVAD extracts raw samples from each AudioFrame and republishes
// them on out, closing out when in closes (spec.md §4.11 step 5).
func fanoutFramesToVAD(in <-chan chunker.AudioFrame, out chan<- []float32) {
	defer close(out)
	for frame := range in {
		select {
		case out <- frame.Samples:
		default:
		}
	}
}

// Start launches every spawned task and installs the signal handler via
// the caller's ctx (spec.md §4.11 step 8: the caller owns signal.Notify).
func (s *Supervisor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.capEng.Run(runCtx); err != nil && runCtx.Err() == nil {
			s.log.Error("supervisor: capture engine stopped", "error", err)
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.chunk.Run(runCtx); err != nil && runCtx.Err() == nil {
			s.log.Error("supervisor: chunker stopped", "error", err)
		}
	}()

	// C1's hotplug scan/debounce loop (spec.md §4.1) and the resync that
	// keeps C3's resampler matched to whatever malgo actually negotiated
	// (spec.md §4.3: "on device-config change, rebuild the resampler").
	s.devMgr.StartScanning(runCtx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watchDeviceConfig(runCtx)
	}()

	s.sw.Start(runCtx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.plugins.Initialize(runCtx); err != nil {
			s.log.Error("supervisor: stt plugin initialize failed", "error", err)
		}
		s.plugins.RunGCLoop(runCtx, s.opts.STTSelection.ModelTTL)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.proc.Run(runCtx)
	}()

	if s.injector != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runInjection(runCtx)
		}()
	}
}

// watchDeviceConfig keeps the chunker's resampler matched to the capture
// engine's negotiated device config: once at startup (as soon as the
// engine finishes opening the device) and again on every hotplug event
// from the device manager (spec.md §4.1/§4.3).
func (s *Supervisor) watchDeviceConfig(ctx context.Context) {
	ticker := time.NewTicker(deviceConfigPollInterval)
	defer ticker.Stop()

	s.syncChunkerDeviceConfig()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncChunkerDeviceConfig()
		case ev, ok := <-s.devMgr.Events():
			if !ok {
				return
			}
			s.log.Info("supervisor: device event", "kind", ev.Kind, "device", ev.Device.Name)
			s.syncChunkerDeviceConfig()
		}
	}
}

// syncChunkerDeviceConfig forwards the capture engine's currently opened
// device.Config into the chunker, triggering a resampler rebuild if it
// changed (internal/chunker/chunker.go's SetDeviceConfig/reconfigureIfChanged).
func (s *Supervisor) syncChunkerDeviceConfig() {
	cfg, ok := s.capEng.OpenedConfig()
	if !ok {
		return
	}
	s.chunk.SetDeviceConfig(chunker.DeviceConfig{SampleRateHz: cfg.SampleRateHz, Channels: cfg.Channels})
}

// runInjection consumes Final transcription events and delivers them to
// the focused application (spec.md §4.11 step 7).
func (s *Supervisor) runInjection(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.proc.Events():
			if !ok {
				return
			}
			if ev.Kind != sttplugin.EventFinal || ev.Text == "" {
				continue
			}
			injCtx := injection.Context{}
			if s.opts.InjectionTargetAppFunc != nil {
				injCtx = s.opts.InjectionTargetAppFunc()
			}
			if _, err := s.injector.Inject(ctx, injCtx, ev.Text); err != nil {
				s.log.Warn("supervisor: injection failed", "error", err)
			}
		}
	}
}

// Stop runs spec.md §4.11's ordered shutdown: capture stop, then abort
// every other task, unload all plugins, and await completion with a 5s
// cap.
func (s *Supervisor) Stop() {
	if s.cancel == nil {
		return
	}

	s.cancel()

	s.unsubChunkerForSTT()
	s.unsubChunkerForVAD()
	s.unsubActivationForSTT()
	s.sw.Stop()
	s.plugins.UnloadAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("supervisor: shutdown complete")
	case <-time.After(shutdownTimeout):
		s.log.Warn("supervisor: shutdown timeout, forcing return")
	}

	if err := s.devMgr.Close(); err != nil {
		s.log.Warn("supervisor: device manager close failed", "error", err)
	}
}

// Sink exposes the telemetry sink for a status/probe CLI command.
func (s *Supervisor) Sink() *telemetry.Sink { return s.sink }

// Plugins exposes the STT plugin manager so callers can register optional,
// build-tag-gated factories (e.g. vosk, whisper) before Start.
func (s *Supervisor) Plugins() *sttplugin.Manager { return s.plugins }

// TranscriptionEvents exposes the STT processor's output stream for
// callers that want to observe transcripts directly (e.g. a probe mode
// that skips injection).
func (s *Supervisor) TranscriptionEvents() <-chan sttplugin.TranscriptionEvent {
	return s.proc.Events()
}
