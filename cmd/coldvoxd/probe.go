package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	"github.com/coldvox/coldvox/internal/chunker"
	"github.com/coldvox/coldvox/internal/ringbuffer"
	"github.com/coldvox/coldvox/internal/sttplugin"
	"github.com/coldvox/coldvox/internal/sttproc"
	"github.com/coldvox/coldvox/internal/telemetry"
	"github.com/coldvox/coldvox/internal/vad"
)

// probeCmd reuses the library pipeline (chunker, VAD, the mock STT plugin)
// against a WAV file instead of a live microphone, for local diagnostics
// without needing real hardware (spec.md's supplemented mic-probe feature).
var probeCmd = &cobra.Command{
	Use:   "probe <wav-file>",
	Short: "Run a WAV file through the ring buffer->chunker->VAD->STT pipeline and print transcripts",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func runProbe(_ *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("probe: open %q: %w", args[0], err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("probe: %q is not a valid WAV file", args[0])
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("probe: decode: %w", err)
	}

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / 32768.0
	}
	channels := buf.Format.NumChannels
	if channels > 1 {
		samples = downmixToMono(samples, channels)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	sink := telemetry.NewSink()

	ring := ringbuffer.New()
	cfg := chunker.Config{Quality: chunker.Balanced}
	chunk := chunker.New(ring, sink, log, cfg)
	chunk.SetDeviceConfig(chunker.DeviceConfig{SampleRateHz: uint32(buf.Format.SampleRate), Channels: 1})

	audioFramesCh, unsubAudio := chunk.Broadcaster().Subscribe(256)
	defer unsubAudio()
	rawFramesCh, unsubVAD := chunk.Broadcaster().Subscribe(256)
	defer unsubVAD()

	plugins := sttplugin.New(sttplugin.SelectionConfig{Fallbacks: []string{"mock", "noop"}}, sink, log)
	for _, register := range registerOptionalPlugins {
		register(plugins.Registry())
	}

	vadFramesCh := make(chan []float32, 256)
	go func() {
		defer close(vadFramesCh)
		for frame := range rawFramesCh {
			vadFramesCh <- frame.Samples
		}
	}()

	engine := vad.NewEnergyEngine(vad.DefaultEnergyConfig())
	runner := vad.NewRunner(engine, vadFramesCh, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = runner.Run(ctx) }()

	proc := sttproc.New(audioFramesCh, runner.Events(), plugins, sink, log)
	go proc.Run(ctx)

	if _, err := plugins.Initialize(ctx); err != nil {
		return fmt.Errorf("probe: initialize stt: %w", err)
	}

	// Chunker.Run polls the ring buffer until ctx is canceled; it never
	// returns on its own just because the ring has drained, so it is run
	// in the background, concurrently with the push loop below (the ring
	// buffer holds only a few seconds of audio, so a longer WAV file would
	// overflow it if pushed all at once before the consumer starts).
	chunkerDone := make(chan struct{})
	go func() {
		defer close(chunkerDone)
		_ = chunk.Run(ctx)
	}()

	for i := 0; i+ringChunkSamples <= len(samples); i += ringChunkSamples {
		for !ring.Push(samples[i:i+ringChunkSamples]) && ctx.Err() == nil {
			time.Sleep(5 * time.Millisecond)
		}
	}

	audioDuration := time.Duration(len(samples)) * time.Second / time.Duration(buf.Format.SampleRate)
	deadline := time.NewTimer(audioDuration + 2*time.Second)
	defer deadline.Stop()

	var transcripts []string
collect:
	for {
		select {
		case ev, ok := <-proc.Events():
			if !ok {
				break collect
			}
			if ev.Kind == sttplugin.EventFinal && ev.Text != "" {
				transcripts = append(transcripts, ev.Text)
			}
		case <-deadline.C:
			break collect
		}
	}
	cancel()
	<-chunkerDone

	for _, t := range transcripts {
		fmt.Println(t)
	}
	return nil
}

// ringChunkSamples mirrors a typical 32ms device callback size at 16kHz,
// keeping each ring.Push within the ring buffer's per-slot capacity.
const ringChunkSamples = 512

func downmixToMono(samples []float32, channels int) []float32 {
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
