// Command coldvoxd runs the ColdVox dictation pipeline: capture, VAD or
// hotkey activation, STT, and (optionally) text injection into the
// focused application.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coldvox/coldvox/internal/config"
	"github.com/coldvox/coldvox/internal/sttplugin"
	"github.com/coldvox/coldvox/internal/supervisor"
)

// registerOptionalPlugins collects factory-registration hooks contributed by
// build-tag-gated files (register_vosk.go, register_whisper.go); empty in a
// default build.
var registerOptionalPlugins []func(*sttplugin.Registry)

var rootCmd = &cobra.Command{
	Use:   "coldvoxd",
	Short: "ColdVox voice-to-text dictation pipeline",
	RunE:  runDaemon,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("device", "", "capture device name (empty = OS default)")
	rootCmd.PersistentFlags().String("activation-mode", "vad", "activation source: vad | hotkey")
	rootCmd.PersistentFlags().String("resampler-quality", "balanced", "resampler quality: fast | balanced | best")
	rootCmd.PersistentFlags().Bool("injection-enabled", false, "inject final transcripts into the focused application")

	cobra.CheckErr(viper.BindPFlag("device", rootCmd.PersistentFlags().Lookup("device")))
	cobra.CheckErr(viper.BindPFlag("activation_mode", rootCmd.PersistentFlags().Lookup("activation-mode")))
	cobra.CheckErr(viper.BindPFlag("resampler_quality", rootCmd.PersistentFlags().Lookup("resampler-quality")))
	cobra.CheckErr(viper.BindPFlag("injection.enabled", rootCmd.PersistentFlags().Lookup("injection-enabled")))

	rootCmd.AddCommand(probeCmd)
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(_ *cobra.Command, _ []string) error {
	settings, err := config.Get()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	opts, err := settings.Resolve()
	if err != nil {
		return fmt.Errorf("resolve config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	sup, err := supervisor.New(opts, log)
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}
	for _, register := range registerOptionalPlugins {
		register(sup.Plugins().Registry())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sup.Start(ctx)
	log.Info("coldvoxd: pipeline started", "activation_mode", opts.ActivationMode, "injection_enabled", opts.InjectionEnabled)

	<-sigChan
	log.Info("coldvoxd: shutdown signal received")
	sup.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "coldvoxd: %v\n", err)
		os.Exit(1)
	}
}
