// Package config loads coldvoxd's AppRuntimeOptions (spec.md §6) from a
// config file, environment variables, and CLI flags, via viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/coldvox/coldvox/internal/activation"
	"github.com/coldvox/coldvox/internal/chunker"
	"github.com/coldvox/coldvox/internal/injection"
	"github.com/coldvox/coldvox/internal/sttplugin"
	"github.com/coldvox/coldvox/internal/supervisor"
	"github.com/coldvox/coldvox/internal/vad"
)

// AppName names the XDG config subdirectory and env-var prefix.
const AppName = "coldvox"

// EnvPrefix is the prefix viper applies to every config key when checking
// the environment (e.g. resampler_quality -> COLDVOX_RESAMPLER_QUALITY).
// The spec-named overrides (VOSK_MODEL_PATH, COLDVOX_PLAYBACK_MODE, ...)
// are read directly by the packages that own them, not through viper.
const EnvPrefix = "COLDVOX"

// DefaultConfig is written to the XDG config dir the first time coldvoxd
// runs with no config file present.
const DefaultConfig = `# ColdVox configuration

device: ""                 # capture device name; empty = OS default
sample_rate_hz: 0           # preferred capture rate; 0 = device default
channels: 0                 # preferred capture channels; 0 = device default
resampler_quality: "balanced" # fast | balanced | best

activation_mode: "vad"      # vad | hotkey

stt:
  preferred: ""
  fallbacks: ["mock", "noop"]
  require_local: false
  max_memory_mb: 0
  required_language: ""
  failover_threshold: 3
  failover_cooldown_ms: 30000
  model_ttl_ms: 300000

injection:
  enabled: false
  allow_kdotool: false
  allow_enigo: false
  redact_logs: true
`

// Settings is the raw viper-unmarshaled shape; Resolve translates it into
// the concrete component configs supervisor.Options wants.
type Settings struct {
	Device           string `mapstructure:"device"`
	SampleRateHz     uint32 `mapstructure:"sample_rate_hz"`
	Channels         uint32 `mapstructure:"channels"`
	ResamplerQuality string `mapstructure:"resampler_quality"`
	ActivationMode   string `mapstructure:"activation_mode"`

	STT struct {
		Preferred          string   `mapstructure:"preferred"`
		Fallbacks          []string `mapstructure:"fallbacks"`
		RequireLocal       bool     `mapstructure:"require_local"`
		MaxMemoryMB        int      `mapstructure:"max_memory_mb"`
		RequiredLanguage   string   `mapstructure:"required_language"`
		FailoverThreshold  int      `mapstructure:"failover_threshold"`
		FailoverCooldownMs int      `mapstructure:"failover_cooldown_ms"`
		ModelTTLMs         int      `mapstructure:"model_ttl_ms"`
	} `mapstructure:"stt"`

	Injection struct {
		Enabled      bool `mapstructure:"enabled"`
		AllowKdotool bool `mapstructure:"allow_kdotool"`
		AllowEnigo   bool `mapstructure:"allow_enigo"`
		RedactLogs   bool `mapstructure:"redact_logs"`
	} `mapstructure:"injection"`
}

// Init wires viper's defaults, env-prefix, and config search order
// (current directory, then $XDG_CONFIG_HOME/coldvox/), writing a default
// config file into the XDG dir the first time none is found.
func Init() error {
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	appConfigDir := filepath.Join(configDir, AppName)
	viper.AddConfigPath(appConfigDir)

	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("config: read: %w", err)
		}
		if err := ensureConfigExists(appConfigDir); err != nil {
			return err
		}
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("config: read generated default: %w", err)
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("device", "")
	viper.SetDefault("sample_rate_hz", 0)
	viper.SetDefault("channels", 0)
	viper.SetDefault("resampler_quality", "balanced")
	viper.SetDefault("activation_mode", "vad")
	viper.SetDefault("stt.fallbacks", []string{"mock", "noop"})
	viper.SetDefault("stt.failover_threshold", 3)
	viper.SetDefault("stt.failover_cooldown_ms", 30000)
	viper.SetDefault("stt.model_ttl_ms", 300000)
	viper.SetDefault("injection.enabled", false)
	viper.SetDefault("injection.redact_logs", true)
}

func ensureConfigExists(dir string) error {
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil || !os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultConfig), 0o644); err != nil {
		return fmt.Errorf("config: write default: %w", err)
	}
	return nil
}

// Get unmarshals viper's current state into Settings.
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &s, nil
}

// Resolve translates Settings into supervisor.Options (spec.md §6's
// `AppRuntimeOptions`).
func (s *Settings) Resolve() (supervisor.Options, error) {
	opts := supervisor.DefaultOptions()

	opts.DeviceName = s.Device
	opts.PreferredSampleRateHz = s.SampleRateHz
	opts.PreferredChannels = s.Channels

	switch s.ResamplerQuality {
	case "fast":
		opts.ChunkerQuality = chunker.Fast
	case "best", "quality":
		opts.ChunkerQuality = chunker.HighQuality
	case "balanced", "":
		opts.ChunkerQuality = chunker.Balanced
	default:
		return opts, fmt.Errorf("config: resampler_quality: unknown value %q", s.ResamplerQuality)
	}

	switch s.ActivationMode {
	case "hotkey":
		opts.ActivationMode = activation.ModeHotkey
	case "vad", "":
		opts.ActivationMode = activation.ModeVAD
	default:
		return opts, fmt.Errorf("config: activation_mode: unknown value %q", s.ActivationMode)
	}

	opts.VADConfig = vad.DefaultEnergyConfig()

	opts.STTSelection = sttplugin.SelectionConfig{
		Preferred:         s.STT.Preferred,
		Fallbacks:         s.STT.Fallbacks,
		RequireLocal:      s.STT.RequireLocal,
		MaxMemoryMB:       s.STT.MaxMemoryMB,
		RequiredLanguage:  s.STT.RequiredLanguage,
		FailoverThreshold: s.STT.FailoverThreshold,
		FailoverCooldown:  time.Duration(s.STT.FailoverCooldownMs) * time.Millisecond,
		ModelTTL:          time.Duration(s.STT.ModelTTLMs) * time.Millisecond,
	}

	opts.InjectionEnabled = s.Injection.Enabled
	opts.InjectionConfig = injection.DefaultConfig()
	opts.InjectionConfig.AllowKdotool = s.Injection.AllowKdotool
	opts.InjectionConfig.AllowEnigo = s.Injection.AllowEnigo
	opts.InjectionConfig.RedactLogs = s.Injection.RedactLogs

	return opts, nil
}
