package sttplugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coldvox/coldvox/internal/telemetry"
)

// SelectionConfig is spec.md §4.7's `{preferred?, fallbacks, require_local,
// max_memory_mb?, required_language?, failover, gc_policy}`.
type SelectionConfig struct {
	Preferred        string
	Fallbacks        []string
	RequireLocal     bool
	MaxMemoryMB      int // 0 = unbounded
	RequiredLanguage string

	FailoverThreshold    int           // consecutive fatal errors before cooldown
	FailoverCooldown     time.Duration
	ModelTTL             time.Duration // idle duration before GC unloads a plugin
	GCDisabled           bool
}

// DefaultSelectionConfig returns permissive defaults: prefer nothing
// specific, fall back through noop, 3 consecutive fatal errors trips
// cooldown, 30s cooldown, 5 minute idle TTL, GC enabled.
func DefaultSelectionConfig() SelectionConfig {
	return SelectionConfig{
		Fallbacks:         []string{"mock", "noop"},
		FailoverThreshold: 3,
		FailoverCooldown:  30 * time.Second,
		ModelTTL:          5 * time.Minute,
	}
}

type pluginSlot struct {
	plugin       Plugin
	lastActiveAt time.Time
	fatalStreak  int
	cooldownTill time.Time
}

// Manager owns the registry, the current active plugin, and a warm pool of
// loaded-but-idle plugins (spec.md §4.7).
type Manager struct {
	registry *Registry
	cfg      SelectionConfig
	sink     *telemetry.Sink
	log      *slog.Logger

	mu      sync.Mutex
	current string
	idle    map[string]*pluginSlot
}

// New constructs a Manager with builtins pre-registered.
func New(cfg SelectionConfig, sink *telemetry.Sink, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	reg := NewRegistry()
	RegisterBuiltins(reg)
	return &Manager{
		registry: reg,
		cfg:      cfg,
		sink:     sink,
		log:      log,
		idle:     make(map[string]*pluginSlot),
	}
}

// Registry exposes the underlying registry so callers (e.g. a //go:build
// vosk factory) can add optional plugins before Initialize.
func (m *Manager) Registry() *Registry { return m.registry }

// Initialize selects and initializes the best available plugin: preferred,
// then fallbacks in order, then best-available, then noop as the ultimate
// fallback (spec.md §4.7).
func (m *Manager) Initialize(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := []string{}
	if m.cfg.Preferred != "" {
		candidates = append(candidates, m.cfg.Preferred)
	}
	candidates = append(candidates, m.cfg.Fallbacks...)

	for _, id := range candidates {
		plugin, err := m.tryLoad(ctx, id)
		if err != nil {
			m.log.Warn("sttplugin: candidate unavailable", "id", id, "error", err)
			continue
		}
		m.current = id
		m.idle[id] = &pluginSlot{plugin: plugin, lastActiveAt: time.Now()}
		return id, nil
	}

	if best, err := m.registry.CreateBestAvailable(); err == nil {
		if err := best.Initialize(ctx); err == nil {
			id := best.Info().ID
			m.current = id
			m.idle[id] = &pluginSlot{plugin: best, lastActiveAt: time.Now()}
			return id, nil
		}
	}

	m.log.Warn("sttplugin: no plugins available, using noop")
	noop, _ := m.registry.Create("noop")
	_ = noop.Initialize(ctx)
	m.current = "noop"
	m.idle["noop"] = &pluginSlot{plugin: noop, lastActiveAt: time.Now()}
	return "noop", nil
}

func (m *Manager) tryLoad(ctx context.Context, id string) (Plugin, error) {
	if slot, ok := m.idle[id]; ok && time.Now().Before(slot.cooldownTill) {
		return nil, fmt.Errorf("sttplugin: %q is in failover cooldown", id)
	}
	plugin, err := m.registry.Create(id)
	if err != nil {
		return nil, err
	}
	if !plugin.IsAvailable() {
		return nil, fmt.Errorf("sttplugin: %q reports unavailable", id)
	}
	if err := plugin.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("sttplugin: initialize %q: %w", id, err)
	}
	return plugin, nil
}

// Current returns the id of the active plugin.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// ListPlugins returns static info for every registered plugin.
func (m *Manager) ListPlugins() []Info {
	return m.registry.Available()
}

// Switch switches the active plugin to id, warm-starting from the idle
// pool if already loaded there.
func (m *Manager) Switch(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slot, ok := m.idle[id]; ok {
		if time.Now().Before(slot.cooldownTill) {
			return fmt.Errorf("sttplugin: %q is in failover cooldown", id)
		}
		m.current = id
		slot.lastActiveAt = time.Now()
		return nil
	}
	plugin, err := m.tryLoad(ctx, id)
	if err != nil {
		return err
	}
	m.idle[id] = &pluginSlot{plugin: plugin, lastActiveAt: time.Now()}
	m.current = id
	return nil
}

// ProcessAudio feeds samples to the active plugin, handling failover on
// fatal errors per spec.md §4.7.
func (m *Manager) ProcessAudio(ctx context.Context, samples []int16) (*TranscriptionEvent, error) {
	m.mu.Lock()
	slot, ok := m.idle[m.current]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoPluginSelected
	}

	ev, err := slot.plugin.ProcessAudio(ctx, samples)
	if err == nil {
		m.mu.Lock()
		slot.lastActiveAt = time.Now()
		slot.fatalStreak = 0
		m.mu.Unlock()
		return ev, nil
	}

	var pe *PluginError
	if errors.As(err, &pe) && pe.Class == ErrorTransient {
		return nil, err
	}

	return nil, m.handleFatal(ctx, slot, err)
}

// handleFatal counts consecutive fatal errors and, once the threshold is
// crossed, puts the plugin into cooldown and fails over to the next
// fallback (spec.md §4.7).
func (m *Manager) handleFatal(ctx context.Context, slot *pluginSlot, cause error) error {
	m.mu.Lock()
	slot.fatalStreak++
	tripped := slot.fatalStreak >= m.cfg.FailoverThreshold
	if tripped {
		slot.cooldownTill = time.Now().Add(m.cfg.FailoverCooldown)
		slot.fatalStreak = 0
	}
	m.mu.Unlock()

	if !tripped {
		return fmt.Errorf("sttplugin: fatal error (not yet failing over): %w", cause)
	}

	m.log.Warn("sttplugin: failover threshold tripped, trying fallbacks", "cause", cause)
	for _, id := range m.cfg.Fallbacks {
		if err := m.Switch(ctx, id); err == nil {
			if m.sink != nil {
				m.sink.SttFailoverCount.Inc()
			}
			return fmt.Errorf("sttplugin: failed over to %q after fatal error: %w", id, cause)
		}
	}
	if err := m.Switch(ctx, "noop"); err == nil {
		m.log.Warn("sttplugin: all fallbacks exhausted, using noop")
		if m.sink != nil {
			m.sink.SttFailoverCount.Inc()
		}
		return fmt.Errorf("sttplugin: failed over to noop after fatal error: %w", cause)
	}
	return fmt.Errorf("sttplugin: failover exhausted and noop unavailable: %w", cause)
}

// Finalize calls Finalize on the active plugin.
func (m *Manager) Finalize(ctx context.Context) (*TranscriptionEvent, error) {
	m.mu.Lock()
	slot, ok := m.idle[m.current]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoPluginSelected
	}
	return slot.plugin.Finalize(ctx)
}

// UnloadAll unloads every loaded plugin (used by the activation switch on
// mode change, per spec.md §4.6's "unload all STT plugins").
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, slot := range m.idle {
		_ = slot.plugin.Unload()
		delete(m.idle, id)
	}
	m.current = ""
}

// GC unloads any idle plugin that hasn't been active for longer than
// ModelTTL, except the currently-active one (spec.md §4.7). No-op if GC is
// disabled in the config.
func (m *Manager) GC() {
	if m.cfg.GCDisabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, slot := range m.idle {
		if id == m.current {
			continue
		}
		if now.Sub(slot.lastActiveAt) < m.cfg.ModelTTL {
			continue
		}
		_ = slot.plugin.Unload()
		delete(m.idle, id)
		if m.sink != nil {
			m.sink.SttGCCount.Inc()
		}
	}
}

// RunGCLoop runs GC every interval until ctx is canceled.
func (m *Manager) RunGCLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.GC()
		}
	}
}
