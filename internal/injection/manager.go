package injection

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coldvox/coldvox/internal/telemetry"
)

// Manager tries injection methods in a fixed preference order, skipping
// any method presently in cooldown for the target app, bounded by an
// overall latency budget — grounded on original_source's
// app/src/text_injection/mod.rs::inject (clipboard+paste, then direct
// typing, then clipboard-only) generalized to the full Method set and
// per_app cooldown table from coldvox-text-injection/src/types.rs.
type Manager struct {
	cfg       Config
	order     []Injector
	cooldowns *cooldownTable
	sink      *telemetry.Sink
	log       *slog.Logger
}

// defaultOrder is the method preference order: direct insertion first,
// then the clipboard combo, then opt-in assists, with NoOp always last.
func defaultOrder(cfg Config, focus FocusProvider) []Injector {
	order := []Injector{
		newAtspiInjector(focus),
		newClipboardPasteInjector(cfg, focus),
	}
	if cfg.AllowKdotool {
		order = append(order, newKdotoolInjector(cfg))
	}
	if cfg.AllowEnigo {
		order = append(order, newEnigoInjector(cfg))
	}
	order = append(order, newNoopInjector())
	return order
}

// New constructs a Manager with the platform's FocusProvider.
func New(cfg Config, sink *telemetry.Sink, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	focus, err := newFocusProvider()
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:       cfg,
		order:     defaultOrder(cfg, focus),
		cooldowns: newCooldownTable(cfg),
		sink:      sink,
		log:       log,
	}, nil
}

// Inject delivers text to the focused application, trying methods in
// order within the configured overall latency budget. The first success
// wins; a method that fails starts or extends its per-app cooldown so the
// next attempt against the same app skips it until the cooldown expires.
func (m *Manager) Inject(ctx context.Context, injCtx Context, text string) (Method, error) {
	if text == "" {
		return NoOp, nil
	}

	budgetCtx, cancel := context.WithTimeout(ctx, m.cfg.MaxTotalLatency)
	defer cancel()

	var lastErr error
	for _, inj := range m.order {
		method := inj.Method()
		if method != NoOp && !m.cooldowns.Allowed(injCtx.TargetApp, method) {
			continue
		}

		select {
		case <-budgetCtx.Done():
			return 0, ErrBudgetExhausted
		default:
		}

		if !inj.IsAvailable(budgetCtx) {
			continue
		}

		attemptCtx, attemptCancel := context.WithTimeout(budgetCtx, m.cfg.PerMethodTimeout)
		err := inj.Inject(attemptCtx, injCtx, text)
		attemptCancel()

		if m.sink != nil {
			m.sink.RecordInjectionAttempt(method.String())
		}

		if err == nil {
			m.cooldowns.RecordSuccess(injCtx.TargetApp, method)
			if m.sink != nil {
				m.sink.RecordInjectionSuccess(method.String())
			}
			m.log.Debug("injection succeeded", "method", method, "app", injCtx.TargetApp, "text", logText(m.cfg, text))
			return method, nil
		}

		lastErr = &MethodError{Method: method, Err: err}
		m.cooldowns.RecordFailure(injCtx.TargetApp, method)
		if m.sink != nil {
			m.sink.RecordInjectionFailure(method.String())
		}
		m.log.Debug("injection method failed", "method", method, "app", injCtx.TargetApp, "error", err)
	}

	if lastErr != nil {
		notifyInjectionFailure(lastErr)
		return 0, errors.Join(ErrAllMethodsFailed, lastErr)
	}
	return 0, ErrAllMethodsFailed
}

// RequireFocusBeforeInject reports whether the manager should skip
// injection entirely when focus state is unknown (cfg.RequireFocus) or
// inject anyway (cfg.InjectOnUnknownFocus, the default — Wayland sandboxes
// routinely hide focus state from AT-SPI).
func (m *Manager) RequireFocusBeforeInject(hasFocusInfo, isEditable bool) bool {
	if !hasFocusInfo {
		return m.cfg.RequireFocus && !m.cfg.InjectOnUnknownFocus
	}
	return m.cfg.RequireFocus && !isEditable
}
