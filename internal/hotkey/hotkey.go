// Package hotkey implements C5 Hotkey Listener: an alternative activation
// source that turns a global keyboard shortcut's press/release into the
// same VadEvent stream the VAD engines produce.
package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	gohotkey "golang.design/x/hotkey"

	"github.com/coldvox/coldvox/internal/vad"
)

// backoffInitial and backoffMax bound the retry delay after the OS hotkey
// registration fails (spec.md §4.5: "250ms doubling to 2s, with
// 0-100ms jitter").
const (
	backoffInitial = 250 * time.Millisecond
	backoffMax     = 2 * time.Second
	jitterMax      = 100 * time.Millisecond
)

// Binding names the key combination to register.
type Binding struct {
	Modifiers []gohotkey.Modifier
	Key       gohotkey.Key
}

// DefaultBinding is Ctrl+Shift+Space, a combination unlikely to collide
// with application shortcuts.
func DefaultBinding() Binding {
	return Binding{
		Modifiers: []gohotkey.Modifier{gohotkey.ModCtrl, gohotkey.ModShift},
		Key:       gohotkey.KeySpace,
	}
}

// Listener owns the registered OS hotkey and emits VadEvents on Events().
type Listener struct {
	binding Binding
	log     *slog.Logger
	events  chan vad.Event

	pressed     bool
	pressedAtMs uint64
}

// New constructs a Listener for the given binding.
func New(binding Binding, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{binding: binding, log: log, events: make(chan vad.Event, 8)}
}

// Events returns the VadEvent stream; SpeechStart on press, SpeechEnd on
// release, exactly as spec.md §4.5 specifies.
func (l *Listener) Events() <-chan vad.Event { return l.events }

// Run registers the hotkey and blocks until ctx is canceled, retrying a
// failed registration with jittered exponential backoff. Once registered it
// listens until ctx is canceled; loss of the hotkey registration after that
// point is not detected.
func (l *Listener) Run(ctx context.Context) error {
	delay := backoffInitial
	for {
		err := l.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// runOnce only returns nil on ctx cancellation, handled above;
			// any other return is an error path.
			return nil
		}
		l.log.Warn("hotkey: registration lost, reconnecting", "error", err, "delay", delay)
		jitter := time.Duration(rand.Int63n(int64(jitterMax)))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay + jitter):
		}
		delay *= 2
		if delay > backoffMax {
			delay = backoffMax
		}
	}
}

func (l *Listener) runOnce(ctx context.Context) error {
	hk := gohotkey.New(l.binding.Modifiers, l.binding.Key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("hotkey: register: %w", err)
	}
	defer hk.Unregister()

	// registered: deliver press/release until ctx is canceled
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hk.Keydown():
			l.onPress()
		case <-hk.Keyup():
			l.onRelease()
		}
	}
}

func (l *Listener) onPress() {
	if l.pressed {
		// Debounce: a duplicate press without an intervening release is
		// collapsed into the single already-open SpeechStart.
		return
	}
	l.pressed = true
	now := uint64(time.Now().UnixMilli())
	l.pressedAtMs = now
	l.emit(vad.Event{Kind: vad.EventSpeechStart, TimestampMs: now})
}

func (l *Listener) onRelease() {
	if !l.pressed {
		return
	}
	l.pressed = false
	now := uint64(time.Now().UnixMilli())
	l.emit(vad.Event{Kind: vad.EventSpeechEnd, TimestampMs: now, DurationMs: now - l.pressedAtMs})
}

func (l *Listener) emit(ev vad.Event) {
	select {
	case l.events <- ev:
	default:
		l.log.Warn("hotkey: event channel full, dropping event")
	}
}
