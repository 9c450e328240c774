package injection

import (
	"context"
	"fmt"
	"unicode"

	hook "github.com/robotn/gohook"
)

// enigoInjector synthesizes individual keystrokes via gohook's key-name
// event simulation — the Go-ecosystem counterpart to original_source's
// opt-in `enigo` crate path. Keystroke simulation works off named keys, so
// unlike the clipboard methods it can only type printable ASCII; anything
// else in the transcript is rejected so the manager falls back to a
// clipboard-based method instead of silently dropping characters.
type enigoInjector struct {
	cfg Config
}

func newEnigoInjector(cfg Config) *enigoInjector { return &enigoInjector{cfg: cfg} }

func (e *enigoInjector) Method() Method { return EnigoText }

func (e *enigoInjector) IsAvailable(context.Context) bool { return e.cfg.AllowEnigo }

func (e *enigoInjector) Inject(ctx context.Context, _ Context, text string) error {
	for _, r := range text {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return fmt.Errorf("injection: enigo: non-ASCII rune %q not supported by keystroke simulation", r)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !hook.AddEvent(string(r)) {
			return fmt.Errorf("injection: enigo: failed to simulate key for %q", r)
		}
	}
	return nil
}
