package injection

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/atotto/clipboard"
)

// saveClipboard reads the current clipboard contents for later
// restoration; a read failure (e.g. empty/binary clipboard) is not fatal,
// it just means there is nothing to restore.
func saveClipboard() (string, bool) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", false
	}
	return text, true
}

// restoreClipboardAfter restores prior to its original contents after
// delay, matching original_source's clipboard_restore_delay_ms (default
// 500ms) detached-task restore — started in its own goroutine so it never
// blocks the injection result.
func restoreClipboardAfter(delay time.Duration, prior string, hadPrior bool) {
	if !hadPrior {
		return
	}
	go func() {
		time.Sleep(delay)
		_ = clipboard.WriteAll(prior)
	}()
}

// triggerPasteViaYdotool shells out to ydotool (the Wayland-friendly
// input-injection CLI original_source's combo_clip_ydotool.rs falls back
// to when AT-SPI paste isn't available).
func triggerPasteViaYdotool(ctx context.Context, timeout time.Duration) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := exec.CommandContext(cctx, "ydotool", "key", "ctrl+v").CombinedOutput()
	if err != nil {
		return fmt.Errorf("injection: ydotool paste: %w (%s)", err, out)
	}
	return nil
}

// clipboardPasteInjector sets the clipboard then triggers a paste, trying
// AT-SPI's paste action first and falling back to ydotool — the combo
// strategy from original_source's combo_clip_ydotool.rs.
type clipboardPasteInjector struct {
	cfg   Config
	focus FocusProvider

	// mu is the single-flight gate spec.md §5 names: the clipboard is
	// process-global state, so two concurrent Inject calls would otherwise
	// race on save/write/paste/restore and could restore the wrong prior
	// contents. Held for the whole sequence, not just the write.
	mu sync.Mutex
}

func newClipboardPasteInjector(cfg Config, focus FocusProvider) *clipboardPasteInjector {
	return &clipboardPasteInjector{cfg: cfg, focus: focus}
}

func (c *clipboardPasteInjector) Method() Method { return ClipboardPasteFallback }

func (c *clipboardPasteInjector) IsAvailable(context.Context) bool { return true }

func (c *clipboardPasteInjector) Inject(ctx context.Context, _ Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prior, hadPrior := saveClipboard()

	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("injection: set clipboard: %w", err)
	}
	time.Sleep(20 * time.Millisecond)

	pasteErr := c.focus.TriggerPaste(ctx)
	if pasteErr != nil {
		pasteErr = triggerPasteViaYdotool(ctx, c.cfg.PasteActionTimeout)
	}

	restoreClipboardAfter(c.cfg.ClipboardRestoreDelay, prior, hadPrior)

	if pasteErr != nil {
		return fmt.Errorf("injection: clipboard paste: %w", pasteErr)
	}
	return nil
}
