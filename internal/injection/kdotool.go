package injection

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/atotto/clipboard"
)

// kdotoolInjector activates the target window via the `kdotool` CLI
// (KDE/KWin focus-assist, opt-in) and then completes delivery with a
// clipboard paste, since kdotool itself only manipulates window state.
// Grounded on original_source's kdotool_injector.rs (window
// discovery/activation over tokio::process::Command).
type kdotoolInjector struct {
	cfg Config
}

func newKdotoolInjector(cfg Config) *kdotoolInjector { return &kdotoolInjector{cfg: cfg} }

func (k *kdotoolInjector) Method() Method { return KdoToolAssist }

func (k *kdotoolInjector) IsAvailable(ctx context.Context) bool {
	if !k.cfg.AllowKdotool {
		return false
	}
	out, err := exec.CommandContext(ctx, "which", "kdotool").Output()
	return err == nil && len(strings.TrimSpace(string(out))) > 0
}

func (k *kdotoolInjector) Inject(ctx context.Context, injCtx Context, text string) error {
	activeOut, err := exec.CommandContext(ctx, "kdotool", "getactivewindow").Output()
	if err != nil {
		return fmt.Errorf("injection: kdotool getactivewindow: %w", err)
	}
	windowID := strings.TrimSpace(string(activeOut))
	if windowID == "" {
		return fmt.Errorf("injection: kdotool: no active window")
	}
	if injCtx.WindowID != "" && injCtx.WindowID != windowID {
		if out, err := exec.CommandContext(ctx, "kdotool", "windowactivate", injCtx.WindowID).CombinedOutput(); err != nil {
			return fmt.Errorf("injection: kdotool windowactivate: %w (%s)", err, out)
		}
	}

	prior, hadPrior := saveClipboard()
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("injection: set clipboard: %w", err)
	}
	time.Sleep(20 * time.Millisecond)
	pasteErr := triggerPasteViaYdotool(ctx, k.cfg.PasteActionTimeout)
	restoreClipboardAfter(k.cfg.ClipboardRestoreDelay, prior, hadPrior)
	if pasteErr != nil {
		return fmt.Errorf("injection: kdotool-assisted paste: %w", pasteErr)
	}
	return nil
}
