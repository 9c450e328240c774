package injection

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/gen2brain/beeep"
)

// noopInjector is the ultimate fallback: it never fails, it leaves the
// transcript on the clipboard and tells the user to paste manually.
type noopInjector struct{}

func newNoopInjector() *noopInjector { return &noopInjector{} }

func (n *noopInjector) Method() Method { return NoOp }

func (n *noopInjector) IsAvailable(context.Context) bool { return true }

func (n *noopInjector) Inject(_ context.Context, _ Context, text string) error {
	_ = clipboard.WriteAll(text)
	_ = beeep.Notify("ColdVox", "Text copied to clipboard — press Ctrl+V to paste", "")
	return nil
}

func notifyInjectionFailure(cause error) {
	_ = beeep.Notify("ColdVox", fmt.Sprintf("Text injection failed: %v", cause), "")
}
