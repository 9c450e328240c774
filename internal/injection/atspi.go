package injection

import (
	"context"
	"fmt"
)

// atspiInjector inserts text directly via the AT-SPI2 EditableText
// interface — no clipboard involved, so nothing to save or restore.
type atspiInjector struct {
	focus FocusProvider
}

func newAtspiInjector(focus FocusProvider) *atspiInjector { return &atspiInjector{focus: focus} }

func (a *atspiInjector) Method() Method { return AtspiInsert }

func (a *atspiInjector) IsAvailable(ctx context.Context) bool {
	ok, err := a.focus.HasEditableFocus(ctx)
	return err == nil && ok
}

func (a *atspiInjector) Inject(ctx context.Context, _ Context, text string) error {
	if ok, err := a.focus.HasEditableFocus(ctx); err != nil || !ok {
		return ErrNoEditableFocus
	}
	if err := a.focus.InsertText(ctx, text); err != nil {
		return fmt.Errorf("injection: atspi insert: %w", err)
	}
	return nil
}
