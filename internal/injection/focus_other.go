//go:build !linux

package injection

import (
	"context"
	"errors"
)

// FocusProvider reports whether the desktop's accessibility bus currently
// exposes a focused, editable element, and can ask it to paste or insert
// text directly.
type FocusProvider interface {
	HasEditableFocus(ctx context.Context) (bool, error)
	InsertText(ctx context.Context, text string) error
	TriggerPaste(ctx context.Context) error
}

// AT-SPI is Linux/X11-Wayland-desktop specific; elsewhere AtspiInsert is
// simply unavailable and ClipboardPasteFallback/EnigoText carry injection.
type unsupportedFocusProvider struct{}

func (unsupportedFocusProvider) HasEditableFocus(context.Context) (bool, error) { return false, nil }
func (unsupportedFocusProvider) InsertText(context.Context, string) error {
	return errors.New("injection: AT-SPI not supported on this platform")
}
func (unsupportedFocusProvider) TriggerPaste(context.Context) error {
	return errors.New("injection: AT-SPI not supported on this platform")
}

func newFocusProvider() (FocusProvider, error) { return unsupportedFocusProvider{}, nil }
