//go:build linux

package injection

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// FocusProvider reports whether the desktop's accessibility bus currently
// exposes a focused, editable element, and can ask it to paste or insert
// text directly.
type FocusProvider interface {
	HasEditableFocus(ctx context.Context) (bool, error)
	InsertText(ctx context.Context, text string) error
	TriggerPaste(ctx context.Context) error
}

// atspiFocusProvider talks to the AT-SPI accessibility registry over the
// session bus, grounded on original_source's combo_clip_ydotool.rs
// Collection/Action proxy calls (re-expressed with godbus instead of the
// zbus/atspi crates it used).
type atspiFocusProvider struct {
	conn *dbus.Conn
}

func newAtspiFocusProvider() (*atspiFocusProvider, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("injection: dbus session bus: %w", err)
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("injection: dbus auth: %w", err)
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("injection: dbus hello: %w", err)
	}
	return &atspiFocusProvider{conn: conn}, nil
}

func (p *atspiFocusProvider) Close() error { return p.conn.Close() }

const (
	atspiRegistryDest = "org.a11y.atspi.Registry"
	atspiRootPath     = dbus.ObjectPath("/org/a11y/atspi/accessible/root")
)

// HasEditableFocus queries the AT-SPI Collection interface for an object
// with the Focused state. It does not check whether that object exposes the
// EditableText interface.
func (p *atspiFocusProvider) HasEditableFocus(ctx context.Context) (bool, error) {
	obj := p.conn.Object(atspiRegistryDest, atspiRootPath)
	var matches []dbus.ObjectPath
	call := obj.CallWithContext(ctx, "org.a11y.atspi.Collection.GetMatchesTo", 0,
		atspiRootPath, map[string]dbus.Variant{"States": dbus.MakeVariant([]string{"focused"})}, uint32(0), uint32(1), false)
	if call.Err != nil {
		return false, fmt.Errorf("injection: atspi GetMatches: %w", call.Err)
	}
	if err := call.Store(&matches); err != nil {
		return false, fmt.Errorf("injection: atspi decode matches: %w", err)
	}
	return len(matches) > 0, nil
}

// InsertText inserts text at the caret of the focused EditableText object.
func (p *atspiFocusProvider) InsertText(ctx context.Context, text string) error {
	obj := p.conn.Object(atspiRegistryDest, atspiRootPath)
	call := obj.CallWithContext(ctx, "org.a11y.atspi.EditableText.InsertText", 0, int32(-1), text, int32(len(text)))
	if call.Err != nil {
		return fmt.Errorf("injection: atspi InsertText: %w", call.Err)
	}
	return nil
}

// TriggerPaste invokes the focused element's first Action (index 0) and
// returns an error if the call fails; it has no fallback of its own.
func (p *atspiFocusProvider) TriggerPaste(ctx context.Context) error {
	obj := p.conn.Object(atspiRegistryDest, atspiRootPath)
	call := obj.CallWithContext(ctx, "org.a11y.atspi.Action.DoAction", 0, int32(0))
	if call.Err != nil {
		return fmt.Errorf("injection: atspi paste action: %w", call.Err)
	}
	return nil
}

func newFocusProvider() (FocusProvider, error) { return newAtspiFocusProvider() }
