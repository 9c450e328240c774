package hotkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldvox/coldvox/internal/vad"
)

func TestOnPressEmitsSpeechStart(t *testing.T) {
	l := New(DefaultBinding(), nil)
	l.onPress()

	require.Len(t, l.events, 1)
	ev := <-l.events
	assert.Equal(t, vad.EventSpeechStart, ev.Kind)
}

func TestDuplicatePressWithoutReleaseIsDebounced(t *testing.T) {
	l := New(DefaultBinding(), nil)
	l.onPress()
	<-l.events
	l.onPress()

	assert.Empty(t, l.events, "second press without an intervening release must not re-emit")
}

func TestReleaseWithoutPressIsIgnored(t *testing.T) {
	l := New(DefaultBinding(), nil)
	l.onRelease()
	assert.Empty(t, l.events)
}

func TestPressThenReleaseEmitsBothEvents(t *testing.T) {
	l := New(DefaultBinding(), nil)
	l.onPress()
	l.onRelease()

	require.Len(t, l.events, 2)
	start := <-l.events
	end := <-l.events
	assert.Equal(t, vad.EventSpeechStart, start.Kind)
	assert.Equal(t, vad.EventSpeechEnd, end.Kind)
}

func TestPressReleasePressReleaseEachEmitsIndependently(t *testing.T) {
	l := New(DefaultBinding(), nil)
	l.onPress()
	l.onRelease()
	l.onPress()
	l.onRelease()

	require.Len(t, l.events, 4)
}
