package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseModeRecognizesAllThreeValues(t *testing.T) {
	assert.Equal(t, Realtime, ParseMode("realtime"))
	assert.Equal(t, Accelerated, ParseMode("accelerated"))
	assert.Equal(t, Deterministic, ParseMode("deterministic"))
	assert.Equal(t, Realtime, ParseMode("bogus"))
	assert.Equal(t, Realtime, ParseMode(""))
}

func TestDeterministicClockFiresImmediately(t *testing.T) {
	c := New(Deterministic, 1.0)
	select {
	case <-c.After(time.Hour):
	case <-time.After(100 * time.Millisecond):
		t.Fatal("deterministic clock should fire near-instantly regardless of requested duration")
	}
}

func TestAcceleratedClockScalesDuration(t *testing.T) {
	c := New(Accelerated, 100.0)
	start := time.Now()
	<-c.After(50 * time.Millisecond)
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 40*time.Millisecond, "accelerated clock should fire much sooner than the requested duration")
}

func TestNewClampsNonPositiveSpeedToOne(t *testing.T) {
	c := New(Accelerated, 0)
	assert.Equal(t, 1.0, c.Speed)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "realtime", Realtime.String())
	assert.Equal(t, "accelerated", Accelerated.String())
	assert.Equal(t, "deterministic", Deterministic.String())
}
