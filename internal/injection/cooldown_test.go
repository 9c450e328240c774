package injection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooldownAllowsFirstAttempt(t *testing.T) {
	c := newCooldownTable(DefaultConfig())
	assert.True(t, c.Allowed("app1", AtspiInsert))
}

func TestCooldownBlocksImmediatelyAfterFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownInitial = time.Minute
	c := newCooldownTable(cfg)

	c.RecordFailure("app1", AtspiInsert)
	assert.False(t, c.Allowed("app1", AtspiInsert))
	assert.True(t, c.Allowed("app1", ClipboardPasteFallback), "cooldown is per (app, method)")
	assert.True(t, c.Allowed("app2", AtspiInsert), "cooldown is per app")
}

func TestCooldownExpiresAfterWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownInitial = 10 * time.Millisecond
	c := newCooldownTable(cfg)
	now := time.Now()
	c.nowFn = func() time.Time { return now }

	c.RecordFailure("app1", AtspiInsert)
	require.False(t, c.Allowed("app1", AtspiInsert))

	c.nowFn = func() time.Time { return now.Add(20 * time.Millisecond) }
	assert.True(t, c.Allowed("app1", AtspiInsert))
}

func TestCooldownBacksOffExponentially(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownInitial = time.Second
	cfg.CooldownBackupFactor = 2.0
	cfg.CooldownMax = 10 * time.Second
	c := newCooldownTable(cfg)
	now := time.Now()
	c.nowFn = func() time.Time { return now }

	c.RecordFailure("app1", AtspiInsert)
	first := c.entries[cooldownKey("app1", AtspiInsert)].currentStep
	assert.Equal(t, time.Second, first)

	c.RecordFailure("app1", AtspiInsert)
	second := c.entries[cooldownKey("app1", AtspiInsert)].currentStep
	assert.Equal(t, 2*time.Second, second)
}

func TestCooldownCapsAtMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownInitial = 4 * time.Minute
	cfg.CooldownBackupFactor = 2.0
	cfg.CooldownMax = 5 * time.Minute
	c := newCooldownTable(cfg)

	c.RecordFailure("app1", AtspiInsert)
	c.RecordFailure("app1", AtspiInsert)
	assert.Equal(t, cfg.CooldownMax, c.entries[cooldownKey("app1", AtspiInsert)].currentStep)
}

func TestCooldownSuccessClearsEntry(t *testing.T) {
	c := newCooldownTable(DefaultConfig())
	c.RecordFailure("app1", AtspiInsert)
	require.False(t, c.Allowed("app1", AtspiInsert))

	c.RecordSuccess("app1", AtspiInsert)
	assert.True(t, c.Allowed("app1", AtspiInsert))
}
