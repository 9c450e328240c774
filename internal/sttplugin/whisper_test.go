//go:build whisper

package sttplugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhisperFactoryInfo(t *testing.T) {
	f := NewWhisperFactory()
	assert.Equal(t, "whisper", f.ID())
	assert.True(t, f.Info().IsLocal)
}

func TestWhisperPluginIsAvailableRequiresAllThreePaths(t *testing.T) {
	for _, key := range []string{"WHISPER_ENCODER_PATH", "WHISPER_DECODER_PATH", "WHISPER_TOKENS_PATH"} {
		t.Setenv(key, "")
	}
	p := &WhisperPlugin{state: StateUninitialized}
	assert.False(t, p.IsAvailable())

	t.Setenv("WHISPER_ENCODER_PATH", "/tmp/encoder.onnx")
	t.Setenv("WHISPER_DECODER_PATH", "/tmp/decoder.onnx")
	t.Setenv("WHISPER_TOKENS_PATH", "/tmp/tokens.txt")
	assert.True(t, p.IsAvailable())
}

func TestWhisperPluginInitializeFailsWithoutEnv(t *testing.T) {
	for _, key := range []string{"WHISPER_ENCODER_PATH", "WHISPER_DECODER_PATH", "WHISPER_TOKENS_PATH"} {
		t.Setenv(key, "")
	}
	p := &WhisperPlugin{state: StateUninitialized}
	err := p.Initialize(context.Background())
	require.Error(t, err)
}

func TestWhisperPluginProcessAudioErrorsWhenNotInitialized(t *testing.T) {
	p := &WhisperPlugin{state: StateUninitialized}
	ev, err := p.ProcessAudio(context.Background(), []int16{1, 2, 3})
	assert.Nil(t, ev)
	require.Error(t, err)
	var pluginErr *PluginError
	require.ErrorAs(t, err, &pluginErr)
	assert.Equal(t, ErrorFatal, pluginErr.Class)
}

func TestWhisperPluginFinalizeErrorsWhenNotInitialized(t *testing.T) {
	p := &WhisperPlugin{state: StateUninitialized}
	ev, err := p.Finalize(context.Background())
	assert.Nil(t, ev)
	require.Error(t, err)
}

func TestWhisperPluginResetClearsBuffer(t *testing.T) {
	p := &WhisperPlugin{buffered: []int16{1, 2, 3}}
	require.NoError(t, p.Reset())
	assert.Nil(t, p.buffered)
}

func TestWhisperPluginUnloadIsSafeWithoutRecognizer(t *testing.T) {
	p := &WhisperPlugin{state: StateReady}
	require.NoError(t, p.Unload())
	assert.Equal(t, StateUninitialized, p.State())
}

func TestInt16ToFloat32Scales(t *testing.T) {
	out := int16ToFloat32([]int16{0, 16384, -32768})
	require.Len(t, out, 3)
	assert.InDelta(t, 0.0, out[0], 0.0001)
	assert.InDelta(t, 0.5, out[1], 0.0001)
	assert.InDelta(t, -1.0, out[2], 0.0001)
}
