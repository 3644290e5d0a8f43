package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "learnvulkan.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.FramesInFlight)
	assert.Equal(t, vkerr.Propagate, cfg.Policy())
	assert.Equal(t, []string{ValidationLayer}, cfg.ValidationLayers())

	timeout, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Zero(t, timeout)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
frames_in_flight = 3
validation = false
error_policy = "panic"
acquire_timeout = "250ms"
log_level = "debug"

[window]
width = 1024
height = 768
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.FramesInFlight)
	assert.Equal(t, 1024, cfg.Window.Width)
	assert.Equal(t, "Learn Vulkan", cfg.Window.Title)
	assert.Nil(t, cfg.ValidationLayers())
	assert.Equal(t, vkerr.Panic, cfg.Policy())

	timeout, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, timeout)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestValidateRejects(t *testing.T) {
	cfg := Default()
	cfg.FramesInFlight = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Window.Height = -1
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.AcquireTimeout = "-1s"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ErrorPolicy = "ignore"
	require.Error(t, cfg.Validate())
}

func TestParseArgs(t *testing.T) {
	path := writeConfig(t, "validation = true\nframes_in_flight = 4\n")

	var out bytes.Buffer
	cfg, err := ParseArgs([]string{"--no-validation", "--config", path, "--panic-on-error"}, &out)
	require.NoError(t, err)
	assert.False(t, cfg.Validation)
	assert.Equal(t, 4, cfg.FramesInFlight)
	assert.Equal(t, vkerr.Panic, cfg.Policy())

	_, err = ParseArgs([]string{"-h"}, &out)
	assert.True(t, errors.Is(err, ErrHelp))
	assert.Contains(t, out.String(), "--no-validation")

	_, err = ParseArgs([]string{"--fullscreen"}, &out)
	require.Error(t, err)

	_, err = ParseArgs([]string{"--config"}, &out)
	require.Error(t, err)
}

func TestUntexturedSwapsDefaultFragmentShader(t *testing.T) {
	var out bytes.Buffer
	cfg, err := ParseArgs([]string{"--untextured"}, &out)
	require.NoError(t, err)
	assert.False(t, cfg.Textured)
	assert.Equal(t, UntexturedFragmentShader, cfg.Shaders.Fragment)
	assert.Equal(t, DefaultVertexShader, cfg.Shaders.Vertex)

	path := writeConfig(t, "textured = false\n[shaders]\nfragment = \"custom.spv\"\n")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom.spv", cfg.Shaders.Fragment)
}
