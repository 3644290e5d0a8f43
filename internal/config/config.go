// Package config holds the renderer settings. Values start from Default, may be overridden
// by a TOML file and then by command line switches.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

type Window struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

type Shaders struct {
	Vertex   string `toml:"vertex"`
	Fragment string `toml:"fragment"`
}

type Config struct {
	Window         Window  `toml:"window"`
	FramesInFlight int     `toml:"frames_in_flight"`
	Validation     bool    `toml:"validation"`
	ErrorPolicy    string  `toml:"error_policy"`
	AcquireTimeout string  `toml:"acquire_timeout"`
	Shaders        Shaders `toml:"shaders"`
	Textured       bool    `toml:"textured"`
	Texture        string  `toml:"texture"`
	Mesh           string  `toml:"mesh"`
	PipelineCache  string  `toml:"pipeline_cache"`
	LogLevel       string  `toml:"log_level"`
}

const (
	DefaultFramesInFlight = 2
	ValidationLayer       = "VK_LAYER_KHRONOS_validation"

	DefaultVertexShader      = "shaders/vert.spv"
	DefaultFragmentShader    = "shaders/frag.spv"
	UntexturedFragmentShader = "shaders/frag_untextured.spv"
)

func Default() Config {
	return Config{
		Window: Window{
			Width:  800,
			Height: 600,
			Title:  "Learn Vulkan",
		},
		FramesInFlight: DefaultFramesInFlight,
		Validation:     true,
		ErrorPolicy:    vkerr.Propagate.String(),
		Shaders: Shaders{
			Vertex:   DefaultVertexShader,
			Fragment: DefaultFragmentShader,
		},
		Textured: true,
		LogLevel: "info",
	}
}

// Load reads a TOML file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	cfg.matchShaders()
	return cfg, cfg.Validate()
}

// matchShaders swaps the default fragment shader for the one without a sampler when the
// untextured variant is selected. Explicitly configured shaders are left alone.
func (c *Config) matchShaders() {
	if !c.Textured && c.Shaders.Fragment == DefaultFragmentShader {
		c.Shaders.Fragment = UntexturedFragmentShader
	}
}

func (c Config) Validate() error {
	if c.FramesInFlight < 1 {
		return errors.Newf("frames_in_flight must be at least 1, got %d", c.FramesInFlight)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := vkerr.ParsePolicy(c.ErrorPolicy); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Policy returns the configured error policy. Validate has already rejected unknown names.
func (c Config) Policy() vkerr.Policy {
	p, _ := vkerr.ParsePolicy(c.ErrorPolicy)
	return p
}

// Timeout is the image acquire timeout. Zero means wait forever.
func (c Config) Timeout() (time.Duration, error) {
	if c.AcquireTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.AcquireTimeout)
	if err != nil {
		return 0, errors.Wrapf(err, "acquire_timeout")
	}
	if d < 0 {
		return 0, errors.Newf("acquire_timeout must not be negative, got %s", d)
	}
	return d, nil
}

func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "log_level")
	}
	return level, nil
}

// ValidationLayers is the explicit layer list handed to instance creation.
func (c Config) ValidationLayers() []string {
	if !c.Validation {
		return nil
	}
	return []string{ValidationLayer}
}

func (c Config) String() string {
	return fmt.Sprintf("%dx%d %q frames=%d validation=%t policy=%s",
		c.Window.Width, c.Window.Height, c.Window.Title, c.FramesInFlight, c.Validation, c.ErrorPolicy)
}
