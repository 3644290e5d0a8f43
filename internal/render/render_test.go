package render

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/learnvulkan/internal/assets"
	"github.com/vkngwrapper/learnvulkan/internal/config"
	"github.com/vkngwrapper/learnvulkan/internal/frame"
	"github.com/vkngwrapper/learnvulkan/internal/gpu"
	"github.com/vkngwrapper/learnvulkan/internal/memory"
	"github.com/vkngwrapper/learnvulkan/internal/transfer"
	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

func TestViewportCoversTarget(t *testing.T) {
	v := viewport(800, 600)
	assert.Equal(t, float32(800), v.Width)
	assert.Equal(t, float32(600), v.Height)
	assert.Equal(t, float32(1), v.MaxDepth)

	s := scissor(800, 600)
	assert.Equal(t, core1_0.Offset2D{}, s.Offset)
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, s.Extent)
}

func TestRecorderRejectsUnknownTargets(t *testing.T) {
	r := &recorder{
		framebuffers: make([]core1_0.Framebuffer, 3),
		sets:         make([]core1_0.DescriptorSet, 2),
	}

	assert.NoError(t, r.check(frame.Target{Slot: 1, Image: 2}))
	assert.Error(t, r.check(frame.Target{Slot: 2, Image: 0}))
	assert.Error(t, r.check(frame.Target{Slot: 0, Image: 3}))
	assert.Error(t, r.check(frame.Target{Slot: 0, Image: -1}))
}

func TestRecorderRejectsForeignCommandBuffers(t *testing.T) {
	r := &recorder{}
	err := r.Record(foreignCommands{}, frame.Target{})
	assert.Error(t, err)
}

type foreignCommands struct{}

func (foreignCommands) Reset() error { return nil }

// newDevice brings up a hidden window and a device, or skips when the machine has no usable
// Vulkan implementation.
func newDevice(t *testing.T) *gpu.Context {
	t.Helper()

	cfg := config.Default()
	cfg.Window.Width, cfg.Window.Height = 64, 64
	c, err := gpu.NewContext(gpu.Options{
		Window: cfg.Window,
		Hidden: true,
		Report: vkerr.Reporter{Policy: vkerr.Propagate},
	})
	if err != nil {
		t.Skipf("no vulkan device: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTransferRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a vulkan device")
	}
	c := newDevice(t)

	alloc := memory.NewAllocator(c.Device, c.MemoryProperties, c.Report, c.Logger)
	engine := transfer.NewEngine(alloc, c.GraphicsQueue, c.CommandPool, c.Report, c.Logger)

	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i * 7)
	}
	buffer, err := engine.UploadBuffer(data, core1_0.BufferUsageTransferSrc)
	defer buffer.Destroy()
	require.NoError(t, err)

	got, err := engine.ReadBuffer(buffer, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	tex := assets.Checkerboard(32, 16, 4)
	image, err := engine.UploadImage(tex.Pixels, tex.Width, tex.Height, core1_0.FormatR8G8B8A8SRGB, core1_0.ImageUsageTransferSrc)
	defer image.Destroy()
	require.NoError(t, err)

	pixels, err := engine.ReadImage(image)
	require.NoError(t, err)
	assert.Equal(t, tex.Pixels, pixels)
}

func TestRendererRunsFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a vulkan device")
	}

	cfg := config.Default()
	cfg.Validation = false
	cfg.Textured = false
	cfg.Shaders.Vertex = "../../" + config.DefaultVertexShader
	cfg.Shaders.Fragment = "../../" + config.UntexturedFragmentShader

	app, err := New(context.Background(), cfg, Options{Hidden: true})
	if err != nil {
		t.Skipf("renderer unavailable: %v", err)
	}
	defer app.Close()

	for i := 0; i < 3*cfg.FramesInFlight; i++ {
		err := app.Frames().Frame()
		if vkerr.IsPresentation(err) {
			t.Skipf("hidden surface cannot present: %v", err)
		}
		require.NoError(t, err)
	}

	stats := app.Frames().Stats()
	assert.Equal(t, uint64(3*cfg.FramesInFlight), stats.Frames)
	for _, n := range stats.Submissions {
		assert.Equal(t, uint64(3), n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	cancel()
	assert.NoError(t, app.Run(ctx))
	assert.NoError(t, app.Close())
}
