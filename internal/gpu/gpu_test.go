package gpu

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/frame"
	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

var (
	srgb     = khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	rgbaSRGB = khr_surface.SurfaceFormat{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	rgb32    = khr_surface.SurfaceFormat{Format: core1_0.FormatR32G32B32SignedFloat, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
)

func TestRate(t *testing.T) {
	plain := SurfaceSupport{Formats: []khr_surface.SurfaceFormat{rgbaSRGB}, PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO}}
	assert.Equal(t, 1, Rate(core1_0.PhysicalDeviceTypeIntegratedGPU, plain))
	assert.Equal(t, 1001, Rate(core1_0.PhysicalDeviceTypeDiscreteGPU, plain))

	rich := SurfaceSupport{
		Formats:      []khr_surface.SurfaceFormat{rgbaSRGB, srgb, srgb},
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
	}
	assert.Equal(t, 21, Rate(core1_0.PhysicalDeviceTypeIntegratedGPU, rich))
	assert.Equal(t, 1021, Rate(core1_0.PhysicalDeviceTypeDiscreteGPU, rich))
}

func TestBest(t *testing.T) {
	assert.Equal(t, -1, best(nil))
	assert.Equal(t, 1, best([]int{1, 1001, 21}))
	assert.Equal(t, 0, best([]int{21, 21}), "first wins on ties")
}

func TestQueueFamilies(t *testing.T) {
	assert.False(t, QueueFamilies{Graphics: 0, Present: -1}.Complete())
	assert.True(t, QueueFamilies{Graphics: 0, Present: 0}.Complete())
	assert.Equal(t, []int{0}, QueueFamilies{Graphics: 0, Present: 0}.Unique())
	assert.Equal(t, []int{2, 1}, QueueFamilies{Graphics: 2, Present: 1}.Unique())
}

func TestSurfaceSupportAdequate(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{}
	assert.False(t, SurfaceSupport{Capabilities: caps, Formats: []khr_surface.SurfaceFormat{srgb}}.Adequate())
	assert.True(t, SurfaceSupport{
		Capabilities: caps,
		Formats:      []khr_surface.SurfaceFormat{srgb},
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO},
	}.Adequate())
}

func TestChooseSurfaceFormat(t *testing.T) {
	format, err := ChooseSurfaceFormat([]khr_surface.SurfaceFormat{rgbaSRGB, srgb, rgb32})
	require.NoError(t, err)
	assert.Equal(t, srgb, format)

	format, err = ChooseSurfaceFormat([]khr_surface.SurfaceFormat{rgbaSRGB, rgb32})
	require.NoError(t, err)
	assert.Equal(t, rgb32, format, "falls back to the last format")

	_, err = ChooseSurfaceFormat(nil)
	assert.True(t, errors.Is(err, vkerr.ErrNoSurfaceFormat))
}

func TestChoosePresentMode(t *testing.T) {
	assert.Equal(t, khr_surface.PresentModeMailbox, ChoosePresentMode([]khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox}))
	assert.Equal(t, khr_surface.PresentModeFIFO, ChoosePresentMode([]khr_surface.PresentMode{khr_surface.PresentModeFIFO}))
}

func TestChooseExtent(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: 800, Height: 600},
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 1024, Height: 1024},
	}
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, ChooseExtent(caps, 5000, 5000))

	caps.CurrentExtent = core1_0.Extent2D{Width: -1, Height: -1}
	assert.Equal(t, core1_0.Extent2D{Width: 640, Height: 480}, ChooseExtent(caps, 640, 480))
	assert.Equal(t, core1_0.Extent2D{Width: 1024, Height: 1}, ChooseExtent(caps, 5000, 0))
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, 3, ChooseImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 0}))
	assert.Equal(t, 3, ChooseImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
	assert.Equal(t, 2, ChooseImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
}

func TestRenderPassInfo(t *testing.T) {
	info := RenderPassInfo(core1_0.FormatB8G8R8A8SRGB)

	require.Len(t, info.Attachments, 1)
	color := info.Attachments[0]
	assert.Equal(t, core1_0.FormatB8G8R8A8SRGB, color.Format)
	assert.Equal(t, core1_0.AttachmentLoadOpClear, color.LoadOp)
	assert.Equal(t, core1_0.ImageLayoutUndefined, color.InitialLayout)
	assert.Equal(t, khr_swapchain.ImageLayoutPresentSrc, color.FinalLayout)

	require.Len(t, info.Subpasses, 1)
	require.Len(t, info.Subpasses[0].ColorAttachments, 1)
	assert.Equal(t, core1_0.ImageLayoutColorAttachmentOptimal, info.Subpasses[0].ColorAttachments[0].Layout)

	require.Len(t, info.SubpassDependencies, 1)
	dep := info.SubpassDependencies[0]
	assert.Equal(t, core1_0.SubpassExternal, dep.SrcSubpass)
	assert.Equal(t, core1_0.PipelineStageColorAttachmentOutput, dep.DstStageMask)
	assert.Equal(t, core1_0.AccessColorAttachmentWrite, dep.DstAccessMask)
}

func TestStageFlags(t *testing.T) {
	flags, err := stageFlags(frame.StageColorAttachmentOutput)
	require.NoError(t, err)
	assert.Equal(t, core1_0.PipelineStageColorAttachmentOutput, flags)

	_, err = stageFlags(frame.Stage(99))
	assert.Error(t, err)
}

func TestNoTimeout(t *testing.T) {
	assert.Equal(t, common.NoTimeout, noTimeout(frame.Infinite))
	assert.Equal(t, time.Second, noTimeout(time.Second))
}

func TestDebugLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, debugLevel(ext_debug_utils.SeverityError))
	assert.Equal(t, slog.LevelWarn, debugLevel(ext_debug_utils.SeverityWarning))
	assert.Equal(t, slog.LevelError, debugLevel(ext_debug_utils.SeverityError|ext_debug_utils.SeverityWarning))
	assert.Equal(t, slog.LevelDebug, debugLevel(0))
}

func TestSubmitRejectsForeignPrimitives(t *testing.T) {
	d := &Device{}
	err := d.Submit(frame.Submission{Commands: foreignCommands{}})
	assert.Error(t, err)
}

type foreignCommands struct{}

func (foreignCommands) Reset() error { return nil }
