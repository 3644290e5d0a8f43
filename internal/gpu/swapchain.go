package gpu

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/frame"
	"github.com/vkngwrapper/learnvulkan/internal/resource"
	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB and otherwise takes the last format offered.
func ChooseSurfaceFormat(formats []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	if len(formats) == 0 {
		return khr_surface.SurfaceFormat{}, vkerr.ErrNoSurfaceFormat
	}

	for _, format := range formats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format, nil
		}
	}

	return formats[len(formats)-1], nil
}

// ChoosePresentMode prefers mailbox. FIFO is always available.
func ChoosePresentMode(modes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, mode := range modes {
		if mode == khr_surface.PresentModeMailbox {
			return mode
		}
	}

	return khr_surface.PresentModeFIFO
}

// ChooseExtent uses the surface's current extent unless the surface leaves it to the
// application, in which case the drawable size is clamped to the supported range.
func ChooseExtent(capabilities *khr_surface.SurfaceCapabilities, drawableWidth, drawableHeight int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clamp(drawableWidth, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(drawableHeight, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

// ChooseImageCount asks for one image more than the minimum. A maximum of 0 means unbounded.
func ChooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

// Swapchain is the presentation surface the frame orchestrator draws into.
type Swapchain struct {
	extension    khr_swapchain.ExtensionDriver
	driver       core1_0.CoreDeviceDriver
	presentQueue core1_0.Queue

	Handle      khr_swapchain.Swapchain
	Format      khr_surface.SurfaceFormat
	PresentMode khr_surface.PresentMode
	extent      core1_0.Extent2D

	Images       []core1_0.Image
	Views        []core1_0.ImageView
	Framebuffers []core1_0.Framebuffer

	scope  *resource.Scope
	report vkerr.Reporter
	logger *slog.Logger

	suboptimal bool
}

var _ frame.Surface = (*Swapchain)(nil)

// NewSwapchain creates the swapchain and one color view per image.
func NewSwapchain(c *Context) (*Swapchain, error) {
	s := &Swapchain{
		extension:    khr_swapchain.CreateExtensionDriverFromCoreDriver(c.Device),
		driver:       c.Device,
		presentQueue: c.PresentQueue,
		scope:        resource.NewScope(c.Logger),
		report:       c.Report,
		logger:       c.Logger,
	}

	if err := s.create(c); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) create(c *Context) error {
	// Capabilities can change with the window after the device was picked.
	support, err := c.querySurfaceSupport(c.Physical.Device)
	if err != nil {
		return s.report.Check(err, "query surface support")
	}

	s.Format, err = ChooseSurfaceFormat(support.Formats)
	if err != nil {
		return err
	}
	s.PresentMode = ChoosePresentMode(support.PresentModes)
	width, height := c.DrawableSize()
	s.extent = ChooseExtent(support.Capabilities, width, height)
	imageCount := ChooseImageCount(support.Capabilities)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	families := c.Physical.Families
	if families.Graphics != families.Present {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, families.Graphics, families.Present)
	}

	swapchain, _, err := s.extension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: c.Surface,

		MinImageCount:    imageCount,
		ImageFormat:      s.Format.Format,
		ImageColorSpace:  s.Format.ColorSpace,
		ImageExtent:      s.extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    s.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return s.report.Check(err, "create swapchain")
	}
	s.Handle = swapchain
	s.scope.Defer("swapchain", func() { s.extension.DestroySwapchain(swapchain, nil) })

	s.Images, _, err = s.extension.GetSwapchainImages(swapchain)
	if err != nil {
		return s.report.Check(err, "get swapchain images")
	}

	for i, image := range s.Images {
		view, _, err := s.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   s.Format.Format,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return s.report.Check(err, "create swapchain image view %d", i)
		}
		s.Views = append(s.Views, view)
		s.scope.Defer("swapchain image view", func() { s.driver.DestroyImageView(view, nil) })
	}

	s.logger.Info("swapchain created",
		"images", len(s.Images),
		"width", s.extent.Width,
		"height", s.extent.Height,
		"format", s.Format.Format,
		"present_mode", s.PresentMode)
	return nil
}

// CreateFramebuffers creates one framebuffer per swapchain image for renderPass.
func (s *Swapchain) CreateFramebuffers(renderPass core1_0.RenderPass) error {
	for i, view := range s.Views {
		framebuffer, _, err := s.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  renderPass,
			Layers:      1,
			Attachments: []core1_0.ImageView{view},
			Width:       s.extent.Width,
			Height:      s.extent.Height,
		})
		if err != nil {
			return s.report.Check(err, "create framebuffer %d", i)
		}
		s.Framebuffers = append(s.Framebuffers, framebuffer)
		s.scope.Defer("framebuffer", func() { s.driver.DestroyFramebuffer(framebuffer, nil) })
	}
	return nil
}

func (s *Swapchain) ImageCount() int {
	return len(s.Images)
}

func (s *Swapchain) Extent() (int, int) {
	return s.extent.Width, s.extent.Height
}

// Extent2D is the swapchain extent as Vulkan wants it.
func (s *Swapchain) Extent2D() core1_0.Extent2D {
	return s.extent
}

func noTimeout(timeout time.Duration) time.Duration {
	if timeout == frame.Infinite {
		return common.NoTimeout
	}
	return timeout
}

func (s *Swapchain) AcquireNextImage(timeout time.Duration, signal frame.Semaphore) (int, error) {
	semaphore, ok := signal.(*Semaphore)
	if !ok {
		return -1, errors.AssertionFailedf("acquire: semaphore %T is not a vulkan semaphore", signal)
	}

	imageIndex, res, err := s.extension.AcquireNextImage(s.Handle, noTimeout(timeout), &semaphore.Handle, nil)
	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return -1, errors.Wrap(vkerr.ErrSurfaceStale, "acquire next image")
	case err != nil:
		return -1, s.report.Check(err, "acquire next image")
	case res == core1_0.VKTimeout || res == core1_0.VKNotReady:
		return -1, errors.Wrapf(vkerr.ErrAcquireTimeout, "after %s", timeout)
	case res == khr_swapchain.VKSuboptimal:
		s.noteSuboptimal()
	}

	return imageIndex, nil
}

func (s *Swapchain) Present(image int, wait frame.Semaphore) error {
	semaphore, ok := wait.(*Semaphore)
	if !ok {
		return errors.AssertionFailedf("present: semaphore %T is not a vulkan semaphore", wait)
	}

	res, err := s.extension.QueuePresent(s.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{semaphore.Handle},
		Swapchains:     []khr_swapchain.Swapchain{s.Handle},
		ImageIndices:   []int{image},
	})
	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return errors.Wrap(vkerr.ErrSurfaceStale, "present")
	case err != nil:
		return s.report.Check(err, "present image %d", image)
	case res == khr_swapchain.VKSuboptimal:
		s.noteSuboptimal()
	}
	return nil
}

// Suboptimal images still present correctly. It is only logged once.
func (s *Swapchain) noteSuboptimal() {
	if !s.suboptimal {
		s.suboptimal = true
		s.logger.Warn("swapchain no longer matches the surface exactly")
	}
}

// Destroy releases framebuffers, views and the swapchain. The caller makes sure the device is idle.
func (s *Swapchain) Destroy() {
	s.scope.Release()
	s.Framebuffers = nil
	s.Views = nil
	s.Images = nil
}
