// Package gpu owns the Vulkan objects the rest of the renderer treats as given: the window, the
// instance and device, the queues, the swapchain, and the Vulkan implementations of the frame
// orchestrator's primitives.
package gpu

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/config"
	"github.com/vkngwrapper/learnvulkan/internal/resource"
	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

var deviceExtensions = []string{khr_swapchain.ExtensionName}

type Options struct {
	Window config.Window
	// Layers are enabled on the instance. A non-empty list also installs the debug messenger.
	Layers []string
	// Anisotropy requires and enables sampler anisotropy.
	Anisotropy bool
	// Hidden creates the window without showing it.
	Hidden bool
	Report vkerr.Reporter
	Logger *slog.Logger
}

// Context is everything created once per process, in creation order.
type Context struct {
	Window *sdl.Window

	Global   core1_0.GlobalDriver
	Instance core1_0.CoreInstanceDriver
	Device   core1_0.CoreDeviceDriver

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	SurfaceExtension khr_surface.ExtensionDriver
	Surface          khr_surface.Surface

	Physical         Candidate
	MemoryProperties *core1_0.PhysicalDeviceMemoryProperties

	GraphicsQueue core1_0.Queue
	PresentQueue  core1_0.Queue
	CommandPool   core1_0.CommandPool

	Report vkerr.Reporter
	Logger *slog.Logger

	opts   Options
	scope  *resource.Scope
	closed bool
}

// NewContext opens the window and brings up Vulkan through the command pool. On failure
// everything already created is destroyed.
func NewContext(opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	report := opts.Report
	if report.Logger == nil {
		report.Logger = logger
	}

	c := &Context{
		Report: report,
		Logger: logger,
		opts:   opts,
		scope:  resource.NewScope(logger),
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"window", c.initWindow},
		{"instance", c.createInstance},
		{"debug messenger", c.setupDebugMessenger},
		{"surface", c.createSurface},
		{"physical device", c.pickPhysicalDevice},
		{"logical device", c.createLogicalDevice},
		{"command pool", c.createCommandPool},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			c.scope.Release()
			return nil, errors.Wrapf(err, "init %s", step.name)
		}
	}

	return c, nil
}

// Scope releases its objects when the context closes, before the device is destroyed.
func (c *Context) Scope() *resource.Scope {
	return c.scope
}

func (c *Context) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}
	c.scope.Defer("sdl", sdl.Quit)

	flags := uint32(sdl.WINDOW_VULKAN)
	if c.opts.Hidden {
		flags |= sdl.WINDOW_HIDDEN
	} else {
		flags |= sdl.WINDOW_SHOWN
	}

	w := c.opts.Window
	window, err := sdl.CreateWindow(w.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(w.Width), int32(w.Height), flags)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	c.Window = window
	c.scope.Defer("window", func() { window.Destroy() })

	c.Global, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "load vulkan driver")
	}
	return nil
}

func (c *Context) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    c.opts.Window.Title,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := c.Window.VulkanGetInstanceExtensions()
	extensions, _, err := c.Global.AvailableExtensions()
	if err != nil {
		return c.Report.Check(err, "enumerate instance extensions")
	}

	for _, ext := range sdlExtensions {
		if _, hasExt := extensions[ext]; !hasExt {
			return errors.Newf("missing instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if _, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]; enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if len(c.opts.Layers) > 0 {
		layers, _, err := c.Global.AvailableLayers()
		if err != nil {
			return c.Report.Check(err, "enumerate instance layers")
		}

		for _, layer := range c.opts.Layers {
			if _, hasLayer := layers[layer]; !hasLayer {
				return errors.Newf("layer %s not available, install the Vulkan SDK or run with --no-validation", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		// Also covers messages from instance creation and destruction.
		instanceOptions.Next = c.debugMessengerOptions()
	}

	instance, _, err := c.Global.CreateInstance(nil, instanceOptions)
	if err != nil {
		return c.Report.Check(err, "create instance")
	}
	c.Instance = instance
	c.scope.Defer("instance", func() { instance.DestroyInstance(nil) })

	c.Logger.Debug("instance created", "extensions", instanceOptions.EnabledExtensionNames, "layers", instanceOptions.EnabledLayerNames)
	return nil
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *Context) setupDebugMessenger() error {
	if len(c.opts.Layers) == 0 {
		return nil
	}

	c.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(c.Instance)
	messenger, _, err := c.debugDriver.CreateDebugUtilsMessenger(nil, c.debugMessengerOptions())
	if err != nil {
		return c.Report.Check(err, "create debug messenger")
	}
	c.debugMessenger = messenger
	c.scope.Defer("debug messenger", func() { c.debugDriver.DestroyDebugUtilsMessenger(messenger, nil) })
	return nil
}

func (c *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	c.Logger.Log(context.Background(), debugLevel(severity), data.Message, "type", msgType.String())
	return false
}

func debugLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

func (c *Context) createSurface() error {
	c.SurfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(c.Instance)
	surface, err := vkng_sdl2.CreateSurface(c.Instance.Instance(), c.SurfaceExtension, c.Window)
	if err != nil {
		return c.Report.Check(err, "create surface")
	}
	c.Surface = surface
	c.scope.Defer("surface", func() { c.SurfaceExtension.DestroySurface(surface, nil) })
	return nil
}

func (c *Context) querySurfaceSupport(device core1_0.PhysicalDevice) (SurfaceSupport, error) {
	var support SurfaceSupport
	var err error

	support.Capabilities, _, err = c.SurfaceExtension.GetPhysicalDeviceSurfaceCapabilities(c.Surface, device)
	if err != nil {
		return support, err
	}

	support.Formats, _, err = c.SurfaceExtension.GetPhysicalDeviceSurfaceFormats(c.Surface, device)
	if err != nil {
		return support, err
	}

	support.PresentModes, _, err = c.SurfaceExtension.GetPhysicalDeviceSurfacePresentModes(c.Surface, device)
	return support, err
}

func (c *Context) findQueueFamilies(device core1_0.PhysicalDevice) (QueueFamilies, error) {
	families := QueueFamilies{Graphics: -1, Present: -1}

	for index, family := range c.Instance.GetPhysicalDeviceQueueFamilyProperties(device) {
		if families.Graphics < 0 && family.QueueFlags&core1_0.QueueGraphics != 0 {
			families.Graphics = index
		}

		if families.Present < 0 {
			supported, _, err := c.SurfaceExtension.GetPhysicalDeviceSurfaceSupport(c.Surface, device, index)
			if err != nil {
				return families, err
			}
			if supported {
				families.Present = index
			}
		}

		if families.Complete() {
			break
		}
	}

	return families, nil
}

// candidate checks the hard requirements. A nil candidate with a nil error means unsuitable.
func (c *Context) candidate(device core1_0.PhysicalDevice) (*Candidate, error) {
	extensions, _, err := c.Instance.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return nil, err
	}
	for _, extension := range deviceExtensions {
		if _, hasExtension := extensions[extension]; !hasExtension {
			return nil, nil
		}
	}

	support, err := c.querySurfaceSupport(device)
	if err != nil {
		return nil, err
	}
	if !support.Adequate() {
		return nil, nil
	}

	families, err := c.findQueueFamilies(device)
	if err != nil {
		return nil, err
	}
	if !families.Complete() {
		return nil, nil
	}

	if c.opts.Anisotropy && !c.Instance.GetPhysicalDeviceFeatures(device).SamplerAnisotropy {
		return nil, nil
	}

	properties, err := c.Instance.GetPhysicalDeviceProperties(device)
	if err != nil {
		return nil, err
	}

	_, portability := extensions[khr_portability_subset.ExtensionName]
	return &Candidate{
		Device:      device,
		Properties:  properties,
		Families:    families,
		Support:     support,
		Portability: portability,
	}, nil
}

func (c *Context) pickPhysicalDevice() error {
	physicalDevices, _, err := c.Instance.EnumeratePhysicalDevices()
	if err != nil {
		return c.Report.Check(err, "enumerate physical devices")
	}

	var candidates []*Candidate
	var ratings []int
	for _, device := range physicalDevices {
		candidate, err := c.candidate(device)
		if err != nil {
			return c.Report.Check(err, "query physical device")
		}
		if candidate == nil {
			continue
		}

		rating := Rate(candidate.Properties.DeviceType, candidate.Support)
		c.Logger.Debug("physical device suitable", "name", candidate.Properties.DeviceName, "rating", rating)
		candidates = append(candidates, candidate)
		ratings = append(ratings, rating)
	}

	picked := best(ratings)
	if picked < 0 {
		return errors.Wrapf(vkerr.ErrNoSuitableDevice, "%d devices checked", len(physicalDevices))
	}

	c.Physical = *candidates[picked]
	c.MemoryProperties = c.Instance.GetPhysicalDeviceMemoryProperties(c.Physical.Device)
	c.Logger.Info("physical device selected",
		"name", c.Physical.Properties.DeviceName,
		"type", c.Physical.Properties.DeviceType,
		"graphics_family", c.Physical.Families.Graphics,
		"present_family", c.Physical.Families.Present)
	return nil
}

func (c *Context) createLogicalDevice() error {
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range c.Physical.Families.Unique() {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	extensionNames := append([]string{}, deviceExtensions...)
	if c.Physical.Portability {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	device, _, err := c.Instance.CreateDevice(c.Physical.Device, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: c.opts.Anisotropy,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return c.Report.Check(err, "create logical device")
	}
	c.Device = device
	c.scope.Defer("device", func() { device.DestroyDevice(nil) })

	c.GraphicsQueue = device.GetQueue(c.Physical.Families.Graphics, 0)
	c.PresentQueue = device.GetQueue(c.Physical.Families.Present, 0)
	return nil
}

func (c *Context) createCommandPool() error {
	pool, _, err := c.Device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: c.Physical.Families.Graphics,
	})
	if err != nil {
		return c.Report.Check(err, "create command pool")
	}
	c.CommandPool = pool
	c.scope.Defer("command pool", func() { c.Device.DestroyCommandPool(pool, nil) })
	return nil
}

// ShouldClose drains pending window events and reports whether the user asked to quit.
func (c *Context) ShouldClose() bool {
	closing := false
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			closing = true
		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_CLOSE {
				closing = true
			}
		}
	}
	return closing
}

// DrawableSize is the window size in pixels.
func (c *Context) DrawableSize() (int, int) {
	w, h := c.Window.VulkanGetDrawableSize()
	return int(w), int(h)
}

// Close waits for the device to go idle and destroys everything in reverse creation order,
// including whatever was added to Scope.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.Device != nil {
		_, err = c.Device.DeviceWaitIdle()
		err = c.Report.Check(err, "wait for device idle")
	}
	c.scope.Release()
	return err
}
