package gpu

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// SurfaceSupport is what a physical device can do with the window surface.
type SurfaceSupport struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

// Adequate reports whether a swapchain can be built at all.
func (s SurfaceSupport) Adequate() bool {
	return s.Capabilities != nil && len(s.Formats) > 0 && len(s.PresentModes) > 0
}

// QueueFamilies holds the first family found for each role, or -1.
type QueueFamilies struct {
	Graphics int
	Present  int
}

func (q QueueFamilies) Complete() bool {
	return q.Graphics >= 0 && q.Present >= 0
}

// Unique lists the distinct families, graphics first.
func (q QueueFamilies) Unique() []int {
	if q.Graphics == q.Present {
		return []int{q.Graphics}
	}
	return []int{q.Graphics, q.Present}
}

// Candidate is a physical device that passed every hard requirement.
type Candidate struct {
	Device     core1_0.PhysicalDevice
	Properties *core1_0.PhysicalDeviceProperties
	Families   QueueFamilies
	Support    SurfaceSupport
	// Portability is set when the device needs VK_KHR_portability_subset enabled.
	Portability bool
}

// Rate scores a suitable device. Discrete GPUs dominate; sRGB output and mailbox presentation
// break ties between devices of the same type.
func Rate(deviceType core1_0.PhysicalDeviceType, support SurfaceSupport) int {
	rating := 1
	if deviceType == core1_0.PhysicalDeviceTypeDiscreteGPU {
		rating += 1000
	}

	for _, format := range support.Formats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			rating += 10
			break
		}
	}

	for _, mode := range support.PresentModes {
		if mode == khr_surface.PresentModeMailbox {
			rating += 10
			break
		}
	}

	return rating
}

// best returns the index of the highest rated candidate, the first one on ties, or -1.
func best(ratings []int) int {
	picked, highest := -1, 0
	for i, rating := range ratings {
		if rating > highest {
			picked, highest = i, rating
		}
	}
	return picked
}
