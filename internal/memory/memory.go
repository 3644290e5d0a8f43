// Package memory finds device memory types and binds allocations to buffers and images.
package memory

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

// NoMemoryType is returned by FindMemoryType alongside vkerr.ErrNoMemoryType.
const NoMemoryType = -1

// FindMemoryType returns the first memory type index that is allowed by typeFilter and whose
// property flags contain every bit in required. Candidates are not ranked.
func FindMemoryType(props *core1_0.PhysicalDeviceMemoryProperties, typeFilter uint32, required core1_0.MemoryPropertyFlags) (int, error) {
	if props == nil {
		return NoMemoryType, errors.Wrap(vkerr.ErrNotInitialized, "memory properties")
	}

	for i, memoryType := range props.MemoryTypes {
		if i >= 32 {
			break
		}
		typeBit := uint32(1) << uint(i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&required) == required {
			return i, nil
		}
	}

	return NoMemoryType, errors.Wrapf(vkerr.ErrNoMemoryType, "type filter %#x, properties %s", typeFilter, required)
}

// Allocator creates buffers and images backed by dedicated device memory.
type Allocator struct {
	driver core1_0.CoreDeviceDriver
	props  *core1_0.PhysicalDeviceMemoryProperties
	report vkerr.Reporter
	logger *slog.Logger
}

func NewAllocator(driver core1_0.CoreDeviceDriver, props *core1_0.PhysicalDeviceMemoryProperties, report vkerr.Reporter, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		driver: driver,
		props:  props,
		report: report,
		logger: logger,
	}
}

func (a *Allocator) Driver() core1_0.CoreDeviceDriver {
	return a.driver
}

func (a *Allocator) allocate(size int, typeBits uint32, properties core1_0.MemoryPropertyFlags) (core1_0.DeviceMemory, error) {
	typeIndex, err := FindMemoryType(a.props, typeBits, properties)
	if err != nil {
		return core1_0.DeviceMemory{}, a.report.Check(err, "find memory type")
	}
	a.logger.Debug("memory type selected", "index", typeIndex, "size", size, "properties", properties)

	memory, _, err := a.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: typeIndex,
	})
	if err != nil {
		return core1_0.DeviceMemory{}, a.report.Check(err, "allocate %d bytes from memory type %d", size, typeIndex)
	}
	return memory, nil
}

// CreateBuffer creates a buffer, allocates memory with the requested properties and binds it.
// On failure the partially built buffer is still returned so the caller can destroy it.
func (a *Allocator) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*Buffer, error) {
	b := &Buffer{driver: a.driver, Size: size}

	handle, _, err := a.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return b, a.report.Check(err, "create buffer of %d bytes", size)
	}
	b.Handle = handle

	reqs := a.driver.GetBufferMemoryRequirements(handle)
	b.Memory, err = a.allocate(reqs.Size, reqs.MemoryTypeBits, properties)
	if err != nil {
		return b, err
	}

	_, err = a.driver.BindBufferMemory(handle, b.Memory, 0)
	if err != nil {
		return b, a.report.Check(err, "bind buffer memory")
	}

	return b, nil
}

type ImageSpec struct {
	Width, Height int
	Format        core1_0.Format
	Tiling        core1_0.ImageTiling
	Usage         core1_0.ImageUsageFlags
}

// CreateImage creates a single-mip 2D image and binds memory with the requested properties.
// On failure the partially built image is still returned so the caller can destroy it.
func (a *Allocator) CreateImage(spec ImageSpec, properties core1_0.MemoryPropertyFlags) (*Image, error) {
	img := &Image{driver: a.driver, Spec: spec}

	handle, _, err := a.driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  spec.Width,
			Height: spec.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        spec.Format,
		Tiling:        spec.Tiling,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         spec.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return img, a.report.Check(err, "create %dx%d image", spec.Width, spec.Height)
	}
	img.Handle = handle

	reqs := a.driver.GetImageMemoryRequirements(handle)
	img.Memory, err = a.allocate(reqs.Size, reqs.MemoryTypeBits, properties)
	if err != nil {
		return img, err
	}

	_, err = a.driver.BindImageMemory(handle, img.Memory, 0)
	if err != nil {
		return img, a.report.Check(err, "bind image memory")
	}

	return img, nil
}

// CreateImageView creates a color view over the whole image.
func (a *Allocator) CreateImageView(image core1_0.Image, format core1_0.Format) (core1_0.ImageView, error) {
	view, _, err := a.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return core1_0.ImageView{}, a.report.Check(err, "create image view")
	}
	return view, nil
}
