// Package transfer moves data between host visible staging buffers and device local buffers
// and images using one-shot command buffers that are waited on synchronously.
package transfer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/memory"
	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

const stagingProperties = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

// Engine records and submits copies on a single queue. Every call blocks until the queue is
// idle, so it must not be used while frames are in flight on the same queue.
type Engine struct {
	driver core1_0.CoreDeviceDriver
	queue  core1_0.Queue
	pool   core1_0.CommandPool
	alloc  *memory.Allocator
	report vkerr.Reporter
	logger *slog.Logger
}

func NewEngine(alloc *memory.Allocator, queue core1_0.Queue, pool core1_0.CommandPool, report vkerr.Reporter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		driver: alloc.Driver(),
		queue:  queue,
		pool:   pool,
		alloc:  alloc,
		report: report,
		logger: logger,
	}
}

func (e *Engine) stage(data []byte) (*memory.Buffer, error) {
	staging, err := e.alloc.CreateBuffer(len(data), core1_0.BufferUsageTransferSrc, stagingProperties)
	if err != nil {
		return staging, err
	}

	// Coherent memory: no flush after the copy.
	return staging, staging.Write(0, data)
}

// UploadBuffer copies data into a new device local buffer with usage|TransferDst.
func (e *Engine) UploadBuffer(data []byte, usage core1_0.BufferUsageFlags) (*memory.Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("upload of empty buffer")
	}

	staging, err := e.stage(data)
	defer staging.Destroy()
	if err != nil {
		return nil, err
	}

	dst, err := e.alloc.CreateBuffer(len(data), usage|core1_0.BufferUsageTransferDst, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return dst, err
	}

	err = e.submit("copy buffer", func(cmd core1_0.CommandBuffer) error {
		return e.driver.CmdCopyBuffer(cmd, staging.Handle, dst.Handle, core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      len(data),
		})
	})
	if err != nil {
		return dst, err
	}

	e.logger.Debug("uploaded buffer", "bytes", len(data), "usage", usage)
	return dst, nil
}

// UploadImage copies tightly packed RGBA pixels into a new device local image and leaves it in
// ShaderReadOnlyOptimal layout. TransferDst and Sampled are always added to usage.
func (e *Engine) UploadImage(pixels []byte, width, height int, format core1_0.Format, usage core1_0.ImageUsageFlags) (*memory.Image, error) {
	if len(pixels) != width*height*4 {
		return nil, errors.Newf("expected %d bytes for %dx%d image, got %d", width*height*4, width, height, len(pixels))
	}

	staging, err := e.stage(pixels)
	defer staging.Destroy()
	if err != nil {
		return nil, err
	}

	img, err := e.alloc.CreateImage(memory.ImageSpec{
		Width:  width,
		Height: height,
		Format: format,
		Tiling: core1_0.ImageTilingOptimal,
		Usage:  usage | core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
	}, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return img, err
	}

	err = e.submit("copy buffer to image", func(cmd core1_0.CommandBuffer) error {
		err := e.barrier(cmd, img.Handle, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
		if err != nil {
			return err
		}

		err = e.driver.CmdCopyBufferToImage(cmd, staging.Handle, img.Handle, core1_0.ImageLayoutTransferDstOptimal,
			imageCopy(width, height),
		)
		if err != nil {
			return err
		}

		return e.barrier(cmd, img.Handle, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	})
	if err != nil {
		return img, err
	}

	e.logger.Debug("uploaded image", "width", width, "height", height, "format", format)
	return img, nil
}

// ReadBuffer copies size bytes of src back to the host. src needs TransferSrc usage.
func (e *Engine) ReadBuffer(src *memory.Buffer, size int) ([]byte, error) {
	readback, err := e.alloc.CreateBuffer(size, core1_0.BufferUsageTransferDst, stagingProperties)
	defer readback.Destroy()
	if err != nil {
		return nil, err
	}

	err = e.submit("read buffer", func(cmd core1_0.CommandBuffer) error {
		return e.driver.CmdCopyBuffer(cmd, src.Handle, readback.Handle, core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		})
	})
	if err != nil {
		return nil, err
	}

	return readback.Read(size)
}

// ReadImage copies an image in ShaderReadOnlyOptimal layout back to the host and returns it to
// that layout. The image needs TransferSrc usage.
func (e *Engine) ReadImage(img *memory.Image) ([]byte, error) {
	size := img.ByteSize()
	readback, err := e.alloc.CreateBuffer(size, core1_0.BufferUsageTransferDst, stagingProperties)
	defer readback.Destroy()
	if err != nil {
		return nil, err
	}

	err = e.submit("read image", func(cmd core1_0.CommandBuffer) error {
		err := e.barrier(cmd, img.Handle, core1_0.ImageLayoutShaderReadOnlyOptimal, core1_0.ImageLayoutTransferSrcOptimal)
		if err != nil {
			return err
		}

		err = e.driver.CmdCopyImageToBuffer(cmd, img.Handle, core1_0.ImageLayoutTransferSrcOptimal, readback.Handle,
			imageCopy(img.Spec.Width, img.Spec.Height),
		)
		if err != nil {
			return err
		}

		return e.barrier(cmd, img.Handle, core1_0.ImageLayoutTransferSrcOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	})
	if err != nil {
		return nil, err
	}

	return readback.Read(size)
}

func (e *Engine) barrier(cmd core1_0.CommandBuffer, image core1_0.Image, oldLayout, newLayout core1_0.ImageLayout) error {
	b, err := Transition(oldLayout, newLayout)
	if err != nil {
		return err
	}

	return e.driver.CmdPipelineBarrier(cmd, b.SrcStage, b.DstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		b.imageBarrier(image, oldLayout, newLayout),
	})
}

// submit records a one-shot command buffer, submits it and waits for the queue to go idle.
func (e *Engine) submit(op string, record func(cmd core1_0.CommandBuffer) error) error {
	buffers, _, err := e.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        e.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return e.report.Check(err, "%s: allocate command buffer", op)
	}
	cmd := buffers[0]
	defer e.driver.FreeCommandBuffers(cmd)

	_, err = e.driver.BeginCommandBuffer(cmd, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return e.report.Check(err, "%s: begin command buffer", op)
	}

	if err := record(cmd); err != nil {
		return e.report.Check(err, "%s: record", op)
	}

	_, err = e.driver.EndCommandBuffer(cmd)
	if err != nil {
		return e.report.Check(err, "%s: end command buffer", op)
	}

	_, err = e.driver.QueueSubmit(e.queue, nil, core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{cmd},
	})
	if err != nil {
		return e.report.Check(err, "%s: queue submit", op)
	}

	_, err = e.driver.QueueWaitIdle(e.queue)
	return e.report.Check(err, "%s: queue wait idle", op)
}

func imageCopy(width, height int) core1_0.BufferImageCopy {
	return core1_0.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,

		ImageSubresource: core1_0.ImageSubresourceLayers{
			AspectMask:     core1_0.ImageAspectColor,
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: core1_0.Extent3D{Width: width, Height: height, Depth: 1},
	}
}
