package gpu

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/learnvulkan/internal/frame"
	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

// ErrFenceTimeout is returned when a fence is not signaled within the requested timeout.
var ErrFenceTimeout = errors.New("timed out waiting for fence")

type Semaphore struct {
	driver core1_0.CoreDeviceDriver
	Handle core1_0.Semaphore
}

func (s *Semaphore) Destroy() {
	s.driver.DestroySemaphore(s.Handle, nil)
}

type Fence struct {
	driver core1_0.CoreDeviceDriver
	report vkerr.Reporter
	Handle core1_0.Fence
}

func (f *Fence) Wait(timeout time.Duration) error {
	res, err := f.driver.WaitForFences(true, noTimeout(timeout), f.Handle)
	if err != nil {
		return f.report.Check(err, "wait for fence")
	}
	if res == core1_0.VKTimeout {
		return errors.Wrapf(ErrFenceTimeout, "after %s", timeout)
	}
	return nil
}

func (f *Fence) Reset() error {
	_, err := f.driver.ResetFences(f.Handle)
	return f.report.Check(err, "reset fence")
}

func (f *Fence) Destroy() {
	f.driver.DestroyFence(f.Handle, nil)
}

type CommandBuffer struct {
	driver core1_0.CoreDeviceDriver
	report vkerr.Reporter
	Handle core1_0.CommandBuffer
}

func (c *CommandBuffer) Reset() error {
	_, err := c.driver.ResetCommandBuffer(c.Handle, 0)
	return c.report.Check(err, "reset command buffer")
}

// Device submits to the graphics queue and allocates from the context's resettable pool.
type Device struct {
	driver core1_0.CoreDeviceDriver
	pool   core1_0.CommandPool
	queue  core1_0.Queue
	report vkerr.Reporter
}

var _ frame.Device = (*Device)(nil)

func (c *Context) FrameDevice() *Device {
	return &Device{
		driver: c.Device,
		pool:   c.CommandPool,
		queue:  c.GraphicsQueue,
		report: c.Report,
	}
}

func (d *Device) CreateSemaphore() (frame.Semaphore, error) {
	semaphore, _, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, d.report.Check(err, "create semaphore")
	}
	return &Semaphore{driver: d.driver, Handle: semaphore}, nil
}

func (d *Device) CreateFence(signaled bool) (frame.Fence, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}

	fence, _, err := d.driver.CreateFence(nil, core1_0.FenceCreateInfo{Flags: flags})
	if err != nil {
		return nil, d.report.Check(err, "create fence")
	}
	return &Fence{driver: d.driver, report: d.report, Handle: fence}, nil
}

func (d *Device) AllocateCommandBuffers(n int) ([]frame.CommandBuffer, error) {
	buffers, _, err := d.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: n,
	})
	if err != nil {
		return nil, d.report.Check(err, "allocate %d command buffers", n)
	}

	out := make([]frame.CommandBuffer, len(buffers))
	for i, buffer := range buffers {
		out[i] = &CommandBuffer{driver: d.driver, report: d.report, Handle: buffer}
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(buffers []frame.CommandBuffer) {
	handles := make([]core1_0.CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		if cb, ok := buffer.(*CommandBuffer); ok {
			handles = append(handles, cb.Handle)
		}
	}
	if len(handles) > 0 {
		d.driver.FreeCommandBuffers(handles...)
	}
}

func stageFlags(stage frame.Stage) (core1_0.PipelineStageFlags, error) {
	switch stage {
	case frame.StageColorAttachmentOutput:
		return core1_0.PipelineStageColorAttachmentOutput, nil
	}
	return 0, errors.AssertionFailedf("unknown wait stage %d", stage)
}

func (d *Device) Submit(s frame.Submission) error {
	commands, ok := s.Commands.(*CommandBuffer)
	if !ok {
		return errors.AssertionFailedf("submit: command buffer %T is not a vulkan command buffer", s.Commands)
	}

	info := core1_0.SubmitInfo{CommandBuffers: []core1_0.CommandBuffer{commands.Handle}}

	if s.Wait != nil {
		wait, ok := s.Wait.(*Semaphore)
		if !ok {
			return errors.AssertionFailedf("submit: semaphore %T is not a vulkan semaphore", s.Wait)
		}
		stage, err := stageFlags(s.WaitStage)
		if err != nil {
			return err
		}
		info.WaitSemaphores = []core1_0.Semaphore{wait.Handle}
		info.WaitDstStageMask = []core1_0.PipelineStageFlags{stage}
	}

	if s.Signal != nil {
		signal, ok := s.Signal.(*Semaphore)
		if !ok {
			return errors.AssertionFailedf("submit: semaphore %T is not a vulkan semaphore", s.Signal)
		}
		info.SignalSemaphores = []core1_0.Semaphore{signal.Handle}
	}

	var fence *core1_0.Fence
	if s.Fence != nil {
		f, ok := s.Fence.(*Fence)
		if !ok {
			return errors.AssertionFailedf("submit: fence %T is not a vulkan fence", s.Fence)
		}
		fence = &f.Handle
	}

	_, err := d.driver.QueueSubmit(d.queue, fence, info)
	return d.report.Check(err, "submit to graphics queue")
}

func (d *Device) WaitIdle() error {
	_, err := d.driver.DeviceWaitIdle()
	return d.report.Check(err, "wait for device idle")
}
