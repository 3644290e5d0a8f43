package frame

import "time"

// Infinite disables a timeout.
const Infinite time.Duration = 0

// Semaphore orders GPU work against other GPU work. The CPU never waits on it.
type Semaphore interface {
	Destroy()
}

// Fence is signaled by the GPU when a submission completes. It is the only primitive the CPU
// blocks on.
type Fence interface {
	// Wait blocks until the fence is signaled or the timeout expires. Infinite waits forever.
	Wait(timeout time.Duration) error
	Reset() error
	Destroy()
}

// CommandBuffer is a primary command buffer owned by exactly one slot.
type CommandBuffer interface {
	Reset() error
}

// Stage is a pipeline stage a submission's wait applies at.
type Stage int

const (
	// StageColorAttachmentOutput lets everything before color output run before the wait
	// semaphore is signaled.
	StageColorAttachmentOutput Stage = iota + 1
)

// Submission is one batch of work on the graphics queue.
type Submission struct {
	Commands  CommandBuffer
	Wait      Semaphore
	WaitStage Stage
	Signal    Semaphore
	Fence     Fence
}

// Device creates the per-slot primitives and submits to the graphics queue.
type Device interface {
	CreateSemaphore() (Semaphore, error)
	CreateFence(signaled bool) (Fence, error)
	AllocateCommandBuffers(n int) ([]CommandBuffer, error)
	FreeCommandBuffers(buffers []CommandBuffer)
	Submit(s Submission) error
	// WaitIdle blocks until all submitted work on the device has finished.
	WaitIdle() error
}

// Surface hands out presentable images. Image indices are chosen by the presentation engine
// and are unrelated to slot indices.
type Surface interface {
	// AcquireNextImage returns the index of the next presentable image. signal is signaled once
	// the presentation engine has released the image. Returns vkerr.ErrAcquireTimeout or
	// vkerr.ErrSurfaceStale for the two presentation failures.
	AcquireNextImage(timeout time.Duration, signal Semaphore) (int, error)
	// Present queues image for display after wait is signaled.
	Present(image int, wait Semaphore) error
	ImageCount() int
	Extent() (width, height int)
}

// Target is what a recorded command buffer draws into.
type Target struct {
	Slot          int
	Image         int
	Width, Height int
}

// Recorder records the draw for one frame into a command buffer that has just been reset.
type Recorder interface {
	Record(cmd CommandBuffer, target Target) error
}

// Scene writes the per-frame uniform block.
type Scene interface {
	WriteUniforms(dst []byte, elapsed time.Duration, width, height int) error
}

// Window reports whether the user asked to close. It is polled once per frame.
type Window interface {
	ShouldClose() bool
}
