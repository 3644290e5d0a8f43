// Package frame drives the per-frame protocol for N frames in flight: wait for a slot, acquire
// an image, record, submit and present, then move to the next slot.
package frame

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/resource"
	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

// ErrStopped is returned by Frame after an earlier frame failed or the orchestrator was closed.
var ErrStopped = errors.New("frame loop stopped")

type SlotState int

const (
	Idle SlotState = iota
	Recording
	Submitted
)

func (s SlotState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Submitted:
		return "submitted"
	}
	return fmt.Sprintf("SlotState(%d)", int(s))
}

// Slot is the state owned by one frame in flight. No slot touches another slot's objects.
type Slot struct {
	Index          int
	Commands       CommandBuffer
	ImageAvailable Semaphore
	RenderFinished Semaphore
	InFlight       Fence
	Uniforms       []byte
	State          SlotState

	submissions uint64
}

type Options struct {
	FramesInFlight int
	// AcquireTimeout bounds the wait for a presentable image. Infinite by default.
	AcquireTimeout time.Duration
	// FenceTimeout bounds the wait for a slot to come back from the GPU. Infinite by default.
	FenceTimeout time.Duration
	Logger       *slog.Logger
	// Clock returns the time elapsed since the orchestrator started. Defaults to hrtime.
	Clock func() time.Duration
}

type Stats struct {
	Frames uint64
	// Submissions per slot index.
	Submissions []uint64
}

// Orchestrator owns the ring of frame slots.
type Orchestrator struct {
	device   Device
	surface  Surface
	recorder Recorder
	scene    Scene

	slots   []*Slot
	current int
	frames  uint64

	acquireTimeout time.Duration
	fenceTimeout   time.Duration
	clock          func() time.Duration
	logger         *slog.Logger

	scope   *resource.Scope
	stopped error
	closed  bool
}

// New creates every slot's command buffer, semaphores and fence. uniforms holds one
// persistently mapped region per slot. If any creation fails everything already created is
// released and no orchestrator is returned.
func New(device Device, surface Surface, recorder Recorder, scene Scene, uniforms [][]byte, opts Options) (*Orchestrator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	n := opts.FramesInFlight
	if n < 1 {
		return nil, errors.Newf("frames in flight must be at least 1, got %d", n)
	}
	if len(uniforms) != n {
		return nil, errors.Newf("%d uniform regions for %d frames in flight", len(uniforms), n)
	}
	if images := surface.ImageCount(); images < n {
		return nil, errors.Newf("surface has %d images, fewer than %d frames in flight", images, n)
	}

	clock := opts.Clock
	if clock == nil {
		start := hrtime.Now()
		clock = func() time.Duration { return hrtime.Since(start) }
	}

	o := &Orchestrator{
		device:         device,
		surface:        surface,
		recorder:       recorder,
		scene:          scene,
		acquireTimeout: opts.AcquireTimeout,
		fenceTimeout:   opts.FenceTimeout,
		clock:          clock,
		logger:         logger,
		scope:          resource.NewScope(logger),
	}

	if err := o.createSlots(n, uniforms); err != nil {
		o.scope.Release()
		return nil, err
	}

	logger.Info("frame orchestrator ready", "slots", n, "images", surface.ImageCount())
	return o, nil
}

func (o *Orchestrator) createSlots(n int, uniforms [][]byte) error {
	commands, err := o.device.AllocateCommandBuffers(n)
	if err != nil {
		return errors.Wrapf(err, "allocate %d command buffers", n)
	}
	if len(commands) != n {
		o.device.FreeCommandBuffers(commands)
		return errors.Newf("allocated %d command buffers, wanted %d", len(commands), n)
	}
	o.scope.Defer("command buffers", func() { o.device.FreeCommandBuffers(commands) })

	for i := 0; i < n; i++ {
		slot := &Slot{Index: i, Commands: commands[i], Uniforms: uniforms[i]}

		slot.ImageAvailable, err = o.device.CreateSemaphore()
		if err != nil {
			return errors.Wrapf(err, "create image available semaphore for slot %d", i)
		}
		o.scope.Defer(fmt.Sprintf("slot %d image available", i), slot.ImageAvailable.Destroy)

		slot.RenderFinished, err = o.device.CreateSemaphore()
		if err != nil {
			return errors.Wrapf(err, "create render finished semaphore for slot %d", i)
		}
		o.scope.Defer(fmt.Sprintf("slot %d render finished", i), slot.RenderFinished.Destroy)

		// Signaled so the first pass through the ring does not block.
		slot.InFlight, err = o.device.CreateFence(true)
		if err != nil {
			return errors.Wrapf(err, "create in flight fence for slot %d", i)
		}
		o.scope.Defer(fmt.Sprintf("slot %d in flight", i), slot.InFlight.Destroy)

		o.slots = append(o.slots, slot)
	}
	return nil
}

// Slots exposes the ring, indexed by slot.
func (o *Orchestrator) Slots() []*Slot {
	return o.slots
}

func (o *Orchestrator) Stats() Stats {
	s := Stats{Frames: o.frames, Submissions: make([]uint64, len(o.slots))}
	for i, slot := range o.slots {
		s.Submissions[i] = slot.submissions
	}
	return s
}

// next picks the slot for this frame: plain round robin starting at slot 0, never influenced by
// which image the surface returns.
func (o *Orchestrator) next() *Slot {
	slot := o.slots[o.current]
	o.current = (o.current + 1) % len(o.slots)
	return slot
}

// Frame runs one iteration of the protocol. After a failure the orchestrator refuses to run
// further frames, since the failed slot's fence may never be signaled.
func (o *Orchestrator) Frame() error {
	if o.stopped != nil {
		return o.stopped
	}

	err := o.frame(o.next())
	if err != nil {
		o.stopped = errors.Mark(err, ErrStopped)
		return o.stopped
	}
	return nil
}

func (o *Orchestrator) frame(slot *Slot) error {
	if err := slot.InFlight.Wait(o.fenceTimeout); err != nil {
		return errors.Wrapf(err, "wait for slot %d", slot.Index)
	}
	slot.State = Idle

	if err := slot.InFlight.Reset(); err != nil {
		return errors.Wrapf(err, "reset fence for slot %d", slot.Index)
	}

	image, err := o.surface.AcquireNextImage(o.acquireTimeout, slot.ImageAvailable)
	if err != nil {
		return errors.Wrapf(err, "acquire image for slot %d", slot.Index)
	}

	width, height := o.surface.Extent()
	err = o.scene.WriteUniforms(slot.Uniforms, o.clock(), width, height)
	if err != nil {
		return errors.Wrapf(err, "write uniforms for slot %d", slot.Index)
	}

	slot.State = Recording
	if err := slot.Commands.Reset(); err != nil {
		return errors.Wrapf(err, "reset command buffer for slot %d", slot.Index)
	}

	err = o.recorder.Record(slot.Commands, Target{
		Slot:   slot.Index,
		Image:  image,
		Width:  width,
		Height: height,
	})
	if err != nil {
		return errors.Wrapf(err, "record slot %d into image %d", slot.Index, image)
	}

	err = o.device.Submit(Submission{
		Commands:  slot.Commands,
		Wait:      slot.ImageAvailable,
		WaitStage: StageColorAttachmentOutput,
		Signal:    slot.RenderFinished,
		Fence:     slot.InFlight,
	})
	if err != nil {
		return errors.Wrapf(err, "submit slot %d", slot.Index)
	}
	slot.State = Submitted
	slot.submissions++

	if err := o.surface.Present(image, slot.RenderFinished); err != nil {
		return errors.Wrapf(err, "present image %d from slot %d", image, slot.Index)
	}

	o.frames++
	o.logger.Debug("frame presented", "frame", o.frames, "slot", slot.Index, "image", image)
	return nil
}

// Run renders frames until the window asks to close or ctx is cancelled, both checked once per
// frame. Neither is an error. A failed frame stops the loop and is returned; in-flight GPU work
// is left for Close to drain.
func (o *Orchestrator) Run(ctx context.Context, window Window) error {
	for {
		if ctx.Err() != nil {
			o.logger.Info("frame loop cancelled", "frames", o.frames)
			return nil
		}
		if window.ShouldClose() {
			o.logger.Info("window closed", "frames", o.frames)
			return nil
		}

		if err := o.Frame(); err != nil {
			level := slog.LevelError
			if vkerr.IsPresentation(err) {
				level = slog.LevelWarn
			}
			o.logger.Log(ctx, level, "frame loop stopped", "frames", o.frames, "err", err)
			return err
		}
	}
}

// Close waits for the device to go idle and then destroys every slot object in reverse
// creation order. The objects are released even when the wait fails. Calling Close again does
// nothing.
func (o *Orchestrator) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	if o.stopped == nil {
		o.stopped = ErrStopped
	}

	err := o.device.WaitIdle()
	if err != nil {
		err = errors.Wrap(err, "wait for device idle")
	}

	for _, slot := range o.slots {
		slot.State = Idle
	}
	o.scope.Release()
	return err
}
