package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/learnvulkan/internal/frame"
	"github.com/vkngwrapper/learnvulkan/internal/gpu"
	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

var clearColor = core1_0.ClearValueFloat{0, 0, 0, 1}

// recorder draws the indexed mesh into the framebuffer of the acquired image with the
// descriptor set of the current slot.
type recorder struct {
	driver core1_0.CoreDeviceDriver
	report vkerr.Reporter

	renderPass   core1_0.RenderPass
	framebuffers []core1_0.Framebuffer
	pipeline     core1_0.Pipeline
	layout       core1_0.PipelineLayout

	vertices   core1_0.Buffer
	indices    core1_0.Buffer
	indexType  core1_0.IndexType
	indexCount int

	sets []core1_0.DescriptorSet
}

var _ frame.Recorder = (*recorder)(nil)

func viewport(width, height int) core1_0.Viewport {
	return core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(width),
		Height:   float32(height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

func scissor(width, height int) core1_0.Rect2D {
	return core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: core1_0.Extent2D{Width: width, Height: height},
	}
}

func (r *recorder) check(target frame.Target) error {
	switch {
	case target.Image < 0 || target.Image >= len(r.framebuffers):
		return errors.AssertionFailedf("image %d has no framebuffer (%d images)", target.Image, len(r.framebuffers))
	case target.Slot < 0 || target.Slot >= len(r.sets):
		return errors.AssertionFailedf("slot %d has no descriptor set (%d slots)", target.Slot, len(r.sets))
	}
	return nil
}

func (r *recorder) Record(cmd frame.CommandBuffer, target frame.Target) error {
	commands, ok := cmd.(*gpu.CommandBuffer)
	if !ok {
		return errors.AssertionFailedf("record: command buffer %T is not a vulkan command buffer", cmd)
	}
	if err := r.check(target); err != nil {
		return err
	}
	buffer := commands.Handle

	_, err := r.driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return r.report.Check(err, "begin command buffer for slot %d", target.Slot)
	}

	err = r.driver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  r.renderPass,
			Framebuffer: r.framebuffers[target.Image],
			RenderArea:  scissor(target.Width, target.Height),
			ClearValues: []core1_0.ClearValue{clearColor},
		})
	if err != nil {
		return r.report.Check(err, "begin render pass on image %d", target.Image)
	}

	r.driver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, r.pipeline)
	r.driver.CmdSetViewport(buffer, viewport(target.Width, target.Height))
	r.driver.CmdSetScissor(buffer, scissor(target.Width, target.Height))
	r.driver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{r.vertices}, []int{0})
	r.driver.CmdBindIndexBuffer(buffer, r.indices, 0, r.indexType)
	r.driver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, r.layout, 0, []core1_0.DescriptorSet{
		r.sets[target.Slot],
	}, nil)
	r.driver.CmdDrawIndexed(buffer, r.indexCount, 1, 0, 0, 0)
	r.driver.CmdEndRenderPass(buffer)

	_, err = r.driver.EndCommandBuffer(buffer)
	return r.report.Check(err, "end command buffer for slot %d", target.Slot)
}
