package transfer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Barrier is the explicit execution and memory dependency for one image layout transition:
// the source stage/access that must be complete and available, and the destination
// stage/access that waits for it.
type Barrier struct {
	SrcStage  core1_0.PipelineStageFlags
	SrcAccess core1_0.AccessFlags
	DstStage  core1_0.PipelineStageFlags
	DstAccess core1_0.AccessFlags
}

type layoutPair struct {
	from, to core1_0.ImageLayout
}

var transitions = map[layoutPair]Barrier{
	{core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal}: {
		SrcStage:  core1_0.PipelineStageTopOfPipe,
		SrcAccess: 0,
		DstStage:  core1_0.PipelineStageTransfer,
		DstAccess: core1_0.AccessTransferWrite,
	},
	{core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal}: {
		SrcStage:  core1_0.PipelineStageTransfer,
		SrcAccess: core1_0.AccessTransferWrite,
		DstStage:  core1_0.PipelineStageFragmentShader,
		DstAccess: core1_0.AccessShaderRead,
	},
	{core1_0.ImageLayoutShaderReadOnlyOptimal, core1_0.ImageLayoutTransferSrcOptimal}: {
		SrcStage:  core1_0.PipelineStageFragmentShader,
		SrcAccess: core1_0.AccessShaderRead,
		DstStage:  core1_0.PipelineStageTransfer,
		DstAccess: core1_0.AccessTransferRead,
	},
	{core1_0.ImageLayoutTransferSrcOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal}: {
		SrcStage:  core1_0.PipelineStageTransfer,
		SrcAccess: core1_0.AccessTransferRead,
		DstStage:  core1_0.PipelineStageFragmentShader,
		DstAccess: core1_0.AccessShaderRead,
	},
}

// Transition looks up the barrier for a layout change. Only the transitions the engine records
// are known.
func Transition(oldLayout, newLayout core1_0.ImageLayout) (Barrier, error) {
	b, ok := transitions[layoutPair{oldLayout, newLayout}]
	if !ok {
		return Barrier{}, errors.Newf("unexpected layout transition: %s -> %s", oldLayout, newLayout)
	}
	return b, nil
}

func (b Barrier) imageBarrier(image core1_0.Image, oldLayout, newLayout core1_0.ImageLayout) core1_0.ImageMemoryBarrier {
	return core1_0.ImageMemoryBarrier{
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: -1,
		DstQueueFamilyIndex: -1,
		Image:               image,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		SrcAccessMask: b.SrcAccess,
		DstAccessMask: b.DstAccess,
	}
}
