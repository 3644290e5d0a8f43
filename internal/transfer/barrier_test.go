package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestTransitionUploadOrdering(t *testing.T) {
	before, err := Transition(core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
	require.NoError(t, err)
	assert.Equal(t, core1_0.PipelineStageTopOfPipe, before.SrcStage)
	assert.Equal(t, core1_0.AccessFlags(0), before.SrcAccess)
	assert.Equal(t, core1_0.PipelineStageTransfer, before.DstStage)
	assert.Equal(t, core1_0.AccessTransferWrite, before.DstAccess)

	after, err := Transition(core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	require.NoError(t, err)
	assert.Equal(t, core1_0.PipelineStageTransfer, after.SrcStage)
	assert.Equal(t, core1_0.AccessTransferWrite, after.SrcAccess)
	assert.Equal(t, core1_0.PipelineStageFragmentShader, after.DstStage)
	assert.Equal(t, core1_0.AccessShaderRead, after.DstAccess)

	// The shader read transition waits on exactly what the copy made available.
	assert.Equal(t, before.DstStage, after.SrcStage)
	assert.Equal(t, before.DstAccess, after.SrcAccess)
}

func TestTransitionReadbackRoundTrip(t *testing.T) {
	out, err := Transition(core1_0.ImageLayoutShaderReadOnlyOptimal, core1_0.ImageLayoutTransferSrcOptimal)
	require.NoError(t, err)
	back, err := Transition(core1_0.ImageLayoutTransferSrcOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	require.NoError(t, err)

	assert.Equal(t, out.DstStage, back.SrcStage)
	assert.Equal(t, out.DstAccess, back.SrcAccess)
	assert.Equal(t, out.SrcStage, back.DstStage)
}

func TestTransitionUnknown(t *testing.T) {
	_, err := Transition(core1_0.ImageLayoutUndefined, core1_0.ImageLayoutShaderReadOnlyOptimal)
	require.Error(t, err)

	_, err = Transition(core1_0.ImageLayoutShaderReadOnlyOptimal, core1_0.ImageLayoutTransferDstOptimal)
	require.Error(t, err)
}

func TestImageBarrier(t *testing.T) {
	b, err := Transition(core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
	require.NoError(t, err)

	barrier := b.imageBarrier(core1_0.Image{}, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
	assert.Equal(t, core1_0.ImageLayoutUndefined, barrier.OldLayout)
	assert.Equal(t, core1_0.ImageLayoutTransferDstOptimal, barrier.NewLayout)
	assert.Equal(t, -1, barrier.SrcQueueFamilyIndex)
	assert.Equal(t, -1, barrier.DstQueueFamilyIndex)
	assert.Equal(t, b.SrcAccess, barrier.SrcAccessMask)
	assert.Equal(t, b.DstAccess, barrier.DstAccessMask)
	assert.Equal(t, core1_0.ImageAspectColor, barrier.SubresourceRange.AspectMask)
	assert.Equal(t, 1, barrier.SubresourceRange.LevelCount)
	assert.Equal(t, 1, barrier.SubresourceRange.LayerCount)
}

func TestImageCopyCoversWholeImage(t *testing.T) {
	region := imageCopy(64, 32)
	assert.Equal(t, core1_0.Extent3D{Width: 64, Height: 32, Depth: 1}, region.ImageExtent)
	assert.Equal(t, 0, region.BufferRowLength)
	assert.Equal(t, 1, region.ImageSubresource.LayerCount)
}
