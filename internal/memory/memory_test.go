package memory

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

const hostVisibleCoherent = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

func testProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return &core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyHostVisible},
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
			{PropertyFlags: hostVisibleCoherent | core1_0.MemoryPropertyHostCached},
			{PropertyFlags: hostVisibleCoherent},
		},
	}
}

func TestFindMemoryTypeSkipsRegionsMissingRequiredBits(t *testing.T) {
	// Regions {0,2} are allowed. Region 0 lacks HOST_COHERENT, so 2 is the first match.
	index, err := FindMemoryType(testProperties(), 0b0101, hostVisibleCoherent)
	require.NoError(t, err)
	assert.Equal(t, 2, index)
}

func TestFindMemoryTypeFirstMatchWins(t *testing.T) {
	index, err := FindMemoryType(testProperties(), 0b1111, hostVisibleCoherent)
	require.NoError(t, err)
	assert.Equal(t, 2, index)

	index, err = FindMemoryType(testProperties(), 0b1111, core1_0.MemoryPropertyHostVisible)
	require.NoError(t, err)
	assert.Equal(t, 0, index)
}

func TestFindMemoryTypeNoMatch(t *testing.T) {
	index, err := FindMemoryType(testProperties(), 0b0001, core1_0.MemoryPropertyDeviceLocal)
	require.Error(t, err)
	assert.True(t, errors.Is(err, vkerr.ErrNoMemoryType))
	assert.Equal(t, NoMemoryType, index)

	index, err = FindMemoryType(testProperties(), 0, 0)
	require.Error(t, err)
	assert.Equal(t, NoMemoryType, index)

	index, err = FindMemoryType(nil, 0b1111, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, vkerr.ErrNotInitialized))
	assert.Equal(t, NoMemoryType, index)
}

func TestBufferWriteBounds(t *testing.T) {
	b := &Buffer{Size: 16}
	require.Error(t, b.Write(8, make([]byte, 9)))
	require.Error(t, b.Write(-1, []byte{1}))

	b.mapped = make([]byte, 16)
	require.NoError(t, b.Write(4, []byte{1, 2, 3}))
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 0}, b.mapped[:8])

	out, err := b.Read(8)
	require.NoError(t, err)
	assert.Equal(t, b.mapped[:8], out)

	_, err = b.Read(32)
	require.Error(t, err)
}

func TestImageByteSize(t *testing.T) {
	img := &Image{Spec: ImageSpec{Width: 4, Height: 3}}
	assert.Equal(t, 48, img.ByteSize())
}
