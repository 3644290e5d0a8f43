package pipeline

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/vkerr"
)

func TestBytecodeLittleEndian(t *testing.T) {
	code, err := Bytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 1}, code)
}

func TestBytecodeRejectsPartialWords(t *testing.T) {
	for _, size := range []int{0, 1, 3, 5, 7} {
		_, err := Bytecode(make([]byte, size))
		require.Error(t, err, "size %d", size)
		assert.True(t, errors.Is(err, vkerr.ErrBadBytecode))
	}
}

func TestCreateInfoDeclaresDynamicViewportAndScissor(t *testing.T) {
	desc := NewDesc(nil, nil, core1_0.PipelineLayout{}, core1_0.RenderPass{})
	info := desc.CreateInfo([]Shader{
		{Stage: core1_0.StageVertex},
		{Stage: core1_0.StageFragment},
	})

	require.NotNil(t, info.DynamicState)
	assert.ElementsMatch(t, []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor}, info.DynamicState.DynamicStates)

	require.Len(t, info.Stages, 2)
	assert.Equal(t, core1_0.StageVertex, info.Stages[0].Stage)
	assert.Equal(t, "main", info.Stages[1].Name)

	assert.Same(t, desc.VertexInput, info.VertexInputState)
	assert.Same(t, desc.InputAssembly, info.InputAssemblyState)
	assert.Same(t, desc.Viewport, info.ViewportState)
	assert.Same(t, desc.Rasterization, info.RasterizationState)
	assert.Same(t, desc.Multisample, info.MultisampleState)
	assert.Same(t, desc.ColorBlend, info.ColorBlendState)
	assert.Equal(t, -1, info.BasePipelineIndex)
}

func TestDescStatesAreIndependent(t *testing.T) {
	desc := NewDesc(nil, nil, core1_0.PipelineLayout{}, core1_0.RenderPass{})
	desc.Rasterization = &core1_0.PipelineRasterizationStateCreateInfo{
		PolygonMode: core1_0.PolygonModeLine,
		CullMode:    core1_0.CullModeNone,
		LineWidth:   1.0,
	}

	info := desc.CreateInfo(nil)
	assert.Equal(t, core1_0.PolygonModeLine, info.RasterizationState.PolygonMode)
	assert.Equal(t, core1_0.PrimitiveTopologyTriangleList, info.InputAssemblyState.Topology)
	assert.Equal(t, core1_0.Samples1, info.MultisampleState.RasterizationSamples)
}

func TestDescValidate(t *testing.T) {
	desc := NewDesc(nil, nil, core1_0.PipelineLayout{}, core1_0.RenderPass{})
	require.NoError(t, desc.validate())

	desc.ColorBlend = nil
	require.Error(t, desc.validate())
}

func cacheBlob(t *testing.T, h cacheHeader, payload int) []byte {
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, common.ByteOrder, h))
	buf.Write(make([]byte, payload))
	return buf.Bytes()
}

func testIdentity() Identity {
	return Identity{
		VendorID:  0x10de,
		DeviceID:  0x2484,
		CacheUUID: uuid.MustParse("8f4a2a3c-6a1e-4c55-9a38-2f5e1b4c7d90"),
	}
}

func validHeader(id Identity) cacheHeader {
	return cacheHeader{
		Length:    uint32(headerSize),
		Version:   headerVersionOne,
		VendorID:  id.VendorID,
		DeviceID:  id.DeviceID,
		CacheUUID: id.CacheUUID,
	}
}

func TestCheckHeader(t *testing.T) {
	id := testIdentity()
	require.NoError(t, CheckHeader(cacheBlob(t, validHeader(id), 64), id))

	cases := map[string]func(h *cacheHeader){
		"length":  func(h *cacheHeader) { h.Length = 4 },
		"version": func(h *cacheHeader) { h.Version = 2 },
		"vendor":  func(h *cacheHeader) { h.VendorID++ },
		"device":  func(h *cacheHeader) { h.DeviceID++ },
		"uuid":    func(h *cacheHeader) { h.CacheUUID = uuid.Nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := validHeader(id)
			mutate(&h)
			require.Error(t, CheckHeader(cacheBlob(t, h, 64), id))
		})
	}

	require.Error(t, CheckHeader(make([]byte, 8), id))
}

func TestReadCacheDiscardsForeignData(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	id := testIdentity()
	path := filepath.Join(t.TempDir(), "pipeline.cache")

	data, err := readCache(path, id, logger)
	require.NoError(t, err)
	assert.Nil(t, data)

	foreign := validHeader(id)
	foreign.DeviceID = 1
	require.NoError(t, os.WriteFile(path, cacheBlob(t, foreign, 16), 0o644))

	data, err = readCache(path, id, logger)
	require.NoError(t, err)
	assert.Nil(t, data)
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	good := cacheBlob(t, validHeader(id), 16)
	require.NoError(t, os.WriteFile(path, good, 0o644))
	data, err = readCache(path, id, logger)
	require.NoError(t, err)
	assert.Equal(t, good, data)
}
