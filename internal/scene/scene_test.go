package scene

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestWriteUniformsIdempotent(t *testing.T) {
	first := make([]byte, UniformSize)
	second := make([]byte, UniformSize)

	elapsed := 1234 * time.Millisecond
	require.NoError(t, DefaultCamera.WriteUniforms(first, elapsed, 800, 600))
	require.NoError(t, DefaultCamera.WriteUniforms(second, elapsed, 800, 600))
	assert.Equal(t, first, second)

	require.NoError(t, DefaultCamera.WriteUniforms(second, elapsed+time.Second, 800, 600))
	assert.NotEqual(t, first, second)
}

func TestUniformSize(t *testing.T) {
	assert.Equal(t, 3*16*4, UniformSize)

	u := Uniform{}
	require.Error(t, u.Encode(make([]byte, UniformSize-1)))
}

func TestEncodeColumnMajor(t *testing.T) {
	u := Uniform{Model: mgl32.Translate3D(1, 2, 3), View: mgl32.Ident4(), Proj: mgl32.Ident4()}
	dst := make([]byte, UniformSize)
	require.NoError(t, u.Encode(dst))

	// Translation lives in the fourth column: elements 12..14.
	x := math.Float32frombits(common.ByteOrder.Uint32(dst[12*4:]))
	y := math.Float32frombits(common.ByteOrder.Uint32(dst[13*4:]))
	assert.Equal(t, float32(1), x)
	assert.Equal(t, float32(2), y)
}

func TestTransformSpinsNinetyDegreesPerSecond(t *testing.T) {
	u := DefaultCamera.Transform(time.Second, 800, 600)
	p := u.Model.Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 0, p.X(), 1e-5)
	assert.InDelta(t, 1, p.Y(), 1e-5)

	u = DefaultCamera.Transform(0, 800, 600)
	assert.True(t, u.Model.ApproxEqual(mgl32.Ident4()))
}

func TestTransformFlipsY(t *testing.T) {
	u := DefaultCamera.Transform(0, 800, 600)
	assert.Less(t, u.Proj[5], float32(0))

	// Zero height does not divide by zero.
	u = DefaultCamera.Transform(0, 800, 0)
	assert.False(t, math.IsInf(float64(u.Proj[0]), 0))
}

func TestQuad(t *testing.T) {
	q := Quad()
	require.NoError(t, q.Validate())
	assert.Equal(t, []uint32{0, 1, 2, 2, 3, 0}, q.Indices)
	assert.Equal(t, core1_0.IndexTypeUInt16, q.IndexType())

	indices, err := q.IndexBytes()
	require.NoError(t, err)
	assert.Len(t, indices, 6*2)
	assert.Equal(t, uint16(2), common.ByteOrder.Uint16(indices[4:]))

	vertices, err := q.VertexBytes()
	require.NoError(t, err)
	assert.Len(t, vertices, 4*VertexBindings()[0].Stride)
}

func TestMeshValidate(t *testing.T) {
	require.Error(t, Mesh{}.Validate())
	require.Error(t, Mesh{Vertices: make([]Vertex, 3), Indices: []uint32{0, 1}}.Validate())
	require.Error(t, Mesh{Vertices: make([]Vertex, 3), Indices: []uint32{0, 1, 3}}.Validate())
}

func TestVertexAttributesMatchLayout(t *testing.T) {
	attrs := VertexAttributes()
	require.Len(t, attrs, 3)
	assert.Equal(t, 0, attrs[0].Offset)
	assert.Equal(t, 12, attrs[1].Offset)
	assert.Equal(t, 24, attrs[2].Offset)
	assert.Equal(t, 32, VertexBindings()[0].Stride)
}
