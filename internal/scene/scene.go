// Package scene defines the vertex and uniform layouts shared with the shaders and computes the
// per-frame transform.
package scene

import (
	"math"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
}

func VertexBindings() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func VertexAttributes() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}

// Uniform is the per-frame uniform block, three column-major matrices.
type Uniform struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

// UniformSize is the byte size of an encoded Uniform.
const UniformSize = int(unsafe.Sizeof(Uniform{}))

// Encode writes u into dst in the device byte order.
func (u *Uniform) Encode(dst []byte) error {
	if len(dst) < UniformSize {
		return errors.Newf("uniform needs %d bytes, destination has %d", UniformSize, len(dst))
	}

	offset := 0
	for _, m := range []*mgl32.Mat4{&u.Model, &u.View, &u.Proj} {
		for _, f := range m {
			common.ByteOrder.PutUint32(dst[offset:], math.Float32bits(f))
			offset += 4
		}
	}
	return nil
}

// Camera is the fixed view the quad spins under.
type Camera struct {
	Eye, Center, Up mgl32.Vec3
	FovY            float32 // radians
	Near, Far       float32
	// Degrees per second around the Z axis.
	Spin float32
}

var DefaultCamera = Camera{
	Eye:    mgl32.Vec3{2, 2, 2},
	Center: mgl32.Vec3{0, 0, 0},
	Up:     mgl32.Vec3{0, 0, 1},
	FovY:   mgl32.DegToRad(45),
	Near:   0.1,
	Far:    10,
	Spin:   90,
}

// Transform is a pure function of elapsed time and the target extent.
func (c Camera) Transform(elapsed time.Duration, width, height int) Uniform {
	seconds := float32(elapsed.Seconds())

	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}

	u := Uniform{
		Model: mgl32.HomogRotate3DZ(seconds * mgl32.DegToRad(c.Spin)),
		View:  mgl32.LookAtV(c.Eye, c.Center, c.Up),
		Proj:  mgl32.Perspective(c.FovY, aspect, c.Near, c.Far),
	}
	// Clip space Y points down.
	u.Proj[5] *= -1
	return u
}

// WriteUniforms encodes the transform for elapsed into dst.
func (c Camera) WriteUniforms(dst []byte, elapsed time.Duration, width, height int) error {
	u := c.Transform(elapsed, width, height)
	return u.Encode(dst)
}
