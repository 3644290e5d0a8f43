package scene

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Quad is the unit quad centered on the origin, one colored corner per vertex.
func Quad() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{Position: mgl32.Vec3{-0.5, -0.5, 0}, Color: mgl32.Vec3{1, 0, 0}, TexCoord: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{0.5, -0.5, 0}, Color: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 1}},
			{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{1, 1, 1}, TexCoord: mgl32.Vec2{1, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

func (m Mesh) Validate() error {
	if len(m.Vertices) == 0 || len(m.Indices) == 0 {
		return errors.New("mesh is empty")
	}
	if len(m.Indices)%3 != 0 {
		return errors.Newf("%d indices do not form whole triangles", len(m.Indices))
	}
	for i, index := range m.Indices {
		if int(index) >= len(m.Vertices) {
			return errors.Newf("index %d at position %d is past %d vertices", index, i, len(m.Vertices))
		}
	}
	return nil
}

// IndexType is 16 bit when every vertex is addressable with it.
func (m Mesh) IndexType() core1_0.IndexType {
	if len(m.Vertices) <= math.MaxUint16+1 {
		return core1_0.IndexTypeUInt16
	}
	return core1_0.IndexTypeUInt32
}

func (m Mesh) VertexBytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, m.Vertices)
	if err != nil {
		return nil, errors.Wrap(err, "encode vertices")
	}
	return buf.Bytes(), nil
}

// IndexBytes encodes the indices at the width IndexType reports.
func (m Mesh) IndexBytes() ([]byte, error) {
	buf := &bytes.Buffer{}

	var err error
	if m.IndexType() == core1_0.IndexTypeUInt16 {
		narrow := make([]uint16, len(m.Indices))
		for i, index := range m.Indices {
			narrow[i] = uint16(index)
		}
		err = binary.Write(buf, common.ByteOrder, narrow)
	} else {
		err = binary.Write(buf, common.ByteOrder, m.Indices)
	}
	if err != nil {
		return nil, errors.Wrap(err, "encode indices")
	}
	return buf.Bytes(), nil
}
