package assets

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/learnvulkan/internal/scene"
)

// LoadMesh reads a Wavefront OBJ file. A material library next to it with the same base name is
// handed to the decoder when present; materials are otherwise ignored.
func LoadMesh(path string) (scene.Mesh, error) {
	meshFile, err := os.Open(path)
	if err != nil {
		return scene.Mesh{}, errors.Wrapf(err, "open mesh %s", path)
	}
	defer meshFile.Close()

	var matReader io.Reader = strings.NewReader("")
	matFile, err := os.Open(strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl")
	if err == nil {
		defer matFile.Close()
		matReader = matFile
	}

	mesh, err := DecodeMesh(meshFile, matReader)
	if err != nil {
		return mesh, errors.Wrapf(err, "mesh %s", path)
	}
	return mesh, nil
}

// DecodeMesh triangulates every face of every object and merges vertices that share a position
// index. Vertices are white; V texture coordinates are flipped to the top-left origin.
func DecodeMesh(objReader, matReader io.Reader) (scene.Mesh, error) {
	decoder, err := obj.DecodeReader(objReader, matReader)
	if err != nil {
		return scene.Mesh{}, errors.Wrap(err, "decode obj")
	}

	b := meshBuilder{decoder: decoder, unique: make(map[int]uint32)}
	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				b.add(face, 0)
				b.add(face, i-1)
				b.add(face, i)
			}
		}
	}

	if err := b.mesh.Validate(); err != nil {
		return b.mesh, err
	}
	return b.mesh, nil
}

type meshBuilder struct {
	decoder *obj.Decoder
	unique  map[int]uint32
	mesh    scene.Mesh
}

func (b *meshBuilder) add(face obj.Face, corner int) {
	vertInd := face.Vertices[corner]
	index, exists := b.unique[vertInd]

	if !exists {
		vert := scene.Vertex{
			Position: mgl32.Vec3{
				b.decoder.Vertices[vertInd*3],
				b.decoder.Vertices[vertInd*3+1],
				b.decoder.Vertices[vertInd*3+2],
			},
			Color: mgl32.Vec3{1, 1, 1},
		}

		if corner < len(face.Uvs) {
			uvInd := face.Uvs[corner]
			if uvInd >= 0 && uvInd*2+1 < len(b.decoder.Uvs) {
				vert.TexCoord = mgl32.Vec2{
					b.decoder.Uvs[uvInd*2],
					1.0 - b.decoder.Uvs[uvInd*2+1],
				}
			}
		}

		index = uint32(len(b.mesh.Vertices))
		b.mesh.Vertices = append(b.mesh.Vertices, vert)
		b.unique[vertInd] = index
	}

	b.mesh.Indices = append(b.mesh.Indices, index)
}
