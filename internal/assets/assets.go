// Package assets reads everything the renderer needs from disk before the device exists:
// shader bytecode, the texture and the mesh.
package assets

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/learnvulkan/internal/config"
	"github.com/vkngwrapper/learnvulkan/internal/scene"
)

type Assets struct {
	VertexShader   []byte
	FragmentShader []byte
	// Texture is nil for the untextured variant.
	Texture *Texture
	Mesh    scene.Mesh
}

// Load reads every asset in parallel. The first failure cancels the rest.
func Load(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Assets, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &Assets{}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error
		a.VertexShader, err = readShader(ctx, cfg.Shaders.Vertex)
		return err
	})

	group.Go(func() error {
		var err error
		a.FragmentShader, err = readShader(ctx, cfg.Shaders.Fragment)
		return err
	})

	if cfg.Textured {
		group.Go(func() error {
			var err error
			if cfg.Texture == "" {
				a.Texture = Checkerboard(256, 256, 32)
				return nil
			}
			a.Texture, err = LoadTexture(cfg.Texture)
			return err
		})
	}

	group.Go(func() error {
		if cfg.Mesh == "" {
			a.Mesh = scene.Quad()
			return nil
		}

		var err error
		a.Mesh, err = LoadMesh(cfg.Mesh)
		return err
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	attrs := []any{
		"vertex_shader", len(a.VertexShader),
		"fragment_shader", len(a.FragmentShader),
		"vertices", len(a.Mesh.Vertices),
		"indices", len(a.Mesh.Indices),
	}
	if a.Texture != nil {
		attrs = append(attrs, "texture", a.Texture.String())
	}
	logger.Info("assets loaded", attrs...)
	return a, nil
}

func readShader(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}
	if len(data) == 0 {
		return nil, errors.Newf("shader %s is empty", path)
	}
	return data, nil
}
