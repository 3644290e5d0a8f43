package assets

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/cockroachdb/errors"
)

// Texture is tightly packed 8-bit RGBA.
type Texture struct {
	Width, Height int
	Pixels        []byte
}

func (t *Texture) String() string {
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}

// LoadTexture decodes a PNG or JPEG file.
func LoadTexture(path string) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open texture %s", path)
	}
	defer f.Close()

	decoded, format, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode texture %s", path)
	}

	t := FromImage(decoded)
	if t.Width == 0 || t.Height == 0 {
		return nil, errors.Newf("texture %s (%s) has no pixels", path, format)
	}
	return t, nil
}

// FromImage converts any image into packed RGBA rows starting at the image's minimum point.
func FromImage(img image.Image) *Texture {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	return &Texture{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pixels: rgba.Pix[:bounds.Dx()*bounds.Dy()*4],
	}
}

// Checkerboard generates an opaque black and white board with square cells of the given size.
func Checkerboard(width, height, cell int) *Texture {
	if cell < 1 {
		cell = 1
	}

	t := &Texture{Width: width, Height: height, Pixels: make([]byte, width*height*4)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var v byte
			if (x/cell+y/cell)%2 == 0 {
				v = 0xff
			}
			i := (y*width + x) * 4
			t.Pixels[i+0] = v
			t.Pixels[i+1] = v
			t.Pixels[i+2] = v
			t.Pixels[i+3] = 0xff
		}
	}
	return t
}
