// Package asset loads the files a session is built from: SPIR-V shader
// blobs, texture images and meshes.
package asset

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	forgevk "github.com/S96/ForgeVk"
)

// ErrModelUnsupported is returned by ModelFile.
var ErrModelUnsupported = errors.New("model files are not supported")

// LoadShader reads a precompiled SPIR-V module.
func LoadShader(path string) ([]byte, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader")
	}
	if err := forgevk.ValidateSPIRV(code); err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}
	return code, nil
}

// LoadTexture decodes an image file and converts it to RGBA8.
func LoadTexture(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open texture")
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode texture %s", path)
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out, nil
}

// MeshSource yields the geometry to draw.
type MeshSource interface {
	Mesh() (forgevk.Mesh, error)
}

// StaticMesh is a mesh held in memory.
type StaticMesh struct {
	Vertices []forgevk.Vertex
	Indices  []uint32
}

// Quad returns the built-in pair of textured quads.
func Quad() StaticMesh {
	m := forgevk.QuadMesh()
	return StaticMesh{Vertices: m.Vertices, Indices: m.Indices}
}

func (s StaticMesh) Mesh() (forgevk.Mesh, error) {
	if len(s.Vertices) == 0 || len(s.Indices) == 0 {
		return forgevk.Mesh{}, errors.New("empty mesh")
	}
	for _, idx := range s.Indices {
		if int(idx) >= len(s.Vertices) {
			return forgevk.Mesh{}, errors.Newf("index %d out of range of %d vertices", idx, len(s.Vertices))
		}
	}
	return forgevk.Mesh{Vertices: s.Vertices, Indices: s.Indices}, nil
}

// ModelFile names a model file on disk. Loading is not implemented.
type ModelFile string

func (m ModelFile) Mesh() (forgevk.Mesh, error) {
	return forgevk.Mesh{}, errors.Wrapf(ErrModelUnsupported, "load %s", string(m))
}
